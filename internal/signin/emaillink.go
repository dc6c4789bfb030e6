package signin

import (
	"context"

	"github.com/dropDatabas3/hellojohn-session/internal/autherr"
	"github.com/dropDatabas3/hellojohn-session/internal/identity"
	"github.com/dropDatabas3/hellojohn-session/internal/metrics"
	"github.com/dropDatabas3/hellojohn-session/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-session/internal/prefs"
	"github.com/dropDatabas3/hellojohn-session/internal/session"
	"github.com/dropDatabas3/hellojohn-session/internal/validation"
	"github.com/google/uuid"
)

// RequestEmailLink es la fase 1: valida el email, descarta conflictos de
// provider y pide el envío del link. El pedido anterior queda reemplazado.
func (c *Coordinator) RequestEmailLink(ctx context.Context, email string) (p PendingLinkRequest, err error) {
	addr := validation.NormalizeEmail(email)
	if !validation.IsValidEmailFormat(addr) {
		return PendingLinkRequest{}, autherr.ErrInvalidEmailFormat
	}

	release, err := c.acquire()
	if err != nil {
		return PendingLinkRequest{}, err
	}
	defer release()

	log := c.log(ctx, "request_email_link").With(logger.Email(addr))
	start := c.now()
	defer func() {
		metrics.ObserveFlow("email_link_request", start, err)
		if err != nil {
			log.Warn("email link request failed", logger.Err(err))
		}
	}()

	providers, err := c.client.FetchProvidersForEmail(ctx, addr)
	if err != nil {
		return PendingLinkRequest{}, identity.Translate(err)
	}
	if providers.Has(identity.ProviderApple) {
		return PendingLinkRequest{}, autherr.ErrAccountExistsWithOtherProvider
	}
	if err := c.client.SendPasswordlessLink(ctx, addr); err != nil {
		return PendingLinkRequest{}, identity.Translate(err)
	}

	p = PendingLinkRequest{ID: uuid.NewString(), TargetEmail: addr, IssuedAt: c.now()}
	c.mu.Lock()
	superseded := c.pending != nil && !c.pending.Consumed
	c.pending = &p
	c.mu.Unlock()

	if c.prefs != nil {
		if err := prefs.SetLastEmail(ctx, c.prefs, addr); err != nil {
			log.Warn("could not persist last email", logger.Err(err))
		}
	}
	log.Info("email link sent", logger.LinkID(p.ID), logger.Bool("superseded", superseded))
	return p, nil
}

// HandleIncomingLink es la entrada de deep links. Un link que el provider no
// reconoce se ignora: handled=false, sin error.
func (c *Coordinator) HandleIncomingLink(ctx context.Context, link string) (s session.Session, handled bool, err error) {
	if !c.client.IsRecognizedLink(link) {
		return session.Session{}, false, nil
	}
	s, err = c.CompleteEmailLink(ctx, link)
	return s, true, err
}

// CompleteEmailLink es la fase 2: completa el pedido vigente con el link
// recibido. El email usado es siempre el del pedido.
func (c *Coordinator) CompleteEmailLink(ctx context.Context, link string) (s session.Session, err error) {
	release, err := c.acquireCompletion()
	if err != nil {
		return session.Session{}, err
	}
	defer release()

	log := c.log(ctx, "complete_email_link")
	start := c.now()
	defer func() {
		metrics.ObserveFlow("email_link_complete", start, err)
		if err != nil {
			log.Warn("email link completion failed", logger.Err(err))
		}
	}()

	c.mu.Lock()
	var p PendingLinkRequest
	if c.pending != nil {
		p = *c.pending
	}
	c.mu.Unlock()
	switch {
	case p.ID == "":
		return session.Session{}, autherr.ErrNoPendingLink
	case p.Consumed:
		return session.Session{}, autherr.ErrLinkAlreadyConsumed
	}
	log = log.With(logger.LinkID(p.ID), logger.Email(p.TargetEmail))

	u, err := c.client.CompleteLinkSignIn(ctx, p.TargetEmail, link)
	if err != nil {
		return session.Session{}, identity.Translate(err)
	}

	c.mu.Lock()
	if c.pending != nil && c.pending.ID == p.ID {
		c.pending.Consumed = true
	}
	c.mu.Unlock()

	s = u.Session()
	source := s.Email
	if source == "" {
		source = p.TargetEmail
	}
	c.backfillDisplayName(ctx, &s, validation.EmailFirstName(source))

	log.Info("signed in with email link", logger.UID(s.UID))
	return s, nil
}
