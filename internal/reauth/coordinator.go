// Package reauth vuelve a verificar una sesión viva justo antes de una
// operación destructiva.
//
// El protocolo se elige por los providers registrados para el email de la
// sesión: credencial de plataforma si está registrada, link por email si no.
// Las sesiones anónimas no se reautentican.
//
// Cada intento lleva un número de generación. Cancel o un intento nuevo
// avanzan la generación; una respuesta que llega para una generación vieja se
// descarta con ErrStaleCompletion y nunca habilita el borrado.
package reauth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dropDatabas3/hellojohn-session/internal/autherr"
	"github.com/dropDatabas3/hellojohn-session/internal/identity"
	"github.com/dropDatabas3/hellojohn-session/internal/metrics"
	"github.com/dropDatabas3/hellojohn-session/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-session/internal/security/nonce"
	"github.com/dropDatabas3/hellojohn-session/internal/session"
	"github.com/dropDatabas3/hellojohn-session/internal/signin"
	"go.uber.org/zap"
)

// Outcome es cómo terminó Begin.
type Outcome int

const (
	// Verified: la sesión quedó reautenticada.
	Verified Outcome = iota
	// Skipped: sesión anónima, no hay credencial que refrescar.
	Skipped
	// LinkSent: se mandó un link; la verificación sigue en CompleteLink.
	LinkSent
)

func (o Outcome) String() string {
	switch o {
	case Verified:
		return "verified"
	case Skipped:
		return "skipped"
	case LinkSent:
		return "link_sent"
	}
	return "unknown"
}

// PendingLink es una reautenticación por link esperando el deep link.
type PendingLink struct {
	Generation uint64
	UID        string
	Email      string
	IssuedAt   time.Time
}

// Deps del coordinador.
type Deps struct {
	Client identity.Client
	Nonces nonce.Generator
	Now    func() time.Time
}

// Coordinator corre a lo sumo una reautenticación a la vez.
type Coordinator struct {
	client identity.Client
	nonces nonce.Generator
	now    func() time.Time

	busy atomic.Bool

	mu         sync.Mutex
	generation uint64
	pending    *PendingLink
}

// New crea el coordinador.
func New(d Deps) *Coordinator {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Coordinator{client: d.Client, nonces: d.Nonces, now: d.Now}
}

func (c *Coordinator) log(ctx context.Context, op string) *zap.Logger {
	return logger.From(ctx).With(logger.Layer("core"), logger.Component("reauth"), logger.Op(op))
}

func (c *Coordinator) acquire() (func(), error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, autherr.ErrReauthAlreadyInProgress
	}
	return func() { c.busy.Store(false) }, nil
}

// next abre una generación nueva y descarta el link pendiente.
func (c *Coordinator) next() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.pending = nil
	return c.generation
}

func (c *Coordinator) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation == gen
}

// Cancel abandona el intento en curso. Una respuesta tardía queda obsoleta.
func (c *Coordinator) Cancel() {
	c.next()
}

// Pending devuelve la reautenticación por link en espera.
func (c *Coordinator) Pending() (PendingLink, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return PendingLink{}, false
	}
	return *c.pending, true
}

// Begin arranca la reautenticación de s.
func (c *Coordinator) Begin(ctx context.Context, s session.Session) (out Outcome, err error) {
	if s.IsAnonymous {
		return Skipped, nil
	}
	release, err := c.acquire()
	if err != nil {
		return 0, err
	}
	defer release()

	gen := c.next()
	log := c.log(ctx, "begin").With(logger.UID(s.UID), logger.Int("generation", int(gen)))
	start := c.now()
	defer func() {
		metrics.ObserveFlow("reauth", start, err)
		if err != nil {
			log.Warn("reauthentication failed", logger.Err(err))
		}
	}()

	useCredential := s.PrimaryProvider == session.ProviderHardwareCredential
	if s.HasEmail() {
		providers, err := c.client.FetchProvidersForEmail(ctx, s.Email)
		if err != nil {
			return 0, identity.Translate(err)
		}
		useCredential = providers.Has(identity.ProviderApple)
	}

	if useCredential {
		if err := c.withCredential(ctx, gen); err != nil {
			return 0, err
		}
		log.Info("reauthenticated with credential")
		return Verified, nil
	}

	if !s.HasEmail() {
		return 0, autherr.ErrReauthFailed.WithDetail("session has no email to verify")
	}
	if err := c.client.SendPasswordlessLink(ctx, s.Email); err != nil {
		return 0, identity.Translate(err)
	}
	c.mu.Lock()
	if c.generation == gen {
		c.pending = &PendingLink{Generation: gen, UID: s.UID, Email: s.Email, IssuedAt: c.now()}
	}
	c.mu.Unlock()
	log.Info("reauthentication link sent", logger.Email(s.Email))
	return LinkSent, nil
}

func (c *Coordinator) withCredential(ctx context.Context, gen uint64) error {
	cred, _, err := signin.AcquireCredential(ctx, c.client, c.nonces)
	if err != nil {
		return autherr.ErrReauthFailed.WithCause(err)
	}
	if !c.current(gen) {
		return autherr.ErrStaleCompletion
	}
	if err := c.client.Reauthenticate(ctx, identity.CredentialProof(cred)); err != nil {
		return autherr.ErrReauthFailed.WithCause(identity.Translate(err))
	}
	if !c.current(gen) {
		return autherr.ErrStaleCompletion
	}
	return nil
}

// CompleteLink verifica el link recibido contra la reautenticación pendiente.
// Si falla, el pendiente se conserva para reintentar.
func (c *Coordinator) CompleteLink(ctx context.Context, link string) (p PendingLink, err error) {
	p, ok := c.Pending()
	if !ok {
		return PendingLink{}, autherr.ErrNoPendingLink
	}
	release, err := c.acquire()
	if err != nil {
		return PendingLink{}, err
	}
	defer release()

	log := c.log(ctx, "complete_link").With(logger.UID(p.UID), logger.Int("generation", int(p.Generation)))
	start := c.now()
	defer func() {
		metrics.ObserveFlow("reauth_link", start, err)
		if err != nil {
			log.Warn("reauthentication link rejected", logger.Err(err))
		}
	}()

	if err := c.client.Reauthenticate(ctx, identity.LinkProof(p.Email, link)); err != nil {
		return PendingLink{}, autherr.ErrReauthFailed.WithCause(identity.Translate(err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != p.Generation {
		return PendingLink{}, autherr.ErrStaleCompletion
	}
	c.pending = nil
	log.Info("reauthenticated with link")
	return p, nil
}
