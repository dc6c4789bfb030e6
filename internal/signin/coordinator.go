// Package signin implementa los protocolos de ingreso: credencial de
// plataforma (nonce + desafío), link por email en dos fases y anónimo.
//
// Ningún flujo de ingreso toca la máquina de estados: el resultado llega por
// el listener. Sólo los pedidos de UI (formulario de email) usan Request.
package signin

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dropDatabas3/hellojohn-session/internal/autherr"
	"github.com/dropDatabas3/hellojohn-session/internal/identity"
	"github.com/dropDatabas3/hellojohn-session/internal/metrics"
	"github.com/dropDatabas3/hellojohn-session/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-session/internal/prefs"
	"github.com/dropDatabas3/hellojohn-session/internal/security/nonce"
	"github.com/dropDatabas3/hellojohn-session/internal/session"
	"go.uber.org/zap"
)

// Deps del coordinador.
type Deps struct {
	Client  identity.Client
	Machine *session.Machine
	Prefs   prefs.Store // opcional
	Nonces  nonce.Generator
	Now     func() time.Time
}

// CredentialOptions acompaña el ingreso con credencial de plataforma.
type CredentialOptions struct {
	// DisplayName se propaga al provider si la cuenta no tiene nombre.
	DisplayName string
}

// PendingLinkRequest es la fase 1 del ingreso por email. Hay a lo sumo uno
// vigente; pedir otro lo reemplaza.
type PendingLinkRequest struct {
	ID          string    `json:"id"`
	TargetEmail string    `json:"target_email"`
	IssuedAt    time.Time `json:"issued_at"`
	Consumed    bool      `json:"consumed"`
}

// Coordinator implementa los ingresos. Un único flujo a la vez por instancia.
type Coordinator struct {
	client  identity.Client
	machine *session.Machine
	prefs   prefs.Store
	nonces  nonce.Generator
	now     func() time.Time

	busy       atomic.Bool
	completing atomic.Bool

	mu      sync.Mutex
	pending *PendingLinkRequest
}

// New crea el coordinador.
func New(d Deps) *Coordinator {
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Coordinator{
		client:  d.Client,
		machine: d.Machine,
		prefs:   d.Prefs,
		nonces:  d.Nonces,
		now:     d.Now,
	}
}

func (c *Coordinator) log(ctx context.Context, op string) *zap.Logger {
	return logger.From(ctx).With(logger.Layer("core"), logger.Component("signin"), logger.Op(op))
}

// acquire toma el single-flight. release debe llamarse siempre.
func (c *Coordinator) acquire() (release func(), err error) {
	if !c.busy.CompareAndSwap(false, true) {
		return nil, autherr.ErrSignInAlreadyInProgress
	}
	return func() { c.busy.Store(false) }, nil
}

// acquireCompletion serializa las completaciones de link, aparte de busy.
func (c *Coordinator) acquireCompletion() (release func(), err error) {
	if !c.completing.CompareAndSwap(false, true) {
		return nil, autherr.ErrSignInAlreadyInProgress
	}
	return func() { c.completing.Store(false) }, nil
}

// InProgress indica si hay un ingreso en curso.
func (c *Coordinator) InProgress() bool { return c.busy.Load() }

// SignInAnonymously abre una sesión anónima.
func (c *Coordinator) SignInAnonymously(ctx context.Context) (s session.Session, err error) {
	release, err := c.acquire()
	if err != nil {
		return session.Session{}, err
	}
	defer release()
	start := c.now()
	defer func() { metrics.ObserveFlow("anonymous", start, err) }()

	u, err := c.client.SignInAnonymously(ctx)
	if err != nil {
		c.log(ctx, "sign_in_anonymously").Warn("anonymous sign-in failed", logger.Err(err))
		return session.Session{}, identity.Translate(err)
	}
	c.log(ctx, "sign_in_anonymously").Info("signed in anonymously", logger.UID(u.UID))
	return u.Session(), nil
}

// SignOut cierra la sesión en el provider. El estado sigue por el listener.
func (c *Coordinator) SignOut(ctx context.Context) error {
	if err := c.client.SignOut(ctx); err != nil {
		c.log(ctx, "sign_out").Warn("sign-out failed", logger.Err(err))
		return identity.Translate(err)
	}
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
	return nil
}

// BeginEmailEntry muestra el formulario de email.
func (c *Coordinator) BeginEmailEntry() (session.AuthState, error) {
	return c.machine.Request(session.Transition{To: session.AwaitingEmailEntry})
}

// CancelEmailEntry vuelve de AwaitingEmailEntry a SignedOut.
func (c *Coordinator) CancelEmailEntry() (session.AuthState, error) {
	if c.machine.Current().Kind != session.AwaitingEmailEntry {
		return c.machine.Current(), autherr.ErrInvalidTransition.WithDetail("not awaiting email entry")
	}
	return c.machine.Request(session.Transition{To: session.SignedOut})
}

// LastEmail devuelve el último email usado para pedir un link ("" si no hay).
func (c *Coordinator) LastEmail(ctx context.Context) (string, error) {
	if c.prefs == nil {
		return "", nil
	}
	return prefs.LastEmail(ctx, c.prefs)
}

// PendingLink devuelve una copia del pedido de link vigente.
func (c *Coordinator) PendingLink() (PendingLinkRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return PendingLinkRequest{}, false
	}
	return *c.pending, true
}

// backfillDisplayName propaga name si la sesión no tiene nombre. Un fallo se
// loguea y no afecta el ingreso.
func (c *Coordinator) backfillDisplayName(ctx context.Context, s *session.Session, name string) {
	name = strings.TrimSpace(name)
	if s.DisplayName != "" || name == "" {
		return
	}
	if err := c.client.UpdateDisplayName(ctx, name); err != nil {
		c.log(ctx, "backfill_display_name").Warn("display name backfill failed", logger.UID(s.UID), logger.Err(err))
		return
	}
	s.DisplayName = name
}
