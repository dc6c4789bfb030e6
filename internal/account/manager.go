// Package account maneja el ciclo de vida de la cuenta: borrado protegido por
// reautenticación, cancelación del borrado y edición del nombre.
//
// El borrado en el provider es siempre el último paso. Si falla, la sesión
// vuelve a SignedIn y la cuenta no se considera borrada.
package account

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/hellojohn-session/internal/autherr"
	"github.com/dropDatabas3/hellojohn-session/internal/identity"
	"github.com/dropDatabas3/hellojohn-session/internal/metrics"
	"github.com/dropDatabas3/hellojohn-session/internal/notify"
	"github.com/dropDatabas3/hellojohn-session/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-session/internal/reauth"
	"github.com/dropDatabas3/hellojohn-session/internal/session"
	"go.uber.org/zap"
)

// Status es el resultado de DeleteAccount.
type Status int

const (
	// Deleted: la cuenta se borró y se emitió la despedida.
	Deleted Status = iota
	// AwaitingLink: se mandó un link de verificación; el borrado sigue en
	// CompleteDeletion.
	AwaitingLink
)

func (s Status) String() string {
	if s == AwaitingLink {
		return "awaiting_link"
	}
	return "deleted"
}

// Deps del manager.
type Deps struct {
	Client   identity.Client
	Machine  *session.Machine
	Reauth   *reauth.Coordinator
	Notifier notify.Notifier
}

// Manager implementa las operaciones de cuenta.
type Manager struct {
	client   identity.Client
	machine  *session.Machine
	reauth   *reauth.Coordinator
	notifier notify.Notifier

	// un borrado a la vez
	mu sync.Mutex
}

// New crea el manager.
func New(d Deps) *Manager {
	if d.Notifier == nil {
		d.Notifier = notify.Log{}
	}
	return &Manager{client: d.Client, machine: d.Machine, reauth: d.Reauth, notifier: d.Notifier}
}

func (m *Manager) log(ctx context.Context, op string) *zap.Logger {
	return logger.From(ctx).With(logger.Layer("core"), logger.Component("account"), logger.Op(op))
}

// DeleteAccount borra la cuenta de s.
func (m *Manager) DeleteAccount(ctx context.Context, s session.Session) (st Status, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.log(ctx, "delete_account").With(logger.UID(s.UID))
	start := time.Now()
	defer func() {
		if err != nil || st == Deleted {
			metrics.ObserveFlow("delete_account", start, err)
		}
		if err != nil {
			log.Warn("account deletion failed", logger.Err(err))
		}
	}()

	cur := m.machine.Current()
	if !cur.HasSession() || cur.Session.UID != s.UID {
		return 0, autherr.ErrNotSignedIn
	}
	// la copia del caller puede estar vieja: manda la de la máquina
	s = cur.Session

	if s.IsAnonymous {
		if err := m.client.DeleteAccount(ctx); err != nil {
			return 0, deleteError(err)
		}
		if err := m.client.SignOut(ctx); err != nil {
			log.Warn("sign-out after anonymous deletion failed", logger.Err(err))
		}
		m.finish(ctx, log, s)
		return Deleted, nil
	}

	if _, err := m.machine.Request(session.Transition{To: session.ReauthRequired, UID: s.UID}); err != nil {
		return 0, err
	}

	out, err := m.reauth.Begin(ctx, s)
	if err != nil {
		m.restore(ctx, log, s.UID)
		return 0, err
	}
	if out == reauth.LinkSent {
		log.Info("deletion waiting for verification link")
		return AwaitingLink, nil
	}
	if err := m.deleteVerified(ctx, log, s); err != nil {
		return 0, err
	}
	return Deleted, nil
}

// CompleteDeletion termina un borrado que esperaba el link de verificación.
// Si el link no sirve, la sesión sigue en ReauthRequired para reintentar o
// cancelar.
func (m *Manager) CompleteDeletion(ctx context.Context, link string) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.log(ctx, "complete_deletion")
	start := time.Now()
	defer func() {
		metrics.ObserveFlow("delete_account", start, err)
		if err != nil {
			log.Warn("account deletion failed", logger.Err(err))
		}
	}()

	p, err := m.reauth.CompleteLink(ctx, link)
	if err != nil {
		return err
	}
	cur := m.machine.Current()
	if cur.Kind != session.ReauthRequired || cur.Session.UID != p.UID {
		return autherr.ErrInvalidTransition.WithDetail("session changed while waiting for verification")
	}
	return m.deleteVerified(ctx, log.With(logger.UID(p.UID)), cur.Session)
}

// HasPendingDeletion indica si hay un borrado esperando el link.
func (m *Manager) HasPendingDeletion() bool {
	_, ok := m.reauth.Pending()
	return ok
}

// CancelDeletion abandona el borrado en curso y vuelve a SignedIn.
func (m *Manager) CancelDeletion(ctx context.Context) (session.AuthState, error) {
	m.reauth.Cancel()
	cur := m.machine.Current()
	if cur.Kind != session.ReauthRequired {
		return cur, autherr.ErrInvalidTransition.WithDetail("no deletion in progress")
	}
	m.log(ctx, "cancel_deletion").Info("deletion cancelled", logger.UID(cur.Session.UID))
	return m.machine.Request(session.Transition{To: session.SignedIn, UID: cur.Session.UID})
}

// UpdateDisplayName cambia el nombre en el provider. El estado lo refleja el
// listener.
func (m *Manager) UpdateDisplayName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return autherr.ErrEmptyDisplayName
	}
	if !m.machine.Current().HasSession() {
		return autherr.ErrNotSignedIn
	}
	if err := m.client.UpdateDisplayName(ctx, name); err != nil {
		m.log(ctx, "update_display_name").Warn("display name update failed", logger.Err(err))
		return identity.Translate(err)
	}
	return nil
}

// deleteVerified corre el borrado en el provider después de una
// reautenticación exitosa.
func (m *Manager) deleteVerified(ctx context.Context, log *zap.Logger, s session.Session) error {
	if cur := m.machine.Current(); cur.Kind != session.ReauthRequired || cur.Session.UID != s.UID {
		log.Info("deletion discarded, session changed after verification", logger.State(cur.Kind.String()))
		return autherr.ErrStaleCompletion
	}
	if err := m.client.DeleteAccount(ctx); err != nil {
		m.restore(ctx, log, s.UID)
		return deleteError(err)
	}
	m.finish(ctx, log, s)
	return nil
}

// finish deja la máquina en SignedOut y emite la despedida una sola vez.
func (m *Manager) finish(ctx context.Context, log *zap.Logger, s session.Session) {
	if _, err := m.machine.Request(session.Transition{To: session.SignedOut, UID: s.UID}); err != nil {
		// el listener ya aplicó otro estado; la cuenta igual está borrada
		log.Debug("sign-out transition skipped", logger.Err(err))
	}
	log.Info("account deleted")
	if err := m.notifier.Farewell(ctx, notify.NewFarewell(s)); err != nil {
		log.Warn("farewell delivery failed", logger.Err(err))
	}
}

func (m *Manager) restore(ctx context.Context, log *zap.Logger, uid string) {
	if _, err := m.machine.Request(session.Transition{To: session.SignedIn, UID: uid}); err != nil {
		log.Debug("could not return to signed in", logger.Err(err))
	}
}

func deleteError(err error) error {
	switch {
	case errors.Is(err, identity.ErrDenied), errors.Is(err, identity.ErrNoCurrentUser):
		return autherr.ErrDeletionDenied.WithCause(err)
	}
	return identity.Translate(err)
}
