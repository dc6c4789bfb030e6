// Package listener mantiene la suscripción al stream de cambios de sesión del
// provider y aplica cada cambio a la máquina de estados, en orden.
//
// Un error del stream no cambia el estado: se loguea, se cuenta y se sigue
// esperando. Si el provider cierra el stream, el listener se vuelve a
// suscribir con backoff exponencial.
package listener

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/dropDatabas3/hellojohn-session/internal/identity"
	"github.com/dropDatabas3/hellojohn-session/internal/metrics"
	"github.com/dropDatabas3/hellojohn-session/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-session/internal/session"
	"go.uber.org/zap"
)

// Config del listener.
type Config struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Listener corre durante toda la vida del proceso.
type Listener struct {
	client  identity.Client
	machine *session.Machine
	cfg     Config

	readyOnce sync.Once
	ready     chan struct{}
}

// New crea el listener. No se suscribe hasta Run.
func New(client identity.Client, machine *session.Machine, cfg Config) *Listener {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Listener{client: client, machine: machine, cfg: cfg, ready: make(chan struct{})}
}

// Ready se cierra cuando se aplicó el primer evento del provider (la máquina
// dejó Uninitialized).
func (l *Listener) Ready() <-chan struct{} { return l.ready }

func (l *Listener) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = l.cfg.InitialBackoff
	b.MaxInterval = l.cfg.MaxBackoff
	b.MaxElapsedTime = 0 // nunca dejar de reintentar
	b.Reset()
	return b
}

// Run se suscribe y aplica eventos hasta que ctx se cancela. Siempre retorna nil
// al cancelar.
func (l *Listener) Run(ctx context.Context) error {
	log := logger.From(ctx).With(logger.Layer("core"), logger.Component("listener"))
	b := l.newBackOff()

	for {
		stream, err := l.client.SubscribeSessionChanges(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.ListenerStreamErrors.Inc()
			log.Warn("subscribe failed", logger.Err(err))
		} else {
			if l.consume(ctx, log, stream) {
				b.Reset()
			}
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("session stream closed by provider, resubscribing")
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			wait = l.cfg.MaxBackoff
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		metrics.ListenerResubscribes.Inc()
	}
}

// consume drena el stream hasta que se cierre. Devuelve true si aplicó al
// menos un cambio; los errores no cuentan.
func (l *Listener) consume(ctx context.Context, log *zap.Logger, stream <-chan identity.Change) bool {
	got := false
	for {
		select {
		case <-ctx.Done():
			return got
		case c, ok := <-stream:
			if !ok {
				return got
			}
			if c.Err != nil {
				metrics.ListenerStreamErrors.Inc()
				log.Warn("session stream error, keeping current state", logger.Err(c.Err))
				continue
			}
			l.apply(log, c)
			got = true
		}
	}
}

func (l *Listener) apply(log *zap.Logger, c identity.Change) {
	ev := session.NoSession()
	if c.User != nil {
		ev = session.UserEvent(c.User.Session())
	}
	st, changed := l.machine.Apply(ev)
	if changed {
		log.Debug("session event applied", logger.State(st.Kind.String()), logger.UID(st.Session.UID))
	}
	l.readyOnce.Do(func() { close(l.ready) })
}
