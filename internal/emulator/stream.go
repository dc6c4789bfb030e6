package emulator

import (
	"context"

	"github.com/dropDatabas3/hellojohn-session/internal/identity"
	"github.com/dropDatabas3/hellojohn-session/internal/observability/logger"
)

// SubscribeSessionChanges abre un stream ordenado. El primer elemento es el
// usuario actual (nil si no hay sesión).
func (e *Emulator) SubscribeSessionChanges(ctx context.Context) (<-chan identity.Change, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFault(OpSubscribe); err != nil {
		return nil, err
	}

	ch := make(chan identity.Change, e.cfg.StreamBuffer)
	ch <- e.snapshotLocked()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch

	go func() {
		<-ctx.Done()
		e.mu.Lock()
		defer e.mu.Unlock()
		if c, ok := e.subs[id]; ok {
			close(c)
			delete(e.subs, id)
		}
	}()
	return ch, nil
}

// Subscribers devuelve la cantidad de streams abiertos.
func (e *Emulator) Subscribers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

func (e *Emulator) snapshotLocked() identity.Change {
	if e.current == nil {
		return identity.Change{}
	}
	u := e.current.User()
	return identity.Change{User: &u}
}

// broadcastLocked entrega c a todos los suscriptores, en orden. Requiere e.mu.
func (e *Emulator) broadcastLocked(c identity.Change) {
	for id, ch := range e.subs {
		select {
		case ch <- c:
		default:
			logger.L().Warn("emulator subscriber too slow, dropping stream",
				logger.Component("emulator"), logger.Int("subscriber", id))
			close(ch)
			delete(e.subs, id)
		}
	}
}

func (e *Emulator) publishLocked() {
	e.broadcastLocked(e.snapshotLocked())
}
