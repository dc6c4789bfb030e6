package session

import (
	"sync"

	"github.com/dropDatabas3/hellojohn-session/internal/autherr"
)

// Observer recibe las transiciones efectivas (para métricas/logs).
type Observer func(from, to AuthState)

// Machine guarda el AuthState actual. Es segura para uso concurrente.
type Machine struct {
	mu       sync.RWMutex
	state    AuthState
	version  uint64
	subs     map[uint64]*subscriber
	nextSub  uint64
	observer Observer
}

// NewMachine arranca en Uninitialized.
func NewMachine() *Machine {
	return &Machine{subs: make(map[uint64]*subscriber)}
}

// OnTransition registra un observer síncrono. Llamar antes de compartir la máquina.
func (m *Machine) OnTransition(o Observer) {
	m.mu.Lock()
	m.observer = o
	m.mu.Unlock()
}

// Next es la función pura (estado, evento) → estado.
//
//   - sin usuario → SignedOut, siempre.
//   - mismo uid mientras se reautentica → sigue ReauthRequired con la sesión fresca.
//   - cualquier otro caso con usuario → SignedIn.
func Next(cur AuthState, ev Event) AuthState {
	if !ev.SignedIn {
		return AuthState{Kind: SignedOut}
	}
	if cur.Kind == ReauthRequired && cur.Session.UID == ev.Session.UID {
		return AuthState{Kind: ReauthRequired, Session: ev.Session}
	}
	return AuthState{Kind: SignedIn, Session: ev.Session}
}

// Apply aplica un evento del provider. Devuelve el estado resultante y si
// hubo cambio; un evento duplicado no produce transición.
func (m *Machine) Apply(ev Event) (AuthState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitLocked(Next(m.state, ev))
}

// Current devuelve un snapshot del estado.
func (m *Machine) Current() AuthState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Version cuenta las transiciones efectivas desde el arranque.
func (m *Machine) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Request pide una transición de UI. Transiciones válidas:
//
//	SignedOut          → AwaitingEmailEntry
//	AwaitingEmailEntry → SignedOut
//	SignedIn           → ReauthRequired   (mismo uid)
//	ReauthRequired     → SignedIn         (mismo uid: cancelación o fallo)
//	SignedIn, ReauthRequired → SignedOut  (mismo uid: cuenta borrada)
//
// Pedir el estado en el que ya se está es un no-op sin error.
func (m *Machine) Request(t Transition) (AuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.state
	if cur.Kind == t.To && (!cur.HasSession() || cur.Session.UID == t.UID) {
		return cur, nil
	}

	var next AuthState
	switch t.To {
	case AwaitingEmailEntry:
		if cur.Kind != SignedOut {
			return cur, invalid(cur, t)
		}
		next = AuthState{Kind: AwaitingEmailEntry}
	case SignedOut:
		switch cur.Kind {
		case AwaitingEmailEntry:
		case SignedIn, ReauthRequired:
			if cur.Session.UID != t.UID {
				return cur, invalid(cur, t)
			}
		default:
			return cur, invalid(cur, t)
		}
		next = AuthState{Kind: SignedOut}
	case ReauthRequired:
		if cur.Kind != SignedIn || cur.Session.UID != t.UID {
			return cur, invalid(cur, t)
		}
		next = AuthState{Kind: ReauthRequired, Session: cur.Session}
	case SignedIn:
		if cur.Kind != ReauthRequired || cur.Session.UID != t.UID {
			return cur, invalid(cur, t)
		}
		next = AuthState{Kind: SignedIn, Session: cur.Session}
	default:
		return cur, invalid(cur, t)
	}

	st, _ := m.commitLocked(next)
	return st, nil
}

func invalid(cur AuthState, t Transition) error {
	return autherr.ErrInvalidTransition.WithDetail(cur.Kind.String() + " -> " + t.To.String())
}

// commitLocked guarda next si difiere del actual y encola la notificación
// para cada suscriptor. Requiere m.mu tomado.
func (m *Machine) commitLocked(next AuthState) (AuthState, bool) {
	if next == m.state {
		return m.state, false
	}
	prev := m.state
	m.state = next
	m.version++
	for _, s := range m.subs {
		s.enqueue(next)
	}
	if m.observer != nil {
		m.observer(prev, next)
	}
	return next, true
}
