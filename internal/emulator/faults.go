package emulator

import "github.com/dropDatabas3/hellojohn-session/internal/identity"

// Op nombra una operación del emulador para inyección de fallas.
type Op string

const (
	OpSubscribe      Op = "subscribe"
	OpChallenge      Op = "credential_challenge"
	OpExchange       Op = "exchange_credential"
	OpAnonymous      Op = "sign_in_anonymously"
	OpSendLink       Op = "send_link"
	OpCompleteLink   Op = "complete_link"
	OpFetchProviders Op = "fetch_providers"
	OpReauthenticate Op = "reauthenticate"
	OpDeleteAccount  Op = "delete_account"
	OpUpdateName     Op = "update_display_name"
	OpSignOut        Op = "sign_out"
)

// Fail hace que la próxima llamada a op falle con err.
func (e *Emulator) Fail(op Op, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faults[op] = append(e.faults[op], err)
}

// takeFault consume la próxima falla de op. Requiere e.mu.
func (e *Emulator) takeFault(op Op) error {
	q := e.faults[op]
	if len(q) == 0 {
		return nil
	}
	err := q[0]
	if len(q) == 1 {
		delete(e.faults, op)
	} else {
		e.faults[op] = q[1:]
	}
	return err
}

// BreakStream entrega err a todos los suscriptores sin cerrar el stream.
func (e *Emulator) BreakStream(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcastLocked(identity.Change{Err: err})
}

// DropSubscribers cierra todos los streams abiertos, como si el provider
// cortara la conexión.
func (e *Emulator) DropSubscribers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
}
