// Package session es la única fuente de verdad del estado de autenticación.
//
// Machine guarda un AuthState y lo cambia de dos formas:
//   - Apply: eventos del identity provider (autoritativos para SignedIn/SignedOut).
//   - Request: transiciones pedidas por los flujos de UI (AwaitingEmailEntry,
//     ReauthRequired, y los cierres del flujo de borrado), guardadas con
//     compare-and-set para que nunca pisen un evento del provider.
package session

import (
	"strings"
)

// Provider es el provider primario con el que se creó la sesión.
type Provider string

const (
	ProviderNone               Provider = "none"
	ProviderHardwareCredential Provider = "hardwareCredential"
	ProviderEmailLink          Provider = "emailLink"
	ProviderAnonymous          Provider = "anonymous"
)

// Session identifica al principal autenticado. Es un valor comparable:
// se reemplaza completo en cada evento, nunca se muta por partes.
type Session struct {
	UID             string   `json:"uid"`
	Email           string   `json:"email,omitempty"`
	DisplayName     string   `json:"display_name"`
	IsEmailVerified bool     `json:"is_email_verified"`
	IsAnonymous     bool     `json:"is_anonymous"`
	PrimaryProvider Provider `json:"primary_provider"`
}

// HasEmail indica si la sesión trae email (las anónimas no).
func (s Session) HasEmail() bool { return s.Email != "" }

// PrivateRelay indica si el email es un relay oculto de Apple.
func (s Session) PrivateRelay() bool {
	return strings.HasSuffix(strings.ToLower(s.Email), "@privaterelay.appleid.com")
}

// StateKind es el tag del AuthState.
type StateKind int

const (
	Uninitialized StateKind = iota
	SignedOut
	AwaitingEmailEntry
	SignedIn
	ReauthRequired
)

func (k StateKind) String() string {
	switch k {
	case Uninitialized:
		return "uninitialized"
	case SignedOut:
		return "signed_out"
	case AwaitingEmailEntry:
		return "awaiting_email_entry"
	case SignedIn:
		return "signed_in"
	case ReauthRequired:
		return "reauth_required"
	}
	return "unknown"
}

// MarshalText hace que el kind viaje como string en JSON.
func (k StateKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// AuthState es el valor vivo de la máquina. Session sólo tiene sentido en
// SignedIn y ReauthRequired; en el resto es el valor cero.
type AuthState struct {
	Kind    StateKind `json:"state"`
	Session Session   `json:"session"`
}

// HasSession indica si el estado carga una sesión.
func (s AuthState) HasSession() bool {
	return s.Kind == SignedIn || s.Kind == ReauthRequired
}

func (s AuthState) String() string {
	if s.HasSession() {
		return s.Kind.String() + "(" + s.Session.UID + ")"
	}
	return s.Kind.String()
}

// Event es la traducción de una notificación del provider: o hay usuario
// (SignedIn=true con su Session) o no hay ninguno.
type Event struct {
	SignedIn bool
	Session  Session
}

// NoSession es el evento "el provider no tiene usuario".
func NoSession() Event { return Event{} }

// UserEvent es el evento "el provider tiene a este usuario".
func UserEvent(s Session) Event { return Event{SignedIn: true, Session: s} }

// Transition es un pedido de la UI. UID es el usuario que quien llama cree
// actual; si el estado ya no lo refleja, el pedido se rechaza.
type Transition struct {
	To  StateKind
	UID string
}
