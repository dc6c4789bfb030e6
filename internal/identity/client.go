// Package identity define el contrato con el identity provider remoto.
//
// El core depende sólo de Client; el SDK concreto (o el emulador local) vive
// detrás. Todas las operaciones bloqueantes reciben un context y devuelven
// errores del catálogo de este paquete cuando el provider falla de una forma
// conocida.
package identity

import (
	"context"
	"errors"
	"slices"

	"github.com/dropDatabas3/hellojohn-session/internal/session"
)

// ProviderID identifica un método de sign-in registrado en el provider.
type ProviderID string

const (
	ProviderApple     ProviderID = "apple.com"
	ProviderEmailLink ProviderID = "emailLink"
)

// ProviderSet es el ProviderRecord de un email. No se cachea más allá de un flujo.
type ProviderSet []ProviderID

// Has indica si id está registrado.
func (p ProviderSet) Has(id ProviderID) bool {
	return slices.Contains(p, id)
}

// User es el usuario tal como lo informa el provider.
type User struct {
	UID           string
	Email         string
	DisplayName   string
	EmailVerified bool
	Anonymous     bool
	Providers     ProviderSet
}

// Session traduce el usuario del provider a la sesión del core.
func (u User) Session() session.Session {
	return session.Session{
		UID:             u.UID,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		IsEmailVerified: u.EmailVerified,
		IsAnonymous:     u.Anonymous,
		PrimaryProvider: u.PrimaryProvider(),
	}
}

// PrimaryProvider elige el provider primario: anónimo, luego credencial de
// plataforma, luego email link.
func (u User) PrimaryProvider() session.Provider {
	switch {
	case u.Anonymous:
		return session.ProviderAnonymous
	case u.Providers.Has(ProviderApple):
		return session.ProviderHardwareCredential
	case u.Providers.Has(ProviderEmailLink):
		return session.ProviderEmailLink
	}
	return session.ProviderNone
}

// Change es un elemento del stream de cambios de sesión: o un usuario (nil =
// sin sesión) o un error del stream.
type Change struct {
	User *User
	Err  error
}

// Credential es el resultado transitorio del paso de plataforma, listo para
// intercambiar. Nunca se persiste.
type Credential struct {
	ProviderID ProviderID
	IDToken    string
	RawNonce   string
}

// Challenge es la respuesta de la plataforma al pedido de credencial.
// GivenName sólo viene la primera vez que el usuario autoriza la app.
type Challenge struct {
	IDToken   string
	GivenName string
	Email     string
}

// ReauthProof es la prueba fresca para Reauthenticate: una credencial de
// plataforma o un par email+link.
type ReauthProof struct {
	Credential *Credential
	Email      string
	Link       string
}

// CredentialProof arma la prueba de reautenticación por credencial.
func CredentialProof(c Credential) ReauthProof { return ReauthProof{Credential: &c} }

// LinkProof arma la prueba de reautenticación por email link.
func LinkProof(email, link string) ReauthProof { return ReauthProof{Email: email, Link: link} }

// Client es el contrato del identity provider.
type Client interface {
	// SubscribeSessionChanges abre el stream ordenado de cambios. El primer
	// elemento es el usuario actual. El channel se cierra al cancelar ctx o si
	// el provider corta la suscripción.
	SubscribeSessionChanges(ctx context.Context) (<-chan Change, error)

	// BeginCredentialChallenge pide a la plataforma una credencial usando
	// nonceDigest como desafío.
	BeginCredentialChallenge(ctx context.Context, nonceDigest string) (Challenge, error)
	ExchangeCredentialForSession(ctx context.Context, cred Credential) (User, error)
	SignInAnonymously(ctx context.Context) (User, error)

	SendPasswordlessLink(ctx context.Context, email string) error
	IsRecognizedLink(link string) bool
	CompleteLinkSignIn(ctx context.Context, email, link string) (User, error)

	FetchProvidersForEmail(ctx context.Context, email string) (ProviderSet, error)
	Reauthenticate(ctx context.Context, proof ReauthProof) error
	DeleteAccount(ctx context.Context) error
	UpdateDisplayName(ctx context.Context, name string) error
	SignOut(ctx context.Context) error
}

// Errores conocidos del provider.
var (
	ErrNoSuchCredential = errors.New("identity: no such credential")
	ErrNetwork          = errors.New("identity: network error")
	ErrSendFailed       = errors.New("identity: link could not be sent")
	ErrLinkExpired      = errors.New("identity: link expired or invalid")
	ErrLinkConsumed     = errors.New("identity: link already consumed")
	ErrLinkMismatch     = errors.New("identity: link issued for another email")
	ErrDenied           = errors.New("identity: operation denied")
	ErrNoCurrentUser    = errors.New("identity: no current user")
)
