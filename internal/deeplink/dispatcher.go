// Package deeplink decide a qué flujo pertenece un link abierto desde afuera.
//
// Si hay un borrado esperando verificación, el link es para la
// reautenticación; si no, para el ingreso por email. Un link que el provider
// no reconoce se ignora.
package deeplink

import (
	"context"

	"github.com/dropDatabas3/hellojohn-session/internal/account"
	"github.com/dropDatabas3/hellojohn-session/internal/identity"
	"github.com/dropDatabas3/hellojohn-session/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-session/internal/session"
	"github.com/dropDatabas3/hellojohn-session/internal/signin"
)

// Flow es el flujo al que se despachó el link.
type Flow string

const (
	FlowNone   Flow = ""
	FlowSignIn Flow = "sign_in"
	FlowReauth Flow = "reauth"
)

// Result describe qué pasó con el link.
type Result struct {
	Handled bool            `json:"handled"`
	Flow    Flow            `json:"flow,omitempty"`
	Session session.Session `json:"-"`
}

// Dispatcher es la entrada única de deep links.
type Dispatcher struct {
	Client  identity.Client
	SignIn  *signin.Coordinator
	Account *account.Manager
}

// Handle despacha link. Devuelve Handled=false sin error si no es nuestro.
func (d *Dispatcher) Handle(ctx context.Context, link string) (Result, error) {
	if !d.Client.IsRecognizedLink(link) {
		logger.From(ctx).Debug("ignoring foreign link", logger.Component("deeplink"))
		return Result{}, nil
	}
	if d.Account != nil && d.Account.HasPendingDeletion() {
		if err := d.Account.CompleteDeletion(ctx, link); err != nil {
			return Result{Handled: true, Flow: FlowReauth}, err
		}
		return Result{Handled: true, Flow: FlowReauth}, nil
	}
	s, err := d.SignIn.CompleteEmailLink(ctx, link)
	return Result{Handled: true, Flow: FlowSignIn, Session: s}, err
}
