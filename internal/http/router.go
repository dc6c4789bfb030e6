// Package http expone el coordinador de sesión como una API JSON local.
//
// Es la superficie que usan las pantallas: cada handler traduce el request a
// una operación de signin, account o deeplink y los errores a status HTTP a
// partir de su Kind.
package http

import (
	"net/http"

	"github.com/dropDatabas3/hellojohn-session/internal/account"
	"github.com/dropDatabas3/hellojohn-session/internal/deeplink"
	"github.com/dropDatabas3/hellojohn-session/internal/session"
	"github.com/dropDatabas3/hellojohn-session/internal/signin"
	"github.com/go-chi/chi/v5"
)

// Deps del router. Metrics es opcional.
type Deps struct {
	Machine   *session.Machine
	SignIn    *signin.Coordinator
	Account   *account.Manager
	DeepLinks *deeplink.Dispatcher
	Metrics   http.Handler
}

// NewRouter arma el router con la cadena de middlewares estándar.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(WithRequestID, WithLogging, WithRecover, WithMetrics)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	(&sessionHandlers{machine: d.Machine, signin: d.SignIn}).Register(r)
	(&signInHandlers{signin: d.SignIn}).Register(r)
	(&accountHandlers{machine: d.Machine, account: d.Account}).Register(r)
	(&linkHandlers{machine: d.Machine, links: d.DeepLinks}).Register(r)
	return r
}
