package http

import (
	"net/http"

	"github.com/dropDatabas3/hellojohn-session/internal/account"
	"github.com/dropDatabas3/hellojohn-session/internal/autherr"
	"github.com/dropDatabas3/hellojohn-session/internal/session"
	"github.com/go-chi/chi/v5"
)

type accountHandlers struct {
	machine *session.Machine
	account *account.Manager
}

func (h *accountHandlers) Register(r chi.Router) {
	r.Route("/v1/account", func(r chi.Router) {
		r.Put("/display-name", h.updateDisplayName)
		r.Post("/delete", h.delete)
		r.Post("/delete/cancel", h.cancelDelete)
	})
}

type displayNameRequest struct {
	Name string `json:"name"`
}

func (h *accountHandlers) updateDisplayName(w http.ResponseWriter, r *http.Request) {
	var req displayNameRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	if err := h.account.UpdateDisplayName(r.Context(), req.Name); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// delete borra la cuenta de la sesión actual. 200 si quedó borrada, 202 si
// falta abrir el link de verificación.
func (h *accountHandlers) delete(w http.ResponseWriter, r *http.Request) {
	cur := h.machine.Current()
	if !cur.HasSession() {
		WriteError(w, r, autherr.ErrNotSignedIn)
		return
	}
	st, err := h.account.DeleteAccount(r.Context(), cur.Session)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	status := http.StatusOK
	if st == account.AwaitingLink {
		status = http.StatusAccepted
	}
	WriteJSON(w, status, map[string]string{"status": st.String()})
}

func (h *accountHandlers) cancelDelete(w http.ResponseWriter, r *http.Request) {
	st, err := h.account.CancelDeletion(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, newStateResponse(st, h.machine.Version()))
}
