package http

import (
	"net/http"

	"github.com/dropDatabas3/hellojohn-session/internal/signin"
	"github.com/go-chi/chi/v5"
)

type signInHandlers struct {
	signin *signin.Coordinator
}

func (h *signInHandlers) Register(r chi.Router) {
	r.Route("/v1/signin", func(r chi.Router) {
		r.Post("/credential", h.credential)
		r.Post("/email", h.email)
		r.Post("/anonymous", h.anonymous)
	})
	r.Post("/v1/signout", h.signOut)
}

type credentialRequest struct {
	DisplayName string `json:"display_name"`
}

func (h *signInHandlers) credential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	s, err := h.signin.SignInWithCredential(r.Context(), signin.CredentialOptions{DisplayName: req.DisplayName})
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, s)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (h *signInHandlers) email(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	p, err := h.signin.RequestEmailLink(r.Context(), req.Email)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, p)
}

func (h *signInHandlers) anonymous(w http.ResponseWriter, r *http.Request) {
	s, err := h.signin.SignInAnonymously(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, s)
}

func (h *signInHandlers) signOut(w http.ResponseWriter, r *http.Request) {
	if err := h.signin.SignOut(r.Context()); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
