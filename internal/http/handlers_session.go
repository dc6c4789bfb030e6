package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/hellojohn-session/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-session/internal/session"
	"github.com/dropDatabas3/hellojohn-session/internal/signin"
	"github.com/go-chi/chi/v5"
)

type stateResponse struct {
	State        session.StateKind          `json:"state"`
	Session      *session.Session           `json:"session,omitempty"`
	PrivateRelay bool                       `json:"private_relay,omitempty"`
	Version      uint64                     `json:"version"`
	PendingLink  *signin.PendingLinkRequest `json:"pending_link,omitempty"`
}

func newStateResponse(st session.AuthState, version uint64) stateResponse {
	out := stateResponse{State: st.Kind, Version: version}
	if st.HasSession() {
		s := st.Session
		out.Session = &s
		out.PrivateRelay = s.PrivateRelay()
	}
	return out
}

type sessionHandlers struct {
	machine *session.Machine
	signin  *signin.Coordinator
}

func (h *sessionHandlers) Register(r chi.Router) {
	r.Get("/v1/session", h.get)
	r.Get("/v1/session/events", h.events)
	r.Post("/v1/email-entry", h.beginEmailEntry)
	r.Delete("/v1/email-entry", h.cancelEmailEntry)
	r.Get("/v1/prefs/last-email", h.lastEmail)
}

func (h *sessionHandlers) get(w http.ResponseWriter, r *http.Request) {
	out := newStateResponse(h.machine.Current(), h.machine.Version())
	if p, ok := h.signin.PendingLink(); ok {
		out.PendingLink = &p
	}
	WriteJSON(w, http.StatusOK, out)
}

// events publica cada cambio de estado como server-sent event. La suscripción
// entrega primero el estado actual.
func (h *sessionHandlers) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, r, errInternal.WithDetail("streaming unsupported"))
		return
	}
	ch, cancel := h.machine.Changes(0)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	write := func(st session.AuthState) bool {
		b, _ := json.Marshal(newStateResponse(st, h.machine.Version()))
		if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", b); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case st, ok := <-ch:
			if !ok || !write(st) {
				return
			}
		}
	}
}

func (h *sessionHandlers) beginEmailEntry(w http.ResponseWriter, r *http.Request) {
	st, err := h.signin.BeginEmailEntry()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, newStateResponse(st, h.machine.Version()))
}

func (h *sessionHandlers) cancelEmailEntry(w http.ResponseWriter, r *http.Request) {
	st, err := h.signin.CancelEmailEntry()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, newStateResponse(st, h.machine.Version()))
}

func (h *sessionHandlers) lastEmail(w http.ResponseWriter, r *http.Request) {
	email, err := h.signin.LastEmail(r.Context())
	if err != nil {
		logger.From(r.Context()).Warn("last email lookup failed", logger.Err(err))
	}
	WriteJSON(w, http.StatusOK, map[string]string{"email": email})
}
