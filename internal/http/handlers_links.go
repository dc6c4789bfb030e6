package http

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/hellojohn-session/internal/deeplink"
	"github.com/dropDatabas3/hellojohn-session/internal/session"
	"github.com/go-chi/chi/v5"
)

type linkHandlers struct {
	machine *session.Machine
	links   *deeplink.Dispatcher
}

func (h *linkHandlers) Register(r chi.Router) {
	r.Post("/v1/deeplinks", h.post)
	// landing de los links de ingreso que arma el emulador
	r.Get("/__/auth/links", h.landing)
}

type deepLinkRequest struct {
	URL string `json:"url"`
}

type deepLinkResponse struct {
	Handled bool          `json:"handled"`
	Flow    deeplink.Flow `json:"flow"`
	State   stateResponse `json:"state"`
}

func (h *linkHandlers) post(w http.ResponseWriter, r *http.Request) {
	var req deepLinkRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	h.dispatch(w, r, strings.TrimSpace(req.URL))
}

func (h *linkHandlers) landing(w http.ResponseWriter, r *http.Request) {
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	h.dispatch(w, r, scheme+"://"+r.Host+r.URL.RequestURI())
}

func (h *linkHandlers) dispatch(w http.ResponseWriter, r *http.Request, link string) {
	res, err := h.links.Handle(r.Context(), link)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if !res.Handled {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	WriteJSON(w, http.StatusOK, deepLinkResponse{
		Handled: true,
		Flow:    res.Flow,
		State:   newStateResponse(h.machine.Current(), h.machine.Version()),
	})
}
