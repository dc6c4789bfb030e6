package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/dropDatabas3/hellojohn-session/internal/autherr"
	"github.com/dropDatabas3/hellojohn-session/internal/observability/logger"
)

var (
	errInvalidJSON = &autherr.Error{Kind: autherr.KindValidation, Code: "invalid_json", Message: "request body is not valid JSON"}
	errInternal    = &autherr.Error{Kind: autherr.KindTransport, Code: "internal_error", Message: "internal server error"}
)

type apiError struct {
	Kind      autherr.Kind `json:"kind"`
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Detail    string       `json:"detail,omitempty"`
	Inline    bool         `json:"inline,omitempty"`
	RequestID string       `json:"request_id,omitempty"`
}

// StatusFor mapea el Kind del error al status HTTP.
func StatusFor(kind autherr.Kind) int {
	switch kind {
	case autherr.KindValidation:
		return http.StatusBadRequest
	case autherr.KindCredential, autherr.KindReauthFailed:
		return http.StatusUnauthorized
	case autherr.KindDeletionDenied:
		return http.StatusForbidden
	case autherr.KindProviderConflict, autherr.KindBusy, autherr.KindState:
		return http.StatusConflict
	case autherr.KindLinkState:
		return http.StatusGone
	default:
		return http.StatusBadGateway
	}
}

// WriteError escribe err como JSON. Los errores fuera de la taxonomía se
// reportan como transporte; la causa sólo va al log.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	e := autherr.From(err)
	status := StatusFor(e.Kind)

	log := logger.From(r.Context())
	if status >= 500 {
		log.Error("request failed", logger.String("code", e.Code), logger.Err(err))
	} else {
		log.Debug("request rejected", logger.String("code", e.Code), logger.Err(err))
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{
		Kind:      e.Kind,
		Code:      e.Code,
		Message:   e.Message,
		Detail:    e.Detail,
		Inline:    autherr.IsInline(e),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// WriteJSON: respuesta JSON estándar
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ReadJSON decodifica el body de forma tolerante (no falla por campos
// desconocidos). Un body vacío es válido. Limita el tamaño a 1MB.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	ct := strings.ToLower(r.Header.Get("Content-Type"))
	if !strings.Contains(ct, "application/json") {
		WriteError(w, r, errInvalidJSON.WithDetail("Content-Type must be application/json"))
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil && err != io.EOF {
		WriteError(w, r, errInvalidJSON.WithCause(err))
		return false
	}
	return true
}
