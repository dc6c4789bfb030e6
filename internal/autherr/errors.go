// Package autherr define la taxonomía de errores de los coordinadores de sesión.
//
// Todos los coordinadores devuelven *Error (o un error que lo envuelve). La
// capa de presentación decide cómo mostrarlo a partir de Kind: los errores de
// validación y conflicto se muestran inline, el resto como notificación
// descartable.
package autherr

import (
	"errors"
	"fmt"
)

// Kind agrupa los errores por cómo debe reaccionar quien llama.
type Kind string

const (
	KindValidation       Kind = "validation"
	KindProviderConflict Kind = "provider_conflict"
	KindCredential       Kind = "credential"
	KindLinkState        Kind = "link_state"
	KindReauthFailed     Kind = "reauth_failed"
	KindDeletionDenied   Kind = "deletion_denied"
	KindTransport        Kind = "transport"
	KindBusy             Kind = "busy"
	KindState            Kind = "state"
)

// Error es el error estándar de los coordinadores.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Err     error  `json:"-"` // causa original, sólo para logs
}

// Error implementa la interfaz error
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap permite acceder a la causa
func (e *Error) Unwrap() error {
	return e.Err
}

// Is compara por Code, así errors.Is(err, ErrLinkExpired) funciona aunque el
// valor sea una copia con causa.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithCause devuelve una COPIA con la causa original.
func (e *Error) WithCause(err error) *Error {
	out := *e
	out.Err = err
	return &out
}

// WithDetail devuelve una COPIA con detalle adicional.
func (e *Error) WithDetail(detail string) *Error {
	out := *e
	out.Detail = detail
	return &out
}

// KindOf devuelve el Kind del primer *Error de la cadena, o KindTransport si
// el error no pertenece a la taxonomía.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransport
}

// IsInline indica si el error se muestra junto al campo que lo provocó.
func IsInline(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindProviderConflict:
		return true
	}
	return false
}

// From convierte un error cualquiera a *Error. Lo que no pertenece a la
// taxonomía se trata como transporte (reintentable).
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrTransport.WithCause(err)
}
