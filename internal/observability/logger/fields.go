package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// =================================================================================
// CAMPOS DE DOMINIO - SESIÓN
// =================================================================================

// UID crea un campo para el identificador estable del usuario.
func UID(v string) zap.Field {
	return zap.String("uid", v)
}

// Provider crea un campo para el provider de identidad (apple.com, emailLink...).
func Provider(v string) zap.Field {
	return zap.String("provider", v)
}

// Flow crea un campo para el flujo en curso (credential, email_link, reauth...).
func Flow(v string) zap.Field {
	return zap.String("flow", v)
}

// State crea un campo para el estado de autenticación.
func State(v string) zap.Field {
	return zap.String("state", v)
}

// LinkID crea un campo para el id de un PendingLinkRequest.
func LinkID(v string) zap.Field {
	return zap.String("link_id", v)
}

// Email crea un campo con el email enmascarado (j***@example.com).
func Email(v string) zap.Field {
	return zap.String("email", MaskEmail(v))
}

// MaskEmail deja visible sólo la primera letra del local part y el dominio.
func MaskEmail(v string) string {
	at := strings.LastIndexByte(v, '@')
	if at <= 0 {
		if v == "" {
			return ""
		}
		return "***"
	}
	return v[:1] + "***" + v[at:]
}

// =================================================================================
// CAMPOS ESTÁNDAR - SISTEMA
// =================================================================================

// Component crea un campo para el componente/módulo.
func Component(v string) zap.Field {
	return zap.String("component", v)
}

// Op crea un campo para la operación actual.
func Op(v string) zap.Field {
	return zap.String("op", v)
}

// Layer crea un campo para la capa (core, provider, host).
func Layer(v string) zap.Field {
	return zap.String("layer", v)
}

// Duration crea un campo para la duración de una operación.
func Duration(v time.Duration) zap.Field {
	return zap.Duration("duration", v)
}

// Err crea un campo para un error.
func Err(err error) zap.Field {
	return zap.Error(err)
}

// =================================================================================
// CAMPOS HTTP
// =================================================================================

// RequestID crea un campo para el ID de request.
func RequestID(v string) zap.Field {
	return zap.String("request_id", v)
}

func Method(v string) zap.Field {
	return zap.String("method", v)
}

func Path(v string) zap.Field {
	return zap.String("path", v)
}

func Status(v int) zap.Field {
	return zap.Int("status", v)
}

// =================================================================================
// CAMPOS GENÉRICOS
// =================================================================================

// String crea un campo string genérico.
func String(key, v string) zap.Field {
	return zap.String(key, v)
}

// Int crea un campo int genérico.
func Int(key string, v int) zap.Field {
	return zap.Int(key, v)
}

// Bool crea un campo bool genérico.
func Bool(key string, v bool) zap.Field {
	return zap.Bool(key, v)
}

// Any crea un campo de cualquier tipo. Usar solo cuando no hay helper específico.
func Any(key string, v any) zap.Field {
	return zap.Any(key, v)
}
