// Package notify entrega el mensaje de despedida después de borrar una cuenta.
package notify

import (
	"context"
	"errors"

	"github.com/dropDatabas3/hellojohn-session/internal/email"
	"github.com/dropDatabas3/hellojohn-session/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-session/internal/session"
)

// FarewellMessage es el texto que ve el usuario al borrar su cuenta.
const FarewellMessage = "Sorry to see you go. You'll be missed."

// Farewell es una despedida lista para entregar.
type Farewell struct {
	UID     string
	Email   string
	Name    string
	Message string
}

// NewFarewell arma la despedida para s.
func NewFarewell(s session.Session) Farewell {
	return Farewell{UID: s.UID, Email: s.Email, Name: s.DisplayName, Message: FarewellMessage}
}

// Notifier entrega despedidas.
type Notifier interface {
	Farewell(ctx context.Context, f Farewell) error
}

// Log deja la despedida en el log.
type Log struct{}

func (Log) Farewell(ctx context.Context, f Farewell) error {
	logger.From(ctx).Info(f.Message,
		logger.Component("notify.log"),
		logger.UID(f.UID),
		logger.Email(f.Email),
	)
	return nil
}

// Channel publica la despedida para la UI del host. Si nadie está leyendo y
// el buffer está lleno, la despedida se descarta.
type Channel struct {
	C chan Farewell
}

// NewChannel crea un Channel con el buffer dado.
func NewChannel(buffer int) *Channel {
	return &Channel{C: make(chan Farewell, buffer)}
}

func (c *Channel) Farewell(ctx context.Context, f Farewell) error {
	select {
	case c.C <- f:
	default:
		logger.From(ctx).Warn("farewell dropped, channel full", logger.Component("notify.channel"))
	}
	return nil
}

// Email manda la despedida por mail. Sesiones sin email se ignoran.
type Email struct {
	Sender    email.Sender
	Templates *email.Templates
	Subject   string
}

func (e *Email) Farewell(ctx context.Context, f Farewell) error {
	if f.Email == "" {
		return nil
	}
	html, text, err := e.Templates.Render(email.TemplateFarewell, email.FarewellVars{Name: f.Name, Message: f.Message})
	if err != nil {
		return err
	}
	subject := e.Subject
	if subject == "" {
		subject = "Your account has been deleted"
	}
	return e.Sender.Send(ctx, f.Email, subject, html, text)
}

// Multi entrega a todos los notifiers y junta los errores.
type Multi []Notifier

func (m Multi) Farewell(ctx context.Context, f Farewell) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Farewell(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
