package email

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dropDatabas3/hellojohn-session/internal/observability/logger"
)

// Sender es la interfaz para enviar emails.
type Sender interface {
	// Send envía un email con contenido HTML y texto plano.
	// El destinatario recibe ambas versiones como multipart/alternative.
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// Message es un mail ya renderizado.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Config elige el Sender.
type Config struct {
	Kind               string // "smtp" | "log"
	Host               string
	Port               int
	From               string
	Username           string
	Password           string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
}

// New crea el Sender configurado. Kind vacío equivale a "log".
func New(cfg Config) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", "log":
		return &LogSender{}, nil
	case "smtp":
		if cfg.Host == "" || cfg.From == "" {
			return nil, errors.New("email: smtp requires host and from")
		}
		return FromConfig(cfg), nil
	default:
		return nil, errors.New("email: unknown sender kind " + cfg.Kind)
	}
}

// LogSender registra los mails en vez de enviarlos. Guarda el último
// mensaje por destinatario para inspección.
type LogSender struct {
	mu   sync.Mutex
	sent []Message
}

func (s *LogSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	s.mu.Lock()
	s.sent = append(s.sent, Message{To: to, Subject: subject, HTML: htmlBody, Text: textBody})
	s.mu.Unlock()

	logger.From(ctx).Info("email (log sender)",
		logger.Component("email.log"),
		logger.Email(to),
		logger.String("subject", subject),
		logger.String("body", textBody),
	)
	return nil
}

// Sent devuelve una copia de los mensajes registrados.
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.sent))
	copy(out, s.sent)
	return out
}
