package emulator

import (
	"time"
)

// PlatformIdentity es el usuario que "responde" al pedido de credencial de
// plataforma. En un dispositivo real lo elige el sistema operativo.
type PlatformIdentity struct {
	Subject   string
	Email     string
	GivenName string
}

// Config del emulador.
type Config struct {
	Issuer        string
	Audience      string
	SigningSecret string

	// LinkBaseURL es donde aterrizan los links de ingreso.
	LinkBaseURL string
	LinkTTL     time.Duration

	// RecentLoginWindow es cuánto vale un login/reauth para operaciones
	// sensibles (DeleteAccount).
	RecentLoginWindow time.Duration

	// StreamBuffer es el buffer por suscriptor. Un suscriptor que lo llena se
	// desconecta.
	StreamBuffer int

	Platform PlatformIdentity

	Now func() time.Time
}

const (
	DefaultIssuer            = "https://emulator.hellojohn.local"
	DefaultAudience          = "hellojohn-session"
	DefaultLinkBaseURL       = "http://localhost:8085/__/auth/links"
	DefaultLinkTTL           = 15 * time.Minute
	DefaultRecentLoginWindow = 5 * time.Minute
	DefaultStreamBuffer      = 16

	challengeTTL = 10 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.Issuer == "" {
		c.Issuer = DefaultIssuer
	}
	if c.Audience == "" {
		c.Audience = DefaultAudience
	}
	if c.SigningSecret == "" {
		c.SigningSecret = "dev-only-emulator-secret"
	}
	if c.LinkBaseURL == "" {
		c.LinkBaseURL = DefaultLinkBaseURL
	}
	if c.LinkTTL <= 0 {
		c.LinkTTL = DefaultLinkTTL
	}
	if c.RecentLoginWindow <= 0 {
		c.RecentLoginWindow = DefaultRecentLoginWindow
	}
	if c.StreamBuffer <= 0 {
		c.StreamBuffer = DefaultStreamBuffer
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
