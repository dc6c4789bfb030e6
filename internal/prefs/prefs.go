// Package prefs guarda las preferencias del dispositivo que sobreviven a un
// reinicio. Hoy es una sola: el último email usado para pedir un link, que la
// UI ofrece como default del formulario. No es dato sensible.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// LastEmailKey es la única key persistida por el core.
const LastEmailKey = "emailLogIn"

// Store es el almacenamiento de preferencias.
type Store interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// ErrNotFound indica que la key no existe.
var ErrNotFound = errors.New("prefs: key not found")

// Config elige y configura el backend.
type Config struct {
	Kind string // "file" | "redis" | "memory"

	// file
	Path string

	// redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
}

// New crea el Store según la configuración.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "file":
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, errors.New("prefs: file backend requires a path")
		}
		return NewFile(cfg.Path)
	case "redis":
		return NewRedis(ctx, cfg)
	case "memory", "":
		return NewMemory(cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("prefs: unknown kind %q", cfg.Kind)
	}
}

// LastEmail devuelve el último email usado, o "" si nunca se guardó.
func LastEmail(ctx context.Context, s Store) (string, error) {
	v, err := s.Get(ctx, LastEmailKey)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// SetLastEmail guarda el último email usado.
func SetLastEmail(ctx context.Context, s Store, email string) error {
	return s.Set(ctx, LastEmailKey, email)
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}

// noExpiration: las preferencias no vencen.
const noExpiration time.Duration = 0
