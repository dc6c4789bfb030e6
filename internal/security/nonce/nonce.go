// Package nonce genera los desafíos de un solo uso del flujo de credencial de
// plataforma. El nonce crudo se queda en el cliente; a la plataforma sólo viaja
// su digest, que vuelve embebido en el identity token.
package nonce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
)

// DefaultLength es el largo en caracteres del nonce crudo.
const DefaultLength = 32

const charset = "0123456789ABCDEFGHIJKLMNOPQRSTUVXYZabcdefghijklmnopqrstuvwxyz-._"

// Nonce es un par (crudo, digest). Raw nunca debe loguearse.
type Nonce struct {
	Raw    string
	Digest string
}

// Generator produce nonces. El cero es utilizable y lee de crypto/rand.
type Generator struct {
	// Reader permite inyectar entropía determinística en tests.
	Reader io.Reader
	Length int
}

// New genera un nonce nuevo con su digest SHA-256 en hex.
func (g Generator) New() (Nonce, error) {
	n := g.Length
	if n <= 0 {
		n = DefaultLength
	}
	raw, err := randomString(g.reader(), n)
	if err != nil {
		return Nonce{}, err
	}
	return Nonce{Raw: raw, Digest: Digest(raw)}, nil
}

func (g Generator) reader() io.Reader {
	if g.Reader != nil {
		return g.Reader
	}
	return rand.Reader
}

// Digest devuelve sha256(raw) en hexadecimal.
func Digest(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Verify chequea en tiempo constante que digest corresponda a raw.
func Verify(raw, digest string) bool {
	if raw == "" || digest == "" {
		return false
	}
	want := Digest(raw)
	return subtle.ConstantTimeCompare([]byte(want), []byte(digest)) == 1
}

// randomString usa rejection sampling para no sesgar el charset.
func randomString(r io.Reader, length int) (string, error) {
	if len(charset) > 256 {
		return "", errors.New("nonce: charset too large")
	}
	limit := 256 - (256 % len(charset))
	out := make([]byte, 0, length)
	buf := make([]byte, 16)
	for len(out) < length {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, charset[int(b)%len(charset)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
