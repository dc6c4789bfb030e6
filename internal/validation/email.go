package validation

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Email rules:
// - local part: [A-Za-z0-9._%+-], 1..32 chars.
// - exactly one "@".
// - at least one domain label ([A-Za-z0-9-]+) followed by a TLD of letters (2..64).
//
// Examples valid: a@b.co, julie.smith@example.com, x+tag@mail.example.org
// Examples invalid: a@@b.co, a@b, @b.co, "a b@c.de", 33+ chars local part.
var emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+\-]{1,32}@(?:[A-Za-z0-9\-]+\.)+[A-Za-z]{2,64}$`)

// PrivateRelayDomain es el dominio de los emails ocultos de Sign in with Apple.
const PrivateRelayDomain = "privaterelay.appleid.com"

// IsValidEmailFormat chequea la forma sintáctica del email (no su existencia).
func IsValidEmailFormat(s string) bool {
	return emailRe.MatchString(s)
}

// NormalizeEmail recorta espacios y pasa a minúsculas.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// EmailFirstName deriva un nombre visible del local part:
// lo que precede al primer "." o "@", con la primera letra en mayúscula.
//
//	EmailFirstName("julie.smith@example.com") == "Julie"
//	EmailFirstName("bob@example.com") == "Bob"
func EmailFirstName(email string) string {
	email = strings.TrimSpace(email)
	end := strings.IndexAny(email, ".@")
	if end < 0 {
		end = len(email)
	}
	name := email[:end]
	if name == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToUpper(r)) + name[size:]
}

// IsPrivateRelayEmail indica si el email es un relay de Apple.
func IsPrivateRelayEmail(email string) bool {
	return strings.HasSuffix(NormalizeEmail(email), "@"+PrivateRelayDomain)
}
