package emulator

import (
	"fmt"
	"time"

	"github.com/dropDatabas3/hellojohn-session/internal/security/nonce"
	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// idClaims son los claims del identity token que emite la "plataforma".
type idClaims struct {
	Email string `json:"email,omitempty"`
	Nonce string `json:"nonce"`
	jwtv5.RegisteredClaims
}

type tokenIssuer struct {
	issuer   string
	audience string
	secret   []byte
	now      func() time.Time
}

func (t tokenIssuer) sign(p PlatformIdentity, nonceDigest string) (string, error) {
	now := t.now()
	c := idClaims{
		Email: p.Email,
		Nonce: nonceDigest,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   p.Subject,
			Audience:  jwtv5.ClaimStrings{t.audience},
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(challengeTTL)),
		},
	}
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, c).SignedString(t.secret)
}

// verify valida firma, issuer, audience y vencimiento, y que rawNonce sea el
// origen del claim nonce.
func (t tokenIssuer) verify(tok, rawNonce string) (*idClaims, error) {
	claims := &idClaims{}
	_, err := jwtv5.ParseWithClaims(tok, claims,
		func(*jwtv5.Token) (any, error) { return t.secret, nil },
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithIssuer(t.issuer),
		jwtv5.WithAudience(t.audience),
		jwtv5.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	if !nonce.Verify(rawNonce, claims.Nonce) {
		return nil, fmt.Errorf("nonce does not match token")
	}
	return claims, nil
}
