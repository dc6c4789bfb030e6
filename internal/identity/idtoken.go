package identity

import (
	"crypto/subtle"
	"errors"
	"fmt"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// ErrTokenNonce indica que el identity token no trae el digest esperado.
var ErrTokenNonce = errors.New("identity: token nonce does not match request")

// VerifyNonceClaim chequea que el claim "nonce" del identity token sea el
// digest del desafío. No valida la firma: eso lo hace el provider en el
// intercambio; acá sólo se evita aceptar un token emitido para otro pedido.
func VerifyNonceClaim(idToken, nonceDigest string) error {
	claims := jwtv5.MapClaims{}
	if _, _, err := jwtv5.NewParser().ParseUnverified(idToken, claims); err != nil {
		return fmt.Errorf("identity: malformed identity token: %w", err)
	}
	got, _ := claims["nonce"].(string)
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(nonceDigest)) != 1 {
		return ErrTokenNonce
	}
	return nil
}
