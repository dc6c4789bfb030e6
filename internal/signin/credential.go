package signin

import (
	"context"
	"errors"

	"github.com/dropDatabas3/hellojohn-session/internal/autherr"
	"github.com/dropDatabas3/hellojohn-session/internal/identity"
	"github.com/dropDatabas3/hellojohn-session/internal/metrics"
	"github.com/dropDatabas3/hellojohn-session/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-session/internal/security/nonce"
	"github.com/dropDatabas3/hellojohn-session/internal/session"
)

// AcquireCredential corre el paso de plataforma: genera el nonce, pide el
// desafío con su digest y valida la respuesta. La credencial resultante sirve
// tanto para ingresar como para reautenticar. GivenName viene vacío salvo en
// la primera autorización.
func AcquireCredential(ctx context.Context, client identity.Client, gen nonce.Generator) (identity.Credential, string, error) {
	n, err := gen.New()
	if err != nil {
		return identity.Credential{}, "", autherr.ErrTransport.WithCause(err)
	}
	ch, err := client.BeginCredentialChallenge(ctx, n.Digest)
	if err != nil {
		return identity.Credential{}, "", identity.Translate(err)
	}
	cred, err := validateChallenge(ch, n)
	if err != nil {
		return identity.Credential{}, "", err
	}
	return cred, ch.GivenName, nil
}

func validateChallenge(ch identity.Challenge, n nonce.Nonce) (identity.Credential, error) {
	if ch.IDToken == "" {
		return identity.Credential{}, autherr.ErrMissingIdentityToken
	}
	if n.Raw == "" {
		return identity.Credential{}, autherr.ErrMissingNonce
	}
	if err := identity.VerifyNonceClaim(ch.IDToken, n.Digest); err != nil {
		if errors.Is(err, identity.ErrTokenNonce) {
			return identity.Credential{}, autherr.ErrNonceMismatch.WithCause(err)
		}
		return identity.Credential{}, autherr.ErrMissingIdentityToken.WithCause(err)
	}
	return identity.Credential{
		ProviderID: identity.ProviderApple,
		IDToken:    ch.IDToken,
		RawNonce:   n.Raw,
	}, nil
}

// SignInWithCredential corre el protocolo de credencial de plataforma.
func (c *Coordinator) SignInWithCredential(ctx context.Context, opts CredentialOptions) (s session.Session, err error) {
	release, err := c.acquire()
	if err != nil {
		return session.Session{}, err
	}
	defer release()

	log := c.log(ctx, "sign_in_credential")
	start := c.now()
	defer func() {
		metrics.ObserveFlow("credential", start, err)
		if err != nil {
			log.Warn("credential sign-in failed", logger.Err(err))
		}
	}()

	cred, givenName, err := AcquireCredential(ctx, c.client, c.nonces)
	if err != nil {
		return session.Session{}, err
	}
	u, err := c.client.ExchangeCredentialForSession(ctx, cred)
	if err != nil {
		return session.Session{}, identity.Translate(err)
	}
	s = u.Session()

	name := opts.DisplayName
	if name == "" {
		name = givenName
	}
	c.backfillDisplayName(ctx, &s, name)

	log.Info("signed in with credential", logger.UID(s.UID), logger.Provider(string(s.PrimaryProvider)))
	return s, nil
}
