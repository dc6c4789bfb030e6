package identity

import (
	"context"
	"time"

	"github.com/dropDatabas3/hellojohn-session/internal/metrics"
	"github.com/dropDatabas3/hellojohn-session/internal/observability/logger"
	"golang.org/x/sync/singleflight"
)

// Instrumented envuelve un Client con logs, métricas de latencia y
// de-duplicación de FetchProvidersForEmail concurrentes para el mismo email.
// El resultado compartido no se guarda: la siguiente llamada vuelve a ir al
// provider.
type Instrumented struct {
	Client
	sf singleflight.Group
}

// Instrument devuelve c envuelto.
func Instrument(c Client) *Instrumented {
	return &Instrumented{Client: c}
}

func (i *Instrumented) observe(ctx context.Context, op string, start time.Time, err error) {
	metrics.ObserveProviderCall(op, start, err)
	if err != nil {
		logger.From(ctx).Debug("provider call failed",
			logger.Layer("provider"), logger.Op(op), logger.Duration(time.Since(start)), logger.Err(err))
	}
}

func (i *Instrumented) FetchProvidersForEmail(ctx context.Context, email string) (ProviderSet, error) {
	start := time.Now()
	v, err, shared := i.sf.Do(email, func() (interface{}, error) {
		return i.Client.FetchProvidersForEmail(ctx, email)
	})
	i.observe(ctx, "fetch_providers", start, err)
	if err != nil {
		return nil, err
	}
	set := v.(ProviderSet)
	if shared {
		set = append(ProviderSet(nil), set...)
	}
	return set, nil
}

func (i *Instrumented) BeginCredentialChallenge(ctx context.Context, nonceDigest string) (Challenge, error) {
	start := time.Now()
	ch, err := i.Client.BeginCredentialChallenge(ctx, nonceDigest)
	i.observe(ctx, "credential_challenge", start, err)
	return ch, err
}

func (i *Instrumented) ExchangeCredentialForSession(ctx context.Context, cred Credential) (User, error) {
	start := time.Now()
	u, err := i.Client.ExchangeCredentialForSession(ctx, cred)
	i.observe(ctx, "exchange_credential", start, err)
	return u, err
}

func (i *Instrumented) SignInAnonymously(ctx context.Context) (User, error) {
	start := time.Now()
	u, err := i.Client.SignInAnonymously(ctx)
	i.observe(ctx, "sign_in_anonymously", start, err)
	return u, err
}

func (i *Instrumented) SendPasswordlessLink(ctx context.Context, email string) error {
	start := time.Now()
	err := i.Client.SendPasswordlessLink(ctx, email)
	i.observe(ctx, "send_link", start, err)
	return err
}

func (i *Instrumented) CompleteLinkSignIn(ctx context.Context, email, link string) (User, error) {
	start := time.Now()
	u, err := i.Client.CompleteLinkSignIn(ctx, email, link)
	i.observe(ctx, "complete_link", start, err)
	return u, err
}

func (i *Instrumented) Reauthenticate(ctx context.Context, proof ReauthProof) error {
	start := time.Now()
	err := i.Client.Reauthenticate(ctx, proof)
	i.observe(ctx, "reauthenticate", start, err)
	return err
}

func (i *Instrumented) DeleteAccount(ctx context.Context) error {
	start := time.Now()
	err := i.Client.DeleteAccount(ctx)
	i.observe(ctx, "delete_account", start, err)
	return err
}

func (i *Instrumented) UpdateDisplayName(ctx context.Context, name string) error {
	start := time.Now()
	err := i.Client.UpdateDisplayName(ctx, name)
	i.observe(ctx, "update_display_name", start, err)
	return err
}

func (i *Instrumented) SignOut(ctx context.Context) error {
	start := time.Now()
	err := i.Client.SignOut(ctx)
	i.observe(ctx, "sign_out", start, err)
	return err
}
