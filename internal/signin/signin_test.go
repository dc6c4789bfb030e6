package signin

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/hellojohn-session/internal/autherr"
	"github.com/dropDatabas3/hellojohn-session/internal/emulator"
	"github.com/dropDatabas3/hellojohn-session/internal/identity"
	"github.com/dropDatabas3/hellojohn-session/internal/listener"
	"github.com/dropDatabas3/hellojohn-session/internal/prefs"
	"github.com/dropDatabas3/hellojohn-session/internal/session"
	"github.com/stretchr/testify/require"
)

var julie = emulator.PlatformIdentity{Subject: "001234.apple", Email: "julie.smith@example.com", GivenName: "Julie"}

type harness struct {
	e     *emulator.Emulator
	m     *session.Machine
	c     *Coordinator
	prefs prefs.Store
}

// spy cuenta llamadas y permite reemplazar operaciones puntuales.
type spy struct {
	identity.Client
	fetches   atomic.Int32
	sends     atomic.Int32
	challenge func(ctx context.Context, digest string) (identity.Challenge, error)
}

func (s *spy) FetchProvidersForEmail(ctx context.Context, email string) (identity.ProviderSet, error) {
	s.fetches.Add(1)
	return s.Client.FetchProvidersForEmail(ctx, email)
}

func (s *spy) SendPasswordlessLink(ctx context.Context, email string) error {
	s.sends.Add(1)
	return s.Client.SendPasswordlessLink(ctx, email)
}

func (s *spy) BeginCredentialChallenge(ctx context.Context, digest string) (identity.Challenge, error) {
	if s.challenge != nil {
		return s.challenge(ctx, digest)
	}
	return s.Client.BeginCredentialChallenge(ctx, digest)
}

func newHarness(t *testing.T) (*harness, *spy) {
	t.Helper()
	e, err := emulator.New(context.Background(), emulator.Config{Platform: julie}, emulator.Deps{})
	require.NoError(t, err)
	t.Cleanup(e.Close)

	m := session.NewMachine()
	l := listener.New(e, m, listener.Config{InitialBackoff: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = l.Run(ctx); close(done) }()
	t.Cleanup(func() { cancel(); <-done })
	select {
	case <-l.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("listener not ready")
	}

	sp := &spy{Client: e}
	p := prefs.NewMemory("")
	c := New(Deps{Client: sp, Machine: m, Prefs: p})
	return &harness{e: e, m: m, c: c, prefs: p}, sp
}

func (h *harness) waitFor(t *testing.T, cond func(session.AuthState) bool) session.AuthState {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.m.Current()) }, 2*time.Second, 5*time.Millisecond)
	return h.m.Current()
}

func signedInAs(uid string) func(session.AuthState) bool {
	return func(st session.AuthState) bool { return st.Kind == session.SignedIn && st.Session.UID == uid }
}

func TestSignInWithCredential_BackfillsGivenNameOnce(t *testing.T) {
	h, _ := newHarness(t)
	ctx := context.Background()

	s, err := h.c.SignInWithCredential(ctx, CredentialOptions{})
	require.NoError(t, err)
	require.Equal(t, "Julie", s.DisplayName)
	require.Equal(t, session.ProviderHardwareCredential, s.PrimaryProvider)

	st := h.waitFor(t, func(st session.AuthState) bool { return signedInAs(s.UID)(st) && st.Session.DisplayName == "Julie" })
	require.Equal(t, "julie.smith@example.com", st.Session.Email)

	require.NoError(t, h.c.SignOut(ctx))
	h.waitFor(t, func(st session.AuthState) bool { return st.Kind == session.SignedOut })

	// segunda vez: ya tiene nombre, el pedido explícito no lo pisa
	s2, err := h.c.SignInWithCredential(ctx, CredentialOptions{DisplayName: "Other"})
	require.NoError(t, err)
	require.Equal(t, s.UID, s2.UID)
	require.Equal(t, "Julie", s2.DisplayName)
}

func TestSignInWithCredential_ExplicitNameWins(t *testing.T) {
	h, _ := newHarness(t)
	s, err := h.c.SignInWithCredential(context.Background(), CredentialOptions{DisplayName: " Jules "})
	require.NoError(t, err)
	require.Equal(t, "Jules", s.DisplayName)
}

func TestSignInWithCredential_BackfillFailureIsNotFatal(t *testing.T) {
	h, _ := newHarness(t)
	h.e.Fail(emulator.OpUpdateName, errors.New("quota"))
	s, err := h.c.SignInWithCredential(context.Background(), CredentialOptions{})
	require.NoError(t, err)
	require.Empty(t, s.DisplayName)
}

func TestSignInWithCredential_SingleFlight(t *testing.T) {
	h, sp := newHarness(t)
	entered := make(chan struct{})
	unblock := make(chan struct{})
	var calls atomic.Int32
	sp.challenge = func(ctx context.Context, digest string) (identity.Challenge, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		<-unblock
		return h.e.BeginCredentialChallenge(ctx, digest)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = h.c.SignInWithCredential(context.Background(), CredentialOptions{})
	}()
	<-entered
	require.True(t, h.c.InProgress())

	_, err := h.c.SignInWithCredential(context.Background(), CredentialOptions{})
	require.ErrorIs(t, err, autherr.ErrSignInAlreadyInProgress)
	_, err = h.c.RequestEmailLink(context.Background(), "anna@example.com")
	require.ErrorIs(t, err, autherr.ErrSignInAlreadyInProgress)

	close(unblock)
	wg.Wait()
	require.NoError(t, firstErr)
	require.Equal(t, int32(1), calls.Load())
	require.False(t, h.c.InProgress())
}

func TestCompleteEmailLink_NotBlockedByCredentialSignIn(t *testing.T) {
	h, sp := newHarness(t)
	ctx := context.Background()

	p, err := h.c.RequestEmailLink(ctx, "anna@example.com")
	require.NoError(t, err)
	link, ok := h.e.LastLink(p.TargetEmail)
	require.True(t, ok)

	// credencial trabada en el desafío mientras llega el link
	entered := make(chan struct{})
	unblock := make(chan struct{})
	var once sync.Once
	sp.challenge = func(ctx context.Context, digest string) (identity.Challenge, error) {
		once.Do(func() { close(entered) })
		<-unblock
		return h.e.BeginCredentialChallenge(ctx, digest)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.c.SignInWithCredential(ctx, CredentialOptions{})
	}()
	<-entered
	require.True(t, h.c.InProgress())

	s, err := h.c.CompleteEmailLink(ctx, link)
	require.NoError(t, err)
	require.Equal(t, session.ProviderEmailLink, s.PrimaryProvider)
	got, ok := h.c.PendingLink()
	require.True(t, ok)
	require.True(t, got.Consumed)

	close(unblock)
	<-done
	require.False(t, h.c.InProgress())
}

func TestSignInWithCredential_CredentialErrors(t *testing.T) {
	h, sp := newHarness(t)
	ctx := context.Background()
	before := h.m.Version()

	sp.challenge = func(context.Context, string) (identity.Challenge, error) {
		return identity.Challenge{}, nil
	}
	_, err := h.c.SignInWithCredential(ctx, CredentialOptions{})
	require.ErrorIs(t, err, autherr.ErrMissingIdentityToken)
	require.Equal(t, autherr.KindCredential, autherr.KindOf(err))

	sp.challenge = func(ctx context.Context, _ string) (identity.Challenge, error) {
		return h.e.BeginCredentialChallenge(ctx, "digest-of-another-request")
	}
	_, err = h.c.SignInWithCredential(ctx, CredentialOptions{})
	require.ErrorIs(t, err, autherr.ErrNonceMismatch)

	sp.challenge = nil
	h.e.Fail(emulator.OpChallenge, identity.ErrNoSuchCredential)
	_, err = h.c.SignInWithCredential(ctx, CredentialOptions{})
	require.ErrorIs(t, err, autherr.ErrNoSuchCredential)

	h.e.Fail(emulator.OpExchange, identity.ErrNetwork)
	_, err = h.c.SignInWithCredential(ctx, CredentialOptions{})
	require.Equal(t, autherr.KindTransport, autherr.KindOf(err))

	require.Equal(t, before, h.m.Version())
	require.Equal(t, session.SignedOut, h.m.Current().Kind)
}

func TestRequestEmailLink_InvalidFormatBeforeNetwork(t *testing.T) {
	h, sp := newHarness(t)
	for _, bad := range []string{"", "a@@b.co", "a@b", "no-at-sign.com"} {
		_, err := h.c.RequestEmailLink(context.Background(), bad)
		require.ErrorIs(t, err, autherr.ErrInvalidEmailFormat, bad)
		require.True(t, autherr.IsInline(err))
	}
	require.Zero(t, sp.fetches.Load())
	require.Zero(t, sp.sends.Load())
}

func TestRequestEmailLink_ProviderConflict(t *testing.T) {
	h, sp := newHarness(t)
	ctx := context.Background()
	_, err := h.c.SignInWithCredential(ctx, CredentialOptions{})
	require.NoError(t, err)
	require.NoError(t, h.c.SignOut(ctx))

	_, err = h.c.RequestEmailLink(ctx, "Julie.Smith@example.com")
	require.ErrorIs(t, err, autherr.ErrAccountExistsWithOtherProvider)
	require.True(t, autherr.IsInline(err))
	require.Equal(t, int32(1), sp.fetches.Load())
	require.Zero(t, sp.sends.Load())
	_, ok := h.c.PendingLink()
	require.False(t, ok)
}

func TestEmailLink_CompleteAndConsume(t *testing.T) {
	h, _ := newHarness(t)
	ctx := context.Background()

	p, err := h.c.RequestEmailLink(ctx, " Anna.Lee@Example.com ")
	require.NoError(t, err)
	require.Equal(t, "anna.lee@example.com", p.TargetEmail)
	require.NotEmpty(t, p.ID)

	last, err := h.c.LastEmail(ctx)
	require.NoError(t, err)
	require.Equal(t, "anna.lee@example.com", last)

	link, ok := h.e.LastLink(p.TargetEmail)
	require.True(t, ok)

	s, handled, err := h.c.HandleIncomingLink(ctx, link)
	require.NoError(t, err)
	require.True(t, handled)
	require.Equal(t, "Anna", s.DisplayName)
	require.Equal(t, session.ProviderEmailLink, s.PrimaryProvider)
	h.waitFor(t, func(st session.AuthState) bool { return signedInAs(s.UID)(st) && st.Session.DisplayName == "Anna" })

	got, ok := h.c.PendingLink()
	require.True(t, ok)
	require.True(t, got.Consumed)

	version := h.m.Version()
	_, handled, err = h.c.HandleIncomingLink(ctx, link)
	require.True(t, handled)
	require.ErrorIs(t, err, autherr.ErrLinkAlreadyConsumed)
	require.Equal(t, autherr.KindLinkState, autherr.KindOf(err))
	require.Equal(t, version, h.m.Version())
}

func TestHandleIncomingLink_IgnoresForeignLinks(t *testing.T) {
	h, _ := newHarness(t)
	s, handled, err := h.c.HandleIncomingLink(context.Background(), "https://example.com/promo?utm=1")
	require.NoError(t, err)
	require.False(t, handled)
	require.Empty(t, s.UID)
}

func TestHandleIncomingLink_NoPendingRequest(t *testing.T) {
	h, _ := newHarness(t)
	_, handled, err := h.c.HandleIncomingLink(context.Background(), "http://localhost:8085/__/auth/links?mode=signIn&oobCode=x")
	require.True(t, handled)
	require.ErrorIs(t, err, autherr.ErrNoPendingLink)
}

func TestEmailLink_SupersededLinkExpires(t *testing.T) {
	h, _ := newHarness(t)
	ctx := context.Background()

	first, err := h.c.RequestEmailLink(ctx, "anna@example.com")
	require.NoError(t, err)
	oldLink, _ := h.e.LastLink("anna@example.com")

	second, err := h.c.RequestEmailLink(ctx, "anna@example.com")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	_, err = h.c.CompleteEmailLink(ctx, oldLink)
	require.ErrorIs(t, err, autherr.ErrLinkExpired)

	newLink, _ := h.e.LastLink("anna@example.com")
	_, err = h.c.CompleteEmailLink(ctx, newLink)
	require.NoError(t, err)
}

func TestEmailLink_MismatchedEmail(t *testing.T) {
	h, _ := newHarness(t)
	ctx := context.Background()

	_, err := h.c.RequestEmailLink(ctx, "anna@example.com")
	require.NoError(t, err)
	annaLink, _ := h.e.LastLink("anna@example.com")
	_, err = h.c.RequestEmailLink(ctx, "bob@example.com")
	require.NoError(t, err)

	_, err = h.c.CompleteEmailLink(ctx, annaLink)
	require.ErrorIs(t, err, autherr.ErrEmailMismatch)
	require.Equal(t, session.SignedOut, h.m.Current().Kind)

	p, _ := h.c.PendingLink()
	require.False(t, p.Consumed)
}

func TestRequestEmailLink_TransportError(t *testing.T) {
	h, _ := newHarness(t)
	h.e.Fail(emulator.OpSendLink, identity.ErrNetwork)
	_, err := h.c.RequestEmailLink(context.Background(), "anna@example.com")
	require.Equal(t, autherr.KindTransport, autherr.KindOf(err))
	require.False(t, autherr.IsInline(err))
	_, ok := h.c.PendingLink()
	require.False(t, ok)
}

func TestSignInAnonymously(t *testing.T) {
	h, _ := newHarness(t)
	s, err := h.c.SignInAnonymously(context.Background())
	require.NoError(t, err)
	require.True(t, s.IsAnonymous)
	h.waitFor(t, signedInAs(s.UID))
}

func TestEmailEntryTransitions(t *testing.T) {
	h, _ := newHarness(t)

	st, err := h.c.BeginEmailEntry()
	require.NoError(t, err)
	require.Equal(t, session.AwaitingEmailEntry, st.Kind)

	st, err = h.c.CancelEmailEntry()
	require.NoError(t, err)
	require.Equal(t, session.SignedOut, st.Kind)

	_, err = h.c.CancelEmailEntry()
	require.ErrorIs(t, err, autherr.ErrInvalidTransition)

	s, err := h.c.SignInAnonymously(context.Background())
	require.NoError(t, err)
	h.waitFor(t, signedInAs(s.UID))
	_, err = h.c.BeginEmailEntry()
	require.ErrorIs(t, err, autherr.ErrInvalidTransition)
}
