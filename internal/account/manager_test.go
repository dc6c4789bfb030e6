package account

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dropDatabas3/hellojohn-session/internal/autherr"
	"github.com/dropDatabas3/hellojohn-session/internal/emulator"
	"github.com/dropDatabas3/hellojohn-session/internal/identity"
	"github.com/dropDatabas3/hellojohn-session/internal/listener"
	"github.com/dropDatabas3/hellojohn-session/internal/notify"
	"github.com/dropDatabas3/hellojohn-session/internal/reauth"
	"github.com/dropDatabas3/hellojohn-session/internal/session"
	"github.com/dropDatabas3/hellojohn-session/internal/signin"
	"github.com/stretchr/testify/require"
)

var julie = emulator.PlatformIdentity{Subject: "001234.apple", Email: "julie@example.com", GivenName: "Julie"}

// recorder registra el orden de llamadas y el estado al momento del delete.
type recorder struct {
	identity.Client
	machine *session.Machine

	mu            sync.Mutex
	calls         []string
	stateAtDelete session.StateKind

	challenge   func(ctx context.Context, digest string) (identity.Challenge, error)
	afterReauth func()
}

func (r *recorder) record(op string) {
	r.mu.Lock()
	r.calls = append(r.calls, op)
	r.mu.Unlock()
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) count(op string) int {
	n := 0
	for _, c := range r.Calls() {
		if c == op {
			n++
		}
	}
	return n
}

func (r *recorder) FetchProvidersForEmail(ctx context.Context, email string) (identity.ProviderSet, error) {
	r.record("fetch_providers")
	return r.Client.FetchProvidersForEmail(ctx, email)
}

func (r *recorder) BeginCredentialChallenge(ctx context.Context, digest string) (identity.Challenge, error) {
	r.record("challenge")
	if r.challenge != nil {
		return r.challenge(ctx, digest)
	}
	return r.Client.BeginCredentialChallenge(ctx, digest)
}

func (r *recorder) Reauthenticate(ctx context.Context, p identity.ReauthProof) error {
	r.record("reauthenticate")
	if err := r.Client.Reauthenticate(ctx, p); err != nil {
		return err
	}
	if r.afterReauth != nil {
		r.afterReauth()
	}
	return nil
}

func (r *recorder) DeleteAccount(ctx context.Context) error {
	r.mu.Lock()
	r.calls = append(r.calls, "delete")
	r.stateAtDelete = r.machine.Current().Kind
	r.mu.Unlock()
	return r.Client.DeleteAccount(ctx)
}

type fixture struct {
	e        *emulator.Emulator
	m        *session.Machine
	rec      *recorder
	signin   *signin.Coordinator
	reauth   *reauth.Coordinator
	mgr      *Manager
	farewell *notify.Channel
}

func newFixture(t *testing.T) *fixture {
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
	<-l.Ready()

	rec := &recorder{Client: e, machine: m}
	ra := reauth.New(reauth.Deps{Client: rec})
	ch := notify.NewChannel(4)
	return &fixture{
		e:        e,
		m:        m,
		rec:      rec,
		signin:   signin.New(signin.Deps{Client: rec, Machine: m}),
		reauth:   ra,
		mgr:      New(Deps{Client: rec, Machine: m, Reauth: ra, Notifier: ch}),
		farewell: ch,
	}
}

func (f *fixture) waitFor(t *testing.T, cond func(session.AuthState) bool) session.AuthState {
	t.Helper()
	require.Eventually(t, func() bool { return cond(f.m.Current()) }, 2*time.Second, 5*time.Millisecond)
	return f.m.Current()
}

func (f *fixture) signInCredential(t *testing.T) session.Session {
	t.Helper()
	s, err := f.signin.SignInWithCredential(context.Background(), signin.CredentialOptions{})
	require.NoError(t, err)
	return f.waitFor(t, func(st session.AuthState) bool {
		return st.Kind == session.SignedIn && st.Session.UID == s.UID && st.Session.DisplayName == s.DisplayName
	}).Session
}

func (f *fixture) signInLink(t *testing.T, addr string) session.Session {
	t.Helper()
	ctx := context.Background()
	_, err := f.signin.RequestEmailLink(ctx, addr)
	require.NoError(t, err)
	link, ok := f.e.LastLink(addr)
	require.True(t, ok)
	s, err := f.signin.CompleteEmailLink(ctx, link)
	require.NoError(t, err)
	return f.waitFor(t, func(st session.AuthState) bool {
		return st.Kind == session.SignedIn && st.Session.UID == s.UID && st.Session.DisplayName == s.DisplayName
	}).Session
}

func (f *fixture) farewells() int {
	return len(f.farewell.C)
}

func signedOut(st session.AuthState) bool { return st.Kind == session.SignedOut }

func TestDeleteAccount_CredentialSession(t *testing.T) {
	f := newFixture(t)
	s := f.signInCredential(t)

	st, err := f.mgr.DeleteAccount(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, Deleted, st)
	require.Equal(t, session.ReauthRequired, f.rec.stateAtDelete)

	calls := f.rec.Calls()
	require.Equal(t, "delete", calls[len(calls)-1])
	require.Contains(t, calls, "reauthenticate")

	f.waitFor(t, signedOut)
	require.Equal(t, 1, f.farewells())
	fw := <-f.farewell.C
	require.Equal(t, s.UID, fw.UID)
	require.Equal(t, notify.FarewellMessage, fw.Message)

	providers, err := f.e.FetchProvidersForEmail(context.Background(), s.Email)
	require.NoError(t, err)
	require.Empty(t, providers)
}

func TestDeleteAccount_ReauthFailureNeverDeletes(t *testing.T) {
	f := newFixture(t)
	s := f.signInCredential(t)

	f.e.Fail(emulator.OpReauthenticate, identity.ErrDenied)
	_, err := f.mgr.DeleteAccount(context.Background(), s)
	require.ErrorIs(t, err, autherr.ErrReauthFailed)
	require.Equal(t, autherr.KindReauthFailed, autherr.KindOf(err))

	require.Zero(t, f.rec.count("delete"))
	require.Equal(t, session.SignedIn, f.m.Current().Kind)
	require.Equal(t, s.UID, f.m.Current().Session.UID)
	require.Zero(t, f.farewells())
}

func TestDeleteAccount_ProviderDeleteFailureRestoresSignedIn(t *testing.T) {
	f := newFixture(t)
	s := f.signInCredential(t)

	f.e.Fail(emulator.OpDeleteAccount, identity.ErrDenied)
	_, err := f.mgr.DeleteAccount(context.Background(), s)
	require.ErrorIs(t, err, autherr.ErrDeletionDenied)
	require.Equal(t, session.SignedIn, f.m.Current().Kind)
	require.Zero(t, f.farewells())

	providers, err := f.e.FetchProvidersForEmail(context.Background(), s.Email)
	require.NoError(t, err)
	require.True(t, providers.Has(identity.ProviderApple))

	f.e.Fail(emulator.OpDeleteAccount, identity.ErrNetwork)
	_, err = f.mgr.DeleteAccount(context.Background(), s)
	require.Equal(t, autherr.KindTransport, autherr.KindOf(err))
	require.Equal(t, session.SignedIn, f.m.Current().Kind)
}

func TestDeleteAccount_AnonymousSkipsReauth(t *testing.T) {
	f := newFixture(t)
	s, err := f.signin.SignInAnonymously(context.Background())
	require.NoError(t, err)
	f.waitFor(t, func(st session.AuthState) bool { return st.Session.UID == s.UID })

	st, err := f.mgr.DeleteAccount(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, Deleted, st)
	require.Equal(t, []string{"delete"}, f.rec.Calls())
	require.Equal(t, session.SignedIn, f.rec.stateAtDelete)

	f.waitFor(t, signedOut)
	require.Equal(t, 1, f.farewells())
}

func TestDeleteAccount_EmailLinkSession(t *testing.T) {
	f := newFixture(t)
	s := f.signInLink(t, "anna@example.com")
	ctx := context.Background()

	st, err := f.mgr.DeleteAccount(ctx, s)
	require.NoError(t, err)
	require.Equal(t, AwaitingLink, st)
	require.Equal(t, session.ReauthRequired, f.m.Current().Kind)
	require.True(t, f.mgr.HasPendingDeletion())
	require.Zero(t, f.rec.count("delete"))

	link, ok := f.e.LastLink("anna@example.com")
	require.True(t, ok)
	require.NoError(t, f.mgr.CompleteDeletion(ctx, link))
	require.Equal(t, session.ReauthRequired, f.rec.stateAtDelete)
	f.waitFor(t, signedOut)
	require.Equal(t, 1, f.farewells())
	require.False(t, f.mgr.HasPendingDeletion())
}

func TestCompleteDeletion_BadLinkKeepsReauthRequired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.signin.RequestEmailLink(ctx, "anna@example.com")
	require.NoError(t, err)
	signInLink, _ := f.e.LastLink("anna@example.com")
	s, err := f.signin.CompleteEmailLink(ctx, signInLink)
	require.NoError(t, err)
	f.waitFor(t, func(st session.AuthState) bool { return st.Session.UID == s.UID && st.Session.DisplayName == "Anna" })
	s = f.m.Current().Session

	st, err := f.mgr.DeleteAccount(ctx, s)
	require.NoError(t, err)
	require.Equal(t, AwaitingLink, st)

	// link ya usado para ingresar
	err = f.mgr.CompleteDeletion(ctx, signInLink)
	require.ErrorIs(t, err, autherr.ErrReauthFailed)
	require.ErrorIs(t, err, autherr.ErrLinkAlreadyConsumed)
	require.Equal(t, session.ReauthRequired, f.m.Current().Kind)

	// link desconocido
	err = f.mgr.CompleteDeletion(ctx, "http://localhost:8085/__/auth/links?mode=signIn&oobCode=bogus")
	require.ErrorIs(t, err, autherr.ErrReauthFailed)
	require.Equal(t, session.ReauthRequired, f.m.Current().Kind)
	require.Zero(t, f.rec.count("delete"))

	cur, err := f.mgr.CancelDeletion(ctx)
	require.NoError(t, err)
	require.Equal(t, session.SignedIn, cur.Kind)
	require.False(t, f.mgr.HasPendingDeletion())

	// el link de verificación llegó tarde
	late, _ := f.e.LastLink("anna@example.com")
	err = f.mgr.CompleteDeletion(ctx, late)
	require.ErrorIs(t, err, autherr.ErrNoPendingLink)
	require.Zero(t, f.farewells())
}

func TestDeleteAccount_StaleCredentialCompletionDiscarded(t *testing.T) {
	f := newFixture(t)
	s := f.signInCredential(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.rec.challenge = func(ctx context.Context, digest string) (identity.Challenge, error) {
		once.Do(func() { close(entered) })
		<-release
		return f.e.BeginCredentialChallenge(ctx, digest)
	}

	var (
		wg  sync.WaitGroup
		err error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err = f.mgr.DeleteAccount(context.Background(), s)
	}()
	<-entered
	require.Equal(t, session.ReauthRequired, f.m.Current().Kind)

	cur, cerr := f.mgr.CancelDeletion(context.Background())
	require.NoError(t, cerr)
	require.Equal(t, session.SignedIn, cur.Kind)

	close(release)
	wg.Wait()
	require.ErrorIs(t, err, autherr.ErrStaleCompletion)
	require.Zero(t, f.rec.count("reauthenticate"))
	require.Zero(t, f.rec.count("delete"))
	require.Equal(t, session.SignedIn, f.m.Current().Kind)
}

func TestDeleteAccount_UsesMachineSessionNotCallerCopy(t *testing.T) {
	f := newFixture(t)
	s := f.signInCredential(t)

	// copia del caller marcada como anónima: no debe saltear la reautenticación
	forged := s
	forged.IsAnonymous = true

	st, err := f.mgr.DeleteAccount(context.Background(), forged)
	require.NoError(t, err)
	require.Equal(t, Deleted, st)
	require.Equal(t, session.ReauthRequired, f.rec.stateAtDelete)

	calls := f.rec.Calls()
	reauthAt, deleteAt := -1, -1
	for i, c := range calls {
		switch c {
		case "reauthenticate":
			reauthAt = i
		case "delete":
			deleteAt = i
		}
	}
	require.NotEqual(t, -1, reauthAt)
	require.Less(t, reauthAt, deleteAt)

	f.waitFor(t, signedOut)
	require.Equal(t, 1, f.farewells())
}

func TestDeleteAccount_SessionChangedAfterReauthNeverDeletes(t *testing.T) {
	f := newFixture(t)
	s := f.signInCredential(t)

	// la sesión sale de ReauthRequired entre la verificación y el borrado
	f.rec.afterReauth = func() {
		_, err := f.m.Request(session.Transition{To: session.SignedIn, UID: s.UID})
		require.NoError(t, err)
	}

	_, err := f.mgr.DeleteAccount(context.Background(), s)
	require.ErrorIs(t, err, autherr.ErrStaleCompletion)
	require.Equal(t, 1, f.rec.count("reauthenticate"))
	require.Zero(t, f.rec.count("delete"))
	require.Equal(t, session.SignedIn, f.m.Current().Kind)
	require.Zero(t, f.farewells())
}

func TestDeleteAccount_RequiresCurrentSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.DeleteAccount(context.Background(), session.Session{UID: "ghost"})
	require.ErrorIs(t, err, autherr.ErrNotSignedIn)

	_, err = f.mgr.CancelDeletion(context.Background())
	require.ErrorIs(t, err, autherr.ErrInvalidTransition)
}

func TestReauth_SingleFlight(t *testing.T) {
	f := newFixture(t)
	s := f.signInCredential(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var n atomic.Int32
	f.rec.challenge = func(ctx context.Context, digest string) (identity.Challenge, error) {
		if n.Add(1) == 1 {
			close(entered)
		}
		<-release
		return f.e.BeginCredentialChallenge(ctx, digest)
	}
	done := make(chan error, 1)
	go func() {
		_, err := f.reauth.Begin(context.Background(), s)
		done <- err
	}()
	<-entered
	_, err := f.reauth.Begin(context.Background(), s)
	require.ErrorIs(t, err, autherr.ErrReauthAlreadyInProgress)
	close(release)
	require.NoError(t, <-done)
	require.Equal(t, int32(1), n.Load())
}

func TestUpdateDisplayName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.ErrorIs(t, f.mgr.UpdateDisplayName(ctx, "Julie"), autherr.ErrNotSignedIn)

	f.signInCredential(t)
	err := f.mgr.UpdateDisplayName(ctx, "   ")
	require.ErrorIs(t, err, autherr.ErrEmptyDisplayName)
	require.True(t, autherr.IsInline(err))

	require.NoError(t, f.mgr.UpdateDisplayName(ctx, "  Jules "))
	f.waitFor(t, func(st session.AuthState) bool { return st.Session.DisplayName == "Jules" })

	f.e.Fail(emulator.OpUpdateName, identity.ErrNetwork)
	require.Equal(t, autherr.KindTransport, autherr.KindOf(f.mgr.UpdateDisplayName(ctx, "X")))
}
