// Package emulator es un identity provider local que implementa
// identity.Client. Lo usan el host de desarrollo y los tests.
//
// Modela un único dispositivo: hay a lo sumo un usuario con sesión, las
// cuentas viven en un AccountStore (memoria o Postgres) y los links de
// ingreso en un cache con TTL. Los identity tokens son JWT HS256 con el
// digest del nonce en el claim "nonce".
package emulator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/hellojohn-session/internal/email"
	"github.com/dropDatabas3/hellojohn-session/internal/identity"
	"github.com/dropDatabas3/hellojohn-session/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-session/internal/prefs"
	"github.com/dropDatabas3/hellojohn-session/internal/validation"
	"github.com/google/uuid"
)

// currentUserKey guarda el uid con sesión entre reinicios cuando hay Prefs.
const currentUserKey = "emulatorCurrentUID"

// Deps del emulador. Todos opcionales.
type Deps struct {
	Accounts  AccountStore
	Sender    email.Sender
	Templates *email.Templates
	Prefs     prefs.Store
}

// Emulator implementa identity.Client.
type Emulator struct {
	cfg       Config
	tokens    tokenIssuer
	links     *linkStore
	accounts  AccountStore
	sender    email.Sender
	templates *email.Templates
	prefs     prefs.Store

	mu        sync.Mutex
	current   *Account
	lastLogin time.Time
	platform  PlatformIdentity
	subs      map[int]chan identity.Change
	nextSub   int
	faults    map[Op][]error
}

var _ identity.Client = (*Emulator)(nil)

// New crea el emulador. Si hay Prefs, restaura la sesión anterior.
func New(ctx context.Context, cfg Config, deps Deps) (*Emulator, error) {
	cfg = cfg.withDefaults()
	if deps.Accounts == nil {
		deps.Accounts = NewMemoryAccounts()
	}
	if deps.Sender == nil {
		deps.Sender = &email.LogSender{}
	}
	if deps.Templates == nil {
		t, err := email.LoadTemplates()
		if err != nil {
			return nil, err
		}
		deps.Templates = t
	}

	e := &Emulator{
		cfg: cfg,
		tokens: tokenIssuer{
			issuer:   cfg.Issuer,
			audience: cfg.Audience,
			secret:   []byte(cfg.SigningSecret),
			now:      cfg.Now,
		},
		links:     newLinkStore(cfg.LinkBaseURL, cfg.LinkTTL),
		accounts:  deps.Accounts,
		sender:    deps.Sender,
		templates: deps.Templates,
		prefs:     deps.Prefs,
		platform:  cfg.Platform,
		subs:      map[int]chan identity.Change{},
		faults:    map[Op][]error{},
	}

	if e.prefs != nil {
		uid, err := e.prefs.Get(ctx, currentUserKey)
		switch {
		case errors.Is(err, prefs.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("emulator: restore session: %w", err)
		default:
			if a, err := e.accounts.Get(ctx, uid); err == nil {
				e.current = &a
			}
		}
	}
	return e, nil
}

// Close libera el AccountStore y cierra los streams.
func (e *Emulator) Close() {
	e.DropSubscribers()
	e.accounts.Close()
}

// SetPlatformIdentity cambia quién responde el próximo pedido de credencial.
func (e *Emulator) SetPlatformIdentity(p PlatformIdentity) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.platform = p
}

// LastLink devuelve el link vigente enviado a email.
func (e *Emulator) LastLink(addr string) (string, bool) {
	return e.links.last(validation.NormalizeEmail(addr))
}

// CurrentUser devuelve el usuario con sesión.
func (e *Emulator) CurrentUser() (identity.User, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return identity.User{}, false
	}
	return e.current.User(), true
}

// setCurrentLocked cambia el usuario con sesión y publica el cambio.
func (e *Emulator) setCurrentLocked(ctx context.Context, a *Account) {
	e.current = a
	if a != nil {
		e.lastLogin = e.cfg.Now()
	}
	e.persistCurrentLocked(ctx)
	e.publishLocked()
}

func (e *Emulator) persistCurrentLocked(ctx context.Context) {
	if e.prefs == nil {
		return
	}
	var err error
	if e.current == nil {
		err = e.prefs.Delete(ctx, currentUserKey)
	} else {
		err = e.prefs.Set(ctx, currentUserKey, e.current.UID)
	}
	if err != nil {
		logger.From(ctx).Warn("emulator could not persist session", logger.Component("emulator"), logger.Err(err))
	}
}

func (e *Emulator) BeginCredentialChallenge(ctx context.Context, nonceDigest string) (identity.Challenge, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFault(OpChallenge); err != nil {
		return identity.Challenge{}, err
	}
	p := e.platform
	if p.Subject == "" {
		return identity.Challenge{}, identity.ErrNoSuchCredential
	}
	tok, err := e.tokens.sign(p, nonceDigest)
	if err != nil {
		return identity.Challenge{}, err
	}
	ch := identity.Challenge{IDToken: tok}
	// Nombre y email sólo la primera vez que el usuario autoriza la app.
	if _, err := e.accounts.ByAppleSubject(ctx, p.Subject); errors.Is(err, ErrAccountNotFound) {
		ch.GivenName = p.GivenName
		ch.Email = p.Email
	}
	return ch, nil
}

func (e *Emulator) ExchangeCredentialForSession(ctx context.Context, cred identity.Credential) (identity.User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFault(OpExchange); err != nil {
		return identity.User{}, err
	}
	if cred.ProviderID != identity.ProviderApple {
		return identity.User{}, identity.ErrNoSuchCredential
	}
	claims, err := e.tokens.verify(cred.IDToken, cred.RawNonce)
	if err != nil {
		return identity.User{}, fmt.Errorf("%w: %v", identity.ErrNoSuchCredential, err)
	}

	a, err := e.accounts.ByAppleSubject(ctx, claims.Subject)
	if errors.Is(err, ErrAccountNotFound) {
		addr := validation.NormalizeEmail(claims.Email)
		// Si ya hay cuenta con ese email, el provider la vincula.
		a, err = e.accounts.ByEmail(ctx, addr)
		if errors.Is(err, ErrAccountNotFound) {
			a, err = Account{
				UID:       uuid.NewString(),
				Email:     addr,
				CreatedAt: e.cfg.Now().UTC(),
			}, nil
		}
		a.AppleSubject = claims.Subject
		a.EmailVerified = a.Email != ""
	}
	if err != nil {
		return identity.User{}, err
	}
	a.addProvider(identity.ProviderApple)
	if err := e.accounts.Put(ctx, a); err != nil {
		return identity.User{}, err
	}
	e.setCurrentLocked(ctx, &a)
	return a.User(), nil
}

func (e *Emulator) SignInAnonymously(ctx context.Context) (identity.User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFault(OpAnonymous); err != nil {
		return identity.User{}, err
	}
	a := Account{UID: uuid.NewString(), Anonymous: true, CreatedAt: e.cfg.Now().UTC()}
	if err := e.accounts.Put(ctx, a); err != nil {
		return identity.User{}, err
	}
	e.setCurrentLocked(ctx, &a)
	return a.User(), nil
}

func (e *Emulator) SendPasswordlessLink(ctx context.Context, addr string) error {
	addr = validation.NormalizeEmail(addr)
	e.mu.Lock()
	if err := e.takeFault(OpSendLink); err != nil {
		e.mu.Unlock()
		return err
	}
	link := e.links.issue(addr, e.cfg.Now())
	e.mu.Unlock()

	html, text, err := e.templates.Render(email.TemplateSignInLink, email.SignInLinkVars{
		Email: addr,
		Link:  link,
		TTL:   e.cfg.LinkTTL.String(),
	})
	if err != nil {
		return err
	}
	if err := e.sender.Send(ctx, addr, "Sign in to hellojohn", html, text); err != nil {
		return fmt.Errorf("%w: %v", identity.ErrSendFailed, err)
	}
	return nil
}

func (e *Emulator) IsRecognizedLink(link string) bool {
	_, ok := codeFromLink(link)
	return ok
}

func (e *Emulator) CompleteLinkSignIn(ctx context.Context, addr, link string) (identity.User, error) {
	addr = validation.NormalizeEmail(addr)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFault(OpCompleteLink); err != nil {
		return identity.User{}, err
	}
	code, ok := codeFromLink(link)
	if !ok {
		return identity.User{}, identity.ErrLinkExpired
	}
	if err := e.links.consume(code, addr); err != nil {
		return identity.User{}, err
	}

	a, err := e.accounts.ByEmail(ctx, addr)
	if errors.Is(err, ErrAccountNotFound) {
		a, err = Account{UID: uuid.NewString(), Email: addr, CreatedAt: e.cfg.Now().UTC()}, nil
	}
	if err != nil {
		return identity.User{}, err
	}
	a.EmailVerified = true
	a.addProvider(identity.ProviderEmailLink)
	if err := e.accounts.Put(ctx, a); err != nil {
		return identity.User{}, err
	}
	e.setCurrentLocked(ctx, &a)
	return a.User(), nil
}

func (e *Emulator) FetchProvidersForEmail(ctx context.Context, addr string) (identity.ProviderSet, error) {
	addr = validation.NormalizeEmail(addr)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFault(OpFetchProviders); err != nil {
		return nil, err
	}
	a, err := e.accounts.ByEmail(ctx, addr)
	if errors.Is(err, ErrAccountNotFound) {
		return identity.ProviderSet{}, nil
	}
	if err != nil {
		return nil, err
	}
	return append(identity.ProviderSet(nil), a.Providers...), nil
}

// Reauthenticate renueva la marca de login reciente del usuario actual. No
// emite cambio de sesión.
func (e *Emulator) Reauthenticate(ctx context.Context, proof identity.ReauthProof) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFault(OpReauthenticate); err != nil {
		return err
	}
	if e.current == nil {
		return identity.ErrNoCurrentUser
	}

	switch {
	case proof.Credential != nil:
		claims, err := e.tokens.verify(proof.Credential.IDToken, proof.Credential.RawNonce)
		if err != nil {
			return fmt.Errorf("%w: %v", identity.ErrNoSuchCredential, err)
		}
		if claims.Subject != e.current.AppleSubject {
			return identity.ErrDenied
		}
	case proof.Link != "":
		addr := validation.NormalizeEmail(proof.Email)
		if !strings.EqualFold(addr, e.current.Email) {
			return identity.ErrLinkMismatch
		}
		code, ok := codeFromLink(proof.Link)
		if !ok {
			return identity.ErrLinkExpired
		}
		if err := e.links.consume(code, addr); err != nil {
			return err
		}
	default:
		return identity.ErrNoSuchCredential
	}
	e.lastLogin = e.cfg.Now()
	return nil
}

// DeleteAccount borra la cuenta actual. Las cuentas no anónimas necesitan un
// login o reauth dentro de RecentLoginWindow.
func (e *Emulator) DeleteAccount(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFault(OpDeleteAccount); err != nil {
		return err
	}
	if e.current == nil {
		return identity.ErrNoCurrentUser
	}
	if !e.current.Anonymous && e.cfg.Now().Sub(e.lastLogin) > e.cfg.RecentLoginWindow {
		return identity.ErrDenied
	}
	if err := e.accounts.Delete(ctx, e.current.UID); err != nil && !errors.Is(err, ErrAccountNotFound) {
		return err
	}
	e.setCurrentLocked(ctx, nil)
	return nil
}

func (e *Emulator) UpdateDisplayName(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFault(OpUpdateName); err != nil {
		return err
	}
	if e.current == nil {
		return identity.ErrNoCurrentUser
	}
	a := *e.current
	a.DisplayName = name
	if err := e.accounts.Put(ctx, a); err != nil {
		return err
	}
	e.current = &a
	e.publishLocked()
	return nil
}

func (e *Emulator) SignOut(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFault(OpSignOut); err != nil {
		return err
	}
	e.setCurrentLocked(ctx, nil)
	return nil
}
