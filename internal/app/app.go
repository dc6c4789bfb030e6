// Package app arma el proceso: config → logger → prefs → emulador → máquina
// de estados → listener → coordinadores → HTTP.
package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dropDatabas3/hellojohn-session/internal/account"
	"github.com/dropDatabas3/hellojohn-session/internal/config"
	"github.com/dropDatabas3/hellojohn-session/internal/deeplink"
	"github.com/dropDatabas3/hellojohn-session/internal/email"
	"github.com/dropDatabas3/hellojohn-session/internal/emulator"
	httpserver "github.com/dropDatabas3/hellojohn-session/internal/http"
	"github.com/dropDatabas3/hellojohn-session/internal/identity"
	"github.com/dropDatabas3/hellojohn-session/internal/listener"
	"github.com/dropDatabas3/hellojohn-session/internal/metrics"
	"github.com/dropDatabas3/hellojohn-session/internal/notify"
	"github.com/dropDatabas3/hellojohn-session/internal/observability/logger"
	"github.com/dropDatabas3/hellojohn-session/internal/prefs"
	"github.com/dropDatabas3/hellojohn-session/internal/reauth"
	"github.com/dropDatabas3/hellojohn-session/internal/session"
	"github.com/dropDatabas3/hellojohn-session/internal/signin"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// App es el contenedor de dependencias del proceso.
type App struct {
	Config *config.Config

	Prefs     prefs.Store
	Emulator  *emulator.Emulator
	Client    identity.Client
	Machine   *session.Machine
	Listener  *listener.Listener
	SignIn    *signin.Coordinator
	Reauth    *reauth.Coordinator
	Account   *account.Manager
	DeepLinks *deeplink.Dispatcher
	// Farewells recibe cada despedida emitida (la consume la UI).
	Farewells *notify.Channel
	Handler   http.Handler

	cleanup []func()
}

// New construye el grafo completo. Si algo falla, libera lo ya creado.
func New(ctx context.Context, cfg *config.Config) (a *App, err error) {
	log := logger.L().With(logger.Component("app"))
	a = &App{Config: cfg}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	a.Prefs, err = prefs.New(ctx, prefs.Config{
		Kind:          cfg.Prefs.Kind,
		Path:          cfg.Prefs.Path,
		RedisAddr:     cfg.Prefs.Redis.Addr,
		RedisPassword: cfg.Prefs.Redis.Password,
		RedisDB:       cfg.Prefs.Redis.DB,
		Prefix:        cfg.Prefs.Redis.Prefix,
	})
	if err != nil {
		return nil, err
	}
	a.cleanup = append(a.cleanup, func() { _ = a.Prefs.Close() })

	sender, err := email.New(senderConfig(cfg))
	if err != nil {
		return nil, err
	}
	templates, err := email.LoadTemplates()
	if err != nil {
		return nil, err
	}

	var (
		accounts emulator.AccountStore
		poolStat func() *pgxpool.Stat
	)
	switch strings.ToLower(cfg.Emulator.Store.Kind) {
	case "postgres", "pg":
		pg, err := emulator.NewPGAccounts(ctx, cfg.Emulator.Store.DSN, int32(cfg.Emulator.Store.MaxConns))
		if err != nil {
			return nil, err
		}
		accounts, poolStat = pg, pg.Stat
	default:
		accounts = emulator.NewMemoryAccounts()
	}

	a.Emulator, err = emulator.New(ctx, emulator.Config{
		Issuer:            cfg.Emulator.Issuer,
		Audience:          cfg.Emulator.Audience,
		SigningSecret:     cfg.Emulator.SigningSecret,
		LinkBaseURL:       cfg.Emulator.LinkBaseURL,
		LinkTTL:           cfg.Emulator.LinkTTL,
		RecentLoginWindow: cfg.Emulator.RecentLoginWindow,
		Platform: emulator.PlatformIdentity{
			Subject:   cfg.Emulator.Platform.Subject,
			Email:     cfg.Emulator.Platform.Email,
			GivenName: cfg.Emulator.Platform.GivenName,
		},
	}, emulator.Deps{Accounts: accounts, Sender: sender, Templates: templates, Prefs: a.Prefs})
	if err != nil {
		accounts.Close()
		return nil, err
	}
	a.cleanup = append(a.cleanup, a.Emulator.Close)
	a.Client = identity.Instrument(a.Emulator)

	a.Machine = session.NewMachine()
	a.Machine.OnTransition(func(from, to session.AuthState) {
		metrics.StateTransitions.WithLabelValues(to.Kind.String()).Inc()
		log.Debug("session state changed", logger.String("from", from.String()), logger.State(to.String()))
	})

	a.Listener = listener.New(a.Client, a.Machine, listener.Config{
		InitialBackoff: cfg.Listener.InitialBackoff,
		MaxBackoff:     cfg.Listener.MaxBackoff,
	})
	a.SignIn = signin.New(signin.Deps{Client: a.Client, Machine: a.Machine, Prefs: a.Prefs})
	a.Reauth = reauth.New(reauth.Deps{Client: a.Client})

	a.Farewells = notify.NewChannel(8)
	notifiers := notify.Multi{notify.Log{}, a.Farewells}
	if cfg.Farewell.Email {
		notifiers = append(notifiers, &notify.Email{Sender: sender, Templates: templates})
	}
	a.Account = account.New(account.Deps{Client: a.Client, Machine: a.Machine, Reauth: a.Reauth, Notifier: notifiers})
	a.DeepLinks = &deeplink.Dispatcher{Client: a.Client, SignIn: a.SignIn, Account: a.Account}

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		if err := metrics.Register(nil); err != nil {
			return nil, err
		}
		metricsHandler, err = httpserver.RegisterMetrics(httpserver.MetricsConfig{PoolStat: poolStat})
		if err != nil {
			return nil, err
		}
	}
	a.Handler = httpserver.NewRouter(httpserver.Deps{
		Machine:   a.Machine,
		SignIn:    a.SignIn,
		Account:   a.Account,
		DeepLinks: a.DeepLinks,
		Metrics:   metricsHandler,
	})

	log.Info("app wired",
		logger.String("prefs", cfg.Prefs.Kind),
		logger.String("store", cfg.Emulator.Store.Kind),
		logger.Bool("smtp", cfg.SMTP.Enabled),
	)
	return a, nil
}

func senderConfig(cfg *config.Config) email.Config {
	if !cfg.SMTP.Enabled {
		return email.Config{Kind: "log"}
	}
	return email.Config{
		Kind:               "smtp",
		Host:               cfg.SMTP.Host,
		Port:               cfg.SMTP.Port,
		From:               cfg.SMTP.From,
		Username:           cfg.SMTP.Username,
		Password:           cfg.SMTP.Password,
		TLSMode:            cfg.SMTP.TLS,
		InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
	}
}

// Start arranca el listener y espera el primer evento del provider. Con
// SignOutOnLaunch cierra la sesión restaurada antes de devolver.
func (a *App) Start(ctx context.Context, g *errgroup.Group) error {
	g.Go(func() error { return a.Listener.Run(ctx) })

	select {
	case <-a.Listener.Ready():
	case <-ctx.Done():
		return ctx.Err()
	}
	if a.Config.Session.SignOutOnLaunch && a.Machine.Current().HasSession() {
		logger.L().Info("signing out restored session on launch", logger.Component("app"))
		if err := a.SignIn.SignOut(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run arranca listener y servidor HTTP y bloquea hasta que ctx se cancela o
// alguno falla.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if err := a.Start(gctx, g); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	srv := httpserver.NewServer(a.Config.Server.Addr, a.Handler)
	g.Go(func() error { return srv.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Close libera recursos en orden inverso de creación. Idempotente.
func (a *App) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
}
