package emulator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/dropDatabas3/hellojohn-session/internal/identity"
	"github.com/dropDatabas3/hellojohn-session/migrations/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGAccounts guarda las cuentas del emulador en Postgres.
type PGAccounts struct{ pool *pgxpool.Pool }

// NewPGAccounts abre el pool y aplica las migraciones embebidas.
func NewPGAccounts(ctx context.Context, dsn string, maxConns int32) (*PGAccounts, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		pcfg.MaxConns = maxConns
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 4
	}
	pcfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("emulator: pg ping: %w", err)
	}
	s := &PGAccounts{pool: pool}
	if err := s.RunMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// RunMigrations ejecuta los *_up.sql embebidos en orden.
func (s *PGAccounts) RunMigrations(ctx context.Context) error {
	entries, err := fs.ReadDir(migrations.EmulatorFS, migrations.EmulatorDir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), "_up.sql") {
			files = append(files, migrations.EmulatorDir+"/"+e.Name())
		}
	}
	sort.Strings(files)
	for _, f := range files {
		b, err := fs.ReadFile(migrations.EmulatorFS, f)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(b)); err != nil {
			return fmt.Errorf("exec %s: %w", f, err)
		}
	}
	return nil
}

const selectAccount = `SELECT uid, email, display_name, email_verified, anonymous, apple_subject, providers, created_at
FROM emulator_account `

func scanAccount(row pgx.Row) (Account, error) {
	var (
		a         Account
		email     *string
		subject   *string
		providers []string
	)
	err := row.Scan(&a.UID, &email, &a.DisplayName, &a.EmailVerified, &a.Anonymous, &subject, &providers, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, err
	}
	if email != nil {
		a.Email = *email
	}
	if subject != nil {
		a.AppleSubject = *subject
	}
	for _, p := range providers {
		a.Providers = append(a.Providers, identity.ProviderID(p))
	}
	return a, nil
}

func (s *PGAccounts) Get(ctx context.Context, uid string) (Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, selectAccount+`WHERE uid = $1`, uid))
}

func (s *PGAccounts) ByEmail(ctx context.Context, email string) (Account, error) {
	if email == "" {
		return Account{}, ErrAccountNotFound
	}
	return scanAccount(s.pool.QueryRow(ctx, selectAccount+`WHERE lower(email) = lower($1)`, email))
}

func (s *PGAccounts) ByAppleSubject(ctx context.Context, subject string) (Account, error) {
	if subject == "" {
		return Account{}, ErrAccountNotFound
	}
	return scanAccount(s.pool.QueryRow(ctx, selectAccount+`WHERE apple_subject = $1`, subject))
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *PGAccounts) Put(ctx context.Context, a Account) error {
	providers := make([]string, 0, len(a.Providers))
	for _, p := range a.Providers {
		providers = append(providers, string(p))
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	const q = `
INSERT INTO emulator_account (uid, email, display_name, email_verified, anonymous, apple_subject, providers, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (uid) DO UPDATE SET
    email = EXCLUDED.email,
    display_name = EXCLUDED.display_name,
    email_verified = EXCLUDED.email_verified,
    anonymous = EXCLUDED.anonymous,
    apple_subject = EXCLUDED.apple_subject,
    providers = EXCLUDED.providers`
	_, err := s.pool.Exec(ctx, q, a.UID, nullable(a.Email), a.DisplayName, a.EmailVerified, a.Anonymous,
		nullable(a.AppleSubject), providers, a.CreatedAt)
	return err
}

func (s *PGAccounts) Delete(ctx context.Context, uid string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM emulator_account WHERE uid = $1`, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Close cierra el pool subyacente (idempotente).
func (s *PGAccounts) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Stat expone las estadísticas del pool para /metrics.
func (s *PGAccounts) Stat() *pgxpool.Stat { return s.pool.Stat() }
