package emulator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/hellojohn-session/internal/identity"
)

// ErrAccountNotFound indica que la cuenta no existe.
var ErrAccountNotFound = errors.New("emulator: account not found")

// Account es una cuenta registrada en el emulador.
type Account struct {
	UID           string
	Email         string
	DisplayName   string
	EmailVerified bool
	Anonymous     bool
	AppleSubject  string
	Providers     identity.ProviderSet
	CreatedAt     time.Time
}

// User traduce la cuenta al usuario que ve el cliente.
func (a Account) User() identity.User {
	return identity.User{
		UID:           a.UID,
		Email:         a.Email,
		DisplayName:   a.DisplayName,
		EmailVerified: a.EmailVerified,
		Anonymous:     a.Anonymous,
		Providers:     append(identity.ProviderSet(nil), a.Providers...),
	}
}

func (a *Account) addProvider(p identity.ProviderID) {
	if !a.Providers.Has(p) {
		a.Providers = append(a.Providers, p)
	}
}

// AccountStore persiste las cuentas del emulador.
type AccountStore interface {
	Get(ctx context.Context, uid string) (Account, error)
	ByEmail(ctx context.Context, email string) (Account, error)
	ByAppleSubject(ctx context.Context, subject string) (Account, error)
	// Put crea o reemplaza la cuenta.
	Put(ctx context.Context, a Account) error
	Delete(ctx context.Context, uid string) error
	Close()
}

// memoryAccounts es el AccountStore por defecto.
type memoryAccounts struct {
	mu    sync.RWMutex
	byUID map[string]Account
}

// NewMemoryAccounts crea un AccountStore en memoria.
func NewMemoryAccounts() AccountStore {
	return &memoryAccounts{byUID: map[string]Account{}}
}

func (m *memoryAccounts) Get(_ context.Context, uid string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byUID[uid]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (m *memoryAccounts) find(match func(Account) bool) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.byUID {
		if match(a) {
			return a, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (m *memoryAccounts) ByEmail(_ context.Context, email string) (Account, error) {
	if email == "" {
		return Account{}, ErrAccountNotFound
	}
	return m.find(func(a Account) bool { return strings.EqualFold(a.Email, email) })
}

func (m *memoryAccounts) ByAppleSubject(_ context.Context, subject string) (Account, error) {
	if subject == "" {
		return Account{}, ErrAccountNotFound
	}
	return m.find(func(a Account) bool { return a.AppleSubject == subject })
}

func (m *memoryAccounts) Put(_ context.Context, a Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.Providers = append(identity.ProviderSet(nil), a.Providers...)
	m.byUID[a.UID] = a
	return nil
}

func (m *memoryAccounts) Delete(_ context.Context, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byUID[uid]; !ok {
		return ErrAccountNotFound
	}
	delete(m.byUID, uid)
	return nil
}

func (m *memoryAccounts) Close() {}
