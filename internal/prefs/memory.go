package prefs

import (
	"context"

	gocache "github.com/patrickmn/go-cache"
)

// memoryStore implementa Store en memoria de proceso.
// Útil para desarrollo y tests; no sobrevive a reinicios.
type memoryStore struct {
	prefix string
	c      *gocache.Cache
}

// NewMemory crea un Store en memoria.
func NewMemory(prefix string) Store {
	return &memoryStore{prefix: prefix, c: gocache.New(gocache.NoExpiration, 0)}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	v, ok := m.c.Get(prefixed(m.prefix, key))
	if !ok {
		return "", ErrNotFound
	}
	s, _ := v.(string)
	return s, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	m.c.Set(prefixed(m.prefix, key), value, gocache.NoExpiration)
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.c.Delete(prefixed(m.prefix, key))
	return nil
}

func (m *memoryStore) Close() error {
	m.c.Flush()
	return nil
}
