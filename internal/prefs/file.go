package prefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/dropDatabas3/hellojohn-session/internal/util/atomicwrite"
	"gopkg.in/yaml.v3"
)

// fileStore guarda las preferencias en un YAML chico, reescrito atómicamente
// en cada Set.
type fileStore struct {
	path string
	mu   sync.Mutex
	data map[string]string
}

// NewFile abre (o crea en el primer Set) el archivo de preferencias.
func NewFile(path string) (Store, error) {
	s := &fileStore{path: path, data: map[string]string{}}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("prefs: read %s: %w", path, err)
	}
	if len(b) > 0 {
		if err := yaml.Unmarshal(b, &s.data); err != nil {
			return nil, fmt.Errorf("prefs: parse %s: %w", path, err)
		}
		if s.data == nil {
			s.data = map[string]string{}
		}
	}
	return s, nil
}

func (s *fileStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *fileStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.data[key]
	s.data[key] = value
	if err := s.flushLocked(); err != nil {
		if had {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.flushLocked()
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) flushLocked() error {
	b, err := yaml.Marshal(s.data)
	if err != nil {
		return err
	}
	return atomicwrite.WriteFile(s.path, b, 0o600)
}
