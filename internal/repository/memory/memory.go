// Package memory implements repository.Store with a map guarded by a mutex.
//
// It is the offline fallback used when neither Redis nor a SQLite path is
// configured, and the backend most service tests run against. Contents are
// lost when the process exits.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sakif/habit-rewards/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// Store is a thread-safe in-memory key-value store.
type Store struct {
	mu    sync.RWMutex
	items map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{items: make(map[string]string)}
}

func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	if !ok {
		return "", repository.ErrKeyNotFound
	}
	return v, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
	return nil
}

func (s *Store) SetNX(_ context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[key]; exists {
		return false, nil
	}
	s.items[key] = value
	return true, nil
}

func (s *Store) Del(_ context.Context, keys ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, k := range keys {
		if _, exists := s.items[k]; exists {
			delete(s.items, k)
			n++
		}
	}
	return n, nil
}

func (s *Store) Scan(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for k := range s.items {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
