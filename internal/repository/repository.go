// Package repository defines the key-value store every other component is
// built on.
//
// The application keeps no authoritative state in process: each request
// re-reads what it needs from the Store and writes back. Three backends
// implement the interface (see the memory, redis and sqlite subpackages) and
// all of them pass the same conformance suite in storetest.
//
// There are no transactions. The only conditional primitive is SetNX, which the
// identity resolver uses to make "first login creates the email pointer" atomic.
package repository

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = errors.New("repository: key not found")

// Store is a plain string key-value store.
type Store interface {
	// Get returns the value at key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes value at key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// SetNX writes value only if key does not exist yet.
	// It reports whether the write happened.
	SetNX(ctx context.Context, key, value string) (bool, error)

	// Del removes the given keys and returns how many existed.
	Del(ctx context.Context, keys ...string) (int, error)

	// Scan returns every key starting with prefix, sorted. An empty prefix
	// lists the whole store.
	Scan(ctx context.Context, prefix string) ([]string, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}
