package repository

import (
	"context"
	"time"
)

// WithTimeout bounds every call on s by d. This is the only timeout the
// application applies to store calls; a zero or negative d returns s as is.
func WithTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		return s
	}
	return &timeoutStore{next: s, d: d}
}

type timeoutStore struct {
	next Store
	d    time.Duration
}

func (t *timeoutStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Get(ctx, key)
}

func (t *timeoutStore) Set(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Set(ctx, key, value)
}

func (t *timeoutStore) SetNX(ctx context.Context, key, value string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.SetNX(ctx, key, value)
}

func (t *timeoutStore) Del(ctx context.Context, keys ...string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Del(ctx, keys...)
}

func (t *timeoutStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Scan(ctx, prefix)
}

func (t *timeoutStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.next.Ping(ctx)
}

func (t *timeoutStore) Close() error {
	return t.next.Close()
}
