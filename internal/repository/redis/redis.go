// Package redis implements repository.Store on top of a Redis server using
// github.com/redis/go-redis/v9.
//
// Values are stored as plain Redis strings, so the keys written here can be
// inspected with redis-cli (GET user:email:alice@example.com).
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/sakif/habit-rewards/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// scanBatch is the COUNT hint passed to each SCAN call.
const scanBatch = 500

// Store wraps a go-redis client.
type Store struct {
	client *goredis.Client
}

// New wraps an existing client. The caller keeps ownership of its options;
// Close closes the client.
func New(client *goredis.Client) *Store {
	return &Store{client: client}
}

// Open parses a redis:// or rediss:// URL, connects, and pings the server so
// a bad URL fails at startup rather than on the first request.
func Open(ctx context.Context, url string) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parsing url: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: pinging %s: %w", opts.Addr, err)
	}
	return New(client), nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", repository.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis: GET %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis: SET %s: %w", key, err)
	}
	return nil
}

func (s *Store) SetNX(ctx context.Context, key, value string) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, 0).Result()
	if err != nil {
		return false, fmt.Errorf("redis: SETNX %s: %w", key, err)
	}
	return ok, nil
}

func (s *Store) Del(ctx context.Context, keys ...string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: DEL %s: %w", strings.Join(keys, " "), err)
	}
	return int(n), nil
}

// Scan walks the keyspace with SCAN (never KEYS, which blocks the server).
// SCAN may return a key more than once, so results are deduplicated.
func (s *Store) Scan(ctx context.Context, prefix string) ([]string, error) {
	match := matchPattern(prefix)
	seen := make(map[string]struct{})

	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("redis: SCAN %s: %w", match, err)
		}
		for _, k := range batch {
			if strings.HasPrefix(k, prefix) {
				seen[k] = struct{}{}
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: PING: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// matchPattern turns a literal prefix into a SCAN MATCH pattern. Prefixes
// containing glob metacharacters fall back to matching everything; Scan
// filters with strings.HasPrefix afterwards either way.
func matchPattern(prefix string) string {
	if strings.ContainsAny(prefix, `*?[]\`) {
		return "*"
	}
	return prefix + "*"
}
