// Package backend chooses and opens the repository.Store the process runs on.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/habit-rewards/internal/repository"
	"github.com/sakif/habit-rewards/internal/repository/memory"
	"github.com/sakif/habit-rewards/internal/repository/redis"
	"github.com/sakif/habit-rewards/internal/repository/sqlite"
)

const (
	KindAuto   = "auto"
	KindRedis  = "redis"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// ErrEphemeral is returned by Open when RequirePersistent is set and the
// configuration resolves to the in-memory store.
var ErrEphemeral = errors.New("backend: no REDIS_URL or DB_PATH configured, refusing to run against in-memory storage")

// Config selects a backend. With Kind "auto" (or empty) the first configured
// option wins: RedisURL, then DBPath, then memory.
//
// RequirePersistent rejects the memory backend. Tools that inspect or repair
// existing data set it, since an empty throwaway store would make them
// report success without touching anything.
type Config struct {
	Kind              string
	RedisURL          string
	DBPath            string
	Timeout           time.Duration
	RequirePersistent bool
}

// Resolve returns the concrete backend kind cfg selects.
func Resolve(cfg Config) (string, error) {
	switch cfg.Kind {
	case "", KindAuto:
		switch {
		case cfg.RedisURL != "":
			return KindRedis, nil
		case cfg.DBPath != "":
			return KindSQLite, nil
		default:
			return KindMemory, nil
		}
	case KindRedis:
		if cfg.RedisURL == "" {
			return "", fmt.Errorf("backend: redis selected but REDIS_URL is empty")
		}
		return KindRedis, nil
	case KindSQLite:
		if cfg.DBPath == "" {
			return "", fmt.Errorf("backend: sqlite selected but DB_PATH is empty")
		}
		return KindSQLite, nil
	case KindMemory:
		return KindMemory, nil
	default:
		return "", fmt.Errorf("backend: unknown store backend %q", cfg.Kind)
	}
}

// Open builds the store cfg selects, wrapped with the per-call timeout.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (repository.Store, error) {
	kind, err := Resolve(cfg)
	if err != nil {
		return nil, err
	}
	if kind == KindMemory && cfg.RequirePersistent {
		return nil, ErrEphemeral
	}

	var store repository.Store
	switch kind {
	case KindRedis:
		s, err := redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		store = s

	case KindSQLite:
		if cfg.DBPath != ":memory:" {
			dir := filepath.Dir(cfg.DBPath)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("backend: creating database directory %s: %w", dir, err)
			}
		}
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		store = s

	case KindMemory:
		logger.Warn("no REDIS_URL or DB_PATH configured, using in-memory storage (data is lost on exit)")
		store = memory.New()
	}

	logger.Info("store opened", slog.String("backend", kind))
	return repository.WithTimeout(store, cfg.Timeout), nil
}
