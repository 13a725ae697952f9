package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/habit-rewards/internal/repository"
	"github.com/sakif/habit-rewards/internal/repository/memory"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// failingStore wraps a Store and fails the operations named in failOn.
// It stands in for a store that is down or rejecting writes.
type failingStore struct {
	repository.Store
	failOn map[string]bool
}

var errStoreDown = errors.New("connection refused")

func newFailingStore(inner repository.Store, ops ...string) *failingStore {
	f := &failingStore{Store: inner, failOn: map[string]bool{}}
	for _, op := range ops {
		f.failOn[op] = true
	}
	return f
}

func (f *failingStore) Get(ctx context.Context, key string) (string, error) {
	if f.failOn["Get"] {
		return "", errStoreDown
	}
	return f.Store.Get(ctx, key)
}

func (f *failingStore) Set(ctx context.Context, key, value string) error {
	if f.failOn["Set"] {
		return errStoreDown
	}
	return f.Store.Set(ctx, key, value)
}

func (f *failingStore) SetNX(ctx context.Context, key, value string) (bool, error) {
	if f.failOn["SetNX"] {
		return false, errStoreDown
	}
	return f.Store.SetNX(ctx, key, value)
}

func (f *failingStore) Del(ctx context.Context, keys ...string) (int, error) {
	if f.failOn["Del"] {
		return 0, errStoreDown
	}
	return f.Store.Del(ctx, keys...)
}

func (f *failingStore) Scan(ctx context.Context, prefix string) ([]string, error) {
	if f.failOn["Scan"] {
		return nil, errStoreDown
	}
	return f.Store.Scan(ctx, prefix)
}

// seed writes raw key/value pairs.
func seed(t *testing.T, store repository.Store, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		require.NoError(t, store.Set(context.Background(), k, v))
	}
}

// seedProfiles registers plain user profiles for ids.
func seedProfiles(t *testing.T, store repository.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		seed(t, store, map[string]string{"user:" + id: profileJSON(id, id+"@x.com", "user")})
	}
}

// mustGet reads key, failing the test when it is absent.
func mustGet(t *testing.T, store repository.Store, key string) string {
	t.Helper()
	v, err := store.Get(context.Background(), key)
	require.NoError(t, err, "key %s", key)
	return v
}

func assertMissing(t *testing.T, store repository.Store, key string) {
	t.Helper()
	_, err := store.Get(context.Background(), key)
	require.ErrorIs(t, err, repository.ErrKeyNotFound, "key %s should not exist", key)
}

// fixedClock pins "today" for date validation.
func fixedClock(day string) func() time.Time {
	d, err := time.Parse("2006-01-02", day)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return d.Add(12 * time.Hour) }
}

type services struct {
	store       *memory.Store
	resolver    *IdentityResolver
	catalog     *RewardCatalogService
	data        *UserDataService
	users       *UserAdminService
	maintenance *MaintenanceService
}

func newTestServices(t *testing.T) *services {
	t.Helper()
	store := memory.New()
	logger := newTestLogger()
	catalog := NewRewardCatalogService(store, logger)
	data := NewUserDataService(store, catalog, logger)
	data.now = fixedClock("2025-03-15")
	return &services{
		store:       store,
		resolver:    NewIdentityResolver(store, "Boss@Example.com", logger),
		catalog:     catalog,
		data:        data,
		users:       NewUserAdminService(store, data, logger),
		maintenance: NewMaintenanceService(store, nil, logger),
	}
}
