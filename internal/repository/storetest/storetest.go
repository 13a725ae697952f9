// Package storetest is a conformance suite for repository.Store
// implementations. Each backend's tests call Run with a constructor that
// returns a fresh, empty store.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/habit-rewards/internal/repository"
)

// Run executes every conformance test against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) repository.Store) {
	t.Helper()

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(context.Background(), "nope")
		assert.True(t, errors.Is(err, repository.ErrKeyNotFound), "Get() error = %v, want ErrKeyNotFound", err)
	})

	t.Run("SetThenGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "user:1", `{"id":"1"}`))
		got, err := s.Get(ctx, "user:1")
		require.NoError(t, err)
		assert.Equal(t, `{"id":"1"}`, got)
	})

	t.Run("SetOverwrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "k", "one"))
		require.NoError(t, s.Set(ctx, "k", "two"))
		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "two", got)
	})

	t.Run("EmptyValue", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "k", ""))
		got, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "", got)
	})

	t.Run("SetNX", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		ok, err := s.SetNX(ctx, "user:email:a@x.com", "first")
		require.NoError(t, err)
		assert.True(t, ok, "first SetNX should write")

		ok, err = s.SetNX(ctx, "user:email:a@x.com", "second")
		require.NoError(t, err)
		assert.False(t, ok, "second SetNX should not write")

		got, err := s.Get(ctx, "user:email:a@x.com")
		require.NoError(t, err)
		assert.Equal(t, "first", got)
	})

	t.Run("DelCountsExisting", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "a", "1"))
		require.NoError(t, s.Set(ctx, "b", "2"))

		n, err := s.Del(ctx, "a", "b", "missing")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.Del(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		_, err = s.Get(ctx, "a")
		assert.True(t, errors.Is(err, repository.ErrKeyNotFound))
	})

	t.Run("DelNoKeys", func(t *testing.T) {
		s := newStore(t)
		n, err := s.Del(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("ScanPrefixSorted", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, k := range []string{"userData:2", "user:b", "user:email:x@y.z", "user:a", "userData", "rewards:catalog"} {
			require.NoError(t, s.Set(ctx, k, "v"))
		}

		got, err := s.Scan(ctx, "user:")
		require.NoError(t, err)
		assert.Equal(t, []string{"user:a", "user:b", "user:email:x@y.z"}, got)

		got, err = s.Scan(ctx, "userData")
		require.NoError(t, err)
		assert.Equal(t, []string{"userData", "userData:2"}, got)

		all, err := s.Scan(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 6)
	})

	t.Run("ScanTreatsPatternCharactersLiterally", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Set(ctx, "user:email:a_b@x.com", "1"))
		require.NoError(t, s.Set(ctx, "user:email:aXb@x.com", "2"))
		require.NoError(t, s.Set(ctx, "odd*key", "3"))
		require.NoError(t, s.Set(ctx, "oddly", "4"))

		got, err := s.Scan(ctx, "user:email:a_b")
		require.NoError(t, err)
		assert.Equal(t, []string{"user:email:a_b@x.com"}, got)

		got, err = s.Scan(ctx, "odd*")
		require.NoError(t, err)
		assert.Equal(t, []string{"odd*key"}, got)
	})

	t.Run("ScanEmpty", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Scan(context.Background(), "user:")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}
