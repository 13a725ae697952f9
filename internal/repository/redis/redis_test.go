package redis

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/habit-rewards/internal/repository"
	"github.com/sakif/habit-rewards/internal/repository/storetest"
)

// newTestStore starts an in-process Redis server for the test.
func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := New(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store {
		s, _ := newTestStore(t)
		return s
	})
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := Open(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(context.Background(), "k", "v"))
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestOpen_BadURL(t *testing.T) {
	_, err := Open(context.Background(), "not a url")
	assert.Error(t, err)
}

func TestStoreError_WhenServerDown(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrKeyNotFound)
	assert.Error(t, s.Ping(context.Background()))
}

func TestScan_ManyKeysAcrossBatches(t *testing.T) {
	s, mr := newTestStore(t)
	for i := 0; i < 1200; i++ {
		mr.Set("user:"+strconv.Itoa(i), "x")
	}
	mr.Set("other", "x")

	keys, err := s.Scan(context.Background(), "user:")
	require.NoError(t, err)
	assert.Len(t, keys, 1200)
}

func TestMatchPattern(t *testing.T) {
	assert.Equal(t, "user:*", matchPattern("user:"))
	assert.Equal(t, "*", matchPattern("odd*"))
	assert.Equal(t, "*", matchPattern(""))
}
