package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/habit-rewards/internal/repository"
	"github.com/sakif/habit-rewards/internal/repository/storetest"
)

// newTestDB returns a fresh in-memory database closed at the end of the test.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) repository.Store {
		return newTestDB(t)
	})
}

// Data written to a file must survive closing and reopening it.
func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "habits.db")
	ctx := context.Background()

	db, err := New(path)
	require.NoError(t, err)
	require.NoError(t, db.Set(ctx, "userData:1", `{"totalCredits":5}`))
	require.NoError(t, db.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "userData:1")
	require.NoError(t, err)
	assert.Equal(t, `{"totalCredits":5}`, got)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.migrate())
	require.NoError(t, db.migrate())
}

func TestScan_LikeWildcardsAreLiteral(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Set(ctx, "a%b", "1"))
	require.NoError(t, db.Set(ctx, "axb", "2"))

	got, err := db.Scan(ctx, "a%")
	require.NoError(t, err)
	assert.Equal(t, []string{"a%b"}, got)
}

func TestClosedDBReturnsErrors(t *testing.T) {
	db, err := New(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrKeyNotFound)
}
