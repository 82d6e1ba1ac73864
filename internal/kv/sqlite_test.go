package kv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestOpenSQLite_CreatesDatabase(t *testing.T) {
	_, path := openTestSQLite(t)

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestOpenSQLite_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := OpenSQLite(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestSQLite_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestSQLite(t)
	tab, err := s.Context(ctx, "a")
	require.NoError(t, err)

	_, ok, err := tab.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tab.Set(ctx, "k", []byte("v1")))
	v, ok, err := tab.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", string(v))

	require.NoError(t, tab.Delete(ctx, "k"))
	_, ok, err = tab.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestSQLite_PollDeliversOtherContextsOnly(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestSQLite(t)
	a, err := s.Context(ctx, "a")
	require.NoError(t, err)
	b, err := s.Context(ctx, "b")
	require.NoError(t, err)

	var seenA, seenB []Change
	a.Watch(func(c Change) { seenA = append(seenA, c) })
	b.Watch(func(c Change) { seenB = append(seenB, c) })

	require.NoError(t, a.Set(ctx, "cart_user1", []byte("x")))
	require.NoError(t, b.Set(ctx, "products_sync", []byte("1")))

	n, err := a.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = b.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, seenA, 1)
	assert.Equal(t, "products_sync", seenA[0].Key)
	require.Len(t, seenB, 1)
	assert.Equal(t, "cart_user1", seenB[0].Key)
	assert.Equal(t, "a", seenB[0].Origin)

	// Nothing new since the last poll
	n, err = b.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_IdenticalWriteDoesNotAdvanceSeq(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestSQLite(t)
	a, err := s.Context(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, a.Set(ctx, "k", []byte("same")))
	seq1, err := s.currentSeq(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Set(ctx, "k", []byte("same")))
	seq2, err := s.currentSeq(ctx)
	require.NoError(t, err)

	assert.Equal(t, seq1, seq2)
}

func TestSQLite_DeletionIsObserved(t *testing.T) {
	ctx := context.Background()
	s, _ := openTestSQLite(t)
	a, err := s.Context(ctx, "a")
	require.NoError(t, err)
	b, err := s.Context(ctx, "b")
	require.NoError(t, err)

	var seen []Change
	b.Watch(func(c Change) { seen = append(seen, c) })

	require.NoError(t, a.Set(ctx, "k", []byte("v")))
	require.NoError(t, a.Delete(ctx, "k"))

	_, err = b.Poll(ctx)
	require.NoError(t, err)

	// The tombstone overwrote the row, so only the latest state is seen
	require.Len(t, seen, 1)
	assert.True(t, seen[0].Deleted())
}

func TestSQLite_SharedAcrossHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "shared.db")

	first, err := OpenSQLite(path)
	require.NoError(t, err)
	defer first.Close()
	second, err := OpenSQLite(path)
	require.NoError(t, err)
	defer second.Close()

	writer, err := first.Context(ctx, "process-1")
	require.NoError(t, err)
	reader, err := second.Context(ctx, "process-2")
	require.NoError(t, err)

	var seen []Change
	reader.Watch(func(c Change) { seen = append(seen, c) })

	require.NoError(t, writer.Set(ctx, "cart_user7", []byte(`{"items":[]}`)))
	_, err = reader.Poll(ctx)
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, "process-1", seen[0].Origin)
}
