package queue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/missionz/internal/kv"
	"github.com/abhisek/missionz/internal/mission"
	"github.com/abhisek/missionz/internal/store"
)

func entry(id string, correct int) Entry {
	return Entry{
		MissionID: id,
		Results:   mission.Result{TotalQuestions: 10, CorrectAnswers: correct, TimeSpentSeconds: 120},
		Timestamp: time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC),
	}
}

func TestQueue_EnqueueReplaceRemove(t *testing.T) {
	ctx := context.Background()
	q := New(kv.NewMemory(), "u1", nil)

	require.NoError(t, q.Enqueue(ctx, entry("a", 5)))
	require.NoError(t, q.Enqueue(ctx, entry("b", 6)))
	require.NoError(t, q.Enqueue(ctx, entry("a", 7)))

	list, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].MissionID)
	assert.Equal(t, "a", list[1].MissionID)
	assert.Equal(t, 7, list[1].Results.CorrectAnswers)

	removed, err := q.Remove(ctx, "a")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = q.Remove(ctx, "zzz")
	require.NoError(t, err)
	assert.False(t, removed)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQueue_Update(t *testing.T) {
	ctx := context.Background()
	q := New(kv.NewMemory(), "u1", nil)
	require.NoError(t, q.Enqueue(ctx, entry("a", 5)))

	e := entry("a", 5)
	e.Attempts = 2
	require.NoError(t, q.Update(ctx, e))
	require.NoError(t, q.Update(ctx, entry("missing", 1)))

	list, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].Attempts)
}

func TestQueue_DurableInSQLStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "q.db")

	s, err := store.Open(store.DriverSQLite, path)
	require.NoError(t, err)
	q := New(s.KV(), "u1", nil)
	require.NoError(t, q.Enqueue(ctx, entry("a", 9)))
	require.NoError(t, s.Close())

	s, err = store.Open(store.DriverSQLite, path)
	require.NoError(t, err)
	defer s.Close()

	list, err := New(s.KV(), "u1", nil).List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 9, list[0].Results.CorrectAnswers)
	assert.True(t, list[0].Timestamp.Equal(entry("a", 9).Timestamp))

	other, err := New(s.KV(), "u2", nil).List(ctx)
	require.NoError(t, err)
	assert.Empty(t, other)
}
