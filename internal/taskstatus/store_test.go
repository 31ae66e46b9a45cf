package taskstatus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prime-labs/prime-orchestrator/internal/research"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewStore(client, time.Hour, zap.NewNop()), mr
}

func TestTaskLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	st, err := store.Create(ctx, "task-1", "how does ingest work?", "standard")
	require.NoError(t, err)
	assert.Equal(t, StatePending, st.State)
	assert.Equal(t, 0, st.Progress)
	assert.False(t, st.Terminal())

	require.NoError(t, store.SetProgress(ctx, "task-1", "conducting", 20))
	st, err = store.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, "conducting", st.Stage)
	assert.Equal(t, 20, st.Progress)

	report := &research.Report{Query: "how does ingest work?", Report: "done"}
	require.NoError(t, store.Complete(ctx, "task-1", report))
	st, err = store.Get(ctx, "task-1")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, st.State)
	assert.Equal(t, 100, st.Progress)
	assert.True(t, st.Terminal())
	require.NotNil(t, st.Result)
	assert.Equal(t, "done", st.Result.Report)
}

func TestTaskFailure(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "task-2", "q", "quick")
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, "task-2", "synthesis failed: model overloaded"))

	st, err := store.Get(ctx, "task-2")
	require.NoError(t, err)
	assert.Equal(t, StateFailed, st.State)
	assert.Equal(t, "synthesis failed: model overloaded", st.Error)
	assert.True(t, st.Terminal())
}

func TestTaskCancel(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "task-3", "q", "quick")
	require.NoError(t, err)
	require.NoError(t, store.Cancel(ctx, "task-3"))

	st, err := store.Get(ctx, "task-3")
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, st.State)

	// Cancelling a terminal task is a no-op.
	require.NoError(t, store.Complete(ctx, "task-3", nil))
	require.NoError(t, store.Cancel(ctx, "task-3"))
	st, err = store.Get(ctx, "task-3")
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, st.State)
}

func TestTaskNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.SetProgress(ctx, "missing", "planning", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTaskDeleteAndTTL(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "task-4", "q", "deep")
	require.NoError(t, err)

	ttl := mr.TTL("research:task:task-4")
	assert.Equal(t, time.Hour, ttl)

	require.NoError(t, store.Delete(ctx, "task-4"))
	_, err = store.Get(ctx, "task-4")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent key is not an error.
	require.NoError(t, store.Delete(ctx, "task-4"))
}
