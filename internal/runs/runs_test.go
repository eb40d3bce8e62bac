package runs

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracefold/tracefold/internal/model"
)

func newTestRegistry() *Registry {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewRegistry(logger)
}

func TestCreateAndGet(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	run := r.Create(ctx, "ab-test-prompt-v2", map[string]any{"variant": "b"})
	assert.Equal(t, "ab-test-prompt-v2", run.Name)
	assert.Equal(t, model.RunStatusRunning, run.Status)
	assert.True(t, run.Active())

	got, err := r.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "b", got.Metadata["variant"])
}

func TestGetUnknownRun(t *testing.T) {
	r := newTestRegistry()
	_, err := r.GetRun(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	a := r.Create(ctx, "first", nil)
	time.Sleep(2 * time.Millisecond)
	b := r.Create(ctx, "second", nil)

	list := r.List(ctx)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)
}

func TestStopIsTerminal(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	run := r.Create(ctx, "exp", nil)

	stopped, err := r.Stop(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusStopped, stopped.Status)
	require.NotNil(t, stopped.StoppedAt)
	assert.False(t, stopped.Active())

	_, err = r.Stop(ctx, run.ID)
	require.ErrorIs(t, err, ErrStopped)

	_, err = r.Pause(ctx, run.ID)
	require.ErrorIs(t, err, ErrStopped)
	_, err = r.Resume(ctx, run.ID)
	require.ErrorIs(t, err, ErrStopped)
}

func TestPauseResume(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	run := r.Create(ctx, "exp", nil)

	paused, err := r.Pause(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPaused, paused.Status)

	// Pausing again is a no-op, not an error.
	paused, err = r.Pause(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPaused, paused.Status)

	resumed, err := r.Resume(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, resumed.Status)

	resumed, err = r.Resume(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, resumed.Status)
}

func TestTransitionUnknownRun(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	_, err := r.Stop(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
	_, err = r.Pause(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIdempotent(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()
	run := r.Create(ctx, "exp", nil)

	r.Delete(ctx, run.ID)
	_, err := r.GetRun(ctx, run.ID)
	require.ErrorIs(t, err, ErrNotFound)

	r.Delete(ctx, run.ID) // second delete is fine
	assert.Empty(t, r.List(ctx))
}
