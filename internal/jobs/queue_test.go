package jobs

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestCleanupQueue_StartScheduleShutdown(t *testing.T) {
	q := NewCleanupQueue(discardLogger(), 4, 2)
	require.NoError(t, q.Start())

	path := filepath.Join(t.TempDir(), "upload.png")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	q.Schedule(WorkItem{JobID: "id1", Path: path, Cleanup: func() error { return os.Remove(path) }})

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	q.Shutdown(2 * time.Second)
}

func TestCleanupQueue_ShutdownDrainsPending(t *testing.T) {
	q := NewCleanupQueue(discardLogger(), 16, 1)
	require.NoError(t, q.Start())

	var ran int32
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(WorkItem{Cleanup: func() error {
			atomic.AddInt32(&ran, 1)
			return nil
		}}))
	}
	q.Shutdown(0)
	assert.EqualValues(t, 10, atomic.LoadInt32(&ran))
}

func TestCleanupQueue_FailuresAreSwallowed(t *testing.T) {
	q := NewCleanupQueue(discardLogger(), 1, 1)
	require.NoError(t, q.Start())

	var ran int32
	q.Schedule(WorkItem{JobID: "bad", Cleanup: func() error {
		atomic.AddInt32(&ran, 1)
		return errors.New("permission denied")
	}})
	q.Shutdown(time.Second)
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

func TestCleanupQueue_EnqueueBeforeStartFails(t *testing.T) {
	q := NewCleanupQueue(discardLogger(), 1, 1)
	assert.ErrorIs(t, q.Enqueue(WorkItem{JobID: "x"}), ErrQueueNotStarted)
}

func TestCleanupQueue_EnqueueAfterShutdownFails(t *testing.T) {
	q := NewCleanupQueue(discardLogger(), 1, 1)
	require.NoError(t, q.Start())
	q.Shutdown(time.Second)
	assert.ErrorIs(t, q.Enqueue(WorkItem{JobID: "x"}), ErrQueueClosed)
	assert.Error(t, q.Start())
}

func TestCleanupQueue_ScheduleFallsBackWhenUnavailable(t *testing.T) {
	// Never started: Schedule must still run the cleanup.
	q := NewCleanupQueue(discardLogger(), 1, 1)

	done := make(chan struct{})
	q.Schedule(WorkItem{JobID: "orphan", Cleanup: func() error {
		close(done)
		return nil
	}})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("cleanup was not run")
	}
}

func TestCleanupQueue_ScheduleFallsBackWhenFull(t *testing.T) {
	q := NewCleanupQueue(discardLogger(), 1, 1)
	require.NoError(t, q.Start())
	defer q.Shutdown(time.Second)

	block := make(chan struct{})
	var ran int32
	slow := func() error {
		<-block
		atomic.AddInt32(&ran, 1)
		return nil
	}
	// One item occupies the worker, one fills the buffer, the rest overflow to goroutines.
	for i := 0; i < 5; i++ {
		q.Schedule(WorkItem{Cleanup: slow})
	}
	close(block)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&ran) == 5 }, 2*time.Second, 10*time.Millisecond)
}
