package jobs

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jo-hoe/imagecaptioner/internal/common"
)

var (
	ErrQueueNotStarted = errors.New("cleanup queue not started")
	ErrQueueClosed     = errors.New("cleanup queue closed")
	ErrQueueFull       = errors.New("cleanup queue is full")
)

// WorkItem is one scratch file waiting for deletion.
type WorkItem struct {
	JobID   string
	Path    string
	Cleanup func() error
}

// CleanupQueue runs file cleanups off the request path with a small worker pool.
// Failures are logged and never reported back to the scheduler.
type CleanupQueue struct {
	log     *slog.Logger
	ch      chan WorkItem
	workers int
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.Mutex
	started bool
	closed  bool
}

// NewCleanupQueue creates a queue with the given capacity and worker count.
func NewCleanupQueue(logger *slog.Logger, capacity int, workers int) *CleanupQueue {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if capacity <= 0 {
		capacity = common.DefaultQueueCapacity
	}
	if workers <= 0 {
		workers = common.DefaultCleanupWorkers
	}
	return &CleanupQueue{
		log:     logger,
		ch:      make(chan WorkItem, capacity),
		workers: workers,
	}
}

// Start launches the worker goroutines.
func (q *CleanupQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if q.started {
		return errors.New("cleanup queue already started")
	}
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.started = true
	return nil
}

func (q *CleanupQueue) worker(idx int) {
	defer q.wg.Done()
	log := q.log.With("worker", idx)
	for item := range q.ch {
		q.run(log, item)
	}
	log.Debug("cleanup queue closed, worker exiting")
}

func (q *CleanupQueue) run(log *slog.Logger, item WorkItem) {
	if item.Cleanup == nil {
		return
	}
	if err := item.Cleanup(); err != nil {
		log.Warn("failed to delete uploaded file", "job_id", item.JobID, "path", item.Path, "err", err)
		return
	}
	log.Debug("deleted uploaded file", "job_id", item.JobID, "path", item.Path)
}

// Enqueue adds an item without blocking.
func (q *CleanupQueue) Enqueue(item WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if !q.started {
		return ErrQueueNotStarted
	}
	select {
	case q.ch <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

// Schedule hands the item to the pool, or to a goroutine of its own when the pool cannot take it.
// It never blocks and never fails.
func (q *CleanupQueue) Schedule(item WorkItem) {
	if err := q.Enqueue(item); err != nil {
		q.log.Debug("cleanup running outside the queue", "job_id", item.JobID, "reason", err)
		go q.run(q.log, item)
	}
}

// Shutdown stops accepting items and waits for queued cleanups to finish, up to deadline.
func (q *CleanupQueue) Shutdown(deadline time.Duration) {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()

		done := make(chan struct{})
		go func() {
			defer close(done)
			q.wg.Wait()
		}()

		if deadline <= 0 {
			<-done
			return
		}

		timer := time.NewTimer(deadline)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			q.log.Warn("cleanup queue shutdown deadline reached; some uploads may remain on disk")
		}
	})
}
