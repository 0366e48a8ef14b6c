package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueFull is returned when the inline queue cannot accept another date.
var ErrQueueFull = errors.New("rollup queue full")

// InlineQueue runs rollups on an in-process goroutine when no Redis is
// configured. Dates already waiting in the queue are coalesced.
type InlineQueue struct {
	job     *RollupJob
	logger  *slog.Logger
	pending chan string

	mu     sync.Mutex
	queued map[string]struct{}
}

func NewInlineQueue(job *RollupJob, size int, logger *slog.Logger) *InlineQueue {
	if size < 1 {
		size = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InlineQueue{
		job:     job,
		logger:  logger,
		pending: make(chan string, size),
		queued:  make(map[string]struct{}, size),
	}
}

// EnqueueRollup never blocks the caller.
func (q *InlineQueue) EnqueueRollup(_ context.Context, date string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[date]; ok {
		return nil
	}
	select {
	case q.pending <- date:
		q.queued[date] = struct{}{}
		return nil
	default:
		q.job.metrics().recordDrop()
		return ErrQueueFull
	}
}

// Run drains the queue until ctx is cancelled.
func (q *InlineQueue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case date := <-q.pending:
			q.mu.Lock()
			delete(q.queued, date)
			q.mu.Unlock()
			if err := q.job.Run(ctx, date); err != nil {
				q.logger.Warn("inline rollup failed", slog.String("date", date), slog.Any("error", err))
			}
		}
	}
}
