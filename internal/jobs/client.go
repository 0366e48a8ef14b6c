package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
)

// Client submits rollup requests to the Asynq queue.
type Client struct {
	client *asynq.Client
}

func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueRollup queues a rollup of date. Duplicate queued rollups are harmless
// because the snapshot write is an upsert.
func (c *Client) EnqueueRollup(ctx context.Context, date string) error {
	task, err := NewRollupDailyTask(date)
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
	if errors.Is(err, asynq.ErrDuplicateTask) {
		return nil
	}
	return err
}

func (c *Client) Close() error {
	return c.client.Close()
}
