package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue every stokpintar task is enqueued on.
	QueueDefault = "default"
	// TaskRollupDaily recomputes the daily analytics snapshot of one date.
	TaskRollupDaily = "analytics:rollup_daily"
)

// RollupDailyPayload names the UTC date to roll up. An empty date means the
// day before the task runs, which is what the nightly cron enqueues.
type RollupDailyPayload struct {
	Date string `json:"date,omitempty"`
}

// NewRollupDailyTask constructs an Asynq task for the daily rollup.
func NewRollupDailyTask(date string) (*asynq.Task, error) {
	body, err := json.Marshal(RollupDailyPayload{Date: date})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRollupDaily, body, asynq.Queue(QueueDefault)), nil
}
