package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"stokpintar/backend/internal/domain"
	"stokpintar/backend/internal/store"
)

var defaultJobMetrics = NewMetrics(nil)

// RollupRunner recomputes and stores one daily snapshot.
type RollupRunner interface {
	DailyRollup(ctx context.Context, date string) (domain.DailyAnalytics, error)
}

// RollupJob runs daily rollups for both the Asynq worker and the inline queue.
type RollupJob struct {
	Rollups RollupRunner
	Logger  *slog.Logger
	Metrics *Metrics
	clock   func() time.Time
}

func NewRollupJob(rollups RollupRunner, logger *slog.Logger, metrics *Metrics) *RollupJob {
	return &RollupJob{
		Rollups: rollups,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskRollupDaily tasks.
func (j *RollupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("rollup daily: handler not configured")
	}
	var payload RollupDailyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	err := j.Run(ctx, payload.Date)
	if errors.Is(err, store.ErrInvalidInput) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// Run rolls up date, or yesterday (UTC) when date is empty.
func (j *RollupJob) Run(ctx context.Context, date string) (resultErr error) {
	date = strings.TrimSpace(date)
	if date == "" {
		date = j.now().AddDate(0, 0, -1).Format(time.DateOnly)
	}

	tracker := j.metrics().Track(TaskRollupDaily)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("date", date))
	if j.Rollups == nil {
		return errors.New("rollup daily: engine not configured")
	}

	start := time.Now()
	snapshot, err := j.Rollups.DailyRollup(ctx, date)
	if err != nil {
		logger.Error("daily rollup failed", slog.Any("error", err))
		return err
	}
	logger.Info("daily rollup stored",
		slog.Int64("total_sales_cents", snapshot.TotalSalesCents),
		slog.Int("transactions", snapshot.TotalTransactions),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *RollupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRollupDaily))
	}
	return slog.Default().With(slog.String("job", TaskRollupDaily))
}

func (j *RollupJob) metrics() *Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *RollupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
