package rollup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"stokpintar/backend/internal/cache"
	"stokpintar/backend/internal/domain"
	"stokpintar/backend/internal/store"
)

const (
	PeriodToday = "today"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"

	trendDays = 7
	day       = 24 * time.Hour
)

type Engine struct {
	repo     store.Repository
	cache    cache.DashboardCache
	cacheTTL time.Duration
	location *time.Location
	clock    func() time.Time
	logger   *slog.Logger
	group    singleflight.Group
	// generation is bumped by InvalidateDashboards so that callers arriving
	// after an invalidation never join a computation started before it.
	generation atomic.Int64
}

func NewEngine(repo store.Repository, dashboards cache.DashboardCache, cacheTTL time.Duration, logger *slog.Logger) *Engine {
	if dashboards == nil {
		dashboards = cache.NoopDashboardCache{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		repo:     repo,
		cache:    dashboards,
		cacheTTL: cacheTTL,
		location: time.Local,
		clock:    time.Now,
		logger:   logger,
	}
}

func (e *Engine) WithClock(clock func() time.Time) *Engine {
	if clock != nil {
		e.clock = clock
	}
	return e
}

// WithLocation sets the calendar used for period starts ("today", "month").
func (e *Engine) WithLocation(loc *time.Location) *Engine {
	if loc != nil {
		e.location = loc
	}
	return e
}

// NormalizePeriod maps unknown or empty periods to "today".
func NormalizePeriod(period string) string {
	switch p := strings.ToLower(strings.TrimSpace(period)); p {
	case PeriodWeek, PeriodMonth, PeriodYear:
		return p
	default:
		return PeriodToday
	}
}

// PeriodStart returns the inclusive lower bound of a dashboard period.
func PeriodStart(now time.Time, period string, loc *time.Location) time.Time {
	local := now.In(loc)
	switch NormalizePeriod(period) {
	case PeriodWeek:
		return now.Add(-7 * day)
	case PeriodMonth:
		return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	case PeriodYear:
		return time.Date(local.Year(), time.January, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	}
}

func utcMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Dashboard aggregates sales since the start of period. Results are cached
// until the next sale invalidates them or the TTL lapses.
func (e *Engine) Dashboard(ctx context.Context, period string) (domain.DashboardAnalytics, error) {
	period = NormalizePeriod(period)
	now := e.clock()
	from := PeriodStart(now, period, e.location)
	today := utcMidnight(now)
	key := fmt.Sprintf("%s:%d:%s", period, from.Unix(), today.Format(time.DateOnly))

	generation := e.generation.Load()
	version, err := e.cache.Version(ctx)
	cacheable := err == nil
	if err != nil {
		e.logger.Warn("rollup: dashboard cache version read failed", slog.Any("error", err))
	} else if cached, ok, err := e.cache.Get(ctx, version, key); err != nil {
		e.logger.Warn("rollup: dashboard cache read failed", slog.String("key", key), slog.Any("error", err))
	} else if ok {
		return *cached, nil
	}

	flightKey := fmt.Sprintf("%d:%d:%s", generation, version, key)
	v, err, _ := e.group.Do(flightKey, func() (interface{}, error) {
		// Shared by every waiter on this key; one caller going away must not
		// fail the others.
		computeCtx := context.WithoutCancel(ctx)
		dash, err := e.computeDashboard(computeCtx, period, from, today)
		if err != nil {
			return nil, err
		}
		if cacheable && e.generation.Load() == generation {
			if err := e.cache.Set(computeCtx, version, key, &dash, e.cacheTTL); err != nil {
				e.logger.Warn("rollup: dashboard cache write failed", slog.String("key", key), slog.Any("error", err))
			}
		}
		return dash, nil
	})
	if err != nil {
		return domain.DashboardAnalytics{}, err
	}
	return v.(domain.DashboardAnalytics), nil
}

func (e *Engine) computeDashboard(ctx context.Context, period string, from time.Time, today time.Time) (domain.DashboardAnalytics, error) {
	trendStart := today.Add(-(trendDays - 1) * day)
	fetchFrom := from
	if trendStart.Before(fetchFrom) {
		fetchFrom = trendStart
	}

	lines, err := e.repo.ListSaleLines(ctx, domain.SaleFilter{From: fetchFrom})
	if err != nil {
		return domain.DashboardAnalytics{}, fmt.Errorf("rollup: load sale lines: %w", err)
	}

	periodLines := make([]domain.SaleLine, 0, len(lines))
	for _, line := range lines {
		if !line.Timestamp.Before(from) {
			periodLines = append(periodLines, line)
		}
	}
	summary := Summarize(periodLines)

	trend := make([]domain.TrendPoint, trendDays)
	for i := range trend {
		start := trendStart.Add(time.Duration(i) * day)
		end := start.Add(day)
		var dayLines []domain.SaleLine
		for _, line := range lines {
			if !line.Timestamp.Before(start) && line.Timestamp.Before(end) {
				dayLines = append(dayLines, line)
			}
		}
		daySummary := Summarize(dayLines)
		trend[i] = domain.TrendPoint{
			Date:         start.Format(time.DateOnly),
			SalesCents:   daySummary.SalesCents,
			Transactions: daySummary.Transactions,
		}
	}

	unresolved := false
	alerts, err := e.repo.ListStockAlerts(ctx, &unresolved)
	if err != nil {
		return domain.DashboardAnalytics{}, fmt.Errorf("rollup: load alerts: %w", err)
	}

	return domain.DashboardAnalytics{
		Period:              period,
		From:                from,
		TotalSalesCents:     summary.SalesCents,
		TotalProfitCents:    summary.ProfitCents,
		TotalTransactions:   summary.Transactions,
		TopSellingProducts:  summary.TopProducts(),
		CategoryPerformance: summary.Categories(),
		SalesTrend:          trend,
		LowStockAlerts:      alerts,
	}, nil
}

// InvalidateDashboards drops cached dashboards. Failures are logged only.
func (e *Engine) InvalidateDashboards(ctx context.Context) {
	e.generation.Add(1)
	if err := e.cache.Invalidate(ctx); err != nil {
		e.logger.Warn("rollup: dashboard cache invalidation failed", slog.Any("error", err))
	}
}

// ParseDate validates a YYYY-MM-DD date and returns its UTC midnight.
func ParseDate(date string) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, strings.TrimSpace(date), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD: %w", date, store.ErrInvalidInput)
	}
	return d, nil
}

// DailyRollup recomputes the snapshot for [date 00:00Z, +24h) and replaces
// whatever was stored for that date.
func (e *Engine) DailyRollup(ctx context.Context, date string) (domain.DailyAnalytics, error) {
	start, err := ParseDate(date)
	if err != nil {
		return domain.DailyAnalytics{}, err
	}
	window := domain.SaleFilter{From: start, To: start.Add(day)}

	lines, err := e.repo.ListSaleLines(ctx, window)
	if err != nil {
		return domain.DailyAnalytics{}, fmt.Errorf("rollup: load sale lines: %w", err)
	}

	snapshot := Summarize(lines).Daily(start.Format(time.DateOnly))
	if err := e.repo.UpsertDailyAnalytics(ctx, snapshot); err != nil {
		return domain.DailyAnalytics{}, fmt.Errorf("rollup: upsert %s: %w", snapshot.Date, err)
	}
	return snapshot, nil
}

func (e *Engine) Daily(ctx context.Context, date string) (domain.DailyAnalytics, error) {
	d, err := ParseDate(date)
	if err != nil {
		return domain.DailyAnalytics{}, err
	}
	snapshot, err := e.repo.GetDailyAnalytics(ctx, d.Format(time.DateOnly))
	if err != nil {
		return domain.DailyAnalytics{}, err
	}
	return *snapshot, nil
}

func (e *Engine) History(ctx context.Context, fromDate string, toDate string) ([]domain.DailyAnalytics, error) {
	from, err := ParseDate(fromDate)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(toDate)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("history range ends before it starts: %w", store.ErrInvalidInput)
	}
	return e.repo.ListDailyAnalytics(ctx, from.Format(time.DateOnly), to.Format(time.DateOnly))
}
