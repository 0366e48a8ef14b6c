package forecast

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"stokpintar/backend/internal/domain"
	"stokpintar/backend/internal/store"
	"stokpintar/backend/internal/store/memory"
)

// 2026-06-10 is a Wednesday.
var now = time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)

func newAdvisor(repo store.Repository) *Advisor {
	return NewAdvisor(repo).WithClock(func() time.Time { return now })
}

var lineSeq int

func sell(t *testing.T, repo store.Repository, productID string, qty int, at time.Time) {
	t.Helper()
	lineSeq++
	err := repo.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.InsertSaleLine(ctx, domain.SaleLine{
			ID:        fmt.Sprintf("line-%d", lineSeq),
			ProductID: productID,
			Quantity:  qty,
			Timestamp: at,
		})
	})
	require.NoError(t, err)
}

func TestForecastWithoutHistory(t *testing.T) {
	advisor := newAdvisor(memory.New(nil))

	result, err := advisor.Forecast(context.Background(), "", 0)
	require.NoError(t, err)
	require.Zero(t, result.HistoricalAverage)
	require.Zero(t, result.DataPoints)
	require.Len(t, result.Forecast, DefaultDays)
	for _, point := range result.Forecast {
		require.Zero(t, point.PredictedSales)
		require.Equal(t, 0.75, point.Confidence)
	}
	require.Equal(t, "2026-06-11", result.Forecast[0].Date)
}

func TestForecastAppliesWeekdayFactors(t *testing.T) {
	repo := memory.New(nil)
	sell(t, repo, "A", 6, now.Add(-24*time.Hour))
	sell(t, repo, "B", 4, now.Add(-24*time.Hour))
	sell(t, repo, "A", 10, now.Add(-48*time.Hour))
	sell(t, repo, "A", 99, now.Add(-31*24*time.Hour))

	result, err := newAdvisor(repo).Forecast(context.Background(), "", 7)
	require.NoError(t, err)
	require.Equal(t, 2, result.DataPoints)
	require.InDelta(t, 10.0, result.HistoricalAverage, 1e-9)

	want := []int{10, 12, 8, 8, 10, 10, 10} // Thu..Wed
	got := make([]int, 0, len(result.Forecast))
	for _, point := range result.Forecast {
		got = append(got, point.PredictedSales)
	}
	require.Equal(t, want, got)
}

func TestForecastDatesFollowUTCDays(t *testing.T) {
	repo := memory.New(nil)
	// Friday 23:30 UTC is already Saturday morning at UTC+7.
	clock := time.Date(2026, 6, 13, 6, 30, 0, 0, time.FixedZone("WIB", 7*3600))
	sell(t, repo, "A", 10, clock.Add(-time.Hour))

	result, err := NewAdvisor(repo).WithClock(func() time.Time { return clock }).Forecast(context.Background(), "", 2)
	require.NoError(t, err)
	require.Equal(t, 1, result.DataPoints)
	require.Equal(t, "2026-06-13", result.Forecast[0].Date)
	require.Equal(t, 8, result.Forecast[0].PredictedSales, "saturday factor")
	require.Equal(t, "2026-06-14", result.Forecast[1].Date)
}

func TestForecastScopedToProduct(t *testing.T) {
	repo := memory.New([]domain.Product{{ID: "A", SKU: "A", Name: "A", Category: "x", Active: true}})
	sell(t, repo, "A", 3, now.Add(-time.Hour))
	sell(t, repo, "B", 50, now.Add(-time.Hour))

	result, err := newAdvisor(repo).Forecast(context.Background(), "A", 3)
	require.NoError(t, err)
	require.Len(t, result.Forecast, 3)
	require.InDelta(t, 3.0, result.HistoricalAverage, 1e-9)

	_, err = newAdvisor(repo).Forecast(context.Background(), "missing", 3)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = newAdvisor(repo).Forecast(context.Background(), "", MaxDays+1)
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestSeasonalityFactor(t *testing.T) {
	require.Equal(t, 0.8, SeasonalityFactor(time.Saturday))
	require.Equal(t, 0.8, SeasonalityFactor(time.Sunday))
	require.Equal(t, 1.2, SeasonalityFactor(time.Friday))
	require.Equal(t, 1.0, SeasonalityFactor(time.Tuesday))
}

func TestSuggestedQuantity(t *testing.T) {
	cases := map[int]int{0: 0, 1: 2, 5: 6, 10: 12, 45: 54, 29: 35}
	for sold, want := range cases {
		require.Equal(t, want, SuggestedQuantity(sold), "sold=%d", sold)
	}
}

func reorderCatalog() []domain.Product {
	return []domain.Product{
		{ID: "prod_gula_01", SKU: "SKU-GULA-01", Name: "Gula 1kg", Category: "grocery", Supplier: "PT Sumber Pangan", Quantity: 3, MinStockLevel: 10, Active: true},
		{ID: "prod_kopi_01", SKU: "SKU-KOPI-01", Name: "Kopi Sachet", Category: "beverage", Supplier: "PT Kopi Jaya, Tbk", Quantity: 0, MinStockLevel: 40, Active: true},
		{ID: "prod_teh_01", SKU: "SKU-TEH-01", Name: "Teh Celup", Category: "beverage", Quantity: 0, MinStockLevel: 5, Active: false},
		{ID: "prod_air_01", SKU: "SKU-AIR-01", Name: "Air Mineral", Category: "beverage", Quantity: 100, MinStockLevel: 48, Active: true},
	}
}

func TestReorderSuggestions(t *testing.T) {
	repo := memory.New(reorderCatalog())
	sell(t, repo, "prod_kopi_01", 45, now.Add(-2*24*time.Hour))
	sell(t, repo, "prod_gula_01", 10, now.Add(-5*24*time.Hour))
	sell(t, repo, "prod_gula_01", 500, now.Add(-45*24*time.Hour))
	sell(t, repo, "prod_teh_01", 90, now.Add(-time.Hour))

	suggestions, err := newAdvisor(repo).ReorderSuggestions(context.Background())
	require.NoError(t, err)
	require.Len(t, suggestions, 2)

	require.Equal(t, "prod_kopi_01", suggestions[0].ProductID)
	require.Equal(t, domain.UrgencyCritical, suggestions[0].Urgency)
	require.Equal(t, 1.5, suggestions[0].AvgDailySales)
	require.Equal(t, 54, suggestions[0].SuggestedReorderQuantity)

	require.Equal(t, "prod_gula_01", suggestions[1].ProductID)
	require.Equal(t, domain.UrgencyHigh, suggestions[1].Urgency)
	require.Equal(t, 0.33, suggestions[1].AvgDailySales)
	require.Equal(t, 12, suggestions[1].SuggestedReorderQuantity)
	require.Equal(t, "PT Sumber Pangan", suggestions[1].Supplier)

	for _, s := range suggestions {
		require.NotEqual(t, "prod_teh_01", s.ProductID)
	}
}

func TestReorderCriticalBeforeFasterHighUrgency(t *testing.T) {
	repo := memory.New([]domain.Product{
		{ID: "fast", SKU: "F", Name: "Fast", Category: "x", Quantity: 1, MinStockLevel: 5, Active: true},
		{ID: "slow-out", SKU: "S", Name: "Slow", Category: "x", Quantity: 0, MinStockLevel: 5, Active: true},
		{ID: "mid", SKU: "M", Name: "Mid", Category: "x", Quantity: 2, MinStockLevel: 5, Active: true},
	})
	sell(t, repo, "fast", 300, now.Add(-time.Hour))
	sell(t, repo, "mid", 30, now.Add(-time.Hour))

	suggestions, err := newAdvisor(repo).ReorderSuggestions(context.Background())
	require.NoError(t, err)
	require.Len(t, suggestions, 3)
	require.Equal(t, "slow-out", suggestions[0].ProductID)
	require.Equal(t, "fast", suggestions[1].ProductID)
	require.Equal(t, "mid", suggestions[2].ProductID)
}

func TestWriteReorderCSVGolden(t *testing.T) {
	repo := memory.New(reorderCatalog())
	sell(t, repo, "prod_kopi_01", 45, now.Add(-2*24*time.Hour))
	sell(t, repo, "prod_gula_01", 10, now.Add(-5*24*time.Hour))

	suggestions, err := newAdvisor(repo).ReorderSuggestions(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteReorderCSV(&buf, suggestions))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "reorder_suggestions", buf.Bytes())
}
