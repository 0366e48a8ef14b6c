// Package forecast derives read-only projections from sale history: a
// weekday-adjusted moving average forecast and reorder suggestions for
// products at or below their minimum stock level.
package forecast

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"stokpintar/backend/internal/domain"
	"stokpintar/backend/internal/store"
)

const (
	DefaultDays = 7
	MaxDays     = 90

	historyDays = 30
	confidence  = 0.75
	day         = 24 * time.Hour
)

// Advisor works on UTC calendar days, the same buckets the daily rollup uses.
type Advisor struct {
	repo  store.Repository
	clock func() time.Time
}

func NewAdvisor(repo store.Repository) *Advisor {
	return &Advisor{repo: repo, clock: time.Now}
}

func (a *Advisor) WithClock(clock func() time.Time) *Advisor {
	if clock != nil {
		a.clock = clock
	}
	return a
}

// SeasonalityFactor is the fixed day-of-week demand multiplier.
func SeasonalityFactor(weekday time.Weekday) float64 {
	switch weekday {
	case time.Saturday, time.Sunday:
		return 0.8
	case time.Friday:
		return 1.2
	default:
		return 1.0
	}
}

// Forecast projects daily unit sales for the next days, starting tomorrow.
// productID scopes the history to one product; empty means store-wide.
func (a *Advisor) Forecast(ctx context.Context, productID string, days int) (domain.SalesForecast, error) {
	if days == 0 {
		days = DefaultDays
	}
	if days < 0 || days > MaxDays {
		return domain.SalesForecast{}, fmt.Errorf("forecast days must be between 1 and %d: %w", MaxDays, store.ErrInvalidInput)
	}
	productID = strings.TrimSpace(productID)
	if productID != "" {
		if _, err := a.repo.GetProduct(ctx, productID); err != nil {
			return domain.SalesForecast{}, err
		}
	}

	now := a.clock()
	lines, err := a.repo.ListSaleLines(ctx, domain.SaleFilter{ProductID: productID, From: now.Add(-historyDays * day)})
	if err != nil {
		return domain.SalesForecast{}, fmt.Errorf("forecast: load history: %w", err)
	}

	perDay := make(map[string]int, historyDays)
	for _, line := range lines {
		perDay[line.Timestamp.UTC().Format(time.DateOnly)] += line.Quantity
	}
	average := 0.0
	if len(perDay) > 0 {
		total := 0
		for _, qty := range perDay {
			total += qty
		}
		average = float64(total) / float64(len(perDay))
	}

	points := make([]domain.ForecastPoint, 0, days)
	for i := 1; i <= days; i++ {
		at := now.Add(time.Duration(i) * day).UTC()
		points = append(points, domain.ForecastPoint{
			Date:           at.Format(time.DateOnly),
			PredictedSales: int(math.Round(average * SeasonalityFactor(at.Weekday()))),
			Confidence:     confidence,
		})
	}

	return domain.SalesForecast{
		ProductID:         productID,
		Forecast:          points,
		HistoricalAverage: average,
		DataPoints:        len(perDay),
	}, nil
}

// SuggestedQuantity is ceil(avgDaily * 30 * 1.2) with avgDaily = sold/30,
// which reduces to ceil(sold * 6 / 5) and avoids float rounding drift.
func SuggestedQuantity(soldLast30Days int) int {
	if soldLast30Days <= 0 {
		return 0
	}
	return (soldLast30Days*6 + 4) / 5
}

// ReorderSuggestions lists active products at or below their minimum level,
// critical (out of stock) entries first, then by sales velocity.
func (a *Advisor) ReorderSuggestions(ctx context.Context) ([]domain.ReorderSuggestion, error) {
	products, err := a.repo.ListProducts(ctx, domain.ProductFilter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("forecast: load products: %w", err)
	}

	from := a.clock().Add(-historyDays * day)
	type ranked struct {
		suggestion domain.ReorderSuggestion
		velocity   float64
	}
	candidates := make([]ranked, 0, 8)
	for _, product := range products {
		if !product.Active || product.Quantity > product.MinStockLevel {
			continue
		}
		lines, err := a.repo.ListSaleLines(ctx, domain.SaleFilter{ProductID: product.ID, From: from})
		if err != nil {
			return nil, fmt.Errorf("forecast: load sales for %s: %w", product.ID, err)
		}
		sold := 0
		for _, line := range lines {
			sold += line.Quantity
		}
		velocity := float64(sold) / historyDays

		urgency := domain.UrgencyHigh
		if product.Quantity == 0 {
			urgency = domain.UrgencyCritical
		}
		candidates = append(candidates, ranked{
			velocity: velocity,
			suggestion: domain.ReorderSuggestion{
				ProductID:                product.ID,
				ProductName:              product.Name,
				SKU:                      product.SKU,
				Supplier:                 product.Supplier,
				CurrentStock:             product.Quantity,
				MinStockLevel:            product.MinStockLevel,
				AvgDailySales:            math.Round(velocity*100) / 100,
				SuggestedReorderQuantity: SuggestedQuantity(sold),
				Urgency:                  urgency,
			},
		})
	}

	slices.SortStableFunc(candidates, func(x, y ranked) int {
		xc := x.suggestion.Urgency == domain.UrgencyCritical
		yc := y.suggestion.Urgency == domain.UrgencyCritical
		if xc != yc {
			if xc {
				return -1
			}
			return 1
		}
		return cmp.Compare(y.velocity, x.velocity)
	})

	suggestions := make([]domain.ReorderSuggestion, 0, len(candidates))
	for _, c := range candidates {
		suggestions = append(suggestions, c.suggestion)
	}
	return suggestions, nil
}
