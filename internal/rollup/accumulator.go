package rollup

import (
	"slices"

	"stokpintar/backend/internal/domain"
)

// TopProductsLimit caps the top-selling list in dashboards and snapshots.
const TopProductsLimit = 10

// productAccumulator keeps first-seen order so that ties in the ranking fall
// back to insertion order.
type productAccumulator struct {
	order []string
	byID  map[string]*domain.ProductSales
}

func newProductAccumulator() *productAccumulator {
	return &productAccumulator{byID: make(map[string]*domain.ProductSales)}
}

func (a *productAccumulator) add(line domain.SaleLine) {
	entry, ok := a.byID[line.ProductID]
	if !ok {
		entry = &domain.ProductSales{ProductID: line.ProductID, ProductName: line.ProductName}
		a.byID[line.ProductID] = entry
		a.order = append(a.order, line.ProductID)
	}
	entry.QuantitySold += line.Quantity
	entry.RevenueCents += line.TotalCents
}

func (a *productAccumulator) top(limit int) []domain.ProductSales {
	ranked := make([]domain.ProductSales, 0, len(a.order))
	for _, id := range a.order {
		ranked = append(ranked, *a.byID[id])
	}
	slices.SortStableFunc(ranked, func(x, y domain.ProductSales) int {
		return y.QuantitySold - x.QuantitySold
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

type categoryAccumulator struct {
	order []string
	byKey map[string]*domain.CategoryPerformance
}

func newCategoryAccumulator() *categoryAccumulator {
	return &categoryAccumulator{byKey: make(map[string]*domain.CategoryPerformance)}
}

func (a *categoryAccumulator) add(line domain.SaleLine) {
	entry, ok := a.byKey[line.Category]
	if !ok {
		entry = &domain.CategoryPerformance{Category: line.Category}
		a.byKey[line.Category] = entry
		a.order = append(a.order, line.Category)
	}
	entry.SalesCents += line.TotalCents
	entry.ProfitCents += line.ProfitCents
}

func (a *categoryAccumulator) ranked() []domain.CategoryPerformance {
	ranked := make([]domain.CategoryPerformance, 0, len(a.order))
	for _, key := range a.order {
		ranked = append(ranked, *a.byKey[key])
	}
	slices.SortStableFunc(ranked, func(x, y domain.CategoryPerformance) int {
		switch {
		case x.SalesCents > y.SalesCents:
			return -1
		case x.SalesCents < y.SalesCents:
			return 1
		default:
			return 0
		}
	})
	return ranked
}

// Summary is the aggregate shared by the dashboard and the daily snapshot.
type Summary struct {
	SalesCents   int64
	ProfitCents  int64
	Transactions int
	products     *productAccumulator
	categories   *categoryAccumulator
}

// Summarize folds sale lines in the order given. Callers pass lines sorted by
// timestamp so rankings are reproducible. Transactions counts distinct
// transaction IDs, so totals come from a single read of the lines.
func Summarize(lines []domain.SaleLine) Summary {
	s := Summary{
		products:   newProductAccumulator(),
		categories: newCategoryAccumulator(),
	}
	seen := make(map[string]struct{})
	for _, line := range lines {
		s.SalesCents += line.TotalCents
		s.ProfitCents += line.ProfitCents
		s.products.add(line)
		s.categories.add(line)
		if _, ok := seen[line.TransactionID]; !ok {
			seen[line.TransactionID] = struct{}{}
			s.Transactions++
		}
	}
	return s
}

func (s Summary) TopProducts() []domain.ProductSales {
	return s.products.top(TopProductsLimit)
}

func (s Summary) Categories() []domain.CategoryPerformance {
	return s.categories.ranked()
}

func (s Summary) Daily(date string) domain.DailyAnalytics {
	return domain.DailyAnalytics{
		Date:                date,
		TotalSalesCents:     s.SalesCents,
		TotalProfitCents:    s.ProfitCents,
		TotalTransactions:   s.Transactions,
		TopSellingProducts:  s.TopProducts(),
		CategoryPerformance: s.Categories(),
	}
}
