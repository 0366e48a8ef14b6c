package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"stokpintar/backend/internal/cache"
	"stokpintar/backend/internal/domain"
	"stokpintar/backend/internal/forecast"
	"stokpintar/backend/internal/ledger"
	"stokpintar/backend/internal/rollup"
	"stokpintar/backend/internal/sales"
	"stokpintar/backend/internal/store"
	"stokpintar/backend/internal/store/memory"
)

var fixedNow = time.Date(2026, 5, 8, 9, 30, 0, 0, time.UTC)

type testEnv struct {
	svc     *Service
	repo    *memory.Store
	metrics *Metrics
}

func newTestEnv(t *testing.T, dashboards cache.DashboardCache) testEnv {
	t.Helper()
	repo := memory.NewSeeded()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return fixedNow }

	stock := ledger.New().WithClock(clock)
	processor := sales.NewProcessor(repo, stock, nil, logger).WithClock(clock)
	rollups := rollup.NewEngine(repo, dashboards, time.Minute, logger).WithClock(clock).WithLocation(time.UTC)
	advisor := forecast.NewAdvisor(repo).WithClock(clock)
	metrics := NewMetrics(prometheus.NewRegistry())

	svc := New(repo, stock, processor, rollups, advisor, metrics, logger).WithClock(clock)
	return testEnv{svc: svc, repo: repo, metrics: metrics}
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: domain.RoleAdmin})
}

func cashierCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "cashier", Role: domain.RoleCashier})
}

func TestWritesRequireAdmin(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := cashierCtx()

	_, err := env.svc.AddProduct(ctx, domain.ProductCreateRequest{SKU: "X", Name: "X", Category: "x"})
	require.ErrorIs(t, err, ErrForbidden)
	_, err = env.svc.UpdateStock(ctx, "prod_mie_01", 5)
	require.ErrorIs(t, err, ErrForbidden)
	require.ErrorIs(t, env.svc.DeleteProduct(context.Background(), "prod_mie_01"), ErrForbidden)
	_, err = env.svc.TriggerRollup(ctx, "")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.ProcessSale(ctx, domain.SaleRequest{
		Items:         []domain.SaleItem{{ProductID: "prod_mie_01", Quantity: 1}},
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
}

func TestAddProductRaisesInitialAlertAndRejectsDuplicateSKU(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := adminCtx()

	product, err := env.svc.AddProduct(ctx, domain.ProductCreateRequest{
		SKU:            " sku-baru-01 ",
		Name:           "Produk Baru",
		Category:       "snack",
		PriceCents:     5000,
		CostPriceCents: 3000,
		Quantity:       2,
		MinStockLevel:  5,
	})
	require.NoError(t, err)
	require.Equal(t, "SKU-BARU-01", product.SKU)
	require.True(t, product.Active)

	unresolved := false
	alerts, err := env.svc.StockAlerts(ctx, &unresolved)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, product.ID, alerts[0].ProductID)

	_, err = env.svc.AddProduct(ctx, domain.ProductCreateRequest{SKU: "SKU-BARU-01", Name: "Copy", Category: "snack"})
	require.ErrorIs(t, err, store.ErrDuplicateSKU)
}

func TestUpdateProductReconcilesAgainstNewMinimum(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := adminCtx()
	unresolved := false

	minLevel := 50
	_, err := env.svc.UpdateProduct(ctx, "prod_gula_01", domain.ProductUpdateRequest{MinStockLevel: &minLevel})
	require.NoError(t, err)
	alerts, _ := env.svc.StockAlerts(ctx, &unresolved)
	require.Len(t, alerts, 1)
	require.Equal(t, "prod_gula_01", alerts[0].ProductID)

	qty := 51
	updated, err := env.svc.UpdateProduct(ctx, "prod_gula_01", domain.ProductUpdateRequest{Quantity: &qty})
	require.NoError(t, err)
	require.Equal(t, 51, updated.Quantity)
	alerts, _ = env.svc.StockAlerts(ctx, &unresolved)
	require.Empty(t, alerts)

	sku := "SKU-TEH-01"
	_, err = env.svc.UpdateProduct(ctx, "prod_gula_01", domain.ProductUpdateRequest{SKU: &sku})
	require.ErrorIs(t, err, store.ErrDuplicateSKU)

	_, err = env.svc.UpdateProduct(ctx, "missing", domain.ProductUpdateRequest{SKU: &sku})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteProductIsSoft(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := adminCtx()

	require.NoError(t, env.svc.DeleteProduct(ctx, "prod_roti_01"))
	product, err := env.svc.GetProduct(ctx, "prod_roti_01")
	require.NoError(t, err)
	require.False(t, product.Active)

	active, err := env.svc.ListProducts(ctx, "bakery", true)
	require.NoError(t, err)
	require.Empty(t, active)
	found, err := env.svc.SearchProducts(ctx, "roti", "")
	require.NoError(t, err)
	require.Empty(t, found)

	_, err = env.svc.ProcessSale(ctx, domain.SaleRequest{
		Items:         []domain.SaleItem{{ProductID: "prod_roti_01", Quantity: 1}},
		PaymentMethod: "cash",
	})
	require.ErrorIs(t, err, store.ErrInvalidInput)
}

func TestUpdateStockClampsAndReportsTruncation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := adminCtx()

	resp, err := env.svc.UpdateStock(ctx, "prod_roti_01", -45)
	require.NoError(t, err)
	require.Equal(t, 30, resp.PreviousQuantity)
	require.Equal(t, 0, resp.NewQuantity)
	require.Equal(t, 15, resp.Truncated)

	alerts, _ := env.svc.StockAlerts(ctx, nil)
	require.Len(t, alerts, 1)
	require.Equal(t, domain.AlertOutOfStock, alerts[0].Kind)

	_, err = env.svc.UpdateStock(ctx, "prod_roti_01", 0)
	require.ErrorIs(t, err, store.ErrInvalidInput)
	_, err = env.svc.UpdateStock(ctx, "missing", 3)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestResolveAndReconcileAlerts(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := adminCtx()

	_, err := env.svc.UpdateStock(ctx, "prod_sabun_01", -65)
	require.NoError(t, err)
	alerts, _ := env.svc.StockAlerts(ctx, nil)
	require.Len(t, alerts, 1)

	resolved, err := env.svc.ResolveStockAlert(ctx, alerts[0].ID)
	require.NoError(t, err)
	require.True(t, resolved.Resolved)
	require.NotNil(t, resolved.ResolvedAt)

	// Still below the minimum, so reconciliation raises a fresh alert.
	changed, err := env.svc.ReconcileAlerts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, changed)

	changed, err = env.svc.ReconcileAlerts(ctx)
	require.NoError(t, err)
	require.Zero(t, changed)

	_, err = env.svc.ResolveStockAlert(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSaleInvalidatesCachedDashboard(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	env := newTestEnv(t, cache.NewRedisDashboardCache(client))
	ctx := cashierCtx()

	before, err := env.svc.Dashboard(ctx, "today")
	require.NoError(t, err)
	require.Zero(t, before.TotalTransactions)

	receipt, err := env.svc.ProcessSale(ctx, domain.SaleRequest{
		Items:         []domain.SaleItem{{ProductID: "prod_mie_01", Quantity: 2}},
		PaymentMethod: "cash",
	})
	require.NoError(t, err)
	require.EqualValues(t, 7000, receipt.TotalCents)

	after, err := env.svc.Dashboard(ctx, "today")
	require.NoError(t, err)
	require.Equal(t, 1, after.TotalTransactions)
	require.EqualValues(t, 7000, after.TotalSalesCents)

	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.sales.WithLabelValues("committed")))
	require.Equal(t, 2.0, testutil.ToFloat64(env.metrics.units))
}

func TestSalesHistoryAndProductScope(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := cashierCtx()

	for _, id := range []string{"prod_mie_01", "prod_kopi_01", "prod_mie_01"} {
		_, err := env.svc.ProcessSale(ctx, domain.SaleRequest{
			Items:         []domain.SaleItem{{ProductID: id, Quantity: 1}},
			PaymentMethod: "qris",
		})
		require.NoError(t, err)
	}
	_, err := env.svc.ProcessSale(ctx, domain.SaleRequest{
		Items:         []domain.SaleItem{{ProductID: "prod_mie_01", Quantity: 999}},
		PaymentMethod: "cash",
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	require.Equal(t, 1.0, testutil.ToFloat64(env.metrics.sales.WithLabelValues("insufficient_stock")))

	lines, err := env.svc.SalesHistory(ctx, SaleQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, lines, 2)

	mie, err := env.svc.SalesByProduct(ctx, "prod_mie_01", SaleQuery{})
	require.NoError(t, err)
	require.Len(t, mie, 2)

	txs, err := env.svc.Transactions(ctx, SaleQuery{})
	require.NoError(t, err)
	require.Len(t, txs, 3)

	_, err = env.svc.SalesByProduct(ctx, "missing", SaleQuery{})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestTriggerRollupDefaultsToToday(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := adminCtx()

	_, err := env.svc.ProcessSale(ctx, domain.SaleRequest{
		Items:         []domain.SaleItem{{ProductID: "prod_susu_01", Quantity: 1}},
		PaymentMethod: "cash",
	})
	require.NoError(t, err)

	snapshot, err := env.svc.TriggerRollup(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "2026-05-08", snapshot.Date)
	require.EqualValues(t, 18900, snapshot.TotalSalesCents)

	stored, err := env.svc.DailyAnalytics(ctx, "2026-05-08")
	require.NoError(t, err)
	require.Equal(t, snapshot, stored)

	history, err := env.svc.AnalyticsHistory(ctx, "2026-05-01", "2026-05-31")
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestReorderSuggestionsResponse(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := adminCtx()

	_, err := env.svc.UpdateStock(ctx, "prod_telur_01", -40)
	require.NoError(t, err)

	resp, err := env.svc.ReorderSuggestions(ctx)
	require.NoError(t, err)
	require.Equal(t, fixedNow.Format(time.RFC3339), resp.GeneratedAt)
	require.Len(t, resp.Suggestions, 1)
	require.Equal(t, domain.UrgencyCritical, resp.Suggestions[0].Urgency)

	projection, err := env.svc.Forecast(ctx, "prod_telur_01", 0)
	require.NoError(t, err)
	require.Len(t, projection.Forecast, 7)
}
