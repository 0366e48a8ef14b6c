package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stokpintar/backend/internal/domain"
	"stokpintar/backend/internal/forecast"
	"stokpintar/backend/internal/ledger"
	"stokpintar/backend/internal/rollup"
	"stokpintar/backend/internal/sales"
	"stokpintar/backend/internal/store"
	"stokpintar/backend/internal/xid"
)

const (
	searchLimit         = 20
	defaultHistoryLimit = 100
	defaultTxLimit      = 50
	maxListLimit        = 1000
)

var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// SaleQuery narrows sales history reads. Results are newest first.
type SaleQuery struct {
	ProductID string
	From      time.Time
	To        time.Time
	Limit     int
}

type Service struct {
	repo      store.Repository
	ledger    *ledger.Ledger
	processor *sales.Processor
	rollups   *rollup.Engine
	advisor   *forecast.Advisor
	metrics   *Metrics
	logger    *slog.Logger
	clock     func() time.Time
}

// New wires the engine components behind one facade. Committed sales drop
// cached dashboards.
func New(repo store.Repository, stock *ledger.Ledger, processor *sales.Processor, rollups *rollup.Engine, advisor *forecast.Advisor, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:      repo,
		ledger:    stock,
		processor: processor,
		rollups:   rollups,
		advisor:   advisor,
		metrics:   metrics,
		logger:    logger,
		clock:     func() time.Time { return time.Now().UTC() },
	}
	processor.OnCommit(func(ctx context.Context, _ domain.SaleReceipt) {
		s.rollups.InvalidateDashboards(ctx)
	})
	return s
}

func (s *Service) WithClock(clock func() time.Time) *Service {
	if clock != nil {
		s.clock = clock
	}
	return s
}

func (s *Service) ListProducts(ctx context.Context, category string, activeOnly bool) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, domain.ProductFilter{Category: category, ActiveOnly: activeOnly})
}

func (s *Service) SearchProducts(ctx context.Context, term string, category string) ([]domain.Product, error) {
	return s.repo.SearchProducts(ctx, term, category, searchLimit)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return s.repo.ListCategories(ctx)
}

func (s *Service) AddProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	req.Supplier = strings.TrimSpace(req.Supplier)
	if req.SKU == "" || req.Name == "" || req.Category == "" {
		return domain.Product{}, fmt.Errorf("sku, name and category are required: %w", store.ErrInvalidInput)
	}
	if req.PriceCents < 0 || req.CostPriceCents < 0 || req.Quantity < 0 || req.MinStockLevel < 0 {
		return domain.Product{}, fmt.Errorf("prices and quantities must not be negative: %w", store.ErrInvalidInput)
	}

	now := s.clock()
	product := domain.Product{
		ID:             xid.New("prod"),
		SKU:            req.SKU,
		Name:           req.Name,
		Description:    strings.TrimSpace(req.Description),
		Category:       req.Category,
		Supplier:       req.Supplier,
		PriceCents:     req.PriceCents,
		CostPriceCents: req.CostPriceCents,
		Quantity:       req.Quantity,
		MinStockLevel:  req.MinStockLevel,
		Active:         true,
		ExpiryDate:     req.ExpiryDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetProductBySKU(ctx, product.SKU); err == nil {
			return fmt.Errorf("sku %s: %w", product.SKU, store.ErrDuplicateSKU)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.InsertProduct(ctx, product); err != nil {
			return err
		}
		_, err := s.ledger.Reconcile(ctx, tx, product)
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.rollups.InvalidateDashboards(ctx)
	s.logAudit(ctx, "product_create", product.ID, slog.String("sku", product.SKU), slog.Int("quantity", product.Quantity))
	return product, nil
}

// UpdateProduct applies a partial edit. A quantity edit goes through the
// ledger; any edit re-checks the alert state against the new minimum level.
func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	id = strings.TrimSpace(id)

	var updated domain.Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		next, err := applyUpdate(*existing, req)
		if err != nil {
			return err
		}
		if next.SKU != existing.SKU {
			if other, err := tx.GetProductBySKU(ctx, next.SKU); err == nil && other.ID != id {
				return fmt.Errorf("sku %s: %w", next.SKU, store.ErrDuplicateSKU)
			} else if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		next.Quantity = existing.Quantity
		next.UpdatedAt = s.clock()
		if err := tx.SaveProduct(ctx, next); err != nil {
			return err
		}

		if req.Quantity != nil {
			if _, err := s.ledger.SetQuantity(ctx, tx, id, *req.Quantity); err != nil {
				return err
			}
		} else if _, err := s.ledger.Reconcile(ctx, tx, next); err != nil {
			return err
		}

		saved, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		updated = *saved
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.rollups.InvalidateDashboards(ctx)
	s.logAudit(ctx, "product_update", updated.ID, slog.String("sku", updated.SKU))
	return updated, nil
}

func applyUpdate(p domain.Product, req domain.ProductUpdateRequest) (domain.Product, error) {
	if req.SKU != nil {
		p.SKU = strings.ToUpper(strings.TrimSpace(*req.SKU))
		if p.SKU == "" {
			return p, fmt.Errorf("sku must not be empty: %w", store.ErrInvalidInput)
		}
	}
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
		if p.Name == "" {
			return p, fmt.Errorf("name must not be empty: %w", store.ErrInvalidInput)
		}
	}
	if req.Category != nil {
		p.Category = strings.TrimSpace(*req.Category)
		if p.Category == "" {
			return p, fmt.Errorf("category must not be empty: %w", store.ErrInvalidInput)
		}
	}
	if req.Description != nil {
		p.Description = strings.TrimSpace(*req.Description)
	}
	if req.Supplier != nil {
		p.Supplier = strings.TrimSpace(*req.Supplier)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return p, fmt.Errorf("price must not be negative: %w", store.ErrInvalidInput)
		}
		p.PriceCents = *req.PriceCents
	}
	if req.CostPriceCents != nil {
		if *req.CostPriceCents < 0 {
			return p, fmt.Errorf("cost price must not be negative: %w", store.ErrInvalidInput)
		}
		p.CostPriceCents = *req.CostPriceCents
	}
	if req.Quantity != nil && *req.Quantity < 0 {
		return p, fmt.Errorf("quantity must not be negative: %w", store.ErrInvalidInput)
	}
	if req.MinStockLevel != nil {
		if *req.MinStockLevel < 0 {
			return p, fmt.Errorf("min stock level must not be negative: %w", store.ErrInvalidInput)
		}
		p.MinStockLevel = *req.MinStockLevel
	}
	if req.Active != nil {
		p.Active = *req.Active
	}
	if req.ExpiryDate != nil {
		expiry := *req.ExpiryDate
		p.ExpiryDate = &expiry
	}
	return p, nil
}

// DeleteProduct retires a product. Its sale history stays intact.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		product, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		if !product.Active {
			return nil
		}
		product.Active = false
		product.UpdatedAt = s.clock()
		return tx.SaveProduct(ctx, *product)
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, "product_delete", id)
	return nil
}

// UpdateStock applies a manual stock delta. A negative delta larger than the
// on-hand quantity is floored at zero and the dropped amount is reported.
func (s *Service) UpdateStock(ctx context.Context, productID string, delta int) (domain.StockUpdateResponse, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockUpdateResponse{}, err
	}
	if delta == 0 {
		return domain.StockUpdateResponse{}, fmt.Errorf("delta must not be zero: %w", store.ErrInvalidInput)
	}
	productID = strings.TrimSpace(productID)

	var adj ledger.Adjustment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		adj, err = s.ledger.AdjustStock(ctx, tx, productID, delta)
		return err
	})
	if err != nil {
		return domain.StockUpdateResponse{}, err
	}

	if adj.Truncated > 0 {
		s.logger.Warn("service: stock edit clamped at zero",
			slog.String("product_id", productID),
			slog.Int("delta", delta),
			slog.Int("truncated", adj.Truncated),
		)
	}
	s.rollups.InvalidateDashboards(ctx)
	s.logAudit(ctx, "stock_update", productID, slog.Int("delta", delta), slog.Int("new_quantity", adj.NewQuantity))
	return domain.StockUpdateResponse{
		ProductID:        productID,
		PreviousQuantity: adj.PreviousQuantity,
		NewQuantity:      adj.NewQuantity,
		Truncated:        adj.Truncated,
	}, nil
}

func (s *Service) ProcessSale(ctx context.Context, req domain.SaleRequest) (domain.SaleReceipt, error) {
	receipt, err := s.processor.ProcessSale(ctx, req)
	s.metrics.observeSale(receipt, err)
	if err != nil {
		return domain.SaleReceipt{}, err
	}
	return receipt, nil
}

func (s *Service) SalesHistory(ctx context.Context, query SaleQuery) ([]domain.SaleLine, error) {
	return s.repo.ListSaleLines(ctx, saleFilter(query, defaultHistoryLimit))
}

func (s *Service) Transactions(ctx context.Context, query SaleQuery) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, saleFilter(query, defaultTxLimit))
}

// SalesByProduct is SalesHistory for one known product.
func (s *Service) SalesByProduct(ctx context.Context, productID string, query SaleQuery) ([]domain.SaleLine, error) {
	productID = strings.TrimSpace(productID)
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	query.ProductID = productID
	return s.SalesHistory(ctx, query)
}

func saleFilter(query SaleQuery, defaultLimit int) domain.SaleFilter {
	limit := query.Limit
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return domain.SaleFilter{
		ProductID: strings.TrimSpace(query.ProductID),
		From:      query.From,
		To:        query.To,
		Limit:     limit,
		Newest:    true,
	}
}

func (s *Service) Dashboard(ctx context.Context, period string) (domain.DashboardAnalytics, error) {
	return s.rollups.Dashboard(ctx, period)
}

func (s *Service) StockAlerts(ctx context.Context, resolved *bool) ([]domain.StockAlert, error) {
	return s.repo.ListStockAlerts(ctx, resolved)
}

func (s *Service) ResolveStockAlert(ctx context.Context, alertID string) (domain.StockAlert, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.StockAlert{}, err
	}
	var alert domain.StockAlert
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		alert, err = s.ledger.ResolveAlert(ctx, tx, strings.TrimSpace(alertID))
		return err
	})
	if err != nil {
		return domain.StockAlert{}, err
	}
	s.rollups.InvalidateDashboards(ctx)
	s.logAudit(ctx, "alert_resolve", alert.ID, slog.String("product_id", alert.ProductID))
	return alert, nil
}

// ReconcileAlerts re-checks every product's alert state in one unit of work
// and returns how many alerts were raised or resolved.
func (s *Service) ReconcileAlerts(ctx context.Context) (int, error) {
	if err := requireAdmin(ctx); err != nil {
		return 0, err
	}
	products, err := s.repo.ListProducts(ctx, domain.ProductFilter{})
	if err != nil {
		return 0, err
	}

	changed := 0
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		changed = 0
		for _, listed := range products {
			product, err := tx.GetProduct(ctx, listed.ID)
			if err != nil {
				return err
			}
			rec, err := s.ledger.Reconcile(ctx, tx, *product)
			if err != nil {
				return err
			}
			if rec.Raised != nil {
				changed++
			}
			changed += len(rec.Resolved)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if changed > 0 {
		s.rollups.InvalidateDashboards(ctx)
	}
	s.logAudit(ctx, "alert_reconcile", "all", slog.Int("changed", changed))
	return changed, nil
}

func (s *Service) Forecast(ctx context.Context, productID string, days int) (domain.SalesForecast, error) {
	return s.advisor.Forecast(ctx, productID, days)
}

func (s *Service) ReorderSuggestions(ctx context.Context) (domain.ReorderSuggestionResponse, error) {
	suggestions, err := s.advisor.ReorderSuggestions(ctx)
	if err != nil {
		return domain.ReorderSuggestionResponse{}, err
	}
	return domain.ReorderSuggestionResponse{
		GeneratedAt: s.clock().Format(time.RFC3339),
		Suggestions: suggestions,
	}, nil
}

func (s *Service) DailyAnalytics(ctx context.Context, date string) (domain.DailyAnalytics, error) {
	return s.rollups.Daily(ctx, date)
}

func (s *Service) AnalyticsHistory(ctx context.Context, from string, to string) ([]domain.DailyAnalytics, error) {
	return s.rollups.History(ctx, from, to)
}

// TriggerRollup recomputes a date synchronously; an empty date means today (UTC).
func (s *Service) TriggerRollup(ctx context.Context, date string) (domain.DailyAnalytics, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.DailyAnalytics{}, err
	}
	date = strings.TrimSpace(date)
	if date == "" {
		date = s.clock().Format(time.DateOnly)
	}
	snapshot, err := s.rollups.DailyRollup(ctx, date)
	if err != nil {
		return domain.DailyAnalytics{}, err
	}
	s.logAudit(ctx, "rollup_trigger", snapshot.Date)
	return snapshot, nil
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityID string, attrs ...slog.Attr) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}
	args := make([]any, 0, len(attrs)+4)
	args = append(args,
		slog.String("action", action),
		slog.String("entity_id", entityID),
		slog.String("actor", actor.Username),
		slog.String("role", actor.Role),
	)
	for _, attr := range attrs {
		args = append(args, attr)
	}
	s.logger.InfoContext(ctx, "audit", args...)
}
