// Package ledger owns product on-hand quantities and the stock-alert
// invariant: a product has at most one unresolved alert, raised when its
// quantity falls to or below the minimum level and resolved once it climbs
// strictly above it.
package ledger

import (
	"context"
	"fmt"
	"time"

	"stokpintar/backend/internal/domain"
	"stokpintar/backend/internal/store"
	"stokpintar/backend/internal/xid"
)

type Ledger struct {
	clock func() time.Time
}

func New() *Ledger {
	return &Ledger{clock: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the time source used for alert and product timestamps.
func (l *Ledger) WithClock(clock func() time.Time) *Ledger {
	if clock != nil {
		l.clock = clock
	}
	return l
}

type Adjustment struct {
	ProductID        string
	PreviousQuantity int
	NewQuantity      int
	// Truncated is how much of a negative delta was dropped by the zero floor.
	Truncated int
	Alerts    Reconciliation
}

type Reconciliation struct {
	Raised   *domain.StockAlert
	Resolved []string
}

// AdjustStock applies delta to the product's quantity, flooring the result at
// zero, and reconciles the product's alerts against its minimum level.
func (l *Ledger) AdjustStock(ctx context.Context, tx store.Tx, productID string, delta int) (Adjustment, error) {
	product, err := tx.GetProduct(ctx, productID)
	if err != nil {
		return Adjustment{}, err
	}

	previous := product.Quantity
	next := previous + delta
	truncated := 0
	if next < 0 {
		truncated = -next
		next = 0
	}

	product.Quantity = next
	product.UpdatedAt = l.clock()
	if err := tx.SaveProduct(ctx, *product); err != nil {
		return Adjustment{}, fmt.Errorf("ledger: save product %s: %w", productID, err)
	}

	rec, err := l.Reconcile(ctx, tx, *product)
	if err != nil {
		return Adjustment{}, err
	}
	return Adjustment{
		ProductID:        productID,
		PreviousQuantity: previous,
		NewQuantity:      next,
		Truncated:        truncated,
		Alerts:           rec,
	}, nil
}

// SetQuantity moves the product to an absolute quantity through AdjustStock.
func (l *Ledger) SetQuantity(ctx context.Context, tx store.Tx, productID string, quantity int) (Adjustment, error) {
	if quantity < 0 {
		return Adjustment{}, store.ErrInvalidInput
	}
	product, err := tx.GetProduct(ctx, productID)
	if err != nil {
		return Adjustment{}, err
	}
	return l.AdjustStock(ctx, tx, productID, quantity-product.Quantity)
}

// Reconcile compares the product's current quantity with its current minimum
// level. It is called after every quantity change and after threshold edits.
func (l *Ledger) Reconcile(ctx context.Context, tx store.Tx, product domain.Product) (Reconciliation, error) {
	open, err := tx.OpenAlerts(ctx, product.ID)
	if err != nil {
		return Reconciliation{}, fmt.Errorf("ledger: load alerts for %s: %w", product.ID, err)
	}

	var rec Reconciliation
	if product.Quantity <= product.MinStockLevel {
		if len(open) > 0 {
			return rec, nil
		}
		alert := domain.StockAlert{
			ID:            xid.New("alert"),
			ProductID:     product.ID,
			ProductName:   product.Name,
			CurrentStock:  product.Quantity,
			MinStockLevel: product.MinStockLevel,
			Kind:          alertKind(product.Quantity),
			CreatedAt:     l.clock(),
		}
		if err := tx.InsertAlert(ctx, alert); err != nil {
			return Reconciliation{}, fmt.Errorf("ledger: raise alert for %s: %w", product.ID, err)
		}
		rec.Raised = &alert
		return rec, nil
	}

	for _, alert := range open {
		if err := l.resolve(ctx, tx, alert); err != nil {
			return Reconciliation{}, err
		}
		rec.Resolved = append(rec.Resolved, alert.ID)
	}
	return rec, nil
}

// ResolveAlert marks an alert resolved by hand. Resolving twice is a no-op.
func (l *Ledger) ResolveAlert(ctx context.Context, tx store.Tx, alertID string) (domain.StockAlert, error) {
	alert, err := tx.GetAlert(ctx, alertID)
	if err != nil {
		return domain.StockAlert{}, err
	}
	if alert.Resolved {
		return *alert, nil
	}
	if err := l.resolve(ctx, tx, *alert); err != nil {
		return domain.StockAlert{}, err
	}
	resolved, err := tx.GetAlert(ctx, alertID)
	if err != nil {
		return domain.StockAlert{}, err
	}
	return *resolved, nil
}

func (l *Ledger) resolve(ctx context.Context, tx store.Tx, alert domain.StockAlert) error {
	at := l.clock()
	alert.Resolved = true
	alert.ResolvedAt = &at
	if err := tx.SaveAlert(ctx, alert); err != nil {
		return fmt.Errorf("ledger: resolve alert %s: %w", alert.ID, err)
	}
	return nil
}

func alertKind(quantity int) string {
	if quantity == 0 {
		return domain.AlertOutOfStock
	}
	return domain.AlertLowStock
}
