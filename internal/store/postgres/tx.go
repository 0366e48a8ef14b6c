package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"stokpintar/backend/internal/domain"
	"stokpintar/backend/internal/store"
)

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, t.tx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
}

func (t *pgTx) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return getProduct(ctx, t.tx, `SELECT `+productColumns+` FROM products WHERE upper(sku) = upper($1) FOR UPDATE`, strings.TrimSpace(sku))
}

func (t *pgTx) InsertProduct(ctx context.Context, p domain.Product) error {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.SKU) == "" {
		return store.ErrInvalidInput
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO products (
			id, sku, name, description, category, supplier, price_cents, cost_price_cents,
			quantity, min_stock_level, active, expiry_date, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, p.ID, p.SKU, p.Name, p.Description, p.Category, p.Supplier, p.PriceCents, p.CostPriceCents,
		p.Quantity, p.MinStockLevel, p.Active, nullDate(p.ExpiryDate), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateSKU
		}
		return err
	}
	return nil
}

func (t *pgTx) SaveProduct(ctx context.Context, p domain.Product) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET sku = $2, name = $3, description = $4, category = $5, supplier = $6,
		    price_cents = $7, cost_price_cents = $8, quantity = $9, min_stock_level = $10,
		    active = $11, expiry_date = $12, updated_at = $13
		WHERE id = $1
	`, p.ID, p.SKU, p.Name, p.Description, p.Category, p.Supplier, p.PriceCents, p.CostPriceCents,
		p.Quantity, p.MinStockLevel, p.Active, nullDate(p.ExpiryDate), p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateSKU
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) OpenAlerts(ctx context.Context, productID string) ([]domain.StockAlert, error) {
	return queryAlerts(ctx, t.tx, `
		SELECT `+alertColumns+`
		FROM stock_alerts
		WHERE product_id = $1 AND NOT resolved
		ORDER BY created_at ASC, id ASC
		FOR UPDATE
	`, productID)
}

func (t *pgTx) InsertAlert(ctx context.Context, alert domain.StockAlert) error {
	if strings.TrimSpace(alert.ID) == "" {
		return store.ErrInvalidInput
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO stock_alerts (id, product_id, product_name, current_stock, min_stock_level, kind, resolved, created_at, resolved_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, alert.ID, alert.ProductID, alert.ProductName, alert.CurrentStock, alert.MinStockLevel,
		alert.Kind, alert.Resolved, alert.CreatedAt, nullTime(alert.ResolvedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (t *pgTx) SaveAlert(ctx context.Context, alert domain.StockAlert) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE stock_alerts
		SET current_stock = $2, min_stock_level = $3, kind = $4, resolved = $5, resolved_at = $6
		WHERE id = $1
	`, alert.ID, alert.CurrentStock, alert.MinStockLevel, alert.Kind, alert.Resolved, nullTime(alert.ResolvedAt))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *pgTx) GetAlert(ctx context.Context, id string) (*domain.StockAlert, error) {
	alert, err := scanAlert(t.tx.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM stock_alerts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &alert, nil
}

func (t *pgTx) InsertSaleLine(ctx context.Context, line domain.SaleLine) error {
	if strings.TrimSpace(line.ID) == "" || line.Quantity < 1 {
		return store.ErrInvalidInput
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sale_lines (
			id, transaction_id, product_id, product_name, quantity, unit_price_cents,
			total_cents, profit_cents, category, customer_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, line.ID, line.TransactionID, line.ProductID, line.ProductName, line.Quantity, line.UnitPriceCents,
		line.TotalCents, line.ProfitCents, line.Category, line.CustomerID, line.Timestamp)
	return err
}

func (t *pgTx) InsertTransaction(ctx context.Context, tx domain.Transaction) error {
	if strings.TrimSpace(tx.ID) == "" || len(tx.Items) == 0 {
		return store.ErrInvalidInput
	}
	itemsJSON, err := json.Marshal(tx.Items)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO transactions (id, items, total_cents, total_profit_cents, payment_method, customer_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, tx.ID, itemsJSON, tx.TotalCents, tx.TotalProfitCents, tx.PaymentMethod, tx.CustomerID, tx.Timestamp)
	return err
}
