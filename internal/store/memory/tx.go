package memory

import (
	"context"
	"strings"

	"stokpintar/backend/internal/domain"
	"stokpintar/backend/internal/store"
)

// memTx stages writes on top of the store. The owning Store's write lock is
// held for the whole lifetime of a memTx.
type memTx struct {
	s            *Store
	products     map[string]domain.Product
	alerts       map[string]domain.StockAlert
	newAlerts    []string
	sales        []domain.SaleLine
	transactions []domain.Transaction
}

func newTx(s *Store) *memTx {
	return &memTx{
		s:        s,
		products: make(map[string]domain.Product, 4),
		alerts:   make(map[string]domain.StockAlert, 2),
	}
}

func (t *memTx) lookupProduct(id string) (domain.Product, bool) {
	if p, ok := t.products[id]; ok {
		return p, true
	}
	p, ok := t.s.products[id]
	return p, ok
}

func (t *memTx) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	p, ok := t.lookupProduct(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneProduct(p)
	return &out, nil
}

func (t *memTx) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	key := skuKey(sku)
	if key == "" {
		return nil, store.ErrNotFound
	}
	for _, p := range t.products {
		if skuKey(p.SKU) == key {
			out := cloneProduct(p)
			return &out, nil
		}
	}
	id, ok := t.s.productIDBySKU[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	p, ok := t.lookupProduct(id)
	if !ok || skuKey(p.SKU) != key {
		// renamed earlier in this tx
		return nil, store.ErrNotFound
	}
	out := cloneProduct(p)
	return &out, nil
}

func (t *memTx) InsertProduct(ctx context.Context, product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" || skuKey(product.SKU) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := t.lookupProduct(product.ID); exists {
		return store.ErrInvalidInput
	}
	if _, err := t.GetProductBySKU(ctx, product.SKU); err == nil {
		return store.ErrDuplicateSKU
	}
	t.products[product.ID] = cloneProduct(product)
	return nil
}

func (t *memTx) SaveProduct(ctx context.Context, product domain.Product) error {
	if _, exists := t.lookupProduct(product.ID); !exists {
		return store.ErrNotFound
	}
	if existing, err := t.GetProductBySKU(ctx, product.SKU); err == nil && existing.ID != product.ID {
		return store.ErrDuplicateSKU
	}
	t.products[product.ID] = cloneProduct(product)
	return nil
}

func (t *memTx) lookupAlert(id string) (domain.StockAlert, bool) {
	if a, ok := t.alerts[id]; ok {
		return a, true
	}
	idx, ok := t.s.alertIndex[id]
	if !ok {
		return domain.StockAlert{}, false
	}
	return t.s.alerts[idx], true
}

func (t *memTx) OpenAlerts(_ context.Context, productID string) ([]domain.StockAlert, error) {
	result := make([]domain.StockAlert, 0, 1)
	for _, base := range t.s.alerts {
		if base.ProductID != productID {
			continue
		}
		alert, _ := t.lookupAlert(base.ID)
		if !alert.Resolved {
			result = append(result, cloneAlert(alert))
		}
	}
	for _, id := range t.newAlerts {
		alert := t.alerts[id]
		if alert.ProductID == productID && !alert.Resolved {
			result = append(result, cloneAlert(alert))
		}
	}
	return result, nil
}

func (t *memTx) InsertAlert(_ context.Context, alert domain.StockAlert) error {
	if strings.TrimSpace(alert.ID) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := t.lookupAlert(alert.ID); exists {
		return store.ErrInvalidInput
	}
	t.alerts[alert.ID] = cloneAlert(alert)
	t.newAlerts = append(t.newAlerts, alert.ID)
	return nil
}

func (t *memTx) SaveAlert(_ context.Context, alert domain.StockAlert) error {
	if _, exists := t.lookupAlert(alert.ID); !exists {
		return store.ErrNotFound
	}
	t.alerts[alert.ID] = cloneAlert(alert)
	return nil
}

func (t *memTx) GetAlert(_ context.Context, id string) (*domain.StockAlert, error) {
	alert, ok := t.lookupAlert(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneAlert(alert)
	return &out, nil
}

func (t *memTx) InsertSaleLine(_ context.Context, line domain.SaleLine) error {
	if strings.TrimSpace(line.ID) == "" || line.Quantity < 1 {
		return store.ErrInvalidInput
	}
	t.sales = append(t.sales, line)
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, tx domain.Transaction) error {
	if strings.TrimSpace(tx.ID) == "" || len(tx.Items) == 0 {
		return store.ErrInvalidInput
	}
	t.transactions = append(t.transactions, tx)
	return nil
}

func (t *memTx) commit() {
	s := t.s
	for id, p := range t.products {
		if old, ok := s.products[id]; ok && skuKey(old.SKU) != skuKey(p.SKU) {
			delete(s.productIDBySKU, skuKey(old.SKU))
		}
		s.products[id] = p
		s.productIDBySKU[skuKey(p.SKU)] = id
	}
	for id, alert := range t.alerts {
		if idx, ok := s.alertIndex[id]; ok {
			s.alerts[idx] = alert
		}
	}
	for _, id := range t.newAlerts {
		s.alertIndex[id] = len(s.alerts)
		s.alerts = append(s.alerts, t.alerts[id])
	}
	s.sales = append(s.sales, t.sales...)
	s.transactions = append(s.transactions, t.transactions...)
}
