package store

import (
	"context"
	"errors"

	"stokpintar/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicateSKU      = errors.New("duplicate sku")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
)

// Tx is the write surface of one atomic unit of work. Nothing written through a
// Tx is visible to other callers until the enclosing WithTx returns nil.
type Tx interface {
	// GetProduct loads a product for update; postgres locks the row.
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	InsertProduct(ctx context.Context, product domain.Product) error
	SaveProduct(ctx context.Context, product domain.Product) error
	// OpenAlerts returns the unresolved alerts of a product, oldest first.
	OpenAlerts(ctx context.Context, productID string) ([]domain.StockAlert, error)
	InsertAlert(ctx context.Context, alert domain.StockAlert) error
	SaveAlert(ctx context.Context, alert domain.StockAlert) error
	GetAlert(ctx context.Context, id string) (*domain.StockAlert, error)
	InsertSaleLine(ctx context.Context, line domain.SaleLine) error
	InsertTransaction(ctx context.Context, tx domain.Transaction) error
}

type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	SearchProducts(ctx context.Context, term string, category string, limit int) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListCategories(ctx context.Context) ([]string, error)

	ListSaleLines(ctx context.Context, filter domain.SaleFilter) ([]domain.SaleLine, error)
	ListTransactions(ctx context.Context, filter domain.SaleFilter) ([]domain.Transaction, error)
	ListStockAlerts(ctx context.Context, resolved *bool) ([]domain.StockAlert, error)

	GetDailyAnalytics(ctx context.Context, date string) (*domain.DailyAnalytics, error)
	UpsertDailyAnalytics(ctx context.Context, snapshot domain.DailyAnalytics) error
	ListDailyAnalytics(ctx context.Context, fromDate string, toDate string) ([]domain.DailyAnalytics, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
