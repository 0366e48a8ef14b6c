package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"stokpintar/backend/internal/domain"
	"stokpintar/backend/internal/store"
)

//go:embed schema.sql
var schema string

// maxTxAttempts bounds retries of a unit of work aborted by a serialization
// failure.
const maxTxAttempts = 3

type Store struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables this store needs. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

// WithTx runs fn in a serializable transaction, retrying it when postgres
// aborts the transaction with a serialization failure.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &pgTx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

const productColumns = `id, sku, name, description, category, supplier, price_cents, cost_price_cents,
	quantity, min_stock_level, active, expiry_date, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p      domain.Product
		expiry sql.NullTime
	)
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category, &p.Supplier, &p.PriceCents, &p.CostPriceCents,
		&p.Quantity, &p.MinStockLevel, &p.Active, &expiry, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Product{}, err
	}
	if expiry.Valid {
		at := expiry.Time.UTC()
		p.ExpiryDate = &at
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func queryProducts(ctx context.Context, q querier, query string, args ...any) ([]domain.Product, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func getProduct(ctx context.Context, q querier, query string, arg string) (*domain.Product, error) {
	p, err := scanProduct(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	return queryProducts(ctx, s.db, `
		SELECT `+productColumns+`
		FROM products
		WHERE ($1 = '' OR category = $1)
		  AND (NOT $2 OR active)
		ORDER BY category, name, id
	`, strings.TrimSpace(filter.Category), filter.ActiveOnly)
}

func (s *Store) SearchProducts(ctx context.Context, term string, category string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 50
	}
	pattern := "%" + escapeLike(strings.TrimSpace(term)) + "%"
	return queryProducts(ctx, s.db, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		  AND ($1 = '' OR category = $1)
		  AND (name ILIKE $2 OR sku ILIKE $2)
		ORDER BY category, name, id
		LIMIT $3
	`, strings.TrimSpace(category), pattern, limit)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	return getProduct(ctx, s.db, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

func (s *Store) ListCategories(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT category FROM products ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	categories := make([]string, 0, 16)
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return categories, nil
}

// saleWindow renders the shared WHERE/ORDER/LIMIT tail of sale queries.
func saleWindow(filter domain.SaleFilter, productClause string) (string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if filter.ProductID != "" {
		args = append(args, filter.ProductID)
		clauses = append(clauses, fmt.Sprintf(productClause, len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		clauses = append(clauses, fmt.Sprintf("created_at < $%d", len(args)))
	}

	var b strings.Builder
	if len(clauses) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(clauses, " AND "))
	}
	if filter.Newest {
		b.WriteString(" ORDER BY created_at DESC, id DESC")
	} else {
		b.WriteString(" ORDER BY created_at ASC, id ASC")
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

func (s *Store) ListSaleLines(ctx context.Context, filter domain.SaleFilter) ([]domain.SaleLine, error) {
	tail, args := saleWindow(filter, "product_id = $%d")
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, product_id, product_name, quantity, unit_price_cents,
		       total_cents, profit_cents, category, customer_id, created_at
		FROM sale_lines`+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.SaleLine, 0, 64)
	for rows.Next() {
		var line domain.SaleLine
		if err := rows.Scan(&line.ID, &line.TransactionID, &line.ProductID, &line.ProductName, &line.Quantity, &line.UnitPriceCents,
			&line.TotalCents, &line.ProfitCents, &line.Category, &line.CustomerID, &line.Timestamp); err != nil {
			return nil, err
		}
		line.Timestamp = line.Timestamp.UTC()
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.SaleFilter) ([]domain.Transaction, error) {
	tail, args := saleWindow(filter, "items @> jsonb_build_array(jsonb_build_object('product_id', $%d::text))")
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, items, total_cents, total_profit_cents, payment_method, customer_id, created_at
		FROM transactions`+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]domain.Transaction, 0, 32)
	for rows.Next() {
		var (
			tx        domain.Transaction
			itemsJSON []byte
		)
		if err := rows.Scan(&tx.ID, &itemsJSON, &tx.TotalCents, &tx.TotalProfitCents, &tx.PaymentMethod, &tx.CustomerID, &tx.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(itemsJSON, &tx.Items); err != nil {
			return nil, fmt.Errorf("postgres: decode items of %s: %w", tx.ID, err)
		}
		tx.Timestamp = tx.Timestamp.UTC()
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txs, nil
}

const alertColumns = `id, product_id, product_name, current_stock, min_stock_level, kind, resolved, created_at, resolved_at`

func scanAlert(row rowScanner) (domain.StockAlert, error) {
	var (
		alert      domain.StockAlert
		resolvedAt sql.NullTime
	)
	if err := row.Scan(&alert.ID, &alert.ProductID, &alert.ProductName, &alert.CurrentStock, &alert.MinStockLevel,
		&alert.Kind, &alert.Resolved, &alert.CreatedAt, &resolvedAt); err != nil {
		return domain.StockAlert{}, err
	}
	alert.CreatedAt = alert.CreatedAt.UTC()
	if resolvedAt.Valid {
		at := resolvedAt.Time.UTC()
		alert.ResolvedAt = &at
	}
	return alert, nil
}

func queryAlerts(ctx context.Context, q querier, query string, args ...any) ([]domain.StockAlert, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]domain.StockAlert, 0, 16)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (s *Store) ListStockAlerts(ctx context.Context, resolved *bool) ([]domain.StockAlert, error) {
	if resolved == nil {
		return queryAlerts(ctx, s.db, `SELECT `+alertColumns+` FROM stock_alerts ORDER BY created_at DESC, id DESC`)
	}
	return queryAlerts(ctx, s.db, `
		SELECT `+alertColumns+`
		FROM stock_alerts
		WHERE resolved = $1
		ORDER BY created_at DESC, id DESC
	`, *resolved)
}

func (s *Store) GetDailyAnalytics(ctx context.Context, date string) (*domain.DailyAnalytics, error) {
	snapshot, err := scanAnalytics(s.db.QueryRowContext(ctx, `
		SELECT to_char(date, 'YYYY-MM-DD'), total_sales_cents, total_profit_cents, total_transactions,
		       top_selling_products, category_performance
		FROM daily_analytics
		WHERE date = $1::date
	`, date))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &snapshot, nil
}

// UpsertDailyAnalytics replaces the snapshot for its date.
func (s *Store) UpsertDailyAnalytics(ctx context.Context, snapshot domain.DailyAnalytics) error {
	if strings.TrimSpace(snapshot.Date) == "" {
		return store.ErrInvalidInput
	}
	topJSON, err := json.Marshal(nonNil(snapshot.TopSellingProducts))
	if err != nil {
		return err
	}
	categoryJSON, err := json.Marshal(nonNil(snapshot.CategoryPerformance))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO daily_analytics (
			date, total_sales_cents, total_profit_cents, total_transactions,
			top_selling_products, category_performance, updated_at
		)
		VALUES ($1::date, $2, $3, $4, $5, $6, now())
		ON CONFLICT (date)
		DO UPDATE SET
			total_sales_cents = EXCLUDED.total_sales_cents,
			total_profit_cents = EXCLUDED.total_profit_cents,
			total_transactions = EXCLUDED.total_transactions,
			top_selling_products = EXCLUDED.top_selling_products,
			category_performance = EXCLUDED.category_performance,
			updated_at = now()
	`, snapshot.Date, snapshot.TotalSalesCents, snapshot.TotalProfitCents, snapshot.TotalTransactions, topJSON, categoryJSON)
	return err
}

func (s *Store) ListDailyAnalytics(ctx context.Context, fromDate string, toDate string) ([]domain.DailyAnalytics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT to_char(date, 'YYYY-MM-DD'), total_sales_cents, total_profit_cents, total_transactions,
		       top_selling_products, category_performance
		FROM daily_analytics
		WHERE ($1 = '' OR date >= $1::date)
		  AND ($2 = '' OR date <= $2::date)
		ORDER BY date ASC
	`, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]domain.DailyAnalytics, 0, 31)
	for rows.Next() {
		snapshot, err := scanAnalytics(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, snapshot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return history, nil
}

func scanAnalytics(row rowScanner) (domain.DailyAnalytics, error) {
	var (
		snapshot     domain.DailyAnalytics
		topJSON      []byte
		categoryJSON []byte
	)
	if err := row.Scan(&snapshot.Date, &snapshot.TotalSalesCents, &snapshot.TotalProfitCents, &snapshot.TotalTransactions,
		&topJSON, &categoryJSON); err != nil {
		return domain.DailyAnalytics{}, err
	}
	if err := json.Unmarshal(topJSON, &snapshot.TopSellingProducts); err != nil {
		return domain.DailyAnalytics{}, fmt.Errorf("postgres: decode top products of %s: %w", snapshot.Date, err)
	}
	if err := json.Unmarshal(categoryJSON, &snapshot.CategoryPerformance); err != nil {
		return domain.DailyAnalytics{}, fmt.Errorf("postgres: decode categories of %s: %w", snapshot.Date, err)
	}
	snapshot.TopSellingProducts = nonNil(snapshot.TopSellingProducts)
	snapshot.CategoryPerformance = nonNil(snapshot.CategoryPerformance)
	return snapshot, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,true,$4,now())
	`, user.Username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	u := val.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}
