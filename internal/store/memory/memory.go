package memory

import (
	"cmp"
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stokpintar/backend/internal/domain"
	"stokpintar/backend/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	productIDBySKU  map[string]string
	alerts          []domain.StockAlert
	alertIndex      map[string]int
	sales           []domain.SaleLine
	transactions    []domain.Transaction
	analytics       map[string]domain.DailyAnalytics
	usersByUsername map[string]domain.UserAccount
}

// New returns a store holding the given catalog and no users.
func New(products []domain.Product) *Store {
	s := &Store{
		products:        make(map[string]domain.Product, len(products)),
		productIDBySKU:  make(map[string]string, len(products)),
		alerts:          make([]domain.StockAlert, 0, 32),
		alertIndex:      make(map[string]int),
		sales:           make([]domain.SaleLine, 0, 256),
		transactions:    make([]domain.Transaction, 0, 128),
		analytics:       make(map[string]domain.DailyAnalytics),
		usersByUsername: make(map[string]domain.UserAccount),
	}
	now := time.Now().UTC()
	for _, p := range products {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = p.CreatedAt
		}
		s.products[p.ID] = p
		s.productIDBySKU[skuKey(p.SKU)] = p.ID
	}
	return s
}

// NewSeeded returns a store with the demo catalog and dev credentials.
func NewSeeded() *Store {
	return NewWithCatalog(DefaultCatalog())
}

// NewWithCatalog returns a store with the given catalog and dev credentials.
func NewWithCatalog(products []domain.Product) *Store {
	s := New(products)
	s.usersByUsername = seedUsers()
	return s
}

func DefaultCatalog() []domain.Product {
	return []domain.Product{
		{ID: "prod_mie_01", SKU: "SKU-MIE-01", Name: "Mie Goreng Instan", Category: "grocery", Supplier: "PT Sumber Pangan", PriceCents: 3500, CostPriceCents: 2700, Quantity: 120, MinStockLevel: 24, Active: true},
		{ID: "prod_telur_01", SKU: "SKU-TELUR-01", Name: "Telur 10 Butir", Category: "grocery", Supplier: "CV Ternak Makmur", PriceCents: 26500, CostPriceCents: 23000, Quantity: 40, MinStockLevel: 10, Active: true},
		{ID: "prod_susu_01", SKU: "SKU-SUSU-01", Name: "Susu UHT 1L", Category: "dairy", Supplier: "PT Susu Nusantara", PriceCents: 18900, CostPriceCents: 13600, Quantity: 60, MinStockLevel: 12, Active: true},
		{ID: "prod_roti_01", SKU: "SKU-ROTI-01", Name: "Roti Tawar", Category: "bakery", Supplier: "Roti Pagi", PriceCents: 17800, CostPriceCents: 12500, Quantity: 30, MinStockLevel: 8, Active: true},
		{ID: "prod_kopi_01", SKU: "SKU-KOPI-01", Name: "Kopi Sachet", Category: "beverage", Supplier: "PT Kopi Jaya", PriceCents: 2600, CostPriceCents: 1700, Quantity: 200, MinStockLevel: 40, Active: true},
		{ID: "prod_gula_01", SKU: "SKU-GULA-01", Name: "Gula 1kg", Category: "grocery", Supplier: "PT Sumber Pangan", PriceCents: 17400, CostPriceCents: 15300, Quantity: 50, MinStockLevel: 10, Active: true},
		{ID: "prod_teh_01", SKU: "SKU-TEH-01", Name: "Teh Celup", Category: "beverage", Supplier: "PT Kebun Teh", PriceCents: 9800, CostPriceCents: 7200, Quantity: 80, MinStockLevel: 15, Active: true},
		{ID: "prod_air_01", SKU: "SKU-AIR-01", Name: "Air Mineral 600ml", Category: "beverage", Supplier: "PT Mata Air", PriceCents: 3900, CostPriceCents: 3200, Quantity: 240, MinStockLevel: 48, Active: true},
		{ID: "prod_keripik_01", SKU: "SKU-KERIPIK-01", Name: "Keripik Singkong", Category: "snack", Supplier: "UD Renyah", PriceCents: 12800, CostPriceCents: 8100, Quantity: 45, MinStockLevel: 10, Active: true},
		{ID: "prod_sabun_01", SKU: "SKU-SABUN-01", Name: "Sabun Mandi", Category: "household", Supplier: "PT Bersih Selalu", PriceCents: 7400, CostPriceCents: 5000, Quantity: 70, MinStockLevel: 12, Active: true},
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD; the
// hardcoded dev defaults are used with a warning when they are unset.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// WithTx serializes units of work behind the store's write lock. Writes are
// staged on the tx and applied only when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := newTx(s)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category := strings.TrimSpace(filter.Category)
	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if category != "" && p.Category != category {
			continue
		}
		if filter.ActiveOnly && !p.Active {
			continue
		}
		result = append(result, cloneProduct(p))
	}
	sortProducts(result)
	return result, nil
}

func (s *Store) SearchProducts(_ context.Context, term string, category string, limit int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(term))
	category = strings.TrimSpace(category)
	result := make([]domain.Product, 0, 16)
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if category != "" && p.Category != category {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.Name), needle) && !strings.Contains(strings.ToLower(p.SKU), needle) {
			continue
		}
		result = append(result, cloneProduct(p))
	}
	sortProducts(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneProduct(p)
	return &out, nil
}

func (s *Store) ListCategories(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, 16)
	categories := make([]string, 0, 16)
	for _, p := range s.products {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	slices.Sort(categories)
	return categories, nil
}

func (s *Store) ListSaleLines(_ context.Context, filter domain.SaleFilter) ([]domain.SaleLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SaleLine, 0, 64)
	for _, line := range s.sales {
		if filter.ProductID != "" && line.ProductID != filter.ProductID {
			continue
		}
		if !inWindow(line.Timestamp, filter.From, filter.To) {
			continue
		}
		result = append(result, line)
	}
	slices.SortStableFunc(result, func(a, b domain.SaleLine) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	if filter.Newest {
		slices.Reverse(result)
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) ListTransactions(_ context.Context, filter domain.SaleFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, 32)
	for _, tx := range s.transactions {
		if !inWindow(tx.Timestamp, filter.From, filter.To) {
			continue
		}
		if filter.ProductID != "" && !containsProduct(tx, filter.ProductID) {
			continue
		}
		tx.Items = slices.Clone(tx.Items)
		result = append(result, tx)
	}
	slices.SortStableFunc(result, func(a, b domain.Transaction) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	if filter.Newest {
		slices.Reverse(result)
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) ListStockAlerts(_ context.Context, resolved *bool) ([]domain.StockAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockAlert, 0, len(s.alerts))
	for i := len(s.alerts) - 1; i >= 0; i-- {
		alert := s.alerts[i]
		if resolved != nil && alert.Resolved != *resolved {
			continue
		}
		result = append(result, cloneAlert(alert))
	}
	return result, nil
}

func (s *Store) GetDailyAnalytics(_ context.Context, date string) (*domain.DailyAnalytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.analytics[date]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneAnalytics(snapshot)
	return &out, nil
}

func (s *Store) UpsertDailyAnalytics(_ context.Context, snapshot domain.DailyAnalytics) error {
	if strings.TrimSpace(snapshot.Date) == "" {
		return store.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.analytics[snapshot.Date] = cloneAnalytics(snapshot)
	return nil
}

func (s *Store) ListDailyAnalytics(_ context.Context, fromDate string, toDate string) ([]domain.DailyAnalytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.DailyAnalytics, 0, len(s.analytics))
	for date, snapshot := range s.analytics {
		if fromDate != "" && date < fromDate {
			continue
		}
		if toDate != "" && date > toDate {
			continue
		}
		result = append(result, cloneAnalytics(snapshot))
	}
	slices.SortFunc(result, func(a, b domain.DailyAnalytics) int {
		return cmp.Compare(a.Date, b.Date)
	})
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidInput
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidInput
	}
	user.Username = username
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmp.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidInput
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func skuKey(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

func sortProducts(products []domain.Product) {
	slices.SortFunc(products, func(a, b domain.Product) int {
		if c := cmp.Compare(a.Category, b.Category); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func inWindow(ts time.Time, from time.Time, to time.Time) bool {
	if !from.IsZero() && ts.Before(from) {
		return false
	}
	if !to.IsZero() && !ts.Before(to) {
		return false
	}
	return true
}

func containsProduct(tx domain.Transaction, productID string) bool {
	for _, item := range tx.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

func cloneProduct(p domain.Product) domain.Product {
	if p.ExpiryDate != nil {
		expiry := *p.ExpiryDate
		p.ExpiryDate = &expiry
	}
	return p
}

func cloneAlert(a domain.StockAlert) domain.StockAlert {
	if a.ResolvedAt != nil {
		at := *a.ResolvedAt
		a.ResolvedAt = &at
	}
	return a
}

func cloneAnalytics(d domain.DailyAnalytics) domain.DailyAnalytics {
	d.TopSellingProducts = slices.Clone(d.TopSellingProducts)
	d.CategoryPerformance = slices.Clone(d.CategoryPerformance)
	return d
}
