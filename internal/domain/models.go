package domain

import "time"

const (
	AlertLowStock   = "low_stock"
	AlertOutOfStock = "out_of_stock"

	UrgencyCritical = "critical"
	UrgencyHigh     = "high"

	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type Product struct {
	ID             string     `json:"id" yaml:"id"`
	SKU            string     `json:"sku" yaml:"sku"`
	Name           string     `json:"name" yaml:"name"`
	Description    string     `json:"description,omitempty" yaml:"description"`
	Category       string     `json:"category" yaml:"category"`
	Supplier       string     `json:"supplier" yaml:"supplier"`
	PriceCents     int64      `json:"price_cents" yaml:"price_cents"`
	CostPriceCents int64      `json:"cost_price_cents" yaml:"cost_price_cents"`
	Quantity       int        `json:"quantity" yaml:"quantity"`
	MinStockLevel  int        `json:"min_stock_level" yaml:"min_stock_level"`
	Active         bool       `json:"active" yaml:"-"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty" yaml:"expiry_date"`
	CreatedAt      time.Time  `json:"created_at" yaml:"-"`
	UpdatedAt      time.Time  `json:"updated_at" yaml:"-"`
}

type ProductFilter struct {
	Category   string
	ActiveOnly bool
}

type ProductCreateRequest struct {
	SKU            string     `json:"sku" validate:"required,max=64"`
	Name           string     `json:"name" validate:"required,max=200"`
	Description    string     `json:"description" validate:"max=2000"`
	Category       string     `json:"category" validate:"required,max=100"`
	Supplier       string     `json:"supplier" validate:"max=200"`
	PriceCents     int64      `json:"price_cents" validate:"gte=0"`
	CostPriceCents int64      `json:"cost_price_cents" validate:"gte=0"`
	Quantity       int        `json:"quantity" validate:"gte=0"`
	MinStockLevel  int        `json:"min_stock_level" validate:"gte=0"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
}

// ProductUpdateRequest carries a partial edit; nil fields are left untouched.
type ProductUpdateRequest struct {
	SKU            *string    `json:"sku,omitempty" validate:"omitempty,min=1,max=64"`
	Name           *string    `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description    *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	Category       *string    `json:"category,omitempty" validate:"omitempty,min=1,max=100"`
	Supplier       *string    `json:"supplier,omitempty" validate:"omitempty,max=200"`
	PriceCents     *int64     `json:"price_cents,omitempty" validate:"omitempty,gte=0"`
	CostPriceCents *int64     `json:"cost_price_cents,omitempty" validate:"omitempty,gte=0"`
	Quantity       *int       `json:"quantity,omitempty" validate:"omitempty,gte=0"`
	MinStockLevel  *int       `json:"min_stock_level,omitempty" validate:"omitempty,gte=0"`
	Active         *bool      `json:"active,omitempty"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
}

type StockUpdateRequest struct {
	Delta int `json:"delta" validate:"ne=0"`
}

type StockUpdateResponse struct {
	ProductID        string `json:"product_id"`
	PreviousQuantity int    `json:"previous_quantity"`
	NewQuantity      int    `json:"new_quantity"`
	Truncated        int    `json:"truncated"`
}

type StockAlert struct {
	ID            string     `json:"id"`
	ProductID     string     `json:"product_id"`
	ProductName   string     `json:"product_name"`
	CurrentStock  int        `json:"current_stock"`
	MinStockLevel int        `json:"min_stock_level"`
	Kind          string     `json:"kind"`
	Resolved      bool       `json:"resolved"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

type SaleItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type SaleRequest struct {
	Items         []SaleItem `json:"items" validate:"required,min=1,dive"`
	PaymentMethod string     `json:"payment_method" validate:"required,max=40"`
	CustomerID    string     `json:"customer_id,omitempty" validate:"max=100"`
}

// SaleLine is one product row of a checkout. It is immutable once written.
type SaleLine struct {
	ID             string    `json:"id"`
	TransactionID  string    `json:"transaction_id"`
	ProductID      string    `json:"product_id"`
	ProductName    string    `json:"product_name"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	TotalCents     int64     `json:"total_cents"`
	ProfitCents    int64     `json:"profit_cents"`
	Category       string    `json:"category"`
	CustomerID     string    `json:"customer_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type TransactionItem struct {
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TotalCents     int64  `json:"total_cents"`
}

type Transaction struct {
	ID               string            `json:"id"`
	Items            []TransactionItem `json:"items"`
	TotalCents       int64             `json:"total_cents"`
	TotalProfitCents int64             `json:"total_profit_cents"`
	PaymentMethod    string            `json:"payment_method"`
	CustomerID       string            `json:"customer_id,omitempty"`
	Timestamp        time.Time         `json:"timestamp"`
}

type SaleReceipt struct {
	TransactionID    string     `json:"transaction_id"`
	TotalCents       int64      `json:"total_cents"`
	TotalProfitCents int64      `json:"total_profit_cents"`
	Lines            []SaleLine `json:"lines"`
}

// SaleFilter bounds a sale or transaction query to [From, To). Zero times are open.
type SaleFilter struct {
	ProductID string
	From      time.Time
	To        time.Time
	Limit     int
	Newest    bool
}

type ProductSales struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	QuantitySold int    `json:"quantity_sold"`
	RevenueCents int64  `json:"revenue_cents"`
}

type CategoryPerformance struct {
	Category    string `json:"category"`
	SalesCents  int64  `json:"sales_cents"`
	ProfitCents int64  `json:"profit_cents"`
}

type TrendPoint struct {
	Date         string `json:"date"`
	SalesCents   int64  `json:"sales_cents"`
	Transactions int    `json:"transactions"`
}

type DashboardAnalytics struct {
	Period              string                `json:"period"`
	From                time.Time             `json:"from"`
	TotalSalesCents     int64                 `json:"total_sales_cents"`
	TotalProfitCents    int64                 `json:"total_profit_cents"`
	TotalTransactions   int                   `json:"total_transactions"`
	TopSellingProducts  []ProductSales        `json:"top_selling_products"`
	CategoryPerformance []CategoryPerformance `json:"category_performance"`
	SalesTrend          []TrendPoint          `json:"sales_trend"`
	LowStockAlerts      []StockAlert          `json:"low_stock_alerts"`
}

// DailyAnalytics is the per-date rollup snapshot. It carries no timestamps so
// that recomputing an unchanged day stores identical bytes.
type DailyAnalytics struct {
	Date                string                `json:"date"`
	TotalSalesCents     int64                 `json:"total_sales_cents"`
	TotalProfitCents    int64                 `json:"total_profit_cents"`
	TotalTransactions   int                   `json:"total_transactions"`
	TopSellingProducts  []ProductSales        `json:"top_selling_products"`
	CategoryPerformance []CategoryPerformance `json:"category_performance"`
}

type ForecastPoint struct {
	Date           string  `json:"date"`
	PredictedSales int     `json:"predicted_sales"`
	Confidence     float64 `json:"confidence"`
}

type SalesForecast struct {
	ProductID         string          `json:"product_id,omitempty"`
	Forecast          []ForecastPoint `json:"forecast"`
	HistoricalAverage float64         `json:"historical_average"`
	DataPoints        int             `json:"data_points"`
}

type ReorderSuggestion struct {
	ProductID                string  `json:"product_id"`
	ProductName              string  `json:"product_name"`
	SKU                      string  `json:"sku"`
	Supplier                 string  `json:"supplier"`
	CurrentStock             int     `json:"current_stock"`
	MinStockLevel            int     `json:"min_stock_level"`
	AvgDailySales            float64 `json:"avg_daily_sales"`
	SuggestedReorderQuantity int     `json:"suggested_reorder_quantity"`
	Urgency                  string  `json:"urgency"`
}

type ReorderSuggestionResponse struct {
	GeneratedAt string              `json:"generated_at"`
	Suggestions []ReorderSuggestion `json:"suggestions"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=128"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=64"`
	Password string `json:"password" validate:"required,min=6,max=128"`
	Role     string `json:"role" validate:"omitempty,oneof=admin cashier"`
}

type User struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
