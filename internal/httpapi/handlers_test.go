package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"stokpintar/backend/internal/domain"
	"stokpintar/backend/internal/forecast"
	"stokpintar/backend/internal/ledger"
	"stokpintar/backend/internal/rollup"
	"stokpintar/backend/internal/sales"
	"stokpintar/backend/internal/service"
	"stokpintar/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stock := ledger.New()
	processor := sales.NewProcessor(repo, stock, nil, logger)
	rollups := rollup.NewEngine(repo, nil, time.Minute, logger).WithLocation(time.UTC)
	advisor := forecast.NewAdvisor(repo)
	svc := service.New(repo, stock, processor, rollups, advisor, nil, logger)
	auth := NewAuthManager(context.Background(), "test-secret-key", time.Hour, repo)

	return New(svc, auth, "*", 5, logger)
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

type session struct {
	handler http.Handler
	token   string
	csrf    string
}

func newSession(t *testing.T, api *API, username, password string) session {
	t.Helper()
	return session{
		handler: api.Handler(),
		token:   login(t, api, username, password),
		csrf:    fetchCSRFToken(t, api),
	}
}

func (s session) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("X-CSRF-Token", s.csrf)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode body: %v (body: %s)", err, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	decodeBody(t, rec, &body)
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	token := login(t, api, "admin", "admin123")
	actor, err := api.auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleProducts_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleProducts_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "cashier", "cashier123")

	rec := s.do(t, http.MethodGet, "/api/v1/products?category=beverage", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body struct {
		Products []domain.Product `json:"products"`
	}
	decodeBody(t, rec, &body)
	if len(body.Products) != 3 {
		t.Fatalf("expected 3 beverage products, got %d", len(body.Products))
	}
	for _, p := range body.Products {
		if p.Category != "beverage" {
			t.Fatalf("unexpected category %q", p.Category)
		}
	}
}

func TestCashierCannotWriteCatalog(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "cashier", "cashier123")

	rec := s.do(t, http.MethodPost, "/api/v1/products", domain.ProductCreateRequest{
		SKU: "SKU-NEW-01", Name: "Baru", Category: "snack", PriceCents: 1000,
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestCreateProductAndDuplicateSKU(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "admin", "admin123")

	req := domain.ProductCreateRequest{
		SKU: "SKU-NEW-01", Name: "Kacang Atom", Category: "snack",
		PriceCents: 8000, CostPriceCents: 5500, Quantity: 2, MinStockLevel: 5,
	}
	rec := s.do(t, http.MethodPost, "/api/v1/products", req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var created struct {
		Product domain.Product `json:"product"`
	}
	decodeBody(t, rec, &created)
	if created.Product.ID == "" || !created.Product.Active {
		t.Fatalf("unexpected product %+v", created.Product)
	}

	req.SKU = "sku-new-01"
	rec = s.do(t, http.MethodPost, "/api/v1/products", req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate sku, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/alerts?resolved=false", nil)
	var alerts struct {
		Alerts []domain.StockAlert `json:"alerts"`
	}
	decodeBody(t, rec, &alerts)
	if len(alerts.Alerts) != 1 || alerts.Alerts[0].ProductID != created.Product.ID {
		t.Fatalf("expected initial low stock alert, got %+v", alerts.Alerts)
	}
}

func TestCreateProductValidation(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "admin", "admin123")

	rec := s.do(t, http.MethodPost, "/api/v1/products", map[string]any{
		"sku": "SKU-X", "name": "X", "category": "snack", "price_cents": -1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/products", map[string]any{"sku": "SKU-X", "unknown": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestSaleFlow(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "cashier", "cashier123")

	rec := s.do(t, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items: []domain.SaleItem{
			{ProductID: "prod_roti_01", Quantity: 25},
			{ProductID: "prod_kopi_01", Quantity: 2},
		},
		PaymentMethod: "cash",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var receipt domain.SaleReceipt
	decodeBody(t, rec, &receipt)
	if receipt.TotalCents != 25*17800+2*2600 || len(receipt.Lines) != 2 {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/products/prod_roti_01", nil)
	var got struct {
		Product domain.Product `json:"product"`
	}
	decodeBody(t, rec, &got)
	if got.Product.Quantity != 5 {
		t.Fatalf("expected roti quantity 5, got %d", got.Product.Quantity)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items:         []domain.SaleItem{{ProductID: "prod_roti_01", Quantity: 6}},
		PaymentMethod: "cash",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for insufficient stock, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items:         []domain.SaleItem{{ProductID: "prod_missing", Quantity: 1}},
		PaymentMethod: "cash",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items:         []domain.SaleItem{{ProductID: "prod_roti_01", Quantity: 0}},
		PaymentMethod: "cash",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero quantity, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/products/prod_roti_01/sales", nil)
	var history struct {
		Sales []domain.SaleLine `json:"sales"`
	}
	decodeBody(t, rec, &history)
	if len(history.Sales) != 1 || history.Sales[0].Quantity != 25 {
		t.Fatalf("expected one roti sale line, got %+v", history.Sales)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/transactions?limit=10", nil)
	var txs struct {
		Transactions []domain.Transaction `json:"transactions"`
	}
	decodeBody(t, rec, &txs)
	if len(txs.Transactions) != 1 || txs.Transactions[0].ID != receipt.TransactionID {
		t.Fatalf("expected the committed transaction, got %+v", txs.Transactions)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/alerts?resolved=false", nil)
	var alerts struct {
		Alerts []domain.StockAlert `json:"alerts"`
	}
	decodeBody(t, rec, &alerts)
	if len(alerts.Alerts) != 1 || alerts.Alerts[0].Kind != domain.AlertLowStock {
		t.Fatalf("expected one low stock alert, got %+v", alerts.Alerts)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/analytics/dashboard?period=today", nil)
	var dashboard domain.DashboardAnalytics
	decodeBody(t, rec, &dashboard)
	if dashboard.TotalTransactions != 1 || dashboard.TotalSalesCents != receipt.TotalCents {
		t.Fatalf("unexpected dashboard %+v", dashboard)
	}
}

func TestStockUpdateReportsTruncation(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "admin", "admin123")

	rec := s.do(t, http.MethodPost, "/api/v1/products/prod_roti_01/stock", domain.StockUpdateRequest{Delta: -45})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp domain.StockUpdateResponse
	decodeBody(t, rec, &resp)
	if resp.NewQuantity != 0 || resp.Truncated != 15 {
		t.Fatalf("unexpected stock response %+v", resp)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/products/prod_roti_01/stock", domain.StockUpdateRequest{Delta: 0})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero delta, got %d", rec.Code)
	}
}

func TestDeleteProductIsSoft(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "admin", "admin123")

	rec := s.do(t, http.MethodDelete, "/api/v1/products/prod_teh_01", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/products/prod_teh_01", nil)
	var got struct {
		Product domain.Product `json:"product"`
	}
	decodeBody(t, rec, &got)
	if got.Product.Active {
		t.Fatalf("expected product to be inactive")
	}
}

func TestRollupAndDailyAnalytics(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "admin", "admin123")

	rec := s.do(t, http.MethodPost, "/api/v1/sales", domain.SaleRequest{
		Items:         []domain.SaleItem{{ProductID: "prod_susu_01", Quantity: 1}},
		PaymentMethod: "qris",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sale failed: %d %s", rec.Code, rec.Body.String())
	}

	today := time.Now().UTC().Format(time.DateOnly)
	rec = s.do(t, http.MethodPost, "/api/v1/analytics/rollup", map[string]string{"date": today})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/analytics/daily/"+today, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var snapshot domain.DailyAnalytics
	decodeBody(t, rec, &snapshot)
	if snapshot.TotalSalesCents != 18900 || snapshot.TotalTransactions != 1 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/analytics/daily/1999-01-01", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing snapshot, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/analytics/rollup", map[string]string{"date": "08-05-2026"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed date, got %d", rec.Code)
	}
}

func TestForecastRejectsBadDays(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "cashier", "cashier123")

	rec := s.do(t, http.MethodGet, "/api/v1/forecast?days=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/forecast?days=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var projection domain.SalesForecast
	decodeBody(t, rec, &projection)
	if len(projection.Forecast) != 3 {
		t.Fatalf("expected 3 forecast points, got %d", len(projection.Forecast))
	}
}

func TestReorderSuggestionsCSV(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "admin", "admin123")

	rec := s.do(t, http.MethodPost, "/api/v1/products/prod_gula_01/stock", domain.StockUpdateRequest{Delta: -45})
	if rec.Code != http.StatusOK {
		t.Fatalf("stock update failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodGet, "/api/v1/reorder-suggestions?format=csv", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected csv content type, got %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "prod_gula_01,SKU-GULA-01,") {
		t.Fatalf("unexpected csv body %q", rec.Body.String())
	}

	cashier := newSession(t, api, "cashier", "cashier123")
	rec = cashier.do(t, http.MethodGet, "/api/v1/reorder-suggestions", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for cashier, got %d", rec.Code)
	}
}

func TestCreateUserThenLogin(t *testing.T) {
	api := newTestAPI(t)
	s := newSession(t, api, "admin", "admin123")

	rec := s.do(t, http.MethodPost, "/api/v1/users", domain.UserCreateRequest{Username: "Kasir2", Password: "rahasia99"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/api/v1/users", domain.UserCreateRequest{Username: "kasir2", Password: "rahasia99"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate username, got %d", rec.Code)
	}

	token := login(t, api, "kasir2", "rahasia99")
	actor, err := api.auth.ParseToken(token)
	if err != nil || actor.Role != domain.RoleCashier {
		t.Fatalf("unexpected actor %+v err %v", actor, err)
	}
}

// TestMustHashPassword verifies that the test helper produces valid bcrypt hashes
// (used to confirm test infrastructure is sound).
func TestMustHashPassword(t *testing.T) {
	hash := mustHashPassword(t, "secret")
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Fatalf("hash verification failed: %v", err)
	}
}
