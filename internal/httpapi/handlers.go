package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"stokpintar/backend/internal/domain"
	"stokpintar/backend/internal/forecast"
	"stokpintar/backend/internal/service"
	"stokpintar/backend/internal/store"
)

const maxQueryLimit = 1000

type rollupRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

func (a *API) handleListProducts(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := parseOptionalBool(r.URL.Query().Get("active"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	products, err := a.service.ListProducts(r.Context(), r.URL.Query().Get("category"), activeOnly != nil && *activeOnly)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleSearchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.service.SearchProducts(r.Context(), r.URL.Query().Get("q"), r.URL.Query().Get("category"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.service.Categories(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (a *API) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductCreateRequest
	if err := a.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.AddProduct(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (a *API) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req domain.ProductUpdateRequest
	if err := a.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	product, err := a.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": product})
}

func (a *API) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleUpdateStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockUpdateRequest
	if err := a.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.UpdateStock(r.Context(), chi.URLParam(r, "id"), req.Delta)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleProcessSale(w http.ResponseWriter, r *http.Request) {
	var req domain.SaleRequest
	if err := a.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	receipt, err := a.service.ProcessSale(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (a *API) handleSalesHistory(w http.ResponseWriter, r *http.Request) {
	query, err := saleQueryFromRequest(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	lines, err := a.service.SalesHistory(r.Context(), query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": lines})
}

func (a *API) handleSalesByProduct(w http.ResponseWriter, r *http.Request) {
	query, err := saleQueryFromRequest(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	lines, err := a.service.SalesByProduct(r.Context(), chi.URLParam(r, "id"), query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": lines})
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	query, err := saleQueryFromRequest(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	txs, err := a.service.Transactions(r.Context(), query)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := a.service.Dashboard(r.Context(), r.URL.Query().Get("period"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (a *API) handleDailyAnalytics(w http.ResponseWriter, r *http.Request) {
	snapshot, err := a.service.DailyAnalytics(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (a *API) handleAnalyticsHistory(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if strings.TrimSpace(to) == "" {
		to = time.Now().UTC().Format(time.DateOnly)
	}
	if strings.TrimSpace(from) == "" {
		from = to
	}
	snapshots, err := a.service.AnalyticsHistory(r.Context(), from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"daily": snapshots})
}

func (a *API) handleTriggerRollup(w http.ResponseWriter, r *http.Request) {
	var req rollupRequest
	if err := a.decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snapshot, err := a.service.TriggerRollup(r.Context(), req.Date)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (a *API) handleStockAlerts(w http.ResponseWriter, r *http.Request) {
	resolved, err := parseOptionalBool(r.URL.Query().Get("resolved"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	alerts, err := a.service.StockAlerts(r.Context(), resolved)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *API) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := a.service.ResolveStockAlert(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alert": alert})
}

func (a *API) handleReconcileAlerts(w http.ResponseWriter, r *http.Request) {
	changed, err := a.service.ReconcileAlerts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"changed": changed})
}

func (a *API) handleForecast(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("days")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeServiceError(w, fmt.Errorf("days must be an integer: %w", store.ErrInvalidInput))
			return
		}
		days = parsed
	}
	projection, err := a.service.Forecast(r.Context(), r.URL.Query().Get("product_id"), days)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projection)
}

// handleReorderSuggestions serves JSON, or a purchasing sheet with ?format=csv.
func (a *API) handleReorderSuggestions(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.ReorderSuggestions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !strings.EqualFold(r.URL.Query().Get("format"), "csv") {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	var buf bytes.Buffer
	if err := forecast.WriteReorderCSV(&buf, resp.Suggestions); err != nil {
		writeServiceError(w, err)
		return
	}
	filename := fmt.Sprintf("reorder-suggestions-%s.csv", time.Now().UTC().Format(time.DateOnly))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": a.auth.ListUsers(r.Context())})
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req domain.UserCreateRequest
	if err := a.decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	user, err := a.auth.CreateUser(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

func saleQueryFromRequest(r *http.Request) (service.SaleQuery, error) {
	q := r.URL.Query()
	from, err := parseTimeParam(q.Get("from"), false)
	if err != nil {
		return service.SaleQuery{}, err
	}
	to, err := parseTimeParam(q.Get("to"), true)
	if err != nil {
		return service.SaleQuery{}, err
	}
	return service.SaleQuery{
		ProductID: q.Get("product_id"),
		From:      from,
		To:        to,
		Limit:     parsePositiveLimit(q.Get("limit"), 0, maxQueryLimit),
	}, nil
}

// parseTimeParam accepts RFC3339 or YYYY-MM-DD. A bare date used as an upper
// bound covers that whole UTC day.
func parseTimeParam(raw string, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q must be RFC3339 or YYYY-MM-DD: %w", raw, store.ErrInvalidInput)
	}
	if upper {
		day = day.AddDate(0, 0, 1)
	}
	return day, nil
}

func parseOptionalBool(raw string) (*bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%q is not a boolean: %w", raw, store.ErrInvalidInput)
	}
	return &v, nil
}
