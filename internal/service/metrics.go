package service

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"stokpintar/backend/internal/domain"
	"stokpintar/backend/internal/store"
)

// Metrics counts sale outcomes. A nil *Metrics records nothing.
type Metrics struct {
	sales   *prometheus.CounterVec
	revenue prometheus.Counter
	units   prometheus.Counter
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		sales: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stokpintar_sales_total",
			Help: "Sale attempts partitioned by outcome.",
		}, []string{"outcome"}),
		revenue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stokpintar_sales_revenue_cents_total",
			Help: "Revenue of committed sales in cents.",
		}),
		units: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stokpintar_sales_units_total",
			Help: "Units sold by committed sales.",
		}),
	}
	registerer.MustRegister(m.sales, m.revenue, m.units)
	return m
}

func (m *Metrics) observeSale(receipt domain.SaleReceipt, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.sales.WithLabelValues(saleOutcome(err)).Inc()
		return
	}
	m.sales.WithLabelValues("committed").Inc()
	m.revenue.Add(float64(receipt.TotalCents))
	units := 0
	for _, line := range receipt.Lines {
		units += line.Quantity
	}
	m.units.Add(float64(units))
}

func saleOutcome(err error) string {
	switch {
	case errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}
