package forecast

import (
	"encoding/csv"
	"io"
	"strconv"

	"stokpintar/backend/internal/domain"
)

var reorderCSVHeader = []string{
	"product_id", "sku", "product_name", "supplier", "current_stock",
	"min_stock_level", "avg_daily_sales", "suggested_reorder_quantity", "urgency",
}

// WriteReorderCSV renders suggestions as a purchasing sheet.
func WriteReorderCSV(w io.Writer, suggestions []domain.ReorderSuggestion) error {
	out := csv.NewWriter(w)
	if err := out.Write(reorderCSVHeader); err != nil {
		return err
	}
	for _, s := range suggestions {
		row := []string{
			s.ProductID,
			s.SKU,
			s.ProductName,
			s.Supplier,
			strconv.Itoa(s.CurrentStock),
			strconv.Itoa(s.MinStockLevel),
			strconv.FormatFloat(s.AvgDailySales, 'f', 2, 64),
			strconv.Itoa(s.SuggestedReorderQuantity),
			s.Urgency,
		}
		if err := out.Write(row); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}
