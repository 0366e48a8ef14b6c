package sales

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stokpintar/backend/internal/domain"
	"stokpintar/backend/internal/ledger"
	"stokpintar/backend/internal/store"
	"stokpintar/backend/internal/xid"
)

// RollupScheduler queues a daily rollup for a YYYY-MM-DD date.
type RollupScheduler interface {
	EnqueueRollup(ctx context.Context, date string) error
}

// CommitHook runs after a sale is committed. Hooks cannot fail the sale.
type CommitHook func(ctx context.Context, receipt domain.SaleReceipt)

type Processor struct {
	repo    store.Repository
	ledger  *ledger.Ledger
	rollups RollupScheduler
	hooks   []CommitHook
	logger  *slog.Logger
	clock   func() time.Time
}

func NewProcessor(repo store.Repository, stock *ledger.Ledger, rollups RollupScheduler, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		repo:    repo,
		ledger:  stock,
		rollups: rollups,
		logger:  logger,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

func (p *Processor) WithClock(clock func() time.Time) *Processor {
	if clock != nil {
		p.clock = clock
	}
	return p
}

func (p *Processor) OnCommit(hook CommitHook) {
	if hook != nil {
		p.hooks = append(p.hooks, hook)
	}
}

// ProcessSale executes every line of the cart as one unit of work: either all
// stock decrements, sale lines and the transaction record are stored, or none.
func (p *Processor) ProcessSale(ctx context.Context, req domain.SaleRequest) (domain.SaleReceipt, error) {
	req, err := normalizeSale(req)
	if err != nil {
		return domain.SaleReceipt{}, err
	}

	now := p.clock()
	var receipt domain.SaleReceipt
	err = p.repo.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		receipt = domain.SaleReceipt{TransactionID: xid.New("tx")}
		record := domain.Transaction{
			ID:            receipt.TransactionID,
			Items:         make([]domain.TransactionItem, 0, len(req.Items)),
			PaymentMethod: req.PaymentMethod,
			CustomerID:    req.CustomerID,
			Timestamp:     now,
		}

		for _, item := range req.Items {
			product, err := tx.GetProduct(ctx, item.ProductID)
			if err != nil {
				return fmt.Errorf("product %s: %w", item.ProductID, err)
			}
			if !product.Active {
				return fmt.Errorf("product %s is inactive: %w", product.ID, store.ErrInvalidInput)
			}
			// Checked before the ledger call: the ledger clamps instead of rejecting.
			if item.Quantity > product.Quantity {
				return fmt.Errorf("product %s has %d on hand, %d requested: %w", product.ID, product.Quantity, item.Quantity, store.ErrInsufficientStock)
			}

			revenue := product.PriceCents * int64(item.Quantity)
			profit := (product.PriceCents - product.CostPriceCents) * int64(item.Quantity)

			if _, err := p.ledger.AdjustStock(ctx, tx, product.ID, -item.Quantity); err != nil {
				return err
			}

			line := domain.SaleLine{
				ID:             xid.New("sale"),
				TransactionID:  record.ID,
				ProductID:      product.ID,
				ProductName:    product.Name,
				Quantity:       item.Quantity,
				UnitPriceCents: product.PriceCents,
				TotalCents:     revenue,
				ProfitCents:    profit,
				Category:       product.Category,
				CustomerID:     req.CustomerID,
				Timestamp:      now,
			}
			if err := tx.InsertSaleLine(ctx, line); err != nil {
				return fmt.Errorf("sales: insert line: %w", err)
			}

			receipt.Lines = append(receipt.Lines, line)
			receipt.TotalCents += revenue
			receipt.TotalProfitCents += profit
			record.Items = append(record.Items, domain.TransactionItem{
				ProductID:      product.ID,
				ProductName:    product.Name,
				Quantity:       item.Quantity,
				UnitPriceCents: product.PriceCents,
				TotalCents:     revenue,
			})
		}

		record.TotalCents = receipt.TotalCents
		record.TotalProfitCents = receipt.TotalProfitCents
		if err := tx.InsertTransaction(ctx, record); err != nil {
			return fmt.Errorf("sales: insert transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.SaleReceipt{}, err
	}

	p.scheduleRollup(ctx, now)
	for _, hook := range p.hooks {
		hook(ctx, receipt)
	}
	return receipt, nil
}

func (p *Processor) scheduleRollup(ctx context.Context, at time.Time) {
	if p.rollups == nil {
		return
	}
	date := at.UTC().Format(time.DateOnly)
	if err := p.rollups.EnqueueRollup(context.WithoutCancel(ctx), date); err != nil {
		p.logger.Warn("sales: enqueue daily rollup failed", slog.String("date", date), slog.Any("error", err))
	}
}

func normalizeSale(req domain.SaleRequest) (domain.SaleRequest, error) {
	req.PaymentMethod = strings.TrimSpace(req.PaymentMethod)
	req.CustomerID = strings.TrimSpace(req.CustomerID)
	if req.PaymentMethod == "" {
		return req, fmt.Errorf("payment method is required: %w", store.ErrInvalidInput)
	}
	if len(req.Items) == 0 {
		return req, fmt.Errorf("sale has no items: %w", store.ErrInvalidInput)
	}
	items := make([]domain.SaleItem, 0, len(req.Items))
	for i, item := range req.Items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		if item.ProductID == "" || item.Quantity < 1 {
			return req, fmt.Errorf("item %d needs a product and a positive quantity: %w", i, store.ErrInvalidInput)
		}
		items = append(items, item)
	}
	req.Items = items
	return req, nil
}
