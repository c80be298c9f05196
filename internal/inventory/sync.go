package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"atd-sync/internal/adapter"
	"atd-sync/internal/model"
	"atd-sync/internal/pricing"
	"atd-sync/internal/store"
)

// Full-sync defaults.
const (
	DefaultBatches    = 50
	DefaultStaleAfter = 24 * time.Hour
)

// SyncStore is what a full sync reads and writes.
type SyncStore interface {
	store.Products
	store.Jobs
}

// Syncer runs the full inventory update: stock, attributes, rebates, price
// and local stock for one batch of a product kind.
type Syncer struct {
	store  SyncStore
	dist   adapter.Distributor
	table  *pricing.Table
	logger *slog.Logger

	Batches    int
	StaleAfter time.Duration
	Recorder   Recorder

	// OnProduct, when set, is called after each product is saved.
	OnProduct func(p *model.Product, c Change)

	now func() time.Time
}

// NewSyncer returns a Syncer with default batching. table may be nil, in
// which case prices are left alone.
func NewSyncer(st SyncStore, dist adapter.Distributor, table *pricing.Table, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		store:      st,
		dist:       dist,
		table:      table,
		logger:     logger,
		Batches:    DefaultBatches,
		StaleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
}

// Sync updates batch (1-based) of kind's products. Only one sync per kind
// runs at a time; a concurrent call gets job_running.
func (s *Syncer) Sync(ctx context.Context, kind model.ProductKind, batch int) (*model.SyncResult, error) {
	res, err := s.sync(ctx, kind, batch)
	oos := 0
	if res != nil {
		oos = len(res.OutOfStockSKUs)
	}
	record(s.Recorder, "sync", kind, err, oos)
	return res, err
}

func (s *Syncer) sync(ctx context.Context, kind model.ProductKind, batch int) (*model.SyncResult, error) {
	if !s.dist.Configured() {
		return nil, model.NewNotConfiguredError(s.dist.MissingConfig())
	}
	if batch < 1 || batch > s.Batches {
		return nil, model.NewValidationError("batch", fmt.Sprintf("must be between 1 and %d", s.Batches))
	}

	job := store.JobName(kind)
	claimed, err := s.store.ClaimJob(ctx, job, s.now(), s.StaleAfter)
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("claiming job guard: %w", err))
	}
	if !claimed {
		return nil, model.NewJobRunningError(job)
	}
	defer func() {
		if err := s.store.ReleaseJob(context.WithoutCancel(ctx), job, s.now()); err != nil {
			s.logger.ErrorContext(ctx, "failed to release job guard", "job", job, "error", err)
		}
	}()

	result := &model.SyncResult{
		RunID:          uuid.NewString(),
		Kind:           kind,
		Batch:          batch,
		OutOfStockSKUs: []string{},
	}
	logger := s.logger.With("run_id", result.RunID, "type", string(kind), "batch", batch)

	total, err := s.store.CountProductsByTag(ctx, kind.Tag())
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("counting products: %w", err))
	}
	perPage := (total + s.Batches - 1) / s.Batches
	if perPage == 0 {
		logger.InfoContext(ctx, "no products to sync")
		return result, nil
	}

	products, err := s.store.ListProductsByTag(ctx, kind.Tag(), batch, perPage)
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("listing products: %w", err))
	}
	result.ProductCount = len(products)
	logger.InfoContext(ctx, "inventory sync started", "products", len(products), "per_batch", perPage)

	processed := 0
	for i := range products {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := &products[i]
		sku := strings.TrimSpace(p.SKU)
		if sku == "" {
			continue
		}

		rec, err := s.dist.GetProductBySKU(ctx, sku)
		if err != nil {
			result.APIErrorCount++
			logger.WarnContext(ctx, "product lookup failed", "sku", sku, "product_id", p.ID, "error", err)
			if result.APIErrorCount >= abortErrorCount && processed < abortProcessedBelow {
				logger.ErrorContext(ctx, "inventory sync aborted", "api_error_count", result.APIErrorCount)
				return nil, model.NewAPIConfigurationError()
			}
			continue
		}
		processed++

		change := ApplyUpdate(p, rec, s.table)
		switch {
		case change.Quote != nil:
			result.PricedCount++
			logger.DebugContext(ctx, "price updated", "sku", sku, "price", model.FormatAmount(change.Quote.Price))
		case change.PriceErr != nil:
			logger.ErrorContext(ctx, "pricing configuration error", "sku", sku, "brand", p.Brand, "error", change.PriceErr)
		case change.PriceSkip != "" && !change.Absent:
			logger.DebugContext(ctx, "price unchanged", "sku", sku, "reason", change.PriceSkip)
		}
		if change.OutOfStock {
			result.OutOfStockSKUs = append(result.OutOfStockSKUs, sku)
		}
		if rec != nil {
			p.LocalStock = LocalStock(ctx, s.dist, kind, sku, logger)
		}

		if err := s.store.SaveProduct(ctx, p); err != nil {
			return nil, model.NewInternalError(fmt.Errorf("saving product %d: %w", p.ID, err))
		}
		result.UpdatedCount++
		if s.OnProduct != nil {
			s.OnProduct(p, change)
		}
	}

	if result.APIErrorCount > 0 && processed == 0 {
		return nil, model.NewAPIFailureError(result.APIErrorCount)
	}

	logger.InfoContext(ctx, "inventory sync finished",
		"updated_count", result.UpdatedCount,
		"priced_count", result.PricedCount,
		"out_of_stock_count", len(result.OutOfStockSKUs),
		"api_error_count", result.APIErrorCount,
	)
	return result, nil
}
