package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"atd-sync/internal/adapter"
	"atd-sync/internal/model"
	"atd-sync/internal/store"
)

// DefaultPageSize is how many products one scrub page covers.
const DefaultPageSize = 2000

// Error short circuit: this many failures before this many successes means
// the credentials or endpoint are wrong, not the individual SKUs.
const (
	abortErrorCount     = 5
	abortProcessedBelow = 5
)

// Result messages.
const (
	MsgNoProducts    = "No products found for this batch"
	MsgAllPresent    = "All products in this batch exist in the ATD database"
	MsgScrubComplete = "Inventory scrub completed"
)

// Recorder receives the outcome of every scrub page and sync batch.
type Recorder interface {
	ObserveBatch(job string, kind model.ProductKind, outcome string, outOfStock int)
}

func record(r Recorder, job string, kind model.ProductKind, err error, outOfStock int) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = model.Code(err)
		if outcome == "" {
			outcome = "error"
		}
	}
	r.ObserveBatch(job, kind, outcome, outOfStock)
}

// Scrubber marks catalog products the distributor no longer carries as out
// of stock, one page at a time.
type Scrubber struct {
	products store.Products
	dist     adapter.Distributor
	logger   *slog.Logger

	PageSize int
	Recorder Recorder
}

// NewScrubber returns a Scrubber with the default page size.
func NewScrubber(products store.Products, dist adapter.Distributor, logger *slog.Logger) *Scrubber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scrubber{products: products, dist: dist, logger: logger, PageSize: DefaultPageSize}
}

// Scrub checks page (1-based) of kind's products against the distributor.
func (s *Scrubber) Scrub(ctx context.Context, kind model.ProductKind, page int) (*model.ScrubResult, error) {
	res, err := s.scrub(ctx, kind, page)
	oos := 0
	if res != nil {
		oos = res.OutOfStockCount
	}
	record(s.Recorder, "scrub", kind, err, oos)
	return res, err
}

func (s *Scrubber) scrub(ctx context.Context, kind model.ProductKind, page int) (*model.ScrubResult, error) {
	if !s.dist.Configured() {
		return nil, model.NewNotConfiguredError(s.dist.MissingConfig())
	}
	if page < 1 {
		page = 1
	}

	products, err := s.products.ListProductsByTag(ctx, kind.Tag(), page, s.PageSize)
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("listing products: %w", err))
	}

	result := &model.ScrubResult{OutOfStockSKUs: []string{}}
	if len(products) == 0 {
		result.Message = MsgNoProducts
		return result, nil
	}

	logger := s.logger.With("type", string(kind), "page", page)
	logger.InfoContext(ctx, "inventory scrub started", "products", len(products))

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
			if result.APIErrorCount >= abortErrorCount && result.ProcessedCount < abortProcessedBelow {
				logger.ErrorContext(ctx, "inventory scrub aborted", "api_error_count", result.APIErrorCount)
				return nil, model.NewAPIConfigurationError()
			}
			continue
		}
		result.ProcessedCount++

		if rec != nil {
			if p.NotPresentUpstream {
				p.NotPresentUpstream = false
				if err := s.products.SaveProduct(ctx, p); err != nil {
					return nil, model.NewInternalError(fmt.Errorf("saving product %d: %w", p.ID, err))
				}
			}
			continue
		}

		p.MarkOutOfStock()
		p.NotPresentUpstream = true
		if err := s.products.SaveProduct(ctx, p); err != nil {
			return nil, model.NewInternalError(fmt.Errorf("saving product %d: %w", p.ID, err))
		}
		result.OutOfStockCount++
		result.OutOfStockSKUs = append(result.OutOfStockSKUs, sku)
		logger.InfoContext(ctx, "product not carried upstream", "sku", sku, "product_id", p.ID)
	}

	if result.APIErrorCount > 0 && result.ProcessedCount == 0 {
		return nil, model.NewAPIFailureError(result.APIErrorCount)
	}

	result.Message = MsgScrubComplete
	if result.OutOfStockCount == 0 {
		result.Message = MsgAllPresent
	}
	logger.InfoContext(ctx, "inventory scrub finished",
		"processed_count", result.ProcessedCount,
		"out_of_stock_count", result.OutOfStockCount,
		"api_error_count", result.APIErrorCount,
	)
	return result, nil
}

// Batches lists the scrub pages for kind, with 1-based product ranges.
func (s *Scrubber) Batches(ctx context.Context, kind model.ProductKind) ([]model.Batch, error) {
	total, err := s.products.CountProductsByTag(ctx, kind.Tag())
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("counting products: %w", err))
	}
	batches := []model.Batch{}
	for start, page := 1, 1; start <= total; start, page = start+s.PageSize, page+1 {
		batches = append(batches, model.Batch{
			Page:  page,
			Start: start,
			End:   min(start+s.PageSize-1, total),
		})
	}
	return batches, nil
}

// BatchLabel is the admin link text for a scrub page.
func BatchLabel(kind model.ProductKind, b model.Batch) string {
	noun := "Wheels"
	if kind == model.KindTire {
		noun = "Tires"
	}
	return fmt.Sprintf("Scrub %s %d to %d", noun, b.Start, b.End)
}
