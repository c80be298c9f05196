// Package tracking pulls tracking numbers for placed distributor orders and
// completes store orders once every wheel and tire line has shipped.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"atd-sync/internal/adapter"
	"atd-sync/internal/model"
	"atd-sync/internal/reconcile"
)

// Sweep defaults.
const (
	DefaultLookback   = 30 * 24 * time.Hour
	DefaultStaleAfter = time.Hour
)

// JobName guards the sweep against overlapping runs.
const JobName = "_atd_function_tracking"

// Store is the persistence the sweep reads and writes.
type Store interface {
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	SetTrackingNumber(ctx context.Context, itemID int64, number string) error
	ListItemsAwaitingTracking(ctx context.Context, w model.Window) ([]model.OrderItem, error)
	ListShippedItems(ctx context.Context, w model.Window) ([]model.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error
	ListShipmentTrackings(ctx context.Context, orderID int64) ([]model.ShipmentTracking, error)
	AddShipmentTracking(ctx context.Context, orderID int64, t model.ShipmentTracking) error
	ListUnpublishedTrackings(ctx context.Context, w model.Window) ([]model.PendingTracking, error)
	MarkTrackingPublished(ctx context.Context, orderID int64, number string, at time.Time) error
	ListUnpublishedCompletions(ctx context.Context, w model.Window) ([]int64, error)
	MarkCompletionPublished(ctx context.Context, orderID int64, at time.Time) error
	ClaimJob(ctx context.Context, name string, now time.Time, staleAfter time.Duration) (bool, error)
	ReleaseJob(ctx context.Context, name string, now time.Time) error
}

// Publisher mirrors sweep results to the storefront. Entries and completions
// it has not accepted stay pending and are retried by the next sweep.
type Publisher interface {
	ListTrackings(ctx context.Context, orderID int64) ([]model.ShipmentTracking, error)
	PublishTracking(ctx context.Context, orderID int64, t model.ShipmentTracking) error
	PublishCompleted(ctx context.Context, orderID int64) error
}

// Recorder receives every sweep summary.
type Recorder interface {
	ObserveSweep(s model.SweepSummary)
}

// Sweeper runs the tracking and completion sweep.
type Sweeper struct {
	store  Store
	dist   adapter.Distributor
	logger *slog.Logger

	Lookback   time.Duration
	StaleAfter time.Duration
	Publisher  Publisher
	Recorder   Recorder

	// Progress, when set, receives one human-readable line per change.
	Progress func(line string)

	now func() time.Time
}

// NewSweeper returns a Sweeper with the default 30-day lookback.
func NewSweeper(st Store, dist adapter.Distributor, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:      st,
		dist:       dist,
		logger:     logger,
		Lookback:   DefaultLookback,
		StaleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
}

// Run performs one sweep. Running it again with nothing new upstream
// changes nothing.
func (s *Sweeper) Run(ctx context.Context) (*model.SweepSummary, error) {
	if !s.dist.Configured() {
		return nil, model.NewNotConfiguredError(s.dist.MissingConfig())
	}

	claimed, err := s.store.ClaimJob(ctx, JobName, s.now(), s.StaleAfter)
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("claiming job guard: %w", err))
	}
	if !claimed {
		return nil, model.NewJobRunningError(JobName)
	}
	defer func() {
		if err := s.store.ReleaseJob(context.WithoutCancel(ctx), JobName, s.now()); err != nil {
			s.logger.ErrorContext(ctx, "failed to release job guard", "job", JobName, "error", err)
		}
	}()

	summary := &model.SweepSummary{RunID: uuid.NewString(), CompletedOrderIDs: []int64{}}
	logger := s.logger.With("run_id", summary.RunID)
	w := model.NewWindow(s.now(), s.Lookback)
	logger.InfoContext(ctx, "tracking sweep started", "from", w.From, "to", w.To)

	if err := s.collectTracking(ctx, logger, w, summary); err != nil {
		return nil, err
	}
	if err := s.completeOrders(ctx, logger, w, summary); err != nil {
		return nil, err
	}
	if s.Publisher != nil {
		if err := s.publishPending(ctx, logger, w, summary); err != nil {
			return nil, err
		}
	}

	logger.InfoContext(ctx, "tracking sweep finished",
		"checked", summary.Checked,
		"tracking_updated", summary.TrackingUpdated,
		"tracking_registered", summary.TrackingRegistered,
		"orders_completed", summary.OrdersCompleted,
		"api_error_count", summary.APIErrorCount,
		"tracking_published", summary.TrackingPublished,
		"completions_published", summary.CompletionsPublished,
		"publish_error_count", summary.PublishErrorCount,
	)
	if s.Recorder != nil {
		s.Recorder.ObserveSweep(*summary)
	}
	return summary, nil
}

// === Tracking numbers ===

func (s *Sweeper) collectTracking(ctx context.Context, logger *slog.Logger, w model.Window, summary *model.SweepSummary) error {
	items, err := s.store.ListItemsAwaitingTracking(ctx, w)
	if err != nil {
		return model.NewInternalError(fmt.Errorf("listing items awaiting tracking: %w", err))
	}

	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if it.ExternalOrderID == "" {
			continue
		}
		ilog := logger.With("order_id", it.OrderID, "order_item_id", it.ID, "atd_order_id", it.ExternalOrderID)

		detail, err := s.dist.GetOrderDetail(ctx, it.ExternalOrderID)
		if err != nil {
			summary.APIErrorCount++
			ilog.WarnContext(ctx, "order detail lookup failed", "error", err)
			continue
		}
		summary.Checked++

		f := detail.Fulfillment
		if f == nil || f.TrackingNumber == "" {
			continue
		}

		if err := s.store.SetTrackingNumber(ctx, it.ID, f.TrackingNumber); err != nil {
			return model.NewInternalError(fmt.Errorf("saving tracking number: %w", err))
		}
		summary.TrackingUpdated++
		ilog.InfoContext(ctx, "tracking number saved", "tracking_number", f.TrackingNumber, "ship_method", f.ShipMethod)

		registered, err := s.store.ListShipmentTrackings(ctx, it.OrderID)
		if err != nil {
			return model.NewInternalError(fmt.Errorf("listing shipment trackings: %w", err))
		}
		if reconcile.TrackingRegistered(registered, f.TrackingNumber) {
			continue
		}

		entry := ShipmentFor(f.ShipMethod, f.TrackingNumber, f.TrackingURL, s.now())
		if err := s.store.AddShipmentTracking(ctx, it.OrderID, entry); err != nil {
			return model.NewInternalError(fmt.Errorf("adding shipment tracking: %w", err))
		}
		summary.TrackingRegistered++
		s.progress(fmt.Sprintf("%d Tracking added (%s %s)", it.OrderID, ProviderName(entry), f.TrackingNumber))
	}
	return nil
}

// === Completion ===

func (s *Sweeper) completeOrders(ctx context.Context, logger *slog.Logger, w model.Window, summary *model.SweepSummary) error {
	shipped, err := s.store.ListShippedItems(ctx, w)
	if err != nil {
		return model.NewInternalError(fmt.Errorf("listing shipped items: %w", err))
	}

	byOrder := make(map[int64]map[int64]bool)
	for _, it := range shipped {
		if byOrder[it.OrderID] == nil {
			byOrder[it.OrderID] = make(map[int64]bool)
		}
		byOrder[it.OrderID][it.ID] = true
	}
	orderIDs := make([]int64, 0, len(byOrder))
	for id := range byOrder {
		orderIDs = append(orderIDs, id)
	}
	sort.Slice(orderIDs, func(i, j int) bool { return orderIDs[i] < orderIDs[j] })

	for _, orderID := range orderIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		olog := logger.With("order_id", orderID)

		all, err := s.store.ListOrderItems(ctx, orderID)
		if err != nil {
			return model.NewInternalError(fmt.Errorf("listing order items: %w", err))
		}
		blocked, err := s.blocked(ctx, reconcile.LinesToComplete(all, byOrder[orderID]))
		if err != nil {
			return err
		}
		if blocked {
			olog.DebugContext(ctx, "order waits on unshipped wheel or tire lines")
			continue
		}

		if err := s.store.UpdateOrderStatus(ctx, orderID, model.StatusCompleted); err != nil {
			return model.NewInternalError(fmt.Errorf("completing order: %w", err))
		}
		summary.OrdersCompleted++
		summary.CompletedOrderIDs = append(summary.CompletedOrderIDs, orderID)
		olog.InfoContext(ctx, "order completed")
		s.progress(fmt.Sprintf("%d completed", orderID))
	}
	return nil
}

// === Storefront mirror ===

// publishPending pushes every unpublished tracking entry and completion in w
// to the storefront. Storefront failures are counted and left pending.
func (s *Sweeper) publishPending(ctx context.Context, logger *slog.Logger, w model.Window, summary *model.SweepSummary) error {
	pending, err := s.store.ListUnpublishedTrackings(ctx, w)
	if err != nil {
		return model.NewInternalError(fmt.Errorf("listing unpublished trackings: %w", err))
	}

	byOrder := make(map[int64][]model.ShipmentTracking)
	var orderIDs []int64
	for _, p := range pending {
		if _, ok := byOrder[p.OrderID]; !ok {
			orderIDs = append(orderIDs, p.OrderID)
		}
		byOrder[p.OrderID] = append(byOrder[p.OrderID], p.Tracking)
	}
	sort.Slice(orderIDs, func(i, j int) bool { return orderIDs[i] < orderIDs[j] })

	for _, orderID := range orderIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.publishTrackings(ctx, logger.With("order_id", orderID), orderID, byOrder[orderID], summary); err != nil {
			return err
		}
	}

	completed, err := s.store.ListUnpublishedCompletions(ctx, w)
	if err != nil {
		return model.NewInternalError(fmt.Errorf("listing unpublished completions: %w", err))
	}
	for _, orderID := range completed {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Publisher.PublishCompleted(ctx, orderID); err != nil {
			summary.PublishErrorCount++
			logger.WarnContext(ctx, "failed to publish order completion", "order_id", orderID, "error", err)
			continue
		}
		if err := s.store.MarkCompletionPublished(ctx, orderID, s.now()); err != nil {
			return model.NewInternalError(fmt.Errorf("marking completion published: %w", err))
		}
		summary.CompletionsPublished++
	}
	return nil
}

// publishTrackings mirrors one order's pending entries. Numbers the
// storefront already lists are marked published without another POST.
func (s *Sweeper) publishTrackings(ctx context.Context, logger *slog.Logger, orderID int64, entries []model.ShipmentTracking, summary *model.SweepSummary) error {
	remote, err := s.Publisher.ListTrackings(ctx, orderID)
	if err != nil {
		summary.PublishErrorCount++
		logger.WarnContext(ctx, "failed to list storefront shipment trackings", "error", err)
		return nil
	}

	for _, t := range entries {
		if !reconcile.TrackingRegistered(remote, t.TrackingNumber) {
			if err := s.Publisher.PublishTracking(ctx, orderID, t); err != nil {
				summary.PublishErrorCount++
				logger.WarnContext(ctx, "failed to publish shipment tracking", "tracking_number", t.TrackingNumber, "error", err)
				continue
			}
			summary.TrackingPublished++
			remote = append(remote, t)
		}
		if err := s.store.MarkTrackingPublished(ctx, orderID, t.TrackingNumber, s.now()); err != nil {
			return model.NewInternalError(fmt.Errorf("marking shipment tracking published: %w", err))
		}
	}
	return nil
}

// blocked reports whether any remaining line is a wheel or tire product.
// Lines whose product no longer exists do not block.
func (s *Sweeper) blocked(ctx context.Context, rest []model.OrderItem) (bool, error) {
	for _, it := range rest {
		p, err := s.store.GetProduct(ctx, it.ProductID)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, model.NewInternalError(fmt.Errorf("loading product %d: %w", it.ProductID, err))
		}
		if p.HasAnyTag(model.BlockingTags...) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Sweeper) progress(line string) {
	if s.Progress != nil {
		s.Progress(line)
	}
}
