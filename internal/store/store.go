// Package store defines the persistence boundary for catalog products, order
// lines and job guards. Implementations live in store/memory and
// store/postgres; consumers depend on the narrow interfaces below.
package store

import (
	"context"
	"time"

	"atd-sync/internal/model"
)

// Products is the catalog view used by the inventory sync.
type Products interface {
	// CountProductsByTag counts products carrying tag.
	CountProductsByTag(ctx context.Context, tag string) (int, error)
	// ListProductsByTag returns page (1-based) of products carrying tag,
	// ordered by ID.
	ListProductsByTag(ctx context.Context, tag string, page, perPage int) ([]model.Product, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	SaveProduct(ctx context.Context, p *model.Product) error
}

// Orders is the order-line state owned by this service.
type Orders interface {
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	GetOrderItem(ctx context.Context, id int64) (*model.OrderItem, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error)

	// ClaimOrderItem sets the processing lock only when the line is unlocked
	// and has no external order id. Returns false when the claim was lost.
	ClaimOrderItem(ctx context.Context, itemID int64) (bool, error)
	ReleaseOrderItem(ctx context.Context, itemID int64) error

	// SetExternalOrderID writes the distributor order id only when none is
	// set. Returns false when an id was already present.
	SetExternalOrderID(ctx context.Context, itemID int64, externalID string) (bool, error)
	SetTrackingNumber(ctx context.Context, itemID int64, number string) error

	// ListItemsAwaitingTracking returns lines with an external order id and
	// no tracking number whose order is in w and not terminal.
	ListItemsAwaitingTracking(ctx context.Context, w model.Window) ([]model.OrderItem, error)
	// ListShippedItems returns lines with a tracking number whose order is
	// in w and not terminal.
	ListShippedItems(ctx context.Context, w model.Window) ([]model.OrderItem, error)

	UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) error

	// ListUnpublishedCompletions returns the ids of completed orders in w
	// whose completion has not reached the storefront yet.
	ListUnpublishedCompletions(ctx context.Context, w model.Window) ([]int64, error)
	MarkCompletionPublished(ctx context.Context, orderID int64, at time.Time) error
}

// Trackings is the shipment-tracking list kept per order.
type Trackings interface {
	ListShipmentTrackings(ctx context.Context, orderID int64) ([]model.ShipmentTracking, error)
	AddShipmentTracking(ctx context.Context, orderID int64, t model.ShipmentTracking) error

	// ListUnpublishedTrackings returns entries on orders in w, of any
	// status, that have not reached the storefront yet.
	ListUnpublishedTrackings(ctx context.Context, w model.Window) ([]model.PendingTracking, error)
	MarkTrackingPublished(ctx context.Context, orderID int64, number string, at time.Time) error
}

// Jobs guards long-running batch jobs against concurrent runs.
type Jobs interface {
	// ClaimJob marks name running. A guard whose start and end are both
	// older than staleAfter is taken over. Returns false when another run
	// holds the guard.
	ClaimJob(ctx context.Context, name string, now time.Time, staleAfter time.Duration) (bool, error)
	ReleaseJob(ctx context.Context, name string, now time.Time) error
}

// Store is everything the service persists.
type Store interface {
	Products
	Orders
	Trackings
	Jobs
	Close() error
}

// JobName is the guard name for a full inventory sync of kind.
func JobName(kind model.ProductKind) string {
	return "_atd_function_" + string(kind)
}

// JobState is the persisted guard for one job.
type JobState struct {
	Name      string    `json:"name"`
	Running   bool      `json:"running"`
	StartedAt time.Time `json:"start_time"`
	EndedAt   time.Time `json:"end_time"`
}

// Stale reports whether a running guard is old enough to take over.
func (j JobState) Stale(now time.Time, staleAfter time.Duration) bool {
	return now.Sub(j.StartedAt) > staleAfter && now.Sub(j.EndedAt) > staleAfter
}
