// Package adapter defines the interface the inventory, ordering and tracking
// services use to reach the distributor. *soap.Client is the production
// implementation; Mock stands in for it in tests.
package adapter

import (
	"context"

	"atd-sync/internal/soap"
)

// Distributor abstracts the distributor web services.
//
// All methods return *model.APIError for upstream failures so callers can
// classify them with model.Code and model.IsUpstream.
type Distributor interface {
	// Configured reports whether credentials are present. Services check
	// this before claiming any lock or job guard.
	Configured() bool

	// MissingConfig names the absent credentials, for not_configured errors.
	MissingConfig() []string

	// LocationNumber is the ship-to-home location used for lookups.
	LocationNumber() string

	// GetProductBySKU returns (nil, nil) when the distributor does not carry sku.
	GetProductBySKU(ctx context.Context, sku string) (*soap.ProductRecord, error)

	// GetInventoryByLocation returns availability at location near zip.
	GetInventoryByLocation(ctx context.Context, location, zip, sku string) ([]soap.InventoryRecord, error)

	// GetOrderDetail returns the fulfillment state of a placed order.
	GetOrderDetail(ctx context.Context, confirmation string) (*soap.OrderDetail, error)

	// PlaceOrder submits a drop-ship order.
	PlaceOrder(ctx context.Context, req soap.PlaceOrderRequest) (*soap.PlaceOrderResult, error)
}

var _ Distributor = (*soap.Client)(nil)
