package adapter

import (
	"context"
	"sync"

	"atd-sync/internal/model"
	"atd-sync/internal/soap"
)

// Mock implements Distributor for testing.
// Each method can be configured via function fields. Calls are counted per
// operation so tests can assert nothing was sent.
type Mock struct {
	Missing []string // credentials reported missing; empty means configured

	GetProductBySKUFunc        func(ctx context.Context, sku string) (*soap.ProductRecord, error)
	GetInventoryByLocationFunc func(ctx context.Context, location, zip, sku string) ([]soap.InventoryRecord, error)
	GetOrderDetailFunc         func(ctx context.Context, confirmation string) (*soap.OrderDetail, error)
	PlaceOrderFunc             func(ctx context.Context, req soap.PlaceOrderRequest) (*soap.PlaceOrderResult, error)

	mu    sync.Mutex
	calls map[string]int
}

func (m *Mock) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

// Calls returns how many times op was invoked.
func (m *Mock) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Configured reports true unless Missing is set.
func (m *Mock) Configured() bool { return len(m.Missing) == 0 }

// MissingConfig returns Missing.
func (m *Mock) MissingConfig() []string { return m.Missing }

// LocationNumber returns the default location.
func (m *Mock) LocationNumber() string { return soap.DefaultLocationNumber }

// GetProductBySKU calls the configured func or reports the SKU absent.
func (m *Mock) GetProductBySKU(ctx context.Context, sku string) (*soap.ProductRecord, error) {
	m.record(soap.OpGetProduct)
	if m.GetProductBySKUFunc != nil {
		return m.GetProductBySKUFunc(ctx, sku)
	}
	return nil, nil
}

// GetInventoryByLocation calls the configured func or returns no records.
func (m *Mock) GetInventoryByLocation(ctx context.Context, location, zip, sku string) ([]soap.InventoryRecord, error) {
	m.record(soap.OpGetInventory)
	if m.GetInventoryByLocationFunc != nil {
		return m.GetInventoryByLocationFunc(ctx, location, zip, sku)
	}
	return nil, nil
}

// GetOrderDetail calls the configured func or returns an unshipped order.
func (m *Mock) GetOrderDetail(ctx context.Context, confirmation string) (*soap.OrderDetail, error) {
	m.record(soap.OpGetOrderDetail)
	if m.GetOrderDetailFunc != nil {
		return m.GetOrderDetailFunc(ctx, confirmation)
	}
	return &soap.OrderDetail{ConfirmationNumber: confirmation}, nil
}

// PlaceOrder calls the configured func or returns an error.
func (m *Mock) PlaceOrder(ctx context.Context, req soap.PlaceOrderRequest) (*soap.PlaceOrderResult, error) {
	m.record(soap.OpPlaceOrder)
	if m.PlaceOrderFunc != nil {
		return m.PlaceOrderFunc(ctx, req)
	}
	return nil, model.NewInvalidResponseError("Missing order number in API response")
}

// Verify Mock implements Distributor at compile time.
var _ Distributor = (*Mock)(nil)
