package model

import (
	"strings"
	"time"
)

// OrderStatus is the host order status without the "wc-" prefix.
type OrderStatus string

const (
	StatusPending          OrderStatus = "pending"
	StatusProcessing       OrderStatus = "processing"
	StatusOnHold           OrderStatus = "on-hold"
	StatusCompleted        OrderStatus = "completed"
	StatusCompletedPackage OrderStatus = "completed-package"
	StatusCancelled        OrderStatus = "cancelled"
	StatusRefunded         OrderStatus = "refunded"
	StatusFailed           OrderStatus = "failed"
)

// TerminalStatuses are skipped by the tracking sweep.
var TerminalStatuses = []OrderStatus{
	StatusRefunded,
	StatusFailed,
	StatusCancelled,
	StatusCompleted,
	StatusCompletedPackage,
}

// IsTerminal reports whether the sweep should leave the order alone.
func (s OrderStatus) IsTerminal() bool {
	for _, t := range TerminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}

// Address is a shipping address snapshot.
type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
}

// FullName joins first and last name.
func (a Address) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// Street joins both address lines.
func (a Address) Street() string {
	return strings.TrimSpace(a.Address1 + " " + a.Address2)
}

// Order is the host order header.
type Order struct {
	ID           int64       `json:"id"`
	Number       string      `json:"number"`
	Status       OrderStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	Shipping     Address     `json:"shipping"`
	BillingPhone string      `json:"billing_phone"`
	BillingEmail string      `json:"billing_email"`

	// CompletionPublishedAt is set once the storefront has accepted the
	// completed status. Zero means the completion is still owed.
	CompletionPublishedAt time.Time `json:"completion_published_at,omitzero"`
}

// ItemTypeLineItem is the order item type for purchased products.
// Shipping, fee and coupon rows carry other types.
const ItemTypeLineItem = "line_item"

// OrderItem is one row of an order. The three distributor fields are the
// only state this service owns.
type OrderItem struct {
	ID        int64  `json:"id"`
	OrderID   int64  `json:"order_id"`
	ProductID int64  `json:"product_id"`
	Type      string `json:"type"`
	Quantity  int    `json:"quantity"`

	// ExternalOrderID is written once and never overwritten.
	ExternalOrderID string `json:"atd_order_id,omitempty"`
	TrackingNumber  string `json:"atd_order_tracking_number,omitempty"`
	ProcessingLock  bool   `json:"atd_order_lock,omitempty"`
}

// ShipmentTracking is an entry in the host shipment-tracking list.
type ShipmentTracking struct {
	TrackingNumber         string    `json:"tracking_number"`
	TrackingProvider       string    `json:"tracking_provider,omitempty"`
	CustomTrackingProvider string    `json:"custom_tracking_provider,omitempty"`
	CustomTrackingLink     string    `json:"custom_tracking_link,omitempty"`
	DateShipped            time.Time `json:"date_shipped"`

	// PublishedAt is set once the storefront lists the entry.
	PublishedAt time.Time `json:"published_at,omitzero"`
}

// PendingTracking is a local shipment-tracking entry not yet mirrored to the
// storefront.
type PendingTracking struct {
	OrderID  int64
	Tracking ShipmentTracking
}

// Window bounds the order creation dates the sweep looks at.
type Window struct {
	From time.Time
	To   time.Time
}

// NewWindow returns [day(now) - lookback, day(now) + 1 day].
func NewWindow(now time.Time, lookback time.Duration) Window {
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return Window{From: day.Add(-lookback), To: day.AddDate(0, 0, 1)}
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}
