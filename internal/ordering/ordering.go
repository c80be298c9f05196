// Package ordering places drop-ship orders with the distributor for single
// store order lines.
//
// A line moves unordered -> locked -> ordered. The lock is a store-level
// conditional write, so two admins clicking "Order via ATD" at the same
// moment produce exactly one distributor order. A failed placement returns
// the line to unordered.
package ordering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"atd-sync/internal/adapter"
	"atd-sync/internal/model"
	"atd-sync/internal/soap"
)

// DefaultRedirectTemplate is the host admin order edit screen. %d is the order ID.
const DefaultRedirectTemplate = "post.php?post=%d&action=edit"

// MsgPlaced is the success message shown to the admin.
const MsgPlaced = "Order placed successfully with ATD"

// Store is the persistence Service needs.
type Store interface {
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	GetOrderItem(ctx context.Context, id int64) (*model.OrderItem, error)
	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	ClaimOrderItem(ctx context.Context, itemID int64) (bool, error)
	ReleaseOrderItem(ctx context.Context, itemID int64) error
	SetExternalOrderID(ctx context.Context, itemID int64, externalID string) (bool, error)
}

// Recorder receives the outcome code of every placement attempt.
type Recorder interface {
	ObservePlacement(outcome string)
}

// Service places orders.
type Service struct {
	store    Store
	dist     adapter.Distributor
	logger   *slog.Logger
	redirect string

	Recorder Recorder
}

// New returns a Service. An empty redirectTemplate uses DefaultRedirectTemplate.
func New(st Store, dist adapter.Distributor, redirectTemplate string, logger *slog.Logger) *Service {
	if redirectTemplate == "" {
		redirectTemplate = DefaultRedirectTemplate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, dist: dist, logger: logger, redirect: redirectTemplate}
}

// Place orders the product on one line of an order.
func (s *Service) Place(ctx context.Context, orderID, productID, itemID int64) (res *model.OrderResult, err error) {
	logger := s.logger.With("order_id", orderID, "product_id", productID, "order_item_id", itemID)
	defer func() {
		if s.Recorder == nil {
			return
		}
		outcome := "ok"
		if err != nil {
			outcome = model.Code(err)
		}
		s.Recorder.ObservePlacement(outcome)
	}()

	order, product, item, err := s.load(ctx, orderID, productID, itemID)
	if err != nil {
		return nil, err
	}
	if item.ExternalOrderID != "" {
		return nil, model.NewAlreadyOrderedError(item.ExternalOrderID)
	}
	if !s.dist.Configured() {
		return nil, model.NewNotConfiguredError(s.dist.MissingConfig())
	}

	claimed, err := s.store.ClaimOrderItem(ctx, itemID)
	if err != nil {
		return nil, model.NewInternalError(fmt.Errorf("claiming order item: %w", err))
	}
	if !claimed {
		return nil, s.lostClaim(ctx, itemID)
	}
	defer func() {
		if err := s.store.ReleaseOrderItem(context.WithoutCancel(ctx), itemID); err != nil {
			logger.ErrorContext(ctx, "failed to release order item lock", "error", err)
		}
	}()

	logger.InfoContext(ctx, "placing distributor order", "sku", product.SKU, "quantity", item.Quantity)
	placed, err := s.dist.PlaceOrder(ctx, soap.PlaceOrderRequest{
		OrderNumber: order.Number,
		Shipping:    order.Shipping,
		Phone:       digitsOnly(order.BillingPhone),
		Email:       order.BillingEmail,
		SKU:         product.SKU,
		Quantity:    item.Quantity,
	})
	if err != nil {
		logger.ErrorContext(ctx, "distributor order failed", "error", err, "code", model.Code(err))
		return nil, err
	}

	stored, err := s.store.SetExternalOrderID(ctx, itemID, placed.OrderNumber)
	if err != nil {
		logger.ErrorContext(ctx, "distributor order placed but not recorded",
			"atd_order_id", placed.OrderNumber, "error", err)
		return nil, model.NewInternalError(fmt.Errorf("recording distributor order %s: %w", placed.OrderNumber, err))
	}
	if !stored {
		current, err := s.store.GetOrderItem(ctx, itemID)
		if err != nil {
			logger.ErrorContext(ctx, "distributor order placed but line could not be reloaded",
				"atd_order_id", placed.OrderNumber, "error", err)
			return nil, model.NewInternalError(fmt.Errorf("reloading order item %d: %w", itemID, err))
		}
		existing := current.ExternalOrderID
		logger.ErrorContext(ctx, "line already carried a distributor order id",
			"atd_order_id", placed.OrderNumber, "existing_atd_order_id", existing)
		return nil, model.NewAlreadyOrderedError(existing)
	}

	logger.InfoContext(ctx, "distributor order placed", "atd_order_id", placed.OrderNumber)
	return &model.OrderResult{
		ATDOrderID:  placed.OrderNumber,
		Message:     MsgPlaced,
		RedirectURL: fmt.Sprintf(s.redirect, orderID),
	}, nil
}

// load fetches and cross-checks the order, product and line.
func (s *Service) load(ctx context.Context, orderID, productID, itemID int64) (*model.Order, *model.Product, *model.OrderItem, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil, nil, model.NewInvalidOrderError()
		}
		return nil, nil, nil, model.NewInternalError(err)
	}

	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil, nil, model.NewInvalidProductError("Product not found")
		}
		return nil, nil, nil, model.NewInternalError(err)
	}
	if strings.TrimSpace(product.SKU) == "" {
		return nil, nil, nil, model.NewInvalidProductError("Product has no SKU")
	}

	item, err := s.store.GetOrderItem(ctx, itemID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, nil, nil, model.NewInvalidItemError("Order item not found")
		}
		return nil, nil, nil, model.NewInternalError(err)
	}
	if item.OrderID != orderID {
		return nil, nil, nil, model.NewInvalidItemError("Order item does not belong to this order")
	}
	if item.ProductID != productID {
		return nil, nil, nil, model.NewInvalidProductError("Product does not match the order item")
	}
	return order, product, item, nil
}

// lostClaim explains why a claim failed: the line was ordered in the
// meantime, or another placement holds the lock.
func (s *Service) lostClaim(ctx context.Context, itemID int64) error {
	item, err := s.store.GetOrderItem(ctx, itemID)
	if err != nil {
		return model.NewInternalError(err)
	}
	if item.ExternalOrderID != "" {
		return model.NewAlreadyOrderedError(item.ExternalOrderID)
	}
	return model.NewProcessingLockedError()
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
