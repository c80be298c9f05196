package ordering

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"atd-sync/internal/adapter"
	"atd-sync/internal/model"
	"atd-sync/internal/soap"
	"atd-sync/internal/store/memory"
)

var ctx = context.Background()

func newFixture() *memory.Store {
	st := memory.New()
	st.PutOrder(model.Order{
		ID:     100,
		Number: "1100",
		Status: model.StatusProcessing,
		Shipping: model.Address{
			FirstName: "Ada",
			LastName:  "Lovelace",
			Address1:  "1 Main St",
			Address2:  "Apt 2",
			City:      "Tampa",
			State:     "FL",
			Postcode:  "33619",
		},
		BillingPhone: "(813) 555-0100",
		BillingEmail: "ada@example.com",
	})
	st.PutProduct(model.Product{ID: 7, SKU: "TIRE-1", Tags: []string{model.TagTire}})
	st.PutProduct(model.Product{ID: 8, SKU: ""})
	st.PutOrderItem(model.OrderItem{ID: 55, OrderID: 100, ProductID: 7, Quantity: 4})
	st.PutOrderItem(model.OrderItem{ID: 56, OrderID: 100, ProductID: 8, Quantity: 1})
	st.PutOrderItem(model.OrderItem{ID: 99, OrderID: 200, ProductID: 7, Quantity: 1})
	return st
}

type recorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recorder) ObservePlacement(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func TestPlace_Success(t *testing.T) {
	st := newFixture()
	var got soap.PlaceOrderRequest
	dist := &adapter.Mock{PlaceOrderFunc: func(_ context.Context, req soap.PlaceOrderRequest) (*soap.PlaceOrderResult, error) {
		got = req
		return &soap.PlaceOrderResult{OrderNumber: "ATD-123"}, nil
	}}
	rec := &recorder{}
	svc := New(st, dist, "", nil)
	svc.Recorder = rec

	res, err := svc.Place(ctx, 100, 7, 55)
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}

	if res.ATDOrderID != "ATD-123" || res.Message != MsgPlaced {
		t.Errorf("result = %+v", res)
	}
	if res.RedirectURL != "post.php?post=100&action=edit" {
		t.Errorf("RedirectURL = %q", res.RedirectURL)
	}
	if got.Phone != "8135550100" || got.SKU != "TIRE-1" || got.Quantity != 4 || got.OrderNumber != "1100" {
		t.Errorf("request = %+v", got)
	}
	if got.Shipping.FullName() != "Ada Lovelace" || got.Email != "ada@example.com" {
		t.Errorf("request shipping = %+v", got)
	}

	item, _ := st.GetOrderItem(ctx, 55)
	if item.ExternalOrderID != "ATD-123" {
		t.Errorf("ExternalOrderID = %q", item.ExternalOrderID)
	}
	if item.ProcessingLock {
		t.Error("lock not released after success")
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != "ok" {
		t.Errorf("outcomes = %v", rec.outcomes)
	}
}

func TestPlace_Validation(t *testing.T) {
	tests := []struct {
		name                       string
		orderID, productID, itemID int64
		wantCode                   string
		wantStatus                 int
	}{
		{"missing order", 1, 7, 55, model.CodeInvalidOrder, 400},
		{"missing product", 100, 1, 55, model.CodeInvalidProduct, 400},
		{"product without sku", 100, 8, 56, model.CodeInvalidProduct, 400},
		{"missing item", 100, 7, 1, model.CodeInvalidItem, 400},
		{"item of another order", 100, 7, 99, model.CodeInvalidItem, 400},
		{"product not on item", 100, 7, 56, model.CodeInvalidProduct, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dist := &adapter.Mock{}
			_, err := New(newFixture(), dist, "", nil).Place(ctx, tt.orderID, tt.productID, tt.itemID)

			var apiErr *model.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error = %v, want *APIError", err)
			}
			if apiErr.Code != tt.wantCode || apiErr.StatusCode != tt.wantStatus {
				t.Errorf("error = %s/%d, want %s/%d", apiErr.Code, apiErr.StatusCode, tt.wantCode, tt.wantStatus)
			}
			if dist.Calls(soap.OpPlaceOrder) != 0 {
				t.Error("PlaceOrder called for invalid input")
			}
		})
	}
}

func TestPlace_AlreadyOrdered(t *testing.T) {
	st := newFixture()
	st.PutOrderItem(model.OrderItem{ID: 55, OrderID: 100, ProductID: 7, Quantity: 4, ExternalOrderID: "ATD-1"})
	dist := &adapter.Mock{}

	_, err := New(st, dist, "", nil).Place(ctx, 100, 7, 55)

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.CodeAlreadyOrdered || apiErr.StatusCode != 409 {
		t.Fatalf("error = %v, want already_ordered", err)
	}
	if apiErr.Message != "Item already ordered with ATD ID: ATD-1" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if dist.Calls(soap.OpPlaceOrder) != 0 {
		t.Error("PlaceOrder called")
	}
}

func TestPlace_NotConfiguredBeforeClaim(t *testing.T) {
	st := newFixture()
	dist := &adapter.Mock{Missing: []string{"ATD_API_KEY"}}

	_, err := New(st, dist, "", nil).Place(ctx, 100, 7, 55)
	if model.Code(err) != model.CodeNotConfigured {
		t.Fatalf("error = %v, want not_configured", err)
	}
	item, _ := st.GetOrderItem(ctx, 55)
	if item.ProcessingLock {
		t.Error("line locked although the client is not configured")
	}
}

func TestPlace_LockedLine(t *testing.T) {
	st := newFixture()
	st.ClaimOrderItem(ctx, 55)
	dist := &adapter.Mock{}

	_, err := New(st, dist, "", nil).Place(ctx, 100, 7, 55)
	if model.Code(err) != model.CodeProcessingLocked {
		t.Fatalf("error = %v, want processing_locked", err)
	}
	if !errors.Is(err, model.ErrConflict) {
		t.Error("processing_locked does not wrap ErrConflict")
	}
	item, _ := st.GetOrderItem(ctx, 55)
	if !item.ProcessingLock {
		t.Error("a losing caller released somebody else's lock")
	}
}

func TestPlace_UpstreamErrorReleasesLock(t *testing.T) {
	upstream := []error{
		model.NewSOAPFaultError("Invalid location"),
		model.NewTransportError(errors.New("connection reset")),
		model.NewHTTPError(503),
		model.NewInvalidResponseError("Missing order number in API response"),
	}
	for _, want := range upstream {
		t.Run(want.(*model.APIError).Code, func(t *testing.T) {
			st := newFixture()
			dist := &adapter.Mock{PlaceOrderFunc: func(context.Context, soap.PlaceOrderRequest) (*soap.PlaceOrderResult, error) {
				return nil, want
			}}

			_, err := New(st, dist, "", nil).Place(ctx, 100, 7, 55)
			if err != want {
				t.Errorf("error = %v, want %v unchanged", err, want)
			}
			item, _ := st.GetOrderItem(ctx, 55)
			if item.ProcessingLock || item.ExternalOrderID != "" {
				t.Errorf("item after failure = %+v, want unordered", item)
			}
		})
	}
}

// reloadFailStore fails every GetOrderItem after the first.
type reloadFailStore struct {
	*memory.Store
	calls atomic.Int32
}

func (s *reloadFailStore) GetOrderItem(ctx context.Context, id int64) (*model.OrderItem, error) {
	if s.calls.Add(1) > 1 {
		return nil, errors.New("connection lost")
	}
	return s.Store.GetOrderItem(ctx, id)
}

func TestPlace_LostWrite(t *testing.T) {
	tests := []struct {
		name       string
		reloadFail bool
		wantCode   string
	}{
		{"reports existing id", false, model.CodeAlreadyOrdered},
		{"reload failure is internal", true, model.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := newFixture()
			var st Store = mem
			if tt.reloadFail {
				st = &reloadFailStore{Store: mem}
			}
			// Another writer records an id while the distributor call is in flight.
			dist := &adapter.Mock{PlaceOrderFunc: func(context.Context, soap.PlaceOrderRequest) (*soap.PlaceOrderResult, error) {
				mem.PutOrderItem(model.OrderItem{ID: 55, OrderID: 100, ProductID: 7, Quantity: 4, ExternalOrderID: "ATD-OTHER", ProcessingLock: true})
				return &soap.PlaceOrderResult{OrderNumber: "ATD-NEW"}, nil
			}}

			_, err := New(st, dist, "", nil).Place(ctx, 100, 7, 55)
			if got := model.Code(err); got != tt.wantCode {
				t.Fatalf("error = %v, want code %s", err, tt.wantCode)
			}
			if !tt.reloadFail && !errors.Is(err, model.ErrConflict) {
				t.Errorf("error = %v, want conflict", err)
			}
			if tt.wantCode == model.CodeAlreadyOrdered && err.(*model.APIError).Message != "Item already ordered with ATD ID: ATD-OTHER" {
				t.Errorf("message = %q", err.(*model.APIError).Message)
			}
			item, _ := mem.GetOrderItem(ctx, 55)
			if item.ExternalOrderID != "ATD-OTHER" || item.ProcessingLock {
				t.Errorf("item = %+v, want existing id kept and lock released", item)
			}
		})
	}
}

func TestPlace_CancelledContextStillReleases(t *testing.T) {
	st := newFixture()
	cctx, cancel := context.WithCancel(ctx)
	dist := &adapter.Mock{PlaceOrderFunc: func(c context.Context, _ soap.PlaceOrderRequest) (*soap.PlaceOrderResult, error) {
		cancel()
		return nil, model.NewTransportError(c.Err())
	}}

	if _, err := New(st, dist, "", nil).Place(cctx, 100, 7, 55); err == nil {
		t.Fatal("Place() error = nil")
	}
	item, _ := st.GetOrderItem(ctx, 55)
	if item.ProcessingLock {
		t.Error("lock held after cancellation")
	}
}

func TestPlace_ConcurrentClicksPlaceOnce(t *testing.T) {
	st := newFixture()
	var placed atomic.Int32
	dist := &adapter.Mock{PlaceOrderFunc: func(context.Context, soap.PlaceOrderRequest) (*soap.PlaceOrderResult, error) {
		placed.Add(1)
		time.Sleep(20 * time.Millisecond)
		return &soap.PlaceOrderResult{OrderNumber: "ATD-9"}, nil
	}}
	svc := New(st, dist, "/wp-admin/post.php?post=%d&action=edit", nil)

	const clicks = 10
	var wg sync.WaitGroup
	var ok, conflict atomic.Int32
	for i := 0; i < clicks; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Place(ctx, 100, 7, 55)
			switch model.Code(err) {
			case "":
				ok.Add(1)
			case model.CodeProcessingLocked, model.CodeAlreadyOrdered:
				conflict.Add(1)
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if placed.Load() != 1 || ok.Load() != 1 || conflict.Load() != clicks-1 {
		t.Errorf("placed = %d, ok = %d, conflicts = %d", placed.Load(), ok.Load(), conflict.Load())
	}
}

func TestDigitsOnly(t *testing.T) {
	tests := map[string]string{
		"(813) 555-0100":  "8135550100",
		"+1 813.555.0100": "18135550100",
		"":                "",
		"ext":             "",
	}
	for in, want := range tests {
		if got := digitsOnly(in); got != want {
			t.Errorf("digitsOnly(%q) = %q, want %q", in, got, want)
		}
	}
}
