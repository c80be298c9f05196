package tracking

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"atd-sync/internal/adapter"
	"atd-sync/internal/model"
	"atd-sync/internal/soap"
	"atd-sync/internal/store/memory"
)

var (
	ctx = context.Background()
	now = time.Date(2026, 6, 10, 15, 0, 0, 0, time.UTC)
)

func shippedVia(method, number, url string) *soap.OrderDetail {
	return &soap.OrderDetail{Fulfillment: &soap.Fulfillment{ShipMethod: method, TrackingNumber: number, TrackingURL: url}}
}

func newSweeper(st Store, dist adapter.Distributor) *Sweeper {
	s := NewSweeper(st, dist, nil)
	s.now = func() time.Time { return now }
	return s
}

// fakePublisher stands in for the storefront. remote holds what the
// storefront lists per order; fail makes every call return an error.
type fakePublisher struct {
	remote    map[int64][]model.ShipmentTracking
	tracked   map[int64][]string
	completed []int64
	fail      bool
}

func (p *fakePublisher) ListTrackings(_ context.Context, orderID int64) ([]model.ShipmentTracking, error) {
	if p.fail {
		return nil, errors.New("rest unavailable")
	}
	return append([]model.ShipmentTracking(nil), p.remote[orderID]...), nil
}

func (p *fakePublisher) PublishTracking(_ context.Context, orderID int64, t model.ShipmentTracking) error {
	if p.fail {
		return errors.New("rest unavailable")
	}
	if p.tracked == nil {
		p.tracked = make(map[int64][]string)
	}
	if p.remote == nil {
		p.remote = make(map[int64][]model.ShipmentTracking)
	}
	p.tracked[orderID] = append(p.tracked[orderID], t.TrackingNumber)
	p.remote[orderID] = append(p.remote[orderID], t)
	return nil
}

func (p *fakePublisher) PublishCompleted(_ context.Context, orderID int64) error {
	if p.fail {
		return errors.New("rest unavailable")
	}
	p.completed = append(p.completed, orderID)
	return nil
}

func TestShipmentFor(t *testing.T) {
	tests := []struct {
		method       string
		wantProvider string
		wantCustom   string
		wantLink     string
	}{
		{"UPS Ground", ProviderUPS, "", ""},
		{"ATD Delivery", "", ProviderFlexForward, "https://track.example/1"},
		{"FEDEX_GROUND", ProviderFedex, "", ""},
		{"ups ground", ProviderFedex, "", ""},
		{"", ProviderFedex, "", ""},
	}
	for _, tt := range tests {
		got := ShipmentFor(tt.method, "N1", "https://track.example/1", now)
		if got.TrackingProvider != tt.wantProvider || got.CustomTrackingProvider != tt.wantCustom || got.CustomTrackingLink != tt.wantLink {
			t.Errorf("ShipmentFor(%q) = %+v", tt.method, got)
		}
		if got.TrackingNumber != "N1" || !got.DateShipped.Equal(now) {
			t.Errorf("ShipmentFor(%q) number/date = %q/%v", tt.method, got.TrackingNumber, got.DateShipped)
		}
	}
}

func TestRun_TrackingAndCompletion(t *testing.T) {
	st := memory.New()
	st.PutProduct(model.Product{ID: 1, Tags: []string{model.TagTire}})
	st.PutProduct(model.Product{ID: 2, Tags: []string{"accessories"}})
	st.PutProduct(model.Product{ID: 3, Tags: []string{"custom-wheels"}})

	// Order 10: one tire line that ships now, one accessory line. Completes.
	st.PutOrder(model.Order{ID: 10, Status: model.StatusProcessing, CreatedAt: now.Add(-72 * time.Hour)})
	st.PutOrderItem(model.OrderItem{ID: 101, OrderID: 10, ProductID: 1, ExternalOrderID: "A-1"})
	st.PutOrderItem(model.OrderItem{ID: 102, OrderID: 10, ProductID: 2})
	st.PutOrderItem(model.OrderItem{ID: 103, OrderID: 10, Type: "shipping"})

	// Order 20: tire shipped, wheel not ordered yet. Stays open.
	st.PutOrder(model.Order{ID: 20, Status: model.StatusProcessing, CreatedAt: now.Add(-24 * time.Hour)})
	st.PutOrderItem(model.OrderItem{ID: 201, OrderID: 20, ProductID: 1, ExternalOrderID: "A-2"})
	st.PutOrderItem(model.OrderItem{ID: 202, OrderID: 20, ProductID: 3})

	// Order 30: not shipped yet.
	st.PutOrder(model.Order{ID: 30, Status: model.StatusOnHold, CreatedAt: now.Add(-time.Hour)})
	st.PutOrderItem(model.OrderItem{ID: 301, OrderID: 30, ProductID: 1, ExternalOrderID: "A-3"})

	// Order 40: outside the window. Never looked up.
	st.PutOrder(model.Order{ID: 40, Status: model.StatusProcessing, CreatedAt: now.AddDate(0, -2, 0)})
	st.PutOrderItem(model.OrderItem{ID: 401, OrderID: 40, ProductID: 1, ExternalOrderID: "A-4"})

	// Order 50: upstream error.
	st.PutOrder(model.Order{ID: 50, Status: model.StatusProcessing, CreatedAt: now.Add(-time.Hour)})
	st.PutOrderItem(model.OrderItem{ID: 501, OrderID: 50, ProductID: 1, ExternalOrderID: "A-5"})

	var looked []string
	dist := &adapter.Mock{GetOrderDetailFunc: func(_ context.Context, conf string) (*soap.OrderDetail, error) {
		looked = append(looked, conf)
		switch conf {
		case "A-1":
			return shippedVia("UPS Ground", "1Z001", ""), nil
		case "A-2":
			return shippedVia("ATD Delivery", "FF002", "https://flex.example/FF002"), nil
		case "A-5":
			return nil, model.NewSOAPFaultError("Order not found")
		}
		return &soap.OrderDetail{ConfirmationNumber: conf}, nil
	}}

	pub := &fakePublisher{}
	var lines []string
	s := newSweeper(st, dist)
	s.Publisher = pub
	s.Progress = func(line string) { lines = append(lines, line) }

	got, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got.Checked != 3 || got.TrackingUpdated != 2 || got.TrackingRegistered != 2 || got.APIErrorCount != 1 {
		t.Errorf("summary = %+v", got)
	}
	if got.OrdersCompleted != 1 || len(got.CompletedOrderIDs) != 1 || got.CompletedOrderIDs[0] != 10 {
		t.Errorf("completed = %+v", got)
	}
	if strings.Join(looked, ",") != "A-1,A-2,A-3,A-5" {
		t.Errorf("lookups = %v", looked)
	}

	o10, _ := st.GetOrder(ctx, 10)
	o20, _ := st.GetOrder(ctx, 20)
	if o10.Status != model.StatusCompleted || o20.Status != model.StatusProcessing {
		t.Errorf("statuses = %s, %s", o10.Status, o20.Status)
	}

	tr20, _ := st.ListShipmentTrackings(ctx, 20)
	if len(tr20) != 1 || tr20[0].CustomTrackingProvider != ProviderFlexForward || tr20[0].CustomTrackingLink != "https://flex.example/FF002" {
		t.Errorf("order 20 trackings = %+v", tr20)
	}
	it101, _ := st.GetOrderItem(ctx, 101)
	if it101.TrackingNumber != "1Z001" {
		t.Errorf("item 101 tracking = %q", it101.TrackingNumber)
	}

	if len(pub.tracked) != 2 || len(pub.completed) != 1 || got.TrackingPublished != 2 || got.CompletionsPublished != 1 {
		t.Errorf("published = %+v, summary = %+v", pub, got)
	}
	if len(lines) != 3 || lines[len(lines)-1] != "10 completed" {
		t.Errorf("progress = %v", lines)
	}

	// Second run: nothing new upstream, nothing changes.
	pub2 := &fakePublisher{}
	s.Publisher = pub2
	again, err := s.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again.TrackingUpdated != 0 || again.TrackingRegistered != 0 || again.OrdersCompleted != 0 {
		t.Errorf("second summary = %+v", again)
	}
	if len(pub2.tracked) != 0 || len(pub2.completed) != 0 {
		t.Errorf("second run republished: %+v", pub2)
	}
	if tr20, _ := st.ListShipmentTrackings(ctx, 20); len(tr20) != 1 {
		t.Errorf("duplicate tracking entries: %+v", tr20)
	}
}

func TestRun_AlreadyRegisteredTrackingNotDuplicated(t *testing.T) {
	st := memory.New()
	st.PutOrder(model.Order{ID: 1, Status: model.StatusProcessing, CreatedAt: now})
	st.PutOrderItem(model.OrderItem{ID: 11, OrderID: 1, ProductID: 9, ExternalOrderID: "A"})
	st.AddShipmentTracking(ctx, 1, model.ShipmentTracking{TrackingNumber: "UPS 1Z999 ", TrackingProvider: ProviderUPS})

	dist := &adapter.Mock{GetOrderDetailFunc: func(context.Context, string) (*soap.OrderDetail, error) {
		return shippedVia("UPS", "1Z999", ""), nil
	}}

	got, err := newSweeper(st, dist).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.TrackingUpdated != 1 || got.TrackingRegistered != 0 {
		t.Errorf("summary = %+v", got)
	}
	if tr, _ := st.ListShipmentTrackings(ctx, 1); len(tr) != 1 {
		t.Errorf("trackings = %+v", tr)
	}
	// Product 9 does not exist, so it does not block and the order completes.
	if got.OrdersCompleted != 1 {
		t.Errorf("OrdersCompleted = %d, want 1", got.OrdersCompleted)
	}
}

func TestRun_BlockingEvaluatedPerOrder(t *testing.T) {
	st := memory.New()
	st.PutProduct(model.Product{ID: 1, Tags: []string{model.TagWheel}})
	st.PutProduct(model.Product{ID: 2, Tags: []string{"tires"}})

	// Order 1 is blocked by an unshipped tire; order 2 has nothing else.
	st.PutOrder(model.Order{ID: 1, Status: model.StatusProcessing, CreatedAt: now})
	st.PutOrderItem(model.OrderItem{ID: 11, OrderID: 1, ProductID: 1, ExternalOrderID: "A", TrackingNumber: "T1"})
	st.PutOrderItem(model.OrderItem{ID: 12, OrderID: 1, ProductID: 2})
	st.PutOrder(model.Order{ID: 2, Status: model.StatusProcessing, CreatedAt: now})
	st.PutOrderItem(model.OrderItem{ID: 21, OrderID: 2, ProductID: 1, ExternalOrderID: "B", TrackingNumber: "T2"})

	got, err := newSweeper(st, &adapter.Mock{}).Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.OrdersCompleted != 1 || got.CompletedOrderIDs[0] != 2 {
		t.Errorf("completed = %v, want [2]", got.CompletedOrderIDs)
	}
}

func TestRun_StorefrontOutageRetriedNextRun(t *testing.T) {
	st := memory.New()
	st.PutOrder(model.Order{ID: 1, Status: model.StatusProcessing, CreatedAt: now})
	st.PutOrderItem(model.OrderItem{ID: 11, OrderID: 1, ExternalOrderID: "A"})
	dist := &adapter.Mock{GetOrderDetailFunc: func(context.Context, string) (*soap.OrderDetail, error) {
		return shippedVia("FedEx", "F1", ""), nil
	}}
	pub := &fakePublisher{fail: true}
	s := newSweeper(st, dist)
	s.Publisher = pub

	first, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if first.TrackingRegistered != 1 || first.OrdersCompleted != 1 {
		t.Errorf("first summary = %+v", first)
	}
	if first.TrackingPublished != 0 || first.CompletionsPublished != 0 || first.PublishErrorCount != 2 {
		t.Errorf("first publish counters = %+v", first)
	}

	// The line has its tracking number and the order is completed, so only
	// the pending markers bring the storefront up to date.
	pub.fail = false
	second, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if second.TrackingUpdated != 0 || second.OrdersCompleted != 0 {
		t.Errorf("second run changed local state: %+v", second)
	}
	if second.TrackingPublished != 1 || second.CompletionsPublished != 1 || second.PublishErrorCount != 0 {
		t.Errorf("second publish counters = %+v", second)
	}
	if len(pub.tracked[1]) != 1 || pub.tracked[1][0] != "F1" {
		t.Errorf("tracking published = %v", pub.tracked)
	}
	if len(pub.completed) != 1 || pub.completed[0] != 1 {
		t.Errorf("completed published = %v", pub.completed)
	}
	if o, _ := st.GetOrder(ctx, 1); o.CompletionPublishedAt.IsZero() {
		t.Error("completion not marked published")
	}

	third, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("third Run() error = %v", err)
	}
	if third.TrackingPublished != 0 || third.CompletionsPublished != 0 {
		t.Errorf("third run republished: %+v", third)
	}
	if len(pub.tracked[1]) != 1 || len(pub.completed) != 1 {
		t.Errorf("duplicate publishes: tracked=%v completed=%v", pub.tracked, pub.completed)
	}
}

func TestRun_StorefrontTrackingNotDuplicated(t *testing.T) {
	st := memory.New()
	st.PutProduct(model.Product{ID: 1, Tags: []string{model.TagWheel}})
	st.PutProduct(model.Product{ID: 2, Tags: []string{model.TagTire}})
	st.PutOrder(model.Order{ID: 1, Status: model.StatusProcessing, CreatedAt: now})
	st.PutOrderItem(model.OrderItem{ID: 11, OrderID: 1, ProductID: 1, ExternalOrderID: "A"})
	st.PutOrderItem(model.OrderItem{ID: 12, OrderID: 1, ProductID: 2})
	dist := &adapter.Mock{GetOrderDetailFunc: func(context.Context, string) (*soap.OrderDetail, error) {
		return shippedVia("UPS", "1Z001", ""), nil
	}}

	// Staff already entered the number on the storefront by hand.
	pub := &fakePublisher{remote: map[int64][]model.ShipmentTracking{
		1: {{TrackingNumber: "1Z001", TrackingProvider: ProviderUPS}},
	}}
	s := newSweeper(st, dist)
	s.Publisher = pub

	got, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got.TrackingRegistered != 1 || got.TrackingPublished != 0 || got.PublishErrorCount != 0 {
		t.Errorf("summary = %+v", got)
	}
	if len(pub.tracked) != 0 {
		t.Errorf("posted a number the storefront already lists: %v", pub.tracked)
	}
	if len(pub.remote[1]) != 1 {
		t.Errorf("storefront entries = %+v", pub.remote[1])
	}
	pending, _ := st.ListUnpublishedTrackings(ctx, model.NewWindow(now, DefaultLookback))
	if len(pending) != 0 {
		t.Errorf("entry left pending: %+v", pending)
	}
	// The unshipped tire keeps the order open.
	if got.OrdersCompleted != 0 || len(pub.completed) != 0 {
		t.Errorf("completed = %v", pub.completed)
	}
}

func TestRun_Guards(t *testing.T) {
	st := memory.New()

	_, err := newSweeper(st, &adapter.Mock{Missing: []string{"ATD_USERNAME"}}).Run(ctx)
	if model.Code(err) != model.CodeNotConfigured {
		t.Errorf("unconfigured error = %v", err)
	}

	st.ClaimJob(ctx, JobName, now.Add(-time.Minute), DefaultStaleAfter)
	_, err = newSweeper(st, &adapter.Mock{}).Run(ctx)
	if model.Code(err) != model.CodeJobRunning {
		t.Errorf("overlapping run error = %v, want job_running", err)
	}
}
