package inventory

import (
	"context"
	"fmt"
	"testing"

	"atd-sync/internal/adapter"
	"atd-sync/internal/model"
	"atd-sync/internal/soap"
	"atd-sync/internal/store/memory"
)

var ctx = context.Background()

func seedProducts(s *memory.Store, tag string, skus ...string) {
	for i, sku := range skus {
		s.PutProduct(model.Product{
			ID:          int64(i + 1),
			SKU:         sku,
			Tags:        []string{tag},
			Stock:       5,
			StockStatus: model.StockInStock,
		})
	}
}

func carrying(skus ...string) func(context.Context, string) (*soap.ProductRecord, error) {
	known := make(map[string]bool, len(skus))
	for _, s := range skus {
		known[s] = true
	}
	return func(_ context.Context, sku string) (*soap.ProductRecord, error) {
		if known[sku] {
			return &soap.ProductRecord{SKU: sku}, nil
		}
		return nil, nil
	}
}

func TestScrub_MarksAbsentProducts(t *testing.T) {
	st := memory.New()
	seedProducts(st, model.TagTire, "A", "B", "", "C")
	dist := &adapter.Mock{GetProductBySKUFunc: carrying("A", "C")}

	got, err := NewScrubber(st, dist, nil).Scrub(ctx, model.KindTire, 1)
	if err != nil {
		t.Fatalf("Scrub() error = %v", err)
	}

	if got.ProcessedCount != 3 || got.OutOfStockCount != 1 || got.APIErrorCount != 0 {
		t.Errorf("result = %+v", got)
	}
	if len(got.OutOfStockSKUs) != 1 || got.OutOfStockSKUs[0] != "B" {
		t.Errorf("OutOfStockSKUs = %v, want [B]", got.OutOfStockSKUs)
	}
	if got.Message != MsgScrubComplete {
		t.Errorf("Message = %q", got.Message)
	}
	if dist.Calls(soap.OpGetProduct) != 3 {
		t.Errorf("lookups = %d, want 3 (empty SKU skipped)", dist.Calls(soap.OpGetProduct))
	}

	b, _ := st.GetProduct(ctx, 2)
	if b.Stock != 0 || b.StockStatus != model.StockOutOfStock || !b.NotPresentUpstream || !b.HiddenOutOfStock {
		t.Errorf("product B = %+v", b)
	}
	a, _ := st.GetProduct(ctx, 1)
	if a.StockStatus != model.StockInStock {
		t.Errorf("product A status = %s", a.StockStatus)
	}
}

func TestScrub_AllPresentAndEmptyPage(t *testing.T) {
	st := memory.New()
	seedProducts(st, model.TagWheel, "A")
	s := NewScrubber(st, &adapter.Mock{GetProductBySKUFunc: carrying("A")}, nil)

	got, err := s.Scrub(ctx, model.KindWheel, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Message != MsgAllPresent {
		t.Errorf("Message = %q, want %q", got.Message, MsgAllPresent)
	}

	got, err = s.Scrub(ctx, model.KindWheel, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got.Message != MsgNoProducts || got.ProcessedCount != 0 || got.OutOfStockSKUs == nil {
		t.Errorf("empty page = %+v", got)
	}
}

func TestScrub_Errors(t *testing.T) {
	failing := func(_ context.Context, sku string) (*soap.ProductRecord, error) {
		return nil, model.NewHTTPError(500)
	}

	tests := []struct {
		name     string
		skus     []string
		dist     *adapter.Mock
		wantCode string
	}{
		{
			name:     "not configured",
			skus:     []string{"A"},
			dist:     &adapter.Mock{Missing: []string{"ATD_USERNAME"}},
			wantCode: model.CodeNotConfigured,
		},
		{
			name:     "short circuit after five failures",
			skus:     []string{"A", "B", "C", "D", "E", "F", "G"},
			dist:     &adapter.Mock{GetProductBySKUFunc: failing},
			wantCode: model.CodeAPIConfiguration,
		},
		{
			name:     "every lookup failed",
			skus:     []string{"A", "B"},
			dist:     &adapter.Mock{GetProductBySKUFunc: failing},
			wantCode: model.CodeAPIFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := memory.New()
			seedProducts(st, model.TagWheel, tt.skus...)
			_, err := NewScrubber(st, tt.dist, nil).Scrub(ctx, model.KindWheel, 1)
			if got := model.Code(err); got != tt.wantCode {
				t.Errorf("error code = %q (%v), want %q", got, err, tt.wantCode)
			}
		})
	}
}

func TestScrub_ShortCircuitStopsLookups(t *testing.T) {
	st := memory.New()
	skus := make([]string, 20)
	for i := range skus {
		skus[i] = fmt.Sprintf("S%02d", i)
	}
	seedProducts(st, model.TagWheel, skus...)
	dist := &adapter.Mock{GetProductBySKUFunc: func(context.Context, string) (*soap.ProductRecord, error) {
		return nil, model.NewSOAPFaultError("bad credentials")
	}}

	NewScrubber(st, dist, nil).Scrub(ctx, model.KindWheel, 1)

	if got := dist.Calls(soap.OpGetProduct); got != 5 {
		t.Errorf("lookups = %d, want 5", got)
	}
}

func TestScrub_ErrorsAfterSuccessesDoNotAbort(t *testing.T) {
	st := memory.New()
	seedProducts(st, model.TagWheel, "A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K")
	ok := carrying("A", "B", "C", "D", "E")
	dist := &adapter.Mock{GetProductBySKUFunc: func(c context.Context, sku string) (*soap.ProductRecord, error) {
		if sku <= "E" {
			return ok(c, sku)
		}
		return nil, model.NewTransportError(fmt.Errorf("timeout"))
	}}

	got, err := NewScrubber(st, dist, nil).Scrub(ctx, model.KindWheel, 1)
	if err != nil {
		t.Fatalf("Scrub() error = %v", err)
	}
	if got.ProcessedCount != 5 || got.APIErrorCount != 6 {
		t.Errorf("result = %+v", got)
	}
}

func TestBatches(t *testing.T) {
	st := memory.New()
	seedProducts(st, model.TagTire, "A", "B", "C", "D", "E")
	s := NewScrubber(st, &adapter.Mock{}, nil)
	s.PageSize = 2

	got, err := s.Batches(ctx, model.KindTire)
	if err != nil {
		t.Fatal(err)
	}
	want := []model.Batch{
		{Page: 1, Start: 1, End: 2},
		{Page: 2, Start: 3, End: 4},
		{Page: 3, Start: 5, End: 5},
	}
	if len(got) != len(want) {
		t.Fatalf("Batches() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("batch %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if label := BatchLabel(model.KindTire, got[2]); label != "Scrub Tires 5 to 5" {
		t.Errorf("BatchLabel() = %q", label)
	}

	none, _ := s.Batches(ctx, model.KindWheel)
	if none == nil || len(none) != 0 {
		t.Errorf("Batches(no products) = %#v, want empty", none)
	}
}
