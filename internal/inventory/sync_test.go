package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"atd-sync/internal/adapter"
	"atd-sync/internal/model"
	"atd-sync/internal/soap"
	"atd-sync/internal/store"
	"atd-sync/internal/store/memory"
)

func TestSync_UpdatesBatch(t *testing.T) {
	st := memory.New()
	for i := int64(1); i <= 4; i++ {
		st.PutProduct(model.Product{
			ID:     i,
			SKU:    fmt.Sprintf("T%d", i),
			Brand:  "Falken",
			Weight: dec("25"),
			Tags:   []string{model.TagTire},
		})
	}
	dist := &adapter.Mock{
		GetProductBySKUFunc: func(_ context.Context, sku string) (*soap.ProductRecord, error) {
			if sku == "T4" {
				return nil, nil
			}
			return &soap.ProductRecord{SKU: sku, AvailableQty: qty(6), Cost: withCost("80")}, nil
		},
		GetInventoryByLocationFunc: func(_ context.Context, location, zip, sku string) ([]soap.InventoryRecord, error) {
			if location != "1320769" {
				return nil, fmt.Errorf("unexpected location %s", location)
			}
			return []soap.InventoryRecord{{SKU: sku, Local: 1, HasLocal: true}}, nil
		},
	}

	s := NewSyncer(st, dist, testTable(), nil)
	s.Batches = 2
	var seen []int64
	s.OnProduct = func(p *model.Product, _ Change) { seen = append(seen, p.ID) }

	got, err := s.Sync(ctx, model.KindTire, 2)
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if got.RunID == "" || got.Kind != model.KindTire || got.Batch != 2 {
		t.Errorf("result header = %+v", got)
	}
	if got.ProductCount != 2 || got.UpdatedCount != 2 || got.PricedCount != 1 {
		t.Errorf("counts = %+v", got)
	}
	if len(got.OutOfStockSKUs) != 1 || got.OutOfStockSKUs[0] != "T4" {
		t.Errorf("OutOfStockSKUs = %v", got.OutOfStockSKUs)
	}
	if len(seen) != 2 || seen[0] != 3 || seen[1] != 4 {
		t.Errorf("OnProduct ids = %v, want [3 4]", seen)
	}

	p3, _ := st.GetProduct(ctx, 3)
	if p3.Stock != 6 || !p3.Price.Equal(dec("110")) || p3.LocalStock != 7 {
		t.Errorf("product 3 = stock %d price %s local %d", p3.Stock, p3.Price, p3.LocalStock)
	}
	p1, _ := st.GetProduct(ctx, 1)
	if p1.Stock != 0 {
		t.Error("product outside the batch was updated")
	}

	if j, _ := st.Job(store.JobName(model.KindTire)); j.Running {
		t.Error("job guard not released")
	}
}

func TestSync_Validation(t *testing.T) {
	st := memory.New()

	_, err := NewSyncer(st, &adapter.Mock{Missing: []string{"ATD_API_KEY"}}, nil, nil).Sync(ctx, model.KindWheel, 1)
	if model.Code(err) != model.CodeNotConfigured {
		t.Errorf("unconfigured error = %v", err)
	}
	if _, ok := st.Job(store.JobName(model.KindWheel)); ok {
		t.Error("job guard claimed before configuration check")
	}

	for _, batch := range []int{0, 51} {
		_, err := NewSyncer(st, &adapter.Mock{}, nil, nil).Sync(ctx, model.KindWheel, batch)
		if !errors.Is(err, model.ErrInvalidRequest) {
			t.Errorf("batch %d error = %v, want invalid request", batch, err)
		}
	}
}

func TestSync_JobGuard(t *testing.T) {
	st := memory.New()
	seedProducts(st, model.TagWheel, "A")

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	st.ClaimJob(ctx, store.JobName(model.KindWheel), now.Add(-time.Hour), DefaultStaleAfter)

	s := NewSyncer(st, &adapter.Mock{GetProductBySKUFunc: carrying("A")}, nil, nil)
	s.now = func() time.Time { return now }

	_, err := s.Sync(ctx, model.KindWheel, 1)
	if model.Code(err) != model.CodeJobRunning {
		t.Fatalf("error = %v, want job_running", err)
	}

	// A day later the guard is stale and gets taken over.
	s.now = func() time.Time { return now.Add(25 * time.Hour) }
	if _, err := s.Sync(ctx, model.KindWheel, 1); err != nil {
		t.Fatalf("Sync() after stale guard error = %v", err)
	}
}

func TestSync_ConcurrentRunsSerialized(t *testing.T) {
	st := memory.New()
	seedProducts(st, model.TagWheel, "A")

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	dist := &adapter.Mock{GetProductBySKUFunc: func(_ context.Context, sku string) (*soap.ProductRecord, error) {
		entered <- struct{}{}
		<-release
		return &soap.ProductRecord{SKU: sku}, nil
	}}
	s := NewSyncer(st, dist, nil, slog.Default())

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = s.Sync(ctx, model.KindWheel, 1)
	}()
	<-entered

	_, err := s.Sync(ctx, model.KindWheel, 1)
	if model.Code(err) != model.CodeJobRunning {
		t.Errorf("second run error = %v, want job_running", err)
	}

	close(release)
	wg.Wait()
	if firstErr != nil {
		t.Errorf("first run error = %v", firstErr)
	}
}

func TestLocalStock(t *testing.T) {
	var calls []string
	dist := &adapter.Mock{GetInventoryByLocationFunc: func(_ context.Context, location, zip, sku string) ([]soap.InventoryRecord, error) {
		calls = append(calls, location+"/"+zip)
		switch zip {
		case "18610":
			return []soap.InventoryRecord{
				{SKU: "OTHER", Local: 50, HasLocal: true},
				{SKU: sku, Local: 0, HasLocal: true},
				{SKU: sku, Local: 3, HasLocal: true},
				{SKU: sku, Local: 9, HasLocal: true},
			}, nil
		case "76262":
			return nil, model.NewHTTPError(503)
		case "30084":
			return []soap.InventoryRecord{{SKU: sku, Local: 2, HasLocal: true}}, nil
		}
		return nil, nil
	}}

	got := LocalStock(ctx, dist, model.KindWheel, "W1", slog.Default())
	if got != 5 {
		t.Errorf("LocalStock() = %d, want 5", got)
	}
	if len(calls) != 6 || calls[0] != "34550/18610" {
		t.Errorf("calls = %v", calls)
	}
}
