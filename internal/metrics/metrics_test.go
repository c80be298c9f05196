package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"atd-sync/internal/inventory"
	"atd-sync/internal/model"
	"atd-sync/internal/ordering"
	"atd-sync/internal/soap"
	"atd-sync/internal/tracking"
)

var (
	_ soap.Observer      = (*Metrics)(nil)
	_ ordering.Recorder  = (*Metrics)(nil)
	_ inventory.Recorder = (*Metrics)(nil)
	_ tracking.Recorder  = (*Metrics)(nil)
)

func TestObserveCall(t *testing.T) {
	m := New()
	m.ObserveCall(soap.OpGetProduct, "ok", 120*time.Millisecond)
	m.ObserveCall(soap.OpGetProduct, "ok", 80*time.Millisecond)
	m.ObserveCall(soap.OpGetProduct, model.CodeSOAPFault, time.Second)

	if got := testutil.ToFloat64(m.soapCalls.WithLabelValues(soap.OpGetProduct, "ok")); got != 2 {
		t.Errorf("ok calls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.soapCalls.WithLabelValues(soap.OpGetProduct, model.CodeSOAPFault)); got != 1 {
		t.Errorf("fault calls = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.soapDuration); got != 1 {
		t.Errorf("duration series = %d, want 1", got)
	}
}

func TestObserveBatch(t *testing.T) {
	m := New()
	m.ObserveBatch("scrub", model.KindTire, "ok", 3)
	m.ObserveBatch("scrub", model.KindTire, "ok", 0)
	m.ObserveBatch("sync", model.KindWheel, model.CodeJobRunning, 0)

	if got := testutil.ToFloat64(m.batches.WithLabelValues("scrub", "tire", "ok")); got != 2 {
		t.Errorf("scrub batches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.outOfStock.WithLabelValues("scrub", "tire")); got != 3 {
		t.Errorf("out of stock = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.batches.WithLabelValues("sync", "wheel", model.CodeJobRunning)); got != 1 {
		t.Errorf("job_running batches = %v, want 1", got)
	}
}

func TestObserveSweep(t *testing.T) {
	m := New()
	m.ObserveSweep(model.SweepSummary{Checked: 4, TrackingUpdated: 2, TrackingRegistered: 1, OrdersCompleted: 1, APIErrorCount: 1, TrackingPublished: 1, PublishErrorCount: 2})
	m.ObserveSweep(model.SweepSummary{Checked: 1})

	if got := testutil.ToFloat64(m.sweeps); got != 2 {
		t.Errorf("sweeps = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.sweepChanges.WithLabelValues("checked")); got != 5 {
		t.Errorf("checked = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.sweepAPIErrors); got != 1 {
		t.Errorf("api errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.sweepChanges.WithLabelValues("tracking_published")); got != 1 {
		t.Errorf("tracking published = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.sweepPublishErrors); got != 2 {
		t.Errorf("publish errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.lastSweepUnixTs); got == 0 {
		t.Error("last sweep timestamp not set")
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObservePlacement("ok")
	m.ObservePlacement(model.CodeProcessingLocked)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))

	if w.Code != 200 {
		t.Fatalf("Status = %d, want 200", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	for _, want := range []string{
		`atd_sync_orders_placements_total{outcome="ok"} 1`,
		`atd_sync_orders_placements_total{outcome="processing_locked"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.ObservePlacement("ok")
			m.ObserveCall(soap.OpPlaceOrder, "ok", time.Millisecond)
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(m.placements.WithLabelValues("ok")); got != 50 {
		t.Errorf("placements = %v, want 50", got)
	}
}
