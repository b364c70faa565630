package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"PriceCast/internal/model"
)

func TestRecorder_Counts(t *testing.T) {
	r := New()
	r.RecordForecast(model.FamilyLogistic)
	r.RecordForecast(model.FamilyLogistic)
	r.RecordForecast(model.FamilyHolt)
	r.RecordFallback()
	r.RecordSkip()
	r.RecordFit(model.FamilyHolt, 20*time.Millisecond)
	r.RecordRun(&model.RunSummary{FinishedAt: time.Unix(1_700_000_000, 0)})

	if got := testutil.ToFloat64(r.forecasts.WithLabelValues("logistic")); got != 2 {
		t.Errorf("logistic forecasts %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.fallbacks); got != 1 {
		t.Errorf("fallbacks %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.lastRun); got != 1_700_000_000 {
		t.Errorf("last run %v", got)
	}
	if n := testutil.CollectAndCount(r.fitDuration); n != 1 {
		t.Errorf("expected one fit histogram series, got %d", n)
	}
}

func TestRecorder_Push(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotPath = req.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := New()
	r.RecordSkip()
	if err := r.Push(srv.URL, "pricecast"); err != nil {
		t.Fatalf("push: %v", err)
	}
	if gotPath != "/metrics/job/pricecast" {
		t.Errorf("unexpected push path %q", gotPath)
	}
}
