package scheduler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"PriceCast/internal/forecaster"
	"PriceCast/internal/metrics"
	"PriceCast/internal/model"
	"PriceCast/internal/notifier"
	"PriceCast/internal/pipeline"
	"PriceCast/internal/store"
)

type memPrices map[string][]model.PricePoint

func (m memPrices) Symbols(context.Context) ([]string, error) {
	var out []string
	for s := range m {
		out = append(out, s)
	}
	return out, nil
}

func (m memPrices) Points(_ context.Context, sym string) ([]model.PricePoint, error) {
	return m[sym], nil
}

type memForecasts map[string][]model.ForecastPoint

func (m memForecasts) Forecasts(context.Context) (map[string][]model.ForecastPoint, error) {
	return m, nil
}

func hourly(sym string, n int, price float64) []model.PricePoint {
	pts := make([]model.PricePoint, n)
	for i := range pts {
		pts[i] = model.PricePoint{Symbol: sym, Timestamp: int64(i) * 3600, Price: price}
	}
	return pts
}

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	prices := memPrices{"BTC": hourly("BTC", 48, 100), "USDT": hourly("USDT", 1, 1)}
	runner := pipeline.NewRunner(prices, nil, forecaster.NewHolt(forecaster.DefaultHorizon()), store.NewNoopWriter(),
		pipeline.Options{Horizon: 24, MinHistory: 48, Workers: 1}, zerolog.Nop())
	return NewScheduler(context.Background(), runner, zerolog.Nop())
}

func TestRegister_CronExpressions(t *testing.T) {
	s := newTestScheduler(t)
	if err := s.Register("every tuesday"); err == nil {
		t.Error("expected error for invalid cron expression")
	}
	if err := s.Register("0 5 * * * *"); err != nil {
		t.Errorf("valid six-field expression rejected: %v", err)
	}
	if err := s.Register("@hourly"); err != nil {
		t.Errorf("descriptor rejected: %v", err)
	}
}

func TestRunNow_NotifiesAndPushes(t *testing.T) {
	var mu sync.Mutex
	var sent []string
	var pushed bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if strings.HasPrefix(r.URL.Path, "/metrics/job/") {
			pushed = true
			return
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		sent = append(sent, body["text"])
	}))
	defer srv.Close()

	s := newTestScheduler(t)
	tn := notifier.NewTelegramNotifier("T", "1", "", zerolog.Nop())
	tn.APIBase = srv.URL
	s.Notifier = tn
	s.Metrics = metrics.New()
	s.Runner.WithMetrics(s.Metrics)
	s.PushURL, s.PushJob = srv.URL, "pricecast"

	sum, err := s.RunNow(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Forecast != 1 || len(sum.Skipped) != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 1 || !strings.Contains(sent[0], "Holt-Winters") {
		t.Errorf("unexpected notifications %q", sent)
	}
	if !pushed {
		t.Error("metrics were not pushed")
	}
}

func TestHandleCommand(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	if got := s.HandleCommand(ctx, "/status"); !strings.Contains(got, "No forecast run") {
		t.Errorf("status before any run: %q", got)
	}
	if got := s.HandleCommand(ctx, "/forecast"); got != "" {
		t.Errorf("forecast command reply %q", got)
	}
	if got := s.HandleCommand(ctx, "/status"); !strings.Contains(got, "1 / 2 symbols") {
		t.Errorf("status after run: %q", got)
	}
	if got := s.HandleCommand(ctx, "/forecasts"); !strings.Contains(got, "not available") {
		t.Errorf("forecasts without reader: %q", got)
	}

	s.Forecasts = memForecasts{"BTC": {{T: 1, P: 100}, {T: 2, P: 100}}}
	if got := s.HandleCommand(ctx, "/forecasts"); !strings.Contains(got, "BTC: 100.0000") {
		t.Errorf("forecasts reply %q", got)
	}
	if got := s.HandleCommand(ctx, "hello"); !strings.Contains(got, "/forecast") {
		t.Errorf("help reply %q", got)
	}
}
