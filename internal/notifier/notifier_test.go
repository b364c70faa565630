package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"PriceCast/internal/model"
)

func testNotifier(srv *httptest.Server) *TelegramNotifier {
	n := NewTelegramNotifier("TOKEN", "42", "", zerolog.Nop())
	n.APIBase = srv.URL
	return n
}

func TestSend(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := testNotifier(srv).Send(context.Background(), "<b>hi</b>"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("unexpected path %q", path)
	}
	if got["chat_id"] != "42" || got["parse_mode"] != "HTML" || got["text"] != "<b>hi</b>" {
		t.Errorf("unexpected payload %v", got)
	}
}

func TestSendWithRetry_GivesUp(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := testNotifier(srv).SendWithRetry(context.Background(), "x", 0)
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected 401 error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestSendWithRetry_StopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "flood", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := testNotifier(srv).SendWithRetry(ctx, "x", 3); err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded during backoff, got %v", err)
	}
}

func TestStartPolling_HandlesOwnChatOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getUpdates") {
			w.Write([]byte(`{"ok":true,"result":[
				{"update_id":1,"message":{"text":"/forecast","chat":{"id":7}}},
				{"update_id":2,"message":{"text":" /status ","chat":{"id":42}}}
			]}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var commands []string
	done := make(chan struct{})
	go func() {
		testNotifier(srv).StartPolling(ctx, func(_ context.Context, cmd string) string {
			mu.Lock()
			commands = append(commands, cmd)
			mu.Unlock()
			cancel()
			return ""
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("polling did not stop after cancel")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(commands) != 1 || commands[0] != "/status" {
		t.Errorf("unexpected commands %v", commands)
	}
}

func TestFormatRunSummary(t *testing.T) {
	start := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	msg := FormatRunSummary(&model.RunSummary{
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Primary:    model.FamilyLogistic,
		Symbols:    9,
		Forecast:   8,
		Skipped:    []string{"USDT"},
		Fallbacks:  []string{"BTC"},
	})
	for _, want := range []string{"2024-06-01 10:00", "Logistic-Seasonal", "8 / 9", "Fallback: BTC", "Skipped: USDT", "1.5s"} {
		if !strings.Contains(msg, want) {
			t.Errorf("summary missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "Failed") {
		t.Errorf("no failures expected:\n%s", msg)
	}
}

func TestListSymbols_Truncates(t *testing.T) {
	syms := make([]string, 13)
	for i := range syms {
		syms[i] = "S"
	}
	if got := listSymbols(syms); !strings.HasSuffix(got, "+3 more") {
		t.Errorf("unexpected list %q", got)
	}
}

func TestFormatForecasts(t *testing.T) {
	fc := map[string][]model.ForecastPoint{
		"BTC": {{T: 1, P: 100}, {T: 2, P: 110}},
	}
	msg := FormatForecasts(fc, []string{"BTC", "ETH"})
	if !strings.Contains(msg, "BTC: 100.0000 → 110.0000 (+10.00%)") {
		t.Errorf("unexpected message:\n%s", msg)
	}
	if strings.Contains(msg, "ETH") {
		t.Errorf("symbols without rows must be omitted:\n%s", msg)
	}
	if FormatForecasts(nil, nil) != "No forecasts stored." {
		t.Error("unexpected empty rendering")
	}
}
