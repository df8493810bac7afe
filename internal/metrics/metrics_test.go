package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

func TestRecorder_Counts(t *testing.T) {
	r := New()

	r.ObserveFetch(market.Binance, "ok", 120*time.Millisecond)
	r.ObserveFetch(market.Binance, "ok", 80*time.Millisecond)
	r.ObserveFetch(market.Kraken, "status", time.Second)
	r.ObserveRateFallback()
	r.ReportSent(true)
	r.ReportSent(false)
	r.ReportSent(false)

	if got := testutil.ToFloat64(r.fetches.WithLabelValues("binance", "ok")); got != 2 {
		t.Errorf("binance ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.fetches.WithLabelValues("kraken", "status")); got != 1 {
		t.Errorf("kraken status = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.rateFallbacks); got != 1 {
		t.Errorf("fallbacks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.reports.WithLabelValues("failed")); got != 2 {
		t.Errorf("failed reports = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(r.fetchLatency); got != 2 {
		t.Errorf("latency series = %d, want 2", got)
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.ObserveFetch(market.OKX, "ok", time.Millisecond)
	r.ObserveRateFallback()
	r.ObserveRound(time.Second, 3)
	r.ReportSent(true)
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.ObserveRound(300*time.Millisecond, 4)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "crypto_spread_bot_aggregation_round_seconds_count 1") {
		t.Errorf("round histogram missing from exposition:\n%s", body)
	}
}
