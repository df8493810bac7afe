package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Armin-kho/crypto-spread-bot/internal/market"
)

const namespace = "crypto_spread_bot"

// Recorder owns the bot's collectors. A nil *Recorder ignores every call.
type Recorder struct {
	reg *prometheus.Registry

	fetches       *prometheus.CounterVec
	fetchLatency  *prometheus.HistogramVec
	rateFallbacks prometheus.Counter
	rounds        prometheus.Histogram
	reports       *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchange_fetches_total",
			Help:      "Ticker requests by exchange and outcome.",
		}, []string{"exchange", "outcome"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_fetch_seconds",
			Help:      "Ticker request latency by exchange.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 4, 8},
		}, []string{"exchange"}),
		rateFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usdt_rate_fallbacks_total",
			Help:      "Times the USDT/USD rate was unavailable and 1.0 was used.",
		}),
		rounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_round_seconds",
			Help:      "Wall time of one multi-token aggregation round.",
			Buckets:   []float64{.1, .25, .5, 1, 2, 4, 8, 16},
		}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Reports sent to chats by result.",
		}, []string{"result"}),
	}
	r.reg.MustRegister(
		r.fetches, r.fetchLatency, r.rateFallbacks, r.rounds, r.reports,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) ObserveFetch(ex market.Exchange, outcome string, took time.Duration) {
	if r == nil {
		return
	}
	r.fetches.WithLabelValues(string(ex), outcome).Inc()
	r.fetchLatency.WithLabelValues(string(ex)).Observe(took.Seconds())
}

func (r *Recorder) ObserveRateFallback() {
	if r == nil {
		return
	}
	r.rateFallbacks.Inc()
}

func (r *Recorder) ObserveRound(took time.Duration, _ int) {
	if r == nil {
		return
	}
	r.rounds.Observe(took.Seconds())
}

// ReportSent counts one delivery attempt.
func (r *Recorder) ReportSent(ok bool) {
	if r == nil {
		return
	}
	result := "delivered"
	if !ok {
		result = "failed"
	}
	r.reports.WithLabelValues(result).Inc()
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (r *Recorder) Serve(ctx context.Context, addr string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
