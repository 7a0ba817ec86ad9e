// Package telemetry defines Prometheus metrics and an optional scrape endpoint.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// PagesTotal counts listing pages traversed by the harvest loop.
	PagesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_pages_total",
			Help: "Total number of catalog pages traversed.",
		},
	)

	// ItemsTotal counts per-item outcomes.
	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_items_total",
			Help: "Total number of items handled, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	// FetchAttempts counts individual HTTP attempts, including retries.
	FetchAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_fetch_attempts_total",
			Help: "Total number of HTTP fetch attempts.",
		},
	)

	// FetchRetries counts retry sleeps taken after failed attempts.
	FetchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_fetch_retries_total",
			Help: "Total number of fetch retries after transient failures.",
		},
	)

	// FetchDuration observes per-attempt latency.
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_fetch_duration_seconds",
			Help:    "Histogram of HTTP fetch attempt latencies.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)
)

// Outcome labels for ItemsTotal.
const (
	OutcomeScraped     = "scraped"
	OutcomeSkipped     = "skipped"
	OutcomeFetchFail   = "fetch_failed"
	OutcomeExtractFail = "extract_failed"
	OutcomeSinkFail    = "sink_failed"
)

// Serve exposes /metrics and /healthz on addr until ctx is canceled. It
// blocks; callers run it in a goroutine. An empty addr disables serving.
func Serve(ctx context.Context, addr string, logger *zap.Logger) {
	if addr == "" {
		return
	}
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server failed", zap.Error(err))
	}
}
