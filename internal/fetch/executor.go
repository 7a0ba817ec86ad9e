// Package fetch implements the retrying, concurrency-bounded page fetcher.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/time/rate"

	"github.com/akhundov/arenda-harvester/internal/harvest"
	"github.com/akhundov/arenda-harvester/internal/telemetry"
)

// ErrNotFound marks a 404 response. The resource does not exist; retrying is
// wasted work, so the executor gives up after a single attempt.
var ErrNotFound = errors.New("resource not found")

// Config holds fetch behavior knobs.
type Config struct {
	UserAgent         string
	Timeout           time.Duration
	MaxRetries        int
	BaseDelay         time.Duration
	Concurrency       int
	RequestsPerSecond float64
}

// Executor fetches URLs through a shared HTTP client. An admission gate
// bounds in-flight requests process-wide; excess callers block until a slot
// frees. Each fetch retries transient failures with exponential backoff.
type Executor struct {
	client  *http.Client
	gate    *semaphore.Weighted
	limiter *rate.Limiter
	cfg     Config
	logger  *zap.Logger
}

// NewExecutor builds an Executor with a tuned transport.
func NewExecutor(cfg Config, logger *zap.Logger) *Executor {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			MaxConnsPerHost:     cfg.Concurrency * 2,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
	return &Executor{
		client:  client,
		gate:    semaphore.NewWeighted(int64(cfg.Concurrency)),
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
	}
}

// Close releases idle transport connections.
func (e *Executor) Close() {
	e.client.CloseIdleConnections()
}

// Fetch retrieves url, retrying transient failures up to MaxRetries attempts
// with BaseDelay * 2^attempt sleeps between them. A 404 is terminal. Body
// decoding never fails: the primary UTF-8 path falls back to windows-1254
// and then to a permissive decode that drops invalid sequences.
func (e *Executor) Fetch(ctx context.Context, url string) (*harvest.Document, error) {
	var lastErr error
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		telemetry.FetchAttempts.Inc()
		start := time.Now()
		body, status, err := e.attempt(ctx, url)
		telemetry.FetchDuration.Observe(time.Since(start).Seconds())

		switch {
		case err == nil && status >= 200 && status < 300:
			return &harvest.Document{URL: url, Body: decodeBody(body)}, nil
		case err == nil && status == http.StatusNotFound:
			e.logger.Warn("Page not found", zap.String("url", url))
			return nil, fmt.Errorf("fetch %s: %w", url, ErrNotFound)
		case err == nil:
			lastErr = fmt.Errorf("unexpected status %d", status)
			e.logger.Warn("Unexpected HTTP status",
				zap.String("url", url), zap.Int("status", status),
				zap.Int("attempt", attempt+1), zap.Int("max", e.cfg.MaxRetries))
		case errors.Is(err, context.Canceled):
			return nil, err
		default:
			lastErr = err
			e.logger.Warn("Fetch attempt failed",
				zap.String("url", url), zap.Error(err),
				zap.Int("attempt", attempt+1), zap.Int("max", e.cfg.MaxRetries))
		}

		if attempt < e.cfg.MaxRetries-1 {
			telemetry.FetchRetries.Inc()
			if err := pause(ctx, e.cfg.BaseDelay<<attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("fetch %s after %d attempts: %w", url, e.cfg.MaxRetries, lastErr)
}

// attempt performs one HTTP round trip under the admission gate. The gate is
// held only for the request and body read, never across backoff sleeps.
func (e *Executor) attempt(ctx context.Context, url string) ([]byte, int, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if err := e.gate.Acquire(ctx, 1); err != nil {
		return nil, 0, fmt.Errorf("acquire fetch slot: %w", err)
	}
	defer e.gate.Release(1)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "az,en-US;q=0.9,en;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}

// decodeBody converts raw bytes to a string without ever failing. UTF-8 is
// the primary encoding, windows-1254 the declared legacy fallback for older
// catalog pages, and the last resort drops undecodable sequences.
func decodeBody(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	if out, err := charmap.Windows1254.NewDecoder().Bytes(raw); err == nil && utf8.Valid(out) {
		return string(out)
	}
	return strings.ToValidUTF8(string(raw), "")
}

func pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
