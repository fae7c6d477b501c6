// Package metrics exposes the Prometheus metrics of flowzz-client.
// Metrics are defined next to the code that records them (fetch, client,
// cache, pagination, enrich, match, ratelimit) and registered through
// promauto; this package serves them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Registry is the registerer every flowzz metric is registered with.
var Registry = prometheus.DefaultRegisterer

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve runs a metrics-only HTTP server on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Metrics Documentation
//
// Fetch Metrics (pkg/fetch):
//   - flowzz_requests_total{op, status} (Counter): Fetches by operation and result
//   - flowzz_request_duration_seconds{op} (Histogram): Fetch duration
//   - flowzz_fetch_errors_total{op, kind} (Counter): Failed fetches by error kind
//   - flowzz_retries_total{op} (Counter): Retry attempts
//   - flowzz_retry_backoff_seconds{op} (Histogram): Backoff before a retry
//   - flowzz_retry_exhausted_total{op} (Counter): Fetches that used every attempt
//
// Rate Limit Metrics (pkg/ratelimit):
//   - flowzz_rate_limit_wait_seconds{gate} (Histogram): Time spent waiting for a request slot
//   - flowzz_rate_limit_errors_total{gate} (Counter): Gate failures
//
// HTTP Metrics (pkg/client):
//   - flowzz_http_requests_total{op, status} (Counter): Round trips by HTTP status
//   - flowzz_http_request_duration_seconds{op} (Histogram): Round-trip duration
//   - flowzz_http_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Cache Metrics (pkg/cache):
//   - flowzz_cache_hits_total{state} (Counter): Fresh hits and 304 revalidations
//   - flowzz_cache_misses_total (Counter): Cache misses
//   - flowzz_cache_entry_bytes (Histogram): Stored entry size
//   - flowzz_cache_errors_total{operation} (Counter): Cache operation errors
//
// Cycle Metrics (pkg/pagination, pkg/enrich, pkg/match):
//   - flowzz_pages_fetched_total{result} (Counter): Listing pages by result
//   - flowzz_records_enriched_total{result} (Counter): Records by enrichment result
//   - flowzz_match_requests_total{outcome} (Counter): Vendor comparisons by outcome
//   - flowzz_match_rows (Histogram): Rows per vendor comparison
//
// Example Prometheus Queries:
//
//	# Detail failure ratio
//	sum(rate(flowzz_records_enriched_total{result="failed"}[1h])) /
//	sum(rate(flowzz_records_enriched_total[1h]))
//
//	# P95 flowzz latency
//	histogram_quantile(0.95, rate(flowzz_http_request_duration_seconds_bucket[5m]))
//
//	# Cache effectiveness
//	sum(rate(flowzz_cache_hits_total[5m])) /
//	(sum(rate(flowzz_cache_hits_total[5m])) + sum(rate(flowzz_cache_misses_total[5m])))
