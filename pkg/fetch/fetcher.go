// Package fetch issues single logical requests through a pluggable
// transport while honouring a minimum delay between request starts and a
// per-fetch timeout. Failures come back as *model.FetchError values; the
// fetcher itself never retries.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/flowzz-client/pkg/logging"
	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/Sternrassler/flowzz-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for fetch operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowzz_requests_total",
		Help: "Total flowzz fetches by operation and result",
	}, []string{"op", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowzz_request_duration_seconds",
		Help:    "Fetch duration in seconds by operation",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"op"})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowzz_fetch_errors_total",
		Help: "Total failed fetches by operation and error kind",
	}, []string{"op", "kind"})
)

// Transport performs the three remote operations. It owns the wire format
// and must map every payload into model types, wrapping shape mismatches
// in model.ErrDecode.
type Transport interface {
	// ListPage fetches one page of a listing endpoint (pages start at 1).
	ListPage(ctx context.Context, endpoint string, page, pageSize int) (model.Page, error)

	// FetchDetail fetches the detail record at a resolved detail URL.
	FetchDetail(ctx context.Context, endpoint string) (model.Detail, error)

	// FetchVendorOffers fetches every offer for one item, unfiltered.
	FetchVendorOffers(ctx context.Context, id model.ItemID) ([]model.RawOffer, error)
}

// Config holds fetcher configuration.
type Config struct {
	// Delay is the minimum time between the starts of two fetches.
	Delay time.Duration

	// Timeout bounds each individual fetch.
	Timeout time.Duration

	// Gate overrides the in-process limiter built from Delay, e.g. with a
	// ratelimit.RedisGate shared between processes.
	Gate ratelimit.Gate
}

// DefaultConfig returns a polite default configuration.
func DefaultConfig() Config {
	return Config{
		Delay:   500 * time.Millisecond,
		Timeout: 30 * time.Second,
	}
}

// Fetcher is the rate-limited entry point for every remote call. One
// Fetcher may be shared by concurrent workers; their starts are spaced by
// the same gate.
type Fetcher struct {
	transport Transport
	gate      ratelimit.Gate
	timeout   time.Duration
	calls     atomic.Int64
	logger    zerolog.Logger
}

// New creates a fetcher around a transport.
func New(transport Transport, cfg Config) (*Fetcher, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	logger := logging.NewLogger("fetcher")

	gate := cfg.Gate
	if gate == nil {
		limiter, err := ratelimit.NewLimiter(cfg.Delay, logger)
		if err != nil {
			return nil, err
		}
		gate = limiter
	}

	return &Fetcher{
		transport: transport,
		gate:      gate,
		timeout:   cfg.Timeout,
		logger:    logger,
	}, nil
}

// ListPage fetches one listing page.
func (f *Fetcher) ListPage(ctx context.Context, endpoint string, page, pageSize int) (model.Page, error) {
	req := model.Request{Op: model.OpListPage, Endpoint: endpoint, Page: page}

	var result model.Page
	err := f.do(ctx, req, func(ctx context.Context) error {
		var err error
		result, err = f.transport.ListPage(ctx, endpoint, page, pageSize)
		return err
	})
	return result, err
}

// Detail fetches the detail record of one item of the given source.
func (f *Fetcher) Detail(ctx context.Context, source model.Source, slug string) (model.Detail, error) {
	endpoint := source.DetailEndpoint(slug)
	req := model.Request{Op: model.OpDetail, Endpoint: endpoint, Key: slug}

	var result model.Detail
	err := f.do(ctx, req, func(ctx context.Context) error {
		var err error
		result, err = f.transport.FetchDetail(ctx, endpoint)
		return err
	})
	return result, err
}

// VendorOffers fetches the raw offers of one item.
func (f *Fetcher) VendorOffers(ctx context.Context, id model.ItemID) ([]model.RawOffer, error) {
	req := model.Request{Op: model.OpVendorOffers, Key: strconv.FormatInt(int64(id), 10)}

	var result []model.RawOffer
	err := f.do(ctx, req, func(ctx context.Context) error {
		var err error
		result, err = f.transport.FetchVendorOffers(ctx, id)
		return err
	})
	return result, err
}

// Calls returns how many fetches were actually issued.
func (f *Fetcher) Calls() int64 {
	return f.calls.Load()
}

// do waits for a slot, then runs one fetch. Cancellation is only observed
// while waiting; a started fetch runs to completion or to its timeout.
func (f *Fetcher) do(ctx context.Context, req model.Request, call func(context.Context) error) error {
	op := string(req.Op)

	if err := f.gate.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s: %w", model.ErrCancelled, req, ctx.Err())
		}
		fetchErrorsTotal.WithLabelValues(op, "gate").Inc()
		return &model.FetchError{Request: req, Kind: model.ErrTransport, Err: err}
	}

	f.calls.Add(1)
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()

	start := time.Now()
	err := call(fetchCtx)
	duration := time.Since(start)
	requestDuration.WithLabelValues(op).Observe(duration.Seconds())

	if err != nil {
		kind := model.ErrTransport
		if errors.Is(err, model.ErrDecode) {
			kind = model.ErrDecode
		}
		fetchErr := &model.FetchError{Request: req, Kind: kind, Err: err}

		requestsTotal.WithLabelValues(op, "error").Inc()
		fetchErrorsTotal.WithLabelValues(op, model.KindLabel(kind)).Inc()
		f.logger.Warn().
			Err(err).
			Str("request", req.String()).
			Str("kind", model.KindLabel(kind)).
			Dur("duration", duration).
			Msg("Fetch failed")
		return fetchErr
	}

	requestsTotal.WithLabelValues(op, "ok").Inc()
	f.logger.Debug().
		Str("request", req.String()).
		Dur("duration", duration).
		Msg("Fetch complete")
	return nil
}
