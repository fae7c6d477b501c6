// Package client is the HTTP transport for flowzz. It requests listing,
// detail and vendor endpoints with resty, optionally revalidates responses
// through the Redis cache, and maps every payload into model types.
//
// The client does not pace or retry requests itself; pkg/fetch does that
// for every caller.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/flowzz-client/pkg/cache"
	"github.com/Sternrassler/flowzz-client/pkg/logging"
	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for flowzz HTTP traffic.
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowzz_http_requests_total",
		Help: "Total flowzz HTTP requests by operation and status",
	}, []string{"op", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowzz_http_request_duration_seconds",
		Help:    "flowzz HTTP round-trip duration in seconds by operation",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"op"})

	httpErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowzz_http_errors_total",
		Help: "Total flowzz HTTP errors by class",
	}, []string{"class"})
)

// Config holds the client configuration.
type Config struct {
	// VendorURL is the vendor endpoint template; {id} is replaced by the
	// item id.
	VendorURL string

	// UserAgent is sent with every request.
	UserAgent string

	// Timeout bounds one HTTP round trip.
	Timeout time.Duration

	// Redis enables the response cache when set.
	Redis *redis.Client

	// CacheTTL is how long a cached response is served without asking
	// flowzz again. Zero disables storing responses.
	CacheTTL time.Duration

	// StaleWindow keeps expired entries with validators for conditional
	// requests.
	StaleWindow time.Duration
}

// DefaultConfig returns the configuration for the public flowzz site.
func DefaultConfig(userAgent string) Config {
	return Config{
		VendorURL:   model.DefaultVendorURL,
		UserAgent:   userAgent,
		Timeout:     30 * time.Second,
		CacheTTL:    10 * time.Minute,
		StaleWindow: cache.DefaultStaleWindow,
	}
}

// Client is the flowzz HTTP transport. It implements fetch.Transport.
type Client struct {
	http   *resty.Client
	cache  *cache.Manager
	config Config
	logger zerolog.Logger
}

// New creates a flowzz client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if !strings.Contains(cfg.VendorURL, "{id}") {
		return nil, fmt.Errorf("vendor url must contain {id} (got %q)", cfg.VendorURL)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if cfg.CacheTTL < 0 {
		return nil, fmt.Errorf("cache ttl must be >= 0 (got %s)", cfg.CacheTTL)
	}

	logger := logging.NewLogger("flowzz-client")

	httpClient := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent).
		SetHeader("Accept", "application/json, text/html;q=0.9").
		SetLogger(restyLogger{logger: logger})

	httpClient.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		logger.Debug().
			Str("url", res.Request.URL).
			Int("status", res.StatusCode()).
			Dur("duration", res.Time()).
			Int("bytes", len(res.Body())).
			Msg("flowzz response")
		return nil
	})

	c := &Client{
		http:   httpClient,
		config: cfg,
		logger: logger,
	}
	if cfg.Redis != nil {
		c.cache = cache.NewManager(cfg.Redis).WithStaleWindow(cfg.StaleWindow)
	}
	return c, nil
}

// ListPage fetches one page of a listing endpoint.
func (c *Client) ListPage(ctx context.Context, endpoint string, page, pageSize int) (model.Page, error) {
	query := url.Values{}
	query.Set("pagination[page]", strconv.Itoa(page))
	query.Set("pagination[pageSize]", strconv.Itoa(pageSize))

	body, _, err := c.get(ctx, model.OpListPage, endpoint, query)
	if err != nil {
		return model.Page{}, err
	}
	return DecodeListPage(body)
}

// FetchDetail fetches a detail record. JSON records are decoded as product
// details; HTML pages as strain pages.
func (c *Client) FetchDetail(ctx context.Context, endpoint string) (model.Detail, error) {
	body, contentType, err := c.get(ctx, model.OpDetail, endpoint, nil)
	if err != nil {
		return model.Detail{}, err
	}
	if isHTML(contentType, body) {
		return DecodeStrainPage(body)
	}
	return DecodeProductDetail(body)
}

// FetchVendorOffers fetches every vendor offer for one item.
func (c *Client) FetchVendorOffers(ctx context.Context, id model.ItemID) ([]model.RawOffer, error) {
	endpoint := strings.ReplaceAll(c.config.VendorURL, "{id}", strconv.FormatInt(int64(id), 10))

	body, _, err := c.get(ctx, model.OpVendorOffers, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return DecodeVendorOffers(body)
}

// get performs one GET. A fresh cache entry is returned without a request;
// a stale one with validators turns the request into a conditional one.
func (c *Client) get(ctx context.Context, op model.Op, endpoint string, query url.Values) ([]byte, string, error) {
	key := cache.Key{Op: string(op), URL: endpoint, Query: query}

	var cached *cache.Entry
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, key)
		switch {
		case err == nil && !entry.IsExpired():
			return entry.Data, entry.ContentType, nil
		case err == nil:
			cached = entry
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache get error")
		}
	}

	req := c.http.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	for name, value := range cache.ConditionalHeaders(cached) {
		req.SetHeader(name, value)
	}

	start := time.Now()
	res, err := req.Get(endpoint)
	httpRequestDuration.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())

	if err != nil {
		httpRequestsTotal.WithLabelValues(string(op), "network_error").Inc()
		httpErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, "", &HTTPError{URL: endpoint, Class: ErrorClassNetwork, Err: err}
	}
	httpRequestsTotal.WithLabelValues(string(op), strconv.Itoa(res.StatusCode())).Inc()

	if res.StatusCode() == http.StatusNotModified && cached != nil {
		if fresh := cache.NewEntry(http.StatusOK, res.Header(), cached.Data, c.config.CacheTTL); fresh != nil {
			if err := c.cache.Refresh(ctx, key, cached, fresh.Expires); err != nil {
				c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache refresh error")
			}
		}
		c.logger.Debug().Str("url", endpoint).Msg("Not modified, reusing cached body")
		return cached.Data, cached.ContentType, nil
	}

	if res.StatusCode() < 200 || res.StatusCode() >= 300 {
		class := classifyStatus(res.StatusCode())
		httpErrorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("url", endpoint).
			Int("status", res.StatusCode()).
			Str("class", string(class)).
			Msg("flowzz request failed")
		return nil, "", &HTTPError{
			URL:        endpoint,
			StatusCode: res.StatusCode(),
			Status:     res.Status(),
			Class:      class,
		}
	}

	body := res.Body()
	contentType := res.Header().Get("Content-Type")

	if c.cache != nil {
		if entry := cache.NewEntry(res.StatusCode(), res.Header(), body, c.config.CacheTTL); entry != nil {
			if err := c.cache.Set(ctx, key, entry); err != nil {
				c.logger.Warn().Err(err).Str("key", key.String()).Msg("Cache set error")
			}
		}
	}

	return body, contentType, nil
}

func isHTML(contentType string, body []byte) bool {
	if contentType != "" {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return bytes.HasPrefix(bytes.TrimSpace(body), []byte("<"))
}

// restyLogger routes resty's own messages into zerolog.
type restyLogger struct {
	logger zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error().Msgf(strings.TrimSpace(format), v...)
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn().Msgf(strings.TrimSpace(format), v...)
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(strings.TrimSpace(format), v...)
}
