package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/flowzz-client/internal/testutil"
	"github.com/Sternrassler/flowzz-client/pkg/fetch"
	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserAgent = "flowzz-client-test/1.0 (test@example.com)"

// The client must satisfy the fetcher's transport contract.
var _ fetch.Transport = (*Client)(nil)

// setupTestRedis connects to a local Redis on DB 15 and skips the test
// when none is running.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func newTestClient(t *testing.T, mock *testutil.MockFlowzz, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig(testUserAgent)
	cfg.VendorURL = mock.VendorURL()
	cfg.Timeout = 5 * time.Second
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default config", func(*Config) {}, false},
		{"missing user agent", func(c *Config) { c.UserAgent = "" }, true},
		{"vendor url without id", func(c *Config) { c.VendorURL = "https://flowzz.com/api/vendor" }, true},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, true},
		{"negative cache ttl", func(c *Config) { c.CacheTTL = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig(testUserAgent)
			tt.mutate(&cfg)
			_, err := New(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(testUserAgent)
	assert.Equal(t, model.DefaultVendorURL, cfg.VendorURL)
	assert.Equal(t, testUserAgent, cfg.UserAgent)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Nil(t, cfg.Redis)
}

func TestListPage_Products(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(5)...)
	defer mock.Close()
	c := newTestClient(t, mock)

	page, err := c.ListPage(context.Background(), mock.Sources()[model.SourceProducts].ListURL, 2, 2)
	require.NoError(t, err)

	assert.Equal(t, 3, page.PageCount)
	require.Len(t, page.Items, 2)
	assert.Equal(t, model.ItemID(3), page.Items[0].ID)
	assert.Equal(t, "strain-4", page.Items[1].Slug)
	assert.NotNil(t, page.Items[0].MinPrice)
	assert.Equal(t, testUserAgent, mock.LastHeader().Get("User-Agent"))
}

func TestListPage_Strains(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(3)...)
	defer mock.Close()
	c := newTestClient(t, mock)

	page, err := c.ListPage(context.Background(), mock.Sources()[model.SourceStrains].ListURL, 1, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, page.PageCount)
	require.Len(t, page.Items, 3)
	assert.Equal(t, "Strain 01", page.Items[0].Name)
	assert.Nil(t, page.Items[0].RatingScore)
}

func TestFetchDetail_ProductJSON(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(2)...)
	defer mock.Close()
	c := newTestClient(t, mock)

	src := mock.Sources()[model.SourceProducts]
	d, err := c.FetchDetail(context.Background(), src.DetailEndpoint("strain-2"))
	require.NoError(t, err)

	assert.Equal(t, 10, *d.Likes)
	assert.Equal(t, "9", d.Price.String())
	assert.Equal(t, 20, *d.RatingCount)
}

func TestFetchDetail_StrainHTML(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(2)...)
	defer mock.Close()
	c := newTestClient(t, mock)

	src := mock.Sources()[model.SourceStrains]
	d, err := c.FetchDetail(context.Background(), src.DetailEndpoint("strain-1"))
	require.NoError(t, err)

	assert.Equal(t, 5, *d.Likes)
	assert.InDelta(t, 3.5, *d.RatingScore, 1e-9)
	assert.Equal(t, 10, *d.RatingCount)
}

func TestFetchVendorOffers(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(2)...)
	defer mock.Close()
	c := newTestClient(t, mock)

	offers, err := c.FetchVendorOffers(context.Background(), 2)
	require.NoError(t, err)

	require.Len(t, offers, 3)
	assert.Equal(t, "Apotheke Nord", offers[0].VendorName)
	assert.Equal(t, "9", offers[0].Price.String())
	assert.Equal(t, "10.5", offers[1].Price.String())
	assert.Equal(t, 0, offers[2].AvailabilityCode)

	none, err := c.FetchVendorOffers(context.Background(), 99)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStatusErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		resp          testutil.MockResponse
		wantClass     ErrorClass
		wantTemporary bool
	}{
		{"server error", testutil.NewServerErrorResponse(), ErrorClassServer, true},
		{"rate limited", testutil.NewRateLimitResponse(), ErrorClassRateLimit, true},
		{"not found", testutil.MockResponse{StatusCode: http.StatusNotFound}, ErrorClassClient, false},
		{"forbidden", testutil.MockResponse{StatusCode: http.StatusForbidden}, ErrorClassClient, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockFlowzz()
			defer mock.Close()
			mock.SetResponse("/api/vendor", tt.resp)
			c := newTestClient(t, mock)

			_, err := c.FetchVendorOffers(context.Background(), 1)
			require.Error(t, err)

			var httpErr *HTTPError
			require.True(t, errors.As(err, &httpErr))
			assert.Equal(t, tt.wantClass, httpErr.Class)
			assert.Equal(t, tt.resp.StatusCode, httpErr.StatusCode)
			assert.Equal(t, tt.wantTemporary, fetch.Retryable(err))
			assert.ErrorIs(t, err, ErrUnexpectedStatus)
		})
	}
}

func TestNetworkError(t *testing.T) {
	mock := testutil.NewMockFlowzz()
	c := newTestClient(t, mock)
	endpoint := mock.Sources()[model.SourceProducts].ListURL
	mock.Close()

	_, err := c.ListPage(context.Background(), endpoint, 1, 10)
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, ErrorClassNetwork, httpErr.Class)
	assert.True(t, fetch.Retryable(err))
}

func TestMalformedPayloadIsDecodeError(t *testing.T) {
	mock := testutil.NewMockFlowzz()
	defer mock.Close()
	mock.SetResponse("/api/v1/views/flowers", testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"data":"maintenance"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	})
	c := newTestClient(t, mock)

	_, err := c.ListPage(context.Background(), mock.Sources()[model.SourceProducts].ListURL, 1, 10)
	assert.ErrorIs(t, err, model.ErrDecode)
	assert.False(t, fetch.Retryable(err))
}

func TestContextCancelled(t *testing.T) {
	mock := testutil.NewMockFlowzz()
	defer mock.Close()
	mock.SetResponse("/api/vendor", testutil.MockResponse{StatusCode: http.StatusOK, Delay: time.Second})
	c := newTestClient(t, mock)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.FetchVendorOffers(ctx, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCache_FreshHitSkipsRequest(t *testing.T) {
	redisClient := setupTestRedis(t)
	mock := testutil.NewMockFlowzz(testutil.MockItems(1)...)
	defer mock.Close()
	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.Redis = redisClient
		cfg.CacheTTL = time.Minute
	})

	for i := 0; i < 3; i++ {
		offers, err := c.FetchVendorOffers(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, offers, 3)
	}
	assert.Equal(t, 1, mock.RequestCount())
}

func TestCache_StaleEntryRevalidates(t *testing.T) {
	redisClient := setupTestRedis(t)
	mock := testutil.NewMockFlowzz(testutil.MockItems(1)...)
	mock.ETags = true
	defer mock.Close()
	c := newTestClient(t, mock, func(cfg *Config) {
		cfg.Redis = redisClient
		cfg.CacheTTL = 10 * time.Millisecond
	})

	src := mock.Sources()[model.SourceProducts]
	first, err := c.FetchDetail(context.Background(), src.DetailEndpoint("strain-1"))
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	second, err := c.FetchDetail(context.Background(), src.DetailEndpoint("strain-1"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, mock.RequestCount())
	assert.Equal(t, 1, mock.ConditionalCount())
}
