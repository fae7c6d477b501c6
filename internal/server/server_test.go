package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/flowzz-client/internal/app"
	"github.com/Sternrassler/flowzz-client/internal/config"
	"github.com/Sternrassler/flowzz-client/internal/testutil"
	"github.com/Sternrassler/flowzz-client/pkg/catalog"
	"github.com/Sternrassler/flowzz-client/pkg/match"
	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/Sternrassler/flowzz-client/pkg/rank"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingPath = "/api/v1/views/flowers"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// setupTestRouter serves a catalog engine backed by mock.
func setupTestRouter(t *testing.T, mock *testutil.MockFlowzz, mutate ...func(*Config)) (*gin.Engine, *Server) {
	t.Helper()
	t.Chdir(t.TempDir())

	cfg, err := config.Load("", nil)
	require.NoError(t, err)
	cfg.BaseURL = mock.URL()
	cfg.CMSURL = mock.URL()
	cfg.VendorURL = mock.VendorURL()
	cfg.Delay = time.Millisecond

	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	serverCfg := Config{PageSize: 2, Delay: time.Millisecond}
	for _, m := range mutate {
		m(&serverCfg)
	}
	s, err := New(context.Background(), a.Engine, serverCfg)
	require.NoError(t, err)
	return SetupRouter(NewHandler(s)), s
}

func do(router http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestHealthCheck(t *testing.T) {
	mock := testutil.NewMockFlowzz()
	defer mock.Close()
	router, _ := setupTestRouter(t, mock)

	w := do(router, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)
}

func TestReady(t *testing.T) {
	mock := testutil.NewMockFlowzz()
	defer mock.Close()

	t.Run("no ping", func(t *testing.T) {
		router, _ := setupTestRouter(t, mock)
		w := do(router, http.MethodGet, "/ready")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"catalog":false`)
	})

	t.Run("backend down", func(t *testing.T) {
		router, _ := setupTestRouter(t, mock, func(c *Config) {
			c.Ping = func(context.Context) error { return errors.New("redis down") }
		})
		w := do(router, http.MethodGet, "/ready")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), "redis down")
	})
}

func TestGetCatalog_BuildsOnceAndRanks(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(3)...)
	defer mock.Close()
	router, s := setupTestRouter(t, mock)

	w := do(router, http.MethodGet, "/catalog?rank=price&top=2")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp catalogResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, model.SourceProducts, resp.Source)
	assert.Equal(t, model.OutcomeComplete, resp.Outcome)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, rank.Asc, resp.Order)
	require.Len(t, resp.Records, 2)
	assert.Equal(t, "Strain 01", resp.Records[0].Name)
	assert.Equal(t, "Strain 02", resp.Records[1].Name)
	assert.Empty(t, resp.Diagnostics)

	listings := mock.PathCount(listingPath)
	require.NotNil(t, s.Current())

	w = do(router, http.MethodGet, "/catalog")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, listings, mock.PathCount(listingPath), "stored catalog must be reused")
}

func TestGetCatalog_InvalidQuery(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(1)...)
	defer mock.Close()
	router, _ := setupTestRouter(t, mock)

	for _, target := range []string{
		"/catalog?rank=smell", "/catalog?order=up", "/catalog?top=-2", "/catalog?top=x",
		"/catalog?min_thc=strong", "/catalog?min_price=12&max_price=9",
	} {
		w := do(router, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
	assert.Zero(t, mock.RequestCount())
}

func TestGetCatalog_Filtered(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(4)...)
	defer mock.Close()
	router, _ := setupTestRouter(t, mock)

	w := do(router, http.MethodGet, "/catalog?rank=price&min_price=9&max_thc=20&name=STRAIN")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp catalogResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Total)
	assert.Equal(t, 2, resp.Matched)
	require.Len(t, resp.Records, 2)
	assert.Equal(t, "Strain 02", resp.Records[0].Name)
	assert.Equal(t, "Strain 03", resp.Records[1].Name)
}

func TestRefreshCatalog(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(2)...)
	defer mock.Close()
	router, s := setupTestRouter(t, mock)

	w := do(router, http.MethodPost, "/catalog/refresh")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"records":2`)
	first := s.Current()

	mock.SetItems(testutil.MockItems(4)...)
	w = do(router, http.MethodPost, "/catalog/refresh")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"records":4`)
	assert.NotSame(t, first, s.Current())
}

func TestGetVendors(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(3)...)
	defer mock.Close()
	router, _ := setupTestRouter(t, mock)

	w := do(router, http.MethodGet, "/vendors?item=strain+01&item=Strain+02")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp vendorsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []model.ItemID{1, 2}, resp.Items)
	assert.Equal(t, []string{"Strain 01", "Strain 02"}, resp.Names)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "Apotheke Nord", resp.Rows[0].Vendor)
	assert.True(t, decimal.RequireFromString("17").Equal(resp.Rows[0].Total))
	assert.Equal(t, "Bloomwell", resp.Rows[1].Vendor)
}

func TestGetVendors_ByIDSkipsCatalog(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(2)...)
	defer mock.Close()
	router, _ := setupTestRouter(t, mock)

	w := do(router, http.MethodGet, "/vendors?item=2")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"item_2"`)
	assert.Zero(t, mock.PathCount(listingPath))
}

func TestGetVendors_Errors(t *testing.T) {
	mock := testutil.NewMockFlowzz(testutil.MockItems(3)...)
	defer mock.Close()
	router, _ := setupTestRouter(t, mock)

	tests := []struct {
		target string
		status int
		body   string
	}{
		{"/vendors", http.StatusBadRequest, "1 to 3"},
		{"/vendors?item=1&item=2&item=3&item=4", http.StatusBadRequest, "1 to 3"},
		{"/vendors?item=Strain+0", http.StatusNotFound, `"suggestions"`},
	}
	for _, tt := range tests {
		w := do(router, http.MethodGet, tt.target)
		assert.Equal(t, tt.status, w.Code, tt.target)
		assert.Contains(t, w.Body.String(), tt.body, tt.target)
	}
}

func TestMetricsRoute(t *testing.T) {
	mock := testutil.NewMockFlowzz()
	defer mock.Close()
	router, _ := setupTestRouter(t, mock)

	do(router, http.MethodGet, "/health")
	w := do(router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "flowzz_server_requests_total"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrInvalidRequest, http.StatusBadRequest},
		{&catalog.NotFoundError{Name: "x"}, http.StatusNotFound},
		{&catalog.AmbiguousNameError{Name: "x", IDs: []model.ItemID{1, 2}}, http.StatusConflict},
		{model.ErrCancelled, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

// blockingEngine counts builds and holds each one until release closes.
type blockingEngine struct {
	builds    atomic.Int32
	release   chan struct{}
	cancelled bool
}

func (e *blockingEngine) BuildCatalog(ctx context.Context, pageSize int, delay time.Duration) (catalog.CatalogResult, error) {
	e.builds.Add(1)
	<-e.release
	return catalog.CatalogResult{Source: "fake", Cancelled: e.cancelled}, nil
}

func (e *blockingEngine) Rank(records []model.EnrichedRecord, key rank.Key, dir rank.Direction) (rank.Result, error) {
	return rank.Rank(records, key, dir)
}

func (e *blockingEngine) FindCommonVendors(ctx context.Context, ids []model.ItemID) (match.Result, error) {
	return match.Result{}, nil
}

func TestRefresh_ConcurrentCallsShareOneBuild(t *testing.T) {
	engine := &blockingEngine{release: make(chan struct{})}
	s, err := New(context.Background(), engine, Config{PageSize: 10})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Refresh()
			assert.NoError(t, err)
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(engine.release)
	wg.Wait()

	assert.Equal(t, int32(1), engine.builds.Load())
	require.NotNil(t, s.Current())
	assert.Equal(t, "fake", s.Current().Source)
}

func TestRefresh_CancelledBuildIsNotStored(t *testing.T) {
	engine := &blockingEngine{release: make(chan struct{}), cancelled: true}
	close(engine.release)
	s, err := New(context.Background(), engine, Config{PageSize: 10})
	require.NoError(t, err)

	_, err = s.Refresh()
	assert.ErrorIs(t, err, model.ErrCancelled)
	assert.Nil(t, s.Current())
}

func TestRun(t *testing.T) {
	engine := &blockingEngine{release: make(chan struct{})}
	close(engine.release)

	t.Run("no interval returns", func(t *testing.T) {
		s, err := New(context.Background(), engine, Config{PageSize: 10})
		require.NoError(t, err)
		s.Run(context.Background())
	})

	t.Run("interval refreshes until cancelled", func(t *testing.T) {
		s, err := New(context.Background(), engine, Config{PageSize: 10, RefreshInterval: 5 * time.Millisecond})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			s.Run(ctx)
			close(done)
		}()

		require.Eventually(t, func() bool { return s.Current() != nil }, time.Second, 5*time.Millisecond)
		cancel()
		<-done
	})
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), nil, Config{})
	assert.ErrorIs(t, err, model.ErrInvalidRequest)

	_, err = New(context.Background(), &blockingEngine{}, Config{RefreshInterval: -time.Second})
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}
