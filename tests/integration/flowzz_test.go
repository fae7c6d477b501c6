//go:build integration

// Package integration runs the catalog engine end to end against a mock
// flowzz server and a Redis container.
package integration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/flowzz-client/internal/app"
	"github.com/Sternrassler/flowzz-client/internal/config"
	"github.com/Sternrassler/flowzz-client/internal/testutil"
	"github.com/Sternrassler/flowzz-client/pkg/catalog"
	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/Sternrassler/flowzz-client/pkg/ratelimit"
	"github.com/Sternrassler/flowzz-client/pkg/rank"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis starts a Redis container and returns its URL.
func setupRedis(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func newApp(t *testing.T, mock *testutil.MockFlowzz, redisURL string, mutate func(*config.Config)) *app.App {
	t.Helper()

	cfg, err := config.Load("", nil)
	if err != nil {
		t.Fatalf("Load config: %v", err)
	}
	cfg.BaseURL = mock.URL()
	cfg.CMSURL = mock.URL()
	cfg.VendorURL = mock.VendorURL()
	cfg.Delay = 5 * time.Millisecond
	cfg.Redis.URL = redisURL
	if mutate != nil {
		mutate(cfg)
	}

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

// TestCatalogCycle_CachedInRedis builds the catalog twice; the second
// cycle is served from the response cache.
func TestCatalogCycle_CachedInRedis(t *testing.T) {
	t.Chdir(t.TempDir())
	redisURL := setupRedis(t)

	mock := testutil.NewMockFlowzz(testutil.MockItems(5)...)
	defer mock.Close()

	a := newApp(t, mock, redisURL, nil)
	ctx := context.Background()

	first, err := a.Engine.BuildCatalog(ctx, 2, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("first BuildCatalog: %v", err)
	}
	if len(first.Records) != 5 || first.Outcome() != model.OutcomeComplete {
		t.Fatalf("first cycle: %d records, outcome %s", len(first.Records), first.Outcome())
	}
	// 3 listing pages and 5 details.
	if got := mock.RequestCount(); got != 8 {
		t.Errorf("requests after first cycle = %d, want 8", got)
	}

	second, err := a.Engine.BuildCatalog(ctx, 2, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("second BuildCatalog: %v", err)
	}
	if got := mock.RequestCount(); got != 8 {
		t.Errorf("requests after cached cycle = %d, want 8", got)
	}

	ranked, err := a.Engine.Rank(second.Records, rank.KeyLikes, rank.Desc)
	if err != nil {
		t.Fatalf("Rank: %v", err)
	}
	if ranked.Records[0].Name != "Strain 05" {
		t.Errorf("most liked = %q, want Strain 05", ranked.Records[0].Name)
	}

	exists, err := a.Redis.Exists(ctx, ratelimit.DefaultRedisKey).Result()
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists != 1 {
		t.Errorf("gate key %q not written", ratelimit.DefaultRedisKey)
	}
}

// TestSharedGate_SpacesRequestsAcrossProcesses runs two engines against
// one Redis gate; their combined requests keep the configured spacing.
func TestSharedGate_SpacesRequestsAcrossProcesses(t *testing.T) {
	t.Chdir(t.TempDir())
	redisURL := setupRedis(t)

	mock := testutil.NewMockFlowzz(testutil.MockItems(3)...)
	defer mock.Close()

	const delay = 50 * time.Millisecond
	noCache := func(cfg *config.Config) {
		cfg.Delay = delay
		cfg.Cache.TTL = 0
	}
	apps := []*app.App{newApp(t, mock, redisURL, noCache), newApp(t, mock, redisURL, noCache)}

	ids := []model.ItemID{1, 2, 3}
	start := time.Now()

	var wg sync.WaitGroup
	errs := make([]error, len(apps))
	for i, a := range apps {
		wg.Add(1)
		go func(i int, a *app.App) {
			defer wg.Done()
			res, err := a.Engine.FindCommonVendors(context.Background(), ids)
			if err == nil && len(res.Rows) != 2 {
				err = fmt.Errorf("got %d rows, want 2", len(res.Rows))
			}
			errs[i] = err
		}(i, a)
	}
	wg.Wait()
	elapsed := time.Since(start)

	for i, err := range errs {
		if err != nil {
			t.Errorf("engine %d: %v", i, err)
		}
	}
	if got := mock.PathCount("/api/vendor"); got != 6 {
		t.Errorf("vendor requests = %d, want 6", got)
	}
	// Six request starts at least delay apart span five delays.
	if want := 5*delay - 10*time.Millisecond; elapsed < want {
		t.Errorf("elapsed %s, want >= %s", elapsed, want)
	}
}

// TestVendorLookup_ByName resolves names against a cached catalog and
// compares vendors.
func TestVendorLookup_ByName(t *testing.T) {
	t.Chdir(t.TempDir())
	redisURL := setupRedis(t)

	mock := testutil.NewMockFlowzz(testutil.MockItems(3)...)
	defer mock.Close()

	a := newApp(t, mock, redisURL, nil)
	ctx := context.Background()

	result, err := a.Engine.BuildCatalog(ctx, 10, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}

	ids, err := catalog.ResolveRefs(result.Records, []string{"strain 02", "STRAIN 03"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	res, err := a.Engine.FindCommonVendors(ctx, ids)
	if err != nil {
		t.Fatalf("FindCommonVendors: %v", err)
	}
	if len(res.Rows) != 2 || res.Rows[0].Vendor != "Apotheke Nord" {
		t.Fatalf("rows = %+v", res.Rows)
	}
	if got := res.Rows[0].Total.StringFixed(2); got != "19.00" {
		t.Errorf("cheapest total = %s, want 19.00", got)
	}
}
