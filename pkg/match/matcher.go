// Package match finds the vendors that stock every one of a small set of
// items and compares their combined prices.
package match

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/flowzz-client/pkg/fetch"
	"github.com/Sternrassler/flowzz-client/pkg/logging"
	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MaxItems is the largest number of items one comparison accepts.
const MaxItems = 3

var (
	matchRows = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowzz_match_rows",
		Help:    "Number of common vendors found per comparison",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
	})

	matchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowzz_match_requests_total",
		Help: "Total vendor comparisons by outcome",
	}, []string{"outcome"})
)

// OfferFetcher fetches the raw offers of one item. *fetch.Fetcher
// implements it.
type OfferFetcher interface {
	VendorOffers(ctx context.Context, id model.ItemID) ([]model.RawOffer, error)
}

// Config holds matcher configuration.
type Config struct {
	// Orderable decides which availability codes count as orderable.
	Orderable model.AvailabilityPredicate

	// Retry is applied to each vendor fetch.
	Retry fetch.RetryPolicy
}

// DefaultConfig accepts the default orderable codes and never retries.
func DefaultConfig() Config {
	return Config{
		Orderable: model.OrderableCodes(model.DefaultOrderableCodes...),
		Retry:     fetch.NoRetry(),
	}
}

// Result is one vendor comparison.
type Result struct {
	// Rows are sorted by total, then vendor name case-insensitively.
	Rows []model.VendorComparisonRow
	// ItemIDs is the request order of the price columns.
	ItemIDs []model.ItemID
	// Diagnostics explain which items lost offers or failed to load.
	Diagnostics []model.Diagnostic
}

// Outcome reports partial when any offer was dropped or any item failed.
func (r Result) Outcome() model.Outcome {
	return model.OutcomeOf(r.Diagnostics)
}

// Matcher intersects per-item vendor sets.
type Matcher struct {
	fetcher OfferFetcher
	config  Config
	logger  zerolog.Logger
}

// New creates a matcher.
func New(fetcher OfferFetcher, config Config) (*Matcher, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("offer fetcher is required")
	}
	if config.Orderable == nil {
		config.Orderable = DefaultConfig().Orderable
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = fetch.NoRetry()
	}
	return &Matcher{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger("matcher"),
	}, nil
}

// ValidateItemIDs checks the preconditions of FindCommonVendors.
func ValidateItemIDs(ids []model.ItemID) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one item id is required", model.ErrInvalidRequest)
	}
	if len(ids) > MaxItems {
		return fmt.Errorf("%w: at most %d item ids can be compared (got %d)", model.ErrInvalidRequest, MaxItems, len(ids))
	}
	seen := make(map[model.ItemID]struct{}, len(ids))
	for _, id := range ids {
		if id <= 0 {
			return fmt.Errorf("%w: invalid item id %d", model.ErrInvalidRequest, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: item id %d requested twice", model.ErrInvalidRequest, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// FindCommonVendors fetches the offers of every requested item and returns
// the vendors carrying all of them. A failed item contributes no vendors,
// which empties the result; the reason is in Result.Diagnostics. Invalid
// requests fail before anything is fetched.
func (m *Matcher) FindCommonVendors(ctx context.Context, ids []model.ItemID) (Result, error) {
	if err := ValidateItemIDs(ids); err != nil {
		matchRequestsTotal.WithLabelValues("invalid").Inc()
		return Result{}, err
	}

	start := time.Now()
	sets := make([]OfferSet, len(ids))
	perItem := make([][]model.Diagnostic, len(ids))
	errs := make([]error, len(ids))

	// Vendor fetches share the fetcher's limiter, so running them
	// concurrently only overlaps their latency.
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id model.ItemID) {
			defer wg.Done()
			sets[i], perItem[i], errs[i] = m.offersFor(ctx, id)
		}(i, id)
	}
	wg.Wait()

	result := Result{ItemIDs: append([]model.ItemID(nil), ids...)}
	for i := range ids {
		if errors.Is(errs[i], model.ErrCancelled) {
			matchRequestsTotal.WithLabelValues("cancelled").Inc()
			return Result{}, errs[i]
		}
		result.Diagnostics = append(result.Diagnostics, perItem[i]...)
	}

	result.Rows = Intersect(sets)
	SortRows(result.Rows)

	matchRows.Observe(float64(len(result.Rows)))
	matchRequestsTotal.WithLabelValues(string(result.Outcome())).Inc()

	m.logger.Info().
		Interface("item_ids", ids).
		Int("rows", len(result.Rows)).
		Int("diagnostics", len(result.Diagnostics)).
		Dur("duration", time.Since(start)).
		Msg("Vendor comparison complete")

	return result, nil
}

func (m *Matcher) offersFor(ctx context.Context, id model.ItemID) (OfferSet, []model.Diagnostic, error) {
	var raw []model.RawOffer
	err := fetch.Retry(ctx, model.OpVendorOffers, m.config.Retry, func() error {
		offers, err := m.fetcher.VendorOffers(ctx, id)
		if err != nil {
			return err
		}
		raw = offers
		return nil
	})
	if errors.Is(err, model.ErrCancelled) {
		return nil, nil, err
	}
	if err != nil {
		m.logger.Warn().
			Err(err).
			Int64("item_id", int64(id)).
			Msg("Vendor fetch failed - item contributes no vendors")
		return OfferSet{}, []model.Diagnostic{{
			Code:   model.DiagVendorFetchFailed,
			ItemID: id,
			Err:    err,
		}}, nil
	}

	set, diags := ReduceOffers(id, raw, m.config.Orderable)
	m.logger.Debug().
		Int64("item_id", int64(id)).
		Int("raw_offers", len(raw)).
		Int("orderable_vendors", len(set)).
		Msg("Vendor offers reduced")
	return set, diags, nil
}

// Intersect builds one row per vendor present in every set. Prices follow
// the order of sets; the website is the first non-empty one in that order.
func Intersect(sets []OfferSet) []model.VendorComparisonRow {
	if len(sets) == 0 {
		return []model.VendorComparisonRow{}
	}

	rows := []model.VendorComparisonRow{}
	for name := range sets[0] {
		row := model.VendorComparisonRow{
			Vendor: name,
			Prices: make([]decimal.Decimal, 0, len(sets)),
			Total:  decimal.Zero,
		}
		common := true
		for _, set := range sets {
			offer, ok := set[name]
			if !ok {
				common = false
				break
			}
			row.Prices = append(row.Prices, offer.Price)
			row.Total = row.Total.Add(offer.Price)
			if row.Website == "" {
				row.Website = offer.Website
			}
		}
		if common {
			rows = append(rows, row)
		}
	}
	return rows
}

// SortRows orders rows by total ascending, then by vendor name
// case-insensitively. Names equal except for case fall back to byte order.
func SortRows(rows []model.VendorComparisonRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].Total.Cmp(rows[j].Total); c != 0 {
			return c < 0
		}
		li, lj := strings.ToLower(rows[i].Vendor), strings.ToLower(rows[j].Vendor)
		if li != lj {
			return li < lj
		}
		return rows[i].Vendor < rows[j].Vendor
	})
}
