// Package catalog is the entry point of the flowzz engine. It assembles
// an enriched catalog from one source, ranks it and compares vendors
// across a handful of items.
//
// Each BuildCatalog call is one fetch cycle: it pages the listing, enriches
// every entry and returns a new, immutable collection. Nothing is merged
// with earlier cycles.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/flowzz-client/pkg/enrich"
	"github.com/Sternrassler/flowzz-client/pkg/fetch"
	"github.com/Sternrassler/flowzz-client/pkg/logging"
	"github.com/Sternrassler/flowzz-client/pkg/match"
	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/Sternrassler/flowzz-client/pkg/pagination"
	"github.com/Sternrassler/flowzz-client/pkg/rank"
	"github.com/Sternrassler/flowzz-client/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// GateFactory builds the request gate for a fetcher with the given delay.
// It lets every fetcher of the engine share a cross-process gate such as
// ratelimit.RedisGate.
type GateFactory func(delay time.Duration) (ratelimit.Gate, error)

// Config holds engine configuration.
type Config struct {
	// Source is the catalog flavour to page and enrich.
	Source model.Source

	// Fetch configures the engine's own fetcher used for vendor lookups.
	// BuildCatalog uses its Timeout but takes the delay from its argument.
	Fetch fetch.Config

	// Gate, if set, replaces the in-process limiter of every fetcher.
	Gate GateFactory

	Pager  pagination.Config
	Enrich enrich.Config
	Match  match.Config
}

// DefaultConfig returns the configuration for the flowzz product catalog.
func DefaultConfig() Config {
	return Config{
		Source: model.DefaultSources(model.DefaultSiteURL, model.DefaultCMSURL)[model.SourceProducts],
		Fetch:  fetch.DefaultConfig(),
		Pager:  pagination.DefaultConfig(),
		Enrich: enrich.DefaultConfig(),
		Match:  match.DefaultConfig(),
	}
}

// CatalogResult is the product of one fetch cycle.
type CatalogResult struct {
	Source  string                 `json:"source"`
	Records []model.EnrichedRecord `json:"records"`

	// Diagnostics list every degradation: failed or capped pages, skipped
	// entries, failed details, duplicate ids and cancellation.
	Diagnostics []model.Diagnostic `json:"diagnostics,omitempty"`

	Pages     int       `json:"pages"`
	Truncated bool      `json:"truncated"`
	Cancelled bool      `json:"cancelled"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Outcome reports whether the catalog is complete or partial.
func (r CatalogResult) Outcome() model.Outcome {
	return model.OutcomeOf(r.Diagnostics)
}

// Engine runs fetch cycles and vendor comparisons against one transport.
type Engine struct {
	transport fetch.Transport
	config    Config
	fetcher   *fetch.Fetcher
	matcher   *match.Matcher
	logger    zerolog.Logger
}

// New creates an engine.
func New(transport fetch.Transport, config Config) (*Engine, error) {
	if transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if err := config.Source.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		transport: transport,
		config:    config,
		logger:    logging.NewLogger("catalog").With().Str("source", config.Source.Name).Logger(),
	}

	fetcher, err := e.newFetcher(config.Fetch.Delay)
	if err != nil {
		return nil, err
	}
	matcher, err := match.New(fetcher, config.Match)
	if err != nil {
		return nil, err
	}
	e.fetcher = fetcher
	e.matcher = matcher
	return e, nil
}

// Source returns the source the engine pages.
func (e *Engine) Source() model.Source {
	return e.config.Source
}

func (e *Engine) newFetcher(delay time.Duration) (*fetch.Fetcher, error) {
	cfg := e.config.Fetch
	cfg.Delay = delay
	if e.config.Gate != nil {
		gate, err := e.config.Gate(delay)
		if err != nil {
			return nil, fmt.Errorf("create request gate: %w", err)
		}
		cfg.Gate = gate
	}
	return fetch.New(e.transport, cfg)
}

// BuildCatalog runs one fetch cycle: page through the source listing with
// pageSize, then enrich every entry. All requests of the cycle go through
// one fetcher whose starts are at least delay apart.
//
// Invalid arguments fail before any fetch. Page and item failures degrade
// the result instead of failing it; cancellation returns what was
// completed so far.
func (e *Engine) BuildCatalog(ctx context.Context, pageSize int, delay time.Duration) (CatalogResult, error) {
	if err := pagination.ValidatePageSize(pageSize); err != nil {
		return CatalogResult{}, err
	}
	if delay < 0 {
		return CatalogResult{}, fmt.Errorf("%w: delay must be >= 0 (got %s)", model.ErrInvalidRequest, delay)
	}

	fetcher, err := e.newFetcher(delay)
	if err != nil {
		return CatalogResult{}, err
	}
	pager, err := pagination.NewPager(fetcher, e.config.Pager)
	if err != nil {
		return CatalogResult{}, err
	}
	enricher, err := enrich.New(fetcher, e.config.Source, e.config.Enrich)
	if err != nil {
		return CatalogResult{}, err
	}

	start := time.Now()
	e.logger.Info().
		Int("page_size", pageSize).
		Dur("delay", delay).
		Msg("Starting fetch cycle")

	paged, err := pager.PageThrough(ctx, e.config.Source.ListURL, pageSize)
	if err != nil {
		return CatalogResult{}, err
	}

	result := CatalogResult{
		Source:      e.config.Source.Name,
		Diagnostics: paged.Diagnostics,
		Pages:       paged.Pages,
		Truncated:   paged.Truncated,
		Cancelled:   paged.Cancelled,
	}

	if paged.Cancelled {
		// Summaries that were never enriched still belong in the result.
		result.Records = make([]model.EnrichedRecord, len(paged.Summaries))
		for i, s := range paged.Summaries {
			result.Records[i] = model.Unenriched(s, e.config.Source.Link(s.Slug))
		}
	} else {
		enriched := enricher.Enrich(ctx, paged.Summaries)
		result.Records = enriched.Records
		result.Diagnostics = append(result.Diagnostics, enriched.Diagnostics...)
		result.Cancelled = enriched.Cancelled
	}

	result.Diagnostics = append(result.Diagnostics, rank.Duplicates(result.Records)...)
	result.FetchedAt = time.Now()

	e.logger.Info().
		Int("records", len(result.Records)).
		Int("pages", result.Pages).
		Int("diagnostics", len(result.Diagnostics)).
		Int64("requests", fetcher.Calls()).
		Str("outcome", string(result.Outcome())).
		Dur("duration", time.Since(start)).
		Msg("Fetch cycle complete")

	return result, nil
}

// EnrichSlugs fetches the detail record of each slug without paging the
// listing. Identity and listing fields come from the detail payload where
// it carries them; a record without a name is named after its slug. Slugs whose detail could not be fetched are left out of
// Records and reported as detail_failed diagnostics; repeated slugs are
// fetched once.
func (e *Engine) EnrichSlugs(ctx context.Context, slugs []string, delay time.Duration) (CatalogResult, error) {
	summaries, err := slugSummaries(slugs)
	if err != nil {
		return CatalogResult{}, err
	}
	if delay < 0 {
		return CatalogResult{}, fmt.Errorf("%w: delay must be >= 0 (got %s)", model.ErrInvalidRequest, delay)
	}

	fetcher, err := e.newFetcher(delay)
	if err != nil {
		return CatalogResult{}, err
	}
	enricher, err := enrich.New(fetcher, e.config.Source, e.config.Enrich)
	if err != nil {
		return CatalogResult{}, err
	}

	start := time.Now()
	e.logger.Info().
		Int("slugs", len(summaries)).
		Dur("delay", delay).
		Msg("Fetching items by slug")

	enriched := enricher.Enrich(ctx, summaries)
	result := CatalogResult{
		Source:      e.config.Source.Name,
		Records:     make([]model.EnrichedRecord, 0, len(enriched.Records)),
		Diagnostics: enriched.Diagnostics,
		Cancelled:   enriched.Cancelled,
	}
	var identified []model.EnrichedRecord
	for _, r := range enriched.Records {
		if !r.Enriched {
			continue
		}
		if r.Name == "" {
			r.Name = r.Slug
		}
		result.Records = append(result.Records, r)
		if r.ID != 0 {
			identified = append(identified, r)
		}
	}
	// Two slugs may name the same item; strain pages carry no id at all.
	result.Diagnostics = append(result.Diagnostics, rank.Duplicates(identified)...)
	result.FetchedAt = time.Now()

	e.logger.Info().
		Int("records", len(result.Records)).
		Int("diagnostics", len(result.Diagnostics)).
		Int64("requests", fetcher.Calls()).
		Str("outcome", string(result.Outcome())).
		Dur("duration", time.Since(start)).
		Msg("Slug fetch complete")

	return result, nil
}

// slugSummaries turns slugs into bare summaries for the enricher.
func slugSummaries(slugs []string) ([]model.CatalogSummary, error) {
	if len(slugs) == 0 {
		return nil, fmt.Errorf("%w: at least one slug is required", model.ErrInvalidRequest)
	}

	seen := make(map[string]bool, len(slugs))
	summaries := make([]model.CatalogSummary, 0, len(slugs))
	for _, raw := range slugs {
		slug := strings.Trim(strings.TrimSpace(raw), "/")
		if slug == "" {
			return nil, fmt.Errorf("%w: empty slug", model.ErrInvalidRequest)
		}
		if seen[slug] {
			continue
		}
		seen[slug] = true
		summaries = append(summaries, model.CatalogSummary{Slug: slug})
	}
	return summaries, nil
}

// Rank orders records by key in direction dir.
func (e *Engine) Rank(records []model.EnrichedRecord, key rank.Key, dir rank.Direction) (rank.Result, error) {
	return rank.Rank(records, key, dir)
}

// FindCommonVendors compares the vendors stocking all of 1 to 3 items.
func (e *Engine) FindCommonVendors(ctx context.Context, ids []model.ItemID) (match.Result, error) {
	return e.matcher.FindCommonVendors(ctx, ids)
}
