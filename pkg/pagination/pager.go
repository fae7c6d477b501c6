package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/flowzz-client/pkg/logging"
	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Page size bounds accepted by flowzz listings.
const (
	MinPageSize = 1
	MaxPageSize = 500
)

var pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flowzz_pages_fetched_total",
	Help: "Total listing pages requested by result",
}, []string{"result"})

// PageFetcher fetches a single listing page. *fetch.Fetcher implements it.
type PageFetcher interface {
	ListPage(ctx context.Context, endpoint string, page, pageSize int) (model.Page, error)
}

// Config holds pager configuration.
type Config struct {
	// MaxPages caps the number of pages requested. 0 means no cap; paging
	// then ends only on the declared page count or an empty page.
	MaxPages int
}

// DefaultConfig returns a configuration with a generous safety cap.
func DefaultConfig() Config {
	return Config{
		MaxPages: 1000,
	}
}

// Result is the catalog assembled by one PageThrough call.
type Result struct {
	Summaries   []model.CatalogSummary
	Diagnostics []model.Diagnostic

	// Pages is the number of pages fetched successfully.
	Pages int
	// PageCount is the page count declared by page 1 (0 if unknown).
	PageCount int

	// Truncated is set when paging stopped on a failed page or the page cap.
	Truncated bool
	// Cancelled is set when the context ended between two pages.
	Cancelled bool
}

// Outcome reports whether the catalog is complete or partial.
func (r Result) Outcome() model.Outcome {
	return model.OutcomeOf(r.Diagnostics)
}

// Pager walks a listing endpoint page by page.
type Pager struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewPager creates a pager.
func NewPager(fetcher PageFetcher, config Config) (*Pager, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("page fetcher is required")
	}
	if config.MaxPages < 0 {
		return nil, fmt.Errorf("max pages must be >= 0 (got %d)", config.MaxPages)
	}
	return &Pager{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger("pager"),
	}, nil
}

// ValidatePageSize checks a page size against the accepted bounds.
func ValidatePageSize(pageSize int) error {
	if pageSize < MinPageSize || pageSize > MaxPageSize {
		return fmt.Errorf("%w: page size must be in [%d, %d] (got %d)",
			model.ErrInvalidRequest, MinPageSize, MaxPageSize, pageSize)
	}
	return nil
}

// PageThrough fetches every page of endpoint. Only invalid arguments are
// returned as errors; fetch failures and cancellation end paging early and
// are reported in the result.
func (p *Pager) PageThrough(ctx context.Context, endpoint string, pageSize int) (Result, error) {
	if endpoint == "" {
		return Result{}, fmt.Errorf("%w: endpoint is required", model.ErrInvalidRequest)
	}
	if err := ValidatePageSize(pageSize); err != nil {
		return Result{}, err
	}

	start := time.Now()
	var result Result

	p.logger.Info().
		Str("endpoint", endpoint).
		Int("page_size", pageSize).
		Msg("Starting catalog paging")

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			p.cancelled(&result, page, err)
			break
		}

		if p.config.MaxPages > 0 && page > p.config.MaxPages {
			result.Truncated = true
			result.Diagnostics = append(result.Diagnostics, model.Diagnostic{
				Code:   model.DiagPageLimit,
				Page:   page,
				Detail: fmt.Sprintf("stopped after %d pages", p.config.MaxPages),
			})
			p.logger.Warn().
				Int("max_pages", p.config.MaxPages).
				Int("page_count", result.PageCount).
				Msg("Page cap reached - catalog truncated")
			break
		}

		data, err := p.fetcher.ListPage(ctx, endpoint, page, pageSize)
		if err != nil {
			if errors.Is(err, model.ErrCancelled) {
				p.cancelled(&result, page, err)
				break
			}
			pagesFetchedTotal.WithLabelValues("error").Inc()
			result.Truncated = true
			result.Diagnostics = append(result.Diagnostics, model.Diagnostic{
				Code: model.DiagPageFailed,
				Page: page,
				Err:  err,
			})
			p.logger.Warn().
				Err(err).
				Int("page", page).
				Int("summaries", len(result.Summaries)).
				Msg("Page fetch failed - stopping with partial catalog")
			break
		}

		result.Pages++
		if page == 1 {
			result.PageCount = data.PageCount
			if data.PageCount == 0 {
				p.logger.Debug().Msg("No usable page count - paging until an empty page")
			}
		}

		if data.Skipped > 0 {
			result.Diagnostics = append(result.Diagnostics, model.Diagnostic{
				Code:   model.DiagEntriesSkipped,
				Page:   page,
				Detail: fmt.Sprintf("%d entries without id or slug", data.Skipped),
			})
		}

		if len(data.Items) == 0 {
			pagesFetchedTotal.WithLabelValues("empty").Inc()
			break
		}
		pagesFetchedTotal.WithLabelValues("ok").Inc()
		result.Summaries = append(result.Summaries, data.Items...)

		// Progress logging every 50 pages
		if page%50 == 0 {
			p.logger.Info().
				Int("page", page).
				Int("page_count", result.PageCount).
				Int("summaries", len(result.Summaries)).
				Msg("Paging progress")
		}

		if result.PageCount > 0 && page >= result.PageCount {
			break
		}
	}

	p.logger.Info().
		Str("endpoint", endpoint).
		Int("pages", result.Pages).
		Int("summaries", len(result.Summaries)).
		Bool("truncated", result.Truncated).
		Bool("cancelled", result.Cancelled).
		Dur("duration", time.Since(start)).
		Msg("Catalog paging complete")

	return result, nil
}

func (p *Pager) cancelled(result *Result, page int, err error) {
	result.Cancelled = true
	result.Diagnostics = append(result.Diagnostics, model.Diagnostic{
		Code: model.DiagCancelled,
		Page: page,
		Err:  err,
	})
	p.logger.Info().
		Int("page", page).
		Int("summaries", len(result.Summaries)).
		Msg("Paging cancelled - returning partial catalog")
}
