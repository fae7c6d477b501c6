// Package enrich merges detail-only fields into catalog summaries.
//
// Enrichment is one-to-one and order preserving: every summary yields
// exactly one record, and an item whose detail fetch failed is kept with
// unknown detail fields. Only cancellation shortens the output, leaving the
// completed items in input order.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/flowzz-client/pkg/fetch"
	"github.com/Sternrassler/flowzz-client/pkg/logging"
	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var recordsEnrichedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "flowzz_records_enriched_total",
	Help: "Total records produced by the enricher by result",
}, []string{"result"})

// DetailFetcher fetches the detail record of one item. *fetch.Fetcher
// implements it.
type DetailFetcher interface {
	Detail(ctx context.Context, source model.Source, slug string) (model.Detail, error)
}

// Config holds enricher configuration.
type Config struct {
	// Workers is the number of concurrent detail fetches. All workers go
	// through the same fetcher, so request starts stay spaced by its delay.
	Workers int

	// Retry is applied to each detail fetch.
	Retry fetch.RetryPolicy
}

// DefaultConfig returns a sequential, single-attempt configuration.
func DefaultConfig() Config {
	return Config{
		Workers: 1,
		Retry:   fetch.NoRetry(),
	}
}

// Result is the outcome of one Enrich call.
type Result struct {
	Records     []model.EnrichedRecord
	Diagnostics []model.Diagnostic

	// Cancelled is set when the context ended before every item was
	// processed. Records then holds the completed items in input order.
	Cancelled bool
}

// Outcome reports whether every item was enriched.
func (r Result) Outcome() model.Outcome {
	return model.OutcomeOf(r.Diagnostics)
}

// Enricher enriches summaries of one source.
type Enricher struct {
	fetcher DetailFetcher
	source  model.Source
	config  Config
	logger  zerolog.Logger
}

// New creates an enricher.
func New(fetcher DetailFetcher, source model.Source, config Config) (*Enricher, error) {
	if fetcher == nil {
		return nil, fmt.Errorf("detail fetcher is required")
	}
	if err := source.Validate(); err != nil {
		return nil, err
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = fetch.NoRetry()
	}

	return &Enricher{
		fetcher: fetcher,
		source:  source,
		config:  config,
		logger:  logging.NewLogger("enricher").With().Str("source", source.Name).Logger(),
	}, nil
}

type job struct {
	index   int
	summary model.CatalogSummary
}

type itemResult struct {
	index  int
	record model.EnrichedRecord
	diag   *model.Diagnostic
}

// Enrich fetches the detail of every summary through a worker pool and
// returns the records in input order.
func (e *Enricher) Enrich(ctx context.Context, summaries []model.CatalogSummary) Result {
	start := time.Now()
	if len(summaries) == 0 {
		return Result{Records: []model.EnrichedRecord{}}
	}

	workers := e.config.Workers
	if workers > len(summaries) {
		workers = len(summaries)
	}

	e.logger.Info().
		Int("items", len(summaries)).
		Int("workers", workers).
		Msg("Starting enrichment")

	queue := make(chan job)
	results := make(chan itemResult, len(summaries))

	// Fill the queue in input order until cancelled.
	go func() {
		defer close(queue)
		for i, s := range summaries {
			select {
			case queue <- job{index: i, summary: s}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go e.worker(ctx, queue, results, &wg, i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	slots := make([]*itemResult, len(summaries))
	completed := 0
	for r := range results {
		r := r
		slots[r.index] = &r
		completed++

		// Progress logging every 100 items
		if completed%100 == 0 {
			e.logger.Info().
				Int("completed", completed).
				Int("total", len(summaries)).
				Float64("progress_pct", float64(completed)/float64(len(summaries))*100).
				Msg("Enrichment progress")
		}
	}

	result := Result{Records: make([]model.EnrichedRecord, 0, completed)}
	failed := 0
	for _, slot := range slots {
		if slot == nil {
			continue
		}
		result.Records = append(result.Records, slot.record)
		if slot.diag != nil {
			result.Diagnostics = append(result.Diagnostics, *slot.diag)
			failed++
		}
	}

	if completed < len(summaries) {
		result.Cancelled = true
		result.Diagnostics = append(result.Diagnostics, model.Diagnostic{
			Code:   model.DiagCancelled,
			Detail: fmt.Sprintf("%d of %d items enriched before cancellation", completed, len(summaries)),
			Err:    ctx.Err(),
		})
	}

	e.logger.Info().
		Int("records", len(result.Records)).
		Int("failed", failed).
		Bool("cancelled", result.Cancelled).
		Dur("duration", time.Since(start)).
		Msg("Enrichment complete")

	return result
}

// worker processes items from the queue
func (e *Enricher) worker(ctx context.Context, queue <-chan job, results chan<- itemResult, wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	processed := 0

	for j := range queue {
		if ctx.Err() != nil {
			e.logger.Debug().
				Int("worker_id", workerID).
				Int("items_processed", processed).
				Msg("Worker stopping (context cancelled)")
			return
		}

		r, ok := e.enrichOne(ctx, j)
		if !ok {
			return
		}
		results <- r
		processed++
	}

	if processed > 0 {
		e.logger.Debug().
			Int("worker_id", workerID).
			Int("items_processed", processed).
			Msg("Worker completed")
	}
}

// enrichOne fetches one detail. It reports false when the item was not
// completed because of cancellation.
func (e *Enricher) enrichOne(ctx context.Context, j job) (itemResult, bool) {
	s := j.summary
	link := e.source.Link(s.Slug)

	if s.Slug == "" {
		recordsEnrichedTotal.WithLabelValues("failed").Inc()
		return itemResult{
			index:  j.index,
			record: model.Unenriched(s, link),
			diag: &model.Diagnostic{
				Code:   model.DiagDetailFailed,
				ItemID: s.ID,
				Detail: "item has no slug",
			},
		}, true
	}

	var detail model.Detail
	err := fetch.Retry(ctx, model.OpDetail, e.config.Retry, func() error {
		d, err := e.fetcher.Detail(ctx, e.source, s.Slug)
		if err != nil {
			return err
		}
		detail = d
		return nil
	})

	if errors.Is(err, model.ErrCancelled) {
		return itemResult{}, false
	}
	if err != nil {
		recordsEnrichedTotal.WithLabelValues("failed").Inc()
		e.logger.Warn().
			Err(err).
			Int64("item_id", int64(s.ID)).
			Str("slug", s.Slug).
			Msg("Detail fetch failed - keeping item with unknown detail fields")
		return itemResult{
			index:  j.index,
			record: model.Unenriched(s, link),
			diag: &model.Diagnostic{
				Code:   model.DiagDetailFailed,
				ItemID: s.ID,
				Detail: fmt.Sprintf("slug %q", s.Slug),
				Err:    err,
			},
		}, true
	}

	recordsEnrichedTotal.WithLabelValues("ok").Inc()
	return itemResult{index: j.index, record: model.Enrich(s, detail, link)}, true
}
