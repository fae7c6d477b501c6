// Package server serves the last built flowzz catalog and vendor
// comparisons over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/flowzz-client/pkg/catalog"
	"github.com/Sternrassler/flowzz-client/pkg/logging"
	"github.com/Sternrassler/flowzz-client/pkg/match"
	"github.com/Sternrassler/flowzz-client/pkg/model"
	"github.com/Sternrassler/flowzz-client/pkg/rank"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Engine is the part of catalog.Engine the server needs.
type Engine interface {
	BuildCatalog(ctx context.Context, pageSize int, delay time.Duration) (catalog.CatalogResult, error)
	Rank(records []model.EnrichedRecord, key rank.Key, dir rank.Direction) (rank.Result, error)
	FindCommonVendors(ctx context.Context, ids []model.ItemID) (match.Result, error)
}

// Config configures the catalog store.
type Config struct {
	PageSize        int
	Delay           time.Duration
	RefreshInterval time.Duration

	// Ping reports readiness of backing services. Optional.
	Ping func(ctx context.Context) error
}

// Server keeps the most recent catalog and builds a new one on demand.
type Server struct {
	engine Engine
	config Config
	// ctx bounds every build so a disconnecting client cannot cancel one.
	ctx    context.Context
	logger zerolog.Logger

	builds singleflight.Group

	mu      sync.RWMutex
	current *catalog.CatalogResult
}

// New creates a server. Builds run under ctx; cancelling it stops them.
func New(ctx context.Context, engine Engine, config Config) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: engine is required", model.ErrInvalidRequest)
	}
	if config.RefreshInterval < 0 {
		return nil, fmt.Errorf("%w: refresh interval must be >= 0", model.ErrInvalidRequest)
	}
	return &Server{
		engine: engine,
		config: config,
		ctx:    ctx,
		logger: logging.NewLogger("server"),
	}, nil
}

// Current returns the last stored catalog, or nil before the first build.
func (s *Server) Current() *catalog.CatalogResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Catalog returns the stored catalog, building one if none exists.
func (s *Server) Catalog() (*catalog.CatalogResult, error) {
	if current := s.Current(); current != nil {
		return current, nil
	}
	return s.Refresh()
}

// Refresh builds a new catalog. Concurrent calls share one build. A build
// cut short by cancellation is returned but never replaces the stored
// catalog.
func (s *Server) Refresh() (*catalog.CatalogResult, error) {
	v, err, shared := s.builds.Do("catalog", func() (any, error) {
		result, err := s.engine.BuildCatalog(s.ctx, s.config.PageSize, s.config.Delay)
		if err != nil {
			return nil, err
		}
		if !result.Cancelled {
			s.mu.Lock()
			s.current = &result
			s.mu.Unlock()
		}
		return &result, nil
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Catalog build failed")
		return nil, err
	}
	result := v.(*catalog.CatalogResult)
	s.logger.Info().
		Int("records", len(result.Records)).
		Str("outcome", string(result.Outcome())).
		Bool("shared", shared).
		Msg("Catalog refreshed")
	if result.Cancelled {
		return result, fmt.Errorf("%w: catalog build interrupted", model.ErrCancelled)
	}
	return result, nil
}

// Run refreshes the catalog every RefreshInterval until ctx is done. It
// returns immediately when no interval is configured.
func (s *Server) Run(ctx context.Context) {
	if s.config.RefreshInterval == 0 {
		return
	}
	ticker := time.NewTicker(s.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Refresh(); err != nil && !errors.Is(err, model.ErrCancelled) {
				s.logger.Warn().Err(err).Msg("Scheduled refresh failed")
			}
		}
	}
}
