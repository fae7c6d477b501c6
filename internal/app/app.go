// Package app wires configuration into a ready catalog engine for the
// CLI and the server.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Sternrassler/flowzz-client/internal/config"
	"github.com/Sternrassler/flowzz-client/pkg/catalog"
	"github.com/Sternrassler/flowzz-client/pkg/client"
	"github.com/Sternrassler/flowzz-client/pkg/logging"
	"github.com/Sternrassler/flowzz-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App bundles the long-lived dependencies of one process.
type App struct {
	Config *config.Config
	Redis  *redis.Client
	Client *client.Client
	Engine *catalog.Engine

	logger zerolog.Logger
}

// New connects to Redis when configured and builds the engine. With
// Redis, every fetcher shares one RedisGate and responses are cached.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{
		Config: cfg,
		logger: logging.NewLogger("app"),
	}

	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.Redis = redis.NewClient(opts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.Redis.Ping(pingCtx).Err(); err != nil {
			a.Redis.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.logger.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("Connected to Redis")
	}

	clientCfg := cfg.ClientConfig()
	clientCfg.Redis = a.Redis
	httpClient, err := client.New(clientCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create flowzz client: %w", err)
	}
	a.Client = httpClient

	engineCfg := cfg.EngineConfig()
	if a.Redis != nil {
		gateLogger := logging.NewLogger("redis-gate")
		engineCfg.Gate = func(delay time.Duration) (ratelimit.Gate, error) {
			return ratelimit.NewRedisGate(a.Redis, cfg.Redis.GateKey, delay, gateLogger)
		}
	}

	engine, err := catalog.New(httpClient, engineCfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}
	a.Engine = engine

	a.logger.Debug().
		Str("source", cfg.Source).
		Dur("delay", cfg.Delay).
		Int("workers", cfg.Workers).
		Bool("redis", a.Redis != nil).
		Msg("Engine ready")

	return a, nil
}

// Close releases the Redis connection.
func (a *App) Close() error {
	if a.Redis != nil {
		return a.Redis.Close()
	}
	return nil
}
