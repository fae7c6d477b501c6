// Command flowzz-server serves a periodically rebuilt flowzz catalog and
// vendor comparisons over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/flowzz-client/internal/app"
	"github.com/Sternrassler/flowzz-client/internal/config"
	"github.com/Sternrassler/flowzz-client/internal/server"
	"github.com/Sternrassler/flowzz-client/pkg/logging"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newFlagSet() (*pflag.FlagSet, *string) {
	fs := pflag.NewFlagSet("flowzz-server", pflag.ContinueOnError)
	configFile := fs.String("config", "", "config file (default: ./flowzz.yaml, ./config/flowzz.yaml, /etc/flowzz/flowzz.yaml)")
	fs.String("addr", ":8080", "listen address")
	fs.Duration("refresh", 0, "rebuild the catalog at this interval (0 = only on demand)")
	fs.String("source", "products", "catalog source: products or strains")
	fs.String("base-url", "", "flowzz site base URL")
	fs.String("cms-url", "", "flowzz CMS base URL")
	fs.String("vendor-url", "", "vendor endpoint template containing {id}")
	fs.Duration("delay", 500*time.Millisecond, "minimum time between request starts")
	fs.Int("page-size", 100, "listing page size (1-500)")
	fs.Int("workers", 1, "concurrent detail fetches")
	fs.Int("retries", 1, "attempts per detail or vendor fetch")
	fs.String("redis-url", "", "Redis URL for the shared request gate and response cache")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.Bool("log-pretty", false, "human-readable logs")
	return fs, configFile
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	fs, configFile := newFlagSet()
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configFile, fs)
	if err != nil {
		return err
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Output = stderr
	logger := logging.Setup(logCfg)
	if cfg.Log.Level != string(logging.LevelDebug) {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	serverCfg := server.Config{
		PageSize:        cfg.PageSize,
		Delay:           cfg.Delay,
		RefreshInterval: cfg.Server.RefreshInterval,
	}
	if a.Redis != nil {
		serverCfg.Ping = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	s, err := server.New(ctx, a.Engine, serverCfg)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.SetupRouter(server.NewHandler(s)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return serve(ctx, httpServer, s, logger)
}

// serve runs the HTTP server and the refresh loop until ctx is done, then
// shuts the server down gracefully.
func serve(ctx context.Context, httpServer *http.Server, s *server.Server, logger zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("Starting flowzz server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	go s.Run(ctx)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen on %s: %w", httpServer.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down flowzz server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
