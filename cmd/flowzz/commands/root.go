// Package commands implements the flowzz CLI.
package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/flowzz-client/internal/app"
	"github.com/Sternrassler/flowzz-client/internal/config"
	"github.com/Sternrassler/flowzz-client/pkg/logging"
	"github.com/Sternrassler/flowzz-client/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// runtime is the per-invocation state shared by subcommands.
type runtime struct {
	stdout io.Writer
	stderr io.Writer

	configFile string
	cfg        *config.Config
	logger     zerolog.Logger
}

// ExecuteContext runs the CLI with args and returns the process exit code.
func ExecuteContext(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	rt := &runtime{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "flowzz",
		Short:         "flowzz builds ranked flowzz catalogs and compares vendor prices.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.setup(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	f := root.PersistentFlags()
	f.StringVar(&rt.configFile, "config", "", "config file (default: ./flowzz.yaml, ./config/flowzz.yaml, /etc/flowzz/flowzz.yaml)")
	f.String("source", "products", "catalog source: products or strains")
	f.String("base-url", "", "flowzz site base URL")
	f.String("cms-url", "", "flowzz CMS base URL")
	f.String("vendor-url", "", "vendor endpoint template containing {id}")
	f.String("user-agent", "", "User-Agent sent to flowzz")
	f.Duration("delay", 500*time.Millisecond, "minimum time between request starts")
	f.Duration("timeout", 30*time.Second, "per-request timeout")
	f.Int("page-size", 100, "listing page size (1-500)")
	f.Int("max-pages", 1000, "stop paging after this many pages (0 = no cap)")
	f.Int("workers", 1, "concurrent detail fetches")
	f.Int("retries", 1, "attempts per detail or vendor fetch")
	f.String("redis-url", "", "Redis URL for the shared request gate and response cache")
	f.Duration("cache-ttl", 10*time.Minute, "response cache TTL (with --redis-url)")
	f.String("log-level", "info", "log level: debug, info, warn, error")
	f.Bool("log-pretty", false, "human-readable logs")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address while running")

	root.AddCommand(newCatalogCommand(rt), newVendorsCommand(rt))
	return root
}

func (rt *runtime) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(rt.configFile, cmd.Flags())
	if err != nil {
		return err
	}
	rt.cfg = cfg

	logCfg := cfg.LoggingConfig()
	logCfg.Output = rt.stderr
	rt.logger = logging.Setup(logCfg)

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cmd.Context(), cfg.MetricsAddr, rt.logger); err != nil {
				rt.logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}
	return nil
}

func (rt *runtime) app(ctx context.Context) (*app.App, error) {
	return app.New(ctx, rt.cfg)
}
