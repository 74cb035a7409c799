package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/formrelay/internal/collector"
	"github.com/telhawk-systems/formrelay/internal/config"
	"github.com/telhawk-systems/formrelay/internal/dlq"
	"github.com/telhawk-systems/formrelay/internal/frontend"
	"github.com/telhawk-systems/formrelay/internal/lifecycle"
	"github.com/telhawk-systems/formrelay/internal/logging"
	"github.com/telhawk-systems/formrelay/internal/ratelimit"
	"github.com/telhawk-systems/formrelay/internal/relay"
	"github.com/telhawk-systems/formrelay/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the front-end and the collector together",
	Long: `Run the HTTP front-end and the UDP collector in one process. SIGINT or
SIGTERM stops both; either service failing stops the other.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		col, err := newCollector(cfg, logger)
		if err != nil {
			return err
		}

		fe, closeLimiter, err := newFrontend(cfg, logger)
		if err != nil {
			return err
		}
		defer closeLimiter()

		return runServices(cmd.Context(), col, fe)
	},
}

var frontendCmd = &cobra.Command{
	Use:   "frontend",
	Short: "Run only the HTTP front-end",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fe, closeLimiter, err := newFrontend(cfg, logger)
		if err != nil {
			return err
		}
		defer closeLimiter()

		return runServices(cmd.Context(), fe)
	},
}

var collectorCmd = &cobra.Command{
	Use:   "collector",
	Short: "Run only the UDP collector",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		col, err := newCollector(cfg, logger)
		if err != nil {
			return err
		}
		return runServices(cmd.Context(), col)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(frontendCmd)
	rootCmd.AddCommand(collectorCmd)
}

// runServices blocks until SIGINT/SIGTERM or a service failure.
func runServices(parent context.Context, services ...lifecycle.Service) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return lifecycle.NewCoordinator(cfg.Shutdown.GracePeriod, logger).Run(ctx, services...)
}

func frontendConfig(c *config.Config) frontend.Config {
	return frontend.Config{
		Addr:            c.Frontend.Addr,
		StaticRoot:      c.Frontend.StaticRoot,
		IndexPage:       c.Frontend.IndexPage,
		MessagePage:     c.Frontend.MessagePage,
		ErrorPage:       c.Frontend.ErrorPage,
		RedirectTo:      c.Frontend.RedirectTo,
		MaxBodyBytes:    c.Frontend.MaxBodyBytes,
		HiddenPaths:     []string{c.Store.Path, c.Collector.RejectDir},
		ReadTimeout:     c.Frontend.ReadTimeout,
		WriteTimeout:    c.Frontend.WriteTimeout,
		IdleTimeout:     c.Frontend.IdleTimeout,
		ShutdownTimeout: drainTimeout(c.Shutdown.GracePeriod),
		MetricsEnabled:  c.Metrics.Enabled,
	}
}

// drainTimeout leaves part of the grace period for the front-end to return
// to the coordinator after draining connections.
func drainTimeout(grace time.Duration) time.Duration {
	reserve := grace / 10
	if reserve > time.Second {
		reserve = time.Second
	}
	return grace - reserve
}

// newFrontend wires the relay sender and the optional Redis limiter into a
// front-end service. The returned func releases the limiter.
func newFrontend(c *config.Config, log *logging.Logger) (*frontend.Service, func() error, error) {
	var limiter ratelimit.RateLimiter = &ratelimit.NoOpRateLimiter{}
	if c.RateLimit.Enabled {
		rl, err := ratelimit.NewRedisRateLimiter(c.RateLimit.RedisURL, c.RateLimit.Requests, c.RateLimit.Window)
		if err != nil {
			return nil, nil, fmt.Errorf("rate limiter: %w", err)
		}
		limiter = rl
		log.Info("rate limiting enabled",
			"requests", c.RateLimit.Requests,
			"window", c.RateLimit.Window.String(),
		)
	}

	feLog := log.With(logging.Service("frontend"))
	fcfg := frontendConfig(c)
	sender := relay.NewSender(c.Relay.Target, c.Relay.WriteTimeout)
	handler := frontend.NewHandler(fcfg, sender, limiter, feLog)

	return frontend.NewService(fcfg, frontend.NewRouter(handler), feLog), limiter.Close, nil
}

// newCollector makes sure the store file exists and builds the collector,
// with the reject queue when enabled.
func newCollector(c *config.Config, log *logging.Logger) (*collector.Service, error) {
	st := store.NewFileStore(c.Store.Path)
	if err := st.Init(); err != nil {
		return nil, fmt.Errorf("store init: %w", err)
	}

	var opts []collector.Option
	if c.Collector.RejectEnabled {
		q, err := dlq.NewQueue(c.Collector.RejectDir, log.Logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, collector.WithRejectQueue(q))
	}

	return collector.New(collector.Config{
		Addr:             c.Collector.Addr,
		MaxDatagramBytes: c.Collector.MaxDatagramBytes,
	}, st, log, opts...), nil
}
