// Command tripwired reads error events from a Redis stream and sends throttled notifications
// through the configured sinks.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tripwire-io/tripwire/config"
	"github.com/tripwire-io/tripwire/engine"
	"github.com/tripwire-io/tripwire/event"
	"github.com/tripwire-io/tripwire/logging"
	"github.com/tripwire-io/tripwire/redis"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "development"

const (
	ExitSuccess = 0
	ExitFailure = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	var flags Flags
	if err := config.ParseFlags(&flags); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return ExitFailure
	}

	if flags.Version {
		fmt.Println("tripwired", version)
		return ExitSuccess
	}

	var cfg Config
	if err := config.Load(&cfg, config.LoadOptions{
		Flags:      flags,
		EnvOptions: config.EnvOptions{Prefix: "TRIPWIRE_"},
	}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "can't load config: %+v\n", err)
		return ExitFailure
	}

	logs, err := logging.NewLoggingFromConfig("tripwired", cfg.Logging)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "can't configure logging: %+v\n", err)
		return ExitFailure
	}

	logger := logs.GetLogger()
	defer func() { _ = logger.Sync() }()

	logger.Infow("Starting tripwired", zap.String("version", version))

	sinks, err := cfg.Sinks.Build(logs.GetChildLogger("test-sink"))
	if err != nil {
		logger.Errorw("Can't create notification sinks", logging.Error(err))
		return ExitFailure
	}

	eng := engine.New(cfg.Engine.Settings(), sinks, logs.GetChildLogger("engine"))

	// Checked before connecting to Redis. Missing sink configuration is a quiet shutdown, not a failure.
	if err := eng.Ready(); err != nil {
		logger.Infow("Nothing to do, shutting down", logging.Error(err))
		return ExitSuccess
	}

	client, err := redis.NewClientFromConfig(&cfg.Redis, logs.GetChildLogger("redis"))
	if err != nil {
		logger.Errorw("Can't create Redis client from config", logging.Error(err))
		return ExitFailure
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	events := make(chan *event.ErrorEvent)

	g.Go(func() error {
		defer close(events)

		return redis.NewSource(client, cfg.Redis.Stream, logs.GetChildLogger("source")).Run(ctx, events)
	})

	g.Go(func() error {
		return eng.Run(ctx, events)
	})

	if cfg.Metrics.Listen != "" {
		g.Go(func() error {
			return serveMetrics(ctx, cfg.Metrics.Listen, logs.GetChildLogger("metrics"))
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorw("Exiting due to error", logging.Error(err))
		return ExitFailure
	}

	logger.Info("Shutting down")

	return ExitSuccess
}

// serveMetrics serves Prometheus metrics on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, logger *logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infow("Serving metrics", zap.String("addr", addr))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "can't serve metrics")
	}

	return ctx.Err()
}
