// Command walrus-client runs the exchange state client: it connects the
// session channel, keeps the local caches synchronized and, when configured,
// archives trades and terminal withdrawals to PostgreSQL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ychx/walrus/config"
	"github.com/ychx/walrus/internal/archive"
	"github.com/ychx/walrus/internal/archive/migrations"
	archivepg "github.com/ychx/walrus/internal/archive/postgres"
	"github.com/ychx/walrus/internal/observability"
	"github.com/ychx/walrus/internal/session"
	"github.com/ychx/walrus/internal/syncengine"
	"github.com/ychx/walrus/internal/telemetry"
	"github.com/ychx/walrus/internal/transport"
)

const telemetryShutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "", "Path to the YAML configuration file")
	flag.Parse()

	logger := log.New(os.Stdout, "walrus ", log.LstdFlags)
	observability.SetLogger(observability.StdLogger{L: logger})

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	logger.Printf("configuration initialised: env=%s server=%s", cfg.Environment, cfg.Server.URL)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	provider, err := telemetry.NewProvider(ctx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer shutdownCancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Printf("telemetry shutdown: %v", err)
		}
	}()

	var store archive.Store
	if cfg.Archive.Enabled {
		if err := migrations.Apply(ctx, cfg.Archive.DSN); err != nil {
			return fmt.Errorf("prepare archive schema: %w", err)
		}
		pgStore, err := archivepg.New(ctx, cfg.Archive.DSN)
		if err != nil {
			return err
		}
		defer pgStore.Close()
		store = pgStore
		logger.Printf("archive enabled")
	}

	channel := transport.NewWSChannel(cfg.Server.URL)
	cache, err := session.New(session.Config{
		Channel:  channel,
		Archive:  store,
		Meter:    provider.Meter("walrus/syncengine"),
		PageSize: cfg.PageSize,
	})
	if err != nil {
		return err
	}
	cache.Subscribe("main-log", func(_ context.Context, n syncengine.Notification) {
		switch n.Kind {
		case syncengine.NotifyConnError:
			logger.Printf("stream interrupted: %s", n.Reason)
		case syncengine.NotifyLogin:
			logger.Printf("session authenticated")
		case syncengine.NotifyLogout:
			logger.Printf("session ended")
		}
	})

	logger.Printf("connecting to %s", cfg.Server.URL)
	err = cache.Run(ctx)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
	defer closeCancel()
	if cerr := channel.Close(closeCtx); cerr != nil {
		logger.Printf("channel close: %v", cerr)
	}
	return err
}

func telemetryConfig(cfg config.Settings) telemetry.Config {
	out := telemetry.DefaultConfig()
	if cfg.Telemetry.OTLPEndpoint != "" {
		out.Enabled = true
		out.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	if cfg.Telemetry.ServiceName != "" {
		out.ServiceName = cfg.Telemetry.ServiceName
	}
	out.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	out.Environment = string(cfg.Environment)
	return out
}
