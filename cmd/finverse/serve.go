package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/finverse/finverse/pkg/config"
	"github.com/finverse/finverse/pkg/contracts"
	"github.com/finverse/finverse/pkg/gate"
	"github.com/finverse/finverse/pkg/inference"
	"github.com/finverse/finverse/pkg/policy"
	"github.com/finverse/finverse/pkg/server"
	"github.com/finverse/finverse/pkg/session"
	"github.com/finverse/finverse/pkg/storage"
	"github.com/finverse/finverse/pkg/telemetry"
)

const sweepInterval = time.Minute

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "Listen address (overrides server.address)")
	return cmd
}

// errNoModelEndpoint is returned by the loader when no inference server is
// configured; drawings then stay unevaluated.
var errNoModelEndpoint = errors.New("no model endpoint configured")

func newModelLoader(cfg config.ModelConfig, logger *slog.Logger, observe func(ok bool, d time.Duration)) *inference.Loader {
	load := func(context.Context) (inference.Engine, error) {
		return nil, errNoModelEndpoint
	}
	if cfg.Endpoint != "" {
		load = inference.HTTPLoadFunc(cfg.Endpoint, cfg.Name, inference.WithTimeout(cfg.Timeout))
	}
	return inference.NewLoader(load,
		inference.WithLoadTimeout(cfg.Timeout),
		inference.WithLoaderLogger(logger),
		inference.WithLoadObserver(observe),
	)
}

func newGate(cfg config.ModelConfig, loader *inference.Loader, logger *slog.Logger) *gate.Gate {
	return gate.New(loader,
		gate.WithThreshold(cfg.Threshold),
		gate.WithModelName(cfg.Name),
		gate.WithLogger(logger),
	)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Address = addr
	}
	logger := newLogger(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	store, err := storage.Open(ctx, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open client storage: %w", err)
	}
	defer store.Close()

	metrics := server.NewMetrics()
	loader := newModelLoader(cfg.Model, logger, func(ok bool, d time.Duration) {
		metrics.RecordModelLoad(ok)
		telemetry.RecordModelLoad(ctx, cfg.Model.Name, ok, d)
	})
	// Warm the model so the first drawing does not pay for the load.
	go func() {
		if _, err := loader.Load(ctx); err != nil {
			logger.Warn("classifier not available yet", "error", err)
		}
	}()

	manager := session.NewManager(session.Config{
		Width:        cfg.Canvas.Width,
		Height:       cfg.Canvas.Height,
		UndoCapacity: cfg.Canvas.UndoCapacity,
		LineWidth:    cfg.Canvas.LineWidth,
		IdleTTL:      cfg.Server.SessionIdleTTL,
	}, newGate(cfg.Model, loader, logger), store,
		session.WithLogger(logger),
		session.WithHooks(metrics.SessionHooks()),
	)
	go manager.Run(ctx, sweepInterval)

	book, err := contracts.LoadAddressBook(cfg.Contracts.AddressFile, logger)
	if err != nil {
		return err
	}
	if cfg.Contracts.Watch {
		w, err := contracts.Watch(book, logger)
		if err != nil {
			return fmt.Errorf("watch address map: %w", err)
		}
		defer w.Close()
	}

	rules, err := policy.NewDefaultEngine(ctx)
	if err != nil {
		return fmt.Errorf("load action policy: %w", err)
	}

	api := server.New(server.Deps{
		Sessions:  manager,
		Loader:    loader,
		Store:     store,
		Addresses: book,
		Policy:    rules,
		Metrics:   metrics,
		Logger:    logger,
		HotCount:  cfg.Gallery.HotCount,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting finverse",
			"address", cfg.Server.Address,
			"model_endpoint", cfg.Model.Endpoint,
			"model", cfg.Model.Name,
			"storage", cfg.Storage.Path,
		)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error during shutdown", "error", err)
		}
	}

	logger.Info("Server stopped")
	return nil
}
