// Command coordinator hosts the Coordinator pipeline (spec.md §4.7)
// behind the invoke primitive's HTTP handler. It is its own process in
// this deployment shape, reachable the same way every FromInvocation
// component is: an otelhttp-instrumented POST endpoint that accepts an
// event and returns immediately.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fluxplane/control-plane/internal/bootstrap"
	"github.com/fluxplane/control-plane/internal/config"
	"github.com/fluxplane/control-plane/internal/coordinator"
	"github.com/fluxplane/control-plane/internal/domain"
	"github.com/fluxplane/control-plane/internal/invokeclient"
	"github.com/fluxplane/control-plane/internal/wrapper"
	"github.com/fluxplane/control-plane/pkg/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "coordinator: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lp, logger, err := observability.InitLogger(ctx, cfg.ServiceName+"-coordinator", cfg.OTelCollectorEndpoint, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer shutdownWithTimeout(lp.Shutdown, 5*time.Second)
	slog.SetDefault(logger)

	tp, err := observability.InitTracerProvider(ctx, cfg.ServiceName+"-coordinator", cfg.OTelCollectorEndpoint, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("init tracer provider: %w", err)
	}
	defer shutdownWithTimeout(tp.Shutdown, 5*time.Second)

	mp, err := observability.InitMeterProvider(ctx, cfg.ServiceName+"-coordinator", cfg.OTelCollectorEndpoint, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("init meter provider: %w", err)
	}
	defer shutdownWithTimeout(mp.Shutdown, 5*time.Second)

	rt, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	pipeline := coordinator.New(rt.Store, cfg.ResourceMapKey, cfg.ConfirmKey, rt.Ledger, rt.App, rt.InvokeCli)

	mux := http.NewServeMux()
	mux.Handle("/invoke/Coordinator", invokeclient.Handler("coordinator.pipeline", func(event json.RawMessage) {
		pipeline.Handle(ctx, event, wrapper.DeadlineContext{Deadline: time.Now().Add(domain.MaxWorkerTimeout)})
	}))

	server := &http.Server{
		Addr:              cfg.InvokeListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.InfoContext(ctx, "coordinator listening", "addr", cfg.InvokeListenAddr)
	return serveUntilShutdown(ctx, server, cfg.ShutdownTimeout)
}

func shutdownWithTimeout(shutdown func(context.Context) error, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "provider shutdown failed", "error", err)
	}
}

func serveUntilShutdown(ctx context.Context, server *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
