// Command worker hosts every declared component's Worker Wrapper
// (spec.md §4.5) in one process: FromInvocation components behind an
// HTTP mux, FromMessage components as long-running receive loops. The
// business-logic handler this binary registers under each component's
// Worker.Handler reference is a development-mode echo handler, a stand
// in for the user code the provisioning step compiles in alongside the
// real deployment; swap registerHandlers for real handlers to host an
// actual application.
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
	"github.com/fluxplane/control-plane/internal/domain"
	"github.com/fluxplane/control-plane/internal/handlerreg"
	"github.com/fluxplane/control-plane/internal/wrapper"
	"github.com/fluxplane/control-plane/internal/workerhost"
	"github.com/fluxplane/control-plane/pkg/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
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

	lp, logger, err := observability.InitLogger(ctx, cfg.ServiceName+"-worker", cfg.OTelCollectorEndpoint, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer shutdownWithTimeout(lp.Shutdown, 5*time.Second)
	slog.SetDefault(logger)

	tp, err := observability.InitTracerProvider(ctx, cfg.ServiceName+"-worker", cfg.OTelCollectorEndpoint, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("init tracer provider: %w", err)
	}
	defer shutdownWithTimeout(tp.Shutdown, 5*time.Second)

	mp, err := observability.InitMeterProvider(ctx, cfg.ServiceName+"-worker", cfg.OTelCollectorEndpoint, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("init meter provider: %w", err)
	}
	defer shutdownWithTimeout(mp.Shutdown, 5*time.Second)

	rt, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	w := &wrapper.Wrapper{
		Store:          rt.Store,
		ResourceMapKey: cfg.ResourceMapKey,
		QueueGW:        rt.QueueGW,
		Ledger:         rt.Ledger,
		Engine:         rt.Engine,
		App:            rt.App,
	}

	handlers := handlerreg.New()
	registerHandlers(handlers, rt.App)
	host := workerhost.New(w, handlers)

	if err := host.RunPollLoops(ctx, rt.App); err != nil {
		return fmt.Errorf("start poll loops: %w", err)
	}

	mux, err := host.Mux(rt.App)
	if err != nil {
		return fmt.Errorf("build invoke mux: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.InvokeListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.InfoContext(ctx, "worker host listening", "addr", cfg.InvokeListenAddr)
	return serveUntilShutdown(ctx, server, cfg.ShutdownTimeout)
}

// registerHandlers registers the development-mode echo handler under
// every declared component's Worker.Handler reference, so a freshly
// generated application configuration can be hosted end to end before
// any real business logic is written.
func registerHandlers(handlers *handlerreg.Registry, app domain.Application) {
	for _, component := range app.Components {
		if component.Kind == domain.KindInternal {
			continue
		}
		handlers.Register(component.Worker.Handler, echoHandler)
	}
}

func echoHandler(ctx context.Context, event json.RawMessage, lc wrapper.LifecycleContext) {
	slog.InfoContext(ctx, "echo handler invoked", "event", string(event))
	lc.Succeed(event)
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
