// Command switchover drives the Deployment Handshake (spec.md §4.11)
// after a provisioning step has produced a fresh application
// configuration: it publishes the ResourceMap, seeds the first
// coordinator generation, waits for the Deployment Handshake's
// confirmation artifact. It passes no switchover hook to the controller,
// so no hook runs. Not a
// production-grade tool on its own — like the teacher's cmd/apikey, it
// is a thin CLI over library code real deployment tooling would call
// directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fluxplane/control-plane/internal/bootstrap"
	"github.com/fluxplane/control-plane/internal/config"
	"github.com/fluxplane/control-plane/internal/invokeclient"
	"github.com/fluxplane/control-plane/internal/objectgw"
	"github.com/fluxplane/control-plane/internal/resourcemap"
	"github.com/fluxplane/control-plane/internal/switchover"
)

func main() {
	appConfigPath := flag.String("app-config", "", "path to the validated application configuration document (defaults to FLUXPLANE_APP_CONFIG_PATH)")
	invokeBaseURL := flag.String("invoke-base-url", "", "base URL the deployed components are reachable at (defaults to FLUXPLANE_INVOKE_BASE_URL)")
	flag.Parse()

	if err := run(*appConfigPath, *invokeBaseURL); err != nil {
		log.Fatalf("switchover: %v", err)
	}
}

func run(appConfigPathFlag, invokeBaseURLFlag string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if appConfigPathFlag != "" {
		cfg.AppConfigPath = appConfigPathFlag
	}
	if invokeBaseURLFlag != "" {
		cfg.InvokeBaseURL = invokeBaseURLFlag
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := bootstrap.LoadApplication(cfg.AppConfigPath)
	if err != nil {
		return fmt.Errorf("load application config: %w", err)
	}

	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build object store: %w", err)
	}
	store = objectgw.WithRetry(store)

	resources := resourcemap.Build(app, func(name string) string {
		return bootstrap.InvokeEndpoint(cfg.InvokeBaseURL, name)
	})

	controller := switchover.New(store, cfg.ResourceMapKey, cfg.ConfirmKey, invokeclient.New())

	if err := controller.Run(ctx, app, resources, nil); err != nil {
		return fmt.Errorf("run switchover: %w", err)
	}

	fmt.Println("switchover complete")
	return nil
}

// newObjectStore duplicates bootstrap.buildStore's switch because that
// helper is unexported; this CLI needs a store before the rest of a
// Runtime (queue gateway, ledger, application validation against a
// resource map that does not exist yet) is meaningful.
func newObjectStore(ctx context.Context, cfg *config.Config) (objectgw.Store, error) {
	switch config.ObjectStoreKind(cfg.ObjectStoreKind) {
	case config.ObjectStoreGCS:
		return objectgw.NewGCSStore(ctx, cfg.GCSBucket)
	case config.ObjectStoreFS:
		return objectgw.NewFSStore(cfg.FSDir)
	default:
		return nil, fmt.Errorf("unsupported object store kind %q", cfg.ObjectStoreKind)
	}
}
