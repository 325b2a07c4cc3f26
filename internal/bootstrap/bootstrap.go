// Package bootstrap builds the gateway/engine graph every control-plane
// binary (coordinator, invoker, worker host, switchover CLI) wires up
// the same way: Object Store Gateway, Queue Gateway, Concurrency
// Ledger, Routing Engine and invoke client. The Object Store Gateway
// and Queue Gateway are wrapped with the Retry Harness per spec.md
// §4.1-§4.4; the ledger and engine reach it through the wrapped Queue
// Gateway, and the invoke client is not wrapped. Grounded in the teacher's wire.go
// provider-set shape (cmd/server/wire.go), rendered as plain
// constructor calls rather than google/wire codegen since this module
// has no generated wire_gen.go to keep in sync.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fluxplane/control-plane/internal/config"
	"github.com/fluxplane/control-plane/internal/domain"
	"github.com/fluxplane/control-plane/internal/invokeclient"
	"github.com/fluxplane/control-plane/internal/ledger"
	"github.com/fluxplane/control-plane/internal/objectgw"
	"github.com/fluxplane/control-plane/internal/queuegw"
	"github.com/fluxplane/control-plane/internal/resourcemap"
	"github.com/fluxplane/control-plane/internal/routing"
)

// Runtime holds the gateways and engines a control-plane binary needs.
// One Runtime is built per process and shared across every invocation
// it handles.
type Runtime struct {
	Store     objectgw.Store
	QueueGW   queuegw.Gateway
	Ledger    *ledger.Ledger
	Registry  *routing.Registry
	Engine    *routing.Engine
	InvokeCli *invokeclient.Client
	App       domain.Application
	Resources domain.ResourceMap
}

// Build constructs a Runtime from cfg: the object store named by
// cfg.ObjectStoreKind, a retry-wrapped Postgres queue gateway, a ledger
// over it, an empty routing expression registry (binaries that need
// RoutingExpr targets register their own expressions on Registry before
// using Engine), and the invoke client every outbound dispatch and
// chain call rides on. It also loads and validates the application
// configuration document from cfg.AppConfigPath and its published
// ResourceMap.
func Build(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: object store: %w", err)
	}
	store = objectgw.WithRetry(store)

	qgw, err := queuegw.NewPostgresGateway(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: queue gateway: %w", err)
	}
	retryingQGW := queuegw.WithRetry(qgw)

	ledg := ledger.New(retryingQGW)
	invokeCli := invokeclient.New()
	registry := routing.NewRegistry()
	engine := routing.New(registry, retryingQGW, invokeCli)

	app, err := LoadApplication(cfg.AppConfigPath)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: application config: %w", err)
	}

	resources, err := resourcemap.Load(ctx, store, cfg.ResourceMapKey)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: resource map: %w", err)
	}

	return &Runtime{
		Store:     store,
		QueueGW:   retryingQGW,
		Ledger:    ledg,
		Registry:  registry,
		Engine:    engine,
		InvokeCli: invokeCli,
		App:       app,
		Resources: resources,
	}, nil
}

func buildStore(ctx context.Context, cfg *config.Config) (objectgw.Store, error) {
	switch config.ObjectStoreKind(cfg.ObjectStoreKind) {
	case config.ObjectStoreGCS:
		return objectgw.NewGCSStore(ctx, cfg.GCSBucket)
	case config.ObjectStoreFS:
		return objectgw.NewFSStore(cfg.FSDir)
	default:
		return nil, fmt.Errorf("unsupported object store kind %q", cfg.ObjectStoreKind)
	}
}

// LoadApplication reads and validates the application configuration
// document at path. Producing that document (parsing the source
// language's decorators/config block, running the external validator)
// is out of this module's scope (spec.md §1); this module only ever
// consumes the already-validated shape.
func LoadApplication(path string) (domain.Application, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Application{}, fmt.Errorf("read %s: %w", path, err)
	}
	var app domain.Application
	if err := json.Unmarshal(data, &app); err != nil {
		return domain.Application{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := app.Validate(); err != nil {
		return domain.Application{}, fmt.Errorf("validate %s: %w", path, err)
	}
	return app, nil
}

// InvokeEndpoint derives a component's invoke endpoint the same way
// resourcemap.Build's invokeEndpoint callback does: baseURL + "/invoke/" + name.
func InvokeEndpoint(baseURL, name string) string {
	return baseURL + "/invoke/" + name
}
