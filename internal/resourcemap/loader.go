// Package resourcemap loads and publishes the immutable, per-invocation
// ResourceMap (spec.md §2.3, §3): a read-only snapshot mapping symbolic
// component names to concrete queue/function identifiers, loaded once
// per invocation via the Object Store Gateway.
package resourcemap

import (
	"context"
	"fmt"

	"github.com/fluxplane/control-plane/internal/domain"
	"github.com/fluxplane/control-plane/internal/objectgw"
)

// Load reads the ResourceMap from the well-known object key. A failure
// here is fatal to the invoking component — spec.md §4.5.1, §4.7 step 1,
// §4.10 all treat ResourceMap load failure as an immediate abort with
// no ledger touch.
func Load(ctx context.Context, store objectgw.Store, key string) (domain.ResourceMap, error) {
	var m domain.ResourceMap
	if err := store.GetJSON(ctx, key, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrResourceMapLoadFailed, key, err)
	}
	return m, nil
}

// Publish writes map to the well-known object key. Used by the
// Switchover Controller (spec.md §4.11 step (b)) after provisioning.
func Publish(ctx context.Context, store objectgw.Store, key string, m domain.ResourceMap) error {
	if err := store.PutJSON(ctx, key, m); err != nil {
		return fmt.Errorf("resourcemap: publish %s: %w", key, err)
	}
	return nil
}

// Build assembles a ResourceMap from an Application's declared
// components: every declared component, plus the Coordinator and the
// Invoker, gets an invoke-endpoint entry and a ledger queue entry, and
// every FromMessage component additionally gets an input queue entry.
// This is the shape the Switchover Controller derives from
// provisioning outputs (spec.md §4.11 step (a)); here it is derived
// from the already-typed Application instead of raw provisioning JSON,
// since the provisioning collaborator itself is out of scope.
func Build(app domain.Application, invokeEndpoint func(name string) string) domain.ResourceMap {
	m := make(domain.ResourceMap)

	for _, internal := range []string{domain.CoordinatorName, domain.InvokerName} {
		m[domain.InvokeEndpointKey(internal)] = invokeEndpoint(internal)
		m[domain.LedgerQueueKey(internal)] = internal // queue name == component name for this deployment shape
	}

	for name, c := range app.Components {
		m[domain.InvokeEndpointKey(name)] = invokeEndpoint(name)
		m[domain.LedgerQueueKey(name)] = c.LedgerQueueName()
		if c.Kind == domain.KindFromMessage {
			m[domain.InputQueueKey(name)] = c.InputQueueName()
		}
	}
	return m
}
