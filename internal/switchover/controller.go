// Package switchover implements the Deployment Handshake and
// Switchover Controller (spec.md §4.11): the post-provisioning sequence
// that publishes the ResourceMap, seeds the first coordinator
// generation, waits for the Deployment Handshake's ConfirmationArtifact,
// and finally runs the user's optional switchover hook. It is invoked
// by the deployment collaborator, not by the pipeline itself.
package switchover

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxplane/control-plane/internal/domain"
	"github.com/fluxplane/control-plane/internal/objectgw"
	"github.com/fluxplane/control-plane/internal/resourcemap"
	"github.com/fluxplane/control-plane/internal/routing"
)

// Controller drives the switchover sequence.
type Controller struct {
	Store          objectgw.Store
	ResourceMapKey string
	ConfirmKey     string
	InvokeCli      routing.Invoker

	Sleep func(time.Duration)
	Now   func() time.Time
}

// New constructs a Controller with production clock defaults.
func New(store objectgw.Store, resourceMapKey, confirmKey string, invoker routing.Invoker) *Controller {
	return &Controller{
		Store: store, ResourceMapKey: resourceMapKey, ConfirmKey: confirmKey,
		InvokeCli: invoker, Sleep: time.Sleep, Now: time.Now,
	}
}

// Hook is the user's optional post-switchover callback.
type Hook func(ctx context.Context) error

// Run executes the sequence described by spec.md §4.11. resources is
// the ResourceMap built from provisioning outputs (step a); app
// supplies coordinatorConcurrency and minInterval for the seeding
// cadence. Any step error aborts the chain and skips hook.
func (c *Controller) Run(ctx context.Context, app domain.Application, resources domain.ResourceMap, hook Hook) error {
	// (a)+(b): publish the ResourceMap.
	if err := resourcemap.Publish(ctx, c.Store, c.ResourceMapKey, resources); err != nil {
		return fmt.Errorf("switchover: publish resource map: %w", err)
	}

	// (c): seed coordinatorConcurrency coordinator invocations, spaced
	// evenly across minInterval.
	if err := c.seedCoordinators(ctx, app, resources); err != nil {
		return fmt.Errorf("switchover: seed coordinators: %w", err)
	}

	// (d): poll for the ConfirmationArtifact with a 2s cadence, up to
	// 2*(minInterval+1) seconds.
	if err := c.awaitConfirmation(ctx, app); err != nil {
		return fmt.Errorf("switchover: await confirmation: %w", err)
	}

	// (e): run the user's optional switchover hook.
	if hook != nil {
		if err := hook(ctx); err != nil {
			return fmt.Errorf("switchover: hook: %w", err)
		}
	}
	return nil
}

func (c *Controller) seedCoordinators(ctx context.Context, app domain.Application, resources domain.ResourceMap) error {
	endpoint, ok := resources.Lookup(domain.InvokeEndpointKey(domain.CoordinatorName))
	if !ok {
		return domain.ErrInvalidRoutingDestination
	}

	n := app.Coordinator.CoordinatorConcurrency
	if n < 1 {
		n = 1
	}
	interval := time.Duration(app.Coordinator.MinIntervalSeconds) * time.Second
	spacing := time.Duration(0)
	if n > 1 {
		spacing = interval / time.Duration(n)
	}

	for i := 0; i < n; i++ {
		if err := c.InvokeCli.Invoke(ctx, endpoint, domain.CoordinatorEvent{}); err != nil {
			return err
		}
		if i < n-1 && spacing > 0 {
			c.Sleep(spacing)
		}
	}
	return nil
}

func (c *Controller) awaitConfirmation(ctx context.Context, app domain.Application) error {
	deadline := c.Now().Add(2 * time.Duration(app.Coordinator.MinIntervalSeconds+1) * time.Second)
	for {
		exists, err := c.Store.Exists(ctx, c.ConfirmKey)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		if c.Now().After(deadline) {
			return fmt.Errorf("confirmation artifact not observed within deadline")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		c.Sleep(2 * time.Second)
	}
}
