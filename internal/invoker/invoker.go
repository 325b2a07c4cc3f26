// Package invoker implements the Invoker (spec.md §4.10): a pure
// fan-out amplifier. It receives a bin of per-component invocation
// counts too large for a single coordinator pass's API budget and
// redistributes them, recursively splitting into further Invoker
// hand-offs if the bin is still too large for this instance's own
// budget.
package invoker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fluxplane/control-plane/internal/domain"
	"github.com/fluxplane/control-plane/internal/ledger"
	"github.com/fluxplane/control-plane/internal/objectgw"
	"github.com/fluxplane/control-plane/internal/planner"
	"github.com/fluxplane/control-plane/internal/resourcemap"
	"github.com/fluxplane/control-plane/internal/routing"
	"github.com/fluxplane/control-plane/internal/wrapper"
)

// Amplifier is the Invoker's entry point. One instance is shared across
// invocations.
type Amplifier struct {
	Store              objectgw.Store
	ResourceMapKey      string
	Ledger              *ledger.Ledger
	App                 domain.Application
	InvokeCli           routing.Invoker
	MaxInvocationCount  int

	// MaxAPIConcurrency caps how many dispatches run at once, reusing
	// the coordinator's own budget (spec.md §4.10: "the Invoker must
	// reuse maxApiConcurrency").
	MaxAPIConcurrency int
}

// New constructs an Amplifier.
func New(store objectgw.Store, resourceMapKey string, lg *ledger.Ledger, app domain.Application, invoker routing.Invoker, maxInvocationCount, maxAPIConcurrency int) *Amplifier {
	return &Amplifier{
		Store: store, ResourceMapKey: resourceMapKey, Ledger: lg,
		App: app, InvokeCli: invoker, MaxInvocationCount: maxInvocationCount,
		MaxAPIConcurrency: maxAPIConcurrency,
	}
}

// Handle is the Invoker's entry point; its signature matches
// wrapper.Handler so it can be hosted directly by the Worker Wrapper.
func (a *Amplifier) Handle(ctx context.Context, rawEvent json.RawMessage, lc wrapper.LifecycleContext) {
	// Step 1: load ResourceMap. Fatal on failure.
	resources, err := resourcemap.Load(ctx, a.Store, a.ResourceMapKey)
	if err != nil {
		lc.Fail(err)
		return
	}

	// Step 2: increment invoker ledger. Non-fatal.
	incremented := false
	ledgerQueue, ok := resources.Lookup(domain.LedgerQueueKey(domain.InvokerName))
	if ok {
		if err := a.Ledger.Increment(ctx, ledgerQueue); err != nil {
			slog.WarnContext(ctx, "invoker: ledger increment failed", "error", err)
		} else {
			incremented = true
		}
	}

	var event domain.InvokerEvent
	if len(rawEvent) > 0 {
		if err := json.Unmarshal(rawEvent, &event); err != nil {
			slog.WarnContext(ctx, "invoker: failed to decode event, defaulting to empty", "error", err)
		}
	}

	// Re-pack the received components in case this bin still exceeds
	// this instance's own invocation budget — the same splitter the
	// coordinator uses, applied here with no further coordinatorConcurrency
	// division since the counts already reflect one coordinator's share.
	plan := planner.Split(event.Components, a.MaxInvocationCount)
	dispatchErr := a.dispatch(ctx, resources, plan)

	if incremented {
		if err := a.Ledger.Decrement(ctx, ledgerQueue, 300*time.Second, 0); err != nil {
			slog.ErrorContext(ctx, "invoker: ledger decrement failed", "error", err)
		}
	}

	lc.Done(dispatchErr, event.Components)
}

// dispatch issues the same local/remote dispatch spec.md §4.9
// describes, recursing into further Invoker invocations for any
// remaining remote bins, fanned out behind a maxApiConcurrency
// semaphore exactly like the coordinator's own dispatch (spec.md §4.10:
// the Invoker reuses that same budget).
func (a *Amplifier) dispatch(ctx context.Context, resources domain.ResourceMap, plan domain.InvocationPlan) error {
	sem := semaphore.NewWeighted(int64(maxConcurrency(a.MaxAPIConcurrency)))
	var mu sync.Mutex
	var errs error
	g, gctx := errgroup.WithContext(ctx)

	record := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = multierr.Append(errs, err)
		mu.Unlock()
	}

	for _, count := range plan.Local {
		count := count
		endpoint, ok := resources.Lookup(domain.InvokeEndpointKey(count.Name))
		if !ok {
			slog.ErrorContext(ctx, "invoker: no invoke endpoint for local dispatch", "component", count.Name)
			record(&domain.ChainInvocationFailed{Target: count.Name, Err: domain.ErrInvalidRoutingDestination})
			continue
		}
		for i := 0; i < count.Count; i++ {
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return nil
				}
				defer sem.Release(1)
				if err := a.InvokeCli.Invoke(ctx, endpoint, struct{}{}); err != nil {
					slog.ErrorContext(ctx, "invoker: local dispatch failed", "component", count.Name, "error", err)
					record(&domain.ChainInvocationFailed{Target: count.Name, Err: err})
				}
				return nil
			})
		}
	}

	if len(plan.Remote) > 0 {
		invokerEndpoint, ok := resources.Lookup(domain.InvokeEndpointKey(domain.InvokerName))
		if !ok {
			slog.ErrorContext(ctx, "invoker: no invoke endpoint for recursive invoker hand-off")
			record(&domain.ChainInvocationFailed{Target: domain.InvokerName, Err: domain.ErrInvalidRoutingDestination})
		} else {
			for _, bin := range plan.Remote {
				bin := bin
				g.Go(func() error {
					if err := sem.Acquire(gctx, 1); err != nil {
						return nil
					}
					defer sem.Release(1)
					if err := a.InvokeCli.Invoke(ctx, invokerEndpoint, domain.InvokerEvent{Components: bin}); err != nil {
						slog.ErrorContext(ctx, "invoker: recursive hand-off failed", "error", err)
						record(&domain.ChainInvocationFailed{Target: domain.InvokerName, Err: err})
					}
					return nil
				})
			}
		}
	}

	_ = g.Wait()
	return errs
}

func maxConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
