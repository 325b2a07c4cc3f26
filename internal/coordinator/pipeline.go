// Package coordinator implements the Coordinator (spec.md §4.7): a
// single-pass handler that measures application status, computes and
// dispatches an invocation plan, and self-chains to form a control
// loop.
//
// The bounded-fanout/join-all shape for status measurement and
// dispatch is adapted from the teacher's Store.ListLists
// (internal/storage/gcs/store.go), which fans out a parallel read per
// object behind a concurrency-limiting semaphore and joins under a
// mutex; this module expresses the same shape with
// golang.org/x/sync/errgroup and golang.org/x/sync/semaphore in place
// of the teacher's hand-rolled channel semaphore, and go.uber.org/multierr
// to aggregate the per-target errors each join collects.
package coordinator

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

// confirmationText is the content written to the ConfirmationArtifact.
// Its presence, not its content, is what the Switchover Controller
// polls for.
const confirmationText = "confirmed"

// Pipeline drives one coordinator pass. A single instance is shared
// across invocations.
type Pipeline struct {
	Store          objectgw.Store
	ResourceMapKey string
	ConfirmKey     string
	Ledger         *ledger.Ledger
	App            domain.Application
	InvokeCli      routing.Invoker

	// Now and Sleep are overridable for tests; they default to
	// time.Now and time.Sleep.
	Now   func() time.Time
	Sleep func(time.Duration)
}

// New constructs a Pipeline with production clock defaults.
func New(store objectgw.Store, resourceMapKey, confirmKey string, lg *ledger.Ledger, app domain.Application, invoker routing.Invoker) *Pipeline {
	return &Pipeline{
		Store: store, ResourceMapKey: resourceMapKey, ConfirmKey: confirmKey,
		Ledger: lg, App: app, InvokeCli: invoker,
		Now: time.Now, Sleep: time.Sleep,
	}
}

// Handle is the coordinator's entry point; its signature matches
// wrapper.Handler so it can be hosted directly by the Worker Wrapper.
func (p *Pipeline) Handle(ctx context.Context, rawEvent json.RawMessage, lc wrapper.LifecycleContext) {
	start := p.now()

	var incoming domain.CoordinatorEvent
	if len(rawEvent) > 0 {
		_ = json.Unmarshal(rawEvent, &incoming)
	}
	outgoing := incoming.Next()

	// Step 1: load ResourceMap. Fatal on failure.
	resources, err := resourcemap.Load(ctx, p.Store, p.ResourceMapKey)
	if err != nil {
		lc.Fail(err)
		return
	}

	// Step 2: increment coordinator ledger. Fatal on failure.
	coordLedgerQueue, ok := resources.Lookup(domain.LedgerQueueKey(domain.CoordinatorName))
	if !ok {
		lc.Fail(domain.ErrInvalidRoutingDestination)
		return
	}
	incremented := false
	if err := p.Ledger.Increment(ctx, coordLedgerQueue); err != nil {
		lc.Fail(err)
		return
	}
	incremented = true

	var pipelineErr error

	// Step 3: measure application status.
	status := p.measureStatus(ctx, resources)

	// Step 4: ensure coordinator redundancy, skipped on generation 1.
	if outgoing.Generation != 1 {
		if observed := concurrencyOf(status, domain.CoordinatorName); observed != nil {
			target := p.App.Coordinator.CoordinatorConcurrency
			if *observed < target {
				need := target - *observed
				if err := p.seedCoordinators(ctx, resources, outgoing, need); err != nil {
					pipelineErr = err
				}
			}
		}
	}

	// Step 5: compute invocation plan and dispatch.
	rawCounts := planner.RawCounts(status, p.App.Coordinator.CoordinatorConcurrency)
	plan := planner.Split(rawCounts, p.App.Coordinator.MaxInvocationCount)
	if err := p.dispatch(ctx, resources, plan); err != nil {
		pipelineErr = err
	}

	// Step 6: sleep to interval, capped so at least 5s of the platform
	// time budget remains.
	elapsed := p.now().Sub(start)
	sleepFor := time.Duration(p.App.Coordinator.MinIntervalSeconds)*time.Second - elapsed
	if sleepFor < 0 {
		sleepFor = 0
	}
	if remaining := lc.TimeRemaining(); remaining-sleepFor < 5*time.Second {
		sleepFor = remaining - 5*time.Second
		if sleepFor < 0 {
			sleepFor = 0
		}
	}
	p.Sleep(sleepFor)

	// Step 7: decrement coordinator ledger (skipped if increment failed
	// — which it didn't, since we'd already have returned above).
	if incremented {
		if err := p.Ledger.Decrement(ctx, coordLedgerQueue, 300*time.Second, 0); err != nil {
			slog.ErrorContext(ctx, "coordinator: ledger decrement failed", "error", err)
		}
	}

	// Step 8: chain.
	chainErr := p.chain(ctx, resources, outgoing)
	if chainErr != nil {
		pipelineErr = chainErr
	}

	if outgoing.Generation == 1 && pipelineErr == nil {
		p.writeConfirmation(ctx)
	}

	lc.Done(pipelineErr, status)
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// measureStatus fans out one approximateDepth pair per component
// (including the two internal ones) behind a semaphore capped at
// maxApiConcurrency, joining all results — a failed individual
// measurement is logged and leaves its field nil rather than failing
// the whole pass (spec.md §4.7 step 3).
func (p *Pipeline) measureStatus(ctx context.Context, resources domain.ResourceMap) domain.ApplicationStatus {
	targets := make([]domain.Component, 0, len(p.App.Components)+2)
	targets = append(targets,
		domain.Component{Name: domain.CoordinatorName, Kind: domain.KindInternal},
		domain.Component{Name: domain.InvokerName, Kind: domain.KindInternal},
	)
	for _, c := range p.App.Components {
		targets = append(targets, c)
	}

	sem := semaphore.NewWeighted(int64(maxConcurrency(p.App.Coordinator.MaxAPIConcurrency)))
	var mu sync.Mutex
	out := make([]domain.ComponentStatus, 0, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)

			cs := p.measureOne(ctx, resources, target)
			mu.Lock()
			out = append(out, cs)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return domain.ApplicationStatus{Components: out}
}

func (p *Pipeline) measureOne(ctx context.Context, resources domain.ResourceMap, c domain.Component) domain.ComponentStatus {
	cs := domain.ComponentStatus{Name: c.Name, MaxConcurrency: c.MaxConcurrency}

	if queueName, ok := resources.Lookup(domain.LedgerQueueKey(c.Name)); ok {
		retention := c.LedgerRetention()
		if depth, err := p.Ledger.ApproximateDepth(ctx, queueName, retention); err != nil {
			slog.WarnContext(ctx, "coordinator: concurrency measurement failed", "component", c.Name, "error", err)
		} else {
			cs.Concurrency = &depth
		}
		if reaped, err := p.Ledger.Reap(ctx, queueName, retention); err != nil {
			slog.WarnContext(ctx, "coordinator: ledger reap failed", "component", c.Name, "error", err)
		} else if reaped > 0 {
			slog.InfoContext(ctx, "coordinator: reaped stale ledger rows", "component", c.Name, "count", reaped)
		}
	}

	if c.Kind == domain.KindFromMessage {
		if queueName, ok := resources.Lookup(domain.InputQueueKey(c.Name)); ok {
			if depth, err := p.Ledger.ApproximateDepth(ctx, queueName, 0); err != nil {
				slog.WarnContext(ctx, "coordinator: queued-messages measurement failed", "component", c.Name, "error", err)
			} else {
				cs.QueuedMessages = &depth
			}
		}
	}

	return cs
}

func concurrencyOf(status domain.ApplicationStatus, name string) *int {
	for _, c := range status.Components {
		if c.Name == name {
			return c.Concurrency
		}
	}
	return nil
}

// seedCoordinators issues `need` additional coordinator invocations
// carrying the current (already-incremented) event, each of which will
// be incremented again by its recipient.
func (p *Pipeline) seedCoordinators(ctx context.Context, resources domain.ResourceMap, event domain.CoordinatorEvent, need int) error {
	endpoint, ok := resources.Lookup(domain.InvokeEndpointKey(domain.CoordinatorName))
	if !ok {
		return &domain.ChainInvocationFailed{Target: domain.CoordinatorName, Err: domain.ErrInvalidRoutingDestination}
	}
	var errs error
	for i := 0; i < need; i++ {
		if err := p.InvokeCli.Invoke(ctx, endpoint, event); err != nil {
			slog.ErrorContext(ctx, "coordinator: redundancy invocation failed", "error", err)
			errs = multierr.Append(errs, &domain.ChainInvocationFailed{Target: domain.CoordinatorName, Err: err})
		}
	}
	return errs
}

// dispatch implements spec.md §4.9: local direct invocations and
// remote Invoker hand-offs, fanned out behind a maxApiConcurrency
// semaphore; individual errors are logged and aggregated, never
// short-circuiting the remaining dispatches.
func (p *Pipeline) dispatch(ctx context.Context, resources domain.ResourceMap, plan domain.InvocationPlan) error {
	sem := semaphore.NewWeighted(int64(maxConcurrency(p.App.Coordinator.MaxAPIConcurrency)))
	var mu sync.Mutex
	var errs error
	g, gctx := errgroup.WithContext(ctx)

	record := func(err error) {
		if err == nil {
			return
		}
		slog.ErrorContext(ctx, "coordinator: dispatch failed", "error", err)
		mu.Lock()
		errs = multierr.Append(errs, err)
		mu.Unlock()
	}

	for _, lc := range plan.Local {
		lc := lc
		endpoint, ok := resources.Lookup(domain.InvokeEndpointKey(lc.Name))
		if !ok {
			record(&domain.ChainInvocationFailed{Target: lc.Name, Err: domain.ErrInvalidRoutingDestination})
			continue
		}
		for i := 0; i < lc.Count; i++ {
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return nil
				}
				defer sem.Release(1)
				if err := p.InvokeCli.Invoke(ctx, endpoint, struct{}{}); err != nil {
					record(&domain.ChainInvocationFailed{Target: lc.Name, Err: err})
				}
				return nil
			})
		}
	}

	invokerEndpoint, invokerOK := resources.Lookup(domain.InvokeEndpointKey(domain.InvokerName))
	for _, bin := range plan.Remote {
		bin := bin
		if !invokerOK {
			record(&domain.ChainInvocationFailed{Target: domain.InvokerName, Err: domain.ErrInvalidRoutingDestination})
			continue
		}
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil
			}
			defer sem.Release(1)
			if err := p.InvokeCli.Invoke(ctx, invokerEndpoint, domain.InvokerEvent{Components: bin}); err != nil {
				record(&domain.ChainInvocationFailed{Target: domain.InvokerName, Err: err})
			}
			return nil
		})
	}

	_ = g.Wait()
	return errs
}

// chain asynchronously invokes the coordinator function with the
// incremented event, forming the self-chaining control loop.
func (p *Pipeline) chain(ctx context.Context, resources domain.ResourceMap, event domain.CoordinatorEvent) error {
	endpoint, ok := resources.Lookup(domain.InvokeEndpointKey(domain.CoordinatorName))
	if !ok {
		return &domain.ChainInvocationFailed{Target: domain.CoordinatorName, Err: domain.ErrInvalidRoutingDestination}
	}
	if err := p.InvokeCli.Invoke(ctx, endpoint, event); err != nil {
		return &domain.ChainInvocationFailed{Target: domain.CoordinatorName, Err: err}
	}
	return nil
}

// writeConfirmation writes the ConfirmationArtifact at most once per
// deployment (spec.md §7 item 5): a prior write by an earlier
// generation-1 coordinator is detected via Exists and skipped.
func (p *Pipeline) writeConfirmation(ctx context.Context) {
	exists, err := p.Store.Exists(ctx, p.ConfirmKey)
	if err != nil {
		slog.ErrorContext(ctx, "coordinator: confirmation existence check failed", "error", err)
		return
	}
	if exists {
		return
	}
	if err := p.Store.PutText(ctx, p.ConfirmKey, confirmationText, "text/plain"); err != nil {
		slog.ErrorContext(ctx, "coordinator: confirmation write failed", "error", err)
	}
}

func maxConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
