// Package wrapper implements the Worker Wrapper (spec.md §4.5), the
// most subtle component in the system: it replaces the user-supplied
// worker's entry point, establishes per-invocation state, fetches the
// input event, invokes the original handler through a *wrapped*
// lifecycle context that intercepts its three completion channels, and
// drives finalization exactly once.
//
// Control flow here is grounded in the teacher's GenerationWorker
// (internal/application/worker/generation_worker.go): claim → execute
// with panic recovery → route the outcome to completion handling. The
// ledger increment/decrement bracketing and ownership-scoped delete
// replace that file's availability-timeout/heartbeat machinery, which
// has no equivalent in this spec — FromMessage visibility here is a
// single receive-and-delete, not a long-running heartbeat lease.
package wrapper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/fluxplane/control-plane/internal/domain"
	"github.com/fluxplane/control-plane/internal/ledger"
	"github.com/fluxplane/control-plane/internal/objectgw"
	"github.com/fluxplane/control-plane/internal/queuegw"
	"github.com/fluxplane/control-plane/internal/routing"
)

// Handler is the user-supplied worker's entry signature: it receives
// its input event and a lifecycle context it must call exactly one of
// Succeed/Fail/Done on (calling more than one, or more than once, is
// safe — only the first call is observed).
type Handler func(ctx context.Context, event json.RawMessage, lc LifecycleContext)

// Wrapper holds the gateways and routing engine every wrapped
// invocation needs. One Wrapper instance is shared across invocations
// (it holds no per-invocation state itself — see invocation below for
// what does).
type Wrapper struct {
	Store          objectgw.Store
	ResourceMapKey string
	QueueGW        queuegw.Gateway
	Ledger         *ledger.Ledger
	Engine         *routing.Engine
	App            domain.Application
}

// invocation is the explicit per-invocation context spec.md §9's
// design note calls for in place of the source's module-level
// `resourceMap`/`wrappedContext`/`receiptToken`/`incremented` globals.
type invocation struct {
	resources   domain.ResourceMap
	receipt     string
	hasReceipt  bool
	incremented bool
}

// Wrap is the wrapper's entry point. component is the component being
// invoked; invocationEvent is the payload for a FromInvocation
// component (ignored for FromMessage, which fetches its own input).
// original is the caller's lifecycle context — its Succeed/Fail/Done is
// called exactly once, with the finalized outcome's mode and
// arguments, per spec.md §4.5.3 step 4.
func (w *Wrapper) Wrap(ctx context.Context, component domain.Component, invocationEvent json.RawMessage, original LifecycleContext, handler Handler) {
	inv := &invocation{}

	// Step 1: load ResourceMap. Fatal on failure — nothing else is safe
	// to attempt (spec.md §4.5.1 step 1).
	resources, err := loadResourceMap(ctx, w.Store, w.ResourceMapKey)
	if err != nil {
		slog.ErrorContext(ctx, "wrapper: resource map load failed, aborting", "component", component.Name, "error", err)
		original.Fail(err)
		return
	}
	inv.resources = resources

	// Ledger bracketing (spec.md §4.5.4): increment before input
	// acquisition; record whether it succeeded so finalization knows
	// whether to decrement. A failed increment is logged, not fatal.
	ledgerQueue, ok := resources.Lookup(domain.LedgerQueueKey(component.Name))
	if ok {
		if err := w.Ledger.Increment(ctx, ledgerQueue); err != nil {
			slog.WarnContext(ctx, "wrapper: ledger increment failed", "component", component.Name, "error", err)
		} else {
			inv.incremented = true
		}
	}

	// Step 2: acquire the input event.
	event, acquireErr := w.acquireEvent(ctx, component, invocationEvent, inv)
	if acquireErr != nil {
		w.finalize(ctx, component, inv, Outcome{Mode: ModeFail, Err: acquireErr}, original)
		return
	}

	// Step 3: invoke the user handler through a wrapped lifecycle
	// context, recovering any panic as a synthesized `fail` — this is
	// this module's rendering of the source's process-global
	// last-resort uncaught-exception handler (spec.md §4.5.1 step 2).
	outcomeCh := make(chan Outcome, 1)
	wrapped := newWrappedContext(original, func(o Outcome) { outcomeCh <- o })

	go func() {
		defer func() {
			if r := recover(); r != nil {
				wrapped.Fail(PanicError{Value: r, StackTrace: string(debug.Stack())})
			}
		}()
		handler(ctx, event, wrapped)
	}()

	outcome := <-outcomeCh
	w.finalize(ctx, component, inv, outcome, original)
}

// acquireEvent implements spec.md §4.5.2.
func (w *Wrapper) acquireEvent(ctx context.Context, component domain.Component, invocationEvent json.RawMessage, inv *invocation) (json.RawMessage, error) {
	if component.Kind != domain.KindFromMessage {
		return invocationEvent, nil
	}

	queueName, ok := inv.resources.Lookup(domain.InputQueueKey(component.Name))
	if !ok {
		return nil, fmt.Errorf("%w: no input queue resource for %s", domain.ErrInvalidRoutingDestination, component.Name)
	}

	msg, err := w.QueueGW.ReceiveOne(ctx, queueName, component.Worker.Timeout, time.Duration(component.QueueWaitSeconds)*time.Second)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, domain.ErrNoInputMessage
	}
	inv.receipt = msg.ReceiptToken
	inv.hasReceipt = true
	return json.RawMessage(msg.Body), nil
}

// finalize implements spec.md §4.5.3: route, delete, decrement, forward
// — each step unconditional, each step's error logged and non-fatal to
// the remaining steps, in strict order.
func (w *Wrapper) finalize(ctx context.Context, component domain.Component, inv *invocation, outcome Outcome, original LifecycleContext) {
	isSuccess := outcome.Mode == ModeSucceed || (outcome.Mode == ModeDone && outcome.Err == nil)

	// 1. Route the result.
	var routeErr error
	var routeErrArg error
	if outcome.Mode == ModeFail || (outcome.Mode == ModeDone && outcome.Err != nil) {
		routeErrArg = outcome.Err
	}
	dispatches := routing.Evaluate(ctx, w.Engine.Registry, component.Routing, routeErrArg, outcome.Result)
	if len(dispatches) > 0 {
		routeErr = w.Engine.Dispatch(ctx, w.App, inv.resources, dispatches)
		if routeErr != nil {
			slog.ErrorContext(ctx, "wrapper: finalization: routing failed", "component", component.Name, "error", routeErr)
		}
	}

	// 2. Delete the input message, only on success and only for
	// FromMessage components.
	if isSuccess && component.Kind == domain.KindFromMessage && inv.hasReceipt {
		queueName, ok := inv.resources.Lookup(domain.InputQueueKey(component.Name))
		if ok {
			if err := w.QueueGW.Delete(ctx, queueName, inv.receipt); err != nil {
				slog.ErrorContext(ctx, "wrapper: finalization: input message delete failed", "component", component.Name, "error", err)
			}
		}
	}

	// 3. Decrement the ledger, unconditionally, but only if the
	// entry-time increment succeeded.
	if inv.incremented {
		if ledgerQueue, ok := inv.resources.Lookup(domain.LedgerQueueKey(component.Name)); ok {
			if err := w.Ledger.Decrement(ctx, ledgerQueue, component.Worker.Timeout, time.Duration(component.QueueWaitSeconds)*time.Second); err != nil {
				slog.ErrorContext(ctx, "wrapper: finalization: ledger decrement failed", "component", component.Name, "error", err)
			}
		}
	}

	// 4. Forward to the original lifecycle context. A routing error
	// upgrades a success outcome to fail; an already-failing outcome
	// keeps its original error (spec.md §4.5.3 step 4, §7).
	finalMode, finalErr, finalResult := outcome.Mode, outcome.Err, outcome.Result
	if routeErr != nil && finalMode != ModeFail {
		finalMode = ModeFail
		finalErr = routeErr
	}

	switch finalMode {
	case ModeSucceed:
		original.Succeed(finalResult)
	case ModeFail:
		original.Fail(finalErr)
	case ModeDone:
		original.Done(finalErr, finalResult)
	}
}

func loadResourceMap(ctx context.Context, store objectgw.Store, key string) (domain.ResourceMap, error) {
	var m domain.ResourceMap
	if err := store.GetJSON(ctx, key, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrResourceMapLoadFailed, key, err)
	}
	return m, nil
}
