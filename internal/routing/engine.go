// Package routing implements the Routing Engine (spec.md §4.6): given
// an (error, result) outcome and a component's routing rule, it
// produces a list of {target, payload} dispatch pairs and sends each to
// its target's input queue or invoke endpoint.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/fluxplane/control-plane/internal/domain"
	"github.com/fluxplane/control-plane/internal/queuegw"
)

func encodeJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("routing: marshal payload: %w", err)
	}
	return data, nil
}

// Invoker sends a fire-and-forget event-style invocation to a
// FromInvocation target. Implemented by internal/invokeclient.
type Invoker interface {
	Invoke(ctx context.Context, endpoint string, payload any) error
}

// Engine evaluates routing rules and dispatches their results.
type Engine struct {
	Registry   *Registry
	QueueGW    queuegw.Gateway
	InvokeCli  Invoker
}

// New constructs an Engine.
func New(registry *Registry, qgw queuegw.Gateway, invoker Invoker) *Engine {
	return &Engine{Registry: registry, QueueGW: qgw, InvokeCli: invoker}
}

// Evaluate produces the dispatch list for a routing rule given the
// wrapped worker's outcome (spec.md §4.6, §9 Open Question (a)):
//   - none: empty.
//   - one/many: empty if err != nil (no data propagation on failure);
//     otherwise one pair per name carrying result unchanged.
//   - expr: always invoked, even on failure, and may return any number
//     of well-formed entries; malformed ones (empty target) are dropped.
func Evaluate(ctx context.Context, registry *Registry, rule domain.Routing, err error, result any) []domain.Dispatch {
	switch rule.Kind {
	case domain.RoutingNone:
		return nil
	case domain.RoutingOne:
		if err != nil {
			return nil
		}
		return []domain.Dispatch{{Target: rule.Target, Payload: result}}
	case domain.RoutingMany:
		if err != nil {
			return nil
		}
		out := make([]domain.Dispatch, 0, len(rule.Targets))
		for _, name := range rule.Targets {
			out = append(out, domain.Dispatch{Target: name, Payload: result})
		}
		return out
	case domain.RoutingExpr:
		expr, ok := registry.Lookup(rule.Expression)
		if !ok {
			slog.ErrorContext(ctx, "routing: unknown expression", "name", rule.Expression)
			return nil
		}
		dispatches, exprErr := expr(err, result)
		if exprErr != nil {
			slog.ErrorContext(ctx, "routing: expression evaluation failed", "name", rule.Expression, "error", exprErr)
			return nil
		}
		out := make([]domain.Dispatch, 0, len(dispatches))
		for _, d := range dispatches {
			if d.Target == "" {
				continue
			}
			out = append(out, d)
		}
		return out
	default:
		return nil
	}
}

// Dispatch sends every pair in dispatches to its resolved target,
// concurrently, per spec.md §4.6's "dispatch them concurrently" and
// §4.9's "join-all, errors logged, not short-circuited" rule. It
// returns the aggregated dispatch errors, if any — the caller (wrapper
// finalization) upgrades the outcome to fail on a non-nil return,
// preserving an already-failing outcome's original error per
// §4.5.3/§7.
func (e *Engine) Dispatch(ctx context.Context, app domain.Application, resources domain.ResourceMap, dispatches []domain.Dispatch) error {
	var mu sync.Mutex
	var errs error
	g, gctx := errgroup.WithContext(ctx)

	for _, d := range dispatches {
		d := d
		g.Go(func() error {
			if err := e.dispatchOne(gctx, app, resources, d); err != nil {
				slog.ErrorContext(gctx, "routing: dispatch failed", "target", d.Target, "error", err)
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return errs
}

func (e *Engine) dispatchOne(ctx context.Context, app domain.Application, resources domain.ResourceMap, d domain.Dispatch) error {
	target, lookupErr := app.Lookup(d.Target)
	if lookupErr != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidRoutingDestination, d.Target)
	}

	switch target.Kind {
	case domain.KindFromMessage:
		payload, err := encodeJSON(d.Payload)
		if err != nil {
			return err
		}
		queueName, ok := resources.Lookup(domain.InputQueueKey(d.Target))
		if !ok {
			return fmt.Errorf("%w: no input queue resource for %s", domain.ErrInvalidRoutingDestination, d.Target)
		}
		return e.QueueGW.Send(ctx, queueName, payload)
	case domain.KindFromInvocation:
		endpoint, ok := resources.Lookup(domain.InvokeEndpointKey(d.Target))
		if !ok {
			return fmt.Errorf("%w: no invoke endpoint resource for %s", domain.ErrInvalidRoutingDestination, d.Target)
		}
		return e.InvokeCli.Invoke(ctx, endpoint, d.Payload)
	default:
		return fmt.Errorf("%w: %s is kind %s", domain.ErrInvalidRoutingDestination, d.Target, target.Kind)
	}
}

