// Package ledger implements the Concurrency Ledger (spec.md §4.4): an
// increment/decrement protocol over a per-component queue whose
// approximate depth stands in for the live-invocation count. Grounded
// in the teacher's GenerationCoordinator claim/heartbeat pattern
// (internal/application/worker/coordinator.go), with the queue-as-counter
// idea generalized from "one job row" to "one empty message per live
// invocation."
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/fluxplane/control-plane/internal/queuegw"
)

// Ledger increments and decrements a component's concurrency counter
// and reports its approximate depth.
type Ledger struct {
	gw queuegw.Gateway
}

// New wraps a Gateway as a Ledger. Callers should pass a
// queuegw.WithRetry-wrapped Gateway so Increment/Decrement get the
// Retry Harness spec.md §4.4 requires.
func New(gw queuegw.Gateway) *Ledger {
	return &Ledger{gw: gw}
}

// Increment sends an empty message to component's ledger queue. Caller
// should record whether this succeeded (spec.md §4.5.4: "only if it
// succeeded will finalization decrement").
func (l *Ledger) Increment(ctx context.Context, queueName string) error {
	return l.gw.Send(ctx, queueName, []byte("{}"))
}

// Decrement receives one message from the ledger queue with the given
// long-poll wait and visibility timeout (which must be strictly
// positive — a zero value causes silent delete failures, spec.md §4.4)
// and deletes it if present. Absence of a message after long-poll is a
// soft error: logged here and never propagated to the caller.
func (l *Ledger) Decrement(ctx context.Context, queueName string, visibility, wait time.Duration) error {
	msg, err := l.gw.ReceiveOne(ctx, queueName, visibility, wait)
	if err != nil {
		slog.WarnContext(ctx, "ledger: decrement receive failed", "queue", queueName, "error", err)
		return nil
	}
	if msg == nil {
		slog.WarnContext(ctx, "ledger: decrement found no message, soft error", "queue", queueName)
		return nil
	}
	if err := l.gw.Delete(ctx, queueName, msg.ReceiptToken); err != nil {
		slog.WarnContext(ctx, "ledger: decrement delete failed", "queue", queueName, "error", err)
	}
	return nil
}

// ApproximateDepth returns the ledger queue's approximate depth — the
// component's live-invocation estimate. retention bounds the overcount
// a crashed worker's never-decremented increment can cause (spec.md
// §3, §4.4); <= 0 counts every row, unbounded.
func (l *Ledger) ApproximateDepth(ctx context.Context, queueName string, retention time.Duration) (int, error) {
	return l.gw.ApproximateDepth(ctx, queueName, retention)
}

// Reap deletes ledger rows on queueName older than retention, the
// physical cleanup counterpart to ApproximateDepth's retention filter.
// Callers treat a reap failure as non-fatal and log it — it only
// affects how tightly the overcount bound is enforced, not correctness
// of any single measurement.
func (l *Ledger) Reap(ctx context.Context, queueName string, retention time.Duration) (int, error) {
	return l.gw.ReapStale(ctx, queueName, retention)
}
