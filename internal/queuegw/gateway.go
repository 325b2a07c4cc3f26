// Package queuegw is the Queue Gateway (spec.md §4.2): a thin
// abstraction over a managed queue service providing send,
// receive-one-with-visibility-timeout-and-long-poll, delete-by-receipt
// and approximate-depth. Every operation except Delete runs through the
// Retry Harness; Delete is deliberately not retried — a failed delete
// lets the message reappear after visibility expires, which is the
// intended at-least-once recovery path (spec.md §4.2, §8 property 2).
package queuegw

import (
	"context"
	"time"
)

// Message is one received queue entry: its raw JSON body and the
// opaque receipt token needed to delete it.
type Message struct {
	Body         []byte
	ReceiptToken string
}

// Gateway is implemented by every queue backend this module ships
// (Postgres today; an in-memory fake for tests).
type Gateway interface {
	// Send enqueues payload (already JSON-encoded) onto queue.
	Send(ctx context.Context, queue string, payload []byte) error

	// ReceiveOne claims at most one message from queue. visibility is
	// the duration the claimed message stays invisible to other
	// receivers; wait is the long-poll budget. A nil return with no
	// error means the long-poll elapsed with nothing to claim — this is
	// not an error (spec.md §4.2).
	ReceiveOne(ctx context.Context, queue string, visibility, wait time.Duration) (*Message, error)

	// Delete removes the message identified by receiptToken from queue.
	// Not retried by the gateway; callers must not retry it either.
	Delete(ctx context.Context, queue, receiptToken string) error

	// ApproximateDepth returns the queue's approximate message count —
	// the live-concurrency estimate for ledger queues (spec.md §3, §4.4).
	// retention, when > 0, excludes rows older than retention from the
	// count: a crashed worker's ledger-increment message is never
	// decremented, so without this a single crash would inflate the
	// concurrency estimate forever. retention <= 0 counts every row,
	// unbounded — the right choice for a backlog depth that isn't
	// subject to the ledger's claim/release protocol.
	ApproximateDepth(ctx context.Context, queue string, retention time.Duration) (int, error)

	// ReapStale deletes rows on queue older than retention and reports
	// how many were removed. Used to bound the Concurrency Ledger's
	// table growth from uncleaned crashes (spec.md §3, §4.4); retention
	// is sized off the owning component's worker timeout by the caller.
	ReapStale(ctx context.Context, queue string, retention time.Duration) (int, error)
}
