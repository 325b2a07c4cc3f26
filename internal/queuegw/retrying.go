package queuegw

import (
	"context"
	"time"

	"github.com/fluxplane/control-plane/internal/retry"
)

// WithRetry wraps a Gateway so Send, ReceiveOne, ApproximateDepth and
// ReapStale run through the Retry Harness. Delete passes through
// unwrapped, per spec.md §4.2.
func WithRetry(g Gateway) Gateway {
	return &retrying{inner: g}
}

type retrying struct {
	inner Gateway
}

func (r *retrying) Send(ctx context.Context, queue string, payload []byte) error {
	return retry.Do(ctx, "queuegw.send:"+queue, func(ctx context.Context) error {
		return r.inner.Send(ctx, queue, payload)
	})
}

func (r *retrying) ReceiveOne(ctx context.Context, queue string, visibility, wait time.Duration) (*Message, error) {
	var msg *Message
	err := retry.Do(ctx, "queuegw.receiveOne:"+queue, func(ctx context.Context) error {
		m, err := r.inner.ReceiveOne(ctx, queue, visibility, wait)
		if err != nil {
			return err
		}
		msg = m
		return nil
	})
	return msg, err
}

func (r *retrying) Delete(ctx context.Context, queue, receiptToken string) error {
	return r.inner.Delete(ctx, queue, receiptToken)
}

func (r *retrying) ApproximateDepth(ctx context.Context, queue string, retention time.Duration) (int, error) {
	var depth int
	err := retry.Do(ctx, "queuegw.approximateDepth:"+queue, func(ctx context.Context) error {
		d, err := r.inner.ApproximateDepth(ctx, queue, retention)
		if err != nil {
			return err
		}
		depth = d
		return nil
	})
	return depth, err
}

func (r *retrying) ReapStale(ctx context.Context, queue string, retention time.Duration) (int, error) {
	var reaped int
	err := retry.Do(ctx, "queuegw.reapStale:"+queue, func(ctx context.Context) error {
		n, err := r.inner.ReapStale(ctx, queue, retention)
		if err != nil {
			return err
		}
		reaped = n
		return nil
	})
	return reaped, err
}
