package queuegw

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryGateway is an in-process Gateway used by tests and local-dev
// runs that don't want a Postgres instance. It implements the exact
// semantics ReceiveOne/Delete promise (visibility windows, claim
// ownership via receipt token) without any backing store.
type MemoryGateway struct {
	mu    sync.Mutex
	queue map[string][]*memMsg
}

type memMsg struct {
	id           string
	body         []byte
	visibleAt    time.Time
	createdAt    time.Time
	receiptToken string
}

// NewMemoryGateway returns an empty MemoryGateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{queue: make(map[string][]*memMsg)}
}

func (g *MemoryGateway) Send(ctx context.Context, queue string, payload []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := time.Now()
	g.queue[queue] = append(g.queue[queue], &memMsg{
		id:        uuid.NewString(),
		body:      append([]byte(nil), payload...),
		visibleAt: now,
		createdAt: now,
	})
	return nil
}

func (g *MemoryGateway) ReceiveOne(ctx context.Context, queue string, visibility, wait time.Duration) (*Message, error) {
	deadline := time.Now().Add(wait)
	for {
		if msg := g.claimOnce(queue, visibility); msg != nil {
			return msg, nil
		}
		if wait <= 0 || time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (g *MemoryGateway) claimOnce(queue string, visibility time.Duration) *Message {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for _, m := range g.queue[queue] {
		if m.visibleAt.After(now) {
			continue
		}
		m.visibleAt = now.Add(visibility)
		m.receiptToken = uuid.NewString()
		return &Message{Body: append([]byte(nil), m.body...), ReceiptToken: m.receiptToken}
	}
	return nil
}

func (g *MemoryGateway) Delete(ctx context.Context, queue, receiptToken string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	msgs := g.queue[queue]
	for i, m := range msgs {
		if m.receiptToken == receiptToken {
			g.queue[queue] = append(msgs[:i], msgs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (g *MemoryGateway) ApproximateDepth(ctx context.Context, queue string, retention time.Duration) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if retention <= 0 {
		return len(g.queue[queue]), nil
	}
	cutoff := time.Now().Add(-retention)
	count := 0
	for _, m := range g.queue[queue] {
		if m.createdAt.After(cutoff) {
			count++
		}
	}
	return count, nil
}

func (g *MemoryGateway) ReapStale(ctx context.Context, queue string, retention time.Duration) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cutoff := time.Now().Add(-retention)
	kept := g.queue[queue][:0]
	reaped := 0
	for _, m := range g.queue[queue] {
		if m.createdAt.Before(cutoff) {
			reaped++
			continue
		}
		kept = append(kept, m)
	}
	g.queue[queue] = kept
	return reaped, nil
}
