package queuegw

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGateway_SendReceiveDelete(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGateway()

	if err := g.Send(ctx, "input-a", []byte(`{"x":1}`)); err != nil {
		t.Fatalf("send: %v", err)
	}

	depth, err := g.ApproximateDepth(ctx, "input-a", 0)
	if err != nil {
		t.Fatalf("approximateDepth: %v", err)
	}
	if depth != 1 {
		t.Fatalf("depth = %d, want 1", depth)
	}

	msg, err := g.ReceiveOne(ctx, "input-a", time.Minute, 0)
	if err != nil {
		t.Fatalf("receiveOne: %v", err)
	}
	if msg == nil {
		t.Fatal("receiveOne returned nil, want a message")
	}
	if string(msg.Body) != `{"x":1}` {
		t.Fatalf("body = %q", msg.Body)
	}

	// claimed message stays invisible until visibility expires.
	again, err := g.ReceiveOne(ctx, "input-a", time.Minute, 0)
	if err != nil {
		t.Fatalf("receiveOne (claimed): %v", err)
	}
	if again != nil {
		t.Fatal("expected claimed message to stay invisible")
	}

	if err := g.Delete(ctx, "input-a", msg.ReceiptToken); err != nil {
		t.Fatalf("delete: %v", err)
	}

	depth, err = g.ApproximateDepth(ctx, "input-a", 0)
	if err != nil {
		t.Fatalf("approximateDepth after delete: %v", err)
	}
	if depth != 0 {
		t.Fatalf("depth after delete = %d, want 0", depth)
	}
}

func TestMemoryGateway_ReceiveOneEmptyIsNotError(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGateway()

	msg, err := g.ReceiveOne(ctx, "input-a", time.Minute, 0)
	if err != nil {
		t.Fatalf("receiveOne on empty queue returned error: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected nil message, got %+v", msg)
	}
}

func TestMemoryGateway_VisibilityExpiresAndIsReclaimable(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGateway()

	if err := g.Send(ctx, "input-a", []byte(`{}`)); err != nil {
		t.Fatalf("send: %v", err)
	}

	msg, err := g.ReceiveOne(ctx, "input-a", 10*time.Millisecond, 0)
	if err != nil || msg == nil {
		t.Fatalf("first receive failed: msg=%v err=%v", msg, err)
	}

	time.Sleep(20 * time.Millisecond)

	reclaimed, err := g.ReceiveOne(ctx, "input-a", time.Minute, 0)
	if err != nil {
		t.Fatalf("reclaim receive: %v", err)
	}
	if reclaimed == nil {
		t.Fatal("expected message to reappear after visibility expired")
	}
}
