package routing

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fluxplane/control-plane/internal/domain"
	"github.com/fluxplane/control-plane/internal/queuegw"
)

func TestEvaluate_NoneIsAlwaysEmpty(t *testing.T) {
	got := Evaluate(t.Context(), NewRegistry(), domain.Routing{Kind: domain.RoutingNone}, nil, "x")
	if len(got) != 0 {
		t.Fatalf("none routing produced %v, want empty", got)
	}
}

func TestEvaluate_OneAndManySkipOnError(t *testing.T) {
	for _, rule := range []domain.Routing{
		{Kind: domain.RoutingOne, Target: "a"},
		{Kind: domain.RoutingMany, Targets: []string{"a", "b"}},
	} {
		got := Evaluate(t.Context(), NewRegistry(), rule, errors.New("boom"), "result")
		if len(got) != 0 {
			t.Fatalf("name-based routing on error produced %v, want empty (no data propagation on failure)", got)
		}
	}
}

func TestEvaluate_OneCarriesResultOnSuccess(t *testing.T) {
	rule := domain.Routing{Kind: domain.RoutingOne, Target: "b"}
	got := Evaluate(t.Context(), NewRegistry(), rule, nil, map[string]int{"x": 2})
	if len(got) != 1 || got[0].Target != "b" {
		t.Fatalf("got %v", got)
	}
}

func TestEvaluate_ExpressionRunsOnFailureAndDropsMalformed(t *testing.T) {
	reg := NewRegistry()
	reg.Register("myExpr", func(err error, data any) ([]domain.Dispatch, error) {
		return []domain.Dispatch{
			{Target: "a", Payload: map[string]int{"k": 1}},
			{Target: "", Payload: "dropped: empty target"},
			{Target: "b", Payload: map[string]int{"k": 2}},
		}, nil
	})

	rule := domain.Routing{Kind: domain.RoutingExpr, Expression: "myExpr"}
	got := Evaluate(t.Context(), reg, rule, errors.New("boom"), nil)

	if len(got) != 2 {
		t.Fatalf("expected 2 well-formed dispatches (malformed dropped), got %d: %v", len(got), got)
	}
	if got[0].Target != "a" || got[1].Target != "b" {
		t.Fatalf("unexpected targets: %v", got)
	}
}

func TestEvaluate_UnknownExpressionNameIsEmpty(t *testing.T) {
	got := Evaluate(t.Context(), NewRegistry(), domain.Routing{Kind: domain.RoutingExpr, Expression: "missing"}, nil, nil)
	if len(got) != 0 {
		t.Fatalf("got %v, want empty for unregistered expression", got)
	}
}

type fakeInvoker struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeInvoker) Invoke(ctx context.Context, endpoint string, payload any) error {
	f.mu.Lock()
	f.calls = append(f.calls, endpoint)
	f.mu.Unlock()
	return f.err
}

func TestEngine_Dispatch_MixedKindsBothOccur(t *testing.T) {
	app := domain.Application{Components: map[string]domain.Component{
		"a": {Name: "a", Kind: domain.KindFromMessage, MaxConcurrency: 1, Worker: domain.WorkerSpec{Timeout: 10_000_000_000, Handler: "h"}},
		"b": {Name: "b", Kind: domain.KindFromInvocation, Worker: domain.WorkerSpec{Timeout: 10_000_000_000, Handler: "h"}},
	}}
	resources := domain.ResourceMap{
		domain.InputQueueKey("a"):    "input-a",
		domain.InvokeEndpointKey("b"): "http://b.local/invoke",
	}

	qgw := queuegw.NewMemoryGateway()
	invoker := &fakeInvoker{}
	engine := New(NewRegistry(), qgw, invoker)

	dispatches := []domain.Dispatch{
		{Target: "a", Payload: map[string]int{"k": 1}},
		{Target: "b", Payload: map[string]int{"k": 2}},
	}
	if err := engine.Dispatch(t.Context(), app, resources, dispatches); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	depth, err := qgw.ApproximateDepth(t.Context(), "input-a", 0)
	if err != nil || depth != 1 {
		t.Fatalf("expected one message on input-a, depth=%d err=%v", depth, err)
	}
	if len(invoker.calls) != 1 || invoker.calls[0] != "http://b.local/invoke" {
		t.Fatalf("expected one invoke call to b's endpoint, got %v", invoker.calls)
	}
}

func TestEngine_Dispatch_UnknownTargetIsInvalidDestination(t *testing.T) {
	app := domain.Application{Components: map[string]domain.Component{}}
	engine := New(NewRegistry(), queuegw.NewMemoryGateway(), &fakeInvoker{})

	err := engine.Dispatch(t.Context(), app, domain.ResourceMap{}, []domain.Dispatch{{Target: "ghost"}})
	if !errors.Is(err, domain.ErrInvalidRoutingDestination) {
		t.Fatalf("err = %v, want ErrInvalidRoutingDestination", err)
	}
}
