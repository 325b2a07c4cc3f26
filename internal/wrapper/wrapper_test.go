package wrapper

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fluxplane/control-plane/internal/domain"
	"github.com/fluxplane/control-plane/internal/ledger"
	"github.com/fluxplane/control-plane/internal/queuegw"
	"github.com/fluxplane/control-plane/internal/routing"
)

// fakeStore is a minimal in-memory objectgw.Store good enough to host a
// ResourceMap for wrapper tests.
type fakeStore struct {
	objects map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{objects: make(map[string][]byte)} }

func (s *fakeStore) PutJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *fakeStore) PutText(ctx context.Context, key, contents, contentType string) error {
	s.objects[key] = []byte(contents)
	return nil
}

func (s *fakeStore) GetJSON(ctx context.Context, key string, v any) error {
	data, ok := s.objects[key]
	if !ok {
		return errors.New("fakeStore: not found: " + key)
	}
	return json.Unmarshal(data, v)
}

func (s *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := s.objects[key]
	return ok, nil
}

// recordingContext captures the single completion call the wrapper
// forwards to it.
type recordingContext struct {
	calls int
	mode  Mode
	err   error
	result any
}

func (r *recordingContext) Succeed(result any) {
	r.calls++
	r.mode, r.result = ModeSucceed, result
}
func (r *recordingContext) Fail(err error) {
	r.calls++
	r.mode, r.err = ModeFail, err
}
func (r *recordingContext) Done(err error, result any) {
	r.calls++
	r.mode, r.err, r.result = ModeDone, err, result
}
func (r *recordingContext) TimeRemaining() time.Duration { return 30 * time.Second }

func testApp(target domain.Component, sink domain.Component) domain.Application {
	return domain.Application{
		Name:     "app",
		DeployID: "d1",
		Coordinator: domain.CoordinatorConfig{
			CoordinatorConcurrency: 1, MaxAPIConcurrency: 1, MaxInvocationCount: 1,
		},
		Components: map[string]domain.Component{
			target.Name: target,
			sink.Name:   sink,
		},
	}
}

func newTestWrapper(t *testing.T, app domain.Application, resources domain.ResourceMap) (*Wrapper, *queuegw.MemoryGateway) {
	t.Helper()
	store := newFakeStore()
	if err := store.PutJSON(t.Context(), "arnMap.json", resources); err != nil {
		t.Fatalf("seed resource map: %v", err)
	}
	qgw := queuegw.NewMemoryGateway()
	return &Wrapper{
		Store:          store,
		ResourceMapKey: "arnMap.json",
		QueueGW:        qgw,
		Ledger:         ledger.New(qgw),
		Engine:         routing.New(routing.NewRegistry(), qgw, noopInvoker{}),
		App:            app,
	}, qgw
}

type noopInvoker struct{}

func (noopInvoker) Invoke(ctx context.Context, endpoint string, payload any) error { return nil }

// TestWrap_SuccessRoutesToTarget covers spec.md §8 S2: a FromMessage
// component that succeeds routes its result to a RoutingOne target and
// deletes its claimed input message.
func TestWrap_SuccessRoutesToTarget(t *testing.T) {
	target := domain.Component{
		Name: "ingest",
		Kind: domain.KindFromMessage,
		Worker: domain.WorkerSpec{Timeout: 10 * time.Second, Handler: "ingest.handler"},
		Routing: domain.Routing{Kind: domain.RoutingOne, Target: "sink"},
		MaxConcurrency:   1,
		QueueWaitSeconds: 1,
	}
	sink := domain.Component{
		Name: "sink",
		Kind: domain.KindFromMessage,
		Worker: domain.WorkerSpec{Timeout: 10 * time.Second, Handler: "sink.handler"},
		MaxConcurrency:   1,
		QueueWaitSeconds: 1,
	}
	app := testApp(target, sink)
	resources := domain.ResourceMap{
		domain.InputQueueKey("ingest"):  "input-ingest",
		domain.LedgerQueueKey("ingest"): "ledger-ingest",
		domain.InputQueueKey("sink"):    "input-sink",
	}
	w, qgw := newTestWrapper(t, app, resources)

	if err := qgw.Send(t.Context(), "input-ingest", []byte(`{"n":1}`)); err != nil {
		t.Fatalf("seed input: %v", err)
	}

	original := &recordingContext{}
	w.Wrap(t.Context(), target, nil, original, func(ctx context.Context, event json.RawMessage, lc LifecycleContext) {
		lc.Succeed(map[string]int{"n": 2})
	})

	if original.calls != 1 {
		t.Fatalf("expected exactly one completion call, got %d", original.calls)
	}
	if original.mode != ModeSucceed {
		t.Fatalf("expected ModeSucceed, got %v (err=%v)", original.mode, original.err)
	}

	msg, err := qgw.ReceiveOne(t.Context(), "input-sink", 10*time.Second, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("receive routed message: %v", err)
	}
	if msg == nil {
		t.Fatal("expected routed message on sink input queue, got none")
	}

	// Input message must have been deleted. A message still claimed would
	// be invisible to ReceiveOne as well, so count the queue's rows.
	leftover, err := qgw.ApproximateDepth(t.Context(), "input-ingest", 0)
	if err != nil {
		t.Fatalf("depth of ingest input: %v", err)
	}
	if leftover != 0 {
		t.Fatal("expected claimed input message to be deleted on success")
	}
}

// TestWrap_PanicSynthesizesFail covers spec.md §8 S5: a handler panic is
// recovered and surfaced as a single `fail` completion, with the input
// message left un-deleted (so it can be reclaimed after visibility
// expiry).
func TestWrap_PanicSynthesizesFail(t *testing.T) {
	target := domain.Component{
		Name: "flaky",
		Kind: domain.KindFromMessage,
		Worker: domain.WorkerSpec{Timeout: 10 * time.Second, Handler: "flaky.handler"},
		MaxConcurrency:   1,
		QueueWaitSeconds: 1,
	}
	sink := domain.Component{
		Name: "sink",
		Kind: domain.KindFromMessage,
		Worker: domain.WorkerSpec{Timeout: 10 * time.Second, Handler: "sink.handler"},
		MaxConcurrency:   1,
		QueueWaitSeconds: 1,
	}
	app := testApp(target, sink)
	resources := domain.ResourceMap{
		domain.InputQueueKey("flaky"):  "input-flaky",
		domain.LedgerQueueKey("flaky"): "ledger-flaky",
	}
	w, qgw := newTestWrapper(t, app, resources)
	if err := qgw.Send(t.Context(), "input-flaky", []byte(`{}`)); err != nil {
		t.Fatalf("seed input: %v", err)
	}

	original := &recordingContext{}
	w.Wrap(t.Context(), target, nil, original, func(ctx context.Context, event json.RawMessage, lc LifecycleContext) {
		panic("boom")
	})

	if original.calls != 1 {
		t.Fatalf("expected exactly one completion call, got %d", original.calls)
	}
	if original.mode != ModeFail {
		t.Fatalf("expected ModeFail, got %v", original.mode)
	}
	if !IsPanic(original.err) {
		t.Fatalf("expected a PanicError, got %v", original.err)
	}

	// The message stays claimed for the worker timeout, so ReceiveOne
	// cannot see it yet; count the queue's rows instead.
	remaining, err := qgw.ApproximateDepth(t.Context(), "input-flaky", 0)
	if err != nil {
		t.Fatalf("depth of flaky input: %v", err)
	}
	if remaining != 1 {
		t.Fatal("expected claimed input message to remain undeleted after a failed invocation")
	}
}

// TestWrap_MultipleCompletionCallsAreIgnored is the universal property
// from spec.md §8: calling more than one of Succeed/Fail/Done observes
// only the first.
func TestWrap_MultipleCompletionCallsAreIgnored(t *testing.T) {
	target := domain.Component{
		Name: "chatty",
		Kind: domain.KindFromInvocation,
		Worker: domain.WorkerSpec{Timeout: 10 * time.Second, Handler: "chatty.handler"},
	}
	sink := domain.Component{
		Name: "sink",
		Kind: domain.KindFromInvocation,
		Worker: domain.WorkerSpec{Timeout: 10 * time.Second, Handler: "sink.handler"},
	}
	app := testApp(target, sink)
	w, _ := newTestWrapper(t, app, domain.ResourceMap{})

	original := &recordingContext{}
	w.Wrap(t.Context(), target, json.RawMessage(`{}`), original, func(ctx context.Context, event json.RawMessage, lc LifecycleContext) {
		lc.Succeed("first")
		lc.Fail(errors.New("should be ignored"))
		lc.Succeed("also ignored")
	})

	if original.calls != 1 {
		t.Fatalf("expected exactly one completion call, got %d", original.calls)
	}
	if original.mode != ModeSucceed || original.result != "first" {
		t.Fatalf("expected first Succeed(\"first\") to win, got mode=%v result=%v", original.mode, original.result)
	}
}
