package switchover

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fluxplane/control-plane/internal/domain"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{objects: make(map[string][]byte)} }

func (s *fakeStore) PutJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	return nil
}
func (s *fakeStore) PutText(ctx context.Context, key, contents, contentType string) error {
	s.mu.Lock()
	s.objects[key] = []byte(contents)
	s.mu.Unlock()
	return nil
}
func (s *fakeStore) GetJSON(ctx context.Context, key string, v any) error {
	s.mu.Lock()
	data, ok := s.objects[key]
	s.mu.Unlock()
	if !ok {
		return errors.New("not found")
	}
	return json.Unmarshal(data, v)
}
func (s *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

type countingInvoker struct {
	mu    sync.Mutex
	count int
}

func (c *countingInvoker) Invoke(ctx context.Context, endpoint string, payload any) error {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	return nil
}

func testApp(concurrency, minInterval int) domain.Application {
	return domain.Application{
		Coordinator: domain.CoordinatorConfig{
			CoordinatorConcurrency: concurrency,
			MaxAPIConcurrency:      1,
			MaxInvocationCount:     10,
			MinIntervalSeconds:     minInterval,
		},
	}
}

func TestController_Run_FullSequence(t *testing.T) {
	store := newFakeStore()
	invoker := &countingInvoker{}
	c := New(store, "arnMap.json", "confirm.txt", invoker)
	c.Sleep = func(time.Duration) {}

	app := testApp(3, 0)
	resources := domain.ResourceMap{domain.InvokeEndpointKey(domain.CoordinatorName): "http://coordinator"}

	// Simulate the coordinator writing the confirmation artifact
	// asynchronously as soon as seeding has happened, since Run's
	// awaitConfirmation step polls for it.
	go func() {
		_ = store.PutText(context.Background(), "confirm.txt", "confirmed", "text/plain")
	}()

	hookCalled := false
	err := c.Run(t.Context(), app, resources, func(ctx context.Context) error {
		hookCalled = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hookCalled {
		t.Fatal("expected the switchover hook to run")
	}
	invoker.mu.Lock()
	defer invoker.mu.Unlock()
	if invoker.count != 3 {
		t.Fatalf("expected 3 seed invocations, got %d", invoker.count)
	}
}

func TestController_Run_MissingConfirmationAborts(t *testing.T) {
	store := newFakeStore()
	invoker := &countingInvoker{}
	c := New(store, "arnMap.json", "confirm.txt", invoker)
	c.Sleep = func(time.Duration) {}
	// Fake clock that jumps well past the poll deadline on its second
	// call, so the test doesn't block on real time.
	calls := 0
	c.Now = func() time.Time {
		calls++
		if calls == 1 {
			return time.Unix(0, 0)
		}
		return time.Unix(0, 0).Add(time.Hour)
	}

	app := testApp(1, 0)
	resources := domain.ResourceMap{domain.InvokeEndpointKey(domain.CoordinatorName): "http://coordinator"}

	hookCalled := false
	err := c.Run(t.Context(), app, resources, func(ctx context.Context) error {
		hookCalled = true
		return nil
	})
	if err == nil {
		t.Fatal("expected an error when the confirmation artifact never appears")
	}
	if hookCalled {
		t.Fatal("expected the hook to be skipped when an earlier step fails")
	}
}

func TestController_Run_MissingCoordinatorEndpointAborts(t *testing.T) {
	store := newFakeStore()
	invoker := &countingInvoker{}
	c := New(store, "arnMap.json", "confirm.txt", invoker)
	c.Sleep = func(time.Duration) {}

	app := testApp(1, 0)
	err := c.Run(t.Context(), app, domain.ResourceMap{}, nil)
	if err == nil {
		t.Fatal("expected an error when the resource map has no coordinator invoke endpoint")
	}
}
