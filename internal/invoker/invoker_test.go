package invoker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fluxplane/control-plane/internal/domain"
	"github.com/fluxplane/control-plane/internal/ledger"
	"github.com/fluxplane/control-plane/internal/queuegw"
)

type memStore struct {
	objects map[string][]byte
}

func (s *memStore) PutJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}
func (s *memStore) PutText(ctx context.Context, key, contents, contentType string) error {
	s.objects[key] = []byte(contents)
	return nil
}
func (s *memStore) GetJSON(ctx context.Context, key string, v any) error {
	data, ok := s.objects[key]
	if !ok {
		return errors.New("not found: " + key)
	}
	return json.Unmarshal(data, v)
}
func (s *memStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok := s.objects[key]
	return ok, nil
}

type recordingInvoker struct {
	mu    sync.Mutex
	calls []struct {
		endpoint string
		payload  any
	}
}

func (r *recordingInvoker) Invoke(ctx context.Context, endpoint string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, struct {
		endpoint string
		payload  any
	}{endpoint, payload})
	return nil
}

type recordingLC struct {
	done   bool
	err    error
	result any
}

func (r *recordingLC) Succeed(result any)            { r.done, r.result = true, result }
func (r *recordingLC) Fail(err error)                 { r.done, r.err = true, err }
func (r *recordingLC) Done(err error, result any)     { r.done, r.err, r.result = true, err, result }
func (r *recordingLC) TimeRemaining() time.Duration    { return 30 * time.Second }

func TestAmplifier_DispatchesLocalAndRecurses(t *testing.T) {
	store := &memStore{objects: make(map[string][]byte)}
	resources := domain.ResourceMap{
		domain.LedgerQueueKey(domain.InvokerName):    "ledger-Invoker",
		domain.InvokeEndpointKey(domain.InvokerName):  "http://invoker",
		domain.InvokeEndpointKey("worker-a"):           "http://worker-a",
	}
	if err := store.PutJSON(t.Context(), "arnMap.json", resources); err != nil {
		t.Fatalf("seed resources: %v", err)
	}

	qgw := queuegw.NewMemoryGateway()
	inv := &recordingInvoker{}
	// maxInvocationCount=3 forces the 5-unit bin to split into local+remote.
	a := New(store, "arnMap.json", ledger.New(qgw), domain.Application{}, inv, 3, 4)

	raw, _ := json.Marshal(domain.InvokerEvent{Components: []domain.InvocationCount{{Name: "worker-a", Count: 5}}})
	lc := &recordingLC{}
	a.Handle(t.Context(), raw, lc)

	if !lc.done {
		t.Fatal("expected Done to be called")
	}
	if lc.err != nil {
		t.Fatalf("expected no error, got %v", lc.err)
	}

	var localCalls, recurseCalls int
	inv.mu.Lock()
	for _, c := range inv.calls {
		switch c.endpoint {
		case "http://worker-a":
			localCalls++
		case "http://invoker":
			recurseCalls++
		}
	}
	inv.mu.Unlock()

	if localCalls == 0 {
		t.Fatal("expected at least one local worker-a dispatch")
	}
	if recurseCalls == 0 {
		t.Fatal("expected a recursive invoker hand-off for the overflow bin")
	}
}

func TestAmplifier_ResourceMapLoadFailureIsFatal(t *testing.T) {
	store := &memStore{objects: make(map[string][]byte)} // empty: no arnMap.json
	qgw := queuegw.NewMemoryGateway()
	a := New(store, "arnMap.json", ledger.New(qgw), domain.Application{}, &recordingInvoker{}, 10, 4)

	lc := &recordingLC{}
	a.Handle(t.Context(), nil, lc)

	if lc.err == nil {
		t.Fatal("expected resource map load failure to surface as an error")
	}
	if !errors.Is(lc.err, domain.ErrResourceMapLoadFailed) {
		t.Fatalf("expected ErrResourceMapLoadFailed, got %v", lc.err)
	}
}
