package handlerreg

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fluxplane/control-plane/internal/wrapper"
)

type recordingLC struct{ succeeded any }

func (r *recordingLC) Succeed(result any)            { r.succeeded = result }
func (r *recordingLC) Fail(error)                    {}
func (r *recordingLC) Done(error, any)                {}
func (r *recordingLC) TimeRemaining() time.Duration    { return time.Second }

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := New()
	if _, ok := r.Lookup("missing"); ok {
		t.Fatal("expected lookup of unregistered name to fail")
	}

	h := wrapper.Handler(func(ctx context.Context, event json.RawMessage, lc wrapper.LifecycleContext) {
		lc.Succeed("ok")
	})
	r.Register("handlers.example", h)

	got, ok := r.Lookup("handlers.example")
	if !ok {
		t.Fatal("expected registered handler to be found")
	}

	lc := &recordingLC{}
	got(t.Context(), nil, lc)
	if lc.succeeded != "ok" {
		t.Fatalf("expected handler to run, got %v", lc.succeeded)
	}
}
