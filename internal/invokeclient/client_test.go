package invokeclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func TestClient_InvokeAndHandler_RoundTrip(t *testing.T) {
	var mu sync.Mutex
	var received json.RawMessage
	done := make(chan struct{})

	handler := Handler("test.invoke", func(event json.RawMessage) {
		mu.Lock()
		received = event
		mu.Unlock()
		close(done)
	})

	srv := httptest.NewServer(handler)
	defer srv.Close()

	client := New()
	if err := client.Invoke(t.Context(), srv.URL, map[string]int{"x": 1}); err != nil {
		t.Fatalf("invoke: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not run within timeout")
	}

	mu.Lock()
	defer mu.Unlock()
	var got map[string]int
	if err := json.Unmarshal(received, &got); err != nil {
		t.Fatalf("unmarshal received body: %v", err)
	}
	if got["x"] != 1 {
		t.Fatalf("got %v", got)
	}
}

func TestClient_Invoke_NonOKStatusIsError(t *testing.T) {
	// Handler answers 202 on every path, so serve a plain 404 instead.
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	client := New()
	if err := client.Invoke(t.Context(), srv.URL, nil); err == nil {
		t.Fatal("expected an error for a 404 response, got nil")
	}
}
