// Package invokeclient implements the "asynchronous direct function
// invocation" primitive spec.md §4.6/§4.9/§4.10 calls the platform's
// invoke primitive: a fire-and-forget HTTP POST instrumented with
// otelhttp, mirroring the way the teacher wraps its gRPC-gateway HTTP
// mux with the same contrib package. An invoke is dispatch, not an RPC
// call: the caller gives it a short timeout budget and never waits on
// the target's processing; a transport failure or non-2xx status is
// returned to the caller.
package invokeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// DefaultTimeout bounds how long Invoke waits for the target to accept
// the request. It is independent of the target's own processing time —
// InvocationType=event-style never waits on a result.
const DefaultTimeout = 5 * time.Second

// Client posts event-style invocations to other components' invoke
// endpoints.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// New returns a Client with otelhttp-instrumented transport.
func New() *Client {
	return &Client{
		http:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout: DefaultTimeout,
	}
}

// Invoke posts payload as JSON to endpoint and returns once the request
// completes or DefaultTimeout elapses. Any transport or non-2xx error is
// returned to the caller, which logs it and moves on — per spec.md §4.9
// dispatch errors are "logged but do not short-circuit the remaining
// dispatches."
func (c *Client) Invoke(ctx context.Context, endpoint string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("invokeclient: marshal payload for %s: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("invokeclient: build request for %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("invokeclient: invoke %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("invokeclient: invoke %s: unexpected status %d", endpoint, resp.StatusCode)
	}
	slog.DebugContext(ctx, "invokeclient: invocation accepted", "endpoint", endpoint)
	return nil
}
