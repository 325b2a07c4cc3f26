package invokeclient

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handler adapts a typed invoke function into an otelhttp-instrumented
// http.Handler that accepts a JSON event body, invokes fn and responds
// 202 Accepted immediately — the handler does not wait for fn's
// background work, matching event-style (fire-and-forget) semantics on
// the receiving side as well as the sending side.
func Handler(spanName string, fn func(event json.RawMessage)) http.Handler {
	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event json.RawMessage
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
				slog.WarnContext(r.Context(), "invokeclient: failed to decode invoke body", "error", err)
				event = json.RawMessage("{}")
			}
		} else {
			event = json.RawMessage("{}")
		}
		w.WriteHeader(http.StatusAccepted)
		go fn(event)
	})
	return otelhttp.NewHandler(base, spanName)
}
