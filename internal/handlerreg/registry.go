// Package handlerreg maps a component's compiled-in worker handler
// reference (domain.WorkerSpec.Handler, spec.md §3) to the Go function
// implementing it. Mirrors internal/routing's Registry for
// RoutingExpr: spec.md §9's design note substitutes a named registry
// for both a source configuration's runtime-compiled routing
// expressions and its deployed worker functions, since this module has
// no equivalent of dynamically loading a named deployment artifact.
package handlerreg

import "github.com/fluxplane/control-plane/internal/wrapper"

// Registry maps a component's Worker.Handler reference to its
// implementation.
type Registry struct {
	handlers map[string]wrapper.Handler
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{handlers: make(map[string]wrapper.Handler)}
}

// Register adds or replaces the handler under name.
func (r *Registry) Register(name string, h wrapper.Handler) {
	r.handlers[name] = h
}

// Lookup returns the handler registered under name, or ok=false.
func (r *Registry) Lookup(name string) (wrapper.Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}
