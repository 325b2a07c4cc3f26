package routing

import (
	"github.com/fluxplane/control-plane/internal/domain"
)

// Expression is the Go-native rendering of spec.md §3's RoutingRule
// expression variant: `(error, data) → list of {target, payload}`. In
// the source configuration this is a runtime-compiled closure; per
// spec.md §9's design note for implementations without first-class
// compiled closures, this module substitutes a named-expression
// registry keyed by expression name, with each entry a plain compiled-in
// Go function registered alongside the user handler it belongs to.
type Expression func(err error, data any) ([]domain.Dispatch, error)

// Registry maps an expression name (spec.md's Routing.Expression field)
// to its compiled implementation.
type Registry struct {
	expressions map[string]Expression
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{expressions: make(map[string]Expression)}
}

// Register adds or replaces the expression under name.
func (r *Registry) Register(name string, expr Expression) {
	r.expressions[name] = expr
}

// Lookup returns the expression registered under name, or ok=false.
func (r *Registry) Lookup(name string) (Expression, bool) {
	expr, ok := r.expressions[name]
	return expr, ok
}
