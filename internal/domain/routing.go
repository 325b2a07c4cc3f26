package domain

import (
	"encoding/json"
	"fmt"
)

// RoutingKind discriminates the RoutingRule tagged variant described in
// spec.md §9's design note: the source configuration allows routing to
// be a dynamic-typed expression, which this statically-typed module
// renders as an explicit enum plus per-kind payload fields rather than
// an interface type, so zero-value Routing{} is the well-formed "none"
// case and the struct stays comparable and easy to unmarshal from the
// application configuration document.
type RoutingKind int

const (
	RoutingNone RoutingKind = iota
	RoutingOne
	RoutingMany
	RoutingExpr
)

// Routing is the tagged-variant encoding of spec.md §3's RoutingRule.
// Exactly one of the kind-specific fields is meaningful for a given
// Kind: Target for RoutingOne, Targets for RoutingMany, Expression for
// RoutingExpr.
type Routing struct {
	Kind       RoutingKind
	Target     string
	Targets    []string
	Expression string // name looked up in the expression registry, see internal/routing
}

// UnmarshalJSON decodes the `routing` field of the application
// configuration document (spec.md §6: "string | list of strings |
// expression") into the tagged variant above. A bare string is
// RoutingOne, a JSON array is RoutingMany, and an object of the form
// {"expression": "<name>"} is RoutingExpr — the named-expression-registry
// substitution spec.md §9 calls for. An absent field (null, or the key
// missing entirely) decodes as the zero value, RoutingNone.
func (r *Routing) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Routing{}
		return nil
	}

	var target string
	if err := json.Unmarshal(data, &target); err == nil {
		*r = Routing{Kind: RoutingOne, Target: target}
		return nil
	}

	var targets []string
	if err := json.Unmarshal(data, &targets); err == nil {
		*r = Routing{Kind: RoutingMany, Targets: targets}
		return nil
	}

	var expr struct {
		Expression string `json:"expression"`
	}
	if err := json.Unmarshal(data, &expr); err == nil && expr.Expression != "" {
		*r = Routing{Kind: RoutingExpr, Expression: expr.Expression}
		return nil
	}

	return fmt.Errorf("routing: unrecognized shape %s", data)
}

// Dispatch is one {target, payload} pair produced by evaluating a
// Routing against a wrapper outcome.
type Dispatch struct {
	Target  string
	Payload any
}
