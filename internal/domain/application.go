package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CoordinatorConfig holds the `coordinator` block of the application
// configuration document (spec.md §6).
type CoordinatorConfig struct {
	CoordinatorConcurrency int `json:"coordinatorConcurrency"`
	MaxAPIConcurrency      int `json:"maxApiConcurrency"`
	MaxInvocationCount     int `json:"maxInvocationCount"`
	MinIntervalSeconds     int `json:"minInterval"`
}

// DeploymentConfig holds the `deployment` block. SwitchoverHook is
// decoded but not read by any component in this module: the Switchover
// Controller runs only the hook function passed to its Run method.
type DeploymentConfig struct {
	Region         string            `json:"region"`
	S3Bucket       string            `json:"s3Bucket"`
	S3KeyPrefix    string            `json:"s3KeyPrefix"`
	Tags           map[string]string `json:"tags,omitempty"`
	SwitchoverHook string            `json:"switchoverHook,omitempty"`
}

// Role is one entry of the `roles` block.
type Role struct {
	Name string
}

// UnmarshalJSON accepts either a bare role name string or a
// {"name": "..."} object, since spec.md §6 only says "non-empty list of
// permission roles" without committing to one shape.
func (r *Role) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		r.Name = name
		return nil
	}
	var aux struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Name = aux.Name
	return nil
}

// Application is the already-validated application configuration this
// module consumes (spec.md §1: "the core consumes from them only a
// validated application configuration and a resource-name map"). The
// external validator that produces this shape is out of scope; this
// type is this module's internal representation of its output.
type Application struct {
	Name        string
	Version     string
	DeployID    string
	Deployment  DeploymentConfig
	Coordinator CoordinatorConfig
	Roles       []Role
	Components  map[string]Component
}

// applicationJSON mirrors the application configuration document's
// top-level shape (spec.md §6): `components` is a JSON array of
// objects that each carry their own `name`, not a name-keyed object, so
// it needs converting into Application.Components' map form.
type applicationJSON struct {
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	DeployID    json.RawMessage   `json:"deployId"`
	Deployment  DeploymentConfig  `json:"deployment"`
	Coordinator CoordinatorConfig `json:"coordinator"`
	Roles       []Role            `json:"roles"`
	Components  []Component       `json:"components"`
}

// UnmarshalJSON decodes the application configuration document,
// folding the `components` array into a name-keyed map and accepting
// `deployId` as either a string or a non-negative number (spec.md §6).
func (a *Application) UnmarshalJSON(data []byte) error {
	var aux applicationJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	deployID, err := decodeDeployID(aux.DeployID)
	if err != nil {
		return err
	}

	components := make(map[string]Component, len(aux.Components))
	for _, c := range aux.Components {
		components[c.Name] = c
	}

	*a = Application{
		Name:        aux.Name,
		Version:     aux.Version,
		DeployID:    deployID,
		Deployment:  aux.Deployment,
		Coordinator: aux.Coordinator,
		Roles:       aux.Roles,
		Components:  components,
	}
	return nil
}

// decodeDeployID accepts spec.md §6's "string or non-negative number"
// deployId shape and renders either as a string.
func decodeDeployID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if strings.HasPrefix(n.String(), "-") {
			return "", fmt.Errorf("application: deployId must be non-negative, got %s", n)
		}
		return n.String(), nil
	}
	return "", fmt.Errorf("application: deployId must be a string or non-negative number")
}

// Validate checks the cross-component invariants spec.md §3 and §6
// place on the application as a whole: unique non-reserved component
// names, and routing targets that reference only declared components.
func (a Application) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("application: name must not be empty")
	}
	if a.Coordinator.CoordinatorConcurrency < 1 {
		return fmt.Errorf("application: coordinatorConcurrency must be >= 1")
	}
	if a.Coordinator.MaxAPIConcurrency < 1 {
		return fmt.Errorf("application: maxApiConcurrency must be >= 1")
	}
	if a.Coordinator.MaxInvocationCount < 1 {
		return fmt.Errorf("application: maxInvocationCount must be >= 1")
	}
	if a.Coordinator.MinIntervalSeconds < 0 || a.Coordinator.MinIntervalSeconds > 300 {
		return fmt.Errorf("application: minInterval must be in [0, 300]")
	}
	if len(a.Components) == 0 {
		return fmt.Errorf("application: components must be non-empty")
	}
	for name, c := range a.Components {
		if name != c.Name {
			return fmt.Errorf("application: component map key %q does not match component name %q", name, c.Name)
		}
		if err := c.Validate(); err != nil {
			return err
		}
		for _, target := range c.Routing.routingTargets() {
			if _, ok := a.Components[target]; !ok && target != CoordinatorName && target != InvokerName {
				return fmt.Errorf("application: component %s routes to undefined component %q", name, target)
			}
		}
	}
	return nil
}

// routingTargets returns the statically-known target names a Routing
// rule references, for validation purposes. RoutingExpr targets are
// resolved dynamically at runtime and cannot be checked here.
func (r Routing) routingTargets() []string {
	switch r.Kind {
	case RoutingOne:
		return []string{r.Target}
	case RoutingMany:
		return r.Targets
	default:
		return nil
	}
}

// Lookup returns the named component, or ErrUnknownComponent.
func (a Application) Lookup(name string) (Component, error) {
	c, ok := a.Components[name]
	if !ok {
		return Component{}, fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}
	return c, nil
}
