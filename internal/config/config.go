// Package config loads the control plane's own process configuration —
// distinct from the application configuration document (spec.md §6),
// which is consumed, not produced, by this module. Grounded in the
// teacher's internal/config: a flat, env-tag-driven struct loaded via
// internal/env.Load, defaults pre-filled in Go rather than via struct
// tags (internal/env has no "default" tag support), validated on load.
package config

import (
	"fmt"
	"time"

	"github.com/fluxplane/control-plane/internal/env"
)

// ObjectStoreKind selects the Object Store Gateway backend.
type ObjectStoreKind string

const (
	ObjectStoreGCS ObjectStoreKind = "gcs"
	ObjectStoreFS  ObjectStoreKind = "fs"
)

// Config holds every environment-driven setting a control-plane binary
// (coordinator, invoker, worker host, or the switchover CLI) needs.
// Not every field applies to every binary; each cmd/ entrypoint reads
// only the fields it uses.
type Config struct {
	Env string `env:"FLUXPLANE_ENV"`

	// InvokeListenAddr is the address the invoke-primitive HTTP server
	// (internal/invokeclient) binds to when this process hosts a
	// FromInvocation component.
	InvokeListenAddr string `env:"FLUXPLANE_INVOKE_LISTEN_ADDR"`

	PostgresDSN string `env:"FLUXPLANE_POSTGRES_DSN"`

	ObjectStoreKind string `env:"FLUXPLANE_OBJECT_STORE_KIND"`
	GCSBucket       string `env:"FLUXPLANE_GCS_BUCKET"`
	FSDir           string `env:"FLUXPLANE_FS_DIR"`

	ResourceMapKey string `env:"FLUXPLANE_RESOURCE_MAP_KEY"`
	ConfirmKey     string `env:"FLUXPLANE_CONFIRM_KEY"`

	// AppConfigPath points at the already-validated application
	// configuration document (spec.md §6), serialized as JSON. Building
	// and validating that document is out of this module's scope; every
	// binary just reads the file a provisioning step produced.
	AppConfigPath string `env:"FLUXPLANE_APP_CONFIG_PATH"`

	// InvokeBaseURL is the base address this deployment's components are
	// reachable at; resourcemap.Build derives each component's invoke
	// endpoint as InvokeBaseURL + "/invoke/" + name.
	InvokeBaseURL string `env:"FLUXPLANE_INVOKE_BASE_URL"`

	OTelEnabled            bool   `env:"FLUXPLANE_OTEL_ENABLED"`
	OTelCollectorEndpoint  string `env:"FLUXPLANE_OTEL_COLLECTOR_ENDPOINT"`
	ServiceName            string `env:"FLUXPLANE_SERVICE_NAME"`

	ShutdownTimeout time.Duration `env:"FLUXPLANE_SHUTDOWN_TIMEOUT"`
}

// Default returns a Config pre-filled with the values internal/env.Load
// leaves untouched environment variables at.
func Default() Config {
	return Config{
		Env:                   "dev",
		InvokeListenAddr:      ":8080",
		ObjectStoreKind:       string(ObjectStoreFS),
		FSDir:                 "./fluxplane-data",
		ResourceMapKey:        "arnMap.json",
		ConfirmKey:            "confirm.txt",
		AppConfigPath:         "./app.json",
		InvokeBaseURL:         "http://localhost:8080",
		OTelEnabled:           true,
		OTelCollectorEndpoint: "localhost:4317",
		ServiceName:           "control-plane",
		ShutdownTimeout:       10 * time.Second,
	}
}

// Load reads a Config from the environment, starting from Default and
// overriding whatever variables are set. env.Load calls Validate on our
// behalf once parsing finishes, since *Config implements env.Validator.
func Load() (*Config, error) {
	cfg := Default()
	if err := env.Load(&cfg); err != nil {
		return nil, fmt.Errorf("config: load: %w", err)
	}
	return &cfg, nil
}

// Validate checks the invariants every binary's startup path relies on.
func (c Config) Validate() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("config: FLUXPLANE_POSTGRES_DSN is required")
	}
	switch ObjectStoreKind(c.ObjectStoreKind) {
	case ObjectStoreGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("config: FLUXPLANE_GCS_BUCKET is required when FLUXPLANE_OBJECT_STORE_KIND=gcs")
		}
	case ObjectStoreFS:
		if c.FSDir == "" {
			return fmt.Errorf("config: FLUXPLANE_FS_DIR is required when FLUXPLANE_OBJECT_STORE_KIND=fs")
		}
	default:
		return fmt.Errorf("config: unsupported FLUXPLANE_OBJECT_STORE_KIND: %q", c.ObjectStoreKind)
	}
	return nil
}
