// Package config loads runtime settings and detection rules. Process
// knobs come from DNSGUARD_-prefixed environment variables; detection
// rules layer built-in defaults, an optional YAML file and environment
// overrides, in that order.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "DNSGUARD_"

// Runtime holds process-level settings. CLI flags take precedence over
// these; they exist so deployments can tune the daemon without editing
// unit files.
type Runtime struct {
	// LogLevel controls log verbosity: "debug", "info", "warn", or "error".
	LogLevel string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	// Workers is the analysis worker count. Zero picks a default from
	// GOMAXPROCS.
	Workers int `koanf:"workers" validate:"gte=0"`

	// RateLimit caps analyzed names per second. Zero disables the cap.
	RateLimit float64 `koanf:"rate_limit" validate:"gte=0"`

	// PollInterval is the wait between query log polls on the live path.
	PollInterval time.Duration `koanf:"poll_interval" validate:"gte=0"`

	// MetricsAddr exposes Prometheus metrics when non-empty, e.g.
	// "127.0.0.1:9153".
	MetricsAddr string `koanf:"metrics_addr"`

	// StorePath is the flagged-query database on the live path.
	StorePath string `koanf:"store_path"`
}

// envLoader loads DNSGUARD_-prefixed variables, lowercased with the
// prefix stripped and "__" marking nesting.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
			return strings.ReplaceAll(key, "__", "."), value
		},
	}), nil)
}

// LoadRuntime reads the runtime configuration from the environment,
// applying defaults and validation.
func LoadRuntime() (*Runtime, error) {
	k := koanf.New(".")

	_ = k.Load(structs.Provider(Runtime{
		LogLevel:     "info",
		PollInterval: 2 * time.Second,
		StorePath:    "dnsguard.db",
	}, "koanf"), nil)

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Runtime
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling runtime config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid runtime config: %w", err)
	}
	return &cfg, nil
}
