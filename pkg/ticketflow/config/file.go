package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the typed top-level configuration loaded from YAML.
type File struct {
	Storage   Storage            `yaml:"storage"`
	Server    Server             `yaml:"server"`
	Scheduler Scheduler          `yaml:"scheduler"`
	Retry     Retry              `yaml:"retry"`
	Providers map[string]Provider `yaml:"providers"`
	Tenants   map[string]Tenant   `yaml:"tenants"`
}

// Storage configures the SQLite database shared by the queue,
// checkpoint store, and ticket store.
type Storage struct {
	Path string `yaml:"path"`
}

// Server configures the human-signal HTTP surface.
type Server struct {
	Addr string `yaml:"addr"`
}

// Scheduler configures the host loop.
type Scheduler struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	BatchSize         int           `yaml:"batch_size"`
	LeaseDuration     time.Duration `yaml:"lease_duration"`
	RenewInterval     time.Duration `yaml:"renew_interval"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
	ShutdownGrace     time.Duration `yaml:"shutdown_grace"`
}

// Retry configures graph-level retry budgets.
type Retry struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
}

// Provider configures one LLM backend. Type selects the registered
// factory ("claude-cli", "http", ...); Options carries backend-specific
// settings.
type Provider struct {
	Type    string         `yaml:"type"`
	Options map[string]any `yaml:"options"`
}

// Tenant configures per-tenant policy: ordered provider preference
// (first is primary, rest are fallbacks) and the concurrency budget.
type Tenant struct {
	Providers     []string `yaml:"providers"`
	MaxConcurrent int      `yaml:"max_concurrent"`
}

// Default returns a File with usable defaults for local operation.
func Default() File {
	return File{
		Storage: Storage{Path: "ticketflow.db"},
		Server:  Server{Addr: ":8080"},
		Scheduler: Scheduler{
			PollInterval:  2 * time.Second,
			BatchSize:     8,
			LeaseDuration: 2 * time.Minute,
			RenewInterval: 30 * time.Second,
			MaxConcurrent: 4,
			ShutdownGrace: 30 * time.Second,
		},
		Retry: Retry{
			MaxAttempts:    3,
			InitialBackoff: 5 * time.Second,
			MaxBackoff:     5 * time.Minute,
			BackoffFactor:  2.0,
		},
	}
}

// Load reads and parses a YAML config file, applying defaults for
// unset sections.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML config data, applying defaults for unset sections.
func Parse(data []byte) (File, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return File{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return File{}, err
	}
	return cfg, nil
}

func (f File) validate() error {
	for name, tenant := range f.Tenants {
		if len(tenant.Providers) == 0 {
			return fmt.Errorf("tenant %s: at least one provider required", name)
		}
		for _, p := range tenant.Providers {
			if _, ok := f.Providers[p]; !ok {
				return fmt.Errorf("tenant %s: unknown provider %q", name, p)
			}
		}
	}
	return nil
}

// ProviderOptions returns the Options for a named provider.
func (f File) ProviderOptions(name string) Options {
	p, ok := f.Providers[name]
	if !ok {
		return NewOptions(nil)
	}
	return NewOptions(p.Options)
}
