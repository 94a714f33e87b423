// Package config handles YAML configuration loading, environment
// variable expansion, and structural validation for flowd.
package config

import "time"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is
	// supported.
	Version string `yaml:"version"`

	// LogLevel is one of debug, info, warn, error. Default info.
	LogLevel string `yaml:"log_level"`

	Engine      Engine         `yaml:"engine"`
	Gateway     Gateway        `yaml:"gateway"`
	Maintenance Maintenance    `yaml:"maintenance"`
	Tracing     Tracing        `yaml:"tracing"`
	Memory      Memory         `yaml:"memory"`
	Pipelines   []PipelineSpec `yaml:"pipelines"`
}

// Engine tunes the hook execution engine.
type Engine struct {
	// MatcherCacheTTL bounds cached match decisions. Default 60s.
	MatcherCacheTTL time.Duration `yaml:"matcher_cache_ttl"`

	// MatcherCacheMax bounds the match decision cache. Default 4096.
	MatcherCacheMax int `yaml:"matcher_cache_max"`

	// DrainTimeout bounds the shutdown drain. Default 10s.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// Gateway configures the observability HTTP server. An empty Bind
// disables the gateway.
type Gateway struct {
	Bind            string        `yaml:"bind"`
	BearerToken     string        `yaml:"bearer_token"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Maintenance configures the cron jobs. Empty schedules disable the
// corresponding job.
type Maintenance struct {
	// PruneSchedule runs matcher-cache pruning (standard 5-field cron).
	PruneSchedule string `yaml:"prune_schedule"`

	// MetricsSchedule logs a metrics snapshot.
	MetricsSchedule string `yaml:"metrics_schedule"`
}

// Tracing configures the OTLP trace exporter.
type Tracing struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Memory configures the SQLite memory store. An empty Path keeps memory
// in-process only.
type Memory struct {
	Path string `yaml:"path"`
}

// PipelineSpec declares a pipeline built at startup from registered
// hooks.
type PipelineSpec struct {
	ID            string      `yaml:"id"`
	Name          string      `yaml:"name"`
	ErrorStrategy string      `yaml:"error_strategy"`
	Stages        []StageSpec `yaml:"stages"`
}

// StageSpec declares one pipeline stage. Hooks lists registration ids;
// When is a metadata-equality condition (all entries must match).
type StageSpec struct {
	Name     string            `yaml:"name"`
	Hooks    []string          `yaml:"hooks"`
	Parallel bool              `yaml:"parallel"`
	When     map[string]string `yaml:"when,omitempty"`
}

// Defaults fills zero values with sensible defaults.
func (c *Config) Defaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Engine.MatcherCacheTTL <= 0 {
		c.Engine.MatcherCacheTTL = 60 * time.Second
	}
	if c.Engine.MatcherCacheMax <= 0 {
		c.Engine.MatcherCacheMax = 4096
	}
	if c.Engine.DrainTimeout <= 0 {
		c.Engine.DrainTimeout = 10 * time.Second
	}
	if c.Gateway.ReadTimeout <= 0 {
		c.Gateway.ReadTimeout = 10 * time.Second
	}
	if c.Gateway.WriteTimeout <= 0 {
		c.Gateway.WriteTimeout = 30 * time.Second
	}
	if c.Gateway.ShutdownTimeout <= 0 {
		c.Gateway.ShutdownTimeout = 5 * time.Second
	}
}
