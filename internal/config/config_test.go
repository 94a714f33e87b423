package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
version: "1"
log_level: debug
engine:
  matcher_cache_ttl: 30s
  drain_timeout: 15s
gateway:
  bind: "127.0.0.1:8420"
  bearer_token: "secret"
maintenance:
  prune_schedule: "*/5 * * * *"
tracing:
  enabled: true
  endpoint: "localhost:4318"
memory:
  path: /var/lib/flowd/memory.db
pipelines:
  - id: llm-call
    name: LLM call pipeline
    error_strategy: continue
    stages:
      - name: pre
        hooks: [rate-limit, cache-check]
      - name: post
        hooks: [record-usage]
        parallel: true
        when:
          provider: openai
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}

	if cfg.Version != "1" || cfg.LogLevel != "debug" {
		t.Errorf("header = (%q, %q)", cfg.Version, cfg.LogLevel)
	}
	if cfg.Engine.MatcherCacheTTL != 30*time.Second {
		t.Errorf("MatcherCacheTTL = %v", cfg.Engine.MatcherCacheTTL)
	}
	if cfg.Engine.MatcherCacheMax != 4096 {
		t.Errorf("MatcherCacheMax default = %d, want 4096", cfg.Engine.MatcherCacheMax)
	}
	if cfg.Gateway.Bind != "127.0.0.1:8420" || cfg.Gateway.BearerToken != "secret" {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Gateway.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout default = %v", cfg.Gateway.ShutdownTimeout)
	}
	if !cfg.Tracing.Enabled || cfg.Tracing.Endpoint != "localhost:4318" {
		t.Errorf("tracing = %+v", cfg.Tracing)
	}

	if len(cfg.Pipelines) != 1 {
		t.Fatalf("pipelines = %d, want 1", len(cfg.Pipelines))
	}
	p := cfg.Pipelines[0]
	if p.ID != "llm-call" || p.ErrorStrategy != "continue" || len(p.Stages) != 2 {
		t.Errorf("pipeline = %+v", p)
	}
	if !p.Stages[1].Parallel || p.Stages[1].When["provider"] != "openai" {
		t.Errorf("stage = %+v", p.Stages[1])
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("FLOWD_TEST_TOKEN", "from-env")

	cfg, err := Parse([]byte(`
version: "1"
gateway:
  bind: "${FLOWD_TEST_BIND:-127.0.0.1:0}"
  bearer_token: "${FLOWD_TEST_TOKEN}"
`))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if cfg.Gateway.BearerToken != "from-env" {
		t.Errorf("BearerToken = %q, want the env value", cfg.Gateway.BearerToken)
	}
	if cfg.Gateway.Bind != "127.0.0.1:0" {
		t.Errorf("Bind = %q, want the default", cfg.Gateway.Bind)
	}
}

func TestParse_UnresolvedVariable(t *testing.T) {
	os.Unsetenv("FLOWD_TEST_MISSING")

	_, err := Parse([]byte(`
version: "1"
gateway:
  bearer_token: "${FLOWD_TEST_MISSING}"
`))
	if err == nil {
		t.Fatal("Parse() accepted an unresolved variable")
	}
	if !strings.Contains(err.Error(), "FLOWD_TEST_MISSING") {
		t.Errorf("error %q does not name the variable", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowd.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Memory.Path != "/var/lib/flowd/memory.db" {
		t.Errorf("Memory.Path = %q", cfg.Memory.Path)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() succeeded on a missing file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "missing version",
			mutate:  func(c *Config) { c.Version = "" },
			wantSub: "version",
		},
		{
			name:    "unsupported version",
			mutate:  func(c *Config) { c.Version = "2" },
			wantSub: "unsupported version",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "trace" },
			wantSub: "log_level",
		},
		{
			name: "pipeline without id",
			mutate: func(c *Config) {
				c.Pipelines = []PipelineSpec{{Stages: []StageSpec{{Name: "s"}}}}
			},
			wantSub: "pipeline id",
		},
		{
			name: "duplicate pipeline id",
			mutate: func(c *Config) {
				p := PipelineSpec{ID: "p", Stages: []StageSpec{{Name: "s"}}}
				c.Pipelines = []PipelineSpec{p, p}
			},
			wantSub: "duplicate pipeline id",
		},
		{
			name: "unknown strategy",
			mutate: func(c *Config) {
				c.Pipelines = []PipelineSpec{{
					ID:            "p",
					ErrorStrategy: "explode",
					Stages:        []StageSpec{{Name: "s"}},
				}}
			},
			wantSub: "error_strategy",
		},
		{
			name: "pipeline without stages",
			mutate: func(c *Config) {
				c.Pipelines = []PipelineSpec{{ID: "p"}}
			},
			wantSub: "at least one stage",
		},
		{
			name: "stage without name",
			mutate: func(c *Config) {
				c.Pipelines = []PipelineSpec{{ID: "p", Stages: []StageSpec{{}}}}
			},
			wantSub: "stage name",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &Config{Version: "1"}
			cfg.Defaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("Validate() = %q, want substring %q", err, tt.wantSub)
			}
		})
	}
}
