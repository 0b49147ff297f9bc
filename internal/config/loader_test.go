package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
upstream:
  origin: "https://api.initiative.app"
`

func TestParseDefaults(t *testing.T) {
	l := NewLoader()
	cfg, err := l.Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Listen != ":8787" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("backend = %q", cfg.Cache.Backend)
	}
	if cfg.Cache.Prefix != "initiative" {
		t.Errorf("prefix = %q", cfg.Cache.Prefix)
	}
	if cfg.Upstream.Timeout != 30*time.Second {
		t.Errorf("timeout = %v", cfg.Upstream.Timeout)
	}
	if len(cfg.Policy.AuthPatterns) == 0 || len(cfg.Policy.CacheablePatterns) == 0 {
		t.Error("default policy patterns missing")
	}
}

func TestParseOverrides(t *testing.T) {
	yaml := `
listen: ":9090"
upstream:
  origin: "http://localhost:3000"
  timeout: 5s
cache:
  backend: sqlite
  sqlite_path: /tmp/edge.db
  static_version: v7
policy:
  api_prefix: /api/v2/
  cacheable_patterns:
    - "^/api/v2/boards$"
`
	cfg, err := NewLoader().Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Upstream.Timeout != 5*time.Second {
		t.Errorf("timeout = %v", cfg.Upstream.Timeout)
	}
	if cfg.Cache.Backend != "sqlite" || cfg.Cache.SQLitePath != "/tmp/edge.db" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Cache.StaticVersion != "v7" {
		t.Errorf("static_version = %q", cfg.Cache.StaticVersion)
	}
	if len(cfg.Policy.CacheablePatterns) != 1 || cfg.Policy.CacheablePatterns[0] != "^/api/v2/boards$" {
		t.Errorf("cacheable = %v", cfg.Policy.CacheablePatterns)
	}
}

func TestParseEnvExpansion(t *testing.T) {
	t.Setenv("EDGE_ORIGIN", "https://api.example.com")

	yaml := `
upstream:
  origin: "${EDGE_ORIGIN}"
`
	cfg, err := NewLoader().Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Upstream.Origin != "https://api.example.com" {
		t.Errorf("origin = %q", cfg.Upstream.Origin)
	}
}

func TestParseUnsetEnvKept(t *testing.T) {
	yaml := `
upstream:
  origin: "https://api.initiative.app"
cache:
  prefix: "${EDGE_UNSET_VAR_FOR_TEST}"
`
	cfg, err := NewLoader().Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Cache.Prefix != "${EDGE_UNSET_VAR_FOR_TEST}" {
		t.Errorf("unset env var should be kept literal, got %q", cfg.Cache.Prefix)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing origin", `listen: ":1"`, "upstream origin is required"},
		{"bad origin scheme", "upstream:\n  origin: \"ftp://x\"", "must be http or https"},
		{"bad backend", minimalYAML + "cache:\n  backend: memcached", "invalid cache backend"},
		{"sqlite without path", minimalYAML + "cache:\n  backend: sqlite", "requires sqlite_path"},
		{"redis without addr", minimalYAML + "cache:\n  backend: redis", "requires redis.addr"},
		{"bad auth pattern", minimalYAML + "policy:\n  auth_patterns: [\"(\"]", "invalid auth pattern"},
		{"bad cacheable pattern", minimalYAML + "policy:\n  cacheable_patterns: [\"[\"]", "invalid cacheable pattern"},
		{"relative asset", minimalYAML + "policy:\n  static_assets: [\"logo.svg\"]", "must be an absolute path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader().Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Upstream.Origin != "https://api.initiative.app" {
		t.Errorf("origin = %q", cfg.Upstream.Origin)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := NewLoader().Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
