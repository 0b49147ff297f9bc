package config

import (
	"time"
)

// Config is the top-level offline-edge configuration.
type Config struct {
	Listen   string         `yaml:"listen"`
	Admin    AdminConfig    `yaml:"admin"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Cache    CacheConfig    `yaml:"cache"`
	Policy   PolicyConfig   `yaml:"policy"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AdminConfig configures the admin/ops listener.
type AdminConfig struct {
	Listen string `yaml:"listen"`
}

// UpstreamConfig configures the backend origin.
type UpstreamConfig struct {
	// Origin is the backend base URL, e.g. "https://api.initiative.app".
	Origin string `yaml:"origin"`
	// Timeout bounds a single upstream fetch.
	Timeout time.Duration `yaml:"timeout"`
	// HealthPath is probed periodically for the advisory reachability
	// gauge.
	HealthPath    string        `yaml:"health_path"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
	// InsecureSkipVerify disables TLS verification (development only).
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// CacheConfig configures the cache stores.
type CacheConfig struct {
	// Prefix and StaticVersion name the two stores:
	// "<prefix>-static-<version>" and "<prefix>-data".
	Prefix        string `yaml:"prefix"`
	StaticVersion string `yaml:"static_version"`

	// Backend selects the store implementation: memory, sqlite or redis.
	Backend string `yaml:"backend"`

	// SQLitePath is the cache database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`

	Redis RedisConfig `yaml:"redis"`

	// MaxEntries bounds the memory backend per store.
	MaxEntries int `yaml:"max_entries"`
	// MaxBodySize bounds what gets cached; larger responses are relayed
	// uncached.
	MaxBodySize int64 `yaml:"max_body_size"`
	// TTL expires entries in the memory and redis backends. 0 keeps
	// entries indefinitely; staleness is tolerated, not managed.
	TTL time.Duration `yaml:"ttl"`
}

// RedisConfig configures the redis cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PolicyConfig holds the request classification patterns. They must stay
// synchronized with the backend route layout.
type PolicyConfig struct {
	// APIPrefix is the common prefix for all backend API paths.
	APIPrefix string `yaml:"api_prefix"`
	// AuthPatterns match authentication endpoints (network-only).
	AuthPatterns []string `yaml:"auth_patterns"`
	// CacheablePatterns match list-style endpoints whose data is safe to
	// show stale (network-first with fallback).
	CacheablePatterns []string `yaml:"cacheable_patterns"`
	// StaticAssets is the fixed app-shell manifest, precached at install.
	// It must match what the client build emits.
	StaticAssets []string `yaml:"static_assets"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen: ":8787",
		Admin: AdminConfig{
			Listen: ":8788",
		},
		Upstream: UpstreamConfig{
			Timeout:       30 * time.Second,
			HealthPath:    "/api/v1/health",
			ProbeInterval: 30 * time.Second,
		},
		Cache: CacheConfig{
			Prefix:        "initiative",
			StaticVersion: "v1",
			Backend:       "memory",
			MaxEntries:    1000,
			MaxBodySize:   1 << 20,
		},
		Policy: PolicyConfig{
			APIPrefix: "/api/v1/",
			AuthPatterns: []string{
				`^/api/v1/auth/`,
			},
			CacheablePatterns: []string{
				`^/api/v1/projects$`,
				`^/api/v1/tasks$`,
			},
			StaticAssets: []string{
				"/manifest.webmanifest",
				"/logo.svg",
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
