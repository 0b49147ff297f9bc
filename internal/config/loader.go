package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
)

// Loader handles configuration loading and parsing
type Loader struct {
	envPattern *regexp.Regexp
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
	}
}

// Load reads and parses a configuration file
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.Parse(data)
}

// Parse parses configuration from YAML bytes
func (l *Loader) Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := l.expandEnvVars(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	// Unmarshal YAML into config
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Validate configuration
	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match // Keep original if env var not set
	})
}

// validate checks configuration for errors
func (l *Loader) validate(cfg *Config) error {
	if cfg.Listen == "" {
		return fmt.Errorf("listen address is required")
	}

	if cfg.Upstream.Origin == "" {
		return fmt.Errorf("upstream origin is required")
	}
	origin, err := url.Parse(cfg.Upstream.Origin)
	if err != nil {
		return fmt.Errorf("invalid upstream origin: %w", err)
	}
	if origin.Scheme != "http" && origin.Scheme != "https" {
		return fmt.Errorf("upstream origin must be http or https, got %q", cfg.Upstream.Origin)
	}

	validBackends := map[string]bool{
		"memory": true,
		"sqlite": true,
		"redis":  true,
	}
	if !validBackends[cfg.Cache.Backend] {
		return fmt.Errorf("invalid cache backend: %s", cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == "sqlite" && cfg.Cache.SQLitePath == "" {
		return fmt.Errorf("cache backend sqlite requires sqlite_path")
	}
	if cfg.Cache.Backend == "redis" && cfg.Cache.Redis.Addr == "" {
		return fmt.Errorf("cache backend redis requires redis.addr")
	}
	if cfg.Cache.Prefix == "" {
		return fmt.Errorf("cache prefix is required")
	}
	if cfg.Cache.StaticVersion == "" {
		return fmt.Errorf("cache static_version is required")
	}

	if cfg.Policy.APIPrefix == "" {
		return fmt.Errorf("policy api_prefix is required")
	}
	for _, p := range cfg.Policy.AuthPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid auth pattern %q: %w", p, err)
		}
	}
	for _, p := range cfg.Policy.CacheablePatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("invalid cacheable pattern %q: %w", p, err)
		}
	}
	for _, p := range cfg.Policy.StaticAssets {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("static asset %q must be an absolute path", p)
		}
	}

	return nil
}
