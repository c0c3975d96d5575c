// Package config loads the storelight YAML configuration.
//
// DESIGN: One file, one struct. Values may reference environment variables
// with ${VAR} or ${VAR:-default}; references are expanded before the YAML is
// parsed so secrets never live in the file itself.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "10m", "30s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig configures the HTTP render server.
type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// BackendConfig configures the upstream API the gateway talks to.
// The system assumes a single backend host per instance.
type BackendConfig struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// CacheConfig configures the gateway read cache.
type CacheConfig struct {
	// Store selects the backend: "memory" (default) or "sqlite".
	Store      string   `yaml:"store"`
	Path       string   `yaml:"path"`
	MaxEntries int      `yaml:"max_entries"`
	TTL        Duration `yaml:"ttl"`
}

// RenderConfig configures document assembly inputs.
type RenderConfig struct {
	Template   string `yaml:"template"`
	Manifest   string `yaml:"manifest"`
	ClientDist string `yaml:"client_dist"`
}

// SessionConfig seeds the session identity. The token is typically supplied
// via ${STORELIGHT_TOKEN}; the device id is generated when absent.
type SessionConfig struct {
	Token    string `yaml:"token"`
	DeviceID string `yaml:"device_id"`
	Platform string `yaml:"platform"`
}

// DevConfig enables development conveniences.
type DevConfig struct {
	// Reload watches the template and manifest and pushes a reload event
	// to connected browsers over /__reload.
	Reload bool `yaml:"reload"`
}

// Config is the root configuration.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Backend  BackendConfig `yaml:"backend"`
	Cache    CacheConfig   `yaml:"cache"`
	Render   RenderConfig  `yaml:"render"`
	Session  SessionConfig `yaml:"session"`
	Dev      DevConfig     `yaml:"dev"`
	LogLevel string        `yaml:"log_level"`
}

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnvWithDefaults expands ${VAR} and ${VAR:-default} references.
// Unset variables without a default expand to the empty string.
func ExpandEnvWithDefaults(s string) string {
	return envRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
		groups := envRefPattern.FindStringSubmatch(ref)
		if v, ok := os.LookupEnv(groups[1]); ok {
			return v
		}
		return groups[3]
	})
}

// Default returns a Config populated with the package defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         DefaultListenAddr,
			ReadTimeout:  Duration(DefaultReadTimeout),
			WriteTimeout: Duration(DefaultWriteTimeout),
		},
		Backend: BackendConfig{
			Timeout: Duration(DefaultBackendTimeout),
		},
		Cache: CacheConfig{
			Store:      "memory",
			MaxEntries: DefaultCacheMaxEntries,
			TTL:        Duration(DefaultCacheTTL),
		},
		Render: RenderConfig{
			Template:   DefaultTemplatePath,
			Manifest:   DefaultManifestPath,
			ClientDist: DefaultClientDist,
		},
		Session:  SessionConfig{Platform: "web"},
		LogLevel: "info",
	}
}

// Load reads, expands, parses, and validates the config file at path.
// A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.validate()
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	expanded := ExpandEnvWithDefaults(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultListenAddr
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = DefaultCacheMaxEntries
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = Duration(DefaultCacheTTL)
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = Duration(DefaultBackendTimeout)
	}

	switch c.Cache.Store {
	case "", "memory":
		c.Cache.Store = "memory"
	case "sqlite":
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required when cache.store is sqlite")
		}
	default:
		return fmt.Errorf("unknown cache.store %q (want memory or sqlite)", c.Cache.Store)
	}

	if c.Backend.BaseURL != "" && !strings.HasPrefix(c.Backend.BaseURL, "http") {
		return fmt.Errorf("backend.base_url must be an http(s) URL, got %q", c.Backend.BaseURL)
	}
	return nil
}
