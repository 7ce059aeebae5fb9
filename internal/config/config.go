// Package config loads service configuration from YAML with environment
// variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
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

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the top-level service configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Supabase SupabaseConfig `yaml:"supabase"`
	CORS     CORSConfig     `yaml:"cors"`
	Rate     RateConfig     `yaml:"rate_limit"`
	Janitor  JanitorConfig  `yaml:"janitor"`
	Realtime RealtimeConfig `yaml:"realtime"`
}

// ServiceConfig configures the HTTP server itself.
type ServiceConfig struct {
	Name           string   `yaml:"name"`
	Port           int      `yaml:"port"`
	LogLevel       string   `yaml:"log_level"`
	LogFormat      string   `yaml:"log_format"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// SupabaseConfig holds the backing-store and identity-service endpoints.
type SupabaseConfig struct {
	URL        string `yaml:"url"`
	AnonKey    string `yaml:"anon_key"`
	ServiceKey string `yaml:"service_key"`
	JWTSecret  string `yaml:"jwt_secret"`
}

// CORSConfig configures cross-origin behavior.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// RateConfig configures per-principal rate limiting.
type RateConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	Burst             int `yaml:"burst"`
}

// JanitorConfig configures the orphaned-experiment sweeper.
type JanitorConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Schedule string   `yaml:"schedule"`
	Grace    Duration `yaml:"grace"`
}

// RealtimeConfig configures the experiment status watcher.
type RealtimeConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the baseline configuration before file and env overrides.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:           "sci-bom-functions",
			Port:           8080,
			LogLevel:       "info",
			LogFormat:      "json",
			RequestTimeout: Duration(30 * time.Second),
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Rate: RateConfig{
			RequestsPerSecond: 20,
			Burst:             40,
		},
		Janitor: JanitorConfig{
			Enabled:  false,
			Schedule: "@every 1h",
			Grace:    Duration(24 * time.Hour),
		},
	}
}

// Load reads config/functions.yaml if present, then applies environment
// overrides and validates the result.
func Load() (*Config, error) {
	return LoadFromPath("config/functions.yaml")
}

// LoadFromPath loads configuration from a specific path. A missing file is
// not an error; defaults plus environment apply.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		c.Supabase.URL = v
	}
	if v := os.Getenv("SUPABASE_ANON_KEY"); v != "" {
		c.Supabase.AnonKey = v
	}
	if v := os.Getenv("SUPABASE_SERVICE_KEY"); v != "" {
		c.Supabase.ServiceKey = v
	}
	if v := os.Getenv("SUPABASE_JWT_SECRET"); v != "" {
		c.Supabase.JWTSecret = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Service.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Service.LogLevel = v
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Supabase.URL == "" {
		return fmt.Errorf("supabase url is required (SUPABASE_URL)")
	}
	if c.Supabase.AnonKey == "" {
		return fmt.Errorf("supabase anon key is required (SUPABASE_ANON_KEY)")
	}
	if c.Supabase.ServiceKey == "" {
		return fmt.Errorf("supabase service key is required (SUPABASE_SERVICE_KEY)")
	}
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Service.Port)
	}
	return nil
}
