package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/storyweave/internal/codec"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STORYWEAVE_"

// Transport names accepted in service config.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// #region types

// Config is the full runtime configuration.
type Config struct {
	DBPath      string        `yaml:"db_path" env:"DB_PATH"`
	LogLevel    string        `yaml:"log_level" env:"LOG_LEVEL"`
	Development bool          `yaml:"development" env:"DEVELOPMENT"`
	CallTimeout time.Duration `yaml:"call_timeout" env:"CALL_TIMEOUT"`
	Services    Services      `yaml:"services" envPrefix:"SERVICE_"`
	Pacing      Pacing        `yaml:"pacing" envPrefix:"PACING_"`
	Tuning      Tuning        `yaml:"tuning" envPrefix:"TUNING_"`
}

// Services configures one generation endpoint per role.
type Services struct {
	PrimaryAuthor    Service `yaml:"primary_author" envPrefix:"PRIMARY_AUTHOR_"`
	FallbackAuthor   Service `yaml:"fallback_author" envPrefix:"FALLBACK_AUTHOR_"`
	Renderer         Service `yaml:"renderer" envPrefix:"RENDERER_"`
	FallbackRenderer Service `yaml:"fallback_renderer" envPrefix:"FALLBACK_RENDERER_"`
}

// Service is a single generation endpoint.
type Service struct {
	Transport string `yaml:"transport" env:"TRANSPORT"` // http | grpc
	Endpoint  string `yaml:"endpoint" env:"ENDPOINT"`   // base URL for http, host:port for grpc
	Model     string `yaml:"model" env:"MODEL"`
	APIKey    string `yaml:"api_key" env:"API_KEY"`
}

// Pacing maps pacing modes to cascade caps.
type Pacing struct {
	Slow     int `yaml:"slow" env:"SLOW"`
	Standard int `yaml:"standard" env:"STANDARD"`
	Fast     int `yaml:"fast" env:"FAST"`
}

// Tuning holds the numeric knobs of cascade and lens selection.
type Tuning struct {
	PacingVariationPenalty float64 `yaml:"pacing_variation_penalty" env:"PACING_VARIATION_PENALTY"`
	MinCascadeLength       int     `yaml:"min_cascade_length" env:"MIN_CASCADE_LENGTH"`
	ContinuityWords        int     `yaml:"continuity_words" env:"CONTINUITY_WORDS"`
	HistoryCap             int     `yaml:"history_cap" env:"HISTORY_CAP"`
	HistoryWindow          int     `yaml:"history_window" env:"HISTORY_WINDOW"`
}

// #endregion types

// #region defaults

// DefaultConfig returns the shipped configuration.
func DefaultConfig() *Config {
	svc := func(model string) Service {
		return Service{Transport: TransportHTTP, Endpoint: "http://localhost:8000/v1", Model: model}
	}
	return &Config{
		DBPath:      "storyweave.db",
		LogLevel:    "info",
		CallTimeout: codec.DefaultTimeout,
		Services: Services{
			PrimaryAuthor:    svc("author"),
			FallbackAuthor:   svc("author-lite"),
			Renderer:         svc("renderer"),
			FallbackRenderer: svc("renderer-lite"),
		},
		Pacing: Pacing{Slow: 2, Standard: 3, Fast: 4},
		Tuning: Tuning{
			PacingVariationPenalty: 0.15,
			MinCascadeLength:       40,
			ContinuityWords:        150,
			HistoryCap:             10,
			HistoryWindow:          5,
		},
	}
}

// #endregion defaults

// #region load

// Load reads a YAML file over the defaults, then applies environment
// overrides and validates. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays STORYWEAVE_* variables. Unset variables leave fields alone.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// #endregion load

// #region validate

// Validate checks every field the runtime depends on.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path is empty")
	}
	if c.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout must be positive, got %s", c.CallTimeout)
	}
	for _, role := range codec.Roles() {
		svc := c.Services.For(role)
		switch svc.Transport {
		case TransportHTTP, TransportGRPC:
		default:
			return fmt.Errorf("service %s: invalid transport %q (valid: http, grpc)", role, svc.Transport)
		}
		if svc.Endpoint == "" {
			return fmt.Errorf("service %s: endpoint is empty", role)
		}
		if svc.Model == "" {
			return fmt.Errorf("service %s: model is empty", role)
		}
	}
	if c.Pacing.Slow < 1 || c.Pacing.Standard < 1 || c.Pacing.Fast < 1 {
		return fmt.Errorf("pacing caps must be at least 1, got %+v", c.Pacing)
	}
	t := c.Tuning
	if t.PacingVariationPenalty <= 0 || t.PacingVariationPenalty >= 1 {
		return fmt.Errorf("pacing_variation_penalty must be in (0, 1), got %v", t.PacingVariationPenalty)
	}
	if t.MinCascadeLength < 1 || t.ContinuityWords < 1 {
		return fmt.Errorf("cascade tuning must be positive, got %+v", t)
	}
	if t.HistoryWindow < 1 || t.HistoryCap < t.HistoryWindow {
		return fmt.Errorf("history_cap (%d) must be >= history_window (%d) >= 1", t.HistoryCap, t.HistoryWindow)
	}
	return nil
}

// #endregion validate

// #region accessors

// For returns the service configured for role.
func (s Services) For(role codec.Role) Service {
	switch role {
	case codec.RoleFallbackAuthor:
		return s.FallbackAuthor
	case codec.RoleRenderer:
		return s.Renderer
	case codec.RoleFallbackRenderer:
		return s.FallbackRenderer
	default:
		return s.PrimaryAuthor
	}
}

// Cap returns the cascade cap for a pacing mode. Unknown modes use standard.
func (p Pacing) Cap(mode string) int {
	switch mode {
	case "slow":
		return p.Slow
	case "fast":
		return p.Fast
	default:
		return p.Standard
	}
}

// #endregion accessors
