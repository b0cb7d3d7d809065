// Package config loads gongsync configuration from a TOML file with
// environment-variable overrides for credentials.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/salesops/gongsync/pkg/gong"
	"github.com/salesops/gongsync/pkg/ratelimit"
)

//go:embed sample_config.toml
var sampleConfig string

// Environment variables overriding the [gong] section. Credentials
// usually live here rather than in the config file.
const (
	EnvAccessKey       = "GONG_ACCESS_KEY"
	EnvAccessKeySecret = "GONG_ACCESS_KEY_SECRET"
	EnvSubdomain       = "GONG_SUBDOMAIN"
)

// Gong contains API credentials and endpoint settings.
type Gong struct {
	AccessKey       string `toml:"access_key"`
	AccessKeySecret string `toml:"access_key_secret"`
	Subdomain       string `toml:"subdomain"`
	// BaseURL overrides the URL derived from the subdomain. Mainly for
	// testing against a local server.
	BaseURL string `toml:"base_url"`
}

// Download contains the sync run parameters.
type Download struct {
	StartDate       string `toml:"start_date"` // YYYY-MM-DD, inclusive
	EndDate         string `toml:"end_date"`   // YYYY-MM-DD, inclusive
	OutputDirectory string `toml:"output_directory"`
	TitleFilter     string `toml:"title_filter"`
	ResumePolicy    string `toml:"resume_policy"` // reuse_cached | always_rediscover
}

// API contains request pacing and robustness settings.
type API struct {
	RateLimit      float64 `toml:"rate_limit"` // calls per second
	TimeoutSeconds int     `toml:"timeout_seconds"`
	MaxRetries     int     `toml:"max_retries"`
	MaxPages       int     `toml:"max_pages"`
}

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

// Config is the full gongsync configuration.
type Config struct {
	Gong     Gong     `toml:"gong"`
	Download Download `toml:"download"`
	API      API      `toml:"api"`
	Logging  Logging  `toml:"logging"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Download: Download{
			StartDate:       "2022-01-01",
			EndDate:         "2024-12-31",
			OutputDirectory: "./transcripts",
			ResumePolicy:    "reuse_cached",
		},
		API: API{
			RateLimit:      ratelimit.DefaultRate,
			TimeoutSeconds: 60,
			MaxRetries:     3,
			MaxPages:       1000,
		},
		Logging: Logging{
			Level: "info",
		},
	}
}

// Load reads the config file at path (missing file is fine, defaults
// apply), applies environment overrides, normalizes, and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Defaults plus environment are enough to run.
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	cfg.Gong.Subdomain = NormalizeSubdomain(cfg.Gong.Subdomain)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays credential environment variables onto the config.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvAccessKey); v != "" {
		cfg.Gong.AccessKey = v
	}
	if v := os.Getenv(EnvAccessKeySecret); v != "" {
		cfg.Gong.AccessKeySecret = v
	}
	if v := os.Getenv(EnvSubdomain); v != "" {
		cfg.Gong.Subdomain = v
	}
}

// NormalizeSubdomain cleans a subdomain the way operators tend to paste
// it: with a scheme, the full .gong.io host, or a trailing path.
func NormalizeSubdomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.Replace(s, ".api.gong.io", "", 1)
	s = strings.Replace(s, ".gong.io", "", 1)
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	return s
}

// Validate checks credentials, dates, and numeric settings.
func (c *Config) Validate() error {
	if c.Gong.BaseURL == "" {
		if c.Gong.AccessKey == "" || c.Gong.AccessKeySecret == "" {
			return fmt.Errorf("missing Gong credentials: set %s and %s", EnvAccessKey, EnvAccessKeySecret)
		}
		if c.Gong.Subdomain == "" {
			return fmt.Errorf("missing Gong subdomain: set %s", EnvSubdomain)
		}
	}
	if _, err := c.DateRange(); err != nil {
		return err
	}
	if c.API.RateLimit <= 0 {
		return fmt.Errorf("api.rate_limit must be positive (got %v)", c.API.RateLimit)
	}
	if c.Download.OutputDirectory == "" {
		return fmt.Errorf("download.output_directory is required")
	}
	switch c.Download.ResumePolicy {
	case "", "reuse_cached", "always_rediscover":
	default:
		return fmt.Errorf("download.resume_policy must be reuse_cached or always_rediscover (got %q)", c.Download.ResumePolicy)
	}
	return nil
}

// BaseURL returns the API endpoint, derived from the subdomain unless
// explicitly overridden.
func (c *Config) BaseURL() string {
	if c.Gong.BaseURL != "" {
		return c.Gong.BaseURL
	}
	return fmt.Sprintf("https://%s.api.gong.io", c.Gong.Subdomain)
}

// DateRange parses the configured download window.
func (c *Config) DateRange() (gong.DateRange, error) {
	return gong.ParseDateRange(c.Download.StartDate, c.Download.EndDate)
}

// ClientConfig builds the API client configuration.
func (c *Config) ClientConfig() gong.Config {
	cc := gong.DefaultConfig(c.BaseURL(), c.Gong.AccessKey, c.Gong.AccessKeySecret)
	cc.RateLimit = c.API.RateLimit
	cc.Timeout = time.Duration(c.API.TimeoutSeconds) * time.Second
	cc.MaxPages = c.API.MaxPages
	if c.API.MaxRetries > 0 {
		cc.Retry.MaxAttempts = c.API.MaxRetries
	}
	return cc
}

// Sample returns the annotated sample configuration file.
func Sample() string {
	return sampleConfig
}
