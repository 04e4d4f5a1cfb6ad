package config

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/rarora2025/pollit/internal/category"
	"github.com/rarora2025/pollit/internal/feed"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

type Config struct {
	RelayURL        string `yaml:"relay_url"`
	DefaultCategory string `yaml:"default_category"`
	MinDescription  int    `yaml:"min_description_chars,omitempty"`
	LogFile         string `yaml:"log_file,omitempty"`
}

// Relay returns the relay base URL, preferring the POLLIT_RELAY_URL
// environment variable over the config file.
func (c *Config) Relay() string {
	if env := os.Getenv("POLLIT_RELAY_URL"); env != "" {
		return strings.TrimRight(env, "/")
	}
	return strings.TrimRight(c.RelayURL, "/")
}

// Category returns the startup category, defaulting to top headlines.
func (c *Config) Category() string {
	if c.DefaultCategory == "" {
		return string(category.Top)
	}
	return c.DefaultCategory
}

// MinDescriptionChars returns the filter threshold, defaulting when unset.
func (c *Config) MinDescriptionChars() int {
	if c.MinDescription <= 0 {
		return feed.DefaultMinDescription
	}
	return c.MinDescription
}

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "pollit", "config.yaml")
}

func CachePath() string {
	return filepath.Join(xdg.CacheHome, "pollit", "pollit.db")
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

func Load(path string) (*Config, error) {
	defaults, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Write defaults to config path on first run
			if err := writeDefaults(path); err != nil {
				// Non-fatal: just use embedded defaults
				return defaults, nil
			}
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Unmarshal over the defaults so omitted keys keep their values.
	cfg := *defaults
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o644)
}

func validate(cfg *Config) error {
	if cfg.RelayURL == "" {
		return fmt.Errorf("relay_url is required")
	}
	u, err := url.Parse(cfg.RelayURL)
	if err != nil {
		return fmt.Errorf("invalid relay_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("relay_url scheme must be http or https, got %q", u.Scheme)
	}
	if cfg.DefaultCategory != "" {
		if _, err := category.Resolve(cfg.DefaultCategory); err != nil {
			return fmt.Errorf("default_category: %w", err)
		}
	}
	if cfg.MinDescription < 0 {
		return fmt.Errorf("min_description_chars must not be negative, got %d", cfg.MinDescription)
	}
	return nil
}
