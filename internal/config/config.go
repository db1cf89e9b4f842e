package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/feedforward/internal/aiconnectors"
)

// EnvPrefix marks environment overrides. A double underscore separates
// sections: FEEDFORWARD_GRADUATION__MIN_GROUP_SIZE=4.
const EnvPrefix = "FEEDFORWARD_"

// Config represents the application configuration
type Config struct {
	Database struct {
		URL      string `koanf:"url"`
		MaxConns int32  `koanf:"max_conns"`
	} `koanf:"database"`

	Graduation struct {
		MinGroupSize  int           `koanf:"min_group_size"`
		RecencyWindow time.Duration `koanf:"recency_window"`
		SweepInterval time.Duration `koanf:"sweep_interval"`
		TitleMaxLen   int           `koanf:"title_max_len"`
	} `koanf:"graduation"`

	Review struct {
		Enabled           bool                  `koanf:"enabled"`
		Provider          aiconnectors.Provider `koanf:"provider"`
		Model             string                `koanf:"model"`
		APIKey            string                `koanf:"api_key"`
		BaseURL           string                `koanf:"base_url"`
		Temperature       float64               `koanf:"temperature"`
		Timeout           time.Duration         `koanf:"timeout"`
		RequestsPerMinute int                   `koanf:"requests_per_minute"`
	} `koanf:"review"`

	Worker struct {
		MaxWorkers   int           `koanf:"max_workers"`
		MaxAttempts  int           `koanf:"max_attempts"`
		RouteTimeout time.Duration `koanf:"route_timeout"`
		SweepTimeout time.Duration `koanf:"sweep_timeout"`
	} `koanf:"worker"`

	Log struct {
		Level  string `koanf:"level"`
		Pretty bool   `koanf:"pretty"`
	} `koanf:"log"`

	Metrics struct {
		Addr string `koanf:"addr"`
	} `koanf:"metrics"`
}

// ReviewOptions maps the review section onto connector options.
func (c *Config) ReviewOptions() aiconnectors.Options {
	return aiconnectors.Options{
		Provider:    c.Review.Provider,
		Model:       c.Review.Model,
		APIKey:      c.Review.APIKey,
		BaseURL:     c.Review.BaseURL,
		Temperature: c.Review.Temperature,
	}
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"database.max_conns":         10,
		"graduation.min_group_size":  3,
		"graduation.recency_window":  "720h",
		"graduation.sweep_interval":  "15m",
		"graduation.title_max_len":   80,
		"review.enabled":             false,
		"review.provider":            "gemini",
		"review.temperature":         0.2,
		"review.timeout":             "30s",
		"review.requests_per_minute": 30,
		"worker.max_workers":         10,
		"worker.max_attempts":        25,
		"worker.route_timeout":       "2m",
		"worker.sweep_timeout":       "10m",
		"log.level":                  "info",
		"log.pretty":                 false,
		"metrics.addr":               ":9464",
	}
}

// DefaultPaths are tried in order when no config path is given.
var DefaultPaths = []string{"./feedforward.toml", "./data/feedforward.toml", "$HOME/.feedforward.toml"}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		for _, path := range DefaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
					return nil, fmt.Errorf("error loading config %s: %w", path, err)
				}
				break
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// envKey turns FEEDFORWARD_REVIEW__API_KEY into review.api_key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

const sampleConfig = `# FeedForward configuration

[database]
# Falls back to DATABASE_URL or a .env file when empty.
url = ""
max_conns = 10

[graduation]
min_group_size = 3
recency_window = "720h"
sweep_interval = "15m"
title_max_len = 80

[review]
enabled = false
provider = "gemini"
model = "gemini-2.5-flash"
api_key = ""
timeout = "30s"
requests_per_minute = 30

[worker]
max_workers = 10
route_timeout = "2m"

[log]
level = "info"
pretty = false

[metrics]
addr = ":9464"
`

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}
	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate validates the configuration
func Validate(config *Config) error {
	g := config.Graduation
	if g.MinGroupSize < 2 {
		return fmt.Errorf("graduation.min_group_size must be at least 2, got %d", g.MinGroupSize)
	}
	if g.RecencyWindow <= 0 {
		return fmt.Errorf("graduation.recency_window must be positive")
	}
	if g.SweepInterval < 0 {
		return fmt.Errorf("graduation.sweep_interval must not be negative")
	}
	if g.TitleMaxLen < 10 {
		return fmt.Errorf("graduation.title_max_len must be at least 10, got %d", g.TitleMaxLen)
	}

	if config.Review.Enabled {
		switch config.Review.Provider {
		case aiconnectors.ProviderOllama:
			if config.Review.BaseURL == "" {
				return fmt.Errorf("review.base_url is required for ollama")
			}
		case aiconnectors.ProviderOpenAI, aiconnectors.ProviderGemini, aiconnectors.ProviderClaude, aiconnectors.ProviderCohere:
			if config.Review.APIKey == "" {
				return fmt.Errorf("review.api_key is required for %s", config.Review.Provider)
			}
		default:
			return fmt.Errorf("unsupported review provider %q", config.Review.Provider)
		}
		if config.Review.Timeout <= 0 {
			return fmt.Errorf("review.timeout must be positive")
		}
	}

	if config.Worker.MaxWorkers <= 0 {
		return fmt.Errorf("worker.max_workers must be positive")
	}
	return nil
}
