package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if STEPLENS_CONFIG is set
//  3. env (prefix STEPLENS_)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("STEPLENS_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
		}
	}

	// Environment variables: STEPLENS_ADDR, STEPLENS_DATABASE_DSN, ...
	// Underscores are preserved to match the koanf tags on the struct.
	envProvider := env.Provider("STEPLENS_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "steplens_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DefaultWindowDays <= 0:
		return fmt.Errorf("%w: default_window_days must be positive", ErrInvalidConfig)
	case c.MaterializeWorkers <= 0:
		return fmt.Errorf("%w: materialize_workers must be positive", ErrInvalidConfig)
	case c.MaterializeQueueSize <= 0:
		return fmt.Errorf("%w: materialize_queue_size must be positive", ErrInvalidConfig)
	case c.MaxSegments <= 0:
		return fmt.Errorf("%w: max_segments must be positive", ErrInvalidConfig)
	}
	return nil
}
