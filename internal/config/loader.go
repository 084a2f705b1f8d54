package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/bnstats/internal/domain/scoring"
)

// Environment variables that locate configuration sources.
const (
	envPrefix  = "BNSTATS_"
	envConfig  = "BNSTATS_CONFIG"
	envEnvFile = "BNSTATS_ENV_FILE"
	dotEnv     = ".env"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  0. a dotenv file (BNSTATS_ENV_FILE, default .env) is merged into the
//     process environment without overriding variables already set
//  1. defaults (New(ctx))
//  2. file (YAML) if BNSTATS_CONFIG is set
//  3. env (prefix BNSTATS_)
func Load(ctx context.Context) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	base := New(ctx)
	k := koanf.New(".")

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
	}

	// BNSTATS_DB_DSN -> db_dsn; underscores are kept to match the koanf tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotEnv() error {
	path, explicit := os.LookupEnv(envEnvFile)
	if !explicit || path == "" {
		path = dotEnv
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
	}
	return nil
}

// Validate checks the settings the service cannot run without.
func (c *Config) Validate() error {
	var problems []string
	insecure := c.AiessKey == InsecureAiessKey && !c.Debug
	if c.Addr == "" {
		problems = append(problems, "addr must not be empty")
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		problems = append(problems, "log_format must be text or json")
	}
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("db_driver %q is not sqlite or postgres", c.DBDriver))
	}
	if _, err := scoring.Lookup(c.DefaultCalculator); err != nil {
		problems = append(problems, "default_calculator: "+err.Error())
	}
	if len(c.Calculators) == 0 {
		problems = append(problems, "calculators must not be empty")
	}
	for _, name := range c.Calculators {
		if _, err := scoring.Lookup(name); err != nil {
			problems = append(problems, "calculators: "+err.Error())
		}
	}
	if insecure {
		problems = append(problems, "aiess_key must be changed outside debug mode")
	}
	if c.WorkerCount < 1 {
		problems = append(problems, "worker_count must be positive")
	}
	if c.QueueSize < 1 {
		problems = append(problems, "queue_size must be positive")
	}
	if c.ActivityDays < 1 || c.ScoreDays < 1 || c.MapperWindowDays < 1 {
		problems = append(problems, "activity_days, score_days and mapper_window_days must be positive")
	}
	if c.RefreshIntervalMinutes < 1 {
		problems = append(problems, "refresh_interval_minutes must be positive")
	}
	if len(problems) > 0 {
		if insecure {
			return fmt.Errorf("%w: %w: %s", ErrInvalidConfig, ErrInsecureAiessKey, strings.Join(problems, "; "))
		}
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
