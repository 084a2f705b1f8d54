// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(...) initializer to build a Config with defaults.
// - Load layers a YAML file and the environment on top of the defaults.
// - Errors are wrapped with this package's sentinels.
package config

import (
	"context"
	"runtime"
	"time"
)

// InsecureAiessKey is the placeholder webhook key. It is refused outside debug mode.
const InsecureAiessKey = "absolutelyunsafekey"

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Debug relaxes safety checks for local development.
	Debug bool `koanf:"debug"`

	// DBDriver is "sqlite" or "postgres"; DBDSN is the driver's data source.
	DBDriver string `koanf:"db_driver"`
	DBDSN    string `koanf:"db_dsn"`

	// DefaultCalculator is used when a request names none.
	DefaultCalculator string `koanf:"default_calculator"`
	// Calculators are run for every moderator on each cycle.
	Calculators []string `koanf:"calculators"`

	SiteURL         string `koanf:"site_url"`
	SiteSession     string `koanf:"site_session"`
	InteropURL      string `koanf:"interop_url"`
	InteropUsername string `koanf:"interop_username"`
	InteropPassword string `koanf:"interop_password"`

	APIURL string `koanf:"api_url"`
	APIKey string `koanf:"api_key"`

	// UseAiess drops nominations from the site feed; aiess pushes them.
	UseAiess bool   `koanf:"use_aiess"`
	AiessKey string `koanf:"aiess_key"`

	// SystemUserID is the account whose resets never penalise anyone.
	SystemUserID int64 `koanf:"system_user_id"`

	ActivityDays     int `koanf:"activity_days"`
	ScoreDays        int `koanf:"score_days"`
	MapperWindowDays int `koanf:"mapper_window_days"`

	RefreshIntervalMinutes int `koanf:"refresh_interval_minutes"`

	WorkerCount int `koanf:"worker_count"`
	QueueSize   int `koanf:"queue_size"`

	// Kafka ingestion is enabled when brokers and topic are set.
	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`
	KafkaGroupID string   `koanf:"kafka_group_id"`

	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		DBDriver:               "sqlite",
		DBDSN:                  "file:bnstats.db?_pragma=busy_timeout(5000)",
		DefaultCalculator:      "naxess",
		Calculators:            []string{"naxess", "ren"},
		SiteURL:                "https://bn.mappersguild.com",
		InteropURL:             "https://bn.mappersguild.com/interOp",
		APIURL:                 "https://osu.ppy.sh/api",
		AiessKey:               InsecureAiessKey,
		SystemUserID:           3,
		ActivityDays:           90,
		ScoreDays:              90,
		MapperWindowDays:       180,
		RefreshIntervalMinutes: 60,
		WorkerCount:            runtime.NumCPU(),
		QueueSize:              1024,
		KafkaGroupID:           "bnstats",
		MaxLeaderboardLimit:    100,
	}
}

// UseInterop reports whether the interop API credentials are configured.
func (c *Config) UseInterop() bool {
	return c.InteropUsername != "" && c.InteropPassword != ""
}

// KafkaEnabled reports whether the aiess stream should be consumed.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaTopic != ""
}

// RefreshInterval is the time between refresh cycles.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMinutes) * time.Minute
}

// MapperWindow is how far back mapper repetition is counted.
func (c *Config) MapperWindow() time.Duration {
	return time.Duration(c.MapperWindowDays) * 24 * time.Hour
}
