// Package config provides configuration management for curator.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/FranksOps/curator/internal/fingerprint"
)

// EnvPrefix prefixes every environment override, e.g. CURATOR_SERVER_PORT.
const EnvPrefix = "CURATOR"

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	YouTube  YouTubeConfig  `mapstructure:"youtube"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	Ranking  RankingConfig  `mapstructure:"ranking"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// YouTubeConfig configures the Data API client used for search and validation.
//
//nolint:govet // fieldalignment
type YouTubeConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	Endpoint          string        `mapstructure:"endpoint"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RegionCode        string        `mapstructure:"region_code"`
	RelevanceLanguage string        `mapstructure:"relevance_language"`
	MaxResults        int64         `mapstructure:"max_results"`
	SafeSearch        string        `mapstructure:"safe_search"`
	DailyQuota        int           `mapstructure:"daily_quota"`
	QuotaThreshold    int           `mapstructure:"quota_threshold"`
}

// EmbedConfig configures the embed page prober.
//
//nolint:govet // fieldalignment
type EmbedConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
	RPS         float64       `mapstructure:"rps"`
	Burst       int           `mapstructure:"burst"`
	Jitter      float64       `mapstructure:"jitter"`
	Concurrency int           `mapstructure:"concurrency"`
	Fingerprint string        `mapstructure:"fingerprint"`
	UserAgents  []string      `mapstructure:"user_agents"`
	Proxies     []string      `mapstructure:"proxies"`
}

// RankingConfig sets the popularity score weights.
type RankingConfig struct {
	ViewsWeight float64 `mapstructure:"views_weight"`
	LikesWeight float64 `mapstructure:"likes_weight"`
	Limit       int     `mapstructure:"limit"`
}

// PipelineConfig bounds the orchestrator.
type PipelineConfig struct {
	MaxProbe  int           `mapstructure:"max_probe"`
	ResultTTL time.Duration `mapstructure:"result_ttl"`
}

// CacheConfig selects and configures the cache backing.
//
//nolint:govet // fieldalignment
type CacheConfig struct {
	Backend string `mapstructure:"backend"`
	// SweepInterval is how often the in-process tier drops expired entries.
	SweepInterval time.Duration  `mapstructure:"sweep_interval"`
	Redis         RedisConfig    `mapstructure:"redis"`
	SQLite        SQLiteConfig   `mapstructure:"sqlite"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig contains the redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SQLiteConfig points at the sqlite cache file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig holds the postgres DSN.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// Cache backend names.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

var defaults = map[string]any{
	"server.port":             8080,
	"server.shutdown_timeout": 15 * time.Second,
	"server.mode":             "release",

	"logging.level": "info",
	"logging.file":  "",

	"youtube.api_key":            "",
	"youtube.endpoint":           "",
	"youtube.timeout":            10 * time.Second,
	"youtube.region_code":        "",
	"youtube.relevance_language": "en",
	"youtube.max_results":        15,
	"youtube.safe_search":        "strict",
	"youtube.daily_quota":        10000,
	"youtube.quota_threshold":    90,

	"embed.base_url":    "https://www.youtube.com",
	"embed.timeout":     8 * time.Second,
	"embed.cache_ttl":   24 * time.Hour,
	"embed.rps":         5.0,
	"embed.burst":       2,
	"embed.jitter":      0.2,
	"embed.concurrency": 4,
	"embed.fingerprint": "go",
	"embed.user_agents": []string{},
	"embed.proxies":     []string{},

	"ranking.views_weight": 0.7,
	"ranking.likes_weight": 0.3,
	"ranking.limit":        3,

	"pipeline.max_probe":  8,
	"pipeline.result_ttl": 10 * time.Minute,

	"cache.backend":        BackendMemory,
	"cache.sweep_interval": 5 * time.Minute,
	"cache.redis.addr":     "localhost:6379",
	"cache.redis.password": "",
	"cache.redis.db":       0,
	"cache.sqlite.path":    "curator-cache.db",
	"cache.postgres.dsn":   "",
}

// Load reads configuration from an optional file and the environment.
// An empty path searches for config.yaml in . and ./config.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)
	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// bindEnvs binds every known key explicitly; AutomaticEnv alone does not
// reach nested keys during Unmarshal.
func bindEnvs(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for k := range defaults {
		if err := v.BindEnv(k); err != nil {
			return fmt.Errorf("bind env %s: %w", k, err)
		}
	}
	// The bare variable is what most deployments already export.
	if err := v.BindEnv("youtube.api_key", EnvPrefix+"_YOUTUBE_API_KEY", "YOUTUBE_API_KEY"); err != nil {
		return fmt.Errorf("bind env youtube.api_key: %w", err)
	}
	return nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Ranking.Limit < 1 || c.Ranking.Limit > 3 {
		return fmt.Errorf("config: ranking.limit must be between 1 and 3, got %d", c.Ranking.Limit)
	}
	if c.Ranking.ViewsWeight < 0 || c.Ranking.LikesWeight < 0 {
		return errors.New("config: ranking weights must not be negative")
	}
	if c.Pipeline.MaxProbe < 1 || c.Pipeline.MaxProbe > 8 {
		return fmt.Errorf("config: pipeline.max_probe must be between 1 and 8, got %d", c.Pipeline.MaxProbe)
	}
	if c.YouTube.MaxResults < 1 || c.YouTube.MaxResults > 50 {
		return fmt.Errorf("config: youtube.max_results must be between 1 and 50, got %d", c.YouTube.MaxResults)
	}
	if _, err := fingerprint.ParseProfile(c.Embed.Fingerprint); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Cache.Backend {
	case BackendMemory, BackendRedis, BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("config: unknown cache.backend %q", c.Cache.Backend)
	}
	return nil
}
