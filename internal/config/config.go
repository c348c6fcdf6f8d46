package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the engine's runtime configuration. Policy files (source registry,
// scoring) are loaded separately by internal/policy; this covers everything
// environment-driven.
type Config struct {
	UseV2 bool `mapstructure:"use_v2"`

	CacheDir         string        `mapstructure:"cache_dir"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	AuditDir         string        `mapstructure:"audit_dir"`
	UserAgent        string        `mapstructure:"user_agent"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	PolitenessDelay  time.Duration `mapstructure:"politeness_delay"`
	MaxInFlight      int           `mapstructure:"max_in_flight"`
	SourcesPath      string        `mapstructure:"sources_path"`
	ScoringPath      string        `mapstructure:"scoring_path"`
	JurisdictionPath string        `mapstructure:"jurisdiction_path"`
}

// Load reads configuration from an optional config file plus PRESEARCH_*
// environment overrides, falling back to defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("presearch")
	v.AutomaticEnv()

	v.SetDefault("use_v2", true)
	v.SetDefault("cache_dir", "data/cache")
	v.SetDefault("cache_ttl", 86400*time.Second)
	v.SetDefault("audit_dir", "data/audit")
	v.SetDefault("user_agent", "presearch/1.0 (+pre-session research engine)")
	v.SetDefault("request_timeout", 8*time.Second)
	v.SetDefault("max_retries", 2)
	v.SetDefault("politeness_delay", 500*time.Millisecond)
	v.SetDefault("max_in_flight", 6)
	v.SetDefault("sources_path", "config/sources.yaml")
	v.SetDefault("scoring_path", "config/scoring.yaml")
	v.SetDefault("jurisdiction_path", "config/jurisdictions.json")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 1
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return &c, nil
}
