package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. LEETCRAWL_DB_PATH.
const EnvPrefix = "LEETCRAWL"

type Config struct {
	DB    DBConfig    `mapstructure:"db"`
	Fetch FetchConfig `mapstructure:"fetch"`
	Crawl CrawlConfig `mapstructure:"crawl"`
	Log   LogConfig   `mapstructure:"log"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type FetchConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Categories []string      `mapstructure:"categories"`
	Timeout    time.Duration `mapstructure:"timeout"`
	// Rate is the number of requests per second, 0 for no limit. Burst is the
	// limiter bucket size.
	Rate  float64 `mapstructure:"rate"`
	Burst int     `mapstructure:"burst"`
}

type CrawlConfig struct {
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	// FrontierLimit caps the number of items enriched per run; 0 means all.
	FrontierLimit int `mapstructure:"frontier_limit"`
}

type LogConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db.driver", "sqlite3")
	v.SetDefault("db.path", "leetcode.db")
	v.SetDefault("fetch.base_url", "https://leetcode.com")
	v.SetDefault("fetch.categories", []string{"algorithms", "database", "shell", "concurrency"})
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.rate", 2.0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("crawl.workers", 4)
	v.SetDefault("crawl.batch_size", 50)
	v.SetDefault("crawl.flush_interval", time.Second)
	v.SetDefault("crawl.frontier_limit", 0)
	v.SetDefault("log.mode", "dev")
	v.SetDefault("log.level", "info")
}

// Load reads defaults, then the optional config file at path (any format
// viper understands), then LEETCRAWL_* environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the crawler cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.DB.Driver {
	case "sqlite3", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("db.driver must be sqlite3 or sqlite, got %q", c.DB.Driver))
	}
	if c.DB.Path == "" {
		errs = append(errs, errors.New("db.path is empty"))
	}
	if c.Fetch.BaseURL == "" {
		errs = append(errs, errors.New("fetch.base_url is empty"))
	}
	if c.Fetch.Rate < 0 {
		errs = append(errs, fmt.Errorf("fetch.rate must not be negative, got %v", c.Fetch.Rate))
	}
	if c.Crawl.Workers <= 0 {
		errs = append(errs, fmt.Errorf("crawl.workers must be positive, got %d", c.Crawl.Workers))
	}
	if c.Crawl.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("crawl.batch_size must be positive, got %d", c.Crawl.BatchSize))
	}
	return errors.Join(errs...)
}
