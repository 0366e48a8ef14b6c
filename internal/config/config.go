package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	AutoMigrate bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`
	CatalogPath string `envconfig:"CATALOG_PATH"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	DashboardCacheTTL time.Duration `envconfig:"DASHBOARD_CACHE_TTL" default:"30s"`
	StoreTimezone     string        `envconfig:"STORE_TIMEZONE" default:"Local"`

	RollupCron        string `envconfig:"ROLLUP_CRON" default:"10 0 * * *"`
	RollupQueueSize   int    `envconfig:"ROLLUP_QUEUE_SIZE" default:"64"`
	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"5"`

	AuthSecret      string        `envconfig:"AUTH_SECRET"`
	AccessTokenTTL  time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"8h"`
	LoginRatePerMin int           `envconfig:"LOGIN_RATE_PER_MINUTE" default:"10"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.DashboardCacheTTL <= 0 {
		return Config{}, fmt.Errorf("DASHBOARD_CACHE_TTL must be positive")
	}
	if cfg.AccessTokenTTL <= 0 {
		return Config{}, fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location is the store's calendar, used for dashboard period boundaries.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.StoreTimezone)
	if err != nil {
		return nil, fmt.Errorf("STORE_TIMEZONE %q: %w", c.StoreTimezone, err)
	}
	return loc, nil
}
