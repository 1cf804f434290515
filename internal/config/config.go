// Package config содержит логику чтения конфигурации аукционного сервиса.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config содержит параметры конфигурации аукционного сервиса.
type Config struct {
	RunAddress            string `env:"RUN_ADDRESS"`
	DatabaseURI           string `env:"DATABASE_URI"`
	RedisAddress          string `env:"REDIS_ADDRESS"`
	ListingServiceAddress string `env:"LISTING_SERVICE_ADDRESS"`

	RedisPassword string   `env:"REDIS_PASSWORD"`
	RedisDB       int      `env:"REDIS_DB" envDefault:"0"`
	AuthSecret    string   `env:"AUTH_SECRET"`
	OperatorIDs   []string `env:"OPERATOR_IDS" envSeparator:","`

	RetiredCacheSize int           `env:"RETIRED_CACHE_SIZE" envDefault:"1024"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"30s"`
	FlushInterval    time.Duration `env:"FLUSH_INTERVAL" envDefault:"1s"`
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных
// окружения. Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envRedisAddress := cfg.RedisAddress
	envListingAddress := cfg.ListingServiceAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for auction events")
	flag.StringVar(&cfg.ListingServiceAddress, "l", "", "listing service address")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}
	if envListingAddress != "" {
		cfg.ListingServiceAddress = envListingAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.RetiredCacheSize <= 0 {
		return nil, fmt.Errorf("retired cache size must be positive, got %d", cfg.RetiredCacheSize)
	}
	if cfg.SweepInterval <= 0 || cfg.FlushInterval <= 0 {
		return nil, errors.New("sweep and flush intervals must be positive")
	}

	return cfg, nil
}
