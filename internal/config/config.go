package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Log source configuration.
	LogSourceBaseURL   string
	LogSourceToken     string
	LogSourcePageLimit int
	LogSourceTimeout   time.Duration
	LogSourceRate      float64
	FetchConcurrency   int
	FetchRetries       int

	OrganizationID string
	DatabaseURL    string
	MigrateOnStart bool
	ChargersFile   string

	DedupWindow  time.Duration
	SyncInterval time.Duration

	// Run lock. An empty RedisAddr disables locking.
	RedisAddr     string
	RedisPassword string
	LockTTL       time.Duration

	// Downstream publish. No brokers disables publishing.
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	logSourceTimeout, err := parseDuration("LOG_SOURCE_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	dedupWindow, err := parseDuration("DEDUP_WINDOW", "6h")
	if err != nil {
		return nil, err
	}
	syncInterval, err := parseDuration("SYNC_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}
	lockTTL, err := parseDuration("LOCK_TTL", "10m")
	if err != nil {
		return nil, err
	}

	pageLimit, err := parsePositiveInt("LOG_SOURCE_PAGE_LIMIT", 500)
	if err != nil {
		return nil, err
	}
	concurrency, err := parsePositiveInt("FETCH_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}
	retries, err := parseNonNegativeInt("FETCH_RETRIES", 2)
	if err != nil {
		return nil, err
	}

	rate, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("LOG_SOURCE_RATE", "5"), 64)
	if err != nil || rate <= 0 {
		return nil, errors.New("invalid LOG_SOURCE_RATE: must be a positive number")
	}

	migrateOnStart, err := strconv.ParseBool(sharedcfg.EnvOrDefault("MIGRATE_ON_START", "true"))
	if err != nil {
		return nil, errors.New("invalid MIGRATE_ON_START: must be true or false")
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		LogSourceBaseURL:   strings.TrimRight(sharedcfg.EnvOrDefault("LOG_SOURCE_BASE_URL", "https://coralev.epiccharging.com/api/v1/charger-port"), "/"),
		LogSourceToken:     os.Getenv("LOG_SOURCE_TOKEN"),
		LogSourcePageLimit: pageLimit,
		LogSourceTimeout:   logSourceTimeout,
		LogSourceRate:      rate,
		FetchConcurrency:   concurrency,
		FetchRetries:       retries,

		OrganizationID: os.Getenv("ORGANIZATION_ID"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MigrateOnStart: migrateOnStart,
		ChargersFile:   os.Getenv("CHARGERS_FILE"),

		DedupWindow:  dedupWindow,
		SyncInterval: syncInterval,

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		LockTTL:       lockTTL,

		KafkaTopic: sharedcfg.EnvOrDefault("KAFKA_TOPIC", "ocpp-log-records"),
	}
	if brokers := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); brokers != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if cfg.OrganizationID == "" {
		return nil, errors.New("ORGANIZATION_ID is required")
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.LogSourceBaseURL == "" {
		return nil, errors.New("LOG_SOURCE_BASE_URL is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// LockEnabled reports whether passes take the Redis run lock.
func (c *Config) LockEnabled() bool { return c.RedisAddr != "" }

// PublishEnabled reports whether net-new records are published to Kafka.
func (c *Config) PublishEnabled() bool { return len(c.KafkaBrokers) > 0 }

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, strconv.Itoa(fallback)))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseNonNegativeInt(key string, fallback int) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, strconv.Itoa(fallback)))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: must be zero or a positive integer", key)
	}
	return n, nil
}
