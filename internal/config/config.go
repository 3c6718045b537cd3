package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Server    ServerConfig
	Storage   string
	Postgres  PostgresConfig
	Redis     RedisConfig
	AMQP      AMQPConfig
	Inventory InventoryConfig
	Reclaimer ReclaimerConfig
	RateLimit RateLimitConfig
	LogLevel  slog.Level
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type PostgresConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     int
	SSLMode  string
	MaxConns int32
	Migrate  bool
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Name,
		c.SSLMode,
	)
}

type AMQPConfig struct {
	URL   string
	Queue string
}

type InventoryConfig struct {
	// URL of the inventory service. Empty runs the inventory in-process.
	URL                 string
	PlaceholderTTL      time.Duration
	PlaceholderInterval time.Duration
}

type ReclaimerConfig struct {
	Interval     time.Duration
	InitialDelay time.Duration
	LockTTL      time.Duration
	BatchSize    int
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

func New() (*Config, error) {
	const op = "config.New"

	_ = godotenv.Load()

	serverPort, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	serverCfg := ServerConfig{
		Host: strEnv("SERVER_HOST", "localhost"),
		Port: serverPort,
	}

	storage := strings.ToLower(strEnv("STORAGE", StoragePostgres))
	if storage != StoragePostgres && storage != StorageMemory {
		return nil, fmt.Errorf("%s: invalid STORAGE %q", op, storage)
	}

	postgresCfg, err := loadPostgres(storage == StoragePostgres)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisEnabled, err := boolEnv("REDIS_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisDB, err := intEnv("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	redisCfg := RedisConfig{
		Enabled:  redisEnabled,
		Addr:     strEnv("REDIS_ADDR", "localhost:6380"),
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       redisDB,
	}

	inventoryCfg := InventoryConfig{
		URL: strings.TrimRight(os.Getenv("INVENTORY_URL"), "/"),
	}
	if inventoryCfg.PlaceholderTTL, err = durationEnv("PLACEHOLDER_TTL", 20*time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if inventoryCfg.PlaceholderInterval, err = durationEnv("PLACEHOLDER_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var reclaimerCfg ReclaimerConfig
	if reclaimerCfg.Interval, err = durationEnv("RECLAIM_INTERVAL", 5*time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if reclaimerCfg.InitialDelay, err = durationEnv("RECLAIM_INITIAL_DELAY", time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if reclaimerCfg.LockTTL, err = durationEnv("RECLAIM_LOCK_TTL", 4*time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if reclaimerCfg.BatchSize, err = intEnv("RECLAIM_BATCH_SIZE", 500); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var rateCfg RateLimitConfig
	if rateCfg.Limit, err = intEnv("RATE_LIMIT", 10); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rateCfg.Window, err = durationEnv("RATE_LIMIT_WINDOW", time.Minute); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("%s: invalid LOG_LEVEL: %w", op, err)
	}

	return &Config{
		Server:   serverCfg,
		Storage:  storage,
		Postgres: postgresCfg,
		Redis:    redisCfg,
		AMQP: AMQPConfig{
			URL:   os.Getenv("AMQP_URL"),
			Queue: strEnv("AMQP_QUEUE", "booking.events"),
		},
		Inventory: inventoryCfg,
		Reclaimer: reclaimerCfg,
		RateLimit: rateCfg,
		LogLevel:  level,
	}, nil
}

func loadPostgres(required bool) (PostgresConfig, error) {
	port, err := intEnv("POSTGRES_PORT", 5432)
	if err != nil {
		return PostgresConfig{}, err
	}

	maxConns, err := intEnv("POSTGRES_MAX_CONNS", 0)
	if err != nil {
		return PostgresConfig{}, err
	}

	migrate, err := boolEnv("POSTGRES_MIGRATE", false)
	if err != nil {
		return PostgresConfig{}, err
	}

	cfg := PostgresConfig{
		User:     os.Getenv("POSTGRES_USER"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Name:     os.Getenv("POSTGRES_DB"),
		Host:     strEnv("POSTGRES_HOST", "localhost"),
		Port:     port,
		SSLMode:  strEnv("POSTGRES_SSLMODE", "disable"),
		MaxConns: int32(maxConns),
		Migrate:  migrate,
	}

	if !required {
		return cfg, nil
	}

	if cfg.User == "" {
		return cfg, fmt.Errorf("missing POSTGRES_USER")
	}
	if cfg.Password == "" {
		return cfg, fmt.Errorf("missing POSTGRES_PASSWORD")
	}
	if cfg.Name == "" {
		return cfg, fmt.Errorf("missing POSTGRES_DB")
	}

	return cfg, nil
}

func strEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
