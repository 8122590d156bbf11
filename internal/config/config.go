// Package config - Application configuration management.
//
// Использует Viper для:
// - Загрузки из YAML файлов
// - Переменных окружения (префикс PAYLEDGER_, точки заменяются на _)
// - Значений по умолчанию
//
// Порядок приоритета (от высшего к низшему):
// 1. Environment variables
// 2. Config file
// 3. Default values
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "PAYLEDGER"

// Storage drivers
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// ============================================
// Main Configuration
// ============================================

// Config - главная структура конфигурации приложения.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Payments  PaymentsConfig  `mapstructure:"payments"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

// AppConfig - конфигурация приложения.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, test, staging, production
	Debug       bool   `mapstructure:"debug"`
}

func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// ServerConfig - конфигурация HTTP сервера.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address возвращает полный адрес сервера.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig - конфигурация PostgreSQL.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int32         `mapstructure:"max_connections"`
	MinConnections  int32         `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN возвращает postgres:// URL (используется golang-migrate).
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
		c.SSLMode,
	)
}

// StorageConfig выбирает реализацию журнала и read-моделей.
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // memory, postgres
}

// RedisConfig - кэш платежей, idempotency-ключи, rate limit.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
}

// NATSConfig - внешняя рассылка событий.
type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// PublisherConfig - in-process доставка событий проекциям.
type PublisherConfig struct {
	Workers      int           `mapstructure:"workers"`
	QueueSize    int           `mapstructure:"queue_size"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	ReplayBatch  int           `mapstructure:"replay_batch"`
	// ReplayInterval - период фонового replay для событий, потерянных живой доставкой. 0 - только при старте.
	ReplayInterval time.Duration `mapstructure:"replay_interval"`
}

// PaymentsConfig - параметры обработки команд.
type PaymentsConfig struct {
	ConflictRetries int           `mapstructure:"conflict_retries"`
	IdempotencyTTL  time.Duration `mapstructure:"idempotency_ttl"`
	// IdempotencyLease - сколько ключ остаётся pending, если процесс упал до Complete.
	IdempotencyLease time.Duration `mapstructure:"idempotency_lease"`
}

// TracingConfig - OpenTelemetry.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// CORSConfig - конфигурация CORS.
type CORSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowedMethods   []string      `mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `mapstructure:"allowed_headers"`
	ExposedHeaders   []string      `mapstructure:"exposed_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

// RateLimitConfig - конфигурация rate limiting.
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	PaymentOpsPerMin  int           `mapstructure:"payment_ops_per_min"`
	Backend           string        `mapstructure:"backend"` // memory, redis
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

// LogConfig - конфигурация логирования.
type LogConfig struct {
	Level     string `mapstructure:"level"`  // debug, info, warn, error
	Format    string `mapstructure:"format"` // json, text
	AddSource bool   `mapstructure:"add_source"`
}

// ============================================
// Configuration Loading
// ============================================

// Load загружает конфигурацию из файла и переменных окружения.
//
// configPath - путь к директории с конфигурацией (например, "configs")
// configName - имя файла без расширения (например, "config")
func Load(configPath, configName string) (*Config, error) {
	v := newViper()

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/payledger")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Файл не найден - используем defaults и env vars
	}

	return decode(v)
}

// LoadFromEnv загружает конфигурацию только из defaults и переменных окружения.
func LoadFromEnv() (*Config, error) {
	return decode(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults устанавливает значения по умолчанию.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "payledger")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.database", "payledger")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.connect_timeout", "5s")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("storage.driver", StoragePostgres)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")
	v.SetDefault("redis.key_prefix", "payledger")
	v.SetDefault("redis.cache_ttl", "5m")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject_prefix", "payledger.events")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")

	v.SetDefault("publisher.workers", 4)
	v.SetDefault("publisher.queue_size", 1024)
	v.SetDefault("publisher.max_retries", 3)
	v.SetDefault("publisher.retry_backoff", "50ms")
	v.SetDefault("publisher.replay_batch", 500)
	v.SetDefault("publisher.replay_interval", "30s")

	v.SetDefault("payments.conflict_retries", 3)
	v.SetDefault("payments.idempotency_ttl", "24h")
	v.SetDefault("payments.idempotency_lease", "30s")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Accept", "X-Request-ID", "Idempotency-Key"})
	v.SetDefault("cors.exposed_headers", []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"})
	v.SetDefault("cors.allow_credentials", false)
	v.SetDefault("cors.max_age", "12h")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 100)
	v.SetDefault("rate_limit.payment_ops_per_min", 30)
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.cleanup_interval", "1m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.add_source", false)
}

// bindEnvVars привязывает короткие имена переменных, принятые в docker-compose.
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.host", envPrefix+"_DATABASE_HOST", "DB_HOST")
	_ = v.BindEnv("database.port", envPrefix+"_DATABASE_PORT", "DB_PORT")
	_ = v.BindEnv("database.user", envPrefix+"_DATABASE_USER", "DB_USER")
	_ = v.BindEnv("database.password", envPrefix+"_DATABASE_PASSWORD", "DB_PASSWORD")
	_ = v.BindEnv("database.database", envPrefix+"_DATABASE_DATABASE", "DB_NAME")

	_ = v.BindEnv("redis.addr", envPrefix+"_REDIS_ADDR", "REDIS_ADDR")
	_ = v.BindEnv("nats.url", envPrefix+"_NATS_URL", "NATS_URL")
	_ = v.BindEnv("tracing.endpoint", envPrefix+"_TRACING_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	_ = v.BindEnv("server.port", envPrefix+"_SERVER_PORT", "PORT")
	_ = v.BindEnv("app.environment", envPrefix+"_APP_ENVIRONMENT", "ENVIRONMENT", "ENV")
}

// ============================================
// Configuration Validation
// ============================================

// Validate валидирует конфигурацию.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Storage.Driver {
	case StorageMemory:
		if c.App.IsProduction() {
			return fmt.Errorf("storage driver %q is not allowed in production", StorageMemory)
		}
	case StoragePostgres:
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Storage.Driver)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}
	if c.RateLimit.Backend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("rate_limit.backend=redis requires redis.enabled")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats url is required when nats is enabled")
	}

	if c.Publisher.Workers <= 0 {
		return fmt.Errorf("publisher workers must be positive, got %d", c.Publisher.Workers)
	}
	if c.Publisher.QueueSize <= 0 {
		return fmt.Errorf("publisher queue size must be positive, got %d", c.Publisher.QueueSize)
	}
	if c.Publisher.ReplayInterval < 0 {
		return fmt.Errorf("publisher replay interval must not be negative, got %s", c.Publisher.ReplayInterval)
	}
	if c.Payments.IdempotencyLease <= 0 || c.Payments.IdempotencyLease > c.Payments.IdempotencyTTL {
		return fmt.Errorf("payments idempotency lease must be positive and not exceed idempotency ttl, got %s", c.Payments.IdempotencyLease)
	}
	if c.Payments.ConflictRetries < 0 {
		return fmt.Errorf("payments conflict retries must not be negative, got %d", c.Payments.ConflictRetries)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio must be within [0, 1], got %v", c.Tracing.SampleRatio)
	}

	return nil
}

// ============================================
// Development Helpers
// ============================================

// Development возвращает конфигурацию для локальной разработки без внешних сервисов.
func Development() *Config {
	return &Config{
		App: AppConfig{
			Name:        "payledger",
			Version:     "dev",
			Environment: "development",
			Debug:       true,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "postgres",
			Database:        "payledger",
			SSLMode:         "disable",
			MaxConnections:  10,
			MinConnections:  2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
			ConnectTimeout:  5 * time.Second,
			AutoMigrate:     true,
		},
		Storage: StorageConfig{Driver: StorageMemory},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "payledger",
			CacheTTL:  5 * time.Minute,
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "payledger.events",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Publisher: PublisherConfig{
			Workers:        4,
			QueueSize:      1024,
			MaxRetries:     3,
			RetryBackoff:   50 * time.Millisecond,
			ReplayBatch:    500,
			ReplayInterval: 30 * time.Second,
		},
		Payments: PaymentsConfig{
			ConflictRetries:  3,
			IdempotencyTTL:   24 * time.Hour,
			IdempotencyLease: 30 * time.Second,
		},
		Tracing: TracingConfig{SampleRatio: 1},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         12 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 100,
			PaymentOpsPerMin:  30,
			Backend:           "memory",
			CleanupInterval:   time.Minute,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
		},
	}
}

// Test возвращает конфигурацию для тестов.
func Test() *Config {
	cfg := Development()
	cfg.App.Environment = "test"
	cfg.Database.Database = "payledger_test"
	cfg.RateLimit.Enabled = false
	cfg.Log.Level = "error" // Меньше шума в тестах
	return cfg
}
