// Package postgres реализует persistence layer с использованием PostgreSQL:
// журнал событий, seed-таблицу кошельков, read-модели и чекпоинты проекций.
//
// Patterns:
// - Repository Pattern: Абстракция доступа к данным
// - Unit of Work: Управление транзакциями
// - Connection Pool: Эффективное использование соединений
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Haleralex/payledger/internal/pkg/metrics"
)

// Config содержит настройки подключения к PostgreSQL.
type Config struct {
	Host            string        // Хост БД (e.g., "localhost")
	Port            int           // Порт БД (e.g., 5432)
	Database        string        // Имя базы данных
	User            string        // Пользователь
	Password        string        // Пароль
	SSLMode         string        // SSL mode (disable, require, verify-full)
	MaxConns        int32         // Максимум соединений в пуле
	MinConns        int32         // Минимум соединений в пуле
	MaxConnLifetime time.Duration // Максимальное время жизни соединения
	MaxConnIdleTime time.Duration // Максимальное время простоя соединения
	ConnectTimeout  time.Duration // Таймаут подключения
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "payledger",
		User:            "postgres",
		Password:        "postgres",
		SSLMode:         "disable",
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}
}

// ConnectionString формирует строку подключения (key=value формат pgx).
func (c Config) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s connect_timeout=%d",
		c.Host,
		c.Port,
		c.Database,
		c.User,
		c.Password,
		c.SSLMode,
		int(c.ConnectTimeout.Seconds()),
	)
}

// URL формирует postgres:// URL для golang-migrate.
func (c Config) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// NewConnectionPool создаёт пул соединений и проверяет подключение.
//
// Example:
//
//	pool, err := NewConnectionPool(ctx, DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
func NewConnectionPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// HealthCheck проверяет здоровье подключения к БД.
// Используется проверкой готовности (/ready).
func HealthCheck(ctx context.Context, pool *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return pool.Ping(ctx)
}

// PoolStats - статистика пула соединений.
type PoolStats struct {
	TotalConns      int32 // Общее количество соединений
	IdleConns       int32 // Свободные соединения
	AcquiredConns   int32 // Используемые соединения
	MaxConns        int32 // Максимум соединений
	AcquireCount    int64 // Сколько раз запрашивали соединение
	AcquireDuration int64 // Общее время ожидания соединений (ns)
}

// GetPoolStats возвращает текущую статистику пула и обновляет gauge метрики.
func GetPoolStats(pool *pgxpool.Pool) PoolStats {
	stat := pool.Stat()
	metrics.UpdateDBConnections(stat.IdleConns(), stat.AcquiredConns(), stat.MaxConns())

	return PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().Nanoseconds(),
	}
}

// PoolChecker - проверка PostgreSQL для /ready и /health/detailed.
type PoolChecker struct {
	pool *pgxpool.Pool
}

// NewPoolChecker создаёт PoolChecker.
func NewPoolChecker(pool *pgxpool.Pool) *PoolChecker {
	return &PoolChecker{pool: pool}
}

func (p *PoolChecker) Name() string {
	return "database"
}

func (p *PoolChecker) Ping(ctx context.Context) error {
	return HealthCheck(ctx, p.pool)
}

// Details возвращает статистику пула.
func (p *PoolChecker) Details() map[string]string {
	stats := GetPoolStats(p.pool)
	return map[string]string{
		"db_total_conns":    strconv.Itoa(int(stats.TotalConns)),
		"db_idle_conns":     strconv.Itoa(int(stats.IdleConns)),
		"db_acquired_conns": strconv.Itoa(int(stats.AcquiredConns)),
		"db_max_conns":      strconv.Itoa(int(stats.MaxConns)),
	}
}
