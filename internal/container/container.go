// Package container - Dependency Injection container for the application.
//
// Container управляет жизненным циклом всех зависимостей:
// - Создание (Initialize / Builder)
// - Доступ (getters)
// - Запуск фоновых компонентов (Start)
// - Закрытие (Close)
//
// Pattern: Composition Root
// - Все зависимости собираются в одном месте
// - Реализации (memory / postgres, redis, nats) выбираются по конфигурации
package container

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	natsgo "github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Haleralex/payledger/internal/adapters/http"
	"github.com/Haleralex/payledger/internal/adapters/http/handlers"
	"github.com/Haleralex/payledger/internal/adapters/http/middleware"
	"github.com/Haleralex/payledger/internal/application/bus"
	"github.com/Haleralex/payledger/internal/application/ports"
	"github.com/Haleralex/payledger/internal/application/projections"
	"github.com/Haleralex/payledger/internal/application/usecases/payment"
	"github.com/Haleralex/payledger/internal/config"
	redisstore "github.com/Haleralex/payledger/internal/infrastructure/cache/redis"
	"github.com/Haleralex/payledger/internal/infrastructure/messaging/inprocess"
	natsfanout "github.com/Haleralex/payledger/internal/infrastructure/messaging/nats"
	"github.com/Haleralex/payledger/internal/infrastructure/persistence/memory"
	"github.com/Haleralex/payledger/internal/infrastructure/persistence/postgres"
	"github.com/Haleralex/payledger/internal/pkg/logger"
	"github.com/Haleralex/payledger/internal/pkg/tracing"
)

// ============================================
// Container
// ============================================

// Container - DI контейнер приложения.
type Container struct {
	config    *config.Config
	logger    *slog.Logger
	buildTime string

	// Infrastructure
	pool     *pgxpool.Pool
	redis    goredis.UniversalClient
	natsConn *natsgo.Conn

	// ownsPool / ownsRedis - создано контейнером, закрывается в Close
	ownsPool  bool
	ownsRedis bool

	// Storage
	store        ports.EventStore
	wallets      ports.WalletRepository
	walletReads  ports.WalletReadRepository
	paymentReads ports.PaymentReadRepository
	checkpoints  ports.CheckpointRepository
	uow          ports.UnitOfWork

	// Cache / idempotency / rate limit
	cache         ports.PaymentCache
	idempotency   ports.IdempotencyStore
	rateLimits    ports.RateLimiter
	memoryLimiter *middleware.MemoryRateLimiter

	// Messaging
	publisher *inprocess.Publisher
	projector *projections.Projector
	replayer  *projections.Replayer

	// Application
	bus      *bus.Bus
	checkers []handlers.DependencyChecker

	// HTTP
	router     *gin.Engine
	httpServer *http.Server

	tracingShutdown tracing.ShutdownFunc
	closeOnce       sync.Once
	closeErr        error
}

// New создаёт новый контейнер с заданной конфигурацией.
func New(cfg *config.Config) *Container {
	return &Container{
		config:    cfg,
		buildTime: "unknown",
	}
}

// ============================================
// Initialization
// ============================================

// Initialize инициализирует все зависимости.
func (c *Container) Initialize(ctx context.Context) error {
	if c.logger == nil {
		c.logger = c.initLogger()
	}
	c.logger.Info("Initializing application container...",
		slog.String("storage", c.config.Storage.Driver),
	)

	// 1. Tracing
	if err := c.initTracing(ctx); err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// 2. Storage
	if err := c.initStorage(ctx); err != nil {
		c.abort(ctx)
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.logger.Info("Storage initialized")

	// 3. Redis (cache, idempotency, rate limit)
	if err := c.initRedis(ctx); err != nil {
		c.abort(ctx)
		return fmt.Errorf("failed to initialize redis: %w", err)
	}

	// 4. Messaging and projections
	if err := c.initMessaging(); err != nil {
		c.abort(ctx)
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	c.logger.Info("Event publisher initialized")

	// 5. Use Cases
	c.initUseCases()
	c.logger.Info("Use cases initialized", slog.Int("handlers", len(c.bus.Kinds())))

	// 6. HTTP Server
	c.initHTTPServer()
	c.logger.Info("HTTP server initialized")

	c.logger.Info("Container initialization complete")
	return nil
}

// abort освобождает то, что успело открыться до ошибки инициализации.
func (c *Container) abort(ctx context.Context) {
	if err := c.Close(ctx); err != nil {
		c.logger.Warn("cleanup after failed initialization", slog.String("error", err.Error()))
	}
}

// initLogger инициализирует логгер.
func (c *Container) initLogger() *slog.Logger {
	return logger.Setup(&logger.Config{
		Level:       c.config.Log.Level,
		Format:      c.config.Log.Format,
		Output:      os.Stdout,
		AddSource:   c.config.Log.AddSource || c.config.App.Debug,
		Service:     c.config.App.Name,
		Environment: c.config.App.Environment,
	})
}

// initTracing регистрирует глобальный tracer provider.
func (c *Container) initTracing(ctx context.Context) error {
	shutdown, err := tracing.Setup(ctx, tracing.Config{
		Enabled:     c.config.Tracing.Enabled,
		Endpoint:    c.config.Tracing.Endpoint,
		ServiceName: c.config.App.Name,
		Environment: c.config.App.Environment,
		SampleRatio: c.config.Tracing.SampleRatio,
	})
	if err != nil {
		return err
	}
	c.tracingShutdown = shutdown
	return nil
}

// initStorage выбирает реализацию журнала и read-моделей.
func (c *Container) initStorage(ctx context.Context) error {
	switch c.config.Storage.Driver {
	case config.StorageMemory:
		c.initMemoryStorage()
		return nil
	case config.StoragePostgres:
		return c.initPostgresStorage(ctx)
	default:
		return fmt.Errorf("unknown storage driver %q", c.config.Storage.Driver)
	}
}

func (c *Container) initMemoryStorage() {
	seeds := memory.DefaultSeeds()
	c.store = memory.NewEventStore()
	c.wallets = memory.NewWalletRepository(seeds)
	c.walletReads = memory.NewWalletReadRepository(seeds)
	c.paymentReads = memory.NewPaymentReadRepository()
	c.checkpoints = memory.NewCheckpointRepository()
	c.uow = memory.NewUnitOfWork()
	c.idempotency = memory.NewIdempotencyStore()
}

func (c *Container) initPostgresStorage(ctx context.Context) error {
	db := c.config.Database

	if db.AutoMigrate {
		if err := postgres.MigrateUp(db.DSN(), c.logger); err != nil {
			return err
		}
	}

	if c.pool == nil {
		pool, err := postgres.NewConnectionPool(ctx, postgres.Config{
			Host:            db.Host,
			Port:            db.Port,
			Database:        db.Database,
			User:            db.User,
			Password:        db.Password,
			SSLMode:         db.SSLMode,
			MaxConns:        db.MaxConnections,
			MinConns:        db.MinConnections,
			MaxConnLifetime: db.MaxConnLifetime,
			MaxConnIdleTime: db.MaxConnIdleTime,
			ConnectTimeout:  db.ConnectTimeout,
		})
		if err != nil {
			return err
		}
		c.pool = pool
		c.ownsPool = true
	}
	c.logger.Info("Database connected",
		slog.String("host", db.Host),
		slog.String("database", db.Database),
	)

	c.store = postgres.NewEventStore(c.pool)
	c.wallets = postgres.NewWalletRepository(c.pool)
	c.walletReads = postgres.NewWalletReadRepository(c.pool)
	c.paymentReads = postgres.NewPaymentReadRepository(c.pool)
	c.checkpoints = postgres.NewCheckpointRepository(c.pool)
	c.uow = postgres.NewUnitOfWork(c.pool)
	// Без Redis idempotency-ключи живут в памяти процесса.
	c.idempotency = memory.NewIdempotencyStore()

	c.checkers = append(c.checkers, postgres.NewPoolChecker(c.pool))
	return nil
}

// initRedis подключает Redis, если он включён или передан через Builder.
func (c *Container) initRedis(ctx context.Context) error {
	rc := c.config.Redis

	if c.redis == nil && rc.Enabled {
		client, err := redisstore.NewClient(ctx, redisstore.Config{
			Addr:         rc.Addr,
			Password:     rc.Password,
			DB:           rc.DB,
			PoolSize:     rc.PoolSize,
			DialTimeout:  rc.DialTimeout,
			ReadTimeout:  rc.ReadTimeout,
			WriteTimeout: rc.WriteTimeout,
			KeyPrefix:    rc.KeyPrefix,
		}, c.logger)
		if err != nil {
			return err
		}
		c.redis = client
		c.ownsRedis = true
	}

	if c.redis != nil {
		c.cache = redisstore.NewPaymentCache(c.redis, rc.KeyPrefix, rc.CacheTTL)
		c.idempotency = redisstore.NewIdempotencyStore(c.redis, rc.KeyPrefix)
		c.checkers = append(c.checkers, redisstore.NewHealthCheck(c.redis))
	}

	if c.config.RateLimit.Backend == "redis" && c.redis != nil {
		c.rateLimits = redisstore.NewRateLimitStore(c.redis, rc.KeyPrefix)
	} else {
		c.memoryLimiter = middleware.NewMemoryRateLimiter(c.config.RateLimit.CleanupInterval)
		c.rateLimits = c.memoryLimiter
	}
	return nil
}

// initMessaging собирает publisher, проекции, replayer и NATS fan-out.
func (c *Container) initMessaging() error {
	pc := c.config.Publisher

	c.publisher = inprocess.NewPublisher(inprocess.Config{
		Workers:      pc.Workers,
		QueueSize:    pc.QueueSize,
		MaxRetries:   pc.MaxRetries,
		RetryBackoff: pc.RetryBackoff,
	}, c.logger)

	c.projector = projections.NewProjector(
		projections.NewPaymentProjection(c.paymentReads),
		projections.NewWalletBalanceProjection(c.walletReads),
		c.uow,
		c.cache,
		c.logger,
	)
	if err := c.publisher.Subscribe(ports.AllEvents, c.projector.Handle); err != nil {
		return err
	}

	c.replayer = projections.NewReplayer(c.store, c.checkpoints, c.projector.Handle, pc.ReplayBatch, c.logger)

	if !c.config.NATS.Enabled {
		return nil
	}

	nc := c.config.NATS
	conn, err := natsfanout.Connect(natsfanout.Config{
		URL:           nc.URL,
		Name:          c.config.App.Name,
		SubjectPrefix: nc.SubjectPrefix,
		MaxReconnects: nc.MaxReconnects,
		ReconnectWait: nc.ReconnectWait,
	}, c.logger)
	if err != nil {
		return err
	}
	c.natsConn = conn

	return natsfanout.NewForwarder(conn, nc.SubjectPrefix, c.logger).Register(c.publisher)
}

// initUseCases создаёт use cases и регистрирует их в шине.
func (c *Container) initUseCases() {
	opts := payment.Options{
		ConflictRetries:  c.config.Payments.ConflictRetries,
		IdempotencyTTL:   c.config.Payments.IdempotencyTTL,
		IdempotencyLease: c.config.Payments.IdempotencyLease,
	}

	c.bus = bus.New(c.logger)

	// Commands
	c.bus.MustRegister(bus.ProcessPayment, bus.Handle(
		payment.NewProcessPaymentUseCase(c.wallets, c.store, c.publisher, c.idempotency, opts, c.logger).Execute))
	c.bus.MustRegister(bus.CancelPayment, bus.Handle(
		payment.NewCancelPaymentUseCase(c.wallets, c.store, c.publisher, opts, c.logger).Execute))
	c.bus.MustRegister(bus.RefundPayment, bus.Handle(
		payment.NewRefundPaymentUseCase(c.wallets, c.store, c.publisher, opts, c.logger).Execute))

	// Queries
	c.bus.MustRegister(bus.GetPayment, bus.Handle(
		payment.NewGetPaymentUseCase(c.paymentReads, c.cache, c.logger).Execute))
	c.bus.MustRegister(bus.ListPayments, bus.Handle(
		payment.NewListPaymentsUseCase(c.paymentReads).Execute))
	c.bus.MustRegister(bus.GetPaymentHistory, bus.Handle(
		payment.NewGetPaymentHistoryUseCase(c.wallets, c.store).Execute))
	c.bus.MustRegister(bus.GetWalletBalance, bus.Handle(
		payment.NewGetWalletBalanceUseCase(c.walletReads).Execute))
}

// initHTTPServer инициализирует HTTP сервер.
func (c *Container) initHTTPServer() {
	rl := c.config.RateLimit
	cors := c.config.CORS

	routerConfig := &http.RouterConfig{
		Logger:         c.logger,
		ServiceName:    c.config.App.Name,
		Version:        c.config.App.Version,
		BuildTime:      c.buildTime,
		Environment:    c.config.App.Environment,
		StorageDriver:  c.config.Storage.Driver,
		AllowedOrigins: cors.AllowedOrigins,
		CORS: middleware.NewCORSConfig(cors.AllowedOrigins, cors.AllowedMethods,
			cors.AllowedHeaders, cors.ExposedHeaders, cors.AllowCredentials, cors.MaxAge),
		Checkers:          c.checkers,
		RateLimitStore:    c.rateLimits,
		RateLimitEnabled:  rl.Enabled,
		RequestsPerMinute: int64(rl.RequestsPerMinute),
		PaymentOpsPerMin:  int64(rl.PaymentOpsPerMin),
	}

	c.router = http.NewRouterBuilder(routerConfig).
		WithBus(c.bus).
		Build()

	c.httpServer = http.NewServer(http.NewServerConfig(c.config.Server, c.logger), c.router)
	c.httpServer.OnShutdown(c.Close)
}

// ============================================
// Getters
// ============================================

// Config возвращает конфигурацию.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger возвращает логгер.
func (c *Container) Logger() *slog.Logger {
	return c.logger
}

// Pool возвращает пул соединений к БД (nil для memory).
func (c *Container) Pool() *pgxpool.Pool {
	return c.pool
}

// Bus возвращает шину команд и запросов.
func (c *Container) Bus() *bus.Bus {
	return c.bus
}

// EventStore возвращает журнал событий.
func (c *Container) EventStore() ports.EventStore {
	return c.store
}

// Publisher возвращает in-process publisher.
func (c *Container) Publisher() *inprocess.Publisher {
	return c.publisher
}

// Router возвращает собранный gin.Engine.
func (c *Container) Router() *gin.Engine {
	return c.router
}

// HTTPServer возвращает HTTP сервер.
func (c *Container) HTTPServer() *http.Server {
	return c.httpServer
}

// ============================================
// Lifecycle
// ============================================

// Start догоняет read-модели по журналу и запускает доставку событий.
// Replay выполняется до старта воркеров, чтобы живые события не обгоняли его.
func (c *Container) Start(ctx context.Context) error {
	applied, err := c.replayer.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to replay read models: %w", err)
	}
	c.logger.Info("Read models replayed", slog.Int("events", applied))

	if err := c.publisher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start publisher: %w", err)
	}

	// Догоняем события, которые живая доставка не смогла спроецировать
	c.replayer.Start(c.config.Publisher.ReplayInterval)
	return nil
}

// Run запускает фоновые компоненты и HTTP сервер до сигнала завершения.
func (c *Container) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}

	c.logger.Info("Starting PayLedger API Server",
		slog.String("version", c.config.App.Version),
		slog.String("environment", c.config.App.Environment),
		slog.String("address", c.config.Server.Address()),
	)

	return c.httpServer.Run(ctx)
}

// Close останавливает доставку событий и закрывает соединения.
// Повторные вызовы возвращают результат первого.
func (c *Container) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.close(ctx)
	})
	return c.closeErr
}

func (c *Container) close(ctx context.Context) error {
	log := c.logger
	if log == nil {
		log = slog.Default()
	}
	log.Info("Shutting down container...")

	var errs []error

	// 1. Фоновый replay, затем publisher - дожидаемся обработки очереди
	if c.replayer != nil {
		c.replayer.Stop()
	}
	if c.publisher != nil {
		if err := c.publisher.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("publisher stop: %w", err))
		}
	}

	// 2. NATS
	if c.natsConn != nil {
		if err := c.natsConn.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("nats drain: %w", err))
		}
	}

	// 3. Rate limiter cleanup
	if c.memoryLimiter != nil {
		c.memoryLimiter.Close()
	}

	// 4. Redis
	if c.redis != nil && c.ownsRedis {
		if err := c.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}

	// 5. Database
	if c.pool != nil && c.ownsPool {
		c.pool.Close()
		log.Info("Database connection closed")
	}

	// 6. Tracing - сбрасываем оставшиеся spans
	if c.tracingShutdown != nil {
		if err := c.tracingShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	log.Info("Container shutdown complete")
	return nil
}

// ============================================
// Builder Pattern
// ============================================

// ContainerBuilder - builder для создания контейнера с кастомными компонентами.
type ContainerBuilder struct {
	cfg       *config.Config
	logger    *slog.Logger
	pool      *pgxpool.Pool
	redis     goredis.UniversalClient
	buildTime string
}

// NewBuilder создаёт новый builder.
func NewBuilder(cfg *config.Config) *ContainerBuilder {
	return &ContainerBuilder{
		cfg: cfg,
	}
}

// WithLogger устанавливает кастомный логгер.
func (b *ContainerBuilder) WithLogger(logger *slog.Logger) *ContainerBuilder {
	b.logger = logger
	return b
}

// WithPool устанавливает готовый пул соединений. Контейнер его не закрывает.
func (b *ContainerBuilder) WithPool(pool *pgxpool.Pool) *ContainerBuilder {
	b.pool = pool
	return b
}

// WithRedis устанавливает готовый Redis клиент. Контейнер его не закрывает.
func (b *ContainerBuilder) WithRedis(client goredis.UniversalClient) *ContainerBuilder {
	b.redis = client
	return b
}

// WithBuildTime задаёт время сборки для /health.
func (b *ContainerBuilder) WithBuildTime(buildTime string) *ContainerBuilder {
	b.buildTime = buildTime
	return b
}

// Build создаёт и инициализирует контейнер.
func (b *ContainerBuilder) Build(ctx context.Context) (*Container, error) {
	if b.cfg == nil {
		return nil, errors.New("config is required")
	}

	c := New(b.cfg)
	c.logger = b.logger
	c.pool = b.pool
	c.redis = b.redis
	if b.buildTime != "" {
		c.buildTime = b.buildTime
	}

	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	return c, nil
}
