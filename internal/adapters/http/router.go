// Package http - Router configuration for REST API.
//
// Router собирает все handlers и middleware в единую точку входа.
//
// Pattern: Composition Root
// - Handlers получают только шину команд и запросов
// - Middleware применяется к соответствующим группам routes
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Haleralex/payledger/internal/adapters/http/common"
	"github.com/Haleralex/payledger/internal/adapters/http/handlers"
	"github.com/Haleralex/payledger/internal/adapters/http/middleware"
	"github.com/Haleralex/payledger/internal/application/bus"
	"github.com/Haleralex/payledger/internal/application/ports"
)

// ============================================
// Router Configuration
// ============================================

// RouterConfig - конфигурация роутера.
type RouterConfig struct {
	// Logger для middleware
	Logger *slog.Logger
	// ServiceName для трассировки
	ServiceName string
	// Version приложения
	Version string
	// BuildTime время сборки
	BuildTime string
	// Environment (development, staging, production)
	Environment string
	// StorageDriver - memory или postgres, отображается в /health/detailed
	StorageDriver string
	// AllowedOrigins для CORS (production), если CORS не задан
	AllowedOrigins []string
	// CORS - полная конфигурация из настроек. nil - по Environment.
	CORS *middleware.CORSConfig

	// Checkers - зависимости для /ready
	Checkers []handlers.DependencyChecker

	// RateLimitStore - хранилище счётчиков. nil - in-memory.
	RateLimitStore    ports.RateLimiter
	RateLimitEnabled  bool
	RequestsPerMinute int64
	PaymentOpsPerMin  int64
}

// DefaultRouterConfig - конфигурация по умолчанию для development.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		Logger:            slog.Default(),
		ServiceName:       "payledger",
		Version:           "dev",
		BuildTime:         "unknown",
		Environment:       "development",
		StorageDriver:     "memory",
		AllowedOrigins:    []string{"*"},
		RateLimitEnabled:  true,
		RequestsPerMinute: 100,
		PaymentOpsPerMin:  30,
	}
}

// ============================================
// Router Builder
// ============================================

// RouterBuilder - builder для создания роутера.
//
// Pattern: Builder
// - Позволяет пошагово настроить роутер
// - Проще тестировать
type RouterBuilder struct {
	config *RouterConfig
	bus    *bus.Bus
}

// NewRouterBuilder создаёт новый builder.
func NewRouterBuilder(config *RouterConfig) *RouterBuilder {
	if config == nil {
		config = DefaultRouterConfig()
	}
	return &RouterBuilder{
		config: config,
	}
}

// WithBus подключает шину, через которую handlers вызывают use cases.
// Без шины API маршруты не регистрируются.
func (b *RouterBuilder) WithBus(messageBus *bus.Bus) *RouterBuilder {
	b.bus = messageBus
	return b
}

// WithCheckers добавляет зависимости для проверки /ready.
func (b *RouterBuilder) WithCheckers(checkers ...handlers.DependencyChecker) *RouterBuilder {
	b.config.Checkers = append(b.config.Checkers, checkers...)
	return b
}

// Build создаёт сконфигурированный Gin Engine.
func (b *RouterBuilder) Build() *gin.Engine {
	if b.config.Logger == nil {
		b.config.Logger = slog.Default()
	}

	// Настраиваем режим Gin
	if b.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Создаём router без default middleware
	router := gin.New()

	// Настраиваем кастомные валидаторы
	handlers.SetupValidator()

	// ============================================
	// Global Middleware
	// ============================================

	// 1. Recovery - должен быть первым
	router.Use(middleware.Recovery(&middleware.RecoveryConfig{
		Logger:           b.config.Logger,
		EnableStackTrace: b.config.Environment != "production",
	}))

	// 2. Request ID
	router.Use(middleware.RequestID())

	// 3. Tracing
	serviceName := b.config.ServiceName
	if serviceName == "" {
		serviceName = "payledger"
	}
	router.Use(otelgin.Middleware(serviceName))

	// 4. CORS
	switch {
	case b.config.CORS != nil:
		router.Use(middleware.CORS(b.config.CORS))
	case b.config.Environment == "production":
		router.Use(middleware.CORS(middleware.ProductionCORSConfig(b.config.AllowedOrigins)))
	default:
		router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	}

	// 5. Logging
	router.Use(middleware.Logging(&middleware.LoggingConfig{
		Logger:    b.config.Logger,
		SkipPaths: []string{"/health", "/live", "/ready", "/metrics"},
	}))

	// 6. Rate Limiting (global)
	store := b.config.RateLimitStore
	if b.config.RateLimitEnabled {
		if store == nil {
			store = middleware.NewMemoryRateLimiter(2 * time.Minute)
		}
		router.Use(middleware.RateLimit(&middleware.RateLimitConfig{
			Limit:          b.config.RequestsPerMinute,
			Window:         time.Minute,
			Store:          store,
			Logger:         b.config.Logger,
			OnLimitReached: middleware.CountRateLimited,
		}))
	}

	// 7. Metrics (Prometheus)
	router.Use(middleware.Metrics())

	// ============================================
	// Metrics Endpoint
	// ============================================

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ============================================
	// Health Check Routes
	// ============================================

	healthHandler := handlers.NewHealthHandler(
		b.config.Version,
		b.config.BuildTime,
		b.config.StorageDriver,
		b.config.Checkers...,
	)
	healthHandler.RegisterRoutes(router)

	// ============================================
	// API v1 Routes
	// ============================================

	if b.bus != nil {
		v1 := router.Group("/api/v1")

		var commands []gin.HandlerFunc
		if b.config.RateLimitEnabled && b.config.PaymentOpsPerMin > 0 {
			commands = append(commands,
				middleware.PaymentOperationsRateLimit(store, b.config.PaymentOpsPerMin, b.config.Logger))
		}

		handlers.NewPaymentHandler(b.bus).RegisterRoutes(v1, commands...)
		handlers.NewWalletHandler(b.bus).RegisterRoutes(v1)
	}

	// ============================================
	// 404 Handler
	// ============================================

	router.NoRoute(func(c *gin.Context) {
		common.Error(c, http.StatusNotFound, &common.APIError{
			Code:    common.ErrCodeNotFound,
			Message: "Endpoint not found",
			Details: map[string]any{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			},
		})
	})

	return router
}

// ============================================
// Quick Setup Functions
// ============================================

// NewRouter создаёт роутер с базовой конфигурацией.
func NewRouter(config *RouterConfig, messageBus *bus.Bus) *gin.Engine {
	return NewRouterBuilder(config).WithBus(messageBus).Build()
}

// NewDevelopmentRouter создаёт роутер для development окружения.
func NewDevelopmentRouter(messageBus *bus.Bus) *gin.Engine {
	config := DefaultRouterConfig()
	config.Environment = "development"
	return NewRouter(config, messageBus)
}
