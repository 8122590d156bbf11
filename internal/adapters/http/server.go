// Package http - HTTP Server configuration and lifecycle management.
//
// Server управляет жизненным циклом HTTP сервера:
// - Graceful startup
// - Graceful shutdown с последующим закрытием зависимостей
// - Timeout configuration
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Haleralex/payledger/internal/config"
)

// ============================================
// Server Configuration
// ============================================

// ServerConfig - конфигурация HTTP сервера.
type ServerConfig struct {
	// Host для прослушивания (e.g., "0.0.0.0", "localhost")
	Host string
	// Port для прослушивания, 0 - случайный свободный порт
	Port int
	// ReadTimeout - максимальное время чтения запроса
	ReadTimeout time.Duration
	// ReadHeaderTimeout - максимальное время чтения заголовков
	ReadHeaderTimeout time.Duration
	// WriteTimeout - максимальное время записи ответа
	WriteTimeout time.Duration
	// IdleTimeout - максимальное время ожидания следующего запроса
	IdleTimeout time.Duration
	// ShutdownTimeout - время на graceful shutdown
	ShutdownTimeout time.Duration
	// Logger для логирования
	Logger *slog.Logger
}

// DefaultServerConfig - конфигурация по умолчанию.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:              "0.0.0.0",
		Port:              8080,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		Logger:            slog.Default(),
	}
}

// NewServerConfig строит ServerConfig из конфигурации приложения.
func NewServerConfig(cfg config.ServerConfig, logger *slog.Logger) *ServerConfig {
	sc := DefaultServerConfig()
	sc.Host = cfg.Host
	sc.Port = cfg.Port
	if cfg.ReadTimeout > 0 {
		sc.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		sc.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.IdleTimeout > 0 {
		sc.IdleTimeout = cfg.IdleTimeout
	}
	if cfg.ShutdownTimeout > 0 {
		sc.ShutdownTimeout = cfg.ShutdownTimeout
	}
	if logger != nil {
		sc.Logger = logger
	}
	return sc
}

// Address возвращает адрес для прослушивания.
func (c *ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// ============================================
// Server
// ============================================

// Server - HTTP сервер с graceful shutdown.
type Server struct {
	config     *ServerConfig
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}

	// hooks выполняются после остановки HTTP в обратном порядке регистрации.
	hooks []func(context.Context) error
}

// NewServer создаёт новый HTTP сервер.
func NewServer(config *ServerConfig, handler http.Handler) *Server {
	if config == nil {
		config = DefaultServerConfig()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	httpServer := &http.Server{
		Addr:              config.Address(),
		Handler:           handler,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}

	return &Server{
		config:     config,
		httpServer: httpServer,
		ready:      make(chan struct{}),
	}
}

// OnShutdown регистрирует функцию, вызываемую после остановки HTTP.
// Например: остановка publisher'а событий, закрытие пула БД.
func (s *Server) OnShutdown(fn func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Ready закрывается, когда сервер начал принимать соединения.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr возвращает фактический адрес после старта (nil до старта).
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start запускает сервер и блокируется до Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Address(), err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	s.config.Logger.Info("Starting HTTP server",
		slog.String("address", ln.Addr().String()),
	)

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown выполняет graceful shutdown сервера.
//
// Порядок:
// 1. Прекращает приём новых соединений
// 2. Дожидается завершения активных запросов
// 3. Выполняет hooks (LIFO)
func (s *Server) Shutdown(ctx context.Context) error {
	s.config.Logger.Info("Shutting down HTTP server...")

	// Создаём контекст с таймаутом для shutdown
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.config.Logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	} else {
		s.config.Logger.Info("HTTP server stopped gracefully")
	}

	s.mu.Lock()
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		if err := hooks[i](shutdownCtx); err != nil {
			s.config.Logger.Error("shutdown hook failed", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// ============================================
// Run with Graceful Shutdown
// ============================================

// Run запускает сервер и останавливает его по SIGINT/SIGTERM
// или при отмене ctx.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Канал для ошибок сервера
	errChan := make(chan error, 1)

	// Запускаем сервер в горутине
	go func() {
		errChan <- s.Start()
	}()

	// Ждём либо ошибку, либо сигнал остановки
	select {
	case err := <-errChan:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		s.config.Logger.Info("Received shutdown signal")
	}

	// Graceful shutdown. ctx уже отменён, поэтому отдельный контекст.
	return s.Shutdown(context.Background())
}
