// Package handlers - Health check handlers.
//
// Health checks позволяют оркестраторам (Kubernetes, Docker Swarm)
// проверять состояние приложения.
//
// Два типа health checks:
// - Liveness: Приложение работает? (если нет - restart)
// - Readiness: Приложение готово принимать трафик? (если нет - no traffic)
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const checkTimeout = 2 * time.Second

// DependencyChecker - внешняя зависимость, проверяемая в /ready
// (PostgreSQL, Redis).
type DependencyChecker interface {
	Name() string
	Ping(ctx context.Context) error
}

// detailer - checker, умеющий отдать статистику для /health/detailed.
type detailer interface {
	Details() map[string]string
}

// ============================================
// Health Check Handler
// ============================================

// HealthHandler обрабатывает health check запросы.
type HealthHandler struct {
	checkers  []DependencyChecker
	version   string
	buildTime string
	storage   string
	startTime time.Time
}

// NewHealthHandler создаёт новый HealthHandler.
// storage - имя драйвера хранилища (memory, postgres), попадает в /health/detailed.
func NewHealthHandler(version, buildTime, storage string, checkers ...DependencyChecker) *HealthHandler {
	return &HealthHandler{
		checkers:  checkers,
		version:   version,
		buildTime: buildTime,
		storage:   storage,
		startTime: time.Now(),
	}
}

// ============================================
// Response Types
// ============================================

// HealthResponse - ответ health check.
type HealthResponse struct {
	Status    string            `json:"status"`           // "healthy", "unhealthy"
	Version   string            `json:"version"`          // Версия приложения
	BuildTime string            `json:"build_time"`       // Время сборки
	Uptime    string            `json:"uptime"`           // Время работы
	Timestamp time.Time         `json:"timestamp"`        // Текущее время
	Checks    map[string]string `json:"checks,omitempty"` // Детали проверок
}

// ReadinessResponse - ответ readiness check.
type ReadinessResponse struct {
	Ready     bool              `json:"ready"`
	Checks    map[string]string `json:"checks"`
	Timestamp time.Time         `json:"timestamp"`
}

// ============================================
// HTTP Handlers
// ============================================

// Health возвращает базовый health статус.
//
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		BuildTime: h.buildTime,
		Uptime:    h.uptime(),
		Timestamp: time.Now().UTC(),
	})
}

// Ready проверяет все зависимости.
//
// @Summary Readiness check
// @Tags Health
// @Produce json
// @Success 200 {object} ReadinessResponse
// @Failure 503 {object} ReadinessResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	checks, ok := h.runChecks(c.Request.Context(), true)

	statusCode := http.StatusOK
	if !ok {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Ready:     ok,
		Checks:    checks,
		Timestamp: time.Now().UTC(),
	})
}

// Live возвращает статус "живости" приложения.
//
// @Summary Liveness check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

// DetailedHealth возвращает детальную информацию о состоянии.
//
// @Summary Detailed health check
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health/detailed [get]
func (h *HealthHandler) DetailedHealth(c *gin.Context) {
	checks, ok := h.runChecks(c.Request.Context(), false)
	checks["storage"] = h.storage

	for _, checker := range h.checkers {
		d, isDetailer := checker.(detailer)
		if !isDetailer || checks[checker.Name()] != "healthy" {
			continue
		}
		for k, v := range d.Details() {
			checks[k] = v
		}
	}

	status := "healthy"
	if !ok {
		status = "unhealthy"
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    status,
		Version:   h.version,
		BuildTime: h.buildTime,
		Uptime:    h.uptime(),
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}

// runChecks пингует зависимости. verbose добавляет текст ошибки в ответ.
func (h *HealthHandler) runChecks(ctx context.Context, verbose bool) (map[string]string, bool) {
	checks := make(map[string]string, len(h.checkers)+1)
	allOK := true

	for _, checker := range h.checkers {
		pingCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := checker.Ping(pingCtx)
		cancel()

		switch {
		case err == nil:
			checks[checker.Name()] = "healthy"
		case verbose:
			checks[checker.Name()] = "unhealthy: " + err.Error()
			allOK = false
		default:
			checks[checker.Name()] = "unhealthy"
			allOK = false
		}
	}

	return checks, allOK
}

func (h *HealthHandler) uptime() string {
	return time.Since(h.startTime).Round(time.Second).String()
}

// RegisterRoutes регистрирует health check маршруты.
//
// Routes:
// - GET /health          - Basic health check
// - GET /health/detailed - Detailed health with pool stats
// - GET /ready           - готовность к трафику
// - GET /live            - процесс жив
func (h *HealthHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/health/detailed", h.DetailedHealth)
	router.GET("/ready", h.Ready)
	router.GET("/live", h.Live)
}
