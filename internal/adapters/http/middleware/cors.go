// Package middleware - CORS middleware.
//
// Браузерные клиенты ledger'а читают заголовки rate limiter'а и признак
// идемпотентного повтора, поэтому они всегда входят в Expose-Headers,
// а Idempotency-Key всегда разрешён в запросе.
package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Haleralex/payledger/internal/adapters/http/common"
)

// CORSConfig - конфигурация CORS.
type CORSConfig struct {
	// AllowOrigins - разрешённые origins, "*" - любой
	AllowOrigins []string
	// AllowMethods - разрешённые HTTP методы
	AllowMethods []string
	// AllowHeaders - разрешённые заголовки запроса
	AllowHeaders []string
	// ExposeHeaders - заголовки ответа, доступные клиенту
	ExposeHeaders []string
	// AllowCredentials - разрешить credentials (cookies)
	AllowCredentials bool
	// MaxAge - время кеширования preflight запроса (секунды)
	MaxAge int
}

// requiredAllowHeaders и requiredExposeHeaders - часть контракта API.
var (
	requiredAllowHeaders = []string{
		"Content-Type",
		common.RequestIDHeader,
		common.IdempotencyKeyHeader,
	}
	requiredExposeHeaders = []string{
		common.RequestIDHeader,
		common.IdempotentReplayHeader,
		RateLimitLimitHeader,
		RateLimitRemainingHeader,
		RateLimitResetHeader,
		RetryAfterHeader,
	}
)

// DefaultCORSConfig - конфигурация по умолчанию (development).
func DefaultCORSConfig() *CORSConfig {
	return NewCORSConfig(nil, nil, nil, nil, false, 24*time.Hour)
}

// ProductionCORSConfig - только перечисленные origins, с credentials.
func ProductionCORSConfig(allowedOrigins []string) *CORSConfig {
	return NewCORSConfig(allowedOrigins, nil, nil, nil, true, 24*time.Hour)
}

// NewCORSConfig собирает конфигурацию из настроек приложения.
// Пустые списки заменяются значениями по умолчанию, обязательные
// заголовки ledger'а добавляются, если их нет.
func NewCORSConfig(origins, methods, allowHeaders, exposeHeaders []string, credentials bool, maxAge time.Duration) *CORSConfig {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	allowHeaders = appendMissing([]string{"Origin", "Accept"}, allowHeaders...)

	return &CORSConfig{
		AllowOrigins:     origins,
		AllowMethods:     methods,
		AllowHeaders:     appendMissing(allowHeaders, requiredAllowHeaders...),
		ExposeHeaders:    appendMissing(slices.Clone(exposeHeaders), requiredExposeHeaders...),
		AllowCredentials: credentials,
		MaxAge:           int(maxAge / time.Second),
	}
}

// appendMissing добавляет заголовки, которых ещё нет в списке (без учёта регистра).
func appendMissing(list []string, headers ...string) []string {
	for _, h := range headers {
		if !slices.ContainsFunc(list, func(existing string) bool { return strings.EqualFold(existing, h) }) {
			list = append(list, h)
		}
	}
	return list
}

// CORS middleware для обработки Cross-Origin запросов.
//
// Preflight (OPTIONS) завершается 204 без вызова обработчика.
// Запрос с неразрешённым origin проходит дальше без CORS заголовков,
// браузер сам отбросит ответ.
func CORS(config *CORSConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultCORSConfig()
	}

	allowMethods := strings.Join(config.AllowMethods, ", ")
	allowHeaders := strings.Join(config.AllowHeaders, ", ")
	exposeHeaders := strings.Join(config.ExposeHeaders, ", ")
	maxAge := strconv.Itoa(config.MaxAge)

	allowAllOrigins := slices.Contains(config.AllowOrigins, "*")
	originsMap := make(map[string]bool, len(config.AllowOrigins))
	for _, origin := range config.AllowOrigins {
		originsMap[origin] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		var allowedOrigin string
		switch {
		case allowAllOrigins && config.AllowCredentials && origin != "":
			// С credentials браузер не принимает "*"
			allowedOrigin = origin
		case allowAllOrigins:
			allowedOrigin = "*"
		case originsMap[origin]:
			allowedOrigin = origin
		}

		// Ответ зависит от Origin, кеши должны это учитывать
		if allowedOrigin != "*" {
			c.Writer.Header().Add("Vary", "Origin")
		}

		if allowedOrigin == "" {
			c.Next()
			return
		}

		c.Header("Access-Control-Allow-Origin", allowedOrigin)
		c.Header("Access-Control-Allow-Methods", allowMethods)
		c.Header("Access-Control-Allow-Headers", allowHeaders)
		c.Header("Access-Control-Expose-Headers", exposeHeaders)
		c.Header("Access-Control-Max-Age", maxAge)

		if config.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
