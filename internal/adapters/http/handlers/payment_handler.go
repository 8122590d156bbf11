// Package handlers - Payment HTTP handlers.
package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Haleralex/payledger/internal/adapters/http/common"
	"github.com/Haleralex/payledger/internal/application/bus"
	"github.com/Haleralex/payledger/internal/application/dtos"
)

// IdempotencyKeyHeader - заголовок для безопасного повтора POST /payments.
const IdempotencyKeyHeader = common.IdempotencyKeyHeader

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// ============================================
// Payment Handler
// ============================================

// PaymentHandler обрабатывает HTTP запросы для платежей.
// Все операции уходят в bus, handler ничего не знает о use cases.
type PaymentHandler struct {
	bus *bus.Bus
}

// NewPaymentHandler создаёт новый PaymentHandler.
func NewPaymentHandler(b *bus.Bus) *PaymentHandler {
	return &PaymentHandler{bus: b}
}

// ============================================
// Request DTOs
// ============================================

// ProcessPaymentRequest - тело POST /payments.
//
// @Description Process payment request body
type ProcessPaymentRequest struct {
	WalletID          string         `json:"wallet_id"`
	Amount            flexibleAmount `json:"amount" swaggertype:"string"`
	Currency          string         `json:"currency"`
	RecipientWalletID string         `json:"recipient_wallet_id"`
	Concept           string         `json:"concept"`
}

// SettlePaymentRequest - тело cancel/refund.
//
// @Description Cancel or refund request body
type SettlePaymentRequest struct {
	Reason string `json:"reason"`
}

// ListPaymentsParams - фильтры списка платежей.
type ListPaymentsParams struct {
	WalletID string `form:"wallet_id"`
	Status   string `form:"status"`
	Page     int    `form:"page"`
	Limit    int    `form:"limit"`
}

// ============================================
// HTTP Handlers
// ============================================

// ProcessPayment списывает средства с кошелька.
//
// @Summary Process a payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Idempotency key"
// @Param request body ProcessPaymentRequest true "Payment data"
// @Success 201 {object} common.APIResponse{data=dtos.PaymentResultDTO}
// @Failure 400 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse "Wallet not found"
// @Failure 409 {object} common.APIResponse
// @Failure 503 {object} common.APIResponse
// @Router /api/v1/payments [post]
func (h *PaymentHandler) ProcessPayment(c *gin.Context) {
	var req ProcessPaymentRequest
	if !BindJSON(c, &req) {
		return
	}

	cmd := dtos.ProcessPaymentCommand{
		WalletID:          strings.TrimSpace(req.WalletID),
		Amount:            string(req.Amount),
		Currency:          strings.ToUpper(strings.TrimSpace(req.Currency)),
		RecipientWalletID: strings.TrimSpace(req.RecipientWalletID),
		Concept:           strings.TrimSpace(req.Concept),
		IdempotencyKey:    strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader)),
	}
	if !Validate(c, &cmd) {
		return
	}

	result, err := bus.Call[*dtos.PaymentResultDTO](c.Request.Context(), h.bus, bus.ProcessPayment, cmd)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
		c.Header(common.IdempotentReplayHeader, "true")
	}
	common.Success(c, status, result)
}

// CancelPayment отменяет платёж и возвращает сумму на кошелёк.
//
// @Summary Cancel a payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Payment ID" format(uuid)
// @Param request body SettlePaymentRequest true "Reason"
// @Success 200 {object} common.APIResponse{data=dtos.PaymentResultDTO}
// @Failure 400 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse "Already cancelled or refunded"
// @Router /api/v1/payments/{id}/cancel [post]
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	var req SettlePaymentRequest
	if !BindJSON(c, &req) {
		return
	}

	cmd := dtos.CancelPaymentCommand{
		PaymentID: c.Param("id"),
		Reason:    strings.TrimSpace(req.Reason),
	}
	if !Validate(c, &cmd) {
		return
	}

	result, err := bus.Call[*dtos.PaymentResultDTO](c.Request.Context(), h.bus, bus.CancelPayment, cmd)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	common.Success(c, http.StatusOK, result)
}

// RefundPayment возвращает платёж.
//
// @Summary Refund a payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param id path string true "Payment ID" format(uuid)
// @Param request body SettlePaymentRequest true "Reason"
// @Success 200 {object} common.APIResponse{data=dtos.PaymentResultDTO}
// @Failure 400 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Failure 409 {object} common.APIResponse "Already cancelled or refunded"
// @Router /api/v1/payments/{id}/refund [post]
func (h *PaymentHandler) RefundPayment(c *gin.Context) {
	var req SettlePaymentRequest
	if !BindJSON(c, &req) {
		return
	}

	cmd := dtos.RefundPaymentCommand{
		PaymentID: c.Param("id"),
		Reason:    strings.TrimSpace(req.Reason),
	}
	if !Validate(c, &cmd) {
		return
	}

	result, err := bus.Call[*dtos.PaymentResultDTO](c.Request.Context(), h.bus, bus.RefundPayment, cmd)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	common.Success(c, http.StatusOK, result)
}

// GetPayment возвращает платёж из read-модели.
//
// @Summary Get payment by ID
// @Tags Payments
// @Produce json
// @Param id path string true "Payment ID" format(uuid)
// @Success 200 {object} common.APIResponse{data=dtos.PaymentDTO}
// @Failure 400 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/v1/payments/{id} [get]
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	query := dtos.GetPaymentQuery{PaymentID: c.Param("id")}
	if !Validate(c, &query) {
		return
	}

	result, err := bus.Call[*dtos.PaymentDTO](c.Request.Context(), h.bus, bus.GetPayment, query)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	common.Success(c, http.StatusOK, result)
}

// ListPayments возвращает страницу платежей.
//
// @Summary List payments
// @Tags Payments
// @Produce json
// @Param wallet_id query string false "Filter by wallet"
// @Param status query string false "Filter by status" Enums(PROCESSED, CANCELLED, REFUNDED)
// @Param page query int false "Page number" default(1)
// @Param limit query int false "Items per page" default(20) maximum(100)
// @Success 200 {object} common.APIResponse{data=[]dtos.PaymentDTO}
// @Failure 400 {object} common.APIResponse
// @Router /api/v1/payments [get]
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	var params ListPaymentsParams
	if !BindQuery(c, &params) {
		return
	}

	query := dtos.ListPaymentsQuery{
		Page:  params.Page,
		Limit: params.Limit,
	}
	if params.WalletID != "" {
		query.WalletID = &params.WalletID
	}
	if params.Status != "" {
		status := strings.ToUpper(params.Status)
		query.Status = &status
	}
	if !Validate(c, &query) {
		return
	}

	result, err := bus.Call[*dtos.PaymentListDTO](c.Request.Context(), h.bus, bus.ListPayments, query)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	common.SuccessWithMeta(c, http.StatusOK, result.Payments, &common.APIMeta{
		Page:       result.Page,
		PerPage:    result.Limit,
		Total:      result.Total,
		TotalPages: result.TotalPages,
	})
}

// GetPaymentHistory возвращает последние события кошелька прямо из журнала.
//
// @Summary Wallet payment history
// @Tags Payments
// @Produce json
// @Param walletId path string true "Wallet ID"
// @Param limit query int false "Number of events" default(10) maximum(100)
// @Success 200 {object} common.APIResponse{data=dtos.PaymentHistoryDTO}
// @Failure 400 {object} common.APIResponse
// @Failure 404 {object} common.APIResponse
// @Router /api/v1/payments/history/{walletId} [get]
func (h *PaymentHandler) GetPaymentHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			common.ValidationErrorResponse(c, []common.FieldError{
				{Field: "limit", Message: "limit must be an integer", Code: "numeric"},
			})
			return
		}
		limit = min(max(n, 1), maxHistoryLimit)
	}

	query := dtos.GetPaymentHistoryQuery{
		WalletID: c.Param("walletId"),
		Limit:    limit,
	}
	if !Validate(c, &query) {
		return
	}

	result, err := bus.Call[*dtos.PaymentHistoryDTO](c.Request.Context(), h.bus, bus.GetPaymentHistory, query)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	common.Success(c, http.StatusOK, result)
}

// RegisterRoutes регистрирует маршруты платежей.
// commands применяются только к командам (POST).
//
// Routes:
// - POST /payments
// - GET  /payments
// - GET  /payments/history/:walletId
// - GET  /payments/:id
// - POST /payments/:id/cancel
// - POST /payments/:id/refund
func (h *PaymentHandler) RegisterRoutes(rg *gin.RouterGroup, commands ...gin.HandlerFunc) {
	payments := rg.Group("/payments")
	{
		payments.GET("", h.ListPayments)
		payments.GET("/history/:walletId", h.GetPaymentHistory)
		payments.GET("/:id", h.GetPayment)
	}

	writes := payments.Group("", commands...)
	{
		writes.POST("", h.ProcessPayment)
		writes.POST("/:id/cancel", h.CancelPayment)
		writes.POST("/:id/refund", h.RefundPayment)
	}
}
