// Package handlers - Wallet HTTP handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Haleralex/payledger/internal/adapters/http/common"
	"github.com/Haleralex/payledger/internal/application/bus"
	"github.com/Haleralex/payledger/internal/application/dtos"
)

// WalletHandler отдаёт снимки баланса кошельков.
type WalletHandler struct {
	bus *bus.Bus
}

// NewWalletHandler создаёт новый WalletHandler.
func NewWalletHandler(b *bus.Bus) *WalletHandler {
	return &WalletHandler{bus: b}
}

// GetWallet возвращает баланс кошелька из read-модели.
// Снимок eventually consistent: может отставать от журнала.
//
// @Summary Get wallet balance
// @Tags Wallets
// @Produce json
// @Param id path string true "Wallet ID"
// @Success 200 {object} common.APIResponse{data=dtos.WalletBalanceDTO}
// @Failure 404 {object} common.APIResponse
// @Router /api/v1/wallets/{id} [get]
func (h *WalletHandler) GetWallet(c *gin.Context) {
	query := dtos.GetWalletBalanceQuery{WalletID: c.Param("id")}
	if !Validate(c, &query) {
		return
	}

	result, err := bus.Call[*dtos.WalletBalanceDTO](c.Request.Context(), h.bus, bus.GetWalletBalance, query)
	if err != nil {
		common.HandleDomainError(c, err)
		return
	}

	common.Success(c, http.StatusOK, result)
}

// RegisterRoutes регистрирует маршруты кошельков.
func (h *WalletHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/wallets/:id", h.GetWallet)
}
