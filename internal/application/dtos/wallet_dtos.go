package dtos

import "time"

// GetWalletBalanceQuery - запрос снимка баланса кошелька.
type GetWalletBalanceQuery struct {
	WalletID string `json:"wallet_id" validate:"required"`
}

// WalletBalanceDTO - снимок баланса из wallets_read_model.
// Eventually consistent: может отставать от журнала на несколько событий.
type WalletBalanceDTO struct {
	WalletID  string    `json:"wallet_id"`
	Balance   string    `json:"balance"`
	Currency  string    `json:"currency"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}
