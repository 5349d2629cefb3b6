// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// Balance is the caller's current coin balance.
type Balance struct {
	Balance decimal.Decimal `json:"balance"`
}

// Negative reports whether sends should be gated.
func (b Balance) Negative() bool {
	return b.Balance.IsNegative()
}

// WalletInfo is the caller's wallet summary.
type WalletInfo struct {
	WalletID          int64           `json:"walletId"`
	UserID            int64           `json:"userId"`
	Balance           decimal.Decimal `json:"balance"`
	TotalPurchased    decimal.Decimal `json:"totalPurchased"`
	TotalUsed         decimal.Decimal `json:"totalUsed"`
	LastTransactionAt *time.Time      `json:"lastTransactionAt"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionPurchase TransactionType = "purchase"
	TransactionUsage    TransactionType = "usage"
	TransactionRefund   TransactionType = "refund"
	TransactionBonus    TransactionType = "bonus"
)

// TransactionDetail is one wallet ledger entry.
type TransactionDetail struct {
	TransactionID int64           `json:"transactionId"`
	UserID        int64           `json:"userId"`
	RoomID        *string         `json:"roomId"`
	MessageID     *string         `json:"messageId"`
	Type          TransactionType `json:"transactionType"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter"`
	Description   string          `json:"description"`
	ModelID       *int64          `json:"modelId"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// GetBalance returns the current balance.
func (c *Client) GetBalance(ctx context.Context) (Balance, error) {
	return getJSON[Balance](ctx, c, "get balance", "/api/v1/wallet/balance", nil)
}

// GetWallet returns the wallet summary.
func (c *Client) GetWallet(ctx context.Context) (WalletInfo, error) {
	return getJSON[WalletInfo](ctx, c, "get wallet", "/api/wallet", nil)
}

// GetTransaction returns one ledger entry.
func (c *Client) GetTransaction(ctx context.Context, id string) (TransactionDetail, error) {
	if id == "" {
		return TransactionDetail{}, &ValidationError{Field: "transactionId", Message: "is required"}
	}
	return getJSON[TransactionDetail](ctx, c, "get transaction", "/api/v1/transactions/"+url.PathEscape(id), nil)
}
