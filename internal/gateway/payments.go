// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// MaxPaymentPageSize is the largest page the payments endpoint serves.
const MaxPaymentPageSize = 100

// PaymentStatus is the lifecycle state of a coin purchase.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Payment is one row of the payment history.
type Payment struct {
	PaymentID     int64           `json:"paymentId"`
	TransactionID string          `json:"transactionId"`
	PaymentMethod string          `json:"paymentMethod"`
	AmountKRW     decimal.Decimal `json:"amountKrw"`
	CoinAmount    decimal.Decimal `json:"coinAmount"`
	BonusCoin     decimal.Decimal `json:"bonusCoin"`
	Status        PaymentStatus   `json:"status"`
	CreatedAt     time.Time       `json:"createdAt"`
	CompletedAt   *time.Time      `json:"completedAt"`
}

// PaymentDetail is a payment with its gateway data.
type PaymentDetail struct {
	Payment
	AmountUSD      decimal.Decimal        `json:"amountUsd"`
	PaymentGateway string                 `json:"paymentGateway"`
	Metadata       map[string]interface{} `json:"metadata"`
}

// TotalCoins is the purchased amount plus bonus.
func (p Payment) TotalCoins() decimal.Decimal {
	return p.CoinAmount.Add(p.BonusCoin)
}

// PaymentListParams filters the payment history. Zero Size means 20.
type PaymentListParams struct {
	Page   int           `json:"page" validate:"gte=0"`
	Size   int           `json:"size" validate:"gte=0,lte=100"`
	Status PaymentStatus `json:"status" validate:"omitempty,oneof=pending completed failed cancelled"`
}

// ListPayments returns a page of the caller's payments.
func (c *Client) ListPayments(ctx context.Context, p PaymentListParams) (Page[Payment], error) {
	if err := Validate(p); err != nil {
		return Page[Payment]{}, err
	}
	size := p.Size
	if size == 0 {
		size = 20
	}
	q := url.Values{
		"page": {strconv.Itoa(p.Page)},
		"size": {strconv.Itoa(size)},
	}
	if p.Status != "" {
		q.Set("status", string(p.Status))
	}
	return getJSON[Page[Payment]](ctx, c, "list payments", "/api/v1/payments", q)
}

// GetPayment returns one payment.
func (c *Client) GetPayment(ctx context.Context, paymentID int64) (PaymentDetail, error) {
	if paymentID <= 0 {
		return PaymentDetail{}, &ValidationError{Field: "paymentId", Message: "must be greater than 0"}
	}
	return getJSON[PaymentDetail](ctx, c, "get payment", "/api/v1/payments/"+strconv.FormatInt(paymentID, 10), nil)
}
