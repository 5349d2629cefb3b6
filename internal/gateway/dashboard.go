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

// =============================================================================
// USER
// =============================================================================

// UserInfo is the signed-in account.
type UserInfo struct {
	UserID      int64     `json:"userId"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	IsActivated bool      `json:"isActivated"`
	CreatedAt   time.Time `json:"createdAt"`
}

// GetCurrentUser returns the account the session cookies belong to.
func (c *Client) GetCurrentUser(ctx context.Context) (UserInfo, error) {
	return getJSON[UserInfo](ctx, c, "get user", "/api/users/me", nil)
}

// =============================================================================
// DASHBOARD
// =============================================================================

// MostUsedModel is the model with the largest share of the caller's usage.
type MostUsedModel struct {
	ModelID         int64           `json:"modelId"`
	ModelName       string          `json:"modelName"`
	DisplayName     string          `json:"displayName"`
	UsagePercentage decimal.Decimal `json:"usagePercentage"`
}

// DashboardStats summarizes the caller's account.
type DashboardStats struct {
	TotalCoinPurchased decimal.Decimal `json:"totalCoinPurchased"`
	TotalCoinUsed      decimal.Decimal `json:"totalCoinUsed"`
	CurrentBalance     decimal.Decimal `json:"currentBalance"`
	TotalMessages      int64           `json:"totalMessages"`
	TotalChatRooms     int64           `json:"totalChatRooms"`
	MostUsedModel      *MostUsedModel  `json:"mostUsedModel"`
	Last30DaysUsage    decimal.Decimal `json:"last30DaysUsage"`
	MemberSince        time.Time       `json:"memberSince"`
}

// ModelPricing is the public price sheet entry of a model.
type ModelPricing struct {
	ModelID           int64           `json:"modelId"`
	ModelName         string          `json:"modelName"`
	DisplayName       string          `json:"displayName"`
	InputPricePer1k   decimal.Decimal `json:"inputPricePer1k"`
	OutputPricePer1k  decimal.Decimal `json:"outputPricePer1k"`
	AveragePricePer1k decimal.Decimal `json:"averagePricePer1k"`
	IsActive          bool            `json:"isActive"`
}

// ModelUsage is one model's share of a month.
type ModelUsage struct {
	ModelID      int64           `json:"modelId"`
	ModelName    string          `json:"modelName"`
	DisplayName  string          `json:"displayName"`
	CoinUsed     decimal.Decimal `json:"coinUsed"`
	MessageCount int64           `json:"messageCount"`
	TokenCount   int64           `json:"tokenCount"`
	Percentage   decimal.Decimal `json:"percentage"`
}

// DailyUsage is one day of a month. Date is YYYY-MM-DD.
type DailyUsage struct {
	Date         string          `json:"date"`
	CoinUsed     decimal.Decimal `json:"coinUsed"`
	MessageCount int64           `json:"messageCount"`
}

// MonthlyUsage breaks a month's spending down by model and by day.
type MonthlyUsage struct {
	Year          int             `json:"year"`
	Month         int             `json:"month"`
	TotalCoinUsed decimal.Decimal `json:"totalCoinUsed"`
	ModelUsage    []ModelUsage    `json:"modelUsage"`
	DailyUsage    []DailyUsage    `json:"dailyUsage"`
}

// UsageMonth selects a month. Zero fields let the server pick the current
// year or month.
type UsageMonth struct {
	Year  int `json:"year" validate:"omitempty,gte=2000,lte=9999"`
	Month int `json:"month" validate:"omitempty,gte=1,lte=12"`
}

// GetDashboardStats returns the account summary.
func (c *Client) GetDashboardStats(ctx context.Context) (DashboardStats, error) {
	return getJSON[DashboardStats](ctx, c, "get dashboard stats", "/api/v1/dashboard/stats", nil)
}

// GetMonthlyUsage returns usage for one month.
func (c *Client) GetMonthlyUsage(ctx context.Context, m UsageMonth) (MonthlyUsage, error) {
	if err := Validate(m); err != nil {
		return MonthlyUsage{}, err
	}
	q := url.Values{}
	if m.Year != 0 {
		q.Set("year", strconv.Itoa(m.Year))
	}
	if m.Month != 0 {
		q.Set("month", strconv.Itoa(m.Month))
	}
	return getJSON[MonthlyUsage](ctx, c, "get monthly usage", "/api/v1/dashboard/usage/monthly", q)
}

// GetModelsPricing returns the public price sheet. It needs no session.
func (c *Client) GetModelsPricing(ctx context.Context) ([]ModelPricing, error) {
	return getJSON[[]ModelPricing](ctx, c, "get model pricing", "/api/v1/dashboard/models/pricing", nil)
}
