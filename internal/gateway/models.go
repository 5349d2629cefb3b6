// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// AIModel is an entry of the model registry.
type AIModel struct {
	ModelID           int64           `json:"modelId"`
	ModelName         string          `json:"modelName"`
	DisplayName       string          `json:"displayName"`
	DisplayExplain    string          `json:"displayExplain"`
	InputPricePer1k   decimal.Decimal `json:"inputPricePer1k"`
	OutputPricePer1k  decimal.Decimal `json:"outputPricePer1k"`
	AveragePricePer1k decimal.Decimal `json:"averagePricePer1k"`
	IsActive          bool            `json:"isActive"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         *time.Time      `json:"updatedAt,omitempty"`
}

// EstimateCost prices a request at the model's per-1k rates.
func (m AIModel) EstimateCost(inputTokens, outputTokens int) decimal.Decimal {
	thousand := decimal.NewFromInt(1000)
	in := m.InputPricePer1k.Mul(decimal.NewFromInt(int64(inputTokens))).Div(thousand)
	out := m.OutputPricePer1k.Mul(decimal.NewFromInt(int64(outputTokens))).Div(thousand)
	return in.Add(out)
}

// ListModels returns every registered model.
func (c *Client) ListModels(ctx context.Context) ([]AIModel, error) {
	return getJSON[[]AIModel](ctx, c, "list models", "/api/v1/models", nil)
}

// GetModel returns one model.
func (c *Client) GetModel(ctx context.Context, modelID int64) (AIModel, error) {
	if modelID <= 0 {
		return AIModel{}, &ValidationError{Field: "modelId", Message: "must be greater than 0"}
	}
	return getJSON[AIModel](ctx, c, "get model", "/api/v1/models/"+strconv.FormatInt(modelID, 10), nil)
}

// =============================================================================
// MODEL CACHE
// =============================================================================

// ModelLister is the subset of Client the cache needs.
type ModelLister interface {
	ListModels(ctx context.Context) ([]AIModel, error)
}

// ModelCache keeps the model list for a TTL.
type ModelCache struct {
	source   ModelLister
	ttl      time.Duration
	now      func() time.Time
	mu       sync.RWMutex
	models   []AIModel
	cachedAt time.Time
}

// NewModelCache wraps source. A zero ttl disables caching.
func NewModelCache(source ModelLister, ttl time.Duration) *ModelCache {
	return &ModelCache{source: source, ttl: ttl, now: time.Now}
}

func (c *ModelCache) get() []AIModel {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.models == nil || c.now().Sub(c.cachedAt) > c.ttl {
		return nil
	}
	return c.models
}

// Models returns the cached list, fetching when stale.
func (c *ModelCache) Models(ctx context.Context) ([]AIModel, error) {
	if models := c.get(); models != nil {
		return models, nil
	}
	models, err := c.source.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	if models == nil {
		models = []AIModel{}
	}
	c.mu.Lock()
	c.models = models
	c.cachedAt = c.now()
	c.mu.Unlock()
	return models, nil
}

// Active returns only models accepting requests.
func (c *ModelCache) Active(ctx context.Context) ([]AIModel, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return nil, err
	}
	active := make([]AIModel, 0, len(models))
	for _, m := range models {
		if m.IsActive {
			active = append(active, m)
		}
	}
	return active, nil
}

// Lookup finds a model by id.
func (c *ModelCache) Lookup(ctx context.Context, modelID int64) (AIModel, bool, error) {
	models, err := c.Models(ctx)
	if err != nil {
		return AIModel{}, false, err
	}
	for _, m := range models {
		if m.ModelID == modelID {
			return m, true, nil
		}
	}
	return AIModel{}, false, nil
}

// Invalidate drops the cached list.
func (c *ModelCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.models = nil
}
