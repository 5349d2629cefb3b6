// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// APIMessage is a stored message as returned by the history endpoint.
type APIMessage struct {
	MessageID  string          `json:"messageId"`
	Role       string          `json:"role"`
	Content    string          `json:"content"`
	TokenCount int             `json:"tokenCount"`
	CoinCount  decimal.Decimal `json:"coinCount"`
	ModelID    int64           `json:"modelId"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// MessageDetail is a single stored message with its room and attachment.
type MessageDetail struct {
	APIMessage
	RoomID  string  `json:"roomId"`
	FileURL *string `json:"fileUrl"`
}

// ListMessages returns a page of a room's history, oldest first by default.
func (c *Client) ListMessages(ctx context.Context, roomID string, p PageParams) (Page[APIMessage], error) {
	if roomID == "" {
		return Page[APIMessage]{}, &ValidationError{Field: "roomId", Message: "is required"}
	}
	if err := Validate(p); err != nil {
		return Page[APIMessage]{}, err
	}
	if p.Size > MaxMessagePage {
		return Page[APIMessage]{}, &ValidationError{Field: "size", Message: "must be at most 200"}
	}
	return getJSON[Page[APIMessage]](ctx, c, "list messages",
		"/api/v1/messages/page/"+url.PathEscape(roomID), p.query(50, SortParam("createdAt", false)))
}

// AllMessages walks every history page of a room.
func (c *Client) AllMessages(ctx context.Context, roomID string) ([]APIMessage, error) {
	var out []APIMessage
	for page := 0; ; page++ {
		p, err := c.ListMessages(ctx, roomID, PageParams{Page: page, Size: MaxMessagePage})
		if err != nil {
			return nil, err
		}
		out = append(out, p.Content...)
		if p.Last() || len(p.Content) == 0 {
			return out, nil
		}
	}
}

// GetMessage returns one stored message.
func (c *Client) GetMessage(ctx context.Context, messageID string) (MessageDetail, error) {
	if messageID == "" {
		return MessageDetail{}, &ValidationError{Field: "messageId", Message: "is required"}
	}
	return getJSON[MessageDetail](ctx, c, "get message", "/api/v1/messages/"+url.PathEscape(messageID), nil)
}
