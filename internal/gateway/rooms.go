// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROOM TYPES
// =============================================================================

// Room is an entry of the room list.
type Room struct {
	RoomID        string          `json:"roomId"`
	Title         string          `json:"title"`
	CoinUsage     decimal.Decimal `json:"coinUsage"`
	LastMessageAt *time.Time      `json:"lastMessageAt"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// RoomDetail is returned by room creation and room lookup.
type RoomDetail struct {
	RoomID    string          `json:"roomId"`
	Title     string          `json:"title"`
	UserID    int64           `json:"userId"`
	CoinUsage decimal.Decimal `json:"coinUsage"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// CreateRoomRequest creates a room bound to a model.
type CreateRoomRequest struct {
	Title   string `json:"title" validate:"notblank,maxrunes=30"`
	ModelID int64  `json:"modelId" validate:"gt=0"`
}

// Page is the paginated list shape used by every list endpoint.
type Page[T any] struct {
	Content       []T `json:"content"`
	TotalElements int `json:"totalElements"`
	TotalPages    int `json:"totalPages"`
	Size          int `json:"size"`
	Number        int `json:"number"`
}

// Last reports whether this is the final page.
func (p Page[T]) Last() bool {
	return p.Number+1 >= p.TotalPages
}

// PageParams selects a page of a list endpoint. Zero Size means the
// endpoint default.
type PageParams struct {
	Page int    `json:"page" validate:"gte=0"`
	Size int    `json:"size" validate:"gte=0"`
	Sort string `json:"sort"`
}

func (p PageParams) query(defaultSize int, defaultSort string) url.Values {
	size := p.Size
	if size == 0 {
		size = defaultSize
	}
	sort := p.Sort
	if sort == "" {
		sort = defaultSort
	}
	return url.Values{
		"page": {strconv.Itoa(p.Page)},
		"size": {strconv.Itoa(size)},
		"sort": {sort},
	}
}

// SortParam formats a "field,direction" sort value.
func SortParam(field string, desc bool) string {
	if desc {
		return field + ",desc"
	}
	return field + ",asc"
}

// =============================================================================
// ROOM ENDPOINTS
// =============================================================================

// ListRooms returns a page of the caller's rooms, newest first by default.
func (c *Client) ListRooms(ctx context.Context, p PageParams) (Page[Room], error) {
	if err := Validate(p); err != nil {
		return Page[Room]{}, err
	}
	if p.Size > MaxRoomPageSize {
		return Page[Room]{}, &ValidationError{Field: "size", Message: "must be at most 100"}
	}
	return getJSON[Page[Room]](ctx, c, "list rooms", "/api/v1/chat-rooms", p.query(20, SortParam("createdAt", true)))
}

// CreateRoom creates a room and returns it.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (RoomDetail, error) {
	if err := Validate(req); err != nil {
		return RoomDetail{}, err
	}
	return sendJSON[RoomDetail](ctx, c, "create room", http.MethodPost, "/api/v1/chat-rooms", req)
}

// GetRoom returns one room.
func (c *Client) GetRoom(ctx context.Context, roomID string) (RoomDetail, error) {
	if roomID == "" {
		return RoomDetail{}, &ValidationError{Field: "roomId", Message: "is required"}
	}
	return getJSON[RoomDetail](ctx, c, "get room", "/api/v1/chat-rooms/"+url.PathEscape(roomID), nil)
}

// DeleteRoom removes a room and its messages.
func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return &ValidationError{Field: "roomId", Message: "is required"}
	}
	return c.deleteResource(ctx, "delete room", "/api/v1/chat-rooms/"+url.PathEscape(roomID))
}
