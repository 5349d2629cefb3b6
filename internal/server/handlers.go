// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/chatgate/internal/gateway"
)

// ============================================================================
// ROOMS
// ============================================================================

func (s *Server) handleCreateRoom(c *gin.Context) {
	var req gateway.CreateRoomRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if _, ok := s.store.model(req.ModelID); !ok {
		writeError(c, http.StatusNotFound, "MODEL_NOT_FOUND", "model "+strconv.FormatInt(req.ModelID, 10)+" does not exist")
		return
	}
	room := s.store.createRoom(req.Title, req.ModelID)
	s.log.Debugw("room created", "room", room.RoomID, "title", room.Title)
	writeJSON(c, http.StatusCreated, room)
}

func (s *Server) handleGetRoom(c *gin.Context) {
	room, ok := s.store.room(c.Param("roomId"))
	if !ok {
		writeError(c, http.StatusNotFound, "ROOM_NOT_FOUND", "chat room not found")
		return
	}
	writeJSON(c, http.StatusOK, room)
}

func (s *Server) handleDeleteRoom(c *gin.Context) {
	if !s.store.deleteRoom(c.Param("roomId")) {
		writeError(c, http.StatusNotFound, "ROOM_NOT_FOUND", "chat room not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListRooms(c *gin.Context) {
	page, size, ok := pageParams(c, 20, gateway.MaxRoomPageSize)
	if !ok {
		return
	}
	writeJSON(c, http.StatusOK, paginate(s.store.listRooms(c.Query("sort")), page, size))
}

// ============================================================================
// MESSAGES
// ============================================================================

func (s *Server) handleListMessages(c *gin.Context) {
	page, size, ok := pageParams(c, 50, gateway.MaxMessagePage)
	if !ok {
		return
	}
	msgs, found := s.store.listMessages(c.Param("roomId"), c.Query("sort"))
	if !found {
		writeError(c, http.StatusNotFound, "ROOM_NOT_FOUND", "chat room not found")
		return
	}
	writeJSON(c, http.StatusOK, paginate(msgs, page, size))
}

func (s *Server) handleGetMessage(c *gin.Context) {
	msg, ok := s.store.message(c.Param("messageId"))
	if !ok {
		writeError(c, http.StatusNotFound, "MESSAGE_NOT_FOUND", "message not found")
		return
	}
	writeJSON(c, http.StatusOK, msg)
}

// handleUpload accepts a multipart "file" part plus a "modelId" field and
// returns a single-use file id.
func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, gateway.MaxFileSize+MaxRequestBodySize)

	modelID, err := strconv.ParseInt(c.PostForm("modelId"), 10, 64)
	if err != nil || modelID <= 0 {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "modelId must be a positive integer")
		return
	}
	if _, ok := s.store.model(modelID); !ok {
		writeError(c, http.StatusNotFound, "MODEL_NOT_FOUND", "model does not exist")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "file part is required")
		return
	}
	if fh.Size > gateway.MaxFileSize {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "file exceeds 50MB")
		return
	}

	f, err := fh.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "unreadable file part")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "unreadable file part")
		return
	}

	contentType := fh.Header.Get("Content-Type")
	if mt, _, perr := mime.ParseMediaType(contentType); perr != nil || mt == "application/octet-stream" {
		contentType = gateway.DetectType(data)
	}
	if !gateway.IsAllowedType(contentType) {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "unsupported file type "+contentType)
		return
	}

	id := s.store.addFile(storedFile{
		name:        fh.Filename,
		contentType: contentType,
		size:        len(data),
		modelID:     modelID,
	})
	s.log.Debugw("file uploaded", "file", id, "name", fh.Filename, "type", contentType, "bytes", len(data))
	writeJSON(c, http.StatusOK, gin.H{"fileId": id})
}

// ============================================================================
// MODELS
// ============================================================================

func (s *Server) handleListModels(c *gin.Context) {
	writeJSON(c, http.StatusOK, s.store.listModels())
}

func (s *Server) handleGetModel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("modelId"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "modelId must be an integer")
		return
	}
	m, ok := s.store.model(id)
	if !ok {
		writeError(c, http.StatusNotFound, "MODEL_NOT_FOUND", "model not found")
		return
	}
	writeJSON(c, http.StatusOK, m)
}

// ============================================================================
// WALLET
// ============================================================================

func (s *Server) handleBalance(c *gin.Context) {
	writeJSON(c, http.StatusOK, gateway.Balance{Balance: s.store.balance()})
}

func (s *Server) handleWallet(c *gin.Context) {
	writeJSON(c, http.StatusOK, s.store.walletInfo())
}

func (s *Server) handleGetTransaction(c *gin.Context) {
	tx, ok := s.store.transaction(c.Param("transactionId"))
	if !ok {
		writeError(c, http.StatusNotFound, "TRANSACTION_NOT_FOUND", "transaction not found")
		return
	}
	writeJSON(c, http.StatusOK, tx)
}

// ============================================================================
// PAYMENTS, USER AND DASHBOARD
// ============================================================================

func (s *Server) handleListPayments(c *gin.Context) {
	page, size, ok := pageParams(c, 20, gateway.MaxPaymentPageSize)
	if !ok {
		return
	}
	status := gateway.PaymentStatus(c.Query("status"))
	switch status {
	case "", gateway.PaymentPending, gateway.PaymentCompleted, gateway.PaymentFailed, gateway.PaymentCancelled:
	default:
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "unknown payment status "+strconv.Quote(string(status)))
		return
	}
	writeJSON(c, http.StatusOK, paginate(s.store.listPayments(status), page, size))
}

func (s *Server) handleGetPayment(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("paymentId"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "paymentId must be a positive integer")
		return
	}
	p, ok := s.store.payment(id)
	if !ok {
		writeError(c, http.StatusNotFound, "PAYMENT_NOT_FOUND", "payment not found")
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (s *Server) handleCurrentUser(c *gin.Context) {
	writeJSON(c, http.StatusOK, s.store.currentUser())
}

func (s *Server) handleDashboardStats(c *gin.Context) {
	writeJSON(c, http.StatusOK, s.store.stats())
}

// handleMonthlyUsage defaults year and month to the current UTC month.
func (s *Server) handleMonthlyUsage(c *gin.Context) {
	now := s.store.now().UTC()
	year, err := strconv.Atoi(c.DefaultQuery("year", strconv.Itoa(now.Year())))
	if err != nil || year < 2000 || year > 9999 {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "year must be between 2000 and 9999")
		return
	}
	month, err := strconv.Atoi(c.DefaultQuery("month", strconv.Itoa(int(now.Month()))))
	if err != nil || month < 1 || month > 12 {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "month must be between 1 and 12")
		return
	}
	writeJSON(c, http.StatusOK, s.store.monthlyUsage(year, month))
}

func (s *Server) handleModelsPricing(c *gin.Context) {
	writeJSON(c, http.StatusOK, s.store.pricing())
}

// ============================================================================
// HELPERS
// ============================================================================

// bindJSON decodes and validates the body, writing a 400 on failure.
func (s *Server) bindJSON(c *gin.Context, v interface{}) bool {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBodySize)
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "malformed request body")
		return false
	}
	if err := gateway.Validate(v); err != nil {
		var ve *gateway.ValidationError
		msg := err.Error()
		if errors.As(err, &ve) {
			msg = ve.Field + " " + ve.Message
		}
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", msg)
		return false
	}
	return true
}

// pageParams reads page/size with defaults, writing a 400 when invalid.
func pageParams(c *gin.Context, defaultSize, maxSize int) (int, int, bool) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "page must be a non-negative integer")
		return 0, 0, false
	}
	size, err := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(defaultSize)))
	if err != nil || size < 1 || size > maxSize {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "size must be between 1 and "+strconv.Itoa(maxSize))
		return 0, 0, false
	}
	return page, size, true
}

// paginate slices items into a zero-based page.
func paginate[T any](items []T, page, size int) gateway.Page[T] {
	total := len(items)
	start := page * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return gateway.Page[T]{
		Content:       append([]T{}, items[start:end]...),
		TotalElements: total,
		TotalPages:    (total + size - 1) / size,
		Size:          size,
		Number:        page,
	}
}
