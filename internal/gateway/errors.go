// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// =============================================================================
// ERROR CODES
// =============================================================================

// ErrorCode is the closed set of backend error codes. Codes the client does
// not know decode to CodeUnknown with the raw string kept on ServerError.
type ErrorCode int

const (
	CodeUnknown ErrorCode = iota
	CodeValidation
	CodeInsufficientBalance
	CodeRoomNotFound
	CodeModelNotFound
	CodeModelNotActive
	CodeInvalidToken
	CodeAuthenticationFailed
	CodeForbidden
	CodeMessageNotFound
	CodeWalletNotFound
	CodeTransactionNotFound
	CodePaymentNotFound
	CodeIllegalState
)

var codeNames = map[ErrorCode]string{
	CodeValidation:           "VALIDATION_ERROR",
	CodeInsufficientBalance:  "INSUFFICIENT_BALANCE",
	CodeRoomNotFound:         "ROOM_NOT_FOUND",
	CodeModelNotFound:        "MODEL_NOT_FOUND",
	CodeModelNotActive:       "MODEL_NOT_ACTIVE",
	CodeInvalidToken:         "INVALID_TOKEN",
	CodeAuthenticationFailed: "AUTHENTICATION_FAILED",
	CodeForbidden:            "FORBIDDEN",
	CodeMessageNotFound:      "MESSAGE_NOT_FOUND",
	CodeWalletNotFound:       "WALLET_NOT_FOUND",
	CodeTransactionNotFound:  "TRANSACTION_NOT_FOUND",
	CodePaymentNotFound:      "PAYMENT_NOT_FOUND",
	CodeIllegalState:         "SYSTEM_ILLEGAL_STATE",
}

var codesByName = func() map[string]ErrorCode {
	m := make(map[string]ErrorCode, len(codeNames))
	for code, name := range codeNames {
		m[name] = code
	}
	return m
}()

// ParseErrorCode maps a wire code to its ErrorCode. Unrecognized codes
// return CodeUnknown.
func ParseErrorCode(raw string) ErrorCode {
	if code, ok := codesByName[raw]; ok {
		return code
	}
	return CodeUnknown
}

// String returns the wire name, or "UNKNOWN".
func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsAuth reports whether the code means the session is missing or expired.
func (c ErrorCode) IsAuth() bool {
	return c == CodeInvalidToken || c == CodeAuthenticationFailed
}

// IsNotFound reports whether the code names a missing resource.
func (c ErrorCode) IsNotFound() bool {
	switch c {
	case CodeRoomNotFound, CodeModelNotFound, CodeMessageNotFound,
		CodeWalletNotFound, CodeTransactionNotFound, CodePaymentNotFound:
		return true
	}
	return false
}

// =============================================================================
// SENTINELS
// =============================================================================

// Sentinels for errors.Is matching against *ServerError.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrRoomNotFound        = errors.New("room not found")
	ErrModelNotFound       = errors.New("model not found")
	ErrModelNotActive      = errors.New("model not active")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ValidationError is a request rejected locally before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// ServerError is a non-success response carrying the JSON error envelope.
type ServerError struct {
	Code    ErrorCode
	RawCode string
	Message string
	Details string
	Status  int
}

func (e *ServerError) Error() string {
	code := e.RawCode
	if code == "" {
		code = e.Code.String()
	}
	if e.Message == "" {
		return fmt.Sprintf("server error [%s] (HTTP %d)", code, e.Status)
	}
	return fmt.Sprintf("server error [%s] (HTTP %d): %s", code, e.Status, e.Message)
}

// Is allows errors.Is(err, ErrInsufficientBalance) and friends.
func (e *ServerError) Is(target error) bool {
	switch target {
	case ErrInsufficientBalance:
		return e.Code == CodeInsufficientBalance
	case ErrRoomNotFound:
		return e.Code == CodeRoomNotFound
	case ErrModelNotFound:
		return e.Code == CodeModelNotFound
	case ErrModelNotActive:
		return e.Code == CodeModelNotActive
	case ErrUnauthenticated:
		return e.Code.IsAuth() || (e.Code == CodeUnknown && e.Status == http.StatusUnauthorized)
	case ErrForbidden:
		return e.Code == CodeForbidden || (e.Code == CodeUnknown && e.Status == http.StatusForbidden)
	case ErrNotFound:
		return e.Code.IsNotFound()
	}
	return false
}

// TransportError is a failure below the envelope: connection errors and
// non-success responses whose body is not the JSON error shape.
type TransportError struct {
	Op     string
	Status int // 0 when no response was received
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: HTTP %d %s", e.Op, e.Status, http.StatusText(e.Status))
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is a malformed or unreadable event stream.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ErrIdleTimeout is wrapped by the ProtocolError raised when a stream stalls.
var ErrIdleTimeout = errors.New("stream idle timeout")
