// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"golang.org/x/text/language"

	"github.com/jeranaias/chatgate/internal/gateway"
)

func TestNewNoticeFormatter_Language(t *testing.T) {
	tests := []struct {
		in   string
		want language.Tag
	}{
		{"", language.English},
		{"en", language.English},
		{"ko", language.Korean},
		{"ko-KR", language.Korean},
		{"fr", language.English},
		{"not a tag!", language.English},
	}
	for _, tc := range tests {
		if got := NewNoticeFormatter(tc.in).Language(); got != tc.want {
			t.Errorf("NewNoticeFormatter(%q).Language() = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNoticeFormatter_Format(t *testing.T) {
	insufficient := &gateway.ServerError{Code: gateway.CodeInsufficientBalance, Status: 400}
	idle := &gateway.ProtocolError{Reason: "idle timeout", Err: gateway.ErrIdleTimeout}
	unreachable := &gateway.TransportError{Op: "send message", Err: errors.New("connection refused")}

	tests := []struct {
		name string
		lang string
		err  error
		want string
	}{
		{"nil", "en", nil, ""},
		{"insufficient en", "en", insufficient, "Insufficient balance. Please top up your wallet."},
		{"insufficient ko", "ko", insufficient, "잔액이 부족합니다. 지갑을 충전해 주세요."},
		{"wrapped insufficient", "en", fmt.Errorf("send: %w", insufficient), "Insufficient balance. Please top up your wallet."},
		{"negative balance", "en", ErrNegativeBalance, "Insufficient balance. Please top up your wallet."},
		{"room not found", "ko", &gateway.ServerError{Code: gateway.CodeRoomNotFound, Status: 404}, "채팅방을 찾을 수 없습니다."},
		{"model inactive", "en", &gateway.ServerError{Code: gateway.CodeModelNotActive}, "The selected model is not available."},
		{"unauthenticated by status", "en", &gateway.ServerError{Code: gateway.CodeUnknown, Status: http.StatusUnauthorized}, "Your session has expired. Please sign in again."},
		{"forbidden", "en", &gateway.ServerError{Code: gateway.CodeForbidden, Status: 403}, "You do not have access to this chat room."},
		{"idle timeout", "ko", idle, "응답 시간이 초과되었습니다. 다시 시도해 주세요."},
		{"deadline", "en", context.DeadlineExceeded, "The response timed out. Please try again."},
		{"unreachable", "en", unreachable, "Could not reach the server. Please check your connection."},
		{"server message", "ko", &gateway.ServerError{Code: gateway.CodeIllegalState, Message: "잠시 후 다시 시도"}, "오류: 잠시 후 다시 시도"},
		{"upload", "en", &UploadError{Err: &gateway.ServerError{Code: gateway.CodeValidation, Message: "too big"}}, "Image upload failed: too big"},
		{"room creation", "ko", &RoomCreationError{Err: errors.New("boom")}, "채팅방을 만들 수 없습니다: boom"},
		{"generic", "en", errors.New("boom"), "Error: boom"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NewNoticeFormatter(tc.lang).Format(tc.err); got != tc.want {
				t.Errorf("Format() = %q, want %q", got, tc.want)
			}
		})
	}
}
