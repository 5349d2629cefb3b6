// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/jeranaias/chatgate/internal/gateway"
)

// Notice keys. The English text doubles as the catalog key.
const (
	noticeInsufficientBalance = "Insufficient balance. Please top up your wallet."
	noticeRoomNotFound        = "This chat room no longer exists."
	noticeModelUnavailable    = "The selected model is not available."
	noticeSignIn              = "Your session has expired. Please sign in again."
	noticeForbidden           = "You do not have access to this chat room."
	noticeTimeout             = "The response timed out. Please try again."
	noticeUnreachable         = "Could not reach the server. Please check your connection."
	noticeUpload              = "Image upload failed: %s"
	noticeRoomCreation        = "Could not create a chat room: %s"
	noticeGeneric             = "Error: %s"
	noticeImageTitle          = "Image"
	noticeCancelled           = "Stopped."
)

var supportedLanguages = []language.Tag{language.English, language.Korean}

var notices = func() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	ko := map[string]string{
		noticeInsufficientBalance: "잔액이 부족합니다. 지갑을 충전해 주세요.",
		noticeRoomNotFound:        "채팅방을 찾을 수 없습니다.",
		noticeModelUnavailable:    "선택한 모델을 사용할 수 없습니다.",
		noticeSignIn:              "세션이 만료되었습니다. 다시 로그인해 주세요.",
		noticeForbidden:           "이 채팅방에 접근할 권한이 없습니다.",
		noticeTimeout:             "응답 시간이 초과되었습니다. 다시 시도해 주세요.",
		noticeUnreachable:         "서버에 연결할 수 없습니다. 네트워크를 확인해 주세요.",
		noticeUpload:              "이미지 업로드 실패: %s",
		noticeRoomCreation:        "채팅방을 만들 수 없습니다: %s",
		noticeGeneric:             "오류: %s",
		noticeImageTitle:          "이미지",
		noticeCancelled:           "중단됨.",
	}
	for key, text := range ko {
		// Keys are compile-time constants; SetString only fails on a bad tag.
		_ = b.SetString(language.Korean, key, text)
		_ = b.SetString(language.English, key, key)
	}
	return b
}()

// NoticeFormatter renders short localized notices for errors shown in
// place of an assistant reply.
type NoticeFormatter struct {
	tag     language.Tag
	printer *message.Printer
}

// NewNoticeFormatter picks the closest supported language to lang.
// Unknown or empty values fall back to English.
func NewNoticeFormatter(lang string) *NoticeFormatter {
	tag := language.English
	if lang != "" {
		if parsed, err := language.Parse(lang); err == nil {
			_, idx, conf := language.NewMatcher(supportedLanguages).Match(parsed)
			if conf != language.No {
				tag = supportedLanguages[idx]
			}
		}
	}
	return &NoticeFormatter{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(notices)),
	}
}

// Language returns the selected language.
func (f *NoticeFormatter) Language() language.Tag {
	return f.tag
}

// Format returns the notice for err.
func (f *NoticeFormatter) Format(err error) string {
	var (
		uploadErr *UploadError
		roomErr   *RoomCreationError
		serverErr *gateway.ServerError
		transErr  *gateway.TransportError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &uploadErr):
		return f.printer.Sprintf(noticeUpload, f.detail(uploadErr.Err))
	case errors.As(err, &roomErr):
		return f.printer.Sprintf(noticeRoomCreation, f.detail(roomErr.Err))
	case errors.Is(err, gateway.ErrInsufficientBalance), errors.Is(err, ErrNegativeBalance):
		return f.printer.Sprintf(noticeInsufficientBalance)
	case errors.Is(err, gateway.ErrRoomNotFound):
		return f.printer.Sprintf(noticeRoomNotFound)
	case errors.Is(err, gateway.ErrModelNotFound), errors.Is(err, gateway.ErrModelNotActive):
		return f.printer.Sprintf(noticeModelUnavailable)
	case errors.Is(err, gateway.ErrUnauthenticated):
		return f.printer.Sprintf(noticeSignIn)
	case errors.Is(err, gateway.ErrForbidden):
		return f.printer.Sprintf(noticeForbidden)
	case errors.Is(err, gateway.ErrIdleTimeout), errors.Is(err, context.DeadlineExceeded):
		return f.printer.Sprintf(noticeTimeout)
	case errors.As(err, &serverErr):
		return f.printer.Sprintf(noticeGeneric, f.detail(serverErr))
	case errors.As(err, &transErr) && transErr.Status == 0:
		return f.printer.Sprintf(noticeUnreachable)
	}
	return f.printer.Sprintf(noticeGeneric, err.Error())
}

// detail prefers the server's message over the full error chain.
func (f *NoticeFormatter) detail(err error) string {
	var serverErr *gateway.ServerError
	if errors.As(err, &serverErr) && serverErr.Message != "" {
		return serverErr.Message
	}
	var vErr *gateway.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Error()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// ImageTitle is the room title used when the first send has no text.
func (f *NoticeFormatter) ImageTitle() string {
	return f.printer.Sprintf(noticeImageTitle)
}

// Cancelled is shown for a reply stopped before any text arrived.
func (f *NoticeFormatter) Cancelled() string {
	return f.printer.Sprintf(noticeCancelled)
}
