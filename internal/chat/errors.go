// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
)

// Synchronous rejections returned by Send.
var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrSendInProgress  = errors.New("a reply is still streaming")
	ErrNegativeBalance = errors.New("wallet balance is negative")
)

// ErrNoRoom is returned by room-scoped operations before a room exists.
var ErrNoRoom = errors.New("no chat room selected")

// ErrNoAttachment is returned by Upload when nothing is attached.
var ErrNoAttachment = errors.New("no attachment")

// UploadError wraps a failed attachment upload.
type UploadError struct {
	Err error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload attachment: %v", e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// RoomCreationError wraps a failed lazy room creation.
type RoomCreationError struct {
	Err error
}

func (e *RoomCreationError) Error() string {
	return fmt.Sprintf("create room: %v", e.Err)
}

func (e *RoomCreationError) Unwrap() error {
	return e.Err
}
