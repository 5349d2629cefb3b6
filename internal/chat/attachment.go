// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/chatgate/internal/gateway"
	"github.com/jeranaias/chatgate/internal/model"
)

// Attachment is an image queued for the next send. FileID is set once the
// file has been uploaded and is consumed by exactly one send.
type Attachment struct {
	File   gateway.UploadFile
	FileID string
	// Path is the local file the image was read from, if any.
	Path string

	// uploading is closed when an in-flight upload finishes. Guarded by the
	// owning Controller's lock.
	uploading chan struct{}
}

// NewAttachment validates f against the upload limits.
func NewAttachment(f gateway.UploadFile) (*Attachment, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &Attachment{File: f}, nil
}

// AttachmentFromPath reads and validates a local image.
func AttachmentFromPath(path string) (*Attachment, error) {
	f, err := gateway.LoadFile(path)
	if err != nil {
		return nil, err
	}
	att, err := NewAttachment(f)
	if err != nil {
		return nil, err
	}
	att.Path = path
	return att, nil
}

// AttachmentFromDataURI decodes a pasted image.
func AttachmentFromDataURI(uri string) (*Attachment, error) {
	f, err := gateway.ParseDataURI(uri)
	if err != nil {
		return nil, err
	}
	return NewAttachment(f)
}

// Preview returns the local path when known, otherwise a data URI.
func (a *Attachment) Preview() string {
	if a.Path != "" {
		return a.Path
	}
	return a.File.DataURI()
}

// reference is the display form kept on the user message.
func (a *Attachment) reference() *model.Attachment {
	if a == nil {
		return nil
	}
	return &model.Attachment{
		FileID:      a.FileID,
		Name:        a.File.Name,
		ContentType: a.File.ContentType,
		Preview:     a.Preview(),
	}
}
