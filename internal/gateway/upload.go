// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// =============================================================================
// UPLOAD LIMITS
// =============================================================================

// MaxFileSize is the largest accepted upload.
const MaxFileSize = 50 * 1024 * 1024

// AllowedImageTypes are the image encodings the send endpoint accepts.
var AllowedImageTypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/gif",
	"image/webp",
}

// AllowedDocumentTypes are non-image uploads the backend accepts.
var AllowedDocumentTypes = []string{
	"application/pdf",
	"text/plain",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"text/csv",
}

// IsImageType reports whether contentType is an accepted image encoding.
func IsImageType(contentType string) bool {
	return contains(AllowedImageTypes, baseMediaType(contentType))
}

// IsAllowedType reports whether contentType may be uploaded at all.
func IsAllowedType(contentType string) bool {
	mt := baseMediaType(contentType)
	return contains(AllowedImageTypes, mt) || contains(AllowedDocumentTypes, mt)
}

func baseMediaType(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// =============================================================================
// UPLOAD FILE
// =============================================================================

// UploadFile is a file ready to be sent to the upload endpoint.
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Validate applies the size and type limits.
func (f UploadFile) Validate() error {
	if len(f.Data) == 0 {
		return &ValidationError{Field: "file", Message: "is empty"}
	}
	if len(f.Data) > MaxFileSize {
		return &ValidationError{Field: "file", Message: fmt.Sprintf("exceeds %dMB", MaxFileSize/1024/1024)}
	}
	if !IsAllowedType(f.ContentType) {
		return &ValidationError{Field: "file", Message: fmt.Sprintf("unsupported file type (%s)", f.ContentType)}
	}
	return nil
}

// DataURI renders the file as a data URI for local previews.
func (f UploadFile) DataURI() string {
	return "data:" + f.ContentType + ";base64," + base64.StdEncoding.EncodeToString(f.Data)
}

// ParseDataURI decodes a base64 data URI such as a pasted image.
func ParseDataURI(uri string) (UploadFile, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return UploadFile{}, &ValidationError{Field: "file", Message: "not a data URI"}
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return UploadFile{}, &ValidationError{Field: "file", Message: "data URI has no payload"}
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return UploadFile{}, &ValidationError{Field: "file", Message: "data URI must be base64"}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return UploadFile{}, &ValidationError{Field: "file", Message: "invalid base64 payload"}
	}
	if contentType == "" {
		contentType = DetectType(data)
	}

	ext := ".bin"
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		ext = exts[0]
	}
	return UploadFile{
		Name:        fmt.Sprintf("pasted-image-%d%s", time.Now().UnixMilli(), ext),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// LoadFile reads a file from disk, sniffing its type when the extension is
// not conclusive.
func LoadFile(path string) (UploadFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return UploadFile{}, err
	}
	if info.Size() > MaxFileSize {
		return UploadFile{}, &ValidationError{Field: "file", Message: fmt.Sprintf("exceeds %dMB", MaxFileSize/1024/1024)}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return UploadFile{}, err
	}
	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = DetectType(data)
	}
	return UploadFile{Name: filepath.Base(path), ContentType: baseMediaType(contentType), Data: data}, nil
}

// DetectType sniffs the media type of data from its leading bytes.
func DetectType(data []byte) string {
	return baseMediaType(mimetype.Detect(data).String())
}

// =============================================================================
// UPLOAD ENDPOINT
// =============================================================================

type uploadResponse struct {
	FileID string `json:"fileId"`
}

// Upload sends f for use with modelID and returns the single-use file id.
func (c *Client) Upload(ctx context.Context, modelID int64, f UploadFile) (string, error) {
	const op = "upload file"

	if modelID <= 0 {
		return "", &ValidationError{Field: "modelId", Message: "must be greater than 0"}
	}
	if err := f.Validate(); err != nil {
		return "", err
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": f.Name,
	}))
	hdr.Set("Content-Type", f.ContentType)
	part, err := w.CreatePart(hdr)
	if err != nil {
		return "", fmt.Errorf("%s: build form: %w", op, err)
	}
	if _, err := part.Write(f.Data); err != nil {
		return "", fmt.Errorf("%s: build form: %w", op, err)
	}
	if err := w.WriteField("modelId", strconv.FormatInt(modelID, 10)); err != nil {
		return "", fmt.Errorf("%s: build form: %w", op, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("%s: build form: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/api/v1/messages/files/upload", nil), &body)
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	c.log.Debugw("uploading file", "name", f.Name, "type", f.ContentType, "bytes", len(f.Data), "model", modelID)

	resp, err := doJSON[uploadResponse](ctx, c, op, req)
	if err != nil {
		return "", err
	}
	if resp.FileID == "" {
		return "", &ProtocolError{Reason: op + ": response has no fileId"}
	}
	return resp.FileID, nil
}
