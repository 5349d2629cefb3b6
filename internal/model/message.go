// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// ParseRole maps a wire role to a Role. Matching is case-insensitive.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return RoleUser, true
	case "assistant":
		return RoleAssistant, true
	}
	return Role(s), false
}

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle of a message. User messages are created
// completed; assistant replies start open.
type State int

const (
	StateOpen State = iota
	StateCompleted
	StateError
	StateCancelled
	// StateIncomplete marks a reply whose stream closed without a
	// completed event.
	StateIncomplete
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	case StateCancelled:
		return "cancelled"
	case StateIncomplete:
		return "incomplete"
	}
	return "unknown"
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Attachment is the image reference shown with a user message.
type Attachment struct {
	FileID      string `json:"file_id,omitempty"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	// Preview is a data URI or local path used for display.
	Preview string `json:"-"`
}

// Metadata is filled in once an exchange completes, or from history.
type Metadata struct {
	UserMessageID string          `json:"user_message_id,omitempty"`
	AIResponseID  string          `json:"ai_response_id,omitempty"`
	InputTokens   int             `json:"input_tokens,omitempty"`
	OutputTokens  int             `json:"output_tokens,omitempty"`
	TokenCount    int             `json:"token_count,omitempty"`
	CoinCount     decimal.Decimal `json:"coin_count"`
	ModelID       int64           `json:"model_id,omitempty"`
}

// Message represents a single message in a conversation.
type Message struct {
	ID         string      `json:"id"`
	Role       Role        `json:"role"`
	Content    string      `json:"content"`
	Attachment *Attachment `json:"attachment,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	Metadata   *Metadata   `json:"metadata,omitempty"`
	State      State       `json:"state"`

	// PERFORMANCE: strings.Builder avoids quadratic allocations during streaming
	stream strings.Builder
}

// NewUserMessage creates a user message with a client-generated ID.
func NewUserMessage(content string, att *Attachment) *Message {
	var a *Attachment
	if att != nil {
		cp := *att
		a = &cp
	}
	return &Message{
		ID:         uuid.NewString(),
		Role:       RoleUser,
		Content:    content,
		Attachment: a,
		CreatedAt:  time.Now(),
		State:      StateCompleted,
	}
}

// NewAssistantMessage creates an empty, open assistant placeholder.
func NewAssistantMessage() *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
		State:     StateOpen,
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// IsOpen reports whether the message still accepts deltas.
func (m *Message) IsOpen() bool {
	return m.State == StateOpen
}

// AppendDelta appends streamed text. It returns false once the message is
// frozen.
func (m *Message) AppendDelta(text string) bool {
	if m.State != StateOpen {
		return false
	}
	m.stream.WriteString(text)
	return true
}

// Text returns the content to display, including text still streaming.
func (m *Message) Text() string {
	if m.State == StateOpen && m.stream.Len() > 0 {
		return m.Content + m.stream.String()
	}
	return m.Content
}

// freeze moves streamed text into Content and leaves the open state.
func (m *Message) freeze(s State) bool {
	if m.State != StateOpen {
		return false
	}
	m.Content += m.stream.String()
	m.stream.Reset()
	m.State = s
	return true
}

// Complete freezes the reply and attaches its metadata.
func (m *Message) Complete(meta Metadata) {
	if !m.freeze(StateCompleted) {
		return
	}
	m.Metadata = &meta
}

// SetMetadata records metadata on an already frozen message, such as the
// user half of a completed exchange.
func (m *Message) SetMetadata(meta Metadata) {
	m.Metadata = &meta
}

// Fail replaces the reply with an error notice.
func (m *Message) Fail(notice string) {
	if !m.freeze(StateError) {
		return
	}
	m.Content = notice
}

// Cancel freezes the reply with whatever text has arrived.
func (m *Message) Cancel() {
	m.freeze(StateCancelled)
}

// MarkIncomplete freezes a reply whose stream ended early.
func (m *Message) MarkIncomplete() {
	m.freeze(StateIncomplete)
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	content := m.Text()
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0 && m.stream.Len() == 0
}

// Clone returns a detached copy. Streamed text is materialized into
// Content so the copy never shares the builder.
func (m *Message) Clone() Message {
	out := Message{
		ID:        m.ID,
		Role:      m.Role,
		Content:   m.Text(),
		CreatedAt: m.CreatedAt,
		State:     m.State,
	}
	if m.Attachment != nil {
		a := *m.Attachment
		out.Attachment = &a
	}
	if m.Metadata != nil {
		md := *m.Metadata
		out.Metadata = &md
	}
	return out
}
