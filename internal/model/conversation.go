// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/jeranaias/chatgate/internal/gateway"
)

// MaxMessages is the maximum number of messages to keep in memory for a room.
// When exceeded, the oldest exchanges are pruned.
const MaxMessages = 1000

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the ordered message list of one chat room.
// It is not safe for concurrent use; the owner serializes access.
type Conversation struct {
	RoomID    string     `json:"room_id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Messages  []*Message `json:"messages"`
}

// NewConversation creates an empty conversation. roomID may be empty until
// the room is created on the server.
func NewConversation(roomID string) *Conversation {
	now := time.Now()
	return &Conversation{
		RoomID:    roomID,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AppendExchange appends a user message and its open assistant placeholder
// in one step.
func (c *Conversation) AppendExchange(text string, att *Attachment) (user, reply *Message) {
	user = NewUserMessage(text, att)
	reply = NewAssistantMessage()
	c.Messages = append(c.Messages, user, reply)
	c.UpdatedAt = time.Now()
	c.pruneOldMessages()
	return user, reply
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.Messages)
}

// Last returns the last message or nil.
func (c *Conversation) Last() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// Find returns the message with the given ID or nil.
func (c *Conversation) Find(id string) *Message {
	for _, msg := range c.Messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}

// LastAIResponseID returns the response id of the most recent completed
// reply, for chaining the next send.
func (c *Conversation) LastAIResponseID() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		msg := c.Messages[i]
		if msg.Role == RoleAssistant && msg.State == StateCompleted && msg.Metadata != nil && msg.Metadata.AIResponseID != "" {
			return msg.Metadata.AIResponseID
		}
	}
	return ""
}

// Snapshot returns detached copies of all messages.
func (c *Conversation) Snapshot() []Message {
	out := make([]Message, len(c.Messages))
	for i, msg := range c.Messages {
		out[i] = msg.Clone()
	}
	return out
}

// Clear removes all messages.
func (c *Conversation) Clear() {
	c.Messages = make([]*Message, 0)
	c.UpdatedAt = time.Now()
}

// Replace swaps in a loaded history.
func (c *Conversation) Replace(msgs []*Message) {
	c.Messages = msgs
	c.UpdatedAt = time.Now()
	c.pruneOldMessages()
}

// =============================================================================
// HISTORY CONVERSION
// =============================================================================

// MessageFromAPI converts a stored message from the history endpoint.
// Unknown roles are reported with ok=false.
func MessageFromAPI(m gateway.APIMessage) (msg *Message, ok bool) {
	role, ok := ParseRole(m.Role)
	if !ok {
		return nil, false
	}
	return &Message{
		ID:        m.MessageID,
		Role:      role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		State:     StateCompleted,
		Metadata: &Metadata{
			TokenCount: m.TokenCount,
			CoinCount:  m.CoinCount,
			ModelID:    m.ModelID,
		},
	}, true
}

// FromAPIMessages converts a room's history, skipping unknown roles.
// It returns the number of skipped entries.
func FromAPIMessages(roomID string, msgs []gateway.APIMessage) (*Conversation, int) {
	conv := NewConversation(roomID)
	skipped := 0
	for _, m := range msgs {
		msg, ok := MessageFromAPI(m)
		if !ok {
			skipped++
			continue
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if len(conv.Messages) > 0 {
		conv.CreatedAt = conv.Messages[0].CreatedAt
		conv.UpdatedAt = conv.Messages[len(conv.Messages)-1].CreatedAt
	}
	conv.pruneOldMessages()
	return conv, skipped
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// SetTitle manually sets the conversation title.
func (c *Conversation) SetTitle(title string) {
	c.Title = title
	c.UpdatedAt = time.Now()
}

// GetTitle returns the conversation title or a default.
func (c *Conversation) GetTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "New Conversation"
}

// pruneOldMessages drops the oldest messages in pairs so exchanges stay
// whole. An open reply is never pruned.
func (c *Conversation) pruneOldMessages() {
	excess := len(c.Messages) - MaxMessages
	if excess <= 0 {
		return
	}
	if excess%2 == 1 {
		excess++
	}
	if excess > len(c.Messages) {
		excess = len(c.Messages)
	}
	kept := make([]*Message, len(c.Messages)-excess)
	copy(kept, c.Messages[excess:])
	c.Messages = kept
}
