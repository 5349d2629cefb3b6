// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Message: one user or assistant turn with its attachment, metadata and
//     lifecycle state
//   - Conversation: the ordered message list of a chat room
//   - Role: message role (user, assistant)
//   - State: lifecycle of an assistant reply (open, completed, error,
//     cancelled, incomplete)
//
// # Usage
//
// An exchange is always appended as a pair:
//
//	conv := model.NewConversation(roomID)
//	user, reply := conv.AppendExchange("hello", nil)
//	reply.AppendDelta("Hi")
//	reply.Complete(meta)
//
// Assistant content only grows while the reply is open. Once a reply is
// completed, failed or cancelled its content is frozen.
package model
