// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns the conversation state of one chat room and drives a
// streamed exchange with the gateway.
//
// A Controller accepts at most one send at a time. An accepted send runs on
// its own goroutine in a fixed order: upload the attachment, create the
// room if needed, append the user message and an empty assistant
// placeholder in one step, then stream the reply into the placeholder.
//
// Observers read state through Messages, IsStreaming and Busy, or receive
// an Update after every change through Options.OnUpdate. Errors that occur
// after Send returns are delivered to Options.OnError; cancellation never
// reaches OnError.
package chat
