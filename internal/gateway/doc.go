// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gateway is the HTTP client for the chat gateway backend.
//
// The central operation is SendMessage, which posts a chat message and
// consumes the Server-Sent Events reply. Records are framed by SSEReader
// and classified into started, delta and completed notifications. The
// remaining endpoints (rooms, history, models, wallet, uploads) are thin
// wrappers over the same JSON envelope.
//
// # Key Types
//
//   - Client: REST and SSE client with cookie jar, rate limit and idle watchdog
//   - SSEReader: Server-Sent Events framer
//   - StreamHandlers / StreamEvent: callback and channel forms of a stream
//   - ServerError: decoded error envelope with a closed ErrorCode
//   - ModelCache: TTL cache over the model registry
//
// # Usage
//
// Stream a reply:
//
//	client, _ := gateway.NewClient("https://api.example.com")
//	err := client.SendMessage(ctx, roomID, gateway.SendMessageRequest{
//	    Message: "hello",
//	    ModelID: 1,
//	}, gateway.StreamHandlers{
//	    OnDelta: func(s string) { fmt.Print(s) },
//	})
//
// Or as a channel:
//
//	events, err := client.StreamMessage(ctx, roomID, req)
//	for ev := range events {
//	    ...
//	}
//
// # Errors
//
// Failures are one of *ValidationError (local, no request made),
// *ServerError (JSON error envelope), *TransportError (network or non-JSON
// status) or *ProtocolError (unreadable stream, idle timeout). Cancelling
// the context is never reported as an error.
package gateway
