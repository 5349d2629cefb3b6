// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides a local mock of the chat gateway for development
// and tests.
//
// Endpoints (all JSON bodies use the {success, detail, timestamp} envelope):
//   - POST   /api/v1/messages/send/:roomId   - streamed reply (SSE)
//   - GET    /api/v1/messages/page/:roomId   - room history
//   - GET    /api/v1/messages/:messageId     - message detail
//   - POST   /api/v1/messages/files/upload   - multipart image upload
//   - GET    /api/v1/chat-rooms              - room list
//   - POST   /api/v1/chat-rooms              - create room
//   - GET    /api/v1/chat-rooms/:roomId      - room detail
//   - DELETE /api/v1/chat-rooms/:roomId      - delete room
//   - GET    /api/v1/models[/:id]            - model registry
//   - GET    /api/v1/wallet/balance          - balance
//   - GET    /api/wallet                     - wallet summary
//   - GET    /api/v1/transactions/:id        - ledger entry
//   - GET    /metrics                        - Prometheus metrics
//
// Replies are canned and streamed one character per delta event, followed
// by a completed event. Each send is billed against an in-memory wallet.
//
// # Usage
//
//	srv := server.New(server.Options{Addr: "127.0.0.1:8080", Balance: decimal.NewFromInt(100)})
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
