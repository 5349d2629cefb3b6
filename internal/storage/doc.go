// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage keeps a local transcript of finished exchanges.
//
// Transcripts live in a SQLite database (pure Go driver) so the terminal
// client can list, search and export past rooms without the gateway.
//
// # Key Types
//
//   - TranscriptStore: the database handle; implements chat.Recorder
//   - StoredConversation: one room's recorded messages
//   - ConversationMeta: lightweight metadata for listing
//
// # Usage
//
//	store, err := storage.Open(cfg.TranscriptPath())
//	defer store.Close()
//	metas, err := store.List(ctx)
//	conv, err := store.Load(ctx, metas[0].RoomID)
//	md := conv.ExportMarkdown()
//
// # Storage Location
//
// The database defaults to ~/.chatgate/transcripts.db.
package storage
