// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the chatgate command tree.
//
// Running chatgate with no subcommand opens the full-screen chat view.
// Every other command talks to the same gateway configured in
// ~/.chatgate/config.toml, overridable per invocation with --base-url,
// --model, --room and --lang.
//
// Commands:
//
//	chatgate [chat]                     Full-screen chat
//	chatgate ask <prompt> [--image f]   One-shot send, reply streamed to stdout
//	chatgate repl                       Line-mode chat with input history
//	chatgate models [id]                Model registry and prices
//	chatgate balance | wallet           Wallet summary
//	chatgate transaction <id>           One ledger entry
//	chatgate payments [id]              Coin purchase history
//	chatgate whoami | stats | usage     Account and spending summary
//	chatgate pricing                    Public price sheet
//	chatgate rooms list|show|create|delete
//	chatgate history <roomId>           Stored messages of a room
//	chatgate transcripts list|search|show|export|delete|clear
//	chatgate config show|init|path
//	chatgate mock-server                Local development gateway
//	chatgate version
//
// Most read commands accept --json, which prints a JSONResponse envelope
// instead of a table. Failures map to the exit codes in errors.go.
package cli
