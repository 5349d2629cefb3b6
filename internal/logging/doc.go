// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging wraps a process-wide zap SugaredLogger.
//
// Until Init is called every helper writes to a no-op logger, so library
// packages can log freely in tests.
//
// # Usage
//
//	logging.Init("debug", "console", "~/.chatgate/logs")
//	defer logging.Sync()
//	logging.Infow("stream opened", "room", roomID)
package logging
