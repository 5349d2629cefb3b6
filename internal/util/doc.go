// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared across chatgate.
//
// String Utilities:
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth, StringWidth, PadRight: terminal-cell aware layout
//     for tables that mix Hangul and ASCII
//   - SingleLine: whitespace folding for titles and previews
//
// File Operations:
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	display := util.TruncateRunes(longText, 50)
//	row := util.PadRight(room.Title, 30)
//	err := util.AtomicWriteFile(path, data, 0644)
package util
