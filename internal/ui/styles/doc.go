// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package styles provides the visual styling system for the chatgate TUI.
//
// Colors are lipgloss.AdaptiveColor values so they follow the terminal's
// light or dark background. A Theme bundles the styles used by the chat
// view and can be forced light or dark from configuration.
//
//	theme := styles.NewThemeFor("auto")
//	theme.SetSize(width, height)
//	fmt.Println(theme.UserLabel.Render("You"))
package styles
