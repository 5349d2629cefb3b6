// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the chat view.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// Header
	Header      lipgloss.Style
	HeaderTitle lipgloss.Style
	HeaderMeta  lipgloss.Style

	// Messages
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	UserBody       lipgloss.Style
	AssistantBody  lipgloss.Style
	Attachment     lipgloss.Style
	Timestamp      lipgloss.Style

	// Reply states
	ErrorNotice lipgloss.Style
	Cancelled   lipgloss.Style
	Incomplete  lipgloss.Style
	Cursor      lipgloss.Style

	// Input and status
	InputBorder  lipgloss.Style
	InputFocused lipgloss.Style
	StatusBar    lipgloss.Style
	StatusError  lipgloss.Style
	StatusOK     lipgloss.Style
	Spinner      lipgloss.Style
	Hint         lipgloss.Style
	BalanceOK    lipgloss.Style
	BalanceNeg   lipgloss.Style
	GlamourStyle string
}

// NewTheme creates a theme for the detected terminal background.
func NewTheme() *Theme {
	return NewThemeFor("auto")
}

// NewThemeFor creates a theme for mode: "dark", "light" or "auto".
func NewThemeFor(mode string) *Theme {
	t := &Theme{ColorProfile: termenv.ColorProfile()}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "dark":
		t.IsDark = true
		lipgloss.SetHasDarkBackground(true)
	case "light":
		t.IsDark = false
		lipgloss.SetHasDarkBackground(false)
	default:
		t.IsDark = termenv.HasDarkBackground()
	}
	if t.IsDark {
		t.GlamourStyle = "dark"
	} else {
		t.GlamourStyle = "light"
	}
	t.initStyles()
	return t
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.HeaderMeta = lipgloss.NewStyle().Foreground(TextSecondary)

	t.UserLabel = lipgloss.NewStyle().Bold(true).Foreground(Cyan)
	t.AssistantLabel = lipgloss.NewStyle().Bold(true).Foreground(Purple)
	t.UserBody = lipgloss.NewStyle().
		Foreground(TextPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(UserBubbleBorder).
		PaddingLeft(1)
	t.AssistantBody = lipgloss.NewStyle().
		Foreground(TextPrimary).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(AssistantBubbleBorder).
		PaddingLeft(1)
	t.Attachment = lipgloss.NewStyle().Foreground(TextSecondary).Italic(true)
	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)

	t.ErrorNotice = lipgloss.NewStyle().Foreground(Rose)
	t.Cancelled = lipgloss.NewStyle().Foreground(Amber).Italic(true)
	t.Incomplete = lipgloss.NewStyle().Foreground(Amber).Italic(true)
	t.Cursor = lipgloss.NewStyle().Foreground(Purple).Blink(true)

	t.InputBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay)
	t.InputFocused = t.InputBorder.BorderForeground(Purple)
	t.StatusBar = lipgloss.NewStyle().Foreground(TextSecondary).Padding(0, 1)
	t.StatusError = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.StatusOK = lipgloss.NewStyle().Foreground(Emerald)
	t.Spinner = lipgloss.NewStyle().Foreground(Purple)
	t.Hint = lipgloss.NewStyle().Foreground(TextMuted)
	t.BalanceOK = lipgloss.NewStyle().Foreground(Emerald)
	t.BalanceNeg = lipgloss.NewStyle().Foreground(Rose).Bold(true)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// GetLayoutMode returns the current layout mode based on width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)
