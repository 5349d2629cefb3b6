// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// markdownRenderer renders completed replies, caching by message id since
// finished messages never change.
type markdownRenderer struct {
	style    string
	maxWrap  int
	width    int
	renderer *glamour.TermRenderer
	cache    map[string]string
}

func newMarkdownRenderer(style string, maxWrap int) *markdownRenderer {
	if style == "" {
		style = "dark"
	}
	return &markdownRenderer{style: style, maxWrap: maxWrap, cache: make(map[string]string)}
}

// setWidth rebuilds the renderer for a new wrap width and drops the cache.
func (r *markdownRenderer) setWidth(width int) {
	if r.maxWrap > 0 && width > r.maxWrap {
		width = r.maxWrap
	}
	if width < 20 {
		width = 20
	}
	if width == r.width && r.renderer != nil {
		return
	}
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(r.style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		r.renderer = nil
		return
	}
	r.width = width
	r.renderer = tr
	r.cache = make(map[string]string)
}

// render returns the markdown rendering of content, or content unchanged
// if rendering is unavailable.
func (r *markdownRenderer) render(id, content string) string {
	if r == nil || r.renderer == nil {
		return content
	}
	if out, ok := r.cache[id]; ok {
		return out
	}
	out, err := r.renderer.Render(content)
	if err != nil {
		return content
	}
	out = strings.Trim(out, "\n")
	r.cache[id] = out
	return out
}
