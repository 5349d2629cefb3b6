// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/jeranaias/chatgate/internal/ui/styles"
	"github.com/jeranaias/chatgate/internal/util"
)

// =============================================================================
// JSON OUTPUT
// =============================================================================

// JSONResponse is the envelope printed by --json.
type JSONResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Error     *string     `json:"error"`
	Timestamp string      `json:"timestamp"`
	Command   string      `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data interface{}) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates a failed response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	msg := err.Error()
	return &JSONResponse{
		Error:     &msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

func writeJSON(w io.Writer, resp *JSONResponse) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}

// =============================================================================
// TERMINAL
// =============================================================================

const defaultTerminalWidth = 80

// isTerminal reports whether stream, either side of the command's stdio, is
// an interactive terminal.
func isTerminal(stream any) bool {
	f, ok := stream.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// terminalWidth returns the width of w, or 80 when it is not a terminal.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultTerminalWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultTerminalWidth
	}
	return width
}

// renderMarkdown renders content for a terminal. Plain content is returned
// when rendering fails.
func renderMarkdown(content string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	out, err := r.Render(content)
	if err != nil {
		return content
	}
	return out
}

// =============================================================================
// STYLES
// =============================================================================

var (
	headingStyle = lipgloss.NewStyle().Foreground(styles.Purple).Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(styles.TextSecondary)
	mutedStyle   = lipgloss.NewStyle().Foreground(styles.TextMuted)
	okStyle      = lipgloss.NewStyle().Foreground(styles.Emerald)
	warnStyle    = lipgloss.NewStyle().Foreground(styles.Amber)
	errorStyle   = lipgloss.NewStyle().Foreground(styles.Rose).Bold(true)
	promptStyle  = lipgloss.NewStyle().Foreground(styles.Cyan).Bold(true)
)

// =============================================================================
// TABLES
// =============================================================================

// table collects rows and pads columns by display width, so Korean titles
// line up.
type table struct {
	header []string
	rows   [][]string
}

func newTable(header ...string) *table {
	return &table{header: header}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(w io.Writer) {
	widths := make([]int, len(t.header))
	measure := func(row []string) {
		for i, cell := range row {
			if i < len(widths) {
				if cw := util.StringWidth(cell); cw > widths[i] {
					widths[i] = cw
				}
			}
		}
	}
	measure(t.header)
	for _, row := range t.rows {
		measure(row)
	}

	line := func(row []string) string {
		cells := make([]string, len(row))
		for i, cell := range row {
			if i == len(row)-1 {
				cells[i] = cell
				continue
			}
			cells[i] = util.PadRight(cell, widths[i])
		}
		return strings.TrimRight(strings.Join(cells, "  "), " ")
	}

	fmt.Fprintln(w, labelStyle.Render(line(t.header)))
	for _, row := range t.rows {
		fmt.Fprintln(w, line(row))
	}
}

// field prints one "label: value" line.
func field(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render(util.PadRight(label+":", 18)), value)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
