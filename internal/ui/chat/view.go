// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/chatgate/internal/model"
	"github.com/jeranaias/chatgate/internal/util"
)

// View renders the whole screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}

	parts := []string{
		m.renderHeader(),
		m.viewport.View(),
	}
	if att := m.renderAttachment(); att != "" {
		parts = append(parts, att)
	}
	parts = append(parts, m.renderInput(), m.renderStatus())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render(util.TruncateWidth(m.ctrl.Title(), max(10, m.width/3)))

	var meta []string
	if name := m.modelName(m.ctrl.ModelID()); name != "" {
		meta = append(meta, name)
	} else if id := m.ctrl.ModelID(); id > 0 {
		meta = append(meta, fmt.Sprintf("model %d", id))
	}
	if room := m.ctrl.RoomID(); room != "" {
		meta = append(meta, "room "+util.TruncateRunes(room, 8))
	}
	if m.balance != nil {
		style := m.theme.BalanceOK
		if m.balance.IsNegative() {
			style = m.theme.BalanceNeg
		}
		meta = append(meta, style.Render(m.balance.StringFixed(2)+" coins"))
	}

	line := title
	if len(meta) > 0 {
		line += m.theme.HeaderMeta.Render("  ·  " + strings.Join(meta, "  ·  "))
	}
	return m.theme.Header.Width(m.width).Render(line)
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// refreshTranscript rebuilds the viewport content, following the bottom
// if the user had not scrolled away from it.
func (m *Model) refreshTranscript() {
	follow := m.viewport.AtBottom() || m.ctrl.IsStreaming()
	m.viewport.SetContent(m.renderTranscript())
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m Model) renderTranscript() string {
	msgs := m.ctrl.Messages()
	width := m.contentWidth()

	var b strings.Builder
	if len(msgs) == 0 && len(m.notes) == 0 {
		b.WriteString(m.theme.Hint.Render("Type a message and press Enter. /help lists commands."))
		return b.String()
	}
	for i := range msgs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.renderMessage(msgs[i], width))
	}
	for _, note := range m.notes {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.theme.Hint.Render(note))
	}
	return b.String()
}

func (m Model) renderMessage(msg model.Message, width int) string {
	var label string
	if msg.Role == model.RoleUser {
		label = m.theme.UserLabel.Render(msg.Role.DisplayName())
	} else {
		label = m.theme.AssistantLabel.Render(msg.Role.DisplayName())
		if msg.Metadata != nil {
			if name := m.modelName(msg.Metadata.ModelID); name != "" {
				label += m.theme.Timestamp.Render(" · " + name)
			}
		}
	}
	if !msg.CreatedAt.IsZero() {
		label += m.theme.Timestamp.Render("  " + msg.CreatedAt.Local().Format("15:04"))
	}

	body := m.renderBody(msg)
	style := m.theme.AssistantBody
	if msg.Role == model.RoleUser {
		style = m.theme.UserBody
	}
	return label + "\n" + style.Width(width).Render(body)
}

func (m Model) renderBody(msg model.Message) string {
	var lines []string
	if msg.Attachment != nil {
		name := msg.Attachment.Name
		if name == "" {
			name = "image"
		}
		lines = append(lines, m.theme.Attachment.Render("📎 "+name))
	}

	switch msg.State {
	case model.StateOpen:
		if msg.Content == "" {
			lines = append(lines, m.spinner.View())
		} else {
			lines = append(lines, msg.Content+m.theme.Cursor.Render("▌"))
		}
	case model.StateError:
		lines = append(lines, m.theme.ErrorNotice.Render(msg.Content))
	case model.StateCancelled:
		if msg.Content != "" {
			lines = append(lines, msg.Content)
		}
		lines = append(lines, m.theme.Cancelled.Render(m.noticeFmt.Cancelled()))
	case model.StateIncomplete:
		if msg.Content != "" {
			lines = append(lines, msg.Content)
		}
		lines = append(lines, m.theme.Incomplete.Render("(reply ended early)"))
	default:
		content := msg.Content
		if msg.Role == model.RoleAssistant && m.renderer != nil {
			content = m.renderer.render(msg.ID, content)
		}
		if content != "" {
			lines = append(lines, content)
		}
		if msg.Role == model.RoleAssistant && msg.Metadata != nil && msg.Metadata.OutputTokens > 0 {
			lines = append(lines, m.theme.Timestamp.Render(fmt.Sprintf("%d tokens", msg.Metadata.OutputTokens)))
		}
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// INPUT AND STATUS
// =============================================================================

func (m Model) renderAttachment() string {
	att := m.ctrl.PendingAttachment()
	if att == nil {
		return ""
	}
	name := att.File.Name
	if name == "" {
		name = "image"
	}
	state := "queued"
	if m.ctrl.PendingUploaded() {
		state = "uploaded"
	}
	return m.theme.Attachment.Render(fmt.Sprintf(" 📎 %s (%s, %s)  /detach to remove",
		name, util.FormatBytes(len(att.File.Data)), state))
}

func (m Model) renderInput() string {
	style := m.theme.InputBorder
	if m.input.Focused() {
		style = m.theme.InputFocused
	}
	return style.Render(m.input.View())
}

func (m Model) renderStatus() string {
	var left string
	switch {
	case m.errText != "":
		left = m.theme.StatusError.Render(m.errText)
	case m.ctrl.IsStreaming():
		left = m.spinner.View() + " Receiving reply... Esc to stop"
	case m.ctrl.Busy():
		left = m.spinner.View() + " Sending..."
	case m.status != "":
		left = m.theme.StatusOK.Render(m.status)
	}

	if m.showHelp {
		return m.theme.StatusBar.Render(left + "\n" + m.help.FullHelpView(m.keys.FullHelp()))
	}
	right := m.help.ShortHelpView(m.keys.ShortHelp())
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		return m.theme.StatusBar.Render(left)
	}
	return m.theme.StatusBar.Render(left + strings.Repeat(" ", gap) + right)
}

// contentWidth is the usable width inside message bodies.
func (m Model) contentWidth() int {
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	return w
}
