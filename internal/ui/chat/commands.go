// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	corechat "github.com/jeranaias/chatgate/internal/chat"
	"github.com/jeranaias/chatgate/internal/gateway"
)

// =============================================================================
// COMMAND HANDLER REGISTRY
// =============================================================================

// CommandHandler handles one slash command.
type CommandHandler func(m *Model, args []string) (tea.Model, tea.Cmd)

// commandHandlers maps command names to their handler functions.
var commandHandlers = map[string]CommandHandler{
	"help":    handleHelpCommand,
	"h":       handleHelpCommand,
	"?":       handleHelpCommand,
	"quit":    handleQuitCommand,
	"q":       handleQuitCommand,
	"exit":    handleQuitCommand,
	"attach":  handleAttachCommand,
	"a":       handleAttachCommand,
	"detach":  handleDetachCommand,
	"model":   handleModelCommand,
	"m":       handleModelCommand,
	"models":  handleModelsCommand,
	"balance": handleBalanceCommand,
	"room":    handleRoomCommand,
	"new":     handleNewCommand,
	"n":       handleNewCommand,
	"history": handleHistoryCommand,
	"clear":   handleClearCommand,
}

// handleCommand parses and dispatches a slash command.
func (m Model) handleCommand(content string) (tea.Model, tea.Cmd) {
	parts := strings.Fields(content)
	if len(parts) == 0 {
		return m, nil
	}
	name := strings.ToLower(strings.TrimPrefix(parts[0], "/"))
	handler, ok := commandHandlers[name]
	if !ok {
		m.errText = fmt.Sprintf("Unknown command /%s. Type /help.", name)
		return m, nil
	}
	m.errText = ""
	m.status = ""
	return handler(&m, parts[1:])
}

const helpText = `Commands:
  /attach <path>  queue an image for the next message
  /detach         drop the queued image
  /model <id>     switch model
  /models         list models
  /balance        refresh the wallet balance
  /room [id]      show or switch room
  /new            start a new room
  /history        reload this room's messages
  /clear          clear command output
  /quit           exit`

func handleHelpCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	m.notes = append(m.notes, helpText)
	m.refreshTranscript()
	return *m, nil
}

func handleQuitCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	return m.quit()
}

func handleAttachCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		m.errText = "Usage: /attach <path>"
		return *m, nil
	}
	path := strings.Join(args, " ")
	att, err := corechat.AttachmentFromPath(path)
	if err != nil {
		m.errText = err.Error()
		return *m, nil
	}
	if !gateway.IsImageType(att.File.ContentType) {
		m.errText = "Only images can be attached: " + att.File.ContentType
		return *m, nil
	}
	m.ctrl.Attach(att)
	m.status = "Attached " + att.File.Name
	return *m, tea.Batch(m.uploadPending(), m.relayout())
}

func handleDetachCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	m.ctrl.ClearAttachment()
	m.status = "Attachment removed"
	return *m, m.relayout()
}

func handleModelCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		name := m.modelName(m.ctrl.ModelID())
		m.status = fmt.Sprintf("Model %d %s", m.ctrl.ModelID(), name)
		return *m, nil
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		m.errText = "Usage: /model <id>"
		return *m, nil
	}
	if mdl, ok := m.models[id]; ok && !mdl.IsActive {
		m.errText = m.noticeFmt.Format(gateway.ErrModelNotActive)
		return *m, nil
	}
	m.ctrl.SetModel(id)
	m.status = fmt.Sprintf("Using model %d %s", id, m.modelName(id))
	return *m, nil
}

func handleModelsCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	if m.account == nil {
		m.errText = "Model list unavailable"
		return *m, nil
	}
	return *m, m.fetchModels(true)
}

func handleBalanceCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	if m.account == nil {
		m.errText = "Balance unavailable"
		return *m, nil
	}
	m.status = "Refreshing balance..."
	return *m, m.fetchBalance()
}

func handleRoomCommand(m *Model, args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		if id := m.ctrl.RoomID(); id != "" {
			m.status = "Room " + id
		} else {
			m.status = "No room yet; one is created on the first message"
		}
		return *m, nil
	}
	if err := m.ctrl.SwitchRoom(args[0]); err != nil {
		m.errText = m.noticeFmt.Format(err)
		return *m, nil
	}
	m.notes = nil
	return *m, m.fetchHistory()
}

func handleNewCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	if err := m.ctrl.SwitchRoom(""); err != nil {
		m.errText = m.noticeFmt.Format(err)
		return *m, nil
	}
	m.notes = nil
	m.status = "New conversation"
	m.refreshTranscript()
	return *m, nil
}

func handleHistoryCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	if m.ctrl.RoomID() == "" {
		m.errText = "No room to load"
		return *m, nil
	}
	return *m, m.fetchHistory()
}

func handleClearCommand(m *Model, _ []string) (tea.Model, tea.Cmd) {
	m.notes = nil
	m.refreshTranscript()
	return *m, nil
}

// relayout re-runs the resize logic, since the attachment line changes
// the viewport height.
func (m *Model) relayout() tea.Cmd {
	if !m.ready {
		return nil
	}
	w, h := m.width, m.height
	return func() tea.Msg { return tea.WindowSizeMsg{Width: w, Height: h} }
}

// formatModelList renders models as a table, marking the current one.
func formatModelList(models []gateway.AIModel, current int64) string {
	sorted := append([]gateway.AIModel(nil), models...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ModelID < sorted[j].ModelID })

	var b strings.Builder
	b.WriteString("Models:")
	for _, mdl := range sorted {
		marker := " "
		if mdl.ModelID == current {
			marker = "*"
		}
		status := ""
		if !mdl.IsActive {
			status = " (inactive)"
		}
		fmt.Fprintf(&b, "\n %s %3d  %-20s %s/1k avg%s", marker, mdl.ModelID, mdl.DisplayName,
			mdl.AveragePricePer1k.StringFixed(3), status)
	}
	return b.String()
}
