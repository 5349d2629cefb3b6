// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	corechat "github.com/jeranaias/chatgate/internal/chat"
)

// Update handles all Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)

	case refreshMsg:
		cmds := []tea.Cmd{m.bridge.listen(), m.requestFrame()}
		if m.ctrl.Busy() {
			cmds = append(cmds, m.spinner.Tick)
		} else {
			// A finished send changed the balance.
			cmds = append(cmds, m.fetchBalance())
		}
		return m, tea.Batch(cmds...)

	case asyncErrMsg:
		m.errText = m.noticeFmt.Format(msg.err)
		m.log.Debugw("send failed", "error", msg.err)
		return m, tea.Batch(m.bridge.listen(), m.requestFrame())

	case frameMsg:
		return m.handleFrame()

	case spinner.TickMsg:
		if !m.ctrl.Busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, tea.Batch(cmd, m.requestFrame())

	case balanceMsg:
		if msg.err != nil {
			m.log.Debugw("balance refresh failed", "error", msg.err)
			return m, nil
		}
		b := msg.balance
		m.balance = &b
		m.ctrl.SetBalance(b)
		return m, nil

	case modelsMsg:
		if msg.err != nil {
			m.errText = m.noticeFmt.Format(msg.err)
			return m, nil
		}
		for _, mdl := range msg.models {
			m.models[mdl.ModelID] = mdl
		}
		if m.ctrl.ModelID() <= 0 {
			for _, mdl := range msg.models {
				if mdl.IsActive {
					m.ctrl.SetModel(mdl.ModelID)
					break
				}
			}
		}
		if msg.show {
			m.notes = append(m.notes, formatModelList(msg.models, m.ctrl.ModelID()))
		}
		m.refreshTranscript()
		return m, nil

	case historyMsg:
		if msg.err != nil {
			m.errText = m.noticeFmt.Format(msg.err)
		} else {
			m.status = "History loaded"
		}
		m.refreshTranscript()
		return m, nil

	case uploadMsg:
		if msg.err == nil {
			m.status = "Attachment uploaded"
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleResize lays out the header, viewport, input and status bar.
func (m Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width, m.height = msg.Width, msg.Height
	m.theme.SetSize(msg.Width, msg.Height)

	m.input.SetWidth(msg.Width - 2)
	m.help.Width = msg.Width

	headerHeight := lipgloss.Height(m.renderHeader())
	inputHeight := m.input.Height() + 2
	statusHeight := 1
	attachHeight := 0
	if m.ctrl.PendingAttachment() != nil {
		attachHeight = 1
	}
	vpHeight := msg.Height - headerHeight - inputHeight - statusHeight - attachHeight
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = msg.Width
	m.viewport.Height = vpHeight

	if m.renderer != nil {
		m.renderer.setWidth(m.contentWidth() - 2)
	}
	m.ready = true
	m.refreshTranscript()
	return m, nil
}

// handleKey routes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.ctrl.Busy() {
			m.ctrl.Cancel()
			m.status = "Stopped"
			return m, nil
		}
		return m.quit()

	case key.Matches(msg, m.keys.Cancel):
		if m.ctrl.Busy() {
			m.ctrl.Cancel()
			m.status = "Stopped"
			return m, nil
		}
		m.errText = ""
		m.showHelp = false
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil

	case key.Matches(msg, m.keys.Top):
		m.viewport.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the input or runs a slash command.
func (m Model) submit() (tea.Model, tea.Cmd) {
	content := m.input.Value()
	if strings.HasPrefix(strings.TrimSpace(content), "/") {
		m.input.Reset()
		return m.handleCommand(strings.TrimSpace(content))
	}

	m.errText = ""
	m.status = ""
	if err := m.ctrl.Send(content, nil); err != nil {
		if errors.Is(err, corechat.ErrEmptyMessage) {
			return m, nil
		}
		m.errText = m.noticeFmt.Format(err)
		return m, nil
	}
	m.input.Reset()
	m.notes = nil
	m.viewport.GotoBottom()
	return m, m.spinner.Tick
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	m.ctrl.Close()
	return m, tea.Quit
}
