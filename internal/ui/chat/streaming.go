// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	corechat "github.com/jeranaias/chatgate/internal/chat"
)

// frameInterval caps transcript redraws at about 30fps while deltas arrive.
const frameInterval = 33 * time.Millisecond

// =============================================================================
// CONTROLLER BRIDGE
// =============================================================================

// bridge carries controller callbacks into the Bubble Tea loop. Updates are
// coalesced into a single pending signal since the view always redraws from
// a fresh snapshot. Errors are queued and dropped if the view falls far
// behind; the failed reply already shows its notice.
type bridge struct {
	signal chan struct{}
	errs   chan error
}

func newBridge() *bridge {
	return &bridge{
		signal: make(chan struct{}, 1),
		errs:   make(chan error, 16),
	}
}

func (b *bridge) onUpdate(corechat.Update) {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *bridge) onError(err error) {
	select {
	case b.errs <- err:
	default:
	}
}

// listen waits for the next controller event.
func (b *bridge) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-b.signal:
			return refreshMsg{}
		case err := <-b.errs:
			return asyncErrMsg{err: err}
		}
	}
}

// =============================================================================
// FRAME THROTTLING
// =============================================================================

// frameTickCmd schedules the next throttled redraw.
func frameTickCmd() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg {
		return frameMsg(t)
	})
}

// requestFrame marks the transcript dirty and schedules a redraw if none
// is pending.
func (m *Model) requestFrame() tea.Cmd {
	m.dirty = true
	if m.frameScheduled {
		return nil
	}
	m.frameScheduled = true
	return frameTickCmd()
}

// handleFrame redraws if anything changed since the last frame.
func (m Model) handleFrame() (tea.Model, tea.Cmd) {
	m.frameScheduled = false
	if m.dirty {
		m.dirty = false
		m.refreshTranscript()
	}
	return m, nil
}
