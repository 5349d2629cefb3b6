// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the interactive terminal chat view.

The view is a Bubble Tea model layered over a chat.Controller. The
controller owns the message list and the single in-flight send; the view
renders snapshots of it and forwards user intent (send, cancel, attach,
switch room).

# Key Components

## Model (model.go)

Holds the controller, the input textarea, the scrolling viewport and the
status line. Controller callbacks arrive on a small bridge (streaming.go)
and are coalesced into redraws capped at roughly 30 frames per second.

## View (view.go, render.go)

Header with room title, model and balance; the transcript with user and
assistant messages; the pending attachment; the input box and status bar.
Completed assistant replies are rendered as Markdown with glamour.

## Commands (commands.go)

Slash commands typed into the input:
  - /help            - Show commands and keys
  - /attach <path>   - Queue an image for the next send
  - /detach          - Drop the queued image
  - /model <id>      - Switch model
  - /models          - List models
  - /balance         - Refresh the wallet balance
  - /room [id]       - Show or switch room
  - /new             - Start a new room
  - /history         - Reload the room history
  - /quit            - Exit

# Usage

	m, err := chat.New(chat.Options{Chat: ctrlOpts, Account: client})
	if err != nil {
		return err
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err = p.Run()
*/
package chat
