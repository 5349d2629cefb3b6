// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jeranaias/chatgate/internal/gateway"
)

// refreshMsg means the controller state changed and the transcript should
// be rebuilt.
type refreshMsg struct{}

// asyncErrMsg carries an error reported by the controller's background send.
type asyncErrMsg struct {
	err error
}

// frameMsg fires when a throttled redraw is due.
type frameMsg time.Time

// historyMsg reports the outcome of a history load.
type historyMsg struct {
	err error
}

// balanceMsg reports a wallet balance refresh.
type balanceMsg struct {
	balance decimal.Decimal
	err     error
}

// modelsMsg reports a model list refresh.
type modelsMsg struct {
	models []gateway.AIModel
	show   bool
	err    error
}

// uploadMsg reports a pre-upload of the pending attachment.
type uploadMsg struct {
	err error
}
