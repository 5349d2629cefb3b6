// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"sync"
)

// =============================================================================
// CANCEL FUNCTION MANAGEMENT (THREAD-SAFE)
// =============================================================================

// cancelManager holds the abort handle of one streaming session.
// cancel is reached from both the caller of Controller.Cancel and the
// session goroutine, so access is serialized.
type cancelManager struct {
	mu         sync.Mutex
	cancelFunc context.CancelFunc
	fired      bool
}

func newCancelManager(fn context.CancelFunc) *cancelManager {
	return &cancelManager{cancelFunc: fn}
}

// cancel invokes the stored cancel function once. It reports whether this
// call was the one that fired it.
func (cm *cancelManager) cancel() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.fired {
		return false
	}
	cm.fired = true
	if cm.cancelFunc != nil {
		cm.cancelFunc()
	}
	return true
}

// release cancels the context to free its resources without marking the
// session as user-cancelled.
func (cm *cancelManager) release() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cancelFunc != nil {
		cm.cancelFunc()
		cm.cancelFunc = nil
	}
}
