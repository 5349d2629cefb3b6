// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	corechat "github.com/jeranaias/chatgate/internal/chat"
	"github.com/jeranaias/chatgate/internal/model"
)

// streamPrinter writes the growing assistant reply to w as controller
// updates arrive. Only the unseen suffix is written each time.
type streamPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	quiet   bool
	replyID string
	written int

	errs []error
}

func newStreamPrinter(w io.Writer, quiet bool) *streamPrinter {
	return &streamPrinter{w: w, quiet: quiet}
}

func (p *streamPrinter) onUpdate(u corechat.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range u.Changed {
		msg := &u.Changed[i]
		if msg.Role != model.RoleAssistant {
			continue
		}
		if msg.ID != p.replyID {
			p.replyID = msg.ID
			p.written = 0
		}
		// A failed reply carries a notice instead of streamed text.
		if p.quiet || msg.State == model.StateError {
			continue
		}
		text := msg.Text()
		if len(text) > p.written {
			fmt.Fprint(p.w, text[p.written:])
			p.written = len(text)
		}
	}
}

func (p *streamPrinter) onError(err error) {
	p.mu.Lock()
	p.errs = append(p.errs, err)
	p.mu.Unlock()
}

// err returns the first asynchronous failure, if any.
func (p *streamPrinter) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.errs) == 0 {
		return nil
	}
	return p.errs[0]
}

// reset forgets failures from the previous send.
func (p *streamPrinter) reset() {
	p.mu.Lock()
	p.errs = nil
	p.mu.Unlock()
}

// lastReply returns the newest assistant message of the controller.
func lastReply(ctrl *corechat.Controller) (model.Message, bool) {
	msgs := ctrl.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == model.RoleAssistant {
			return msgs[i], true
		}
	}
	return model.Message{}, false
}

// sendAndWait submits text and blocks until the reply reaches a terminal
// state. Cancelling ctx stops the stream and keeps the partial reply.
func sendAndWait(ctx context.Context, ctrl *corechat.Controller, text string, att *corechat.Attachment) error {
	if err := ctrl.Send(text, att); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		ctrl.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		ctrl.Cancel()
		<-done
	}
	return nil
}
