// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// STREAMING: send-and-stream for chat messages

// =============================================================================
// STREAMING TYPES
// =============================================================================

// Event names emitted by the send endpoint.
const (
	EventNameStarted   = "started"
	EventNameDelta     = "delta"
	EventNameCompleted = "completed"
)

// SendMessageRequest is the body of a chat send.
type SendMessageRequest struct {
	Message            string `json:"message" validate:"maxrunes=4000"`
	ModelID            int64  `json:"modelId" validate:"gt=0"`
	FileID             string `json:"fileId,omitempty"`
	PreviousResponseID string `json:"previousResponseId,omitempty"`
}

// Completion is the payload of the completed event.
type Completion struct {
	AIResponseID  string `json:"aiResponseId"`
	UserMessageID string `json:"userMessageId"`
	InputTokens   int    `json:"inputTokens"`
	OutputTokens  int    `json:"outputTokens"`
}

// Diagnostic reports a record that was received but could not be used.
// The stream continues after a diagnostic.
type Diagnostic struct {
	Event   string
	Payload string
	Err     error
}

// StreamHandlers receives stream notifications in framing order.
// Any handler may be nil.
type StreamHandlers struct {
	OnStart      func()
	OnDelta      func(text string)
	OnCompleted  func(Completion)
	OnDiagnostic func(Diagnostic)
	OnError      func(error)
}

// EventKind identifies a StreamEvent.
type EventKind int

const (
	EventStarted EventKind = iota + 1
	EventDelta
	EventDiagnostic
	// Terminal kinds. Exactly one ends a stream that was not cancelled.
	EventCompleted
	EventError
	EventEnd
)

// String returns a lower-case name for logs.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventDelta:
		return "delta"
	case EventDiagnostic:
		return "diagnostic"
	case EventCompleted:
		return "completed"
	case EventError:
		return "error"
	case EventEnd:
		return "end"
	}
	return "unknown"
}

// Terminal reports whether no events follow this one.
func (k EventKind) Terminal() bool {
	return k == EventCompleted || k == EventError || k == EventEnd
}

// StreamEvent is one item of the channel form of a send.
type StreamEvent struct {
	Kind       EventKind
	Text       string      // EventDelta
	Completion *Completion // EventCompleted
	Diagnostic *Diagnostic // EventDiagnostic
	Err        error       // EventError
}

// =============================================================================
// CALLBACK API
// =============================================================================

// SendMessage posts a message to roomID and streams the reply into h.
//
// Local validation failures are returned without a network call and
// without calling OnError. Cancelling ctx stops the stream promptly and
// returns nil; OnError is not called and no further handlers fire. Any
// other failure calls OnError exactly once and is returned. A stream that
// closes without a completed event returns nil.
func (c *Client) SendMessage(ctx context.Context, roomID string, req SendMessageRequest, h StreamHandlers) error {
	if err := validateSend(roomID, req); err != nil {
		return err
	}

	fail := func(err error) error {
		if h.OnError != nil {
			h.OnError(err)
		}
		return err
	}

	s, err := c.openStream(ctx, roomID, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fail(err)
	}
	defer s.close()

	_, err = c.consume(ctx, s, func(ev StreamEvent) {
		switch ev.Kind {
		case EventStarted:
			if h.OnStart != nil {
				h.OnStart()
			}
		case EventDelta:
			if h.OnDelta != nil {
				h.OnDelta(ev.Text)
			}
		case EventCompleted:
			if h.OnCompleted != nil {
				h.OnCompleted(*ev.Completion)
			}
		case EventDiagnostic:
			if h.OnDiagnostic != nil {
				h.OnDiagnostic(*ev.Diagnostic)
			}
		}
	})
	if err != nil {
		return fail(err)
	}
	return nil
}

// =============================================================================
// CHANNEL API
// =============================================================================

// StreamMessage is the channel form of SendMessage. Validation and the
// HTTP status check happen before it returns, so a *ServerError such as
// insufficient balance comes back as the error result.
//
// The returned channel yields zero or more Started, Delta and Diagnostic
// events followed by exactly one of Completed, Error or End, then closes.
// If ctx is cancelled the channel closes without a terminal event.
func (c *Client) StreamMessage(ctx context.Context, roomID string, req SendMessageRequest) (<-chan StreamEvent, error) {
	if err := validateSend(roomID, req); err != nil {
		return nil, err
	}

	s, err := c.openStream(ctx, roomID, req)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent, 16)
	go func() {
		defer close(events)
		defer s.close()

		emit := func(ev StreamEvent) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		completed, err := c.consume(ctx, s, emit)
		switch {
		case ctx.Err() != nil:
		case err != nil:
			emit(StreamEvent{Kind: EventError, Err: err})
		case !completed:
			emit(StreamEvent{Kind: EventEnd})
		}
	}()
	return events, nil
}

// =============================================================================
// STREAM INTERNALS
// =============================================================================

func validateSend(roomID string, req SendMessageRequest) error {
	if roomID == "" {
		return &ValidationError{Field: "roomId", Message: "is required"}
	}
	return Validate(req)
}

// openedStream is a 2xx response plus the watchdog guarding it.
type openedStream struct {
	body   io.ReadCloser
	ctx    context.Context
	cancel context.CancelCauseFunc
	timer  *time.Timer
	idle   time.Duration
	once   sync.Once
}

func (s *openedStream) close() {
	s.once.Do(func() {
		if s.timer != nil {
			s.timer.Stop()
		}
		if s.body != nil {
			s.body.Close()
		}
		s.cancel(context.Canceled)
	})
}

// Read forwards to the body and re-arms the idle watchdog on progress.
func (s *openedStream) Read(p []byte) (int, error) {
	n, err := s.body.Read(p)
	if n > 0 && s.timer != nil {
		s.timer.Reset(s.idle)
	}
	return n, err
}

// openStream issues the send request and checks the status. The idle
// watchdog covers the wait for headers as well as the body.
func (c *Client) openStream(ctx context.Context, roomID string, req SendMessageRequest) (*openedStream, error) {
	const op = "send message"

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", op, err)
	}

	sctx, cancel := context.WithCancelCause(ctx)
	s := &openedStream{ctx: sctx, cancel: cancel, idle: c.idleTimeout}
	if c.idleTimeout > 0 {
		s.timer = time.AfterFunc(c.idleTimeout, func() { cancel(ErrIdleTimeout) })
	}

	path := "/api/v1/messages/send/" + url.PathEscape(roomID)
	httpReq, err := http.NewRequestWithContext(sctx, http.MethodPost, c.endpoint(path, nil), bytes.NewReader(payload))
	if err != nil {
		s.close()
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	c.log.Debugw("opening stream", "room", roomID, "model", req.ModelID, "file", req.FileID != "")

	resp, err := c.do(sctx, c.streamClient, op, httpReq)
	if err != nil {
		s.close()
		if errors.Is(context.Cause(sctx), ErrIdleTimeout) && ctx.Err() == nil {
			return nil, &ProtocolError{Reason: "no response before idle timeout", Err: ErrIdleTimeout}
		}
		return nil, err
	}
	s.body = resp.Body
	return s, nil
}

// consume frames the body and passes events to emit until the stream
// ends, fails, completes, or ctx is cancelled. Parent cancellation yields
// (false, nil). Records after completed are never delivered.
func (c *Client) consume(ctx context.Context, s *openedStream, emit func(StreamEvent)) (bool, error) {
	reader := NewSSEReader(s)

	for {
		// Check for cancellation before each read
		if ctx.Err() != nil {
			streamOutcomesTotal.WithLabelValues("cancelled").Inc()
			return false, nil
		}

		ev, err := reader.ReadEvent()
		if err != nil {
			if ctx.Err() != nil {
				streamOutcomesTotal.WithLabelValues("cancelled").Inc()
				return false, nil
			}
			if errors.Is(err, io.EOF) {
				streamOutcomesTotal.WithLabelValues("closed").Inc()
				c.log.Debugw("stream closed without completion")
				return false, nil
			}
			if errors.Is(context.Cause(s.ctx), ErrIdleTimeout) {
				streamOutcomesTotal.WithLabelValues("idle_timeout").Inc()
				c.log.Warnw("stream idle timeout", "after", s.idle)
				return false, &ProtocolError{Reason: fmt.Sprintf("no data for %s", s.idle), Err: ErrIdleTimeout}
			}
			streamOutcomesTotal.WithLabelValues("error").Inc()
			if errors.Is(err, ErrEventTooLarge) {
				return false, &ProtocolError{Reason: "oversized event", Err: err}
			}
			return false, &ProtocolError{Reason: "read stream", Err: err}
		}

		// A record framed just as the caller cancelled must not be delivered.
		if ctx.Err() != nil {
			streamOutcomesTotal.WithLabelValues("cancelled").Inc()
			return false, nil
		}

		streamEventsTotal.WithLabelValues(knownEvent(ev.Name)).Inc()

		switch ev.Name {
		case EventNameStarted:
			emit(StreamEvent{Kind: EventStarted})

		case EventNameDelta:
			emit(StreamEvent{Kind: EventDelta, Text: ev.Data})

		case EventNameCompleted:
			var done Completion
			if err := json.Unmarshal([]byte(ev.Data), &done); err != nil {
				c.log.Warnw("malformed completed payload", "error", err, "bytes", len(ev.Data))
				emit(StreamEvent{Kind: EventDiagnostic, Diagnostic: &Diagnostic{
					Event:   ev.Name,
					Payload: ev.Data,
					Err:     err,
				}})
				continue
			}
			emit(StreamEvent{Kind: EventCompleted, Completion: &done})
			streamOutcomesTotal.WithLabelValues("completed").Inc()
			return true, nil
		}
	}
}
