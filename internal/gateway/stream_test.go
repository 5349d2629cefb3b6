// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func writeSSE(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\n", event)
	for _, line := range strings.Split(data, "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
	w.(http.Flusher).Flush()
}

func startSSE(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	w.(http.Flusher).Flush()
}

const completedJSON = `{"aiResponseId":"ai-1","userMessageId":"um-1","inputTokens":12,"outputTokens":34}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	return c, &hits
}

type recorder struct {
	started    int
	deltas     []string
	completed  []Completion
	diagnostic []Diagnostic
	errs       []error
}

func (r *recorder) handlers() StreamHandlers {
	return StreamHandlers{
		OnStart:      func() { r.started++ },
		OnDelta:      func(s string) { r.deltas = append(r.deltas, s) },
		OnCompleted:  func(c Completion) { r.completed = append(r.completed, c) },
		OnDiagnostic: func(d Diagnostic) { r.diagnostic = append(r.diagnostic, d) },
		OnError:      func(err error) { r.errs = append(r.errs, err) },
	}
}

// =============================================================================
// SEND MESSAGE TESTS
// =============================================================================

func TestSendMessage_RequestShape(t *testing.T) {
	var gotBody map[string]interface{}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/messages/send/room-7", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		if cookie, err := r.Cookie("SESSION"); assert.NoError(t, err) {
			assert.Equal(t, "secret", cookie.Value)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		startSSE(w)
		writeSSE(w, "completed", completedJSON)
	})
	c.WithCookies(map[string]string{"SESSION": "secret"})

	err := c.SendMessage(context.Background(), "room-7", SendMessageRequest{
		Message:            "hi",
		ModelID:            1,
		FileID:             "file-1",
		PreviousResponseID: "ai-0",
	}, StreamHandlers{})
	require.NoError(t, err)

	assert.Equal(t, "hi", gotBody["message"])
	assert.Equal(t, float64(1), gotBody["modelId"])
	assert.Equal(t, "file-1", gotBody["fileId"])
	assert.Equal(t, "ai-0", gotBody["previousResponseId"])
}

func TestSendMessage_OmitsOptionalFields(t *testing.T) {
	var raw string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		raw = string(data)
		startSSE(w)
	})

	require.NoError(t, c.SendMessage(context.Background(), "r", SendMessageRequest{Message: "x", ModelID: 2}, StreamHandlers{}))
	assert.NotContains(t, raw, "fileId")
	assert.NotContains(t, raw, "previousResponseId")
}

func TestSendMessage_DeltasInOrderIncludingEmpty(t *testing.T) {
	deltas := []string{"Hel", "", "lo\nworld", "  indented", "!"}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		startSSE(w)
		writeSSE(w, "started", "Message sending started")
		for _, d := range deltas {
			writeSSE(w, "delta", d)
		}
		writeSSE(w, "completed", completedJSON)
	})

	var rec recorder
	err := c.SendMessage(context.Background(), "room", SendMessageRequest{Message: "hi", ModelID: 1}, rec.handlers())
	require.NoError(t, err)

	assert.Equal(t, 1, rec.started)
	assert.Equal(t, deltas, rec.deltas)
	require.Len(t, rec.completed, 1)
	assert.Equal(t, Completion{AIResponseID: "ai-1", UserMessageID: "um-1", InputTokens: 12, OutputTokens: 34}, rec.completed[0])
	assert.Empty(t, rec.errs)
}

func TestSendMessage_UnknownEventsIgnored(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		startSSE(w)
		writeSSE(w, "heartbeat", "tick")
		writeSSE(w, "delta", "a")
		fmt.Fprint(w, "data: no event name\n\n")
		writeSSE(w, "delta", "b")
	})

	var rec recorder
	require.NoError(t, c.SendMessage(context.Background(), "room", SendMessageRequest{Message: "hi", ModelID: 1}, rec.handlers()))
	assert.Equal(t, []string{"a", "b"}, rec.deltas)
	assert.Empty(t, rec.completed, "no synthetic completion on close")
}

func TestSendMessage_NoDeltaAfterCompleted(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		startSSE(w)
		writeSSE(w, "delta", "a")
		writeSSE(w, "completed", completedJSON)
		writeSSE(w, "delta", "late")
	})

	var rec recorder
	require.NoError(t, c.SendMessage(context.Background(), "room", SendMessageRequest{Message: "hi", ModelID: 1}, rec.handlers()))
	assert.Equal(t, []string{"a"}, rec.deltas)
	assert.Len(t, rec.completed, 1)
}

func TestSendMessage_MalformedCompletedIsDiagnostic(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		startSSE(w)
		writeSSE(w, "delta", "text")
		writeSSE(w, "completed", "{not json")
	})

	var rec recorder
	err := c.SendMessage(context.Background(), "room", SendMessageRequest{Message: "hi", ModelID: 1}, rec.handlers())
	require.NoError(t, err)

	assert.Empty(t, rec.completed)
	assert.Empty(t, rec.errs)
	require.Len(t, rec.diagnostic, 1)
	assert.Equal(t, "completed", rec.diagnostic[0].Event)
	assert.Equal(t, "{not json", rec.diagnostic[0].Payload)
}

func TestSendMessage_ServerErrorEnvelope(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"success":false,"detail":{"code":"INSUFFICIENT_BALANCE","message":"balance too low","details":null},"timestamp":"2025-01-01T00:00:00Z"}`)
	})

	var rec recorder
	err := c.SendMessage(context.Background(), "room", SendMessageRequest{Message: "hi", ModelID: 1}, rec.handlers())

	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeInsufficientBalance, se.Code)
	assert.Equal(t, http.StatusBadRequest, se.Status)
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
	require.Len(t, rec.errs, 1, "OnError exactly once")
	assert.Same(t, se, rec.errs[0].(*ServerError))
	assert.Empty(t, rec.deltas)
}

func TestSendMessage_UnknownErrorCode(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"success":false,"detail":{"code":"ROOM_LOCKED","message":"busy","details":"try later"}}`)
	})

	err := c.SendMessage(context.Background(), "room", SendMessageRequest{Message: "hi", ModelID: 1}, StreamHandlers{})
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CodeUnknown, se.Code)
	assert.Equal(t, "ROOM_LOCKED", se.RawCode)
	assert.Equal(t, "try later", se.Details)
}

func TestSendMessage_NonJSONErrorIsTransport(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "<html>bad gateway</html>")
	})

	var rec recorder
	err := c.SendMessage(context.Background(), "room", SendMessageRequest{Message: "hi", ModelID: 1}, rec.handlers())
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadGateway, te.Status)
	assert.Len(t, rec.errs, 1)
}

func TestSendMessage_ValidationBeforeNetwork(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		startSSE(w)
	})

	tests := []struct {
		name  string
		room  string
		req   SendMessageRequest
		field string
	}{
		{"too long", "r", SendMessageRequest{Message: strings.Repeat("가", 4001), ModelID: 1}, "message"},
		{"blank without file", "r", SendMessageRequest{Message: "   ", ModelID: 1}, "message"},
		{"no model", "r", SendMessageRequest{Message: "hi"}, "modelId"},
		{"no room", "", SendMessageRequest{Message: "hi", ModelID: 1}, "roomId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec recorder
			err := c.SendMessage(context.Background(), tt.room, tt.req, rec.handlers())
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Empty(t, rec.errs, "local rejection does not reach OnError")
		})
	}
	assert.Equal(t, int32(0), atomic.LoadInt32(hits), "no request may be issued")

	// Boundaries that must pass.
	require.NoError(t, c.SendMessage(context.Background(), "r", SendMessageRequest{Message: strings.Repeat("가", 4000), ModelID: 1}, StreamHandlers{}))
	require.NoError(t, c.SendMessage(context.Background(), "r", SendMessageRequest{Message: "", ModelID: 1, FileID: "f"}, StreamHandlers{}))
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestSendMessage_CancelStopsWithoutError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		startSSE(w)
		writeSSE(w, "delta", "one")
		writeSSE(w, "delta", "two")
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	var deltas []string
	var errs int
	err := c.SendMessage(ctx, "room", SendMessageRequest{Message: "hi", ModelID: 1}, StreamHandlers{
		OnDelta: func(s string) {
			deltas = append(deltas, s)
			if len(deltas) == 2 {
				cancel()
			}
		},
		OnError: func(error) { errs++ },
	})

	assert.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, deltas)
	assert.Zero(t, errs)
}

func TestSendMessage_CancelBeforeResponse(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	var rec recorder
	err := c.SendMessage(ctx, "room", SendMessageRequest{Message: "hi", ModelID: 1}, rec.handlers())
	assert.NoError(t, err)
	assert.Empty(t, rec.errs)
}

func TestSendMessage_IdleTimeout(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		startSSE(w)
		writeSSE(w, "delta", "partial")
		<-r.Context().Done()
	})
	c.WithIdleTimeout(100 * time.Millisecond)

	var rec recorder
	start := time.Now()
	err := c.SendMessage(context.Background(), "room", SendMessageRequest{Message: "hi", ModelID: 1}, rec.handlers())

	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, ErrIdleTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, []string{"partial"}, rec.deltas)
	assert.Len(t, rec.errs, 1)
}

func TestSendMessage_SlowButSteadyStreamSurvivesIdleTimeout(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		startSSE(w)
		for i := 0; i < 5; i++ {
			time.Sleep(60 * time.Millisecond)
			writeSSE(w, "delta", "x")
		}
		writeSSE(w, "completed", completedJSON)
	})
	c.WithIdleTimeout(150 * time.Millisecond)

	var rec recorder
	require.NoError(t, c.SendMessage(context.Background(), "room", SendMessageRequest{Message: "hi", ModelID: 1}, rec.handlers()))
	assert.Len(t, rec.deltas, 5)
	assert.Len(t, rec.completed, 1)
}

// =============================================================================
// STREAM MESSAGE (CHANNEL) TESTS
// =============================================================================

func collect(t *testing.T, events <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func TestStreamMessage_CompletedIsTerminal(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		startSSE(w)
		writeSSE(w, "started", "Message sending started")
		writeSSE(w, "delta", "a")
		writeSSE(w, "delta", "b")
		writeSSE(w, "completed", completedJSON)
	})

	events, err := c.StreamMessage(context.Background(), "room", SendMessageRequest{Message: "hi", ModelID: 1})
	require.NoError(t, err)

	got := collect(t, events)
	kinds := make([]EventKind, len(got))
	for i, ev := range got {
		kinds[i] = ev.Kind
	}
	assert.Equal(t, []EventKind{EventStarted, EventDelta, EventDelta, EventCompleted}, kinds)
	assert.Equal(t, "ai-1", got[3].Completion.AIResponseID)
}

func TestStreamMessage_EndWithoutCompleted(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		startSSE(w)
		writeSSE(w, "delta", "a")
	})

	events, err := c.StreamMessage(context.Background(), "room", SendMessageRequest{Message: "hi", ModelID: 1})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 2)
	assert.Equal(t, EventEnd, got[1].Kind)
	assert.True(t, got[1].Kind.Terminal())
}

func TestStreamMessage_ServerErrorReturnedBeforeChannel(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"success":false,"detail":{"code":"ROOM_NOT_FOUND","message":"no room"}}`)
	})

	events, err := c.StreamMessage(context.Background(), "room", SendMessageRequest{Message: "hi", ModelID: 1})
	assert.Nil(t, events)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStreamMessage_IdleTimeoutIsErrorEvent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		startSSE(w)
		<-r.Context().Done()
	})
	c.WithIdleTimeout(80 * time.Millisecond)

	events, err := c.StreamMessage(context.Background(), "room", SendMessageRequest{Message: "hi", ModelID: 1})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 1)
	assert.Equal(t, EventError, got[0].Kind)
	assert.ErrorIs(t, got[0].Err, ErrIdleTimeout)
}

func TestStreamMessage_CancelClosesWithoutTerminal(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		startSSE(w)
		writeSSE(w, "delta", "a")
		<-r.Context().Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	events, err := c.StreamMessage(ctx, "room", SendMessageRequest{Message: "hi", ModelID: 1})
	require.NoError(t, err)

	first := <-events
	assert.Equal(t, EventDelta, first.Kind)
	cancel()

	for ev := range events {
		assert.False(t, ev.Kind.Terminal(), "no terminal event after cancel, got %v", ev.Kind)
	}
}
