// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// =============================================================================
// SSE READER TESTS
// =============================================================================

func readAll(t *testing.T, raw string) []Event {
	t.Helper()
	r := NewSSEReader(strings.NewReader(raw))
	var events []Event
	for {
		ev, err := r.ReadEvent()
		if errors.Is(err, io.EOF) {
			return events
		}
		if err != nil {
			t.Fatalf("ReadEvent() error = %v", err)
		}
		events = append(events, ev)
	}
}

func TestSSEReader_MultiLineDataJoinedWithNewline(t *testing.T) {
	events := readAll(t, "event: delta\ndata:foo\ndata:bar\n\n")

	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Data != "foo\nbar" {
		t.Errorf("Data = %q, want %q", events[0].Data, "foo\nbar")
	}
}

func TestSSEReader_LeadingSpace(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"single space stripped", "data: hello", "hello"},
		{"second space kept", "data:  hello", " hello"},
		{"no space", "data:hello", "hello"},
		{"trailing space kept", "data: hello ", "hello "},
		{"empty payload", "data:", ""},
		{"space only", "data: ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := readAll(t, "event: delta\n"+tt.line+"\n\n")
			if len(events) != 1 {
				t.Fatalf("got %d events, want 1", len(events))
			}
			if events[0].Data != tt.want {
				t.Errorf("Data = %q, want %q", events[0].Data, tt.want)
			}
		})
	}
}

func TestSSEReader_FullExchange(t *testing.T) {
	raw := "event: started\n" +
		"data: Message sending started\n\n" +
		"event: delta\n" +
		"data: 안\n\n" +
		"event: delta\n" +
		"data: 녕\n\n" +
		"event: completed\n" +
		`data: {"aiResponseId":"a1","userMessageId":"u1","inputTokens":3,"outputTokens":2}` + "\n\n"

	events := readAll(t, raw)
	wantNames := []string{"started", "delta", "delta", "completed"}
	if len(events) != len(wantNames) {
		t.Fatalf("got %d events, want %d", len(events), len(wantNames))
	}
	for i, name := range wantNames {
		if events[i].Name != name {
			t.Errorf("events[%d].Name = %q, want %q", i, events[i].Name, name)
		}
	}
	if events[1].Data+events[2].Data != "안녕" {
		t.Errorf("deltas = %q + %q", events[1].Data, events[2].Data)
	}
}

func TestSSEReader_IgnoresCommentsAndMetaFields(t *testing.T) {
	raw := ": keep-alive\n\n" +
		"id: 7\nretry: 1000\nevent: delta\n: inline comment\ndata: x\n\n"

	events := readAll(t, raw)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(events), events)
	}
	if events[0].Name != "delta" || events[0].Data != "x" {
		t.Errorf("event = %+v, want delta/x", events[0])
	}
}

func TestSSEReader_CRLF(t *testing.T) {
	events := readAll(t, "event: delta\r\ndata: a\r\ndata: b\r\n\r\n")
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Data != "a\nb" {
		t.Errorf("Data = %q, want %q", events[0].Data, "a\nb")
	}
}

func TestSSEReader_PendingRecordAtEOF(t *testing.T) {
	events := readAll(t, "event: delta\ndata: tail")
	if len(events) != 1 || events[0].Data != "tail" {
		t.Errorf("events = %+v, want single delta 'tail'", events)
	}
}

func TestSSEReader_EmptyDeltaIsDelivered(t *testing.T) {
	events := readAll(t, "event: delta\ndata: \n\nevent: delta\ndata: x\n\n")
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Data != "" {
		t.Errorf("first delta = %q, want empty", events[0].Data)
	}
}

func TestSSEReader_EventTooLarge(t *testing.T) {
	raw := "event: delta\ndata: " + strings.Repeat("x", MaxEventSize) + "\n\n"
	r := NewSSEReader(strings.NewReader(raw))
	if _, err := r.ReadEvent(); !errors.Is(err, ErrEventTooLarge) {
		t.Errorf("ReadEvent() error = %v, want ErrEventTooLarge", err)
	}
}

// endlessLine serves "data: " followed by filler bytes that never end the
// line, counting what the reader pulls.
type endlessLine struct {
	prefix string
	limit  int
	read   int
}

func (e *endlessLine) Read(p []byte) (int, error) {
	if e.read >= e.limit {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && e.read < e.limit {
		if e.read < len(e.prefix) {
			p[n] = e.prefix[e.read]
		} else {
			p[n] = 'x'
		}
		n++
		e.read++
	}
	return n, nil
}

func TestSSEReader_UnterminatedLineRejectedEarly(t *testing.T) {
	src := &endlessLine{prefix: "data: ", limit: 64 << 20}
	r := NewSSEReader(src)

	if _, err := r.ReadEvent(); !errors.Is(err, ErrEventTooLarge) {
		t.Fatalf("ReadEvent() error = %v, want ErrEventTooLarge", err)
	}
	// One buffer fill past the limit at most.
	if limit := MaxEventSize + 64<<10; src.read > limit {
		t.Errorf("consumed %d bytes before rejecting, want <= %d", src.read, limit)
	}
}
