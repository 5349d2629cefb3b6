// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// =============================================================================
// SSE CONSTANTS
// =============================================================================

// MaxEventSize bounds a single framed record (all of its lines together).
const MaxEventSize = 1 << 20

// ErrEventTooLarge is returned when a record exceeds MaxEventSize.
var ErrEventTooLarge = errors.New("sse event exceeds size limit")

// =============================================================================
// SSE READER
// =============================================================================

// Event is one framed Server-Sent Events record.
type Event struct {
	// Name is the value of the last "event:" line, empty if none was sent.
	Name string
	// Data is every "data:" line of the record joined with "\n".
	Data string
}

// SSEReader frames Server-Sent Events from a byte stream.
//
// Records end at a blank line. Within a record, "event:" sets the name and
// each "data:" line contributes one line of payload. Exactly one space after
// the colon is stripped; anything beyond it is payload. Comment lines and
// the id/retry fields are ignored. LF and CRLF line endings are accepted.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{
		reader: bufio.NewReader(r),
	}
}

// ReadEvent returns the next record. A record still pending when the
// stream ends is returned before io.EOF.
func (r *SSEReader) ReadEvent() (Event, error) {
	var (
		ev      Event
		data    strings.Builder
		hasData bool
		seen    bool
		size    int
	)

	for {
		line, err := r.readLine(size)
		if err != nil && !errors.Is(err, io.EOF) {
			return Event{}, err
		}
		atEOF := errors.Is(err, io.EOF)
		size += len(line)

		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")

		if line == "" {
			if seen {
				ev.Data = data.String()
				return ev, nil
			}
			if atEOF {
				return Event{}, io.EOF
			}
			continue
		}

		field, value := splitField(line)
		switch field {
		case "":
			// Comment line.
		case "event":
			ev.Name = value
			seen = true
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
			seen = true
		default:
			// id, retry and unknown fields carry nothing we use.
		}

		if atEOF {
			if seen {
				ev.Data = data.String()
				return ev, nil
			}
			return Event{}, io.EOF
		}
	}
}

// readLine returns the next line with its terminator. used is the size of
// the record so far; the read stops with ErrEventTooLarge as soon as the
// record passes MaxEventSize, without waiting for the line to end.
func (r *SSEReader) readLine(used int) (string, error) {
	var line []byte
	for {
		frag, err := r.reader.ReadSlice('\n')
		used += len(frag)
		if used > MaxEventSize {
			return "", ErrEventTooLarge
		}
		line = append(line, frag...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(line), err
	}
}

// splitField splits "name: value" into its parts. Comment lines return an
// empty name. A line without a colon is a field with an empty value.
func splitField(line string) (string, string) {
	if strings.HasPrefix(line, ":") {
		return "", ""
	}
	name, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	value = strings.TrimPrefix(value, " ")
	return name, value
}
