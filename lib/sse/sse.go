// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

// Package sse reads Server-Sent Events from an io.Reader per the W3C
// EventSource specification.
//
// This is the transport layer under the stream package's event
// decoder: it splits the byte stream into frames and nothing more.
// Frame payloads are opaque here; JSON decoding and event typing
// happen one layer up.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// DefaultEvent is the event name assigned to frames that carry no
// explicit "event:" field. The EventSource spec calls these "message"
// events, and the insight wire protocol relies on that: all payloads
// except the named done/error frames arrive as plain messages.
const DefaultEvent = "message"

// Frame is a single Server-Sent Event.
type Frame struct {
	// Event is the event name from the "event:" field, or
	// [DefaultEvent] if the frame didn't specify one.
	Event string

	// Data is the payload, assembled from one or more "data:" lines
	// joined with newlines per the SSE specification.
	Data string

	// ID is the last-seen "id:" field value, carried for diagnostics
	// (the session logs it in its liveness probe). Empty if the
	// server never sets ids.
	ID string
}

// Scanner reads frames from an SSE byte stream.
//
// Frames are delimited by blank lines. "data:" lines carry the
// payload, "event:" the name, "id:" the event id. Comment lines
// (leading ":") and unknown fields are ignored. A final frame that
// ends at EOF without a trailing blank line is still delivered.
//
// Usage:
//
//	scanner := sse.NewScanner(body)
//	for scanner.Next() {
//	    frame := scanner.Frame()
//	    // decode frame.Data
//	}
//	if err := scanner.Err(); err != nil {
//	    // transport failure, distinct from clean EOF
//	}
type Scanner struct {
	reader  *bufio.Reader
	current Frame
	lastID  string
	err     error
}

// NewScanner creates a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next frame. Returns false at end of stream or
// on error; call [Scanner.Err] afterward to tell the two apart.
func (scanner *Scanner) Next() bool {
	if scanner.err != nil {
		return false
	}

	var dataLines []string
	eventName := ""
	hasData := false

	emit := func() {
		name := eventName
		if name == "" {
			name = DefaultEvent
		}
		scanner.current = Frame{
			Event: name,
			Data:  strings.Join(dataLines, "\n"),
			ID:    scanner.lastID,
		}
	}

	for {
		line, err := scanner.reader.ReadString('\n')
		if err != nil && line == "" {
			if err == io.EOF {
				if hasData {
					// Unterminated final frame: deliver it, then
					// report end of stream on the next call.
					emit()
					scanner.err = io.EOF
					return true
				}
				scanner.err = io.EOF
				return false
			}
			scanner.err = err
			return false
		}

		line = strings.TrimRight(line, "\r\n")

		// Blank line: frame boundary.
		if line == "" {
			if hasData {
				emit()
				return true
			}
			// Heartbeat or comment-only block; keep reading.
			eventName = ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, hasColon := strings.Cut(line, ":")
		if hasColon {
			// Per spec, exactly one leading space is stripped.
			value = strings.TrimPrefix(value, " ")
		} else {
			field, value = line, ""
		}

		switch field {
		case "data":
			dataLines = append(dataLines, value)
			hasData = true
		case "event":
			eventName = value
		case "id":
			scanner.lastID = value
		case "retry":
			// Reconnection delay; this client never auto-reconnects.
		default:
			// Unknown fields are ignored per the SSE specification.
		}
	}
}

// Frame returns the most recently parsed frame. Valid only after
// [Scanner.Next] returned true.
func (scanner *Scanner) Frame() Frame {
	return scanner.current
}

// Err returns the first transport error encountered, or nil if the
// stream ended with a clean EOF.
func (scanner *Scanner) Err() error {
	if scanner.err == io.EOF {
		return nil
	}
	return scanner.err
}
