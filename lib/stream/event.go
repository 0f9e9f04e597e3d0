// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/insight-health/insight/lib/sse"
)

// EventType discriminates the protocol events carried by the stream.
type EventType string

const (
	// EventText is a fragment of assistant prose. Fragments are
	// deltas, not cumulative; fenced code inside them is significant.
	EventText EventType = "text"

	// EventThinking is one complete standalone thought from an agent.
	EventThinking EventType = "thinking"

	// EventToolCall announces a tool invocation. Informational.
	EventToolCall EventType = "tool_call"

	// EventToolExecuting reports that the announced tool is running.
	EventToolExecuting EventType = "tool_executing"

	// EventToolResult carries a tool's output. It patches the most
	// recent tool entry and becomes the default data context for any
	// artifact rendered afterwards.
	EventToolResult EventType = "tool_result"

	// EventVisualization delivers a complete visualization in one
	// shot, or bare chart data when no code is attached.
	EventVisualization EventType = "visualization"

	// EventVizStart opens the explicit code-streaming channel.
	EventVizStart EventType = "viz_start"

	// EventVizCode appends a fragment on the explicit channel.
	EventVizCode EventType = "viz_code"

	// EventVizComplete closes the explicit channel. Its Code field,
	// when present, is authoritative over the locally buffered copy.
	EventVizComplete EventType = "viz_complete"

	// EventDone terminates the session. It arrives over two wire
	// representations (a named SSE "done" frame, or a message frame
	// whose inner type is "done"); both normalize to this type.
	EventDone EventType = "done"

	// EventError reports a server-side failure mid-stream.
	EventError EventType = "error"
)

// Event is one decoded protocol event. The Type-specific payload
// fields and the cross-cutting hint fields (StateHint, Team,
// Streaming) are populated independently: a hint may ride on an event
// of any primary type and is dispatched to its own consumer.
type Event struct {
	Type EventType `json:"type"`

	// Content is the text payload for text, thinking, and viz_code.
	Content string `json:"content,omitempty"`

	// Data is the opaque JSON payload for tool and visualization
	// events.
	Data json.RawMessage `json:"data,omitempty"`

	// Code is the authoritative final source on viz_complete.
	Code string `json:"code,omitempty"`

	// Language is the source language announced by viz_start.
	Language string `json:"language,omitempty"`

	// TraceID correlates the full multi-agent run; attached to done.
	TraceID string `json:"trace_id,omitempty"`

	// ErrorText is the failure description on error events.
	ErrorText string `json:"error,omitempty"`

	// StateHint is a coarse application-state tag embedded in the
	// payload, independent of the event's primary type.
	StateHint string `json:"state,omitempty"`

	// Team is a specialist-team status payload, if present.
	Team *TeamUpdate `json:"team,omitempty"`

	// Streaming is a raw streaming-content hint for downstream
	// consumers that want unprocessed text.
	Streaming string `json:"streaming_content,omitempty"`
}

// MalformedEventError reports a frame that failed to decode. The
// session logs and drops these; a single bad frame never terminates
// the stream.
type MalformedEventError struct {
	// Frame is the offending payload, truncated for logging.
	Frame string

	// Reason describes what was wrong when there is no underlying
	// error.
	Reason string

	// Err is the underlying decode error, if any.
	Err error
}

func (e *MalformedEventError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stream: malformed event %q: %v", e.Frame, e.Err)
	}
	return fmt.Sprintf("stream: malformed event %q: %s", e.Frame, e.Reason)
}

func (e *MalformedEventError) Unwrap() error { return e.Err }

// wireEvent is the JSON payload of a message frame. Field names match
// the backend's snake_case wire format.
type wireEvent struct {
	Type      string          `json:"type"`
	Content   string          `json:"content,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Code      string          `json:"code,omitempty"`
	Language  string          `json:"language,omitempty"`
	TraceID   string          `json:"trace_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	State     string          `json:"state,omitempty"`
	Team      *wireTeamUpdate `json:"team,omitempty"`
	Streaming string          `json:"streaming_content,omitempty"`
}

// knownTypes is the set of inner type discriminators the protocol
// defines. Anything else is malformed rather than silently skipped:
// unlike a vendor API, the insight backend and this client version
// together, so an unknown type means a broken frame, and dropping it
// with a log line is the contract.
var knownTypes = map[string]EventType{
	"text":           EventText,
	"thinking":       EventThinking,
	"tool_call":      EventToolCall,
	"tool_executing": EventToolExecuting,
	"tool_result":    EventToolResult,
	"visualization":  EventVisualization,
	"viz_start":      EventVizStart,
	"viz_code":       EventVizCode,
	"viz_complete":   EventVizComplete,
	"done":           EventDone,
	"error":          EventError,
}

// DecodeFrame turns one SSE frame into exactly one typed Event, or
// fails with a [*MalformedEventError]. It performs no business logic
// beyond normalization: the two wire representations of completion
// (a named "done" frame, and a message frame whose inner type is
// "done") both come out as [EventDone], and named "error" frames come
// out as [EventError], so everything above this boundary sees a
// single terminal signal per channel.
func DecodeFrame(frame sse.Frame) (Event, error) {
	switch frame.Event {
	case "done":
		// The payload optionally carries a trace id; some backends
		// send a bare sentinel instead, which is fine.
		var payload struct {
			TraceID string `json:"trace_id"`
		}
		if err := json.Unmarshal([]byte(frame.Data), &payload); err == nil {
			return Event{Type: EventDone, TraceID: payload.TraceID}, nil
		}
		return Event{Type: EventDone}, nil

	case "error":
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(frame.Data), &payload); err == nil && payload.Error != "" {
			return Event{Type: EventError, ErrorText: payload.Error}, nil
		}
		return Event{Type: EventError, ErrorText: frame.Data}, nil

	case sse.DefaultEvent, "":
		var wire wireEvent
		if err := json.Unmarshal([]byte(frame.Data), &wire); err != nil {
			return Event{}, &MalformedEventError{Frame: truncate(frame.Data), Err: err}
		}
		eventType, known := knownTypes[wire.Type]
		if !known {
			return Event{}, &MalformedEventError{
				Frame:  truncate(frame.Data),
				Reason: fmt.Sprintf("unknown event type %q", wire.Type),
			}
		}
		event := Event{
			Type:      eventType,
			Content:   wire.Content,
			Data:      wire.Data,
			Code:      wire.Code,
			Language:  wire.Language,
			TraceID:   wire.TraceID,
			ErrorText: wire.Error,
			StateHint: wire.State,
			Streaming: wire.Streaming,
		}
		if eventType == EventError && event.ErrorText == "" {
			// In-stream errors may put the text in content instead.
			event.ErrorText = wire.Content
		}
		if wire.Team != nil {
			team := wire.Team.toTeamUpdate()
			event.Team = &team
		}
		return event, nil

	default:
		return Event{}, &MalformedEventError{
			Frame:  truncate(frame.Data),
			Reason: fmt.Sprintf("unknown SSE event name %q", frame.Event),
		}
	}
}

// EncodeWire marshals an event back into message-frame wire JSON.
// Used by the replay tool and the capture round-trip tests; the live
// client never produces frames.
func EncodeWire(event Event) ([]byte, error) {
	wire := wireEvent{
		Type:      string(event.Type),
		Content:   event.Content,
		Data:      event.Data,
		Code:      event.Code,
		Language:  event.Language,
		TraceID:   event.TraceID,
		Error:     event.ErrorText,
		State:     event.StateHint,
		Streaming: event.Streaming,
	}
	if event.Team != nil {
		teamWire := toWireTeamUpdate(*event.Team)
		wire.Team = &teamWire
	}
	return json.Marshal(wire)
}

// truncate bounds raw frame text embedded in error messages.
func truncate(data string) string {
	const limit = 256
	if len(data) <= limit {
		return data
	}
	return strings.ToValidUTF8(data[:limit], "") + "..."
}
