// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package capture

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/insight-health/insight/lib/sse"
	"github.com/insight-health/insight/lib/stream"
)

// ScriptStep is one step of a hand-authored session script: wait, then
// deliver one event.
type ScriptStep struct {
	// DelayMS is how long the replay waits before this step.
	DelayMS int64

	Event stream.Event
}

// scriptStep is the on-disk form. The payload is a wire-format event
// object, exactly what a live backend would put in a frame's data
// field, so scripts stay copy-pasteable from server logs. Frame names
// other than the default message channel ("done", "error") go in
// "frame".
type scriptStep struct {
	DelayMS int64           `json:"delay_ms"`
	Frame   string          `json:"frame,omitempty"`
	Data    json.RawMessage `json:"data"`
}

// ParseScript strips JSONC comments and trailing commas from data,
// then decodes each step's payload through the same frame decoder a
// live session uses. A step that would be dropped on the wire is a
// hard error here: scripts are authored, not received.
func ParseScript(data []byte) ([]ScriptStep, error) {
	stripped := jsonc.ToJSON(data)

	var raw []scriptStep
	if err := json.Unmarshal(stripped, &raw); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}

	steps := make([]ScriptStep, 0, len(raw))
	for i, step := range raw {
		event, err := stream.DecodeFrame(sse.Frame{
			Event: step.Frame,
			Data:  string(step.Data),
		})
		if err != nil {
			return nil, fmt.Errorf("script step %d: %w", i, err)
		}
		steps = append(steps, ScriptStep{DelayMS: step.DelayMS, Event: event})
	}
	return steps, nil
}

// ReadScript reads a JSONC script file from disk.
func ReadScript(path string) ([]ScriptStep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	steps, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return steps, nil
}
