// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/insight-health/insight/lib/clock"
)

// Artifact is a versioned snapshot of generated visualization source
// plus the data it should render against. Code grows monotonically by
// append while IsStreaming is true and is frozen once IsStreaming is
// false. ID is stable across the streaming lifetime of one code
// block.
type Artifact struct {
	ID        string
	Code      string
	Language  string
	Data      json.RawMessage
	Hash      string
	Timestamp time.Time

	// IsStreaming is true for intermediate snapshots. The final
	// snapshot for an ID always has IsStreaming false and the
	// complete code.
	IsStreaming bool
}

const (
	// throttleInterval is the minimum spacing between streaming
	// emissions for one artifact id. Bounds repaint frequency only;
	// it is not transport flow control.
	throttleInterval = 100 * time.Millisecond

	// throttleStride lets an emission through whenever the buffer
	// length crosses a multiple of this many characters, so steady
	// newline-free code still repaints.
	throttleStride = 100
)

// Publisher turns code buffer state into Artifact snapshots for the
// visualization surface. Streaming emissions are throttled; the final
// emission on block close is never dropped.
type Publisher struct {
	clock  clock.Clock
	emit   func(Artifact)
	logger *slog.Logger

	// dataContext is the most recent tool_result payload; it rides
	// along as the default data for every artifact that follows.
	dataContext json.RawMessage

	lastEmit map[string]time.Time
}

// NewPublisher creates a Publisher that invokes emit once per
// snapshot. emit may be nil (snapshots are then dropped, which the
// replay tool uses when only the transcript matters).
func NewPublisher(clk clock.Clock, emit func(Artifact), logger *slog.Logger) *Publisher {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		clock:    clk,
		emit:     emit,
		logger:   logger,
		lastEmit: make(map[string]time.Time),
	}
}

// SetDataContext records the latest tool_result payload as the data
// attached to subsequent snapshots.
func (p *Publisher) SetDataContext(data json.RawMessage) {
	p.dataContext = data
}

// Streaming emits an intermediate snapshot if the throttle allows:
// at least throttleInterval since the previous emission for this id,
// or the appended fragment ends in a newline, or the buffer length is
// a multiple of throttleStride. The first emission for an id always
// passes.
func (p *Publisher) Streaming(id, language, code, fragment string) {
	if code == "" {
		return
	}
	now := p.clock.Now()
	last, seen := p.lastEmit[id]
	if seen &&
		now.Sub(last) < throttleInterval &&
		!strings.HasSuffix(fragment, "\n") &&
		len(code)%throttleStride != 0 {
		return
	}
	p.publish(id, language, code, true, now)
}

// Final emits the frozen snapshot for a completed block. Never
// throttled; always carries the complete accumulated code, even when
// that code is syntactically broken (downstream render failures are
// not this layer's problem).
func (p *Publisher) Final(id, language, code string) {
	p.publish(id, language, code, false, p.clock.Now())
	delete(p.lastEmit, id)
}

func (p *Publisher) publish(id, language, code string, streaming bool, now time.Time) {
	if p.emit == nil {
		return
	}
	digest := blake3.Sum256([]byte(code))
	p.lastEmit[id] = now
	p.emit(Artifact{
		ID:          id,
		Code:        code,
		Language:    language,
		Data:        p.dataContext,
		Hash:        hex.EncodeToString(digest[:]),
		Timestamp:   now,
		IsStreaming: streaming,
	})
}
