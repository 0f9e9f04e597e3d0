// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/insight-health/insight/lib/clock"
	"github.com/insight-health/insight/lib/sse"
)

// Callbacks are the collaborator interfaces the controller exposes
// outward. Each is invoked once per state change, in stream order,
// from the session's consumer goroutine. Any callback may be nil.
type Callbacks struct {
	// OnArtifact fires once per artifact snapshot.
	OnArtifact func(Artifact)

	// OnState fires once per coarse AppState change.
	OnState func(AppState)

	// OnTeam fires once per team roster change.
	OnTeam func(TeamUpdate)

	// OnFragment fires per raw streaming text fragment, before any
	// code extraction, for consumers that want unprocessed text.
	OnFragment func(string)

	// OnMessages fires with the full transcript after it changes.
	OnMessages func([]Message)

	// OnToolCalls fires with the tool ledger after it changes.
	OnToolCalls func([]ToolCall)

	// OnNotice fires with user-facing banner text on transport
	// failures. The input box is always usable again afterwards.
	OnNotice func(string)
}

// Recorder tees decoded events somewhere durable (the capture
// package implements it). Record errors are logged, never fatal.
type Recorder interface {
	Record(event Event) error
}

// Options configure a Controller.
type Options struct {
	// Streamer opens connections. Required.
	Streamer Streamer

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Recorder, if set, receives every decoded event.
	Recorder Recorder

	Callbacks Callbacks
}

// Controller owns the chat surface's streaming sessions. At most one
// session is live at a time: sending a new message unconditionally
// tears down the previous connection before opening the next, and
// late events from a torn-down session are discarded by an explicit
// guard rather than by trusting the transport to have closed
// synchronously.
type Controller struct {
	streamer  Streamer
	clock     clock.Clock
	logger    *slog.Logger
	recorder  Recorder
	callbacks Callbacks

	conversationID string

	mu     sync.Mutex
	active *session
}

// NewController creates a Controller for one conversation.
func NewController(options Options) *Controller {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	return &Controller{
		streamer:       options.Streamer,
		clock:          options.Clock,
		logger:         options.Logger,
		recorder:       options.Recorder,
		callbacks:      options.Callbacks,
		conversationID: uuid.NewString(),
	}
}

// ConversationID returns the id sent with every request.
func (c *Controller) ConversationID() string { return c.conversationID }

// Send tears down any open session, records the user message, and
// opens a new stream. The returned error covers connection setup
// only; failures after the stream opens surface through OnNotice.
func (c *Controller) Send(ctx context.Context, text string, thinking bool) error {
	previous := c.swapActive(nil)
	if previous != nil {
		previous.shutdown("superseded by new send")
	}

	sess := newSession(c)
	c.swapActive(sess)

	sess.mu.Lock()
	sess.conversation.AddUser(text)
	sess.emitMessagesLocked()
	sess.tracker.Advance(StateListening)
	sess.mu.Unlock()

	body, err := c.streamer.OpenStream(sess.ctx, SendRequest{
		ConversationID: c.conversationID,
		Message:        text,
		EnableThinking: thinking,
	})
	if err != nil {
		c.logger.Warn("opening stream failed", "error", err)
		sess.transportFailed(err)
		return err
	}

	go sess.consume(body)
	go sess.probe()
	return nil
}

// Cancel tears down the active session, if any. Used when the chat
// surface goes away.
func (c *Controller) Cancel() {
	if sess := c.swapActive(nil); sess != nil {
		sess.shutdown("canceled")
	}
}

// Wait blocks until the active session finishes (done, error, or
// teardown). Returns immediately when nothing is live. The replay
// tool and tests use this to sequence against the consumer goroutine.
func (c *Controller) Wait() {
	c.mu.Lock()
	sess := c.active
	c.mu.Unlock()
	if sess != nil {
		<-sess.finished
	}
}

// swapActive installs next as the active session and returns the
// previous one.
func (c *Controller) swapActive(next *session) *session {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous := c.active
	c.active = next
	return previous
}

// session is the per-connection arena: every mutable piece of
// streaming state (buffers, throttle timestamps, the tool register)
// lives here and dies with the connection. Constructed on open,
// discarded on done/error/cancel.
type session struct {
	controller *Controller
	id         string
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// finished closes when the session is fully torn down.
	finished chan struct{}

	mu        sync.Mutex
	closed    bool
	terminal  bool
	lastEvent time.Time

	conversation *Conversation
	extractor    *Extractor
	publisher    *Publisher
	tracker      *Tracker
}

func newSession(c *Controller) *session {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		controller: c,
		id:         uuid.NewString(),
		ctx:        ctx,
		cancel:     cancel,
		finished:   make(chan struct{}),
		lastEvent:  c.clock.Now(),
	}
	sess.logger = c.logger.With("session_id", sess.id)
	sess.conversation = NewConversation(c.clock, sess.logger)
	sess.publisher = NewPublisher(c.clock, c.callbacks.OnArtifact, sess.logger)
	sess.extractor = NewExtractor(sess.publisher, sess.logger)
	sess.tracker = NewTracker(c.callbacks.OnState, c.callbacks.OnTeam, sess.logger)
	return sess
}

// consume reads frames until the stream ends. Runs on its own
// goroutine; all state mutation happens here, in strict stream order.
func (s *session) consume(body io.ReadCloser) {
	defer body.Close()

	scanner := sse.NewScanner(body)
	for scanner.Next() {
		frame := scanner.Frame()
		event, err := DecodeFrame(frame)
		if err != nil {
			// A single bad frame never terminates the session.
			s.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		if !s.deliver(event) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		s.transportFailed(&TransportError{Message: err.Error()})
		return
	}

	// Clean EOF without a done event: hard finalize through the same
	// idempotent terminal path.
	s.deliver(Event{Type: EventDone})
}

// deliver applies one event if this session is still live. Returns
// false once the session is closed, telling the consumer to stop.
func (s *session) deliver(event Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		// Late event from a torn-down session: no visible change.
		return false
	}
	s.lastEvent = s.controller.clock.Now()
	s.handleLocked(event)
	return !s.closed
}

// handleLocked dispatches one decoded event. Cross-cutting hints go
// first, independent of the primary type.
func (s *session) handleLocked(event Event) {
	if s.controller.recorder != nil {
		if err := s.controller.recorder.Record(event); err != nil {
			s.logger.Warn("recording event failed", "error", err)
		}
	}

	if event.StateHint != "" {
		if state, ok := ParseAppState(event.StateHint); ok {
			s.tracker.Advance(state)
		} else {
			s.logger.Debug("unknown state hint", "hint", event.StateHint)
		}
	}
	if event.Team != nil {
		s.tracker.ApplyTeam(*event.Team)
	}
	if event.Streaming != "" && s.controller.callbacks.OnFragment != nil {
		s.controller.callbacks.OnFragment(event.Streaming)
	}

	switch event.Type {
	case EventText:
		if s.controller.callbacks.OnFragment != nil {
			s.controller.callbacks.OnFragment(event.Content)
		}
		prose := s.extractor.Feed(event.Content)
		if prose != "" {
			s.conversation.AppendProse(prose)
			s.emitMessagesLocked()
		}
		if s.extractor.Active() {
			s.tracker.Advance(StateVisualizing)
		} else {
			s.tracker.Advance(StateSynthesizing)
		}

	case EventThinking:
		s.conversation.AddThinking(event.Content)
		s.emitMessagesLocked()
		s.tracker.Advance(StateCMOAnalyzing)

	case EventToolCall:
		var call struct {
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		}
		if err := json.Unmarshal(event.Data, &call); err != nil {
			s.logger.Debug("undecodable tool_call payload; recording unnamed call", "error", err)
		}
		s.conversation.BeginTool(call.ID, call.Name, call.Input)
		s.emitToolsLocked()
		s.logger.Debug("tool call", "tool", call.Name)

	case EventToolExecuting:
		s.conversation.MarkToolExecuting()
		s.emitToolsLocked()

	case EventToolResult:
		s.conversation.FinishTool(event.Data)
		s.publisher.SetDataContext(event.Data)
		s.emitToolsLocked()

	case EventVisualization:
		s.handleVisualizationLocked(event)

	case EventVizStart:
		s.extractor.VizStart(event.Language)
		s.tracker.Advance(StateVisualizing)

	case EventVizCode:
		s.extractor.VizCode(event.Content)

	case EventVizComplete:
		s.extractor.VizComplete(event.Code)

	case EventDone:
		s.finishLocked(event.TraceID)

	case EventError:
		transportErr := &TransportError{Message: event.ErrorText}
		s.logger.Warn("stream error event", "error", event.ErrorText)
		s.flushExtractorLocked()
		s.noticeLocked(UserNotice(transportErr))
		s.tracker.Fail()
		s.closeLocked("stream error")
	}
}

// handleVisualizationLocked treats a one-shot visualization payload:
// code attached means a complete artifact, bare data becomes the
// context for later artifacts.
func (s *session) handleVisualizationLocked(event Event) {
	var payload struct {
		Code     string          `json:"code"`
		Language string          `json:"language"`
		Data     json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		s.logger.Debug("undecodable visualization payload; dropping", "error", err)
		return
	}
	if len(payload.Data) > 0 {
		s.publisher.SetDataContext(payload.Data)
	}
	if payload.Code != "" {
		s.publisher.Final(uuid.NewString(), payload.Language, payload.Code)
		s.tracker.Advance(StateVisualizing)
	}
}

// finishLocked is the single terminal path for both done channels.
// Duplicate terminal signals are no-ops, never errors.
func (s *session) finishLocked(traceID string) {
	if s.terminal {
		s.logger.Debug("duplicate done; ignoring", "trace_id", traceID)
		return
	}
	s.terminal = true

	s.flushExtractorLocked()
	s.tracker.Complete(traceID)
	s.closeLocked("complete")
}

// flushExtractorLocked hard-finalizes any open code block so the last
// artifact is delivered even when the stream ends abruptly.
func (s *session) flushExtractorLocked() {
	if leftover := s.extractor.Finish(); leftover != "" {
		s.conversation.AppendProse(leftover)
		s.emitMessagesLocked()
	}
}

func (s *session) transportFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.logger.Warn("transport failed", "error", err)
	s.flushExtractorLocked()
	s.noticeLocked(UserNotice(err))
	s.tracker.Fail()
	s.closeLocked("transport error")
}

// shutdown tears the session down from outside the consumer
// goroutine (new send, surface closing).
func (s *session) shutdown(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(reason)
}

func (s *session) closeLocked(reason string) {
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	close(s.finished)
	s.logger.Debug("session closed", "reason", reason)
}

func (s *session) noticeLocked(text string) {
	if s.controller.callbacks.OnNotice != nil {
		s.controller.callbacks.OnNotice(text)
	}
}

func (s *session) emitMessagesLocked() {
	if s.controller.callbacks.OnMessages != nil {
		s.controller.callbacks.OnMessages(s.conversation.Messages())
	}
}

func (s *session) emitToolsLocked() {
	if s.controller.callbacks.OnToolCalls != nil {
		s.controller.callbacks.OnToolCalls(s.conversation.ToolCalls())
	}
}

// staleAfter is how long without an event before the liveness probe
// starts logging.
const staleAfter = 5 * time.Second

// probe polls connection liveness once per second for diagnostic
// logging. Observability only: it never mutates session state.
func (s *session) probe() {
	ticker := s.controller.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			idle := s.controller.clock.Now().Sub(s.lastEvent)
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			if idle > staleAfter {
				s.logger.Warn("stream stalled", "idle", idle)
			}
		}
	}
}
