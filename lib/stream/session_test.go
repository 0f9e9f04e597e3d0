// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/insight-health/insight/lib/clock"
)

// collector gathers every callback emission for later assertion. The
// callbacks fire on the session's consumer goroutine, so access is
// guarded.
type collector struct {
	mu        sync.Mutex
	artifacts []Artifact
	states    []AppState
	teams     []TeamUpdate
	fragments []string
	messages  []Message
	tools     []ToolCall
	notices   []string
}

func (col *collector) callbacks() Callbacks {
	return Callbacks{
		OnArtifact: func(a Artifact) { col.mu.Lock(); col.artifacts = append(col.artifacts, a); col.mu.Unlock() },
		OnState:    func(s AppState) { col.mu.Lock(); col.states = append(col.states, s); col.mu.Unlock() },
		OnTeam:     func(u TeamUpdate) { col.mu.Lock(); col.teams = append(col.teams, u); col.mu.Unlock() },
		OnFragment: func(f string) { col.mu.Lock(); col.fragments = append(col.fragments, f); col.mu.Unlock() },
		OnMessages: func(m []Message) { col.mu.Lock(); col.messages = m; col.mu.Unlock() },
		OnToolCalls: func(calls []ToolCall) {
			col.mu.Lock()
			col.tools = calls
			col.mu.Unlock()
		},
		OnNotice: func(n string) { col.mu.Lock(); col.notices = append(col.notices, n); col.mu.Unlock() },
	}
}

func (col *collector) transcript() string {
	col.mu.Lock()
	defer col.mu.Unlock()
	var parts []string
	for _, message := range col.messages {
		parts = append(parts, string(message.Role)+": "+message.Content)
	}
	return strings.Join(parts, "\n---\n")
}

// scriptedStreamer serves a fixed SSE byte stream for every send.
type scriptedStreamer struct {
	stream string
	err    error
}

func (s *scriptedStreamer) OpenStream(context.Context, SendRequest) (io.ReadCloser, error) {
	if s.err != nil {
		return nil, s.err
	}
	return io.NopCloser(strings.NewReader(s.stream)), nil
}

func messageFrame(payload string) string { return "data: " + payload + "\n\n" }

func namedFrame(name, payload string) string {
	return "event: " + name + "\ndata: " + payload + "\n\n"
}

func testController(t *testing.T, streamer Streamer) (*Controller, *collector) {
	t.Helper()
	col := &collector{}
	controller := NewController(Options{
		Streamer:  streamer,
		Clock:     clock.Fake(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
		Logger:    slog.New(slog.DiscardHandler),
		Callbacks: col.callbacks(),
	})
	return controller, col
}

func TestControllerFullSession(t *testing.T) {
	t.Parallel()

	stream := messageFrame(`{"type":"thinking","content":"Reviewing labs.","state":"cmo-analyzing"}`) +
		messageFrame(`{"type":"team","team":{"team_status":"assembling","members":[{"id":"cardiology","status":"waiting"}]}}`) +
		messageFrame(`{"type":"tool_call","data":{"id":"t1","name":"query_labs"}}`) +
		messageFrame(`{"type":"tool_executing","data":{}}`) +
		messageFrame(`{"type":"tool_result","data":{"ldl":[130,121,95]}}`) +
		messageFrame(`{"type":"text","content":"Here is a chart:\n` + "```" + `"}`) +
		messageFrame(`{"type":"text","content":"jsx\nconst X = () => <LineChart/>;\n` + "``" + `"}`) +
		messageFrame(`{"type":"text","content":"` + "`" + `\nDone."}`) +
		namedFrame("done", `{"trace_id":"abc"}`)

	controller, col := testController(t, &scriptedStreamer{stream: stream})
	if err := controller.Send(context.Background(), "How is my cholesterol?", true); err != nil {
		t.Fatalf("Send: %v", err)
	}
	controller.Wait()

	col.mu.Lock()
	defer col.mu.Unlock()

	// Transcript: user message, thinking bubble, synthesis with the
	// placeholder substituted for the fence.
	if len(col.messages) != 3 {
		t.Fatalf("got %d messages: %s", len(col.messages), col.transcript())
	}
	synthesis := col.messages[2]
	want := "Here is a chart:\n" + Placeholder + "\nDone."
	if synthesis.Content != want {
		t.Errorf("synthesis = %q, want %q", synthesis.Content, want)
	}

	// Artifact: the final snapshot carries the exact fenced content
	// and the tool result as data context.
	var final *Artifact
	for i := range col.artifacts {
		if !col.artifacts[i].IsStreaming {
			final = &col.artifacts[i]
		}
	}
	if final == nil {
		t.Fatal("no final artifact")
	}
	if final.Code != "const X = () => <LineChart/>;\n" {
		t.Errorf("final code = %q", final.Code)
	}
	if string(final.Data) != `{"ldl":[130,121,95]}` {
		t.Errorf("artifact data = %s", final.Data)
	}

	// Tool ledger completed, team roster intact with the trace id.
	if len(col.tools) != 1 || col.tools[0].Status != ToolCompleted {
		t.Errorf("tools = %+v", col.tools)
	}
	lastTeam := col.teams[len(col.teams)-1]
	if len(lastTeam.Members) != 1 || lastTeam.TraceID != "abc" {
		t.Errorf("final team = %+v", lastTeam)
	}

	// Coarse state ended complete, with no error notice.
	if col.states[len(col.states)-1] != StateComplete {
		t.Errorf("final state = %v", col.states[len(col.states)-1])
	}
	if len(col.notices) != 0 {
		t.Errorf("unexpected notices: %v", col.notices)
	}
}

func TestControllerDuplicateDoneIsNoOp(t *testing.T) {
	t.Parallel()

	// Same terminal signal over both wire channels.
	stream := messageFrame(`{"type":"text","content":"All good."}`) +
		messageFrame(`{"type":"done","trace_id":"abc"}`) +
		namedFrame("done", `{"trace_id":"abc"}`)

	controller, col := testController(t, &scriptedStreamer{stream: stream})
	if err := controller.Send(context.Background(), "hi", false); err != nil {
		t.Fatalf("Send: %v", err)
	}
	controller.Wait()

	col.mu.Lock()
	defer col.mu.Unlock()
	completions := 0
	for _, state := range col.states {
		if state == StateComplete {
			completions++
		}
	}
	if completions != 1 {
		t.Errorf("complete emitted %d times, want 1", completions)
	}
	if len(col.notices) != 0 {
		t.Errorf("duplicate done raised notices: %v", col.notices)
	}
}

func TestControllerEOFWithoutDoneFinalizes(t *testing.T) {
	t.Parallel()

	stream := messageFrame("{\"type\":\"text\",\"content\":\"Partial answer ```jsx\\nconst X = () => <BarChart/>;\"}")

	controller, col := testController(t, &scriptedStreamer{stream: stream})
	if err := controller.Send(context.Background(), "hi", false); err != nil {
		t.Fatalf("Send: %v", err)
	}
	controller.Wait()

	col.mu.Lock()
	defer col.mu.Unlock()
	if col.states[len(col.states)-1] != StateComplete {
		t.Errorf("final state = %v, want complete", col.states[len(col.states)-1])
	}
	if len(col.artifacts) == 0 || col.artifacts[len(col.artifacts)-1].IsStreaming {
		t.Error("open block was not hard-finalized on close")
	}
}

func TestControllerMalformedFrameDoesNotKillSession(t *testing.T) {
	t.Parallel()

	stream := messageFrame(`{"type":`) + // broken JSON
		messageFrame(`{"type":"mystery"}`) + // unknown type
		messageFrame(`{"type":"text","content":"Still alive."}`) +
		namedFrame("done", `{}`)

	controller, col := testController(t, &scriptedStreamer{stream: stream})
	if err := controller.Send(context.Background(), "hi", false); err != nil {
		t.Fatalf("Send: %v", err)
	}
	controller.Wait()

	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.messages) != 2 || col.messages[1].Content != "Still alive." {
		t.Errorf("transcript = %+v", col.messages)
	}
	if col.states[len(col.states)-1] != StateComplete {
		t.Errorf("final state = %v", col.states[len(col.states)-1])
	}
}

func TestControllerErrorNotices(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		payload    string
		wantNotice string
	}{
		{"overload", `{"error":"Provider overloaded, try later"}`, noticeOverloaded},
		{"generic", `{"error":"connection reset by peer"}`, noticeGeneric},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			stream := messageFrame(`{"type":"text","content":"partial"}`) +
				namedFrame("error", testCase.payload)
			controller, col := testController(t, &scriptedStreamer{stream: stream})
			if err := controller.Send(context.Background(), "hi", false); err != nil {
				t.Fatalf("Send: %v", err)
			}
			controller.Wait()

			col.mu.Lock()
			defer col.mu.Unlock()
			if len(col.notices) != 1 || col.notices[0] != testCase.wantNotice {
				t.Errorf("notices = %v, want [%q]", col.notices, testCase.wantNotice)
			}
			if col.states[len(col.states)-1] != StateError {
				t.Errorf("final state = %v, want error", col.states[len(col.states)-1])
			}
		})
	}
}

func TestControllerOpenFailureSurfacesNotice(t *testing.T) {
	t.Parallel()

	controller, col := testController(t, &scriptedStreamer{
		err: &TransportError{StatusCode: 529, Message: "overloaded_error"},
	})
	err := controller.Send(context.Background(), "hi", false)
	if err == nil {
		t.Fatal("Send should report the setup failure")
	}
	controller.Wait()

	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.notices) != 1 || col.notices[0] != noticeOverloaded {
		t.Errorf("notices = %v", col.notices)
	}
}

// closeSignalingBody wraps a ReadCloser and signals when the consumer
// goroutine lets go of it.
type closeSignalingBody struct {
	io.ReadCloser
	closed chan struct{}
}

func (body *closeSignalingBody) Close() error {
	err := body.ReadCloser.Close()
	close(body.closed)
	return err
}

// switchingStreamer serves a caller-supplied body on the first open
// and a scripted stream afterwards.
type switchingStreamer struct {
	mu    sync.Mutex
	first io.ReadCloser
	next  string
	opens int
}

func (s *switchingStreamer) OpenStream(context.Context, SendRequest) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if s.opens == 1 {
		return s.first, nil
	}
	return io.NopCloser(strings.NewReader(s.next)), nil
}

func TestControllerSessionExclusivity(t *testing.T) {
	t.Parallel()

	pipeReader, pipeWriter := io.Pipe()
	firstBody := &closeSignalingBody{
		ReadCloser: pipeReader,
		closed:     make(chan struct{}),
	}
	streamer := &switchingStreamer{
		first: firstBody,
		next: messageFrame(`{"type":"text","content":"Second answer."}`) +
			namedFrame("done", `{}`),
	}
	controller, col := testController(t, streamer)

	if err := controller.Send(context.Background(), "first question", false); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	// Supersede the open stream before it produced anything.
	if err := controller.Send(context.Background(), "second question", false); err != nil {
		t.Fatalf("second Send: %v", err)
	}
	controller.Wait()

	// Late events from the discarded session must produce no visible
	// state change: the guard drops them and the consumer stops.
	if _, err := pipeWriter.Write([]byte(messageFrame(`{"type":"text","content":"STALE"}`))); err != nil {
		t.Fatalf("writing late frame: %v", err)
	}
	pipeWriter.Close()

	select {
	case <-firstBody.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("discarded session's consumer never released its body")
	}

	if strings.Contains(col.transcript(), "STALE") {
		t.Errorf("stale event mutated the transcript: %s", col.transcript())
	}
	if !strings.Contains(col.transcript(), "Second answer.") {
		t.Errorf("second session's answer missing: %s", col.transcript())
	}
}
