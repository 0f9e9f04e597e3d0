// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/insight-health/insight/lib/stream"
)

// The controller's callbacks fire on its consumer goroutine; Bind
// wraps each one in a typed bubbletea message delivered through
// program.Send, which is the loop's thread-safe entry point.

// StateMsg carries a coarse session state change.
type StateMsg struct {
	State stream.AppState
}

// TeamMsg carries a specialist roster change.
type TeamMsg struct {
	Team stream.TeamUpdate
}

// ArtifactMsg carries a visualization artifact snapshot.
type ArtifactMsg struct {
	Artifact stream.Artifact
}

// MessagesMsg carries the full transcript after a change.
type MessagesMsg struct {
	Messages []stream.Message
}

// ToolCallsMsg carries the tool ledger after a change.
type ToolCallsMsg struct {
	Tools []stream.ToolCall
}

// NoticeMsg carries user-facing banner text for transport failures.
type NoticeMsg struct {
	Text string
}

// sendResultMsg reports the outcome of a Send started from the input
// line. A nil error means the stream opened; failures also arrive as
// a NoticeMsg through the bound callbacks.
type sendResultMsg struct {
	err error
}

// noticeFadeMsg clears the notice banner after its display delay.
type noticeFadeMsg struct{}

// MessageSender delivers messages into a running program's loop.
// *tea.Program satisfies it; main wires an indirection so the
// controller can be built before the program exists.
type MessageSender interface {
	Send(message tea.Msg)
}

// Bind returns controller callbacks that forward every emission into
// the program's message loop. Call before the first Send.
func Bind(program MessageSender) stream.Callbacks {
	return stream.Callbacks{
		OnArtifact: func(artifact stream.Artifact) { program.Send(ArtifactMsg{Artifact: artifact}) },
		OnState:    func(state stream.AppState) { program.Send(StateMsg{State: state}) },
		OnTeam:     func(team stream.TeamUpdate) { program.Send(TeamMsg{Team: team}) },
		OnMessages: func(messages []stream.Message) { program.Send(MessagesMsg{Messages: messages}) },
		OnToolCalls: func(tools []stream.ToolCall) {
			program.Send(ToolCallsMsg{Tools: tools})
		},
		OnNotice: func(text string) { program.Send(NoticeMsg{Text: text}) },
	}
}
