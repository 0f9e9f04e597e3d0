// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"log/slog"
	"strings"
)

// AppState is the coarse session-level state shown in the chat
// surface header. Transitions are linear with permitted re-entrancy;
// StateError absorbs from any non-terminal state.
type AppState string

const (
	StateWelcome        AppState = "welcome"
	StateIdle           AppState = "idle"
	StateListening      AppState = "listening"
	StateCMOAnalyzing   AppState = "cmo-analyzing"
	StateTeamAssembling AppState = "team-assembling"
	StateTeamWorking    AppState = "team-working"
	StateSynthesizing   AppState = "synthesizing"
	StateVisualizing    AppState = "visualizing"
	StateComplete       AppState = "complete"
	StateError          AppState = "error"
)

// Terminal reports whether no further transitions are possible.
func (s AppState) Terminal() bool {
	return s == StateComplete || s == StateError
}

// stateRank orders the linear progression. Hints for states earlier
// than the current one are ignored (re-entering the current state is
// a no-op, not an error).
var stateRank = map[AppState]int{
	StateWelcome:        0,
	StateIdle:           1,
	StateListening:      2,
	StateCMOAnalyzing:   3,
	StateTeamAssembling: 4,
	StateTeamWorking:    5,
	StateSynthesizing:   6,
	StateVisualizing:    7,
	StateComplete:       8,
	StateError:          8,
}

// ParseAppState maps a wire state hint to an AppState. Hints use
// either hyphens or underscores depending on backend version.
func ParseAppState(hint string) (AppState, bool) {
	state := AppState(strings.ReplaceAll(strings.TrimSpace(hint), "_", "-"))
	if _, known := stateRank[state]; !known {
		return "", false
	}
	return state, true
}

// TeamStatus is the aggregate specialist-team phase.
type TeamStatus string

const (
	TeamAssembling   TeamStatus = "assembling"
	TeamAnalyzing    TeamStatus = "analyzing"
	TeamSynthesizing TeamStatus = "synthesizing"
	TeamComplete     TeamStatus = "complete"
)

// MemberStatus is one specialist's phase.
type MemberStatus string

const (
	MemberWaiting   MemberStatus = "waiting"
	MemberThinking  MemberStatus = "thinking"
	MemberAnalyzing MemberStatus = "analyzing"
	MemberComplete  MemberStatus = "complete"
	MemberError     MemberStatus = "error"
)

// TeamMember is one specialist's status row in the team panel.
type TeamMember struct {
	ID         string
	Status     MemberStatus
	Progress   float64
	Confidence float64
	ToolCalls  int
}

// TeamUpdate is a snapshot of the whole specialist roster.
type TeamUpdate struct {
	TeamStatus      TeamStatus
	Members         []TeamMember
	OverallProgress float64
	TraceID         string
}

// wireTeamUpdate is the snake_case wire shape of a team payload.
type wireTeamUpdate struct {
	TeamStatus      string           `json:"team_status,omitempty"`
	Members         []wireTeamMember `json:"members,omitempty"`
	OverallProgress float64          `json:"overall_progress,omitempty"`
	TraceID         string           `json:"trace_id,omitempty"`
}

type wireTeamMember struct {
	ID         string  `json:"id"`
	Status     string  `json:"status,omitempty"`
	Progress   float64 `json:"progress,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	ToolCalls  int     `json:"tool_calls,omitempty"`
}

func (wire *wireTeamUpdate) toTeamUpdate() TeamUpdate {
	update := TeamUpdate{
		TeamStatus:      TeamStatus(wire.TeamStatus),
		OverallProgress: wire.OverallProgress,
		TraceID:         wire.TraceID,
	}
	for _, member := range wire.Members {
		update.Members = append(update.Members, TeamMember{
			ID:         member.ID,
			Status:     MemberStatus(member.Status),
			Progress:   member.Progress,
			Confidence: member.Confidence,
			ToolCalls:  member.ToolCalls,
		})
	}
	return update
}

func toWireTeamUpdate(update TeamUpdate) wireTeamUpdate {
	wire := wireTeamUpdate{
		TeamStatus:      string(update.TeamStatus),
		OverallProgress: update.OverallProgress,
		TraceID:         update.TraceID,
	}
	for _, member := range update.Members {
		wire.Members = append(wire.Members, wireTeamMember{
			ID:         member.ID,
			Status:     string(member.Status),
			Progress:   member.Progress,
			Confidence: member.Confidence,
			ToolCalls:  member.ToolCalls,
		})
	}
	return wire
}

// Tracker derives the coarse AppState and the per-specialist status
// ledger from the decoded event stream. One Tracker per session.
type Tracker struct {
	logger  *slog.Logger
	onState func(AppState)
	onTeam  func(TeamUpdate)

	state AppState
	team  TeamUpdate
	done  bool
}

// NewTracker creates a Tracker in StateIdle. Either callback may be
// nil. If logger is nil, slog.Default() is used.
func NewTracker(onState func(AppState), onTeam func(TeamUpdate), logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		logger:  logger,
		onState: onState,
		onTeam:  onTeam,
		state:   StateIdle,
	}
}

// State returns the current coarse state.
func (t *Tracker) State() AppState { return t.state }

// Team returns the current roster snapshot.
func (t *Tracker) Team() TeamUpdate { return t.team }

// Advance moves to next if it is ahead of (or equal to) the current
// state in the linear progression. Backward hints are logged and
// ignored; after a terminal state every Advance is a no-op.
func (t *Tracker) Advance(next AppState) {
	if t.done || next == t.state {
		return
	}
	if next == StateError {
		t.Fail()
		return
	}
	if next == StateComplete {
		t.Complete("")
		return
	}
	if stateRank[next] < stateRank[t.state] {
		t.logger.Debug("ignoring backward state hint",
			"current", t.state, "hint", next)
		return
	}
	t.setState(next)
}

// Complete forces StateComplete. Idempotent: the second terminal
// signal (from either wire channel) is a no-op. A trace id arriving
// here merges into the existing roster snapshot; a terminal,
// data-free update never erases member rows.
func (t *Tracker) Complete(traceID string) {
	if t.done {
		t.logger.Debug("duplicate completion signal; ignoring", "trace_id", traceID)
		return
	}
	t.done = true

	if traceID != "" || len(t.team.Members) > 0 {
		if traceID != "" {
			t.team.TraceID = traceID
		}
		if len(t.team.Members) > 0 {
			t.team.TeamStatus = TeamComplete
		}
		t.emitTeam()
	}
	t.setState(StateComplete)
}

// Fail moves to the absorbing error state. No-op once terminal.
func (t *Tracker) Fail() {
	if t.done {
		return
	}
	t.done = true
	t.setState(StateError)
}

// ApplyTeam merges a team payload into the snapshot. Updates that
// carry members replace the roster; data-free updates only overlay
// their scalar fields so an in-progress roster is never wiped by a
// status-only ping.
func (t *Tracker) ApplyTeam(update TeamUpdate) {
	if t.done {
		return
	}

	if len(update.Members) == 0 && len(t.team.Members) > 0 {
		if update.TeamStatus != "" {
			t.team.TeamStatus = update.TeamStatus
		}
		if update.OverallProgress > 0 {
			t.team.OverallProgress = update.OverallProgress
		}
		if update.TraceID != "" {
			t.team.TraceID = update.TraceID
		}
	} else {
		previousTrace := t.team.TraceID
		t.team = update
		if t.team.TraceID == "" {
			t.team.TraceID = previousTrace
		}
	}
	t.emitTeam()

	switch t.team.TeamStatus {
	case TeamAssembling:
		t.Advance(StateTeamAssembling)
	case TeamAnalyzing:
		t.Advance(StateTeamWorking)
	case TeamSynthesizing:
		t.Advance(StateSynthesizing)
	}
}

func (t *Tracker) setState(next AppState) {
	t.state = next
	if t.onState != nil {
		t.onState(next)
	}
}

func (t *Tracker) emitTeam() {
	if t.onTeam != nil {
		t.onTeam(t.team)
	}
}
