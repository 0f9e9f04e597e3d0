// Copyright 2026 The Insight Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"log/slog"
	"testing"
)

type trackerRecorder struct {
	states []AppState
	teams  []TeamUpdate
}

func testTracker(t *testing.T) (*Tracker, *trackerRecorder) {
	t.Helper()
	recorder := &trackerRecorder{}
	tracker := NewTracker(
		func(state AppState) { recorder.states = append(recorder.states, state) },
		func(team TeamUpdate) { recorder.teams = append(recorder.teams, team) },
		slog.New(slog.DiscardHandler),
	)
	return tracker, recorder
}

func TestTrackerLinearProgression(t *testing.T) {
	t.Parallel()

	tracker, recorder := testTracker(t)
	for _, state := range []AppState{
		StateListening, StateCMOAnalyzing, StateTeamAssembling,
		StateTeamWorking, StateSynthesizing, StateVisualizing,
	} {
		tracker.Advance(state)
	}
	if tracker.State() != StateVisualizing {
		t.Errorf("state = %v", tracker.State())
	}
	if len(recorder.states) != 6 {
		t.Errorf("got %d state callbacks, want 6", len(recorder.states))
	}
}

func TestTrackerReentrancyAndBackwardHints(t *testing.T) {
	t.Parallel()

	tracker, recorder := testTracker(t)
	tracker.Advance(StateSynthesizing)
	tracker.Advance(StateSynthesizing)   // re-entrant: no callback spam
	tracker.Advance(StateCMOAnalyzing)   // backward: ignored
	tracker.Advance(StateVisualizing)

	if len(recorder.states) != 2 {
		t.Errorf("states = %v, want [synthesizing visualizing]", recorder.states)
	}
	if tracker.State() != StateVisualizing {
		t.Errorf("state = %v", tracker.State())
	}
}

func TestTrackerDoneIdempotent(t *testing.T) {
	t.Parallel()

	tracker, recorder := testTracker(t)
	tracker.Advance(StateSynthesizing)
	tracker.Complete("abc")
	tracker.Complete("abc") // second terminal signal: no-op
	tracker.Advance(StateVisualizing)

	if tracker.State() != StateComplete {
		t.Errorf("state = %v, want complete", tracker.State())
	}
	completions := 0
	for _, state := range recorder.states {
		if state == StateComplete {
			completions++
		}
	}
	if completions != 1 {
		t.Errorf("complete emitted %d times", completions)
	}
}

func TestTrackerErrorAbsorbs(t *testing.T) {
	t.Parallel()

	tracker, _ := testTracker(t)
	tracker.Advance(StateTeamWorking)
	tracker.Fail()
	tracker.Advance(StateSynthesizing)
	tracker.Complete("late")

	if tracker.State() != StateError {
		t.Errorf("state = %v, want error", tracker.State())
	}
}

func TestTrackerTraceMergePreservesRoster(t *testing.T) {
	t.Parallel()

	tracker, _ := testTracker(t)
	tracker.ApplyTeam(TeamUpdate{
		TeamStatus: TeamAnalyzing,
		Members: []TeamMember{
			{ID: "cardiology", Status: MemberAnalyzing, Progress: 0.5},
			{ID: "labs", Status: MemberComplete, Progress: 1},
		},
		OverallProgress: 0.7,
	})
	tracker.Complete("abc")

	team := tracker.Team()
	if len(team.Members) != 2 {
		t.Fatalf("roster erased by terminal update: %+v", team)
	}
	if team.TraceID != "abc" {
		t.Errorf("TraceID = %q, want abc", team.TraceID)
	}
	if team.TeamStatus != TeamComplete {
		t.Errorf("TeamStatus = %v, want complete", team.TeamStatus)
	}
}

func TestTrackerDataFreeUpdateKeepsMembers(t *testing.T) {
	t.Parallel()

	tracker, _ := testTracker(t)
	tracker.ApplyTeam(TeamUpdate{
		TeamStatus: TeamAnalyzing,
		Members:    []TeamMember{{ID: "cardiology", Status: MemberAnalyzing}},
	})
	tracker.ApplyTeam(TeamUpdate{TeamStatus: TeamSynthesizing, OverallProgress: 0.9})

	team := tracker.Team()
	if len(team.Members) != 1 {
		t.Fatalf("data-free update wiped the roster: %+v", team)
	}
	if team.TeamStatus != TeamSynthesizing || team.OverallProgress != 0.9 {
		t.Errorf("scalars not overlaid: %+v", team)
	}
}

func TestTrackerTeamStatusDrivesCoarseState(t *testing.T) {
	t.Parallel()

	tracker, _ := testTracker(t)
	tracker.ApplyTeam(TeamUpdate{TeamStatus: TeamAssembling,
		Members: []TeamMember{{ID: "gp", Status: MemberWaiting}}})
	if tracker.State() != StateTeamAssembling {
		t.Errorf("state = %v", tracker.State())
	}
	tracker.ApplyTeam(TeamUpdate{TeamStatus: TeamAnalyzing})
	if tracker.State() != StateTeamWorking {
		t.Errorf("state = %v", tracker.State())
	}
}

func TestParseAppState(t *testing.T) {
	t.Parallel()

	cases := []struct {
		hint string
		want AppState
		ok   bool
	}{
		{"team-working", StateTeamWorking, true},
		{"team_working", StateTeamWorking, true},
		{" synthesizing ", StateSynthesizing, true},
		{"daydreaming", "", false},
	}
	for _, testCase := range cases {
		got, ok := ParseAppState(testCase.hint)
		if got != testCase.want || ok != testCase.ok {
			t.Errorf("ParseAppState(%q) = %v, %v", testCase.hint, got, ok)
		}
	}
}
