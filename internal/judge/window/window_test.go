package window

import (
	"testing"
	"time"

	"codearena/internal/judge/model"
	appErr "codearena/pkg/errors"
)

func testContest() *model.Contest {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &model.Contest{ID: "c1", ProblemIDs: []string{"p1"}, StartTime: start, EndTime: start.Add(2 * time.Hour)}
}

func TestPhaseBoundaries(t *testing.T) {
	c := testContest()
	tests := []struct {
		name      string
		now       time.Time
		phase     Phase
		canSubmit bool
		locked    bool
	}{
		{name: "before start", now: c.StartTime.Add(-time.Nanosecond), phase: PhaseScheduled},
		{name: "exactly at start", now: c.StartTime, phase: PhaseLive, canSubmit: true},
		{name: "middle", now: c.StartTime.Add(time.Hour), phase: PhaseLive, canSubmit: true},
		{name: "just before end", now: c.EndTime.Add(-time.Nanosecond), phase: PhaseLive, canSubmit: true},
		{name: "exactly at end", now: c.EndTime, phase: PhaseEnded, locked: true},
		{name: "after end", now: c.EndTime.Add(time.Minute), phase: PhaseEnded, locked: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PhaseOf(c, tt.now); got != tt.phase {
				t.Fatalf("expected %s, got %s", tt.phase, got)
			}
			if got := CanSubmit(c, tt.now); got != tt.canSubmit {
				t.Fatalf("CanSubmit expected %v, got %v", tt.canSubmit, got)
			}
			if got := IsEditorLocked(c, tt.now); got != tt.locked {
				t.Fatalf("IsEditorLocked expected %v, got %v", tt.locked, got)
			}
		})
	}
}

func TestCanSubmitMatchesWindowLaw(t *testing.T) {
	c := testContest()
	for offset := -3 * time.Hour; offset <= 3*time.Hour; offset += 7 * time.Minute {
		now := c.StartTime.Add(offset)
		want := !now.Before(c.StartTime) && now.Before(c.EndTime)
		if got := CanSubmit(c, now); got != want {
			t.Fatalf("at %s expected %v, got %v", now, want, got)
		}
	}
}

func TestAdmit(t *testing.T) {
	c := testContest()
	if err := Admit(c, c.StartTime.Add(-time.Second)); !appErr.Is(err, appErr.ContestNotStarted) {
		t.Fatalf("expected ContestNotStarted, got %v", err)
	}
	if err := Admit(c, c.EndTime); !appErr.Is(err, appErr.ContestEnded) {
		t.Fatalf("submission at end time must be rejected, got %v", err)
	}
	if err := Admit(c, c.StartTime); err != nil {
		t.Fatalf("submission at start time must be admitted, got %v", err)
	}
}

func TestRemaining(t *testing.T) {
	c := testContest()
	if got := Remaining(c, c.StartTime.Add(-time.Minute)); got != time.Minute {
		t.Fatalf("expected 1m until start, got %s", got)
	}
	if got := Remaining(c, c.EndTime.Add(-30*time.Second)); got != 30*time.Second {
		t.Fatalf("expected 30s left, got %s", got)
	}
	if got := Remaining(c, c.EndTime.Add(time.Hour)); got != 0 {
		t.Fatalf("expected 0 after end, got %s", got)
	}
}

func TestCanMutateProblem(t *testing.T) {
	c := *testContest()
	other := model.Contest{ID: "c2", ProblemIDs: []string{"p2"}, StartTime: c.StartTime.Add(-time.Hour), EndTime: c.StartTime}
	contests := []model.Contest{c, other}
	if !CanMutateProblem("p1", contests, c.StartTime.Add(-time.Second)) {
		t.Fatalf("problem must be mutable before its contest starts")
	}
	if CanMutateProblem("p1", contests, c.StartTime) {
		t.Fatalf("problem must be frozen once its contest started")
	}
	if CanMutateProblem("p1", contests, c.EndTime.Add(time.Hour)) {
		t.Fatalf("problem stays frozen after the contest ended")
	}
	if !CanMutateProblem("p3", contests, c.StartTime) {
		t.Fatalf("unreferenced problem is always mutable")
	}
}

func TestSnapshot(t *testing.T) {
	c := testContest()
	s := Snapshot(c, c.StartTime.Add(time.Hour))
	if s.Phase != PhaseLive || !s.CanSubmit || s.EditorLocked || s.RemainingMs != time.Hour.Milliseconds() {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
}
