// Package window derives a contest's phase from the clock on every call.
// Nothing here is cached: the phase is always a function of (contest, now).
package window

import (
	"time"

	"codearena/internal/judge/model"
	appErr "codearena/pkg/errors"
)

// Phase is where a contest stands relative to its window [start, end).
type Phase string

const (
	PhaseScheduled Phase = "Scheduled"
	PhaseLive      Phase = "Live"
	PhaseEnded     Phase = "Ended"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// PhaseOf returns the phase of contest at now. Live ⇔ start ≤ now < end.
func PhaseOf(contest *model.Contest, now time.Time) Phase {
	switch {
	case now.Before(contest.StartTime):
		return PhaseScheduled
	case now.Before(contest.EndTime):
		return PhaseLive
	default:
		return PhaseEnded
	}
}

// CanSubmit reports whether submissions are accepted at now.
func CanSubmit(contest *model.Contest, now time.Time) bool {
	return PhaseOf(contest, now) == PhaseLive
}

// IsEditorLocked reports whether the contestant editor must be read-only.
func IsEditorLocked(contest *model.Contest, now time.Time) bool {
	return PhaseOf(contest, now) == PhaseEnded
}

// Admit returns a coded error when a submission received at is outside the window.
func Admit(contest *model.Contest, at time.Time) error {
	switch PhaseOf(contest, at) {
	case PhaseScheduled:
		return appErr.Newf(appErr.ContestNotStarted, "contest %s starts at %s", contest.ID, contest.StartTime.Format(time.RFC3339))
	case PhaseEnded:
		return appErr.Newf(appErr.ContestEnded, "contest %s ended at %s", contest.ID, contest.EndTime.Format(time.RFC3339))
	default:
		return nil
	}
}

// Remaining is the time left before the window closes, or until it opens
// while scheduled. It is zero once the contest has ended.
func Remaining(contest *model.Contest, now time.Time) time.Duration {
	switch PhaseOf(contest, now) {
	case PhaseScheduled:
		return contest.StartTime.Sub(now)
	case PhaseLive:
		return contest.EndTime.Sub(now)
	default:
		return 0
	}
}

// CanMutateProblem reports whether the test cases of problemID may still be
// changed: no contest that references it may have started.
func CanMutateProblem(problemID string, contests []model.Contest, now time.Time) bool {
	for i := range contests {
		if contests[i].HasProblem(problemID) && PhaseOf(&contests[i], now) != PhaseScheduled {
			return false
		}
	}
	return true
}

// Status is the phase snapshot served to contest pages.
type Status struct {
	ContestID    string `json:"contest_id"`
	Phase        Phase  `json:"phase"`
	CanSubmit    bool   `json:"can_submit"`
	EditorLocked bool   `json:"editor_locked"`
	RemainingMs  int64  `json:"remaining_ms"`
	ServerTime   int64  `json:"server_time"`
}

// Snapshot computes the full status of contest at now.
func Snapshot(contest *model.Contest, now time.Time) Status {
	phase := PhaseOf(contest, now)
	return Status{
		ContestID:    contest.ID,
		Phase:        phase,
		CanSubmit:    phase == PhaseLive,
		EditorLocked: phase == PhaseEnded,
		RemainingMs:  Remaining(contest, now).Milliseconds(),
		ServerTime:   now.UnixMilli(),
	}
}
