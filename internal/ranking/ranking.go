// Package ranking projects a contest leaderboard from the submission log.
// Nothing is stored: the board can be recomputed from the log at any time
// and equal logs always give equal boards.
package ranking

import (
	"sort"
	"time"

	"codearena/internal/judge/model"
)

// DefaultPenaltyPerWrong is the ICPC penalty for each rejected attempt
// before an accept.
const DefaultPenaltyPerWrong = 20 * time.Minute

// PenaltyFunc prices a solved problem from the wrong attempts before the
// accept and the time from contest start to the accept. The unit is minutes.
type PenaltyFunc func(wrongAttempts int, elapsed time.Duration) int64

// ICPCPenalty charges elapsed minutes plus perWrong for every wrong attempt.
func ICPCPenalty(perWrong time.Duration) PenaltyFunc {
	return func(wrongAttempts int, elapsed time.Duration) int64 {
		return int64(elapsed/time.Minute) + int64(wrongAttempts)*int64(perWrong/time.Minute)
	}
}

// Policy holds the scoring rules of a contest.
type Policy struct {
	Penalty PenaltyFunc
	// CountCompileErrors makes compile errors count as wrong attempts.
	CountCompileErrors bool
}

// DefaultPolicy is ICPC style scoring that forgives compile errors.
func DefaultPolicy() Policy {
	return Policy{Penalty: ICPCPenalty(DefaultPenaltyPerWrong)}
}

// ProblemResult is one contestant's standing on one problem.
type ProblemResult struct {
	ProblemID     string    `json:"problem_id"`
	Solved        bool      `json:"solved"`
	Score         float64   `json:"score"`
	WrongAttempts int       `json:"wrong_attempts"`
	AcceptedAt    time.Time `json:"accepted_at,omitempty"`
	Penalty       int64     `json:"penalty"`
}

// Entry is one row of the leaderboard.
type Entry struct {
	Rank           int             `json:"rank"`
	ContestantID   string          `json:"contestant_id"`
	Score          float64         `json:"score"`
	Penalty        int64           `json:"penalty"`
	Solved         int             `json:"solved"`
	LastAcceptedAt time.Time       `json:"last_accepted_at,omitempty"`
	Problems       []ProblemResult `json:"problems"`
}

type problemRule struct {
	points  float64
	partial bool
}

// Compute ranks every contestant with at least one counted submission
// inside the contest window. Submissions are read in submission time order;
// once a problem is solved later submissions to it change nothing.
func Compute(contest model.Contest, problems []model.Problem, submissions []model.Submission, policy Policy) []Entry {
	if policy.Penalty == nil {
		policy.Penalty = ICPCPenalty(DefaultPenaltyPerWrong)
	}
	rules := make(map[string]problemRule, len(contest.ProblemIDs))
	for _, p := range problems {
		if !contest.HasProblem(p.ID) {
			continue
		}
		rules[p.ID] = problemRule{points: float64(p.EffectivePoints()), partial: p.PartialCredit}
	}

	ordered := make([]model.Submission, 0, len(submissions))
	for _, s := range submissions {
		if s.ContestID != contest.ID || !s.Counted() {
			continue
		}
		if _, ok := rules[s.ProblemID]; !ok {
			continue
		}
		if s.CreatedAt.Before(contest.StartTime) || !s.CreatedAt.Before(contest.EndTime) {
			continue
		}
		if s.Verdict.Outcome == model.OutcomeCompileError && !policy.CountCompileErrors {
			continue
		}
		ordered = append(ordered, s)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	standings := make(map[string]map[string]*ProblemResult)
	for _, s := range ordered {
		byProblem, ok := standings[s.ContestantID]
		if !ok {
			byProblem = make(map[string]*ProblemResult)
			standings[s.ContestantID] = byProblem
		}
		pr, ok := byProblem[s.ProblemID]
		if !ok {
			pr = &ProblemResult{ProblemID: s.ProblemID}
			byProblem[s.ProblemID] = pr
		}
		if pr.Solved {
			continue
		}
		rule := rules[s.ProblemID]
		if s.Verdict.Outcome == model.OutcomeAccepted {
			pr.Solved = true
			pr.Score = rule.points
			pr.AcceptedAt = s.CreatedAt
			pr.Penalty = policy.Penalty(pr.WrongAttempts, s.CreatedAt.Sub(contest.StartTime))
			continue
		}
		pr.WrongAttempts++
		if rule.partial && s.Verdict.Complete && s.Verdict.Total > 0 {
			if partial := rule.points * float64(s.Verdict.Passed) / float64(s.Verdict.Total); partial > pr.Score {
				pr.Score = partial
			}
		}
	}

	entries := make([]Entry, 0, len(standings))
	for contestantID, byProblem := range standings {
		e := Entry{ContestantID: contestantID}
		for _, problemID := range contest.ProblemIDs {
			pr, ok := byProblem[problemID]
			if !ok {
				continue
			}
			e.Problems = append(e.Problems, *pr)
			e.Score += pr.Score
			if pr.Solved {
				e.Solved++
				e.Penalty += pr.Penalty
				if pr.AcceptedAt.After(e.LastAcceptedAt) {
					e.LastAcceptedAt = pr.AcceptedAt
				}
			}
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := &entries[i], &entries[j]
		if !sameKey(a, b) {
			return ahead(a, b)
		}
		return a.ContestantID < b.ContestantID
	})
	for i := range entries {
		if i > 0 && sameKey(&entries[i-1], &entries[i]) {
			entries[i].Rank = entries[i-1].Rank
		} else {
			entries[i].Rank = i + 1
		}
	}
	return entries
}

func sameKey(a, b *Entry) bool {
	return a.Score == b.Score && a.Penalty == b.Penalty && a.LastAcceptedAt.Equal(b.LastAcceptedAt)
}

// ahead orders by score desc, penalty asc, then earlier last accept. A row
// without any accept sorts after every row that has one.
func ahead(a, b *Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Penalty != b.Penalty {
		return a.Penalty < b.Penalty
	}
	if a.LastAcceptedAt.IsZero() != b.LastAcceptedAt.IsZero() {
		return !a.LastAcceptedAt.IsZero()
	}
	return a.LastAcceptedAt.Before(b.LastAcceptedAt)
}
