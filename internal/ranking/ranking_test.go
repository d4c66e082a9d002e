package ranking

import (
	"testing"
	"time"

	"codearena/internal/judge/model"
)

var start = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func testContest() model.Contest {
	return model.Contest{ID: "c1", ProblemIDs: []string{"A", "B"}, StartTime: start, EndTime: start.Add(3 * time.Hour)}
}

func testProblems() []model.Problem {
	return []model.Problem{{ID: "A"}, {ID: "B", Points: 200}}
}

type subBuilder struct {
	n    int
	subs []model.Submission
}

func (b *subBuilder) add(contestant, problem string, at time.Duration, outcome model.Outcome) *model.Submission {
	b.n++
	b.subs = append(b.subs, model.Submission{
		ID:           string(rune('a'+b.n-1)) + contestant,
		ContestID:    "c1",
		ContestantID: contestant,
		ProblemID:    problem,
		CreatedAt:    start.Add(at),
		Verdict:      model.Verdict{Outcome: outcome},
	})
	return &b.subs[len(b.subs)-1]
}

func TestComputeEarlierAcceptanceRanksFirst(t *testing.T) {
	var b subBuilder
	b.add("bob", "A", 40*time.Minute, model.OutcomeAccepted)
	b.add("alice", "A", 10*time.Minute, model.OutcomeAccepted)

	entries := Compute(testContest(), testProblems(), b.subs, DefaultPolicy())
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	if entries[0].ContestantID != "alice" || entries[0].Rank != 1 || entries[1].Rank != 2 {
		t.Fatalf("unexpected order %+v", entries)
	}
	if entries[0].Penalty != 10 || entries[1].Penalty != 40 {
		t.Fatalf("unexpected penalties %d %d", entries[0].Penalty, entries[1].Penalty)
	}
}

func TestComputeWrongAttemptsAddPenalty(t *testing.T) {
	var b subBuilder
	b.add("alice", "B", 5*time.Minute, model.OutcomeWrongAnswer)
	b.add("alice", "B", 6*time.Minute, model.OutcomeTimeLimitExceeded)
	b.add("alice", "B", 30*time.Minute, model.OutcomeAccepted)
	// after solving nothing changes
	b.add("alice", "B", 31*time.Minute, model.OutcomeWrongAnswer)
	b.add("alice", "B", 32*time.Minute, model.OutcomeAccepted)

	entries := Compute(testContest(), testProblems(), b.subs, DefaultPolicy())
	e := entries[0]
	if e.Score != 200 || e.Solved != 1 || e.Penalty != 30+2*20 {
		t.Fatalf("unexpected entry %+v", e)
	}
	if !e.LastAcceptedAt.Equal(start.Add(30*time.Minute)) || e.Problems[0].WrongAttempts != 2 {
		t.Fatalf("unexpected problem result %+v", e.Problems[0])
	}
}

func TestComputeIdenticalKeysShareRank(t *testing.T) {
	var b subBuilder
	b.add("carol", "A", 20*time.Minute, model.OutcomeAccepted)
	b.add("bob", "A", 20*time.Minute, model.OutcomeAccepted)
	b.add("alice", "A", 50*time.Minute, model.OutcomeAccepted)
	b.add("dave", "A", 10*time.Minute, model.OutcomeWrongAnswer)

	entries := Compute(testContest(), testProblems(), b.subs, DefaultPolicy())
	want := []struct {
		id   string
		rank int
	}{{"bob", 1}, {"carol", 1}, {"alice", 3}, {"dave", 4}}
	for i, w := range want {
		if entries[i].ContestantID != w.id || entries[i].Rank != w.rank {
			t.Fatalf("position %d: got %s rank %d, want %s rank %d", i, entries[i].ContestantID, entries[i].Rank, w.id, w.rank)
		}
	}
}

func TestComputeIgnoresRejectedAndOutOfWindow(t *testing.T) {
	var b subBuilder
	rejected := b.add("alice", "A", 5*time.Minute, model.OutcomeSubmissionRejected)
	rejected.Verdict = model.Rejected(model.ReasonSystemFault, true)
	b.add("alice", "A", 3*time.Hour, model.OutcomeAccepted)
	b.add("alice", "A", -time.Minute, model.OutcomeAccepted)
	b.add("alice", "A", 20*time.Minute, model.OutcomeAccepted)

	entries := Compute(testContest(), testProblems(), b.subs, DefaultPolicy())
	if len(entries) != 1 || entries[0].Penalty != 20 || entries[0].Problems[0].WrongAttempts != 0 {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestComputeCompileErrorPolicy(t *testing.T) {
	var b subBuilder
	b.add("alice", "A", 1*time.Minute, model.OutcomeCompileError)
	b.add("alice", "A", 10*time.Minute, model.OutcomeAccepted)

	forgiving := Compute(testContest(), testProblems(), b.subs, DefaultPolicy())
	if forgiving[0].Penalty != 10 {
		t.Fatalf("compile errors should be free by default, got %d", forgiving[0].Penalty)
	}
	strict := DefaultPolicy()
	strict.CountCompileErrors = true
	counted := Compute(testContest(), testProblems(), b.subs, strict)
	if counted[0].Penalty != 30 {
		t.Fatalf("compile error should cost 20 minutes, got %d", counted[0].Penalty)
	}
}

func TestComputePartialCredit(t *testing.T) {
	problems := []model.Problem{{ID: "A", PartialCredit: true}, {ID: "B"}}
	var b subBuilder
	first := b.add("alice", "A", time.Minute, model.OutcomeWrongAnswer)
	first.Verdict.Passed, first.Verdict.Total, first.Verdict.Complete = 1, 4, true
	second := b.add("alice", "A", 2*time.Minute, model.OutcomeWrongAnswer)
	second.Verdict.Passed, second.Verdict.Total, second.Verdict.Complete = 3, 4, true
	stopped := b.add("alice", "A", 3*time.Minute, model.OutcomeTimeLimitExceeded)
	stopped.Verdict.Passed, stopped.Verdict.Total = 3, 4
	noCredit := b.add("alice", "B", 4*time.Minute, model.OutcomeWrongAnswer)
	noCredit.Verdict.Passed, noCredit.Verdict.Total, noCredit.Verdict.Complete = 1, 2, true

	entries := Compute(testContest(), problems, b.subs, DefaultPolicy())
	if entries[0].Score != 75 || entries[0].Penalty != 0 || entries[0].Solved != 0 {
		t.Fatalf("expected best complete partial score 75, got %+v", entries[0])
	}
}

func TestComputeAcceptBeatsPartialCreditTie(t *testing.T) {
	problems := []model.Problem{{ID: "A", Points: 100, PartialCredit: true}, {ID: "B", Points: 50}}
	var b subBuilder
	partial := b.add("amy", "A", 10*time.Second, model.OutcomeWrongAnswer)
	partial.Verdict.Passed, partial.Verdict.Total, partial.Verdict.Complete = 1, 2, true
	b.add("bob", "B", 30*time.Second, model.OutcomeAccepted)

	entries := Compute(testContest(), problems, b.subs, DefaultPolicy())
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %+v", entries)
	}
	for _, e := range entries {
		if e.Score != 50 || e.Penalty != 0 {
			t.Fatalf("expected a 50 point, zero penalty tie, got %+v", e)
		}
	}
	if entries[0].ContestantID != "bob" || entries[0].Rank != 1 || entries[1].Rank != 2 {
		t.Fatalf("an accept must outrank no accept at equal score, got %+v", entries)
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	var b subBuilder
	b.add("alice", "A", 10*time.Minute, model.OutcomeWrongAnswer)
	b.add("bob", "B", 11*time.Minute, model.OutcomeAccepted)
	b.add("alice", "A", 12*time.Minute, model.OutcomeAccepted)

	first := Compute(testContest(), testProblems(), b.subs, DefaultPolicy())
	reversed := make([]model.Submission, len(b.subs))
	for i, s := range b.subs {
		reversed[len(b.subs)-1-i] = s
	}
	second := Compute(testContest(), testProblems(), reversed, DefaultPolicy())
	for i := range first {
		if first[i].ContestantID != second[i].ContestantID || first[i].Score != second[i].Score || first[i].Penalty != second[i].Penalty {
			t.Fatalf("log order changed the board: %+v vs %+v", first[i], second[i])
		}
	}
}
