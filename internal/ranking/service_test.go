package ranking

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"codearena/internal/common/cache"
	"codearena/internal/common/mq"
	"codearena/internal/judge/model"
	"codearena/internal/judge/repository"
	appErr "codearena/pkg/errors"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newRankingService(t *testing.T) (*Service, *repository.MemoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	store := repository.NewMemoryStore()
	for _, p := range testProblems() {
		store.PutProblem(p)
	}
	if err := store.PutContest(testContest()); err != nil {
		t.Fatalf("put contest: %v", err)
	}
	svc := NewService(store, store, c, DefaultPolicy(), Config{TTL: time.Minute})
	svc.clock = fixedClock{now: start.Add(time.Hour)}
	return svc, store, mr
}

func appendSub(t *testing.T, store *repository.MemoryStore, id, contestant string, at time.Duration, outcome model.Outcome) *model.Submission {
	t.Helper()
	sub := &model.Submission{
		ID:           id,
		ContestID:    "c1",
		ContestantID: contestant,
		ProblemID:    "A",
		CreatedAt:    start.Add(at),
		Verdict:      model.Verdict{Outcome: outcome},
	}
	if err := store.Append(context.Background(), sub); err != nil {
		t.Fatalf("append: %v", err)
	}
	return sub
}

func TestServiceCachesUntilVerdictEvent(t *testing.T) {
	svc, store, mr := newRankingService(t)
	ctx := context.Background()
	appendSub(t, store, "s1", "alice", 10*time.Minute, model.OutcomeAccepted)

	entries, err := svc.Rank(ctx, "c1")
	if err != nil || len(entries) != 1 {
		t.Fatalf("rank: %+v %v", entries, err)
	}
	if !mr.Exists(rankingKey("c1")) {
		t.Fatalf("board should be cached")
	}

	late := appendSub(t, store, "s2", "bob", 5*time.Minute, model.OutcomeAccepted)
	cached, _ := svc.Rank(ctx, "c1")
	if len(cached) != 1 {
		t.Fatalf("expected the cached board until invalidation, got %d entries", len(cached))
	}

	publisher := &capturingQueue{}
	if err := repository.NewMQVerdictPublisher(publisher, "judge.verdict").PublishFinal(ctx, late); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := svc.HandleVerdictEvent(ctx, publisher.msg); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	fresh, err := svc.Rank(ctx, "c1")
	if err != nil || len(fresh) != 2 || fresh[0].ContestantID != "bob" {
		t.Fatalf("expected recomputed board led by bob, got %+v %v", fresh, err)
	}
}

func TestServiceRejectsScheduledContest(t *testing.T) {
	svc, _, _ := newRankingService(t)
	svc.clock = fixedClock{now: start.Add(-time.Minute)}
	if _, err := svc.Rank(context.Background(), "c1"); !appErr.Is(err, appErr.RankingNotAvailable) {
		t.Fatalf("expected RankingNotAvailable, got %v", err)
	}
}

func TestServiceWithoutCache(t *testing.T) {
	store := repository.NewMemoryStore()
	for _, p := range testProblems() {
		store.PutProblem(p)
	}
	if err := store.PutContest(testContest()); err != nil {
		t.Fatalf("put contest: %v", err)
	}
	appendSub(t, store, "s1", "alice", time.Minute, model.OutcomeAccepted)
	svc := NewService(store, store, nil, DefaultPolicy(), Config{})
	svc.clock = fixedClock{now: start.Add(time.Hour)}

	entries, err := svc.Rank(context.Background(), "c1")
	if err != nil || len(entries) != 1 || entries[0].Score != 100 {
		t.Fatalf("unexpected board %+v %v", entries, err)
	}
	if _, err := svc.Rank(context.Background(), "missing"); !appErr.Is(err, appErr.ContestNotFound) {
		t.Fatalf("expected ContestNotFound, got %v", err)
	}
}

func TestServiceReleasesRebuildLock(t *testing.T) {
	svc, store, mr := newRankingService(t)
	appendSub(t, store, "s1", "alice", time.Minute, model.OutcomeAccepted)
	if _, err := svc.Rank(context.Background(), "c1"); err != nil {
		t.Fatalf("rank: %v", err)
	}
	if mr.Exists(rankingLockPrefix + "c1") {
		t.Fatalf("rebuild lock should be released")
	}
}

func TestServiceWaitsForLockHolderBoard(t *testing.T) {
	svc, store, mr := newRankingService(t)
	svc.lockWait = time.Second
	appendSub(t, store, "s1", "alice", time.Minute, model.OutcomeAccepted)
	if err := mr.Set(rankingLockPrefix+"c1", "1"); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	board, err := marshalEntries([]Entry{{Rank: 1, ContestantID: "zed"}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	timer := time.AfterFunc(50*time.Millisecond, func() { _ = mr.Set(rankingKey("c1"), board) })
	defer timer.Stop()

	entries, err := svc.Rank(context.Background(), "c1")
	if err != nil || len(entries) != 1 || entries[0].ContestantID != "zed" {
		t.Fatalf("expected the lock holder's board, got %+v %v", entries, err)
	}
}

func TestServiceComputesWhenLockHolderStalls(t *testing.T) {
	svc, store, mr := newRankingService(t)
	svc.lockWait = 60 * time.Millisecond
	appendSub(t, store, "s1", "alice", time.Minute, model.OutcomeAccepted)
	if err := mr.Set(rankingLockPrefix+"c1", "1"); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	entries, err := svc.Rank(context.Background(), "c1")
	if err != nil || len(entries) != 1 || entries[0].ContestantID != "alice" {
		t.Fatalf("expected a computed board, got %+v %v", entries, err)
	}
	if !mr.Exists(rankingLockPrefix + "c1") {
		t.Fatalf("a foreign lock must not be released")
	}
}

type capturingQueue struct {
	mq.MessageQueue
	msg *mq.Message
}

func (q *capturingQueue) Publish(_ context.Context, _ string, msg *mq.Message) error {
	q.msg = msg
	return nil
}
