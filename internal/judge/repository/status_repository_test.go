package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"codearena/internal/common/cache"
	"codearena/internal/judge/model"
	appErr "codearena/pkg/errors"
)

func newStatusRepo(t *testing.T) (*StatusRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return NewStatusRepository(c, time.Hour), mr
}

func TestStatusRepositorySaveAndGet(t *testing.T) {
	repo, mr := newStatusRepo(t)
	ctx := context.Background()

	update := model.StatusUpdate{SubmissionID: "s1", Stage: model.StageExecuting, CaseIndex: 2, TotalCases: 3}
	if err := repo.Save(ctx, update); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := repo.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Stage != model.StageExecuting || got.CaseIndex != 2 || got.UpdatedAt == 0 {
		t.Fatalf("unexpected status %+v", got)
	}
	if ttl := mr.TTL(statusKeyPrefix + "s1"); ttl != time.Hour {
		t.Fatalf("expected ttl of one hour, got %v", ttl)
	}
}

func TestStatusRepositoryKeepsTerminalStage(t *testing.T) {
	repo, _ := newStatusRepo(t)
	ctx := context.Background()

	final := model.StatusUpdate{
		SubmissionID: "s1",
		Stage:        model.StageFinalized,
		Verdict:      &model.Verdict{Outcome: model.OutcomeAccepted},
	}
	if err := repo.Save(ctx, final); err != nil {
		t.Fatalf("save final: %v", err)
	}
	if err := repo.Save(ctx, model.StatusUpdate{SubmissionID: "s1", Stage: model.StageExecuting}); err != nil {
		t.Fatalf("save late progress: %v", err)
	}
	got, err := repo.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Stage != model.StageFinalized || got.Verdict == nil || got.Verdict.Outcome != model.OutcomeAccepted {
		t.Fatalf("terminal status was overwritten: %+v", got)
	}
}

func TestStatusRepositoryMissing(t *testing.T) {
	repo, _ := newStatusRepo(t)
	_, err := repo.Get(context.Background(), "nope")
	if !appErr.Is(err, appErr.SubmissionNotFound) {
		t.Fatalf("expected SubmissionNotFound, got %v", err)
	}
	if err := repo.Save(context.Background(), model.StatusUpdate{}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
