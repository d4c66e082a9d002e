package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"codearena/internal/common/cache"
	"codearena/internal/judge/build"
	"codearena/internal/judge/model"
	"codearena/internal/judge/pipeline"
	"codearena/internal/judge/repository"
	"codearena/internal/judge/sandbox"
	"codearena/internal/judge/sandbox/profile"
	"codearena/internal/judge/sandbox/result"
	"codearena/internal/judge/sandbox/spec"
	appErr "codearena/pkg/errors"
)

type passBuilder struct{}

func (passBuilder) Build(_ context.Context, req build.Request) (build.Result, error) {
	return build.Result{OK: true, Artifact: &build.Artifact{Program: sandbox.Program{
		SubmissionID: req.SubmissionID,
		Language:     profile.LanguageSpec{ID: req.Language},
		ArtifactPath: "/tmp/" + req.SubmissionID,
	}}}, nil
}

// faultyExecutor fails every case like a sandbox whose engine is gone. With
// block set it first waits for the case context to end.
type faultyExecutor struct {
	block bool
}

func (e faultyExecutor) Execute(ctx context.Context, _ sandbox.Program, _ string, _ spec.ResourceLimit) (result.ExecutionResult, error) {
	if e.block {
		<-ctx.Done()
		return result.ExecutionResult{}, appErr.Wrapf(ctx.Err(), appErr.JudgeSystemError, "sandbox run interrupted")
	}
	return result.ExecutionResult{}, appErr.New(appErr.JudgeSystemError).WithMessage("sandbox engine unavailable")
}

type faultRig struct {
	svc    *Service
	status *repository.StatusRepository
	store  *repository.MemoryStore
	queue  *memoryQueue
}

func newFaultRig(t *testing.T, exec faultyExecutor, policy RequeuePolicy, timeout time.Duration) *faultRig {
	t.Helper()
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = redisCache.Close() })

	registry, err := profile.NewRegistry(profile.DefaultLanguages(), nil, "", "")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	rig := &faultRig{
		status: repository.NewStatusRepository(redisCache, time.Hour),
		store:  repository.NewMemoryStore(),
		queue:  &memoryQueue{},
	}
	rig.store.PutProblem(model.Problem{
		ID:        "two-sum",
		TestCases: []model.TestCase{{Input: "4 9\n2 7 11 15\n", ExpectedOutput: "0 1\n"}},
	})
	p, err := pipeline.New(pipeline.Deps{
		Problems:    rig.store,
		Submissions: rig.store,
		Builder:     passBuilder{},
		Executor:    exec,
		Languages:   registry,
		Reporter:    rig.status,
	}, pipeline.Options{CaseGrace: time.Second})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	pool := NewPool(p, 1, 4)
	pool.Start()
	t.Cleanup(pool.Stop)

	rig.svc, err = NewService(Config{
		Pool:         pool,
		Finalizer:    p,
		Status:       rig.status,
		Queue:        rig.queue,
		Requeue:      policy,
		JudgeTimeout: timeout,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return rig
}

func practiceRequest() model.SubmissionRequest {
	return model.SubmissionRequest{
		ContestantID: "alice",
		ProblemID:    "two-sum",
		Code:         "print(0, 1)",
		Language:     model.LanguagePython,
	}
}

func (r *faultRig) assertTerminalSystemFault(t *testing.T, id string) {
	t.Helper()
	status, err := r.status.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Stage != model.StageRejected || status.Verdict == nil || !status.Verdict.SystemFault {
		t.Fatalf("expected a terminal system fault status, got %+v", status)
	}
	stored, err := r.store.Get(context.Background(), id)
	if err != nil || stored.Verdict.Outcome != model.OutcomeSubmissionRejected {
		t.Fatalf("expected a recorded rejection, got %+v %v", stored, err)
	}
}

func TestJudgeFinalizesSystemFaultWithoutRetryTopic(t *testing.T) {
	rig := newFaultRig(t, faultyExecutor{}, RequeuePolicy{}, 0)

	sub, err := rig.svc.Judge(context.Background(), practiceRequest())
	if err != nil {
		t.Fatalf("a finalized fault is a verdict, got %v", err)
	}
	if sub.ID == "" || !sub.Verdict.SystemFault || sub.Verdict.Outcome != model.OutcomeSubmissionRejected {
		t.Fatalf("unexpected submission %+v", sub)
	}
	rig.assertTerminalSystemFault(t, sub.ID)
}

func TestJudgeFinalizesWhenJudgeTimeoutExpires(t *testing.T) {
	rig := newFaultRig(t, faultyExecutor{block: true}, RequeuePolicy{}, 30*time.Millisecond)

	sub, err := rig.svc.Judge(context.Background(), practiceRequest())
	if err != nil {
		t.Fatalf("expected a recorded verdict, got %v", err)
	}
	rig.assertTerminalSystemFault(t, sub.ID)
}

func TestJudgeRequeuesSystemFaultThenFinalizes(t *testing.T) {
	policy := RequeuePolicy{Topic: "judge.retry", DeadLetterTopic: "judge.dead", MaxRetries: 1}
	rig := newFaultRig(t, faultyExecutor{}, policy, 0)
	ctx := context.Background()

	sub, err := rig.svc.Judge(ctx, practiceRequest())
	if !appErr.Is(err, appErr.SubmissionRequeued) {
		t.Fatalf("expected SubmissionRequeued, got %v", err)
	}
	if sub.ID == "" || sub.ContestantID != "alice" {
		t.Fatalf("requeued submission must keep its identity: %+v", sub)
	}
	status, err := rig.status.Get(ctx, sub.ID)
	if err != nil || status.Stage != model.StageRequeued {
		t.Fatalf("expected Requeued status, got %+v %v", status, err)
	}
	if _, err := rig.store.Get(ctx, sub.ID); !appErr.Is(err, appErr.NotFound) {
		t.Fatalf("nothing is recorded before the retry, got %v", err)
	}
	if len(rig.queue.published) != 1 || rig.queue.published[0].topic != "judge.retry" {
		t.Fatalf("expected one retry message, got %+v", rig.queue.published)
	}
	retry := rig.queue.last()
	var payload model.JudgeMessage
	if err := json.Unmarshal(retry.Body, &payload); err != nil {
		t.Fatalf("decode retry: %v", err)
	}
	if payload.Request.SubmissionID != sub.ID || payload.Request.SubmittedAt.IsZero() {
		t.Fatalf("retry must pin id and receipt time: %+v", payload.Request)
	}

	if err := rig.svc.HandleMessage(ctx, retry); err != nil {
		t.Fatalf("retry attempt: %v", err)
	}
	rig.assertTerminalSystemFault(t, sub.ID)
	if last := rig.queue.published[len(rig.queue.published)-1]; last.topic != "judge.dead" {
		t.Fatalf("exhausted retries must raise a dead letter, got %s", last.topic)
	}
}
