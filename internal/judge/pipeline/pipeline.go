// Package pipeline drives one submission from admission to its final verdict.
//
// The stages are Admitted, Building, Executing (once per case), Aggregating
// and Finalized. Rejected is reachable only from admission and CompileError
// only from Building; both are terminal.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"codearena/internal/judge/build"
	"codearena/internal/judge/compare"
	"codearena/internal/judge/model"
	"codearena/internal/judge/repository"
	"codearena/internal/judge/sandbox"
	"codearena/internal/judge/sandbox/profile"
	"codearena/internal/judge/sandbox/result"
	"codearena/internal/judge/sandbox/spec"
	"codearena/internal/judge/verdict"
	"codearena/internal/judge/window"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/contextkey"
	"codearena/pkg/utils/logger"
)

const defaultCaseGrace = 5 * time.Second

// Builder is the build stage.
type Builder interface {
	Build(ctx context.Context, req build.Request) (build.Result, error)
}

// Executor runs one program against one input.
type Executor interface {
	Execute(ctx context.Context, program sandbox.Program, input string, limits spec.ResourceLimit) (result.ExecutionResult, error)
}

// StatusReporter receives every stage transition.
type StatusReporter interface {
	Report(ctx context.Context, status model.StatusUpdate) error
}

// Deps wires the pipeline to its collaborators. Sources, Reporter,
// Publisher and Clock are optional.
type Deps struct {
	Problems    repository.ProblemRepository
	Submissions repository.SubmissionRepository
	Sources     repository.SourceFetcher
	Builder     Builder
	Executor    Executor
	Languages   *profile.Registry
	Reporter    StatusReporter
	Publisher   repository.VerdictPublisher
	Clock       window.Clock
}

// Options tunes judging.
type Options struct {
	// CaseGrace is added to the wall limit to form each case's deadline.
	CaseGrace time.Duration `yaml:"caseGrace"`
}

// Pipeline judges submissions. It holds no per-submission state and is safe
// for concurrent use.
type Pipeline struct {
	deps      Deps
	caseGrace time.Duration
	newID     func() string
	attempts  *attemptGate
}

// New validates deps and creates a pipeline.
func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Problems == nil:
		return nil, appErr.New(appErr.InvalidParams).WithMessage("problem repository is required")
	case deps.Submissions == nil:
		return nil, appErr.New(appErr.InvalidParams).WithMessage("submission repository is required")
	case deps.Builder == nil:
		return nil, appErr.New(appErr.InvalidParams).WithMessage("builder is required")
	case deps.Executor == nil:
		return nil, appErr.New(appErr.InvalidParams).WithMessage("executor is required")
	case deps.Languages == nil:
		return nil, appErr.New(appErr.InvalidParams).WithMessage("language registry is required")
	}
	if deps.Clock == nil {
		deps.Clock = window.SystemClock{}
	}
	if opts.CaseGrace <= 0 {
		opts.CaseGrace = defaultCaseGrace
	}
	return &Pipeline{deps: deps, caseGrace: opts.CaseGrace, newID: uuid.NewString, attempts: newAttemptGate()}, nil
}

// run is the state of one submission moving through the pipeline.
type run struct {
	submission model.Submission
	problem    model.Problem
	contest    *model.Contest
	// reservation is the attempt gate key held until the submission is
	// recorded or abandoned.
	reservation string
}

// Judge admits, builds, executes and aggregates one submission and records
// the result in the submission log.
//
// Contestant faults are verdicts. A rejected admission returns a
// SubmissionRejected submission and a nil error. A non-nil error means the
// request was malformed, its records could not be loaded, or the sandbox
// failed past its retries (JudgeSystemError); in the last case nothing is
// recorded and the caller may retry the same request.
func (p *Pipeline) Judge(ctx context.Context, req model.SubmissionRequest) (model.Submission, error) {
	if err := req.Validate(); err != nil {
		return model.Submission{}, err
	}
	if req.SubmissionID == "" {
		req.SubmissionID = p.newID()
	} else if existing, err := p.deps.Submissions.Get(ctx, req.SubmissionID); err == nil {
		// Redelivered request for a submission that already has its verdict.
		return existing, nil
	} else if !appErr.Is(err, appErr.NotFound) {
		return model.Submission{}, err
	}
	ctx = context.WithValue(ctx, contextkey.SubmissionID, req.SubmissionID)

	r, err := p.load(ctx, req)
	if err != nil {
		return model.Submission{}, err
	}

	if reason, err := p.admit(ctx, r); err != nil {
		return model.Submission{}, err
	} else if reason != "" {
		r.submission.Verdict = model.Rejected(reason, false)
		logger.Info(ctx, "submission rejected at admission", zap.String("reason", reason))
		return p.finish(ctx, r, model.StageRejected)
	}
	defer p.releaseAttempt(r)
	p.report(ctx, r, model.StageAdmitted, 0)

	p.report(ctx, r, model.StageBuilding, 0)
	built, err := p.deps.Builder.Build(ctx, build.Request{
		SubmissionID: r.submission.ID,
		Source:       r.submission.Code,
		Language:     string(r.submission.Language),
	})
	if err != nil {
		return p.systemFault(ctx, r, err)
	}
	if !built.OK {
		r.submission.Verdict = verdict.CompileError(built.Diagnostics, len(r.problem.TestCases))
		return p.finish(ctx, r, model.StageCompileError)
	}
	defer func() {
		if err := built.Artifact.Release(); err != nil {
			logger.Warn(ctx, "release build workspace failed", zap.Error(err))
		}
	}()

	cases, err := p.execute(ctx, r, built.Artifact.Program)
	if err != nil {
		return p.systemFault(ctx, r, err)
	}

	p.report(ctx, r, model.StageAggregating, len(cases))
	r.submission.Verdict = verdict.Aggregate(cases, len(r.problem.TestCases))
	return p.finish(ctx, r, model.StageFinalized)
}

func (p *Pipeline) load(ctx context.Context, req model.SubmissionRequest) (*run, error) {
	code := req.Code
	if code == "" {
		if p.deps.Sources == nil {
			return nil, appErr.ValidationError("source_key", "object storage is not configured")
		}
		var err error
		code, err = p.deps.Sources.FetchSource(ctx, req.SourceKey)
		if err != nil {
			return nil, err
		}
	}
	submittedAt := req.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = p.deps.Clock.Now()
	}

	problem, err := p.deps.Problems.GetProblem(ctx, req.ProblemID)
	if err != nil {
		return nil, err
	}
	r := &run{
		problem: problem,
		submission: model.Submission{
			ID:           req.SubmissionID,
			ContestantID: req.ContestantID,
			ProblemID:    req.ProblemID,
			ContestID:    req.ContestID,
			Code:         code,
			Language:     req.Language,
			CreatedAt:    submittedAt.UTC(),
		},
	}
	if req.ContestID != "" {
		contest, err := p.deps.Problems.GetContest(ctx, req.ContestID)
		if err != nil {
			return nil, err
		}
		r.contest = &contest
	}
	return r, nil
}

// admit returns a rejection reason, or "" when the submission may be judged.
// Practice submissions are always admitted.
func (p *Pipeline) admit(ctx context.Context, r *run) (string, error) {
	if r.contest == nil {
		return "", nil
	}
	if !r.contest.HasProblem(r.problem.ID) {
		return model.ReasonProblemNotInContest, nil
	}
	if err := window.Admit(r.contest, r.submission.CreatedAt); err != nil {
		if appErr.Is(err, appErr.ContestNotStarted) {
			return model.ReasonContestNotStarted, nil
		}
		return model.ReasonContestEnded, nil
	}
	if r.contest.MaxAttempts > 0 {
		key := attemptKey(r.contest.ID, r.submission.ContestantID, r.problem.ID)
		reserved, err := p.attempts.reserve(key, r.contest.MaxAttempts, func() (int, error) {
			return p.deps.Submissions.CountAttempts(ctx, r.contest.ID, r.submission.ContestantID, r.problem.ID)
		})
		if err != nil {
			return "", err
		}
		if !reserved {
			return model.ReasonAttemptLimit, nil
		}
		r.reservation = key
	}
	return "", nil
}

// releaseAttempt drops an attempt reservation that finish did not settle.
func (p *Pipeline) releaseAttempt(r *run) {
	if r.reservation == "" {
		return
	}
	_ = p.attempts.settle(r.reservation, nil)
	r.reservation = ""
}

// appendSubmission records the submission, settling its attempt
// reservation in the same step.
func (p *Pipeline) appendSubmission(ctx context.Context, r *run) error {
	record := func() error { return p.deps.Submissions.Append(ctx, &r.submission) }
	if r.reservation == "" {
		return record()
	}
	key := r.reservation
	r.reservation = ""
	return p.attempts.settle(key, record)
}

// execute runs the cases in test order. It stops after the first failure
// only when the problem asks for early exit.
func (p *Pipeline) execute(ctx context.Context, r *run, program sandbox.Program) ([]model.CaseResult, error) {
	limits, err := p.limits(r)
	if err != nil {
		return nil, err
	}
	policy := compare.Lenient
	if r.contest != nil {
		policy = compare.PolicyFor(r.contest.StrictValidation)
	}

	cases := make([]model.CaseResult, 0, len(r.problem.TestCases))
	for i, tc := range r.problem.TestCases {
		p.report(ctx, r, model.StageExecuting, i+1)
		res, err := p.executeCase(ctx, program, tc.Input, limits)
		if err != nil {
			return nil, err
		}
		cr := verdict.JudgeCase(i+1, policy, tc.ExpectedOutput, res)
		cases = append(cases, cr)
		if cr.Outcome != model.OutcomeAccepted && r.problem.EarlyExit {
			logger.Debug(ctx, "early exit after failed case", zap.Int("case", i+1), zap.String("outcome", string(cr.Outcome)))
			break
		}
	}
	return cases, nil
}

func (p *Pipeline) executeCase(ctx context.Context, program sandbox.Program, input string, limits spec.ResourceLimit) (result.ExecutionResult, error) {
	deadline := time.Duration(limits.WallTimeMs)*time.Millisecond + p.caseGrace
	caseCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()
	return p.deps.Executor.Execute(caseCtx, program, input, limits)
}

// limits layers the run profile defaults, the problem, the contest and
// finally the language multipliers.
func (p *Pipeline) limits(r *run) (spec.ResourceLimit, error) {
	lang, err := p.deps.Languages.Language(string(r.submission.Language))
	if err != nil {
		return spec.ResourceLimit{}, err
	}
	task, err := p.deps.Languages.Task(lang.ID, profile.TaskTypeRun)
	if err != nil {
		return spec.ResourceLimit{}, err
	}
	var contest spec.ResourceLimit
	if r.contest != nil {
		contest = toResourceLimit(r.contest.Limits)
	}
	return lang.Scale(spec.Effective(task.DefaultLimits, toResourceLimit(r.problem.Limits), contest)), nil
}

func toResourceLimit(l model.Limits) spec.ResourceLimit {
	return spec.ResourceLimit{CPUTimeMs: l.CPUTimeMs, WallTimeMs: l.WallTimeMs, MemoryBytes: l.MemoryBytes}
}

// systemFault hands back a failure without recording anything. Only
// platform faults carry the system fault verdict; anything else is a
// configuration problem the caller cannot fix by retrying.
func (p *Pipeline) systemFault(ctx context.Context, r *run, err error) (model.Submission, error) {
	if !appErr.IsSystem(err) {
		logger.Error(ctx, "judging aborted", zap.Error(err))
		return model.Submission{}, err
	}
	logger.Warn(ctx, "judging interrupted by system fault", zap.Error(err))
	r.submission.Verdict = model.Rejected(model.ReasonSystemFault, true)
	return r.submission, err
}

// Finalize records a terminal system fault rejection for a submission the
// caller gave up retrying. It is idempotent per submission id.
func (p *Pipeline) Finalize(ctx context.Context, req model.SubmissionRequest, cause error) (model.Submission, error) {
	if req.SubmissionID == "" {
		return model.Submission{}, appErr.ValidationError("submission_id", "required")
	}
	if existing, err := p.deps.Submissions.Get(ctx, req.SubmissionID); err == nil {
		return existing, nil
	}
	ctx = context.WithValue(ctx, contextkey.SubmissionID, req.SubmissionID)
	submittedAt := req.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = p.deps.Clock.Now()
	}
	r := &run{
		submission: model.Submission{
			ID:           req.SubmissionID,
			ContestantID: req.ContestantID,
			ProblemID:    req.ProblemID,
			ContestID:    req.ContestID,
			Code:         req.Code,
			Language:     req.Language,
			CreatedAt:    submittedAt.UTC(),
			Verdict:      model.Rejected(model.ReasonSystemFault, true),
		},
	}
	logger.Error(ctx, "submission abandoned after repeated system faults", zap.Error(cause))
	return p.finish(ctx, r, model.StageRejected)
}

// finish appends the submission, reports the terminal stage and publishes
// the final event. Reporting and publishing failures are logged only: the
// log entry is the record of truth.
func (p *Pipeline) finish(ctx context.Context, r *run, stage model.Stage) (model.Submission, error) {
	if err := p.appendSubmission(ctx, r); err != nil {
		if !appErr.Is(err, appErr.SubmissionDuplicate) {
			return model.Submission{}, err
		}
		stored, getErr := p.deps.Submissions.Get(ctx, r.submission.ID)
		if getErr != nil {
			return model.Submission{}, err
		}
		return stored, nil
	}
	p.report(ctx, r, stage, len(r.submission.Verdict.Cases))
	if p.deps.Publisher != nil {
		if err := p.deps.Publisher.PublishFinal(ctx, &r.submission); err != nil {
			logger.Warn(ctx, "publish final verdict failed", zap.Error(err))
		}
	}
	logger.Info(ctx, "submission judged",
		zap.String("outcome", string(r.submission.Verdict.Outcome)),
		zap.Int("passed", r.submission.Verdict.Passed),
		zap.Int("total", r.submission.Verdict.Total),
		zap.Int64("time_ms", r.submission.Verdict.TimeMs),
	)
	return r.submission, nil
}

func (p *Pipeline) report(ctx context.Context, r *run, stage model.Stage, caseIndex int) {
	if p.deps.Reporter == nil {
		return
	}
	update := model.StatusUpdate{
		SubmissionID: r.submission.ID,
		ContestantID: r.submission.ContestantID,
		ProblemID:    r.submission.ProblemID,
		ContestID:    r.submission.ContestID,
		Stage:        stage,
		CaseIndex:    caseIndex,
		TotalCases:   len(r.problem.TestCases),
		UpdatedAt:    p.deps.Clock.Now().Unix(),
	}
	if stage.Terminal() {
		v := r.submission.Verdict
		update.Verdict = &v
	}
	if err := p.deps.Reporter.Report(ctx, update); err != nil {
		logger.Warn(ctx, "report status failed", zap.String("stage", string(stage)), zap.Error(err))
	}
}
