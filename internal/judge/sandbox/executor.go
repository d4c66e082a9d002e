// Package sandbox runs untrusted programs one test case at a time.
package sandbox

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"codearena/internal/judge/sandbox/engine"
	"codearena/internal/judge/sandbox/observer"
	"codearena/internal/judge/sandbox/profile"
	"codearena/internal/judge/sandbox/result"
	"codearena/internal/judge/sandbox/spec"
	"codearena/internal/judge/sandbox/workspace"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"
)

const (
	defaultMaxRetries     = 2
	defaultInitialBackoff = 200 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Second
)

// Program is a build artifact ready to be executed.
type Program struct {
	SubmissionID string
	Language     profile.LanguageSpec
	// ArtifactPath is the host path of the binary, or of the source file for
	// interpreted languages.
	ArtifactPath string
}

// RetryConfig bounds how often a sandbox fault is retried.
type RetryConfig struct {
	MaxRetries     int           `yaml:"maxRetries"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
}

// applyDefaults fills zero fields. A negative MaxRetries disables retries.
func (c *RetryConfig) applyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
}

// Executor runs one program against one input in a fresh workspace.
type Executor struct {
	eng        engine.Engine
	workspaces *workspace.Manager
	metrics    observer.MetricsRecorder
	retry      RetryConfig
	seq        atomic.Uint64
}

// NewExecutor creates an executor backed by the sandbox engine.
func NewExecutor(eng engine.Engine, workspaces *workspace.Manager, metrics observer.MetricsRecorder, retry RetryConfig) *Executor {
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	retry.applyDefaults()
	return &Executor{eng: eng, workspaces: workspaces, metrics: metrics, retry: retry}
}

// Execute runs program with input on stdin under limits. Contestant faults
// are reported through the Termination of the result; a non-nil error means
// the sandbox kept failing after every retry and carries JudgeSystemError.
func (e *Executor) Execute(ctx context.Context, program Program, input string, limits spec.ResourceLimit) (result.ExecutionResult, error) {
	if program.SubmissionID == "" {
		return result.ExecutionResult{}, appErr.ValidationError("submission_id", "required")
	}
	if program.ArtifactPath == "" {
		return result.ExecutionResult{}, appErr.ValidationError("artifact_path", "required")
	}
	limits = limits.Finalize()
	runID := "run-" + strconv.FormatUint(e.seq.Add(1), 10)

	var res result.ExecutionResult
	attempts, err := Retry(ctx, e.retry, func(attempt int) error {
		var err error
		res, err = e.executeOnce(ctx, program, input, limits, fmt.Sprintf("%s-%d", runID, attempt))
		if err != nil {
			logger.Warn(ctx, "sandbox attempt failed",
				zap.String("run_id", runID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	})
	if err != nil {
		e.metrics.ObserveRun(ctx, program.Language.ID, string(result.TerminationSystemFault), 0, 0)
		return result.SystemFault(err.Error()), appErr.Wrapf(err, appErr.JudgeSystemError,
			"sandbox failed after %d attempts", attempts)
	}
	e.metrics.ObserveRun(ctx, program.Language.ID, string(res.Termination), res.CPUTimeMs, res.PeakMemoryBytes)
	return res, nil
}

// Retry runs op until it succeeds, returns a backoff.Permanent error, the
// context ends or cfg.MaxRetries retries are used up. Delays grow
// exponentially without jitter. It returns the number of attempts made.
func Retry(ctx context.Context, cfg RetryConfig, op func(attempt int) error) (int, error) {
	cfg.applyDefaults()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	retries := uint64(0)
	if cfg.MaxRetries > 0 {
		retries = uint64(cfg.MaxRetries)
	}
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		return op(attempt)
	}, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx))
	return attempt, err
}

func (e *Executor) executeOnce(ctx context.Context, program Program, input string, limits spec.ResourceLimit, runID string) (result.ExecutionResult, error) {
	layout, err := e.workspaces.Create(program.SubmissionID, runID)
	if err != nil {
		return result.ExecutionResult{}, err
	}
	defer func() {
		if err := e.workspaces.Remove(layout); err != nil {
			logger.Warn(ctx, "remove workspace failed", zap.String("dir", layout.RootDir), zap.Error(err))
		}
	}()

	artifact := program.Language.ArtifactFile()
	if err := layout.CopyIn(program.ArtifactPath, artifact, 0o755); err != nil {
		return result.ExecutionResult{}, backoff.Permanent(err)
	}
	if err := layout.WriteFile(workspace.InputName, []byte(input), 0o644); err != nil {
		return result.ExecutionResult{}, fmt.Errorf("write input: %w", err)
	}
	cmd, err := program.Language.RunCommand(workspace.ContainerWorkDir)
	if err != nil {
		return result.ExecutionResult{}, backoff.Permanent(err)
	}

	runSpec := spec.RunSpec{
		SubmissionID: program.SubmissionID,
		RunID:        runID,
		WorkDir:      workspace.ContainerWorkDir,
		Cmd:          cmd,
		Env:          program.Language.Env,
		StdinPath:    workspace.ContainerPath(workspace.InputName),
		StdoutPath:   workspace.ContainerPath(workspace.OutputName),
		StderrPath:   workspace.ContainerPath(workspace.RuntimeLogName),
		Profile:      profile.Name(program.Language.ID, profile.TaskTypeRun),
		Limits:       limits,
		BindMounts: []spec.MountSpec{{
			Source: layout.RootDir,
			Target: workspace.ContainerWorkDir,
		}},
	}
	raw, err := e.eng.Run(ctx, runSpec)
	if err != nil {
		return result.ExecutionResult{}, err
	}
	return result.Classify(raw, limits), nil
}
