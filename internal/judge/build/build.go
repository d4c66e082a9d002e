// Package build turns submitted source into a runnable artifact.
package build

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"codearena/internal/judge/sandbox"
	"codearena/internal/judge/sandbox/engine"
	"codearena/internal/judge/sandbox/observer"
	"codearena/internal/judge/sandbox/profile"
	"codearena/internal/judge/sandbox/spec"
	"codearena/internal/judge/sandbox/workspace"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"
)

const (
	compileOutName     = "compile.out"
	maxDiagnosticBytes = 64 * 1024
)

// Request is one submission to build.
type Request struct {
	SubmissionID string
	Source       string
	Language     string
}

// Artifact is a built program. It lives in a build workspace until Release.
type Artifact struct {
	Program sandbox.Program

	workspaces *workspace.Manager
	layout     workspace.Layout
}

// Release removes the build workspace. It is safe to call more than once.
func (a *Artifact) Release() error {
	if a == nil || a.workspaces == nil {
		return nil
	}
	err := a.workspaces.Remove(a.layout)
	a.workspaces = nil
	return err
}

// Result is the outcome of a build. OK false means a compile error and
// Diagnostics holds the toolchain output verbatim.
type Result struct {
	OK          bool
	Artifact    *Artifact
	Diagnostics string
	TimeMs      int64
	MemoryKB    int64
}

// DiagnosticsSink keeps compile output beyond the submission's lifetime.
type DiagnosticsSink interface {
	SaveDiagnostics(ctx context.Context, submissionID, diagnostics string) error
}

// Builder compiles sources inside the same sandbox as execution.
type Builder struct {
	eng        engine.Engine
	registry   *profile.Registry
	workspaces *workspace.Manager
	metrics    observer.MetricsRecorder
	retry      sandbox.RetryConfig
	sink       DiagnosticsSink
	seq        atomic.Uint64
}

// Option configures a Builder.
type Option func(*Builder)

// WithMetrics sets the metrics recorder.
func WithMetrics(m observer.MetricsRecorder) Option {
	return func(b *Builder) {
		if m != nil {
			b.metrics = m
		}
	}
}

// WithRetry sets the retry policy for toolchain faults.
func WithRetry(cfg sandbox.RetryConfig) Option {
	return func(b *Builder) { b.retry = cfg }
}

// WithDiagnosticsSink archives compile errors.
func WithDiagnosticsSink(sink DiagnosticsSink) Option {
	return func(b *Builder) { b.sink = sink }
}

// NewBuilder creates a builder.
func NewBuilder(eng engine.Engine, registry *profile.Registry, workspaces *workspace.Manager, opts ...Option) *Builder {
	b := &Builder{
		eng:        eng,
		registry:   registry,
		workspaces: workspaces,
		metrics:    observer.NoopMetricsRecorder{},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build prepares req for execution. A compile error is a Result with OK
// false; an error return is reserved for system faults.
func (b *Builder) Build(ctx context.Context, req Request) (Result, error) {
	if req.SubmissionID == "" {
		return Result{}, appErr.ValidationError("submission_id", "required")
	}
	lang, err := b.registry.Language(req.Language)
	if err != nil {
		return Result{}, err
	}

	if !lang.CompileEnabled {
		layout, err := b.prepare(req, lang, b.runID(0))
		if err != nil {
			return Result{}, appErr.Wrapf(err, appErr.JudgeSystemError, "prepare source failed")
		}
		b.metrics.ObserveCompile(ctx, lang.ID, true, 0, 0)
		logger.Info(ctx, "build stage passed through interpreted source", zap.String("language", lang.ID))
		return Result{OK: true, Artifact: b.artifact(req, lang, layout, lang.SourceFile)}, nil
	}

	task, err := b.registry.Task(lang.ID, profile.TaskTypeCompile)
	if err != nil {
		return Result{}, err
	}
	cmd, err := lang.CompileCommand(workspace.ContainerWorkDir)
	if err != nil {
		return Result{}, appErr.Wrapf(err, appErr.JudgeSystemError, "compile command for %s", lang.ID)
	}
	limits := task.DefaultLimits.Finalize()

	var res Result
	var layout workspace.Layout
	attempts, err := sandbox.Retry(ctx, b.retry, func(attempt int) error {
		var err error
		layout, err = b.prepare(req, lang, b.runID(attempt))
		if err != nil {
			return err
		}
		res, err = b.compile(ctx, req, lang, layout, cmd, limits)
		if err != nil {
			_ = b.workspaces.Remove(layout)
			logger.Warn(ctx, "compile attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})
	if err != nil {
		b.metrics.ObserveCompile(ctx, lang.ID, false, 0, 0)
		return Result{}, appErr.Wrapf(err, appErr.JudgeSystemError, "build failed after %d attempts", attempts)
	}
	b.metrics.ObserveCompile(ctx, lang.ID, res.OK, res.TimeMs, res.MemoryKB)

	if !res.OK {
		_ = b.workspaces.Remove(layout)
		logger.Info(ctx, "compile error", zap.String("language", lang.ID), zap.Int("diagnostics_bytes", len(res.Diagnostics)))
		if b.sink != nil {
			if err := b.sink.SaveDiagnostics(ctx, req.SubmissionID, res.Diagnostics); err != nil {
				logger.Warn(ctx, "archive diagnostics failed", zap.Error(err))
			}
		}
		return res, nil
	}
	res.Artifact = b.artifact(req, lang, layout, lang.BinaryFile)
	return res, nil
}

// runID names a build workspace. Redelivered copies of one submission may
// build at the same time, so every call gets its own sequence number.
func (b *Builder) runID(attempt int) string {
	return fmt.Sprintf("build-%d-%d", b.seq.Add(1), attempt)
}

func (b *Builder) prepare(req Request, lang profile.LanguageSpec, runID string) (workspace.Layout, error) {
	layout, err := b.workspaces.Create(req.SubmissionID, runID)
	if err != nil {
		return workspace.Layout{}, err
	}
	if err := layout.WriteFile(lang.SourceFile, []byte(req.Source), 0o644); err != nil {
		_ = b.workspaces.Remove(layout)
		return workspace.Layout{}, fmt.Errorf("write source: %w", err)
	}
	return layout, nil
}

func (b *Builder) compile(ctx context.Context, req Request, lang profile.LanguageSpec, layout workspace.Layout, cmd []string, limits spec.ResourceLimit) (Result, error) {
	runSpec := spec.RunSpec{
		SubmissionID: req.SubmissionID,
		RunID:        layout.RunID,
		WorkDir:      workspace.ContainerWorkDir,
		Cmd:          cmd,
		Env:          lang.Env,
		StdoutPath:   workspace.ContainerPath(compileOutName),
		StderrPath:   workspace.ContainerPath(workspace.CompileLogName),
		Profile:      profile.Name(lang.ID, profile.TaskTypeCompile),
		Limits:       limits,
		BindMounts: []spec.MountSpec{{
			Source: layout.RootDir,
			Target: workspace.ContainerWorkDir,
		}},
	}
	raw, err := b.eng.Run(ctx, runSpec)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		TimeMs:      raw.CPUTimeMs,
		MemoryKB:    raw.MemoryBytes / 1024,
		Diagnostics: diagnostics(raw.Stderr, raw.Stdout),
	}
	switch {
	case raw.TimedOut:
		res.Diagnostics = strings.TrimSpace(res.Diagnostics + "\ncompilation timed out")
	case raw.OomKilled:
		res.Diagnostics = strings.TrimSpace(res.Diagnostics + "\ncompiler ran out of memory")
	case raw.ExitCode == 0:
		if _, err := os.Stat(layout.HostPath(lang.BinaryFile)); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				res.Diagnostics = strings.TrimSpace(res.Diagnostics + "\ncompiler produced no output file")
				return res, nil
			}
			return Result{}, fmt.Errorf("stat artifact: %w", err)
		}
		res.OK = true
	}
	return res, nil
}

func (b *Builder) artifact(req Request, lang profile.LanguageSpec, layout workspace.Layout, file string) *Artifact {
	return &Artifact{
		Program: sandbox.Program{
			SubmissionID: req.SubmissionID,
			Language:     lang,
			ArtifactPath: layout.HostPath(file),
		},
		workspaces: b.workspaces,
		layout:     layout,
	}
}

func diagnostics(stderr, stdout string) string {
	out := stderr
	if stdout != "" {
		if out != "" && !strings.HasSuffix(out, "\n") {
			out += "\n"
		}
		out += stdout
	}
	if len(out) > maxDiagnosticBytes {
		out = out[:maxDiagnosticBytes]
	}
	return out
}
