package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"codearena/internal/judge/sandbox"
	"codearena/internal/judge/sandbox/profile"
	"codearena/internal/judge/sandbox/result"
	"codearena/internal/judge/sandbox/spec"
	"codearena/internal/judge/sandbox/workspace"
	appErr "codearena/pkg/errors"
)

// fakeCompiler "compiles" by copying the source to the binary unless the
// source contains "syntax error".
type fakeCompiler struct {
	failures int
	calls    int
	lastSpec spec.RunSpec
}

func (f *fakeCompiler) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	f.calls++
	f.lastSpec = runSpec
	if f.failures > 0 {
		f.failures--
		return result.RunResult{}, errors.New("toolchain unavailable")
	}
	dir := runSpec.BindMounts[0].Source
	src, err := os.ReadFile(filepath.Join(dir, "main.c"))
	if err != nil {
		return result.RunResult{}, err
	}
	if strings.Contains(string(src), "syntax error") {
		return result.RunResult{ExitCode: 1, Stderr: "main.c:1:1: error: expected ';'\n"}, nil
	}
	if err := os.WriteFile(filepath.Join(dir, "main"), src, 0o755); err != nil {
		return result.RunResult{}, err
	}
	return result.RunResult{CPUTimeMs: 120, MemoryBytes: 2048}, nil
}

type recordingSink struct {
	saved map[string]string
}

func (s *recordingSink) SaveDiagnostics(ctx context.Context, submissionID, diagnostics string) error {
	if s.saved == nil {
		s.saved = make(map[string]string)
	}
	s.saved[submissionID] = diagnostics
	return nil
}

type compileCounter struct {
	calls int
	ok    []bool
}

func (c *compileCounter) ObserveCompile(ctx context.Context, languageID string, ok bool, timeMs int64, memoryKB int64) {
	c.calls++
	c.ok = append(c.ok, ok)
}

func (c *compileCounter) ObserveRun(context.Context, string, string, int64, int64) {}

func newTestBuilder(t *testing.T, eng *fakeCompiler, opts ...Option) (*Builder, string) {
	t.Helper()
	reg, err := profile.NewRegistry(profile.DefaultLanguages(), nil, "", "")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	root := t.TempDir()
	ws, err := workspace.NewManager(root)
	if err != nil {
		t.Fatalf("workspace: %v", err)
	}
	opts = append([]Option{WithRetry(sandbox.RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})}, opts...)
	return NewBuilder(eng, reg, ws, opts...), root
}

func TestBuildCompiledLanguage(t *testing.T) {
	eng := &fakeCompiler{}
	metrics := &compileCounter{}
	b, root := newTestBuilder(t, eng, WithMetrics(metrics))

	res, err := b.Build(context.Background(), Request{SubmissionID: "s1", Source: "int main(){}", Language: "c"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !res.OK || res.Artifact == nil {
		t.Fatalf("expected successful build, got %+v", res)
	}
	if res.TimeMs != 120 || res.MemoryKB != 2 {
		t.Fatalf("unexpected measurements: %+v", res)
	}
	if eng.lastSpec.Profile != "c:compile" || eng.lastSpec.Limits.CPUTimeMs != profile.DefaultCompileLimits().CPUTimeMs {
		t.Fatalf("compile must use the compile profile: %+v", eng.lastSpec)
	}
	data, err := os.ReadFile(res.Artifact.Program.ArtifactPath)
	if err != nil || string(data) != "int main(){}" {
		t.Fatalf("artifact not produced: %q %v", data, err)
	}
	if err := res.Artifact.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := res.Artifact.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if entries, _ := os.ReadDir(root); len(entries) != 0 {
		t.Fatalf("build workspace left behind: %v", entries)
	}
	if metrics.calls != 1 || !metrics.ok[0] {
		t.Fatalf("expected one successful compile observation, got %+v", metrics)
	}
}

func TestBuildCompileErrorKeepsDiagnostics(t *testing.T) {
	eng := &fakeCompiler{}
	sink := &recordingSink{}
	b, root := newTestBuilder(t, eng, WithDiagnosticsSink(sink))

	res, err := b.Build(context.Background(), Request{SubmissionID: "s2", Source: "syntax error", Language: "c"})
	if err != nil {
		t.Fatalf("compile error must not be a Go error: %v", err)
	}
	if res.OK || res.Artifact != nil {
		t.Fatalf("expected compile error, got %+v", res)
	}
	if res.Diagnostics != "main.c:1:1: error: expected ';'\n" {
		t.Fatalf("diagnostics not verbatim: %q", res.Diagnostics)
	}
	if sink.saved["s2"] != res.Diagnostics {
		t.Fatalf("diagnostics not archived: %+v", sink.saved)
	}
	if entries, _ := os.ReadDir(root); len(entries) != 0 {
		t.Fatalf("failed build left workspace: %v", entries)
	}
}

func TestBuildInterpretedIsIdentityWithTelemetry(t *testing.T) {
	eng := &fakeCompiler{}
	metrics := &compileCounter{}
	b, _ := newTestBuilder(t, eng, WithMetrics(metrics))

	res, err := b.Build(context.Background(), Request{SubmissionID: "s3", Source: "print(1)", Language: "python"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer res.Artifact.Release()
	if !res.OK || eng.calls != 0 {
		t.Fatalf("interpreted build must not invoke a toolchain: ok=%v calls=%d", res.OK, eng.calls)
	}
	data, err := os.ReadFile(res.Artifact.Program.ArtifactPath)
	if err != nil || string(data) != "print(1)" {
		t.Fatalf("artifact should be the source: %q %v", data, err)
	}
	if metrics.calls != 1 {
		t.Fatalf("build telemetry must still be emitted, got %d", metrics.calls)
	}
}

func TestBuildRetriesToolchainFaults(t *testing.T) {
	eng := &fakeCompiler{failures: 1}
	b, _ := newTestBuilder(t, eng)
	res, err := b.Build(context.Background(), Request{SubmissionID: "s4", Source: "ok", Language: "c"})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	defer res.Artifact.Release()
	if eng.calls != 2 || !res.OK {
		t.Fatalf("expected two attempts and success, got %d %+v", eng.calls, res)
	}

	eng = &fakeCompiler{failures: 10}
	b, _ = newTestBuilder(t, eng)
	if _, err := b.Build(context.Background(), Request{SubmissionID: "s5", Source: "ok", Language: "c"}); !appErr.Is(err, appErr.JudgeSystemError) {
		t.Fatalf("expected JudgeSystemError, got %v", err)
	}
}

func TestBuildSameSubmissionGetsSeparateWorkspaces(t *testing.T) {
	cases := []struct {
		language string
		source   string
	}{
		{language: "c", source: "int main(){}"},
		{language: "python", source: "print(1)"},
	}
	for _, tc := range cases {
		t.Run(tc.language, func(t *testing.T) {
			b, _ := newTestBuilder(t, &fakeCompiler{})
			req := Request{SubmissionID: "dup", Source: tc.source, Language: tc.language}

			first, err := b.Build(context.Background(), req)
			if err != nil {
				t.Fatalf("first build: %v", err)
			}
			second, err := b.Build(context.Background(), req)
			if err != nil {
				t.Fatalf("redelivered build: %v", err)
			}
			if first.Artifact.Program.ArtifactPath == second.Artifact.Program.ArtifactPath {
				t.Fatalf("redelivered build reused workspace %s", first.Artifact.Program.ArtifactPath)
			}
			if err := first.Artifact.Release(); err != nil {
				t.Fatalf("release: %v", err)
			}
			data, err := os.ReadFile(second.Artifact.Program.ArtifactPath)
			if err != nil || string(data) != tc.source {
				t.Fatalf("releasing one build must not touch the other: %q %v", data, err)
			}
			_ = second.Artifact.Release()
		})
	}
}

func TestBuildUnknownLanguage(t *testing.T) {
	b, _ := newTestBuilder(t, &fakeCompiler{})
	if _, err := b.Build(context.Background(), Request{SubmissionID: "s6", Source: "x", Language: "cobol"}); !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
}
