//go:build linux

package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"codearena/internal/judge/sandbox/profile"
	"codearena/internal/judge/sandbox/spec"
)

type staticResolver struct{}

func (staticResolver) Resolve(string) (profile.IsolationProfile, error) {
	return profile.IsolationProfile{}, nil
}

func TestResolveHostPath(t *testing.T) {
	runSpec := spec.RunSpec{BindMounts: []spec.MountSpec{
		{Source: "/host/ws", Target: "/work"},
		{Source: "/host/data/in.txt", Target: "/work/input.txt"},
	}}
	tests := []struct {
		in   string
		want string
	}{
		{in: "/work/output.txt", want: "/host/ws/output.txt"},
		{in: "/work/input.txt", want: "/host/data/in.txt"},
		{in: "/workspace/x", want: "/workspace/x"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		if got := resolveHostPath(tt.in, runSpec); got != tt.want {
			t.Fatalf("resolveHostPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestApplyCgroupLimitsWritesControlFiles(t *testing.T) {
	root := t.TempDir()
	path, cleanup, err := createRunCgroup(root, "sub", "run-1")
	if err != nil {
		t.Fatalf("create cgroup: %v", err)
	}
	defer cleanup()
	if err := applyCgroupLimits(path, spec.ResourceLimit{MemoryBytes: 1 << 20, PIDs: 8}); err != nil {
		t.Fatalf("apply limits: %v", err)
	}
	assertFile(t, filepath.Join(path, "memory.max"), "1048576")
	assertFile(t, filepath.Join(path, "memory.swap.max"), "0")
	assertFile(t, filepath.Join(path, "pids.max"), "8")
}

func TestWasOomKilled(t *testing.T) {
	dir := t.TempDir()
	if wasOomKilled(dir) {
		t.Fatalf("missing memory.events must not report oom")
	}
	if err := os.WriteFile(filepath.Join(dir, "memory.events"), []byte("low 0\nhigh 0\nmax 3\noom 1\noom_kill 1\n"), 0o600); err != nil {
		t.Fatalf("write events: %v", err)
	}
	if !wasOomKilled(dir) {
		t.Fatalf("expected oom kill to be detected")
	}
}

func TestMemoryPeakPrefersCgroup(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "memory.peak"), []byte("4096\n"), 0o600); err != nil {
		t.Fatalf("write peak: %v", err)
	}
	if got := memoryPeakBytes(dir, nil); got != 4096 {
		t.Fatalf("expected 4096, got %d", got)
	}
	if got := memoryPeakBytes("", nil); got != 0 {
		t.Fatalf("expected 0 without state, got %d", got)
	}
}

func TestReadLimitedFileTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out")
	if err := os.WriteFile(path, []byte(strings.Repeat("a", 100)), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readLimitedFile(path, 10); len(got) != 10 {
		t.Fatalf("expected 10 bytes, got %d", len(got))
	}
	if got := fileSize(path); got != 100 {
		t.Fatalf("expected size 100, got %d", got)
	}
}

func TestRunRejectsIncompleteSpec(t *testing.T) {
	eng, err := NewEngine(Config{}, staticResolver{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if _, err := eng.Run(context.Background(), spec.RunSpec{SubmissionID: "s"}); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, err := NewEngine(Config{EnableCgroup: true}, staticResolver{}); err == nil {
		t.Fatalf("expected error for cgroups without root")
	}
}

func TestBuildSysProcAttrIsolatesNetwork(t *testing.T) {
	attr := buildSysProcAttr()
	if attr.Cloneflags&syscall.CLONE_NEWNET == 0 {
		t.Fatalf("network namespace must always be requested")
	}
	if !attr.Setpgid {
		t.Fatalf("helper must lead its own process group")
	}
}

func assertFile(t *testing.T, path, want string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if strings.TrimSpace(string(data)) != want {
		t.Fatalf("%s = %q, want %q", path, data, want)
	}
}
