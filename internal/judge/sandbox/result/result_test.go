package result

import (
	"testing"

	"codearena/internal/judge/sandbox/spec"
)

func TestClassify(t *testing.T) {
	limits := spec.ResourceLimit{CPUTimeMs: 1000, WallTimeMs: 3000, MemoryBytes: 64 << 20}
	tests := []struct {
		name string
		run  RunResult
		want Termination
	}{
		{name: "normal", run: RunResult{CPUTimeMs: 10, MemoryBytes: 1 << 20}, want: TerminationNormal},
		{name: "wall timer", run: RunResult{TimedOut: true, ExitCode: -1}, want: TerminationTimedOut},
		{name: "cpu over limit", run: RunResult{CPUTimeMs: 1001}, want: TerminationTimedOut},
		{name: "oom kill", run: RunResult{OomKilled: true, ExitCode: -1}, want: TerminationMemoryExceeded},
		{name: "peak over limit", run: RunResult{MemoryBytes: 65 << 20}, want: TerminationMemoryExceeded},
		{name: "non zero exit", run: RunResult{ExitCode: 1}, want: TerminationRuntimeFault},
		{name: "signal", run: RunResult{ExitCode: -1}, want: TerminationRuntimeFault},
		{name: "timeout wins over memory", run: RunResult{TimedOut: true, OomKilled: true}, want: TerminationTimedOut},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.run, limits)
			if got.Termination != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got.Termination)
			}
		})
	}
}

func TestClassifyCopiesMeasurements(t *testing.T) {
	got := Classify(RunResult{Stdout: "out", Stderr: "err", CPUTimeMs: 5, WallTimeMs: 7, MemoryBytes: 9}, spec.ResourceLimit{})
	if got.Stdout != "out" || got.Stderr != "err" || got.CPUTimeMs != 5 || got.WallTimeMs != 7 || got.PeakMemoryBytes != 9 {
		t.Fatalf("measurements not carried: %+v", got)
	}
}
