// Package result defines raw sandbox results and their classification.
package result

import "codearena/internal/judge/sandbox/spec"

// Termination is how a sandboxed program ended.
type Termination string

const (
	TerminationNormal         Termination = "Normal"
	TerminationTimedOut       Termination = "TimedOut"
	TerminationMemoryExceeded Termination = "MemoryExceeded"
	TerminationRuntimeFault   Termination = "RuntimeFault"
	TerminationSystemFault    Termination = "SystemFault"
)

// RunResult captures raw data reported by the engine for one process.
type RunResult struct {
	ExitCode    int
	CPUTimeMs   int64
	WallTimeMs  int64
	MemoryBytes int64
	OutputBytes int64
	Stdout      string
	Stderr      string
	OomKilled   bool
	TimedOut    bool
}

// ExecutionResult is the classified outcome of one program execution.
type ExecutionResult struct {
	Stdout          string
	Stderr          string
	ExitCode        int
	WallTimeMs      int64
	CPUTimeMs       int64
	PeakMemoryBytes int64
	Termination     Termination
}

// Classify maps a raw run onto a termination using the limits it ran under.
// Time is checked before memory: a process killed by the wall timer while
// growing its heap is reported as timed out.
func Classify(run RunResult, limits spec.ResourceLimit) ExecutionResult {
	res := ExecutionResult{
		Stdout:          run.Stdout,
		Stderr:          run.Stderr,
		ExitCode:        run.ExitCode,
		WallTimeMs:      run.WallTimeMs,
		CPUTimeMs:       run.CPUTimeMs,
		PeakMemoryBytes: run.MemoryBytes,
	}
	switch {
	case run.TimedOut,
		limits.CPUTimeMs > 0 && run.CPUTimeMs > limits.CPUTimeMs,
		limits.WallTimeMs > 0 && run.WallTimeMs > limits.WallTimeMs:
		res.Termination = TerminationTimedOut
	case run.OomKilled,
		limits.MemoryBytes > 0 && run.MemoryBytes > limits.MemoryBytes:
		res.Termination = TerminationMemoryExceeded
	case run.ExitCode != 0:
		res.Termination = TerminationRuntimeFault
	default:
		res.Termination = TerminationNormal
	}
	return res
}

// SystemFault returns the result reported when the sandbox itself failed.
func SystemFault(stderr string) ExecutionResult {
	return ExecutionResult{ExitCode: -1, Stderr: stderr, Termination: TerminationSystemFault}
}
