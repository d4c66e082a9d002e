// Package spec defines the execution specification and resource limits.
package spec

const (
	// DefaultCPUTimeMs applies when neither the problem nor the contest sets a CPU limit.
	DefaultCPUTimeMs int64 = 2000
	// DefaultMemoryBytes applies when neither the problem nor the contest sets a memory limit.
	DefaultMemoryBytes int64 = 256 << 20
	DefaultStackBytes  int64 = 64 << 20
	DefaultOutputBytes int64 = 16 << 20
	DefaultPIDs        int64 = 64

	wallSlackMs int64 = 1000
)

// ResourceLimit describes hard limits enforced by the sandbox.
// A zero field means "inherit".
type ResourceLimit struct {
	CPUTimeMs   int64 `json:"CPUTimeMs" yaml:"cpuTimeMs"`
	WallTimeMs  int64 `json:"WallTimeMs" yaml:"wallTimeMs"`
	MemoryBytes int64 `json:"MemoryBytes" yaml:"memoryBytes"`
	StackBytes  int64 `json:"StackBytes" yaml:"stackBytes"`
	OutputBytes int64 `json:"OutputBytes" yaml:"outputBytes"`
	PIDs        int64 `json:"PIDs" yaml:"pids"`
}

// DefaultLimits returns the engine-wide limits. WallTimeMs is left unset so it
// is derived from the effective CPU limit by Finalize.
func DefaultLimits() ResourceLimit {
	return ResourceLimit{
		CPUTimeMs:   DefaultCPUTimeMs,
		MemoryBytes: DefaultMemoryBytes,
		StackBytes:  DefaultStackBytes,
		OutputBytes: DefaultOutputBytes,
		PIDs:        DefaultPIDs,
	}
}

// Merge returns base with every positive field of override applied on top.
func (base ResourceLimit) Merge(override ResourceLimit) ResourceLimit {
	if override.CPUTimeMs > 0 {
		base.CPUTimeMs = override.CPUTimeMs
	}
	if override.WallTimeMs > 0 {
		base.WallTimeMs = override.WallTimeMs
	}
	if override.MemoryBytes > 0 {
		base.MemoryBytes = override.MemoryBytes
	}
	if override.StackBytes > 0 {
		base.StackBytes = override.StackBytes
	}
	if override.OutputBytes > 0 {
		base.OutputBytes = override.OutputBytes
	}
	if override.PIDs > 0 {
		base.PIDs = override.PIDs
	}
	return base
}

// Finalize fills the wall clock limit as 2×CPU + 1s when it was never set.
func (l ResourceLimit) Finalize() ResourceLimit {
	if l.WallTimeMs <= 0 && l.CPUTimeMs > 0 {
		l.WallTimeMs = 2*l.CPUTimeMs + wallSlackMs
	}
	return l
}

// Effective layers the limits: defaults, then problem, then contest.
func Effective(defaults, problem, contest ResourceLimit) ResourceLimit {
	return defaults.Merge(problem).Merge(contest).Finalize()
}

// MountSpec describes a bind mount inside the sandbox.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec is the unified execution specification for one sandboxed process.
type RunSpec struct {
	SubmissionID string
	RunID        string
	WorkDir      string
	Cmd          []string
	Env          []string
	StdinPath    string
	StdoutPath   string
	StderrPath   string
	BindMounts   []MountSpec
	Profile      string
	Limits       ResourceLimit
}
