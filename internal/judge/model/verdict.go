package model

// Outcome is the judgment of one case or of a whole submission.
type Outcome string

const (
	OutcomeAccepted            Outcome = "Accepted"
	OutcomeWrongAnswer         Outcome = "WrongAnswer"
	OutcomeTimeLimitExceeded   Outcome = "TimeLimitExceeded"
	OutcomeMemoryLimitExceeded Outcome = "MemoryLimitExceeded"
	OutcomeRuntimeError        Outcome = "RuntimeError"
	OutcomeCompileError        Outcome = "CompileError"
	OutcomeSubmissionRejected  Outcome = "SubmissionRejected"
)

// Rejection reasons reported with SubmissionRejected.
const (
	ReasonContestNotStarted   = "contest window not open"
	ReasonContestEnded        = "contest window closed"
	ReasonAttemptLimit        = "disallowed resubmission"
	ReasonProblemNotInContest = "problem is not part of the contest"
	ReasonSystemFault         = "judge system fault"
)

// CaseResult is the judgment of a single test case.
type CaseResult struct {
	Index       int     `json:"index"`
	Outcome     Outcome `json:"outcome"`
	TimeMs      int64   `json:"time_ms"`
	MemoryBytes int64   `json:"memory_bytes"`
	ExitCode    int     `json:"exit_code"`
}

// Verdict is created once per submission and never mutated.
type Verdict struct {
	Outcome     Outcome      `json:"outcome"`
	Cases       []CaseResult `json:"cases"`
	TimeMs      int64        `json:"time_ms"`
	MemoryBytes int64        `json:"memory_bytes"`
	Passed      int          `json:"passed"`
	Total       int          `json:"total"`
	// Complete is set when every case ran, making the verdict eligible for partial credit.
	Complete    bool   `json:"complete"`
	Diagnostics string `json:"diagnostics,omitempty"`
	Reason      string `json:"reason,omitempty"`
	// SystemFault marks a rejection the platform caused.
	SystemFault bool `json:"system_fault,omitempty"`
}

// Rejected builds a SubmissionRejected verdict.
func Rejected(reason string, systemFault bool) Verdict {
	return Verdict{Outcome: OutcomeSubmissionRejected, Reason: reason, SystemFault: systemFault}
}
