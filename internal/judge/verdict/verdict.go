// Package verdict turns sandbox results into case and submission verdicts.
package verdict

import (
	"codearena/internal/judge/compare"
	"codearena/internal/judge/model"
	"codearena/internal/judge/sandbox/result"
)

// JudgeCase judges one executed case. Output is compared only after a normal
// termination; otherwise the sandbox classification decides.
func JudgeCase(index int, policy compare.Policy, expected string, res result.ExecutionResult) model.CaseResult {
	cr := model.CaseResult{
		Index:       index,
		TimeMs:      res.CPUTimeMs,
		MemoryBytes: res.PeakMemoryBytes,
		ExitCode:    res.ExitCode,
	}
	switch res.Termination {
	case result.TerminationNormal:
		if compare.Match(res.Stdout, expected, policy) {
			cr.Outcome = model.OutcomeAccepted
		} else {
			cr.Outcome = model.OutcomeWrongAnswer
		}
	case result.TerminationTimedOut:
		cr.Outcome = model.OutcomeTimeLimitExceeded
	case result.TerminationMemoryExceeded:
		cr.Outcome = model.OutcomeMemoryLimitExceeded
	case result.TerminationRuntimeFault:
		cr.Outcome = model.OutcomeRuntimeError
	default:
		cr.Outcome = model.OutcomeSubmissionRejected
	}
	return cr
}

// Aggregate reduces case results, given in test order, into one verdict.
// total is the number of cases the problem defines; fewer results mean
// judging stopped early. Aggregate is pure: equal inputs give equal verdicts.
func Aggregate(cases []model.CaseResult, total int) model.Verdict {
	v := model.Verdict{
		Outcome:  model.OutcomeAccepted,
		Cases:    append([]model.CaseResult(nil), cases...),
		Total:    total,
		Complete: len(cases) == total,
	}
	firstFailure := model.Outcome("")
	for _, c := range cases {
		if c.TimeMs > v.TimeMs {
			v.TimeMs = c.TimeMs
		}
		if c.MemoryBytes > v.MemoryBytes {
			v.MemoryBytes = c.MemoryBytes
		}
		if c.Outcome == model.OutcomeAccepted {
			v.Passed++
			continue
		}
		if firstFailure == "" {
			firstFailure = c.Outcome
		}
	}
	switch {
	case firstFailure != "":
		v.Outcome = firstFailure
	case total == 0 || len(cases) < total:
		// Nothing failed but not everything ran: never report an unproven accept.
		v.Outcome = model.OutcomeSubmissionRejected
		v.Reason = "no test case executed"
		if total > 0 {
			v.Reason = "judging stopped before every case ran"
		}
	}
	return v
}

// CompileError is the verdict for a failed build.
func CompileError(diagnostics string, total int) model.Verdict {
	return model.Verdict{
		Outcome:     model.OutcomeCompileError,
		Cases:       []model.CaseResult{},
		Total:       total,
		Diagnostics: diagnostics,
	}
}
