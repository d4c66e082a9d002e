package model

import "time"

// JudgeMessage is the Kafka payload carrying a submission to the judge.
// The topic it arrives on carries its priority.
type JudgeMessage struct {
	Request SubmissionRequest `json:"request"`
}

// Stage is the pipeline state a submission is in.
type Stage string

const (
	StageAdmitted     Stage = "Admitted"
	StageBuilding     Stage = "Building"
	StageExecuting    Stage = "Executing"
	StageAggregating  Stage = "Aggregating"
	StageFinalized    Stage = "Finalized"
	StageRejected     Stage = "Rejected"
	StageCompileError Stage = "CompileError"
	// StageRequeued marks a submission waiting on the retry topic after a
	// system fault; judging starts over from Admitted.
	StageRequeued Stage = "Requeued"
)

// Terminal reports whether no further transitions follow.
func (s Stage) Terminal() bool {
	return s == StageFinalized || s == StageRejected || s == StageCompileError
}

// StatusUpdate is a progress snapshot of one submission.
type StatusUpdate struct {
	SubmissionID string   `json:"submission_id"`
	ContestantID string   `json:"contestant_id,omitempty"`
	ProblemID    string   `json:"problem_id,omitempty"`
	ContestID    string   `json:"contest_id,omitempty"`
	Stage        Stage    `json:"stage"`
	CaseIndex    int      `json:"case_index,omitempty"`
	TotalCases   int      `json:"total_cases,omitempty"`
	Verdict      *Verdict `json:"verdict,omitempty"`
	UpdatedAt    int64    `json:"updated_at"`
}

// VerdictEventType tags final verdict events on the status topic.
const VerdictEventType = "verdict.final"

// VerdictEvent is published once per submission when its verdict is final.
// Source code is never part of the event.
type VerdictEvent struct {
	Type         string    `json:"type"`
	SubmissionID string    `json:"submission_id"`
	ContestantID string    `json:"contestant_id"`
	ProblemID    string    `json:"problem_id"`
	ContestID    string    `json:"contest_id,omitempty"`
	Language     Language  `json:"language"`
	Verdict      Verdict   `json:"verdict"`
	SubmittedAt  time.Time `json:"submitted_at"`
	CreatedAt    int64     `json:"created_at"`
}

// NewVerdictEvent builds the final event of a submission.
func NewVerdictEvent(s *Submission, now time.Time) VerdictEvent {
	return VerdictEvent{
		Type:         VerdictEventType,
		SubmissionID: s.ID,
		ContestantID: s.ContestantID,
		ProblemID:    s.ProblemID,
		ContestID:    s.ContestID,
		Language:     s.Language,
		Verdict:      s.Verdict,
		SubmittedAt:  s.CreatedAt,
		CreatedAt:    now.Unix(),
	}
}
