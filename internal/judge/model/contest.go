package model

import (
	"time"

	appErr "codearena/pkg/errors"
)

// Contest is a time boxed set of problems. Its phase is never stored; see
// package window.
type Contest struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	ProblemIDs       []string  `json:"problem_ids"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	StrictValidation bool      `json:"strict_validation"`
	CompanyID        string    `json:"company_id"`
	Limits           Limits    `json:"limits"`
	// MaxAttempts caps judged submissions per contestant and problem; 0 is unlimited.
	MaxAttempts int `json:"max_attempts"`
}

// Validate checks the contest invariants.
func (c *Contest) Validate() error {
	if c.ID == "" {
		return appErr.ValidationError("id", "required")
	}
	if !c.StartTime.Before(c.EndTime) {
		return appErr.Newf(appErr.ContestInvalidRange, "contest %s: start time must be before end time", c.ID)
	}
	return nil
}

// HasProblem reports whether problemID is part of the contest.
func (c *Contest) HasProblem(problemID string) bool {
	for _, id := range c.ProblemIDs {
		if id == problemID {
			return true
		}
	}
	return false
}
