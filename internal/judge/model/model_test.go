package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	appErr "codearena/pkg/errors"
)

func TestPublicProblemNeverCarriesExpectedOutput(t *testing.T) {
	problems := []Problem{
		{ID: "p1", Title: "Two Sum", TestCases: []TestCase{
			{Input: "[2,7,11,15]\n9", ExpectedOutput: "[0,1]"},
			{Input: "[3,2,4]\n6", ExpectedOutput: "[1,2]"},
		}},
		{ID: "p2", Title: "Valid Parentheses", TestCases: []TestCase{
			{Input: "()[]{}", ExpectedOutput: "SECRET-true"},
		}},
		{ID: "p3", Title: "Empty"},
	}
	for _, p := range problems {
		data, err := json.Marshal(p.Public())
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		for _, tc := range p.TestCases {
			if strings.Contains(string(data), tc.ExpectedOutput) {
				t.Fatalf("problem %s leaks expected output %q: %s", p.ID, tc.ExpectedOutput, data)
			}
		}
		if strings.Contains(string(data), "expected_output") {
			t.Fatalf("problem %s exposes expected_output key", p.ID)
		}
		if got := len(p.Public().TestCases); got != len(p.TestCases) {
			t.Fatalf("expected %d public cases, got %d", len(p.TestCases), got)
		}
	}
}

func TestEffectivePoints(t *testing.T) {
	if got := (&Problem{}).EffectivePoints(); got != DefaultPoints {
		t.Fatalf("expected default points, got %d", got)
	}
	if got := (&Problem{Points: 30}).EffectivePoints(); got != 30 {
		t.Fatalf("expected 30, got %d", got)
	}
}

func TestContestValidate(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	ok := Contest{ID: "c1", StartTime: start, EndTime: start.Add(time.Hour)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid contest rejected: %v", err)
	}
	equal := Contest{ID: "c2", StartTime: start, EndTime: start}
	if err := equal.Validate(); !appErr.Is(err, appErr.ContestInvalidRange) {
		t.Fatalf("expected ContestInvalidRange, got %v", err)
	}
	withProblems := Contest{ProblemIDs: []string{"a", "b"}}
	if !withProblems.HasProblem("b") || withProblems.HasProblem("c") {
		t.Fatalf("HasProblem mismatch")
	}
}

func TestSubmissionRequestValidate(t *testing.T) {
	base := SubmissionRequest{ContestantID: "u1", ProblemID: "p1", Code: "print(1)", Language: LanguagePython}
	tests := []struct {
		name   string
		mutate func(*SubmissionRequest)
		code   appErr.ErrorCode
	}{
		{name: "valid", mutate: func(*SubmissionRequest) {}, code: appErr.Success},
		{name: "source key instead of code", mutate: func(r *SubmissionRequest) { r.Code = ""; r.SourceKey = "src/1" }, code: appErr.Success},
		{name: "missing contestant", mutate: func(r *SubmissionRequest) { r.ContestantID = "" }, code: appErr.ValidationFailed},
		{name: "no source at all", mutate: func(r *SubmissionRequest) { r.Code = "" }, code: appErr.ValidationFailed},
		{name: "unknown language", mutate: func(r *SubmissionRequest) { r.Language = "cobol" }, code: appErr.LanguageNotSupported},
		{name: "code too large", mutate: func(r *SubmissionRequest) { r.Code = strings.Repeat("a", MaxCodeBytes+1) }, code: appErr.CodeTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			if got := appErr.GetCode(req.Validate()); got != tt.code {
				t.Fatalf("expected code %d, got %d", tt.code, got)
			}
		})
	}
}

func TestParseLanguage(t *testing.T) {
	if lang, err := ParseLanguage(" CPP "); err != nil || lang != LanguageCPP {
		t.Fatalf("expected cpp, got %q %v", lang, err)
	}
	if _, err := ParseLanguage("rust"); !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
}

func TestStageTerminal(t *testing.T) {
	for _, s := range []Stage{StageFinalized, StageRejected, StageCompileError} {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if StageExecuting.Terminal() {
		t.Fatalf("executing is not terminal")
	}
}
