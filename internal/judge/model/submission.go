package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	appErr "codearena/pkg/errors"
)

// MaxCodeBytes bounds the inline source size.
const MaxCodeBytes = 64 * 1024

// Language is the closed set of runtimes a submission may declare.
type Language string

const (
	LanguageC          Language = "c"
	LanguageCPP        Language = "cpp"
	LanguageGo         Language = "go"
	LanguageJava       Language = "java"
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
)

// Languages lists every supported language.
var Languages = []Language{LanguageC, LanguageCPP, LanguageGo, LanguageJava, LanguagePython, LanguageJavaScript}

// ParseLanguage normalizes a declared language and rejects unknown ones.
func ParseLanguage(s string) (Language, error) {
	lang := Language(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Languages {
		if lang == known {
			return lang, nil
		}
	}
	return "", appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", s)
}

// SubmissionRequest is handed to the judge by the API layer after its own
// authorization check.
type SubmissionRequest struct {
	// SubmissionID may be preassigned by the caller; it is generated otherwise.
	SubmissionID string    `json:"submission_id,omitempty" validate:"omitempty,max=64"`
	ContestantID string    `json:"contestant_id" validate:"required,max=64"`
	ProblemID    string    `json:"problem_id" validate:"required,max=64"`
	ContestID    string    `json:"contest_id,omitempty" validate:"omitempty,max=64"`
	Code         string    `json:"code,omitempty" validate:"required_without=SourceKey"`
	SourceKey    string    `json:"source_key,omitempty" validate:"max=512"`
	Language     Language  `json:"language" validate:"required,oneof=c cpp go java python javascript"`
	SubmittedAt  time.Time `json:"submitted_at,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and maps the first failure to a coded error.
func (r *SubmissionRequest) Validate() error {
	if len(r.Code) > MaxCodeBytes {
		return appErr.Newf(appErr.CodeTooLarge, "code exceeds %d bytes", MaxCodeBytes)
	}
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return appErr.Wrap(err, appErr.ValidationFailed)
	}
	fe := fieldErrs[0]
	if fe.Field() == "language" && fe.Tag() == "oneof" {
		return appErr.Newf(appErr.LanguageNotSupported, "language %q is not supported", fe.Value())
	}
	return appErr.New(appErr.ValidationFailed).
		WithMessage(translateFieldError(fe)).
		WithDetail("field", fe.Field()).
		WithDetail("rule", fe.Tag())
}

func translateFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "required_without":
		return fmt.Sprintf("%s is required when %s is empty", fe.Field(), strings.ToLower(fe.Param()))
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("validation failed for %s with rule %s", fe.Field(), fe.Tag())
	}
}

// Submission is one judged attempt. It is never modified after its verdict
// is attached; a resubmission creates a new Submission.
type Submission struct {
	ID           string    `json:"id"`
	ContestantID string    `json:"contestant_id"`
	ProblemID    string    `json:"problem_id"`
	ContestID    string    `json:"contest_id,omitempty"`
	Code         string    `json:"code"`
	Language     Language  `json:"language"`
	CreatedAt    time.Time `json:"created_at"`
	Verdict      Verdict   `json:"verdict"`
}

// Counted reports whether the submission took part in judging at all.
// Admission rejections and platform faults never did.
func (s *Submission) Counted() bool {
	return s.Verdict.Outcome != OutcomeSubmissionRejected
}
