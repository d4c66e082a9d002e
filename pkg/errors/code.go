package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 12000-12999: Problem errors
// 13000-13999: Submission & Judge errors
// 14000-14999: Contest & Ranking errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError       ErrorCode = 10100
	RecordNotFound      ErrorCode = 10101
	RecordAlreadyExists ErrorCode = 10102
	TransactionFailed   ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheMiss      ErrorCode = 10201
	CacheSetFailed ErrorCode = 10202

	// Validation errors (10300-10399)
	ValidationFailed   ErrorCode = 10300
	InvalidFormat      ErrorCode = 10301
	InvalidValue       ErrorCode = 10302
	RequiredFieldEmpty ErrorCode = 10303

	// Storage errors (10400-10499)
	StorageError   ErrorCode = 10400
	ObjectNotFound ErrorCode = 10401

	// ========== Problem Errors (12000-12999) ==========

	ProblemNotFound  ErrorCode = 12000
	ProblemImmutable ErrorCode = 12006

	// Test cases (12100-12199)
	TestCaseNotFound ErrorCode = 12100
	TestCaseInvalid  ErrorCode = 12102
	DataPackInvalid  ErrorCode = 12104

	// ========== Submission & Judge Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003
	ProblemNotSubmittable  ErrorCode = 13005
	SubmissionDuplicate    ErrorCode = 13006
	AttemptLimitReached    ErrorCode = 13007
	SubmissionRequeued     ErrorCode = 13008

	// Judge (13100-13199)
	JudgeQueueFull    ErrorCode = 13100
	JudgeSystemError  ErrorCode = 13101
	CompilationError  ErrorCode = 13102
	SandboxError      ErrorCode = 13107
	JudgePoolShutdown ErrorCode = 13108

	// ========== Contest & Ranking Errors (14000-14999) ==========

	// Contest (14000-14099)
	ContestNotFound     ErrorCode = 14000
	ContestNotStarted   ErrorCode = 14001
	ContestEnded        ErrorCode = 14002
	ContestInvalidRange ErrorCode = 14006
	ProblemNotInContest ErrorCode = 14007

	// Ranking (14200-14299)
	RankingNotAvailable ErrorCode = 14200
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	DatabaseError:       "Database operation failed",
	RecordNotFound:      "Record not found in database",
	RecordAlreadyExists: "Record already exists",
	TransactionFailed:   "Database transaction failed",

	CacheError:     "Cache operation failed",
	CacheMiss:      "Cache miss",
	CacheSetFailed: "Failed to set cache",

	ValidationFailed:   "Validation failed",
	InvalidFormat:      "Invalid format",
	InvalidValue:       "Invalid value",
	RequiredFieldEmpty: "Required field is empty",

	StorageError:   "Object storage operation failed",
	ObjectNotFound: "Object not found",

	ProblemNotFound:  "Problem not found",
	ProblemImmutable: "Problem is referenced by a started contest",

	TestCaseNotFound: "Test case not found",
	TestCaseInvalid:  "Invalid test case format",
	DataPackInvalid:  "Invalid test data pack",

	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	ProblemNotSubmittable:  "This problem cannot be submitted at the moment",
	SubmissionDuplicate:    "Submission already recorded",
	AttemptLimitReached:    "Resubmission is not allowed for this problem",
	SubmissionRequeued:     "Submission was requeued after a judge system fault",

	JudgeQueueFull:    "Judge queue is full, please try again later",
	JudgeSystemError:  "Judge system error",
	CompilationError:  "Compilation error",
	SandboxError:      "Sandbox execution failed",
	JudgePoolShutdown: "Judge pool is shutting down",

	ContestNotFound:     "Contest not found",
	ContestNotStarted:   "Contest has not started yet",
	ContestEnded:        "Contest has ended",
	ContestInvalidRange: "Contest start time must be before end time",
	ProblemNotInContest: "Problem does not belong to this contest",

	RankingNotAvailable: "Ranking is not available",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == SubmissionRequeued:
		return 202
	case c == NotFound, c == ProblemNotFound, c == ContestNotFound, c == SubmissionNotFound,
		c == RecordNotFound, c == ObjectNotFound:
		return 404
	case c == ContestNotStarted, c == ContestEnded, c == AttemptLimitReached, c == ProblemImmutable,
		c == RankingNotAvailable:
		return 403
	case c == SubmissionDuplicate, c == RecordAlreadyExists:
		return 409
	case c == ServiceUnavailable, c == JudgeQueueFull, c == JudgePoolShutdown:
		return 503
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == LanguageNotSupported, c == CodeTooLarge,
		c == ProblemNotInContest, c == ContestInvalidRange:
		return 400
	default:
		return 500
	}
}
