package model

import "time"

// DefaultPoints is awarded for a solved problem that sets no points.
const DefaultPoints = 100

// Difficulty grades a problem.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Limits are the per problem or per contest resource overrides. Zero fields inherit.
type Limits struct {
	CPUTimeMs   int64 `json:"cpu_time_ms,omitempty" yaml:"cpuTimeMs"`
	WallTimeMs  int64 `json:"wall_time_ms,omitempty" yaml:"wallTimeMs"`
	MemoryBytes int64 `json:"memory_bytes,omitempty" yaml:"memoryBytes"`
}

// TestCase is one hidden input/expected output pair.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

// Problem is the judge's read-only view of an authored problem.
type Problem struct {
	ID            string     `json:"id"`
	ProblemNumber int64      `json:"problem_number"`
	Title         string     `json:"title"`
	Difficulty    Difficulty `json:"difficulty"`
	Category      string     `json:"category"`
	TestCases     []TestCase `json:"test_cases"`
	IsMock        bool       `json:"is_mock"`
	CompanyID     string     `json:"company_id"`
	Limits        Limits     `json:"limits"`
	// EarlyExit stops judging at the first failed case.
	EarlyExit bool `json:"early_exit"`
	// PartialCredit awards points × passed/total to unsolved problems.
	PartialCredit bool `json:"partial_credit"`
	Points        int  `json:"points"`
	// DataPackKey, when set, points at the test cases in object storage.
	DataPackKey string    `json:"data_pack_key,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EffectivePoints returns Points or DefaultPoints when unset.
func (p *Problem) EffectivePoints() int {
	if p.Points > 0 {
		return p.Points
	}
	return DefaultPoints
}

// PublicTestCase is a test case as shown to contestants.
type PublicTestCase struct {
	Input string `json:"input"`
}

// PublicProblem is the only problem shape served on the read path.
type PublicProblem struct {
	ID            string           `json:"id"`
	ProblemNumber int64            `json:"problem_number"`
	Title         string           `json:"title"`
	Difficulty    Difficulty       `json:"difficulty"`
	Category      string           `json:"category"`
	TestCases     []PublicTestCase `json:"test_cases"`
	IsMock        bool             `json:"is_mock"`
	Points        int              `json:"points"`
}

// Public projects the problem without expected outputs.
func (p *Problem) Public() PublicProblem {
	cases := make([]PublicTestCase, len(p.TestCases))
	for i, tc := range p.TestCases {
		cases[i] = PublicTestCase{Input: tc.Input}
	}
	return PublicProblem{
		ID:            p.ID,
		ProblemNumber: p.ProblemNumber,
		Title:         p.Title,
		Difficulty:    p.Difficulty,
		Category:      p.Category,
		TestCases:     cases,
		IsMock:        p.IsMock,
		Points:        p.EffectivePoints(),
	}
}
