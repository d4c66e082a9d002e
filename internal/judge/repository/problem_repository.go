package repository

import (
	"context"
	"time"

	"codearena/internal/common/db"
	"codearena/internal/judge/model"
	appErr "codearena/pkg/errors"
)

// ProblemRepository is the judge's read-only view of problems and contests.
// The authoring side owns the records.
type ProblemRepository interface {
	GetProblem(ctx context.Context, problemID string) (model.Problem, error)
	GetContest(ctx context.Context, contestID string) (model.Contest, error)
	ListContestsByProblem(ctx context.Context, problemID string) ([]model.Contest, error)
}

// TestDataLoader fetches test cases kept outside the database.
type TestDataLoader interface {
	Load(ctx context.Context, key string) ([]model.TestCase, error)
}

// SQLProblemRepository reads the problems, test_cases, contests and
// contest_problems tables.
type SQLProblemRepository struct {
	db       db.Database
	dataPack TestDataLoader
}

func NewProblemRepository(database db.Database, dataPack TestDataLoader) *SQLProblemRepository {
	return &SQLProblemRepository{db: database, dataPack: dataPack}
}

func (r *SQLProblemRepository) GetProblem(ctx context.Context, problemID string) (model.Problem, error) {
	query := `
		SELECT id, problem_number, title, difficulty, category, is_mock, company_id,
		       cpu_time_ms, wall_time_ms, memory_bytes, early_exit, partial_credit, points,
		       data_pack_key, updated_at
		FROM problems
		WHERE id = ?`
	var (
		problem    model.Problem
		difficulty string
	)
	err := r.db.QueryRow(ctx, query, problemID).Scan(
		&problem.ID,
		&problem.ProblemNumber,
		&problem.Title,
		&difficulty,
		&problem.Category,
		&problem.IsMock,
		&problem.CompanyID,
		&problem.Limits.CPUTimeMs,
		&problem.Limits.WallTimeMs,
		&problem.Limits.MemoryBytes,
		&problem.EarlyExit,
		&problem.PartialCredit,
		&problem.Points,
		&problem.DataPackKey,
		&problem.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Problem{}, appErr.Newf(appErr.ProblemNotFound, "problem %s not found", problemID)
		}
		return model.Problem{}, appErr.Wrapf(err, appErr.DatabaseError, "load problem failed")
	}
	problem.Difficulty = model.Difficulty(difficulty)

	cases, err := r.testCases(ctx, problemID)
	if err != nil {
		return model.Problem{}, err
	}
	if len(cases) == 0 && problem.DataPackKey != "" {
		if r.dataPack == nil {
			return model.Problem{}, appErr.Newf(appErr.TestCaseNotFound, "problem %s: data pack storage is not configured", problemID)
		}
		cases, err = r.dataPack.Load(ctx, problem.DataPackKey)
		if err != nil {
			return model.Problem{}, err
		}
	}
	problem.TestCases = cases
	return problem, nil
}

func (r *SQLProblemRepository) testCases(ctx context.Context, problemID string) ([]model.TestCase, error) {
	query := `
		SELECT input, expected_output
		FROM test_cases
		WHERE problem_id = ?
		ORDER BY idx ASC`
	rows, err := r.db.Query(ctx, query, problemID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load test cases failed")
	}
	defer rows.Close()

	var cases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.Input, &tc.ExpectedOutput); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan test case failed")
		}
		cases = append(cases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate test cases failed")
	}
	return cases, nil
}

const contestColumns = `
		c.id, c.title, c.description, c.start_time, c.end_time, c.strict_validation, c.company_id,
		c.cpu_time_ms, c.wall_time_ms, c.memory_bytes, c.max_attempts`

func (r *SQLProblemRepository) GetContest(ctx context.Context, contestID string) (model.Contest, error) {
	query := `SELECT` + contestColumns + `
		FROM contests c
		WHERE c.id = ?`
	contest, err := scanContest(r.db.QueryRow(ctx, query, contestID))
	if err != nil {
		if db.IsNoRows(err) {
			return model.Contest{}, appErr.Newf(appErr.ContestNotFound, "contest %s not found", contestID)
		}
		return model.Contest{}, appErr.Wrapf(err, appErr.DatabaseError, "load contest failed")
	}
	ids, err := r.contestProblems(ctx, contestID)
	if err != nil {
		return model.Contest{}, err
	}
	contest.ProblemIDs = ids
	return contest, nil
}

func (r *SQLProblemRepository) contestProblems(ctx context.Context, contestID string) ([]string, error) {
	query := `
		SELECT problem_id
		FROM contest_problems
		WHERE contest_id = ?
		ORDER BY position ASC`
	rows, err := r.db.Query(ctx, query, contestID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load contest problems failed")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan contest problem failed")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate contest problems failed")
	}
	return ids, nil
}

// ListContestsByProblem returns the contests referencing a problem. The
// problem lists of the returned contests are not loaded.
func (r *SQLProblemRepository) ListContestsByProblem(ctx context.Context, problemID string) ([]model.Contest, error) {
	query := `SELECT` + contestColumns + `
		FROM contests c
		JOIN contest_problems cp ON cp.contest_id = c.id
		WHERE cp.problem_id = ?
		ORDER BY c.start_time ASC`
	rows, err := r.db.Query(ctx, query, problemID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list contests failed")
	}
	defer rows.Close()

	var contests []model.Contest
	for rows.Next() {
		contest, err := scanContest(rows)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan contest failed")
		}
		contests = append(contests, contest)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate contests failed")
	}
	return contests, nil
}

func scanContest(row scanner) (model.Contest, error) {
	var (
		contest    model.Contest
		start, end time.Time
	)
	err := row.Scan(
		&contest.ID,
		&contest.Title,
		&contest.Description,
		&start,
		&end,
		&contest.StrictValidation,
		&contest.CompanyID,
		&contest.Limits.CPUTimeMs,
		&contest.Limits.WallTimeMs,
		&contest.Limits.MemoryBytes,
		&contest.MaxAttempts,
	)
	if err != nil {
		return model.Contest{}, err
	}
	contest.StartTime = start.UTC()
	contest.EndTime = end.UTC()
	return contest, nil
}
