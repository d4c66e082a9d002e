package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codearena/internal/common/db"
	"codearena/internal/judge/model"
	appErr "codearena/pkg/errors"
)

// SubmissionRepository is the append-only submission log.
type SubmissionRepository interface {
	// Append stores a judged submission. A duplicate id is an error.
	Append(ctx context.Context, submission *model.Submission) error
	Get(ctx context.Context, submissionID string) (model.Submission, error)
	// CountAttempts counts judged submissions of a contestant to one contest problem.
	CountAttempts(ctx context.Context, contestID, contestantID, problemID string) (int, error)
	// ListByContest returns every submission of a contest in log order.
	ListByContest(ctx context.Context, contestID string) ([]model.Submission, error)
}

// SQLSubmissionRepository stores submissions in the submissions table.
//
//	CREATE TABLE submissions (
//	  id VARCHAR(64) PRIMARY KEY,
//	  contestant_id VARCHAR(64) NOT NULL,
//	  problem_id VARCHAR(64) NOT NULL,
//	  contest_id VARCHAR(64) NOT NULL DEFAULT '',
//	  language VARCHAR(16) NOT NULL,
//	  code TEXT NOT NULL,
//	  outcome VARCHAR(32) NOT NULL,
//	  verdict TEXT NOT NULL,
//	  created_at TIMESTAMP NOT NULL
//	);
type SQLSubmissionRepository struct {
	db db.Database
}

func NewSubmissionRepository(database db.Database) *SQLSubmissionRepository {
	return &SQLSubmissionRepository{db: database}
}

func (r *SQLSubmissionRepository) Append(ctx context.Context, submission *model.Submission) error {
	if submission == nil || submission.ID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	verdict, err := json.Marshal(submission.Verdict)
	if err != nil {
		return fmt.Errorf("marshal verdict failed: %w", err)
	}
	query := `
		INSERT INTO submissions (id, contestant_id, problem_id, contest_id, language, code, outcome, verdict, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.Exec(ctx, query,
		submission.ID,
		submission.ContestantID,
		submission.ProblemID,
		submission.ContestID,
		string(submission.Language),
		submission.Code,
		string(submission.Verdict.Outcome),
		string(verdict),
		submission.CreatedAt.UTC(),
	)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return appErr.Newf(appErr.SubmissionDuplicate, "submission %s already recorded", submission.ID)
		}
		return appErr.Wrapf(err, appErr.DatabaseError, "append submission failed")
	}
	return nil
}

func (r *SQLSubmissionRepository) Get(ctx context.Context, submissionID string) (model.Submission, error) {
	query := `
		SELECT id, contestant_id, problem_id, contest_id, language, code, verdict, created_at
		FROM submissions
		WHERE id = ?`
	submission, err := scanSubmission(r.db.QueryRow(ctx, query, submissionID))
	if err != nil {
		if db.IsNoRows(err) {
			return model.Submission{}, appErr.NotFoundError("submission").WithDetail("submission_id", submissionID)
		}
		return model.Submission{}, appErr.Wrapf(err, appErr.DatabaseError, "load submission failed")
	}
	return submission, nil
}

func (r *SQLSubmissionRepository) CountAttempts(ctx context.Context, contestID, contestantID, problemID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM submissions
		WHERE contest_id = ? AND contestant_id = ? AND problem_id = ? AND outcome <> ?`
	var count int
	err := r.db.QueryRow(ctx, query, contestID, contestantID, problemID, string(model.OutcomeSubmissionRejected)).Scan(&count)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.DatabaseError, "count attempts failed")
	}
	return count, nil
}

func (r *SQLSubmissionRepository) ListByContest(ctx context.Context, contestID string) ([]model.Submission, error) {
	query := `
		SELECT id, contestant_id, problem_id, contest_id, language, code, verdict, created_at
		FROM submissions
		WHERE contest_id = ?
		ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, contestID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	defer rows.Close()

	var submissions []model.Submission
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan submission failed")
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate submissions failed")
	}
	return submissions, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row scanner) (model.Submission, error) {
	var (
		submission model.Submission
		language   string
		verdict    string
		createdAt  time.Time
	)
	err := row.Scan(
		&submission.ID,
		&submission.ContestantID,
		&submission.ProblemID,
		&submission.ContestID,
		&language,
		&submission.Code,
		&verdict,
		&createdAt,
	)
	if err != nil {
		return model.Submission{}, err
	}
	submission.Language = model.Language(language)
	submission.CreatedAt = createdAt
	if err := json.Unmarshal([]byte(verdict), &submission.Verdict); err != nil {
		return model.Submission{}, fmt.Errorf("decode verdict of %s: %w", submission.ID, err)
	}
	return submission, nil
}
