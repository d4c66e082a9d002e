package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"

	"codearena/internal/common/db"
	"codearena/internal/judge/model"
	appErr "codearena/pkg/errors"
)

type fakeRow struct {
	values []interface{}
	err    error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(r.values))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *int:
			*p = r.values[i].(int)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 1, nil }

type fakeDB struct {
	execErr  error
	row      fakeRow
	queries  []string
	lastArgs []interface{}
}

func (f *fakeDB) Query(context.Context, string, ...interface{}) (db.Rows, error) {
	return nil, fmt.Errorf("query not supported")
}

func (f *fakeDB) QueryRow(_ context.Context, query string, args ...interface{}) db.Row {
	f.queries = append(f.queries, query)
	f.lastArgs = args
	return f.row
}

func (f *fakeDB) Exec(_ context.Context, query string, args ...interface{}) (db.Result, error) {
	f.queries = append(f.queries, query)
	f.lastArgs = args
	if f.execErr != nil {
		return nil, f.execErr
	}
	return fakeResult{}, nil
}

func (f *fakeDB) Dialect() db.Dialect        { return db.DialectMySQL }
func (f *fakeDB) Ping(context.Context) error { return nil }
func (f *fakeDB) Close() error               { return nil }

func TestSQLSubmissionAppendDuplicate(t *testing.T) {
	database := &fakeDB{execErr: fmt.Errorf("exec failed: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 's1' for key 'submissions.PRIMARY'"})}
	repo := NewSubmissionRepository(database)

	err := repo.Append(context.Background(), &model.Submission{ID: "s1", Verdict: model.Verdict{Outcome: model.OutcomeAccepted}})
	if !appErr.Is(err, appErr.SubmissionDuplicate) {
		t.Fatalf("expected SubmissionDuplicate, got %v", err)
	}
	if !strings.Contains(database.queries[0], "INSERT INTO submissions") {
		t.Fatalf("unexpected query %q", database.queries[0])
	}
	if outcome := database.lastArgs[6]; outcome != string(model.OutcomeAccepted) {
		t.Fatalf("outcome column should be denormalized, got %v", outcome)
	}
}

func TestSQLSubmissionGet(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	database := &fakeDB{row: fakeRow{values: []interface{}{
		"s1", "alice", "p1", "c1", "python", "print(1)",
		`{"outcome":"WrongAnswer","passed":1,"total":2}`, created,
	}}}
	repo := NewSubmissionRepository(database)

	sub, err := repo.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sub.Language != model.LanguagePython || sub.Verdict.Outcome != model.OutcomeWrongAnswer || sub.Verdict.Passed != 1 || !sub.CreatedAt.Equal(created) {
		t.Fatalf("unexpected submission %+v", sub)
	}

	database.row = fakeRow{err: sql.ErrNoRows}
	if _, err := repo.Get(context.Background(), "missing"); !appErr.Is(err, appErr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestSQLSubmissionCountAttemptsSkipsRejected(t *testing.T) {
	database := &fakeDB{row: fakeRow{values: []interface{}{3}}}
	repo := NewSubmissionRepository(database)

	n, err := repo.CountAttempts(context.Background(), "c1", "alice", "p1")
	if err != nil || n != 3 {
		t.Fatalf("unexpected count %d %v", n, err)
	}
	if last := database.lastArgs[len(database.lastArgs)-1]; last != string(model.OutcomeSubmissionRejected) {
		t.Fatalf("rejected submissions must be excluded, args %v", database.lastArgs)
	}
}

func TestMemoryStoreAppendOnly(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	first := &model.Submission{ID: "s1", ContestID: "c1", ContestantID: "alice", ProblemID: "p1", Verdict: model.Verdict{Outcome: model.OutcomeWrongAnswer}}
	rejected := &model.Submission{ID: "s2", ContestID: "c1", ContestantID: "alice", ProblemID: "p1", Verdict: model.Rejected(model.ReasonSystemFault, true)}

	if err := store.Append(ctx, first); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, rejected); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, first); !appErr.Is(err, appErr.SubmissionDuplicate) {
		t.Fatalf("expected SubmissionDuplicate, got %v", err)
	}

	n, err := store.CountAttempts(ctx, "c1", "alice", "p1")
	if err != nil || n != 1 {
		t.Fatalf("expected one counted attempt, got %d %v", n, err)
	}
	list, _ := store.ListByContest(ctx, "c1")
	if len(list) != 2 || list[0].ID != "s1" || list[1].ID != "s2" {
		t.Fatalf("log order not kept: %+v", list)
	}
}
