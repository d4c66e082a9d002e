package repository

import (
	"context"
	"sync"

	"codearena/internal/judge/model"
	appErr "codearena/pkg/errors"
)

// MemoryStore keeps problems, contests and the submission log in process.
// The judge CLI runs on it; it also backs tests.
type MemoryStore struct {
	mu          sync.RWMutex
	problems    map[string]model.Problem
	contests    map[string]model.Contest
	submissions []model.Submission
	byID        map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		problems: make(map[string]model.Problem),
		contests: make(map[string]model.Contest),
		byID:     make(map[string]int),
	}
}

func (s *MemoryStore) PutProblem(problem model.Problem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.problems[problem.ID] = problem
}

func (s *MemoryStore) PutContest(contest model.Contest) error {
	if err := contest.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contests[contest.ID] = contest
	return nil
}

func (s *MemoryStore) GetProblem(_ context.Context, problemID string) (model.Problem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	problem, ok := s.problems[problemID]
	if !ok {
		return model.Problem{}, appErr.Newf(appErr.ProblemNotFound, "problem %s not found", problemID)
	}
	return problem, nil
}

func (s *MemoryStore) GetContest(_ context.Context, contestID string) (model.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contest, ok := s.contests[contestID]
	if !ok {
		return model.Contest{}, appErr.Newf(appErr.ContestNotFound, "contest %s not found", contestID)
	}
	return contest, nil
}

func (s *MemoryStore) ListContestsByProblem(_ context.Context, problemID string) ([]model.Contest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var contests []model.Contest
	for _, contest := range s.contests {
		if contest.HasProblem(problemID) {
			contests = append(contests, contest)
		}
	}
	return contests, nil
}

func (s *MemoryStore) Append(_ context.Context, submission *model.Submission) error {
	if submission == nil || submission.ID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[submission.ID]; ok {
		return appErr.Newf(appErr.SubmissionDuplicate, "submission %s already recorded", submission.ID)
	}
	s.byID[submission.ID] = len(s.submissions)
	s.submissions = append(s.submissions, *submission)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, submissionID string) (model.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[submissionID]
	if !ok {
		return model.Submission{}, appErr.NotFoundError("submission").WithDetail("submission_id", submissionID)
	}
	return s.submissions[idx], nil
}

func (s *MemoryStore) CountAttempts(_ context.Context, contestID, contestantID, problemID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for i := range s.submissions {
		sub := &s.submissions[i]
		if sub.ContestID == contestID && sub.ContestantID == contestantID && sub.ProblemID == problemID && sub.Counted() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ListByContest(_ context.Context, contestID string) ([]model.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Submission
	for _, sub := range s.submissions {
		if sub.ContestID == contestID {
			out = append(out, sub)
		}
	}
	return out, nil
}

var (
	_ SubmissionRepository = (*MemoryStore)(nil)
	_ ProblemRepository    = (*MemoryStore)(nil)
	_ SubmissionRepository = (*SQLSubmissionRepository)(nil)
	_ ProblemRepository    = (*SQLProblemRepository)(nil)
	_ ProblemRepository    = (*CachedProblemRepository)(nil)
	_ TestDataLoader       = (*DataPackLoader)(nil)
	_ SourceFetcher        = (*ObjectStore)(nil)
	_ VerdictPublisher     = (*MQVerdictPublisher)(nil)
)
