package repository

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"codearena/internal/judge/model"
)

const (
	defaultProblemCacheSize = 512
	defaultProblemCacheTTL  = 5 * time.Minute
)

// ProblemCacheConfig sizes the in-process problem cache.
type ProblemCacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// CachedProblemRepository keeps recently judged problems and contests in
// memory. Records are read-only to the judge, so entries only expire.
type CachedProblemRepository struct {
	next     ProblemRepository
	problems *expirable.LRU[string, model.Problem]
	contests *expirable.LRU[string, model.Contest]
}

func NewCachedProblemRepository(next ProblemRepository, cfg ProblemCacheConfig) *CachedProblemRepository {
	if cfg.Size <= 0 {
		cfg.Size = defaultProblemCacheSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultProblemCacheTTL
	}
	return &CachedProblemRepository{
		next:     next,
		problems: expirable.NewLRU[string, model.Problem](cfg.Size, nil, cfg.TTL),
		contests: expirable.NewLRU[string, model.Contest](cfg.Size, nil, cfg.TTL),
	}
}

func (r *CachedProblemRepository) GetProblem(ctx context.Context, problemID string) (model.Problem, error) {
	if problem, ok := r.problems.Get(problemID); ok {
		return problem, nil
	}
	problem, err := r.next.GetProblem(ctx, problemID)
	if err != nil {
		return model.Problem{}, err
	}
	r.problems.Add(problemID, problem)
	return problem, nil
}

func (r *CachedProblemRepository) GetContest(ctx context.Context, contestID string) (model.Contest, error) {
	if contest, ok := r.contests.Get(contestID); ok {
		return contest, nil
	}
	contest, err := r.next.GetContest(ctx, contestID)
	if err != nil {
		return model.Contest{}, err
	}
	r.contests.Add(contestID, contest)
	return contest, nil
}

// ListContestsByProblem is not cached; it backs mutation checks that must
// see fresh contest times.
func (r *CachedProblemRepository) ListContestsByProblem(ctx context.Context, problemID string) ([]model.Contest, error) {
	return r.next.ListContestsByProblem(ctx, problemID)
}

// Invalidate drops a problem after the authoring side changed it.
func (r *CachedProblemRepository) Invalidate(problemID string) {
	r.problems.Remove(problemID)
}
