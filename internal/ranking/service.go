package ranking

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"codearena/internal/common/cache"
	"codearena/internal/common/mq"
	"codearena/internal/judge/model"
	"codearena/internal/judge/repository"
	"codearena/internal/judge/window"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"
)

const (
	rankingKeyPrefix       = "ranking:contest:"
	rankingLockPrefix      = "ranking:lock:"
	defaultRankingTTL      = 30 * time.Second
	defaultRankingEmptyTTL = 5 * time.Second
	defaultLockTTL         = 10 * time.Second
	defaultLockWait        = 2 * time.Second
	lockPollInterval       = 25 * time.Millisecond
)

// Config tunes the ranking cache.
type Config struct {
	TTL      time.Duration `yaml:"ttl"`
	EmptyTTL time.Duration `yaml:"emptyTTL"`
	// LockTTL bounds how long one replica may hold a board rebuild.
	LockTTL time.Duration `yaml:"lockTTL"`
	// LockWait is how long a replica waits for another one's rebuild before
	// computing the board itself.
	LockWait time.Duration `yaml:"lockWait"`
}

// Service serves leaderboards recomputed from the submission log. Boards
// are cached in Redis and dropped whenever a final verdict of the contest
// arrives. A rebuild that read the log before that verdict can still store
// its board after the drop, so a cached board may lag by at most TTL.
type Service struct {
	problems    repository.ProblemRepository
	submissions repository.SubmissionRepository
	cache       cache.BasicOps
	locker      cache.LockOps
	policy      Policy
	clock       window.Clock
	ttl         time.Duration
	emptyTTL    time.Duration
	lockTTL     time.Duration
	lockWait    time.Duration
}

// NewService creates the ranking service. cacheClient may be nil; rebuilds
// are single-flighted across replicas when it also implements cache.LockOps.
func NewService(problems repository.ProblemRepository, submissions repository.SubmissionRepository, cacheClient cache.BasicOps, policy Policy, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultRankingTTL
	}
	if cfg.EmptyTTL <= 0 {
		cfg.EmptyTTL = defaultRankingEmptyTTL
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}
	locker, _ := cacheClient.(cache.LockOps)
	return &Service{
		problems:    problems,
		submissions: submissions,
		cache:       cacheClient,
		locker:      locker,
		policy:      policy,
		clock:       window.SystemClock{},
		ttl:         cfg.TTL,
		emptyTTL:    cfg.EmptyTTL,
		lockTTL:     cfg.LockTTL,
		lockWait:    cfg.LockWait,
	}
}

// Rank returns the leaderboard of a contest that has started.
func (s *Service) Rank(ctx context.Context, contestID string) ([]Entry, error) {
	if contestID == "" {
		return nil, appErr.ValidationError("contest_id", "required")
	}
	contest, err := s.problems.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if window.PhaseOf(&contest, s.clock.Now()) == window.PhaseScheduled {
		return nil, appErr.Newf(appErr.RankingNotAvailable, "contest %s has not started", contestID)
	}
	if s.cache == nil {
		return s.compute(ctx, contest)
	}
	return cache.GetWithCached[[]Entry](
		ctx,
		s.cache,
		rankingKey(contestID),
		s.ttl,
		s.emptyTTL,
		func(entries []Entry) bool { return len(entries) == 0 },
		marshalEntries,
		unmarshalEntries,
		func(ctx context.Context) ([]Entry, error) { return s.rebuild(ctx, contest) },
	)
}

// rebuild computes a board under the contest's rebuild lock. A replica that
// loses the lock waits for the holder's board and falls back to computing it
// when none shows up in time.
func (s *Service) rebuild(ctx context.Context, contest model.Contest) ([]Entry, error) {
	if s.locker == nil {
		return s.compute(ctx, contest)
	}
	lockKey := rankingLockPrefix + contest.ID
	acquired, err := s.locker.TryLock(ctx, lockKey, s.lockTTL)
	switch {
	case err != nil:
		logger.Warn(ctx, "ranking lock unavailable", zap.String("contest_id", contest.ID), zap.Error(err))
	case acquired:
		defer func() {
			if err := s.locker.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
				logger.Warn(ctx, "release ranking lock failed", zap.String("contest_id", contest.ID), zap.Error(err))
			}
		}()
	default:
		if entries, ok := s.awaitBoard(ctx, contest.ID); ok {
			return entries, nil
		}
	}
	return s.compute(ctx, contest)
}

func (s *Service) awaitBoard(ctx context.Context, contestID string) ([]Entry, bool) {
	deadline := time.NewTimer(s.lockWait)
	defer deadline.Stop()
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-deadline.C:
			return nil, false
		case <-ticker.C:
		}
		raw, err := s.cache.Get(ctx, rankingKey(contestID))
		if err != nil || raw == "" {
			continue
		}
		if raw == cache.NullCacheValue {
			return nil, true
		}
		if entries, err := unmarshalEntries(raw); err == nil {
			return entries, true
		}
	}
}

func (s *Service) compute(ctx context.Context, contest model.Contest) ([]Entry, error) {
	problems := make([]model.Problem, 0, len(contest.ProblemIDs))
	for _, id := range contest.ProblemIDs {
		p, err := s.problems.GetProblem(ctx, id)
		if err != nil {
			if appErr.Is(err, appErr.ProblemNotFound) {
				logger.Warn(ctx, "contest references missing problem", zap.String("contest_id", contest.ID), zap.String("problem_id", id))
				continue
			}
			return nil, err
		}
		problems = append(problems, p)
	}
	submissions, err := s.submissions.ListByContest(ctx, contest.ID)
	if err != nil {
		return nil, err
	}
	return Compute(contest, problems, submissions, s.policy), nil
}

// Invalidate drops the cached board of a contest.
func (s *Service) Invalidate(ctx context.Context, contestID string) error {
	if s.cache == nil || contestID == "" {
		return nil
	}
	if err := s.cache.Del(ctx, rankingKey(contestID)); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "invalidate ranking failed")
	}
	return nil
}

// HandleVerdictEvent consumes final verdict events and invalidates the
// board of the event's contest. Practice verdicts are ignored.
func (s *Service) HandleVerdictEvent(ctx context.Context, msg *mq.Message) error {
	event, err := repository.DecodeVerdictEvent(msg)
	if err != nil {
		logger.Warn(ctx, "drop undecodable verdict event", zap.Error(err))
		return nil
	}
	if event.ContestID == "" {
		return nil
	}
	return s.Invalidate(ctx, event.ContestID)
}

func rankingKey(contestID string) string {
	return rankingKeyPrefix + contestID
}

func marshalEntries(entries []Entry) (string, error) {
	payload, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

func unmarshalEntries(data string) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal([]byte(data), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
