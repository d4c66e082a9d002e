package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/judge/model"
	appErr "codearena/pkg/errors"
)

const (
	statusKeyPrefix  = "judge:status:"
	defaultStatusTTL = 24 * time.Hour
)

// StatusRepository keeps the latest progress snapshot of each submission.
type StatusRepository struct {
	cache cache.Cache
	TTL   time.Duration
}

// NewStatusRepository creates a new repository.
func NewStatusRepository(cacheClient cache.Cache, ttl time.Duration) *StatusRepository {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &StatusRepository{cache: cacheClient, TTL: ttl}
}

// Get returns the snapshot of a submission.
func (r *StatusRepository) Get(ctx context.Context, submissionID string) (model.StatusUpdate, error) {
	if submissionID == "" {
		return model.StatusUpdate{}, appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return model.StatusUpdate{}, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := r.cache.Get(ctx, statusKeyPrefix+submissionID)
	if err != nil {
		return model.StatusUpdate{}, appErr.Wrapf(err, appErr.CacheError, "load status failed")
	}
	if val == "" {
		return model.StatusUpdate{}, appErr.New(appErr.SubmissionNotFound).WithMessage("submission status not found")
	}
	var status model.StatusUpdate
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return model.StatusUpdate{}, appErr.Wrapf(err, appErr.CacheError, "decode status failed")
	}
	return status, nil
}

// Save stores the snapshot. A terminal snapshot is never replaced by a
// non-terminal one, so late progress writes cannot resurrect a finished run.
func (r *StatusRepository) Save(ctx context.Context, status model.StatusUpdate) error {
	if status.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	if !status.Stage.Terminal() {
		current, err := r.Get(ctx, status.SubmissionID)
		if err == nil && current.Stage.Terminal() {
			return nil
		}
	}
	if status.UpdatedAt == 0 {
		status.UpdatedAt = time.Now().Unix()
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status failed: %w", err)
	}
	if err := r.cache.Set(ctx, statusKeyPrefix+status.SubmissionID, string(data), r.TTL); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store status failed")
	}
	return nil
}

// Report implements the pipeline's status reporter.
func (r *StatusRepository) Report(ctx context.Context, status model.StatusUpdate) error {
	return r.Save(ctx, status)
}
