// Package service connects the judge pipeline to its inbound transports:
// the Kafka task topics and the internal HTTP API both go through one
// worker pool.
package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"codearena/internal/common/mq"
	"codearena/internal/judge/model"
	"codearena/internal/judge/repository"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/contextkey"
	"codearena/pkg/utils/logger"
)

// Finalizer records the terminal system fault verdict of a submission the
// service stopped retrying.
type Finalizer interface {
	Finalize(ctx context.Context, req model.SubmissionRequest, cause error) (model.Submission, error)
}

// Config holds service dependencies and settings.
type Config struct {
	Pool      *Pool
	Finalizer Finalizer
	Status    *repository.StatusRepository
	Queue     mq.Producer
	Requeue   RequeuePolicy
	// JudgeTimeout bounds one submission from dequeue to verdict.
	JudgeTimeout time.Duration
}

// Service handles judge tasks.
type Service struct {
	pool         *Pool
	finalizer    Finalizer
	status       *repository.StatusRepository
	queue        mq.Producer
	requeue      RequeuePolicy
	judgeTimeout time.Duration
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Pool == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("worker pool is required")
	}
	if cfg.Finalizer == nil {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("finalizer is required")
	}
	return &Service{
		pool:         cfg.Pool,
		finalizer:    cfg.Finalizer,
		status:       cfg.Status,
		queue:        cfg.Queue,
		requeue:      cfg.Requeue,
		judgeTimeout: cfg.JudgeTimeout,
	}, nil
}

// Judge runs req through the pool and waits for the verdict.
//
// A submission interrupted by a system fault after admission is never
// dropped. With a retry topic configured it is requeued, reported as
// Requeued and returned with a SubmissionRequeued error; otherwise its
// terminal system fault rejection is recorded and returned.
func (s *Service) Judge(ctx context.Context, req model.SubmissionRequest) (model.Submission, error) {
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now().UTC()
	}
	sub, err := s.judge(ctx, req)
	if err == nil || !interrupted(sub, err) {
		return sub, err
	}
	req.SubmissionID = sub.ID
	ctx = context.WithValue(context.WithoutCancel(ctx), contextkey.SubmissionID, sub.ID)
	return s.recoverSystemFault(ctx, req, err)
}

func (s *Service) judge(ctx context.Context, req model.SubmissionRequest) (model.Submission, error) {
	if s.judgeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.judgeTimeout)
		defer cancel()
	}
	return s.pool.Judge(ctx, req)
}

// interrupted reports whether judging of an admitted submission stopped on
// a platform fault.
func interrupted(sub model.Submission, err error) bool {
	return sub.ID != "" && sub.Verdict.SystemFault && appErr.IsSystem(err)
}

func (s *Service) recoverSystemFault(ctx context.Context, req model.SubmissionRequest, cause error) (model.Submission, error) {
	body, err := json.Marshal(model.JudgeMessage{Request: req})
	if err != nil {
		logger.Warn(ctx, "encode retry message failed", zap.Error(err))
		return s.finalizer.Finalize(ctx, req, cause)
	}
	msg := mq.NewMessage(body)
	msg.ID = req.SubmissionID
	requeued, err := Requeue(ctx, s.queue, s.requeue, msg, cause)
	if err != nil {
		logger.Warn(ctx, "requeue failed", zap.Error(err))
	}
	if !requeued {
		return s.finalizer.Finalize(ctx, req, cause)
	}
	s.reportRequeued(ctx, req)
	pending := model.Submission{
		ID:           req.SubmissionID,
		ContestantID: req.ContestantID,
		ProblemID:    req.ProblemID,
		ContestID:    req.ContestID,
		Language:     req.Language,
		CreatedAt:    req.SubmittedAt.UTC(),
	}
	return pending, appErr.Newf(appErr.SubmissionRequeued, "submission %s requeued", req.SubmissionID)
}

func (s *Service) reportRequeued(ctx context.Context, req model.SubmissionRequest) {
	if s.status == nil {
		return
	}
	err := s.status.Report(ctx, model.StatusUpdate{
		SubmissionID: req.SubmissionID,
		ContestantID: req.ContestantID,
		ProblemID:    req.ProblemID,
		ContestID:    req.ContestID,
		Stage:        model.StageRequeued,
		UpdatedAt:    time.Now().Unix(),
	})
	if err != nil {
		logger.Warn(ctx, "report requeued status failed", zap.Error(err))
	}
}

// Status returns the latest progress snapshot of a submission.
func (s *Service) Status(ctx context.Context, submissionID string) (model.StatusUpdate, error) {
	if s.status == nil {
		return model.StatusUpdate{}, appErr.New(appErr.ServiceUnavailable).WithMessage("status store is not configured")
	}
	return s.status.Get(ctx, submissionID)
}

// HandleMessage processes one judge task message. It returns nil once the
// message may be committed: judged, requeued, or dropped as malformed.
func (s *Service) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	var payload model.JudgeMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		logger.Warn(ctx, "drop undecodable judge message", zap.String("message_id", msg.ID), zap.Error(err))
		return nil
	}
	req := payload.Request
	if req.SubmissionID == "" {
		// The id must survive requeues, so it is fixed before the first attempt.
		req.SubmissionID = msg.ID
	}
	if req.SubmissionID == "" {
		logger.Warn(ctx, "drop judge message without submission id", zap.String("message_id", msg.ID))
		return nil
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = msg.Timestamp.UTC()
	}
	ctx = context.WithValue(ctx, contextkey.SubmissionID, req.SubmissionID)

	sub, err := s.judge(ctx, req)
	if err == nil {
		logger.Debug(ctx, "judge message done", zap.String("outcome", string(sub.Verdict.Outcome)))
		return nil
	}
	if appErr.Is(err, appErr.JudgePoolShutdown) || ctx.Err() != nil {
		// Leave the message uncommitted for the next consumer.
		return err
	}
	if !appErr.IsSystem(err) {
		logger.Warn(ctx, "drop judge message", zap.Int("code", int(appErr.GetCode(err))), zap.Error(err))
		return nil
	}
	return s.retryOrFinalize(ctx, msg, payload, req, err)
}

func (s *Service) retryOrFinalize(ctx context.Context, msg *mq.Message, payload model.JudgeMessage, req model.SubmissionRequest, cause error) error {
	if payload.Request.SubmissionID == "" {
		payload.Request.SubmissionID = req.SubmissionID
		payload.Request.SubmittedAt = req.SubmittedAt
		if body, err := json.Marshal(payload); err == nil {
			msg = CloneMessageForRetry(msg, ParseRetryCount(msg.Headers))
			msg.Body = body
		}
	}
	requeued, err := Requeue(ctx, s.queue, s.requeue, msg, cause)
	if err != nil {
		logger.Warn(ctx, "requeue failed", zap.Error(err))
		return err
	}
	if requeued {
		s.reportRequeued(ctx, req)
		return nil
	}

	finalCtx := context.WithoutCancel(ctx)
	if _, err := s.finalizer.Finalize(finalCtx, req, cause); err != nil {
		// Uncommitted: Kafka redelivers and the whole path runs again.
		return err
	}
	if err := DeadLetter(finalCtx, s.queue, s.requeue, msg, cause); err != nil {
		logger.Warn(ctx, "dead letter failed", zap.Error(err))
	}
	return nil
}
