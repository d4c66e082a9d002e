package service

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"codearena/internal/common/mq"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"
)

const (
	retryHeader     = "x-judge-retry"
	lastErrorHeader = "x-judge-last-error"
)

// RequeuePolicy bounds how often a submission hit by a system fault goes
// back onto the retry topic.
type RequeuePolicy struct {
	Topic           string        `yaml:"topic"`
	DeadLetterTopic string        `yaml:"deadLetterTopic"`
	MaxRetries      int           `yaml:"maxRetries"`
	BaseDelay       time.Duration `yaml:"baseDelay"`
	MaxDelay        time.Duration `yaml:"maxDelay"`
}

// ParseRetryCount reads the requeue count carried by a message.
func ParseRetryCount(headers map[string]string) int {
	if headers == nil {
		return 0
	}
	raw, ok := headers[retryHeader]
	if !ok {
		return 0
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return 0
	}
	return val
}

// CloneMessageForRetry copies msg with a fresh timestamp and the given retry count.
func CloneMessageForRetry(msg *mq.Message, retryCount int) *mq.Message {
	if msg == nil {
		return mq.NewMessage(nil)
	}
	out := &mq.Message{
		ID:         msg.ID,
		Body:       msg.Body,
		Headers:    make(map[string]string, len(msg.Headers)+1),
		Timestamp:  time.Now(),
		RetryCount: 0,
		MaxRetries: msg.MaxRetries,
		Expiration: msg.Expiration,
	}
	for k, v := range msg.Headers {
		out.Headers[k] = v
	}
	out.Headers[retryHeader] = strconv.Itoa(retryCount)
	return out
}

// ComputeRetryBackoff doubles base per retry, capped at max.
func ComputeRetryBackoff(retryCount int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if retryCount <= 0 {
		if max > 0 && base > max {
			return max
		}
		return base
	}
	delay := base
	for i := 0; i < retryCount; i++ {
		if max > 0 && delay > max/2 {
			return max
		}
		delay *= 2
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}

// Requeue republishes msg to the retry topic after the backoff for its
// retry count. It reports false, without publishing, once the policy's
// retries are used up or when no retry topic is configured.
func Requeue(ctx context.Context, queue mq.Producer, policy RequeuePolicy, msg *mq.Message, cause error) (bool, error) {
	if queue == nil || policy.Topic == "" {
		return false, nil
	}
	if msg == nil {
		return false, appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	retryCount := ParseRetryCount(msg.Headers)
	if retryCount >= policy.MaxRetries {
		return false, nil
	}
	delay := ComputeRetryBackoff(retryCount, policy.BaseDelay, policy.MaxDelay)
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			logger.Warn(ctx, "judge requeue canceled during backoff", zap.Int("retry_count", retryCount), zap.String("message_id", msg.ID), zap.Duration("delay", delay))
			return false, ctx.Err()
		case <-timer.C:
		}
	}
	requeued := CloneMessageForRetry(msg, retryCount+1)
	if cause != nil {
		requeued.SetHeader(lastErrorHeader, cause.Error())
	}
	logger.Info(ctx, "judge requeue", zap.Int("retry_count", retryCount+1), zap.String("message_id", msg.ID), zap.Duration("delay", delay), zap.String("topic", policy.Topic))
	if err := queue.Publish(ctx, policy.Topic, requeued); err != nil {
		return false, appErr.Wrapf(err, appErr.ServiceUnavailable, "requeue judge message failed")
	}
	return true, nil
}

// DeadLetter parks msg on the dead letter topic as an operator alert.
func DeadLetter(ctx context.Context, queue mq.Producer, policy RequeuePolicy, msg *mq.Message, cause error) error {
	retryCount := ParseRetryCount(msg.Headers)
	if queue == nil || policy.DeadLetterTopic == "" {
		logger.Error(ctx, "judge retries exhausted without dead letter", zap.Int("retry_count", retryCount), zap.String("message_id", msg.ID), zap.Error(cause))
		return nil
	}
	dead := CloneMessageForRetry(msg, retryCount)
	if cause != nil {
		dead.SetHeader(lastErrorHeader, cause.Error())
	}
	logger.Error(ctx, "judge retries exhausted, sending to dead letter", zap.Int("retry_count", retryCount), zap.String("message_id", msg.ID), zap.String("topic", policy.DeadLetterTopic), zap.Error(cause))
	if err := queue.Publish(ctx, policy.DeadLetterTopic, dead); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish dead letter failed")
	}
	return nil
}
