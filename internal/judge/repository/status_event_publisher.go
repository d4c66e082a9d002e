package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codearena/internal/common/mq"
	"codearena/internal/judge/model"
	appErr "codearena/pkg/errors"
)

// VerdictPublisher announces final verdicts to downstream consumers.
type VerdictPublisher interface {
	PublishFinal(ctx context.Context, submission *model.Submission) error
}

// MQVerdictPublisher publishes final verdict events to a message queue.
type MQVerdictPublisher struct {
	queue mq.MessageQueue
	topic string
	now   func() time.Time
}

// NewMQVerdictPublisher creates a new MQ verdict publisher.
func NewMQVerdictPublisher(queue mq.MessageQueue, topic string) *MQVerdictPublisher {
	return &MQVerdictPublisher{queue: queue, topic: topic, now: time.Now}
}

// PublishFinal publishes the final event of a submission keyed by its id.
func (p *MQVerdictPublisher) PublishFinal(ctx context.Context, submission *model.Submission) error {
	if p == nil || p.queue == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("verdict publisher is not configured")
	}
	if p.topic == "" {
		return appErr.New(appErr.InvalidParams).WithMessage("verdict topic is required")
	}
	if submission == nil || submission.ID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	payload, err := json.Marshal(model.NewVerdictEvent(submission, p.now()))
	if err != nil {
		return fmt.Errorf("marshal verdict event failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = submission.ID
	message.SetHeader("contest_id", submission.ContestID)
	if err := p.queue.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.ServiceUnavailable, "publish verdict event failed")
	}
	return nil
}

// DecodeVerdictEvent parses a message published by MQVerdictPublisher.
func DecodeVerdictEvent(message *mq.Message) (model.VerdictEvent, error) {
	if message == nil {
		return model.VerdictEvent{}, appErr.ValidationError("message", "required")
	}
	var event model.VerdictEvent
	if err := json.Unmarshal(message.Body, &event); err != nil {
		return model.VerdictEvent{}, appErr.Wrapf(err, appErr.InvalidFormat, "decode verdict event failed")
	}
	if event.Type != model.VerdictEventType {
		return model.VerdictEvent{}, appErr.Newf(appErr.InvalidFormat, "unexpected event type %q", event.Type)
	}
	return event, nil
}
