package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"codearena/internal/common/mq"
)

func TestComputeRetryBackoff(t *testing.T) {
	cases := []struct {
		retry int
		want  time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{5, time.Second},
	}
	for _, tc := range cases {
		if got := ComputeRetryBackoff(tc.retry, 100*time.Millisecond, time.Second); got != tc.want {
			t.Fatalf("retry %d: got %v, want %v", tc.retry, got, tc.want)
		}
	}
	if got := ComputeRetryBackoff(3, 0, time.Second); got != 0 {
		t.Fatalf("zero base disables backoff, got %v", got)
	}
}

func TestParseRetryCount(t *testing.T) {
	if ParseRetryCount(nil) != 0 || ParseRetryCount(map[string]string{retryHeader: "x"}) != 0 {
		t.Fatalf("malformed headers should count as zero")
	}
	if ParseRetryCount(map[string]string{retryHeader: "2"}) != 2 {
		t.Fatalf("expected 2")
	}
}

func TestRequeueIncrementsUntilExhausted(t *testing.T) {
	queue := &memoryQueue{}
	policy := RequeuePolicy{Topic: "judge.retry", MaxRetries: 2}
	msg := mq.NewMessage([]byte(`{}`))
	msg.ID = "s1"

	for want := 1; want <= 2; want++ {
		ok, err := Requeue(context.Background(), queue, policy, msg, errors.New("sandbox down"))
		if err != nil || !ok {
			t.Fatalf("requeue %d: %v %v", want, ok, err)
		}
		msg = queue.last()
		if ParseRetryCount(msg.Headers) != want || msg.ID != "s1" {
			t.Fatalf("unexpected requeued message %+v", msg)
		}
		if reason, _ := msg.GetHeader(lastErrorHeader); reason != "sandbox down" {
			t.Fatalf("cause header missing: %q", reason)
		}
	}
	ok, err := Requeue(context.Background(), queue, policy, msg, nil)
	if err != nil || ok {
		t.Fatalf("expected exhaustion, got %v %v", ok, err)
	}
	if len(queue.published) != 2 {
		t.Fatalf("exhausted requeue must not publish")
	}
}
