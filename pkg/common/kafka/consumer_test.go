package kafka

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/gimmescrapes/platform/pkg/common/logger"
)

func TestMain(m *testing.M) {
	logger.Init("test")
	os.Exit(m.Run())
}

func testPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: maxAttempts, Interval: time.Millisecond, Factor: 2}
}

func TestDeliverSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	handler := func(context.Context, []byte) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	}

	if err := Deliver(context.Background(), nil, handler, testPolicy(5)); err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDeliverExhaustsAttempts(t *testing.T) {
	attempts := 0
	cause := errors.New("still broken")
	handler := func(context.Context, []byte) error {
		attempts++
		return cause
	}

	err := Deliver(context.Background(), nil, handler, testPolicy(3))
	if !errors.Is(err, cause) {
		t.Fatalf("expected the last handler error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", attempts)
	}
}

func TestDeliverShortCircuitsOnPermanentError(t *testing.T) {
	attempts := 0
	handler := func(context.Context, []byte) error {
		attempts++
		return &PermanentError{Err: errors.New("undecodable body")}
	}

	err := Deliver(context.Background(), nil, handler, testPolicy(5))
	var perm *PermanentError
	if !errors.As(err, &perm) {
		t.Fatalf("expected PermanentError, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestDeliverStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	handler := func(context.Context, []byte) error {
		attempts++
		cancel()
		return errors.New("transient")
	}

	err := Deliver(ctx, nil, handler, RetryPolicy{MaxAttempts: 5, Interval: time.Minute, Factor: 2})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected the backoff wait to be interrupted, got %d attempts", attempts)
	}
}

func TestDeliverNormalizesZeroAttempts(t *testing.T) {
	attempts := 0
	handler := func(context.Context, []byte) error {
		attempts++
		return nil
	}

	if err := Deliver(context.Background(), nil, handler, RetryPolicy{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected one attempt, got %d", attempts)
	}
}

func TestDeadLetterRetriesTransientPublishFailure(t *testing.T) {
	attempts := 0
	publish := func(context.Context) error {
		attempts++
		if attempts < 2 {
			return errors.New("broker unavailable")
		}
		return nil
	}

	if err := deadLetter(context.Background(), testPolicy(3), publish); err != nil {
		t.Fatalf("expected the dead-letter publish to succeed on retry, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 publish attempts, got %d", attempts)
	}
}

func TestDeadLetterSurfacesExhaustedPublishFailure(t *testing.T) {
	cause := errors.New("broker unavailable")
	publish := func(context.Context) error {
		return cause
	}

	// The caller must see this error and stop committing; a commit of any
	// later offset would acknowledge the unparked message with it.
	err := deadLetter(context.Background(), testPolicy(3), publish)
	if !errors.Is(err, cause) {
		t.Fatalf("expected the publish failure to surface, got %v", err)
	}
}

func TestDLQTopicNaming(t *testing.T) {
	if got := DLQTopic(ScrapeChannel); got != "scrape.dlq" {
		t.Fatalf("unexpected dlq topic: %s", got)
	}
	if got := DLQTopic(EmailChannel); got != "email.dlq" {
		t.Fatalf("unexpected dlq topic: %s", got)
	}
}
