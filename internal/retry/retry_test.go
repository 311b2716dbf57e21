package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), FixedBackoff(3, time.Millisecond, time.Millisecond), func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	calls := 0
	err := Do(context.Background(), FixedBackoff(3, time.Millisecond, time.Millisecond), func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), FixedBackoff(3, time.Millisecond, time.Millisecond), func(ctx context.Context, attempt int) error {
		calls++
		return errors.New("permanent-ish")
	})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoNonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	sentinel := errors.New("permanent")
	policy := Policy{
		Attempts: 3,
		Backoff:  []time.Duration{time.Millisecond},
		Retryable: func(err error) bool {
			return !errors.Is(err, sentinel)
		},
	}
	err := Do(context.Background(), policy, func(ctx context.Context, attempt int) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call (no retry), got %d", calls)
	}
}

func TestDoRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, FixedBackoff(3, 10*time.Millisecond), func(ctx context.Context, attempt int) error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
