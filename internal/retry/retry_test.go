package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxRetries: 3, Interval: time.Millisecond}, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
}

func TestDo_ExactAttemptBound(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), Config{MaxRetries: 4, Interval: time.Millisecond}, func() error {
		calls++
		return boom
	})
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	// Initial attempt plus MaxRetries retries.
	if calls != 5 {
		t.Fatalf("expected exactly 5 attempts, got %d", calls)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
	if !strings.Contains(err.Error(), "5 attempts") {
		t.Fatalf("error should mention attempt count: %v", err)
	}
}

func TestDo_ZeroRetriesMeansSingleAttempt(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), Config{MaxRetries: 0, Interval: time.Millisecond}, func() error {
		calls++
		return errors.New("nope")
	})
	if calls != 1 {
		t.Fatalf("expected single attempt, got %d", calls)
	}
}

func TestDo_RecoversMidway(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxRetries: 5, Interval: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDo_ContextCancelDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, Config{MaxRetries: 10, Interval: time.Minute}, func() error {
		calls++
		return errors.New("still down")
	})
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected no further attempts after cancel, got %d", calls)
	}
}
