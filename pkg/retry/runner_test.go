package retry

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
)

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func TestRunner_SucceedsWithoutRetry(t *testing.T) {
	r := NewRunner(DefaultPolicy(), nil)
	r.Sleep = noSleep

	calls := 0
	trace, err := r.Run(context.Background(), "ai_runtime_call", func(ctx context.Context) (int, error) {
		calls++
		return 200, nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if len(trace) != 1 {
		t.Errorf("expected 1 trace entry, got %d", len(trace))
	}
}

func TestRunner_RetriesTransientThenSucceeds(t *testing.T) {
	policy := Policy{InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: time.Second, MaxRetries: 3}
	r := NewRunner(policy, DefaultClassifier)
	r.Sleep = noSleep
	r.Rng = rand.New(rand.NewSource(3))

	calls := 0
	trace, err := r.Run(context.Background(), "provider_send", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 503, errors.New("service unavailable")
		}
		return 200, nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(trace) != 3 {
		t.Errorf("expected 3 trace entries, got %d", len(trace))
	}
}

func TestRunner_StopsOnPermanentClassification(t *testing.T) {
	r := NewRunner(DefaultPolicy(), DefaultClassifier)
	r.Sleep = noSleep

	calls := 0
	_, err := r.Run(context.Background(), "ai_runtime_call", func(ctx context.Context) (int, error) {
		calls++
		return 400, errors.New("bad request")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call for a permanent failure, got %d", calls)
	}
}

func TestRunner_ExhaustsMaxRetries(t *testing.T) {
	policy := Policy{InitialDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: time.Second, MaxRetries: 2}
	r := NewRunner(policy, DefaultClassifier)
	r.Sleep = noSleep

	calls := 0
	trace, err := r.Run(context.Background(), "ai_runtime_call", func(ctx context.Context) (int, error) {
		calls++
		return 503, errors.New("down")
	})

	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected 1 initial + 2 retries = 3 calls, got %d", calls)
	}
	if len(trace) != 3 {
		t.Errorf("expected 3 trace entries, got %d", len(trace))
	}
}

func TestRunner_ContextCancellationDuringSleepAborts(t *testing.T) {
	policy := Policy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: time.Second, MaxRetries: 3}
	r := NewRunner(policy, DefaultClassifier)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := r.Run(ctx, "ai_runtime_call", func(ctx context.Context) (int, error) {
		calls++
		return 503, errors.New("down")
	})

	if err == nil {
		t.Fatal("expected context cancellation error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation aborted the loop, got %d", calls)
	}
}
