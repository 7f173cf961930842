package retry

import (
	"math/rand"
	"testing"
	"time"
)

func TestComputeBackoff_BoundedByMaxDelay(t *testing.T) {
	policy := Policy{
		InitialDelay:  500 * time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      2 * time.Second,
		MaxRetries:    10,
	}
	rng := rand.New(rand.NewSource(1))

	for attempt := 1; attempt <= 10; attempt++ {
		d := ComputeBackoff(policy, attempt, rng)
		if d < 0 || d > policy.MaxDelay {
			t.Fatalf("attempt %d: delay %v out of bounds [0, %v]", attempt, d, policy.MaxDelay)
		}
	}
}

func TestComputeBackoff_JitterWithinRange(t *testing.T) {
	policy := Policy{
		InitialDelay:  1 * time.Second,
		BackoffFactor: 2,
		MaxDelay:      time.Hour,
		MaxRetries:    3,
	}
	rng := rand.New(rand.NewSource(42))

	d := ComputeBackoff(policy, 1, rng)
	lower := 800 * time.Millisecond
	upper := 1200 * time.Millisecond
	if d < lower || d > upper {
		t.Fatalf("expected delay in [%v, %v] for attempt 1, got %v", lower, upper, d)
	}
}

func TestComputeBackoff_ExponentialGrowth(t *testing.T) {
	policy := Policy{
		InitialDelay:  100 * time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      time.Hour,
		MaxRetries:    5,
	}
	rng := rand.New(rand.NewSource(7))

	d1 := ComputeBackoff(policy, 1, rng)
	d3 := ComputeBackoff(policy, 3, rng)

	// Even accounting for jitter, attempt 3's base (400ms) before jitter is
	// 4x attempt 1's base (100ms); the jitter range (0.8-1.2x) can't close
	// that gap.
	if d3 <= d1 {
		t.Errorf("expected attempt 3 delay (%v) > attempt 1 delay (%v)", d3, d1)
	}
}

func TestClampRetryAfter(t *testing.T) {
	policy := Policy{MaxDelay: 5 * time.Second}

	if got := ClampRetryAfter(policy, 30*time.Second); got != 5*time.Second {
		t.Errorf("expected clamp to MaxDelay, got %v", got)
	}
	if got := ClampRetryAfter(policy, 2*time.Second); got != 2*time.Second {
		t.Errorf("expected Retry-After honored under the cap, got %v", got)
	}
	if got := ClampRetryAfter(policy, -1); got != 0 {
		t.Errorf("expected negative Retry-After clamped to 0, got %v", got)
	}
}
