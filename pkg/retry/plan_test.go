package retry

import (
	"math/rand"
	"testing"
	"time"
)

func TestGeneratePlan_FirstAttemptImmediate(t *testing.T) {
	now := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	policy := Policy{
		InitialDelay:  500 * time.Millisecond,
		BackoffFactor: 2,
		MaxDelay:      10 * time.Second,
		MaxRetries:    3,
	}
	rng := rand.New(rand.NewSource(1))

	plan := GeneratePlan("effect-1", policy, now, rng)

	if len(plan.Schedule) != 4 {
		t.Fatalf("expected 4 scheduled attempts (1 initial + 3 retries), got %d", len(plan.Schedule))
	}
	if plan.Schedule[0].DelayMs != 0 {
		t.Errorf("expected attempt 0 to fire immediately, got delay %dms", plan.Schedule[0].DelayMs)
	}
	if !plan.Schedule[0].ScheduledAt.Equal(now) {
		t.Errorf("expected attempt 0 scheduled at %v, got %v", now, plan.Schedule[0].ScheduledAt)
	}
}

func TestGeneratePlan_MonotonicallyIncreasingSchedule(t *testing.T) {
	now := time.Now()
	policy := DefaultPolicy()
	rng := rand.New(rand.NewSource(2))

	plan := GeneratePlan("effect-2", policy, now, rng)

	for i := 1; i < len(plan.Schedule); i++ {
		if plan.Schedule[i].ScheduledAt.Before(plan.Schedule[i-1].ScheduledAt) {
			t.Fatalf("schedule not monotonic at index %d", i)
		}
	}
}
