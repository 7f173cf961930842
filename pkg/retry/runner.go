package retry

import (
	"context"
	"math/rand"
	"time"
)

// Attempt records one try of a retried call, for appending to a
// ProcessingTrace.
type Attempt struct {
	Index      int
	StatusCode int
	Err        error
	DelayMs    int64
}

// Runner drives a retry loop with an injectable RNG and sleep, so tests can
// assert on backoff timing without waiting in real time.
type Runner struct {
	Policy     Policy
	Classifier Classifier
	Rng        *rand.Rand
	Sleep      func(context.Context, time.Duration) error
}

// NewRunner builds a Runner with the given policy and classifier (the
// built-in DefaultClassifier when classifier is nil), a time-seeded RNG,
// and a real-time sleep.
func NewRunner(policy Policy, classifier Classifier) *Runner {
	if classifier == nil {
		classifier = DefaultClassifier
	}
	return &Runner{
		Policy:     policy,
		Classifier: classifier,
		Rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		Sleep:      contextSleep,
	}
}

func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Call is the function a Runner drives; it returns the status code it
// observed (0 for a transport-level failure) alongside any error.
type Call func(ctx context.Context) (statusCode int, err error)

// Run executes call, retrying per r.Policy and r.Classifier until it
// succeeds (err == nil), a Permanent classification is reached, or
// MaxRetries is exhausted. The returned []Attempt is the full trace,
// whether or not the final attempt succeeded.
func (r *Runner) Run(ctx context.Context, stage string, call Call) ([]Attempt, error) {
	var trace []Attempt
	var lastErr error

	for i := 0; i <= r.Policy.MaxRetries; i++ {
		status, err := call(ctx)
		if err == nil {
			trace = append(trace, Attempt{Index: i, StatusCode: status})
			return trace, nil
		}

		attrs := ErrorAttributes{StatusCode: status, Message: err.Error(), Stage: stage}
		class := r.Classifier.Classify(attrs)
		lastErr = err

		if class == Permanent || i == r.Policy.MaxRetries {
			trace = append(trace, Attempt{Index: i, StatusCode: status, Err: err})
			return trace, lastErr
		}

		delay := ComputeBackoff(r.Policy, i+1, r.Rng)
		trace = append(trace, Attempt{Index: i, StatusCode: status, Err: err, DelayMs: delay.Milliseconds()})

		if sleepErr := r.Sleep(ctx, delay); sleepErr != nil {
			return trace, sleepErr
		}
	}

	return trace, lastErr
}
