package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    4,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     300 * time.Millisecond,
		RetryMultiplier:     2,
	})

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if got := exec.Backoff(i + 1); got != w {
			t.Fatalf("backoff(%d) = %s, want %s", i+1, got, w)
		}
	}
}

func TestExecuteRecordsMonotoneWaitsUntilSuccess(t *testing.T) {
	var bases, waits []time.Duration
	var attempts []int
	exec := NewExecutor(Config{
		RetryMaxAttempts:    4,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     8 * time.Millisecond,
		RetryMultiplier:     2,
		RetryJitter:         time.Millisecond,
		BreakerEnabled:      false,
	},
		WithRetryHook(func(_ string, _ int, base, wait time.Duration, _ error) {
			bases = append(bases, base)
			waits = append(waits, wait)
		}),
		WithAttemptHook(func(_ context.Context, _ string, attempt int, _ error) {
			attempts = append(attempts, attempt)
		}),
	)
	exec.jitter = func(time.Duration) time.Duration { return 0 }

	errTemp := errors.New("database is locked")
	calls := 0
	err := exec.Execute(context.Background(), "store.exec", func(context.Context) error {
		calls++
		if calls <= 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	})
	if err != nil {
		t.Fatalf("expected success on the fourth attempt, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
	if len(attempts) != 4 || attempts[3] != 4 {
		t.Fatalf("unexpected attempt hook calls: %v", attempts)
	}
	if len(bases) != 3 {
		t.Fatalf("expected 3 recorded waits, got %d", len(bases))
	}
	for i := 1; i < len(bases); i++ {
		if bases[i] < bases[i-1] {
			t.Fatalf("waits are not monotone: %v", bases)
		}
	}
	if bases[0] != time.Millisecond || bases[2] != 4*time.Millisecond {
		t.Fatalf("unexpected waits: %v", bases)
	}
	for i := range waits {
		if waits[i] != bases[i] {
			t.Fatalf("zero jitter should not change waits: %v vs %v", waits, bases)
		}
	}
}

func TestExecuteAddsBoundedJitter(t *testing.T) {
	var waits []time.Duration
	exec := NewExecutor(Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2,
		RetryJitter:         3 * time.Millisecond,
	}, WithRetryHook(func(_ string, _ int, _, wait time.Duration, _ error) {
		waits = append(waits, wait)
	}))
	exec.jitter = func(limit time.Duration) time.Duration {
		if limit != 3*time.Millisecond {
			t.Fatalf("unexpected jitter limit %s", limit)
		}
		return 2 * time.Millisecond
	}

	errTemp := errors.New("busy")
	_ = exec.Execute(context.Background(), "op", func(context.Context) error {
		return errTemp
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true}
	})
	if len(waits) != 1 || waits[0] != 3*time.Millisecond {
		t.Fatalf("expected one jittered wait of 3ms, got %v", waits)
	}
}

func TestExecuteReturnsLastErrorWhenRetriesExhausted(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    4,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2,
	})

	calls := 0
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return errors.New("timeout")
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	})
	if err == nil || err.Error() != "timeout" {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
}

func TestSingleShotConfigNeverRetries(t *testing.T) {
	exec := NewExecutor(SingleShotConfig())
	calls := 0
	_ = exec.Execute(context.Background(), "llm.complete", func(context.Context) error {
		calls++
		return errors.New("boom")
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	})
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}
