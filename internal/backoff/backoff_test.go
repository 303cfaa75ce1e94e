package backoff

import (
	"context"
	"testing"
	"time"
)

func TestComputeBackoffWithRand(t *testing.T) {
	policy := BackoffPolicy{InitialMs: 100, MaxMs: 10000, Factor: 2, Jitter: 0}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{0, 100 * time.Millisecond}, // clamped to attempt 1
	}
	for _, tc := range cases {
		got := ComputeBackoffWithRand(policy, tc.attempt, 0)
		if got != tc.want {
			t.Errorf("attempt %d: got %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestComputeBackoff_ClampsToMax(t *testing.T) {
	policy := BackoffPolicy{InitialMs: 1000, MaxMs: 3000, Factor: 10, Jitter: 0}
	if got := ComputeBackoffWithRand(policy, 5, 0); got != 3*time.Second {
		t.Errorf("got %v, want 3s", got)
	}
}

func TestComputeBackoff_JitterAddsUpTo(t *testing.T) {
	policy := BackoffPolicy{InitialMs: 1000, MaxMs: 60000, Factor: 2, Jitter: 0.5}
	base := ComputeBackoffWithRand(policy, 1, 0)
	full := ComputeBackoffWithRand(policy, 1, 0.999999)
	if base != time.Second {
		t.Errorf("base = %v, want 1s", base)
	}
	if full <= base || full > 1500*time.Millisecond {
		t.Errorf("jittered = %v, want in (1s, 1.5s]", full)
	}
}

func TestSleepWithContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := SleepWithContext(ctx, 5*time.Second)
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("sleep did not abort on cancellation")
	}
}

func TestSleepWithContext_ZeroDuration(t *testing.T) {
	if err := SleepWithContext(context.Background(), 0); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
}
