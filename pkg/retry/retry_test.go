package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "kemonograb/pkg/errors"
)

// quickConfig retries every failure on a 1ms constant delay.
func quickConfig(maxAttempts int) *Config {
	return &Config{
		MaxAttempts: maxAttempts,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		RetryIf:     func(error) bool { return true },
		Context:     context.Background(),
	}
}

func TestExponentialBackoffGrowth(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		JitterFactor: 0,
	}

	if got := backoff.NextDelay(0); got != 0 {
		t.Errorf("attempt 0 should not wait, got %v", got)
	}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second, // capped
		time.Second,
	}
	for i, expected := range want {
		attempt := i + 1
		if got := backoff.NextDelay(attempt); got != expected {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, expected)
		}
	}
}

func TestJitterSpreadsDelays(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.5,
	}

	seen := make(map[time.Duration]bool)
	for i := 0; i < 50; i++ {
		delay := backoff.NextDelay(1)
		// Factor 0.5 around 100ms keeps every draw inside [50ms, 150ms].
		if delay < 50*time.Millisecond || delay > 150*time.Millisecond {
			t.Fatalf("jittered delay %v outside the allowed band", delay)
		}
		seen[delay] = true
	}
	if len(seen) < 2 {
		t.Error("jitter produced identical delays across 50 draws")
	}
}

func TestLinearBackoffGrowth(t *testing.T) {
	backoff := &LinearBackoff{
		BaseDelay:    50 * time.Millisecond,
		MaxDelay:     150 * time.Millisecond,
		Increment:    25 * time.Millisecond,
		JitterFactor: 0,
	}

	for attempt := 1; attempt <= 8; attempt++ {
		expected := backoff.BaseDelay + backoff.Increment*time.Duration(attempt-1)
		if expected > backoff.MaxDelay {
			expected = backoff.MaxDelay
		}
		if got := backoff.NextDelay(attempt); got != expected {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, expected)
		}
	}
}

func TestConstantBackoff(t *testing.T) {
	backoff := &ConstantBackoff{Delay: 25 * time.Millisecond}

	if got := backoff.NextDelay(1); got != 25*time.Millisecond {
		t.Errorf("attempt 1: got %v", got)
	}
	if got := backoff.NextDelay(9); got != 25*time.Millisecond {
		t.Errorf("attempt 9: got %v", got)
	}
	if got := backoff.NextDelay(-1); got != 0 {
		t.Errorf("negative attempt should not wait, got %v", got)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	runs := 0
	err := Do(func() error {
		runs++
		if runs < 3 {
			return errors.New("listing not ready")
		}
		return nil
	}, quickConfig(5))

	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if runs != 3 {
		t.Errorf("ran %d times, want 3", runs)
	}
}

func TestDoReportsExhaustedAttempts(t *testing.T) {
	sentinel := errors.New("listing truncated")
	runs := 0
	err := Do(func() error {
		runs++
		return sentinel
	}, quickConfig(3))

	if !errors.Is(err, sentinel) {
		t.Errorf("exhaustion error should wrap the last failure, got %v", err)
	}
	if runs != 3 {
		t.Errorf("ran %d times, want exactly MaxAttempts", runs)
	}
}

func TestDoReturnsNonRetryableUnwrapped(t *testing.T) {
	authErr := errs.NewWithCode(errs.ErrorTypeAuth, 401, "session rejected")
	runs := 0

	cfg := quickConfig(5)
	cfg.RetryIf = DefaultRetryIf
	err := Do(func() error {
		runs++
		return authErr
	}, cfg)

	if err != authErr {
		t.Errorf("non-retryable failure should come back as-is, got %v", err)
	}
	if runs != 1 {
		t.Errorf("ran %d times, auth failures must not retry", runs)
	}
}

func TestDoStopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runs := 0

	cfg := quickConfig(5)
	cfg.Backoff = &ConstantBackoff{Delay: 100 * time.Millisecond}
	cfg.Context = ctx
	err := Do(func() error {
		runs++
		if runs == 2 {
			cancel()
		}
		return errors.New("host unreachable")
	}, cfg)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancellation to surface, got %v", err)
	}
	// The cancel lands before the second wait, so no third run happens.
	if runs != 2 {
		t.Errorf("ran %d times, want 2", runs)
	}
}

func TestDoInvokesOnRetry(t *testing.T) {
	var observed []int
	cfg := quickConfig(4)
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		if err == nil {
			t.Error("OnRetry fired without an error")
		}
		if delay != time.Millisecond {
			t.Errorf("OnRetry saw delay %v, want the configured 1ms", delay)
		}
		observed = append(observed, attempt)
	}

	runs := 0
	if err := Do(func() error {
		runs++
		if runs < 3 {
			return errors.New("transient")
		}
		return nil
	}, cfg); err != nil {
		t.Fatalf("Do: %v", err)
	}

	if len(observed) != 2 || observed[0] != 1 || observed[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", observed)
	}
}

func TestDefaultRetryIf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error", nil, false},
		{"user cancellation", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"network error", errs.New(errs.ErrorTypeNetwork, "reset"), true},
		{"rate limit error", errs.New(errs.ErrorTypeRateLimit, "slow down"), true},
		{"size mismatch", errs.New(errs.ErrorTypeSizeMismatch, "short read"), false},
		{"not found", errs.NewWithCode(errs.ErrorTypeNotFound, 404, "gone"), false},
		{"plain error", errors.New("something odd"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultRetryIf(tt.err); got != tt.want {
				t.Errorf("DefaultRetryIf(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNewErrorTypeBackoffSchedule(t *testing.T) {
	etb := NewErrorTypeBackoff()

	bases := []struct {
		class string
		base  time.Duration
	}{
		{"network", time.Second},
		{"rate_limit", 30 * time.Second},
		{"server_error", 5 * time.Second},
	}
	for _, tt := range bases {
		eb, ok := etb.GetBackoffForError(tt.class).(*ExponentialBackoff)
		if !ok {
			t.Errorf("%s schedule should be exponential", tt.class)
			continue
		}
		if eb.BaseDelay != tt.base {
			t.Errorf("%s base delay = %v, want %v", tt.class, eb.BaseDelay, tt.base)
		}
	}

	if etb.GetBackoffForError("auth") != etb.DefaultBackoff {
		t.Error("unknown classes should fall back to the default schedule")
	}
}

func TestErrorAwareBackoffSelection(t *testing.T) {
	aware := &errorAwareBackoff{strategies: &ErrorTypeBackoff{
		NetworkErrorBackoff: &ConstantBackoff{Delay: 1 * time.Millisecond},
		RateLimitBackoff:    &ConstantBackoff{Delay: 100 * time.Millisecond},
		ServerErrorBackoff:  &ConstantBackoff{Delay: 10 * time.Millisecond},
		DefaultBackoff:      &ConstantBackoff{Delay: 5 * time.Millisecond},
	}}

	// No error recorded yet means the default strategy
	if got := aware.NextDelay(1); got != 5*time.Millisecond {
		t.Errorf("Expected default delay, got %v", got)
	}

	aware.lastType = errs.ErrorTypeRateLimit
	if got := aware.NextDelay(1); got != 100*time.Millisecond {
		t.Errorf("Expected rate limit delay, got %v", got)
	}

	aware.lastType = errs.ErrorTypeNetwork
	if got := aware.NextDelay(1); got != 1*time.Millisecond {
		t.Errorf("Expected network delay, got %v", got)
	}

	aware.Reset()
	if got := aware.NextDelay(1); got != 5*time.Millisecond {
		t.Errorf("Expected default delay after reset, got %v", got)
	}
}

func TestHTTPRetrierUsesRateLimitBackoff(t *testing.T) {
	hr := NewHTTPRetrier(3, nil)
	hr.schedules.RateLimitBackoff = &ConstantBackoff{Delay: 1 * time.Millisecond}
	hr.schedules.DefaultBackoff = &ConstantBackoff{Delay: 1 * time.Millisecond}

	attempts := 0
	err := hr.DoWithErrorType(func() error {
		attempts++
		if attempts < 2 {
			return errs.NewWithCode(errs.ErrorTypeRateLimit, 429, "too many requests")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Expected success after rate limited retry, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestRetrierDerivation(t *testing.T) {
	base := NewRetrier(quickConfig(5))
	strict := base.WithMaxAttempts(2)

	runs := 0
	err := strict.Do(func() error {
		runs++
		return errors.New("still failing")
	})
	if err == nil {
		t.Fatal("expected the derived retrier to give up")
	}
	if runs != 2 {
		t.Errorf("derived retrier ran %d times, want 2", runs)
	}
	if base.config.MaxAttempts != 5 {
		t.Error("deriving must not mutate the base retrier")
	}
}

func TestDoWithResult(t *testing.T) {
	runs := 0
	page, err := DoWithResult(func() (string, error) {
		runs++
		if runs < 2 {
			return "", errors.New("empty body")
		}
		return "posts-page-2", nil
	}, quickConfig(3))

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if page != "posts-page-2" {
		t.Errorf("result = %q, want posts-page-2", page)
	}
	if runs != 2 {
		t.Errorf("ran %d times, want 2", runs)
	}
}
