package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "kemonograb/pkg/errors"
	"kemonograb/pkg/logger"
)

// Operation is retried as a whole; it must be safe to run repeatedly.
type Operation func() error

// OperationWithResult is an Operation that also yields a value.
type OperationWithResult[T any] func() (T, error)

// Config controls one retry loop.
type Config struct {
	// MaxAttempts caps executions of the operation, 0 means unlimited
	MaxAttempts int
	// Backoff computes the wait before each re-execution
	Backoff BackoffStrategy
	// RetryIf decides whether a failure is worth another attempt
	RetryIf func(error) bool
	// OnRetry observes each scheduled retry
	OnRetry func(attempt int, err error, delay time.Duration)
	// Context bounds the waits between attempts
	Context context.Context
	// Logger may be nil to silence the loop
	Logger logger.Logger
}

// DefaultConfig is three attempts on the default exponential schedule.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts: 3,
		Backoff:     DefaultExponentialBackoff(),
		RetryIf:     DefaultRetryIf,
		Context:     context.Background(),
		Logger:      logger.GetLogger(),
	}
}

// DefaultRetryIf is the default retry predicate. Typed errors follow
// their classification, user cancellation never retries, and anything
// unclassified defaults to retryable.
func DefaultRetryIf(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var typed *errs.Error
	if errors.As(err, &typed) {
		return errs.IsRetryable(typed.Type)
	}
	return true
}

// IsRetryable reports whether an HTTP status code is worth retrying.
func IsRetryable(statusCode int) bool {
	return errs.IsRetryableStatusCode(statusCode)
}

// Do runs op until it succeeds, exhausts the attempt budget, fails
// non-retryably, or the configured context ends. A nil cfg uses
// DefaultConfig. Non-retryable failures come back unwrapped.
func Do(op Operation, cfg *Config) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	for attempt := 1; ; attempt++ {
		err := op()
		if err == nil {
			if cfg.Logger != nil && attempt > 1 {
				cfg.Logger.DebugWithFields("operation recovered", map[string]interface{}{
					"attempts": attempt,
				})
			}
			return nil
		}

		if cfg.MaxAttempts > 0 && attempt >= cfg.MaxAttempts {
			if cfg.Logger != nil {
				cfg.Logger.ErrorWithFields("attempt budget exhausted", map[string]interface{}{
					"attempts":   attempt,
					"last_error": err.Error(),
				})
			}
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, err)
		}

		if !cfg.RetryIf(err) {
			if cfg.Logger != nil {
				cfg.Logger.DebugWithFields("failure is not retryable, giving up", map[string]interface{}{
					"error": err.Error(),
				})
			}
			return err
		}

		delay := cfg.Backoff.NextDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, delay)
		}
		if cfg.Logger != nil {
			cfg.Logger.WarnWithFields("retry scheduled", map[string]interface{}{
				"attempt":  attempt,
				"error":    err.Error(),
				"delay_ms": delay.Milliseconds(),
				"budget":   cfg.MaxAttempts,
			})
		}

		if waitErr := Wait(cfg.Context, delay); waitErr != nil {
			if cfg.Logger != nil {
				cfg.Logger.WarnWithFields("retry wait interrupted", map[string]interface{}{
					"attempt": attempt,
					"reason":  waitErr.Error(),
				})
			}
			return fmt.Errorf("retry cancelled: %w", waitErr)
		}
	}
}

// DoWithResult is Do for operations that yield a value.
func DoWithResult[T any](op OperationWithResult[T], cfg *Config) (T, error) {
	var out T
	err := Do(func() error {
		var innerErr error
		out, innerErr = op()
		return innerErr
	}, cfg)
	return out, err
}

// Retrier binds a Config for repeated use. The With* methods derive new
// retriers, leaving the receiver untouched.
type Retrier struct {
	config *Config
}

// NewRetrier wraps cfg, falling back to DefaultConfig on nil.
func NewRetrier(cfg *Config) *Retrier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Retrier{config: cfg}
}

func (r *Retrier) Do(op Operation) error {
	return Do(op, r.config)
}

func (r *Retrier) DoWithResult(op OperationWithResult[any]) (any, error) {
	return DoWithResult(op, r.config)
}

// derive copies the config, applies the change, and wraps the result.
func (r *Retrier) derive(change func(*Config)) *Retrier {
	next := *r.config
	change(&next)
	return &Retrier{config: &next}
}

func (r *Retrier) WithMaxAttempts(maxAttempts int) *Retrier {
	return r.derive(func(c *Config) { c.MaxAttempts = maxAttempts })
}

func (r *Retrier) WithBackoff(backoff BackoffStrategy) *Retrier {
	return r.derive(func(c *Config) { c.Backoff = backoff })
}

func (r *Retrier) WithContext(ctx context.Context) *Retrier {
	return r.derive(func(c *Config) { c.Context = ctx })
}

// HTTPRetrier retries network operations with delays scaled to the kind
// of failure: rate limit responses back off much longer than ordinary
// network hiccups.
type HTTPRetrier struct {
	*Retrier
	schedules *ErrorTypeBackoff
}

// NewHTTPRetrier builds a retrier on the standard per-error-type
// schedule. logger may be nil.
func NewHTTPRetrier(maxAttempts int, logger logger.Logger) *HTTPRetrier {
	return &HTTPRetrier{
		Retrier: NewRetrier(&Config{
			MaxAttempts: maxAttempts,
			Backoff:     DefaultExponentialBackoff(),
			RetryIf:     DefaultRetryIf,
			Context:     context.Background(),
			Logger:      logger,
		}),
		schedules: NewErrorTypeBackoff(),
	}
}

// WithContext binds attempts and backoff waits to ctx.
func (hr *HTTPRetrier) WithContext(ctx context.Context) *HTTPRetrier {
	return &HTTPRetrier{
		Retrier:   hr.Retrier.WithContext(ctx),
		schedules: hr.schedules,
	}
}

// WithBackoffStrategies swaps in a custom per-error-type schedule.
func (hr *HTTPRetrier) WithBackoffStrategies(etb *ErrorTypeBackoff) *HTTPRetrier {
	return &HTTPRetrier{
		Retrier:   hr.Retrier,
		schedules: etb,
	}
}

// DoWithErrorType runs op, classifying each failure before the next
// delay is computed, so the first rate limited response already waits
// on the rate limit schedule.
func (hr *HTTPRetrier) DoWithErrorType(op Operation) error {
	aware := &errorAwareBackoff{strategies: hr.schedules}

	cfg := *hr.config
	cfg.Backoff = aware

	return Do(func() error {
		err := op()
		if err != nil {
			aware.lastType = errs.Classify(err)
		}
		return err
	}, &cfg)
}

// errorAwareBackoff delegates to the schedule matching the most recent
// failure classification.
type errorAwareBackoff struct {
	strategies *ErrorTypeBackoff
	lastType   errs.ErrorType
}

func (b *errorAwareBackoff) NextDelay(attempt int) time.Duration {
	return b.strategies.GetBackoffForError(string(b.lastType)).NextDelay(attempt)
}

func (b *errorAwareBackoff) Reset() {
	b.lastType = ""
}
