package aiprovider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/connexus-ai/smartrag-orchestrator/internal/apperr"
	"github.com/connexus-ai/smartrag-orchestrator/internal/config"
)

// ErrRateLimited is returned when every retry is exhausted on a 429 response.
var ErrRateLimited = errors.New("the provider is rate-limiting requests; please try again shortly")

// RetryableError lets a provider's transport-layer error report its HTTP
// status and an optional Retry-After hint, so Do doesn't need to
// string-match error text the way the teacher's isRetryableError did.
type RetryableError struct {
	StatusCode int
	RetryAfter time.Duration // zero when the server sent no hint
	Cause      error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("status %d: %v", e.StatusCode, e.Cause)
}

func (e *RetryableError) Unwrap() error {
	return e.Cause
}

// Retrier applies one of three backoff shapes (fixed/linear/exponential)
// around a provider call, honoring a
// 429 Retry-After as a floor on the delay. A retry is attempted on any
// transport/server error; 4xx client errors are not retried except 429.
type Retrier struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Policy      config.RetryPolicy
}

// NewRetrier builds a Retrier from the loaded Config.
func NewRetrier(cfg *config.Config) *Retrier {
	return &Retrier{
		MaxAttempts: cfg.MaxRetryAttempts,
		BaseDelay:   time.Duration(cfg.RetryDelayMs) * time.Millisecond,
		Policy:      cfg.RetryPolicy,
	}
}

func (r *Retrier) delayFor(attempt int) time.Duration {
	switch r.Policy {
	case config.RetryFixed:
		return r.BaseDelay
	case config.RetryLinear:
		return r.BaseDelay * time.Duration(attempt+1)
	case config.RetryExponential:
		return r.BaseDelay * time.Duration(1<<uint(attempt))
	default:
		return r.BaseDelay
	}
}

// Do executes fn up to MaxAttempts times total (1 initial + MaxAttempts-1
// retries), applying the configured backoff between attempts. fn's error
// should be (or wrap) a *RetryableError for the retry decision to consider
// its status code; any other error is treated as non-retryable.
func Do[T any](ctx context.Context, r *Retrier, operation string, fn func() (T, error)) (T, error) {
	var zero T
	result, err := fn()
	if err == nil {
		return result, nil
	}
	if !shouldRetry(err) {
		return zero, err
	}

	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts-1; attempt++ {
		delay := r.delayFor(attempt)
		if floor := retryAfterFloor(err); floor > delay {
			delay = floor
		}

		slog.Warn("aiprovider: retrying",
			"operation", operation,
			"attempt", attempt+2,
			"delay_ms", delay.Milliseconds(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			return zero, apperr.Wrap(apperr.KindTimeout, operation+": cancelled during retry", ctx.Err())
		case <-time.After(delay):
		}

		result, err = fn()
		if err == nil {
			return result, nil
		}
		if !shouldRetry(err) {
			return zero, err
		}
	}

	slog.Error("aiprovider: retries exhausted", "operation", operation, "attempts", attempts)
	if isRateLimited(err) {
		return zero, apperr.Wrap(apperr.KindProvider, operation, ErrRateLimited)
	}
	return zero, apperr.Wrap(apperr.KindProvider, operation+": retries exhausted", err)
}

// shouldRetry only retries errors the provider explicitly tagged as
// transport/server failures. Anything else (marshal errors, malformed
// responses, apperr.KindValidation) is a bug or a permanent 4xx and is
// surfaced immediately.
func shouldRetry(err error) bool {
	var re *RetryableError
	if errors.As(err, &re) {
		return isRetryableStatus(re.StatusCode)
	}
	return false
}

func isRetryableStatus(code int) bool {
	if code == 0 {
		return true
	}
	if code == http.StatusTooManyRequests {
		return true
	}
	return code >= 500
}

func isRateLimited(err error) bool {
	var re *RetryableError
	return errors.As(err, &re) && re.StatusCode == http.StatusTooManyRequests
}

func retryAfterFloor(err error) time.Duration {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.RetryAfter
	}
	return 0
}

// ParseRetryAfter parses an HTTP Retry-After header value (seconds form).
func ParseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
