package aiprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/connexus-ai/smartrag-orchestrator/internal/config"
)

func testRetrier(policy config.RetryPolicy, maxAttempts int, baseDelay time.Duration) *Retrier {
	return &Retrier{MaxAttempts: maxAttempts, BaseDelay: baseDelay, Policy: policy}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	r := testRetrier(config.RetryFixed, 3, time.Millisecond)
	calls := 0
	result, err := Do(context.Background(), r, "test", func() (string, error) {
		calls++
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" || calls != 1 {
		t.Fatalf("result=%q calls=%d, want ok/1", result, calls)
	}
}

func TestDo_NonRetryableErrorStopsImmediately(t *testing.T) {
	r := testRetrier(config.RetryFixed, 3, time.Millisecond)
	calls := 0
	_, err := Do(context.Background(), r, "test", func() (string, error) {
		calls++
		return "", fmt.Errorf("some permanent failure")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call for a non-retryable error, got %d", calls)
	}
}

func TestDo_RetriesOn429ThenSucceeds(t *testing.T) {
	r := testRetrier(config.RetryFixed, 3, time.Millisecond)
	calls := 0
	result, err := Do(context.Background(), r, "test", func() (string, error) {
		calls++
		if calls <= 2 {
			return "", &RetryableError{StatusCode: http.StatusTooManyRequests, Cause: errors.New("rate limited")}
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "recovered" || calls != 3 {
		t.Fatalf("result=%q calls=%d, want recovered/3", result, calls)
	}
}

func TestDo_ExhaustsRetriesAndReturnsRateLimited(t *testing.T) {
	r := testRetrier(config.RetryFixed, 3, time.Millisecond)
	calls := 0
	_, err := Do(context.Background(), r, "test", func() (string, error) {
		calls++
		return "", &RetryableError{StatusCode: http.StatusTooManyRequests, Cause: errors.New("rate limited")}
	})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls (MaxAttempts), got %d", calls)
	}
}

func TestDo_RetriesOn5xxServerError(t *testing.T) {
	r := testRetrier(config.RetryFixed, 2, time.Millisecond)
	calls := 0
	_, err := Do(context.Background(), r, "test", func() (string, error) {
		calls++
		return "", &RetryableError{StatusCode: http.StatusInternalServerError, Cause: errors.New("boom")}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestDo_DoesNotRetryOn400(t *testing.T) {
	r := testRetrier(config.RetryFixed, 3, time.Millisecond)
	calls := 0
	_, err := Do(context.Background(), r, "test", func() (string, error) {
		calls++
		return "", &RetryableError{StatusCode: http.StatusBadRequest, Cause: errors.New("bad request")}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call (400 is not retried), got %d", calls)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	r := testRetrier(config.RetryFixed, 5, 100*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, r, "test", func() (string, error) {
		calls++
		return "", &RetryableError{StatusCode: http.StatusTooManyRequests, Cause: errors.New("rate limited")}
	})
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestRetrier_DelayForPolicies(t *testing.T) {
	base := 100 * time.Millisecond

	fixed := testRetrier(config.RetryFixed, 3, base)
	if d := fixed.delayFor(0); d != base {
		t.Errorf("fixed delayFor(0) = %v, want %v", d, base)
	}
	if d := fixed.delayFor(2); d != base {
		t.Errorf("fixed delayFor(2) = %v, want %v", d, base)
	}

	linear := testRetrier(config.RetryLinear, 3, base)
	if d := linear.delayFor(0); d != base {
		t.Errorf("linear delayFor(0) = %v, want %v", d, base)
	}
	if d := linear.delayFor(2); d != 3*base {
		t.Errorf("linear delayFor(2) = %v, want %v", d, 3*base)
	}

	exp := testRetrier(config.RetryExponential, 3, base)
	if d := exp.delayFor(0); d != base {
		t.Errorf("exponential delayFor(0) = %v, want %v", d, base)
	}
	if d := exp.delayFor(2); d != 4*base {
		t.Errorf("exponential delayFor(2) = %v, want %v", d, 4*base)
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"2", 2 * time.Second},
		{"not-a-number", 0},
		{"-1", 0},
	}
	for _, tt := range tests {
		if got := ParseRetryAfter(tt.header); got != tt.want {
			t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

func TestDo_RetryAfterFloorsDelay(t *testing.T) {
	r := testRetrier(config.RetryFixed, 2, time.Millisecond)
	start := time.Now()
	calls := 0
	_, err := Do(context.Background(), r, "test", func() (string, error) {
		calls++
		if calls == 1 {
			return "", &RetryableError{StatusCode: http.StatusTooManyRequests, RetryAfter: 50 * time.Millisecond, Cause: errors.New("rate limited")}
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected delay to honor Retry-After floor, elapsed=%v", elapsed)
	}
}
