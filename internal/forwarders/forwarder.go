// Package forwarders implements per-protocol egress: retrying, batching
// dispatch of transformed payloads to target systems.
package forwarders

import (
	"context"
	"time"

	"github.com/ocx/gateway/internal/gwerrors"
)

// Status is the outcome of a single Forward call.
type Status string

const (
	StatusSuccess  Status = "SUCCESS"
	StatusFailure  Status = "FAILURE"
	StatusRetrying Status = "RETRYING"
)

// Result is returned by Forward, per spec.md §4.7.
type Result struct {
	Status     Status
	StatusCode int
	Error      string
	Attempts   int
}

// Config is a target's forwarder_config.
type Config struct {
	Timeout     time.Duration
	MaxRetries  int
	BatchSize   int
	BatchWindow time.Duration // default 50ms when BatchSize > 1
	Auth        map[string]string
}

const (
	backoffInitial = 100 * time.Millisecond
	backoffCap     = 5 * time.Second
)

// Forwarder is the capability set every per-target egress implementation
// provides.
type Forwarder interface {
	Forward(ctx context.Context, payload map[string]any) (Result, error)
	Start() error
	Stop() error
}

// backoffFor returns the exponential backoff delay for attempt (1-indexed),
// starting at 100ms and capping at 5s.
func backoffFor(attempt int) time.Duration {
	d := backoffInitial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d > backoffCap {
			return backoffCap
		}
	}
	return d
}

// withRetry drives attempt, retrying per spec.md §4.7: only Timeout,
// Connection and Remote5xx errors are retried, up to maxRetries attempts,
// with exponential backoff between attempts. ctx cancellation aborts with
// FAILURE/Cancelled.
func withRetry(ctx context.Context, maxRetries int, attempt func(ctx context.Context, n int) (Result, error)) (Result, error) {
	var lastResult Result

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return Result{Status: StatusFailure, Error: "Cancelled", Attempts: n - 1}, nil
		default:
		}

		result, err := attempt(ctx, n)
		result.Attempts = n
		if err == nil {
			return result, nil
		}

		lastResult = result
		lastResult.Status = StatusFailure
		lastResult.Error = err.Error()

		if n >= maxRetries || !gwerrors.Retryable(err) {
			return lastResult, err
		}

		delay := backoffFor(n)
		select {
		case <-ctx.Done():
			lastResult.Status = StatusFailure
			lastResult.Error = "Cancelled"
			return lastResult, nil
		case <-time.After(delay):
		}
	}
}
