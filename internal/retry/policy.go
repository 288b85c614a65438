// Package retry decides whether and how long to wait before retrying a
// failed attempt. The policy is pure: the caller performs the actual sleep
// and the actual I/O.
package retry

import (
	"time"
)

// SignalKind classifies the outcome of a single attempt.
type SignalKind int

const (
	// Success means the attempt completed; no retry is needed.
	Success SignalKind = iota
	// RateLimited means the source throttled the caller (HTTP 429). It may
	// carry an advisory wait from a Retry-After header.
	RateLimited
	// Transient means a transport-level error or non-success status that is
	// worth retrying.
	Transient
)

// Signal is the failure classification handed to the policy after an
// attempt.
type Signal struct {
	Kind SignalKind

	// RetryAfter is the advisory wait from the source, valid only when
	// HasRetryAfter is set. Only meaningful for RateLimited signals.
	RetryAfter    time.Duration
	HasRetryAfter bool
}

// Succeeded is the signal for a completed attempt.
func Succeeded() Signal { return Signal{Kind: Success} }

// RateLimitedAfter is a rate-limit signal carrying an advisory wait.
func RateLimitedAfter(d time.Duration) Signal {
	return Signal{Kind: RateLimited, RetryAfter: d, HasRetryAfter: true}
}

// RateLimitedSignal is a rate-limit signal without an advisory wait.
func RateLimitedSignal() Signal { return Signal{Kind: RateLimited} }

// TransientSignal is the signal for a retryable transport failure.
func TransientSignal() Signal { return Signal{Kind: Transient} }

// Decision is the policy's verdict for one attempt.
type Decision struct {
	Retry bool
	Wait  time.Duration
}

// Policy holds the retry limits for an operation.
type Policy struct {
	MaxAttempts int
}

// DefaultPolicy matches the default MAX_RETRIES of 3.
var DefaultPolicy = Policy{MaxAttempts: 3}

// Decide returns the verdict for the given attempt number (1-based) and
// failure signal.
//
// Rate-limit signals with an explicit advisory wait use that exact wait.
// Everything else retryable backs off 2^attempt seconds, uncapped. Once
// attempt reaches MaxAttempts the policy signals exhaustion and the caller
// must surface a terminal failure.
func (p Policy) Decide(attempt int, sig Signal) Decision {
	if sig.Kind == Success {
		return Decision{Retry: false}
	}
	if attempt >= p.MaxAttempts {
		return Decision{Retry: false}
	}
	if sig.Kind == RateLimited && sig.HasRetryAfter {
		return Decision{Retry: true, Wait: sig.RetryAfter}
	}
	return Decision{Retry: true, Wait: Backoff(attempt)}
}

// Backoff returns the exponential backoff wait for an attempt: 2^attempt
// seconds, uncapped.
func Backoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}
