package interfaces

import (
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies an adapter failure so the evidence builder can
// apply the right degradation policy without inspecting provider detail.
type FailureKind string

const (
	// FailureNotFound means the provider has no data for the request
	FailureNotFound FailureKind = "not_found"
	// FailureRateLimited means the provider throttled the request
	FailureRateLimited FailureKind = "rate_limited"
	// FailureTimeout means the request exceeded its deadline
	FailureTimeout FailureKind = "timeout"
	// FailureStale means the provider only has data older than the staleness window
	FailureStale FailureKind = "stale"
)

// FetchError is the typed failure every adapter returns. Transient kinds
// (rate_limited, timeout) are retried with backoff; the rest degrade per
// the fact key's policy.
type FetchError struct {
	Kind       FailureKind
	Adapter    string
	Field      string
	RetryAfter time.Duration // only meaningful for rate_limited
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s %s: %v", e.Kind, e.Adapter, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %s %s", e.Kind, e.Adapter, e.Field)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is worth retrying.
func (e *FetchError) Transient() bool {
	return e.Kind == FailureRateLimited || e.Kind == FailureTimeout
}

// NewFetchError builds a typed adapter failure.
func NewFetchError(kind FailureKind, adapter, field string, err error) *FetchError {
	return &FetchError{Kind: kind, Adapter: adapter, Field: field, Err: err}
}

// AsFetchError extracts a FetchError from an error chain.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
