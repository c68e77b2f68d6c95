package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a detail fetch for an identifier unknown upstream.
	ErrNotFound = errors.New("record not found")
	// ErrUpstreamUnavailable is matched by every *UpstreamError.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrStoreWrite is matched by every *StoreError raised on a write.
	ErrStoreWrite = errors.New("store write failed")
	// ErrUnauthorized rejects an invocation without a valid credential.
	ErrUnauthorized = errors.New("unauthorized")
)

// UpstreamError carries the endpoint and HTTP status of a failed call.
// StatusCode is zero for transport failures.
type UpstreamError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("upstream %s: %v", e.Endpoint, e.Err)
	}
	if e.Err == nil {
		return fmt.Sprintf("upstream %s: status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("upstream %s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstreamUnavailable}
	}
	return []error{ErrUpstreamUnavailable, e.Err}
}

// StoreError wraps a persistence failure with the operation and table.
type StoreError struct {
	Op    string
	Table string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() []error {
	if e.Op == "read" {
		return []error{e.Err}
	}
	return []error{ErrStoreWrite, e.Err}
}
