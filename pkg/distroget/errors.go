// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package distroget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// Sentinel errors callers can match with errors.Is.
var (
	// ErrNotFound means the server answered 404 for the URL.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited means the server answered 429.
	ErrRateLimited = errors.New("rate limited")

	// ErrStopped means the manager was stopped before the operation
	// could run.
	ErrStopped = errors.New("manager stopped")

	// ErrAlreadyStarted means Start was called twice.
	ErrAlreadyStarted = errors.New("manager already started")

	// errTruncated means the body ended before Content-Length bytes.
	errTruncated = fmt.Errorf("truncated body: %w", io.ErrUnexpectedEOF)
)

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %s: %s", e.Status, e.URL)
}

// Retryable reports whether the status is worth another attempt.
// Transient server conditions are; client errors are not.
func (e *HTTPError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return e.StatusCode >= 500
}

// Is maps common statuses onto the package sentinels.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// TransferError wraps a failure to fetch one URL and records whether
// the manager should try again.
type TransferError struct {
	URL       string
	Err       error
	Retryable bool
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: %v", e.URL, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// retryable wraps err as a transient transfer failure.
func retryable(url string, err error) *TransferError {
	return &TransferError{URL: url, Err: err, Retryable: true}
}

// terminal wraps err as a permanent transfer failure.
func terminal(url string, err error) *TransferError {
	return &TransferError{URL: url, Err: err, Retryable: false}
}

// IsRetryable classifies an error from a transfer attempt. Timeouts,
// connection resets, truncated bodies and transient HTTP statuses are
// retryable; malformed URLs, client errors and filesystem failures are
// not. Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var te *TransferError
	if errors.As(err, &te) {
		return te.Retryable
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Retryable()
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return false
}
