// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package distroget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

// timeoutErr satisfies net.Error the way transport timeouts do.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestHTTPErrorRetryable(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{status: http.StatusRequestTimeout, retryable: true},
		{status: http.StatusTooManyRequests, retryable: true},
		{status: http.StatusInternalServerError, retryable: true},
		{status: http.StatusBadGateway, retryable: true},
		{status: http.StatusServiceUnavailable, retryable: true},
		{status: http.StatusGatewayTimeout, retryable: true},
		{status: http.StatusBadRequest, retryable: false},
		{status: http.StatusForbidden, retryable: false},
		{status: http.StatusNotFound, retryable: false},
		{status: http.StatusGone, retryable: false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.status), func(t *testing.T) {
			e := &HTTPError{StatusCode: tt.status, Status: http.StatusText(tt.status)}
			assert.Equal(t, tt.retryable, e.Retryable())
		})
	}
}

func TestHTTPErrorSentinels(t *testing.T) {
	notFound := &HTTPError{StatusCode: 404, Status: "404 Not Found", URL: "https://example.com/x.iso"}
	assert.True(t, errors.Is(notFound, ErrNotFound))
	assert.False(t, errors.Is(notFound, ErrRateLimited))

	limited := &HTTPError{StatusCode: 429, Status: "429 Too Many Requests"}
	assert.True(t, errors.Is(limited, ErrRateLimited))
}

func TestTransferErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	te := retryable("https://example.com/a.iso", cause)
	assert.True(t, errors.Is(te, cause))
	assert.Contains(t, te.Error(), "https://example.com/a.iso")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: false},
		{name: "retryable transfer error", err: retryable("u", errors.New("reset")), want: true},
		{name: "terminal transfer error", err: terminal("u", errors.New("bad path")), want: false},
		{name: "server error", err: &HTTPError{StatusCode: 503}, want: true},
		{name: "client error", err: &HTTPError{StatusCode: 404}, want: false},
		{name: "truncated body", err: fmt.Errorf("read: %w", io.ErrUnexpectedEOF), want: true},
		{name: "network timeout", err: timeoutErr{}, want: true},
		{name: "plain error", err: errors.New("unknown"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
