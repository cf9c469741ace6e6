// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package distroget

import (
	"net/http"
	"time"
)

// buildHTTPClient returns a client tuned for long bulk transfers. The
// overall request is not bounded; images can take hours on slow links.
// Only the wait for response headers is limited.
func buildHTTPClient(headerTimeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: tr}
}
