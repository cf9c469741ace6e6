// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package distroget

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// transfer performs a single attempt at fetching rawurl into localPath.
// The body is copied in chunks through a ".part" file that is renamed
// into place only once the copy finished, so a crash or failure never
// leaves a half-written file under the final name. onChunk is invoked
// with cumulative progress after every chunk.
//
// Retry classification happens through the returned error: transport
// and truncation failures come back retryable, filesystem and client
// errors terminal. Context cancellation is returned bare.
func (m *Manager) transfer(ctx context.Context, rawurl, localPath string, onChunk func(written, total int64)) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return 0, terminal(rawurl, err)
	}
	req.Header.Set("User-Agent", m.cfg.UserAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, retryable(rawurl, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, URL: rawurl}
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	onChunk(0, total)

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return 0, terminal(rawurl, err)
	}
	part := localPath + ".part"
	f, err := os.Create(part)
	if err != nil {
		return 0, terminal(rawurl, err)
	}

	written, err := m.copyBody(ctx, rawurl, f, resp.Body, total, onChunk)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = terminal(rawurl, cerr)
	}
	if err == nil && total > 0 && written < total {
		err = retryable(rawurl, fmt.Errorf("%w: got %d of %d bytes", errTruncated, written, total))
	}
	if err == nil {
		if rerr := os.Rename(part, localPath); rerr != nil {
			err = terminal(rawurl, rerr)
		}
	}
	if err != nil {
		os.Remove(part)
		var te *TransferError
		if !errors.As(err, &te) && ctx.Err() == nil {
			err = retryable(rawurl, err)
		}
		return written, err
	}
	return written, nil
}

// copyBody streams body into f one chunk at a time, honoring the
// shared rate limit and reporting cumulative progress. Read-side
// failures are transient, write-side failures are not.
func (m *Manager) copyBody(ctx context.Context, rawurl string, f *os.File, body io.Reader, total int64, onChunk func(written, total int64)) (int64, error) {
	var written int64
	buf := make([]byte, m.chunk)
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			if m.limiter != nil {
				if err := m.limiter.WaitN(ctx, n); err != nil {
					return written, err
				}
			}
			if _, werr := f.Write(buf[:n]); werr != nil {
				return written, terminal(rawurl, fmt.Errorf("write %s: %w", f.Name(), werr))
			}
			written += int64(n)
			onChunk(written, total)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, retryable(rawurl, rerr)
		}
	}
}
