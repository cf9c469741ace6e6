// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package distroget

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Forwarder relays a staged file to a remote destination after its
// download finished. Implementations must not remove the local file;
// the manager deletes it once Forward returns nil.
type Forwarder interface {
	Forward(ctx context.Context, localPath string) error
}

// runner executes an external command and returns its combined output.
// Swapped out in tests.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// ScpForwarder relays files over scp. It relies on key-based
// authentication; password prompts would hang a worker, so Preflight
// runs ssh in batch mode to fail fast when keys are missing.
type ScpForwarder struct {
	Host string
	Path string

	run runner
}

// NewScpForwarder returns a forwarder targeting host:path, where host
// may carry a user prefix ("user@server").
func NewScpForwarder(host, path string) *ScpForwarder {
	return &ScpForwarder{Host: host, Path: path, run: execRunner}
}

// Preflight checks that host accepts key authentication and that the
// target directory exists, creating it if needed.
func (s *ScpForwarder) Preflight(ctx context.Context) error {
	out, err := s.run(ctx, "ssh", "-o", "BatchMode=yes", "-o", "ConnectTimeout=5", s.Host, "echo", "ok")
	if err != nil {
		return fmt.Errorf("ssh %s: %w: %s", s.Host, err, firstLine(out))
	}
	if s.Path != "" {
		out, err = s.run(ctx, "ssh", s.Host, "mkdir", "-p", s.Path)
		if err != nil {
			return fmt.Errorf("mkdir %s:%s: %w: %s", s.Host, s.Path, err, firstLine(out))
		}
	}
	return nil
}

// Forward copies localPath to the remote directory.
func (s *ScpForwarder) Forward(ctx context.Context, localPath string) error {
	dest := s.Host + ":" + s.Path
	out, err := s.run(ctx, "scp", localPath, dest)
	if err != nil {
		return fmt.Errorf("scp %s to %s: %w: %s", localPath, dest, err, firstLine(out))
	}
	return nil
}

// firstLine trims command output down to its first non-empty line so
// error messages stay single-line.
func firstLine(out []byte) string {
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return "no output"
}
