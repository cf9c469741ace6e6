// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package gitrepo maintains a working clone of the catalog repository
// by shelling out to git. Using the git binary keeps the operator's
// credential helpers, ssh agent and config in play; a git library
// would have to reimplement all three.
package gitrepo

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Catalog repository remotes. Which one to use is an operator
// preference; ssh needs a key set up with the forge.
const (
	DefaultHTTPSURL = "https://github.com/pljakobs/Linux-ISO-Downloads_URL-Collection.git"
	DefaultSSHURL   = "git@github.com:pljakobs/Linux-ISO-Downloads_URL-Collection.git"
)

// CommitMessage is used for automated catalog updates.
const CommitMessage = "Auto-update distro versions"

// URLFor maps the configured access kind to a remote URL.
func URLFor(kind string) string {
	if strings.EqualFold(kind, "ssh") {
		return DefaultSSHURL
	}
	return DefaultHTTPSURL
}

// runner executes an external command and returns its combined
// output. Swapped out in tests.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Repo is a local checkout of a remote repository.
type Repo struct {
	URL string
	Dir string

	run runner
}

// New returns a Repo cloning url into dir. An empty dir places the
// checkout under the user cache directory so repeated runs reuse it
// and unpushed commits survive reboots.
func New(url, dir string) *Repo {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Repo{URL: url, Dir: dir, run: execRunner}
}

// DefaultDir is where the checkout lives when no directory is given.
func DefaultDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "distroget", "repo")
}

// git runs a subcommand against the checkout.
func (r *Repo) git(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"-C", r.Dir}, args...)
	out, err := r.run(ctx, "git", full...)
	if err != nil {
		return out, fmt.Errorf("git %s: %w: %s", args[0], err, firstLine(out))
	}
	return out, nil
}

// Sync brings the checkout up to date, cloning on first use and
// fast-forwarding afterwards. It returns the checkout directory.
func (r *Repo) Sync(ctx context.Context) (string, error) {
	if _, err := os.Stat(filepath.Join(r.Dir, ".git")); err == nil {
		if _, err := r.git(ctx, "pull", "--ff-only"); err != nil {
			return "", err
		}
		return r.Dir, nil
	}
	out, err := r.run(ctx, "git", "clone", r.URL, r.Dir)
	if err != nil {
		return "", fmt.Errorf("git clone %s: %w: %s", r.URL, err, firstLine(out))
	}
	return r.Dir, nil
}

// HasChanges reports whether path has uncommitted modifications in
// the checkout.
func (r *Repo) HasChanges(ctx context.Context, path string) (bool, error) {
	out, err := r.git(ctx, "status", "--porcelain", "--", path)
	if err != nil {
		return false, err
	}
	return len(strings.TrimSpace(string(out))) > 0, nil
}

// Commit stages path and records it with message.
func (r *Repo) Commit(ctx context.Context, path, message string) error {
	if _, err := r.git(ctx, "add", path); err != nil {
		return err
	}
	_, err := r.git(ctx, "commit", "-m", message)
	return err
}

// Push publishes the local commits.
func (r *Repo) Push(ctx context.Context) error {
	_, err := r.git(ctx, "push")
	return err
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
