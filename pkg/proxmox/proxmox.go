// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package proxmox drives a Proxmox VE host over ssh as an upload
// target for downloaded images. It shells out to ssh, scp and the
// remote pvesm tool rather than speaking the Proxmox API: the
// operator's ssh keys and agent keep working, and no credentials are
// ever stored.
package proxmox

import (
	"context"
	"fmt"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pljakobs/distroget/pkg/distroget"
)

// Storage content types as pvesm names them.
const (
	ContentISO      = "iso"
	ContentTemplate = "vztmpl"
)

// Storage is one row of `pvesm status`.
type Storage struct {
	Name   string
	Type   string
	Status string
	Active bool

	// Total and Available are in bytes, zero when the row carried no
	// usable numbers.
	Total     int64
	Available int64
}

// runner executes an external command and returns its combined
// output. Swapped out in tests.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Target is a Proxmox host reached over ssh with key authentication.
type Target struct {
	Host string
	User string

	run runner
}

// New returns a Target for user@host. user may be empty to use the
// ssh default.
func New(host, user string) *Target {
	return &Target{Host: host, User: user, run: execRunner}
}

// addr is the ssh destination, with the user prefix when configured.
func (t *Target) addr() string {
	if t.User != "" {
		return t.User + "@" + t.Host
	}
	return t.Host
}

// ssh runs a command on the target in batch mode so a missing key
// fails fast instead of hanging on a password prompt.
func (t *Target) ssh(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"-o", "BatchMode=yes", "-o", "ConnectTimeout=5", t.addr()}, args...)
	return t.run(ctx, "ssh", full...)
}

// KeyAuth reports whether the target accepts key authentication.
func (t *Target) KeyAuth(ctx context.Context) bool {
	_, err := t.ssh(ctx, "true")
	return err == nil
}

// TestConnection verifies the host is reachable and executes commands.
func (t *Target) TestConnection(ctx context.Context) error {
	out, err := t.ssh(ctx, "echo", "ok")
	if err != nil {
		return fmt.Errorf("connect %s: %w: %s", t.addr(), err, firstLine(out))
	}
	return nil
}

// DiscoverStorages lists the storages of the target by parsing
// `pvesm status` output. The size columns are KiB in pvesm's output
// and converted to bytes here.
func (t *Target) DiscoverStorages(ctx context.Context) ([]Storage, error) {
	out, err := t.ssh(ctx, "pvesm", "status")
	if err != nil {
		return nil, fmt.Errorf("pvesm status on %s: %w: %s", t.addr(), err, firstLine(out))
	}

	var storages []Storage
	for _, line := range strings.Split(string(out), "\n") {
		f := strings.Fields(line)
		if len(f) < 3 || f[0] == "Name" {
			continue
		}
		s := Storage{Name: f[0], Type: f[1], Status: f[2], Active: f[2] == "active"}
		if len(f) >= 6 {
			if total, err := strconv.ParseInt(f[3], 10, 64); err == nil {
				s.Total = total * 1024
			}
			if avail, err := strconv.ParseInt(f[5], 10, 64); err == nil {
				s.Available = avail * 1024
			}
		}
		storages = append(storages, s)
	}
	return storages, nil
}

// StoragePath resolves the directory where files of the given content
// type land on the target. pvesm computes the path from a volume id;
// the probe volume does not have to exist.
func (t *Target) StoragePath(ctx context.Context, storage, content string) (string, error) {
	probe := "probe.iso"
	if content == ContentTemplate {
		probe = "probe.tar.gz"
	}
	volid := storage + ":" + content + "/" + probe
	out, err := t.ssh(ctx, "pvesm", "path", volid)
	if err != nil {
		return "", fmt.Errorf("pvesm path %s on %s: %w: %s", volid, t.addr(), err, firstLine(out))
	}
	p := strings.TrimSpace(string(out))
	if p == "" {
		return "", fmt.Errorf("pvesm path %s on %s: empty output", volid, t.addr())
	}
	return path.Dir(p), nil
}

// Upload copies localPath into the storage's directory for the file's
// content type.
func (t *Target) Upload(ctx context.Context, localPath, storage string) error {
	content := DetectContentType(localPath)
	dir, err := t.StoragePath(ctx, storage, content)
	if err != nil {
		return err
	}
	dest := t.addr() + ":" + path.Join(dir, filepath.Base(localPath))
	out, err := t.run(ctx, "scp", localPath, dest)
	if err != nil {
		return fmt.Errorf("scp %s to %s: %w: %s", localPath, dest, err, firstLine(out))
	}
	return nil
}

// ListFiles names the files a storage holds for one content type.
func (t *Target) ListFiles(ctx context.Context, storage, content string) ([]string, error) {
	dir, err := t.StoragePath(ctx, storage, content)
	if err != nil {
		return nil, err
	}
	out, err := t.ssh(ctx, "ls", "-1", dir)
	if err != nil {
		return nil, fmt.Errorf("list %s on %s: %w: %s", dir, t.addr(), err, firstLine(out))
	}
	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// DetectContentType maps a filename to the pvesm content type it
// belongs to. Container templates are tarballs; ISOs, raw images and
// cloud images all live under iso storage on Proxmox.
func DetectContentType(filename string) string {
	lower := strings.ToLower(filename)
	for _, suffix := range []string{".tar.gz", ".tar.xz", ".tar.zst"} {
		if strings.HasSuffix(lower, suffix) {
			return ContentTemplate
		}
	}
	return ContentISO
}

// Uploader binds a Target and a storage selection into the engine's
// relay interface, so finished downloads land directly on the host.
// Mappings routes content types ("iso", "vztmpl") to storage names;
// files whose type carries no mapping go to Storage.
type Uploader struct {
	Target   *Target
	Storage  string
	Mappings map[string]string
}

var _ distroget.Forwarder = (*Uploader)(nil)

// storageFor picks the storage a local file belongs on.
func (u *Uploader) storageFor(localPath string) string {
	if s := u.Mappings[DetectContentType(localPath)]; s != "" {
		return s
	}
	return u.Storage
}

// Preflight verifies connectivity and that every configured storage
// exists and is active before any download starts.
func (u *Uploader) Preflight(ctx context.Context) error {
	if err := u.Target.TestConnection(ctx); err != nil {
		return err
	}
	want := make(map[string]struct{})
	if u.Storage != "" {
		want[u.Storage] = struct{}{}
	}
	for _, s := range u.Mappings {
		if s != "" {
			want[s] = struct{}{}
		}
	}
	if len(want) == 0 {
		return fmt.Errorf("no storage configured for %s", u.Target.addr())
	}
	storages, err := u.Target.DiscoverStorages(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]Storage, len(storages))
	for _, s := range storages {
		byName[s.Name] = s
	}
	for name := range want {
		s, ok := byName[name]
		if !ok {
			return fmt.Errorf("storage %s not found on %s", name, u.Target.addr())
		}
		if !s.Active {
			return fmt.Errorf("storage %s on %s is %s", name, u.Target.addr(), s.Status)
		}
	}
	return nil
}

func (u *Uploader) Forward(ctx context.Context, localPath string) error {
	return u.Target.Upload(ctx, localPath, u.storageFor(localPath))
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
