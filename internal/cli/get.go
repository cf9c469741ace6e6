// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pljakobs/distroget/internal/logger"
	"github.com/pljakobs/distroget/pkg/distroget"
)

func newGetCmd(ro *RootOpts) *cobra.Command {
	var (
		output     string
		workers    int
		retries    int
		limitRate  string
		chunkSize  string
		filters    []string
		catalogSrc string
	)

	cmd := &cobra.Command{
		Use:   "get [url | catalog/path]...",
		Short: "Download images by URL or catalog path",
		Long: `Download one or more images without opening the browser.

Arguments containing "://" are fetched directly. Anything else is a
slash-separated path into the catalog ("Fedora/Fedora 42 Workstation");
naming a section downloads everything beneath it. --filter selects
entries by substring or glob against their catalog path.

The destination may be a local directory or "host:path", in which case
each file is staged locally and relayed with scp after it finishes.`,
		Example: `  distroget get https://mirror.example.org/f42.iso
  distroget get "Fedora/Fedora 42 Workstation" -o ~/isos
  distroget get --filter "*KDE*" -o backup@nas:/srv/iso`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(filters) == 0 {
				return errors.New("nothing to download: give URLs, catalog paths or --filter patterns")
			}
			ctx := cmd.Context()

			urls, err := resolveTargets(ctx, ro, args, filters, catalogSrc)
			if err != nil {
				return err
			}

			settings, err := ro.engineSettings()
			if err != nil {
				return err
			}
			f := cmd.Flags()
			if f.Changed("workers") {
				settings.Workers = workers
			}
			if f.Changed("retries") {
				settings.MaxRetries = retries
				if retries <= 0 {
					settings.MaxRetries = -1
				}
			}
			if f.Changed("limit-rate") {
				settings.LimitRate = limitRate
			}
			if f.Changed("chunk-size") {
				settings.ChunkSize = chunkSize
			}

			rawDest := output
			if !f.Changed("output") {
				rawDest = defaultStr(ro.cfg.Output, ".")
			}
			dest := distroget.ParseDestination(expandHome(rawDest))

			var fwd distroget.Forwarder
			if dest.IsRemote() {
				scp := distroget.NewScpForwarder(dest.Host, dest.Path)
				if err := scp.Preflight(ctx); err != nil {
					return fmt.Errorf("remote destination %s: %w", dest, err)
				}
				fwd = scp
			}

			err = runTransfers(ctx, ro, dest, settings, fwd, urls)
			persistHistory(ro, dest.String())
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination directory or host:path")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of concurrent downloads")
	cmd.Flags().IntVar(&retries, "retries", 0, "Retries per URL before giving up (0 disables)")
	cmd.Flags().StringVar(&limitRate, "limit-rate", "", "Aggregate bandwidth cap, e.g. 10MiB")
	cmd.Flags().StringVar(&chunkSize, "chunk-size", "", "Copy buffer size, e.g. 64KiB")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Select catalog entries by substring or glob (repeatable)")
	cmd.Flags().StringVar(&catalogSrc, "catalog", "", "Catalog override: local file or URL")
	return cmd
}

// runTransfers drives one engine run to completion: start, enqueue,
// wait, stop, summary. A non-nil fwd replaces the default relay for
// remote destinations. Returns an error when any transfer failed or
// the run was interrupted.
func runTransfers(ctx context.Context, ro *RootOpts, dest distroget.Destination, settings distroget.Settings, fwd distroget.Forwarder, urls []string) error {
	progressFn, closeProgress := newProgress(ro)
	mgr, err := distroget.New(dest, settings, progressFn)
	if err != nil {
		return err
	}
	if fwd != nil {
		mgr.UseForwarder(fwd)
	}

	start := time.Now()
	if err := mgr.Start(ctx); err != nil {
		return err
	}
	mgr.Add(urls...)
	waitErr := mgr.Wait(ctx)
	mgr.Stop(time.Second)
	closeProgress()

	snap := mgr.Status()
	if !ro.JSONOut {
		printSummary(os.Stdout, snap, time.Since(start))
	}
	if waitErr != nil {
		return waitErr
	}
	if snap.Failed > 0 {
		return fmt.Errorf("%d of %d transfer(s) failed", snap.Failed, snap.Failed+snap.Completed)
	}
	return nil
}

// resolveTargets expands the positional arguments and filters into a
// deduplicated URL list. The catalog is fetched only when something
// actually refers to it.
func resolveTargets(ctx context.Context, ro *RootOpts, args, filters []string, catalogSrc string) ([]string, error) {
	var urls, paths []string
	for _, a := range args {
		if strings.Contains(a, "://") {
			urls = append(urls, a)
		} else {
			paths = append(paths, a)
		}
	}

	if len(paths) > 0 || len(filters) > 0 {
		c, err := loadCatalog(ctx, ro, catalogSrc)
		if err != nil {
			return nil, err
		}
		for _, p := range paths {
			node := c.Find(splitCatalogPath(p)...)
			if node == nil {
				return nil, fmt.Errorf("%q not found in catalog", p)
			}
			urls = append(urls, node.URLs()...)
		}
		if len(filters) > 0 {
			fc, err := c.Filter(filters)
			if err != nil {
				return nil, err
			}
			urls = append(urls, fc.URLs()...)
		}
	}

	urls = dedupeURLs(urls)
	if len(urls) == 0 {
		return nil, errors.New("nothing to download: no catalog entry matched")
	}
	return urls, nil
}

// splitCatalogPath breaks "Fedora/Fedora 42 Spins" into title segments,
// dropping empties from doubled or trailing slashes.
func splitCatalogPath(p string) []string {
	var out []string
	for _, part := range strings.Split(p, "/") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func dedupeURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func printSummary(w io.Writer, snap distroget.Snapshot, elapsed time.Duration) {
	downloaded := len(snap.DownloadedFiles)
	skipped := snap.Completed - downloaded
	fmt.Fprintf(w, "\n%d downloaded, %d skipped, %d failed in %s\n",
		downloaded, skipped, snap.Failed, elapsed.Round(time.Second))
	for _, u := range snap.FailedURLs {
		fmt.Fprintf(w, "  failed: %s\n", u)
	}
}

// persistHistory records dir in the config file's location history. The
// file is re-read from disk first so environment overrides applied at
// load time are not written back.
func persistHistory(ro *RootOpts, dir string) {
	path := ro.cfgPath
	if path == "" {
		path = DefaultConfigPath()
	}
	cfg := DefaultConfig()
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			logger.Warn("config unreadable, location history not saved",
				logger.Fields{"path": path, "error": err.Error()})
			return
		}
	}
	cfg.RememberLocation(dir)
	if err := cfg.Save(path); err != nil {
		logger.Warn("could not save location history",
			logger.Fields{"path": path, "error": err.Error()})
	}
}

// parseDurationValue parses a duration setting, naming the offending
// field in the error.
func parseDurationValue(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s %q: must not be negative", name, value)
	}
	return d, nil
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
