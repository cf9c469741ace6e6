// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pljakobs/distroget/internal/gitrepo"
	"github.com/pljakobs/distroget/internal/logger"
	"github.com/pljakobs/distroget/pkg/updater"
)

func newUpdateCmd(ro *RootOpts) *cobra.Command {
	var (
		distros   []string
		dryRun    bool
		push      bool
		timestamp string
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Refresh catalog sections from distribution mirrors",
		Long: `Scrape the distribution mirrors for current releases and rewrite the
matching catalog sections in the checked-out catalog repository. The
change is committed locally; --push sends it upstream. Each refreshed
section gets an Auto-updated comment with today's date.`,
		Example: `  distroget update
  distroget update --distro Fedora --distro Ubuntu --dry-run
  distroget update --push`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			repo := gitrepo.New(gitrepo.URLFor(ro.cfg.RepoURLType), "")
			dir, err := repo.Sync(ctx)
			if err != nil {
				return fmt.Errorf("sync catalog repo: %w", err)
			}
			readme := filepath.Join(dir, "README.md")
			doc, err := os.ReadFile(readme)
			if err != nil {
				return fmt.Errorf("read catalog: %w", err)
			}

			client := updater.NewClient(nil)
			if timestamp != "" {
				ts, err := time.Parse("2006-01-02", timestamp)
				if err != nil {
					return fmt.Errorf("invalid --timestamp %q: want YYYY-MM-DD", timestamp)
				}
				client.SetNow(func() time.Time { return ts })
			}

			ups := updater.All(client)
			if len(distros) > 0 {
				if ups, err = selectUpdaters(ups, distros); err != nil {
					return err
				}
			}

			updated, reports, changed := updater.Refresh(ctx, doc, ups)
			printReports(os.Stdout, reports)
			crossCheckDistroWatch(ctx, client, reports)

			if !changed {
				fmt.Println("No changes needed.")
				return nil
			}
			if dryRun {
				fmt.Println("Dry run, changes not written.")
				return nil
			}

			if err := os.WriteFile(readme, updated, 0o644); err != nil {
				return fmt.Errorf("write catalog: %w", err)
			}
			dirty, err := repo.HasChanges(ctx, "README.md")
			if err != nil {
				return err
			}
			if !dirty {
				return nil
			}
			if err := repo.Commit(ctx, "README.md", gitrepo.CommitMessage); err != nil {
				return err
			}
			if push {
				if err := repo.Push(ctx); err != nil {
					return err
				}
				fmt.Println("Pushed to", repo.URL)
				return nil
			}
			fmt.Printf("Committed in %s (re-run with --push to publish)\n", dir)
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&distros, "distro", nil, "Limit the refresh to named distributions (repeatable)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would change without writing")
	cmd.Flags().BoolVar(&push, "push", false, "Push the commit to the catalog repository")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "Stamp sections with this date instead of today (YYYY-MM-DD)")
	return cmd
}

// selectUpdaters keeps the updaters whose names match the requested
// distributions, case-insensitively, and rejects unknown names.
func selectUpdaters(ups []updater.Updater, names []string) ([]updater.Updater, error) {
	var out []updater.Updater
	for _, name := range names {
		found := false
		for _, up := range ups {
			if strings.EqualFold(up.Name(), name) {
				out = append(out, up)
				found = true
				break
			}
		}
		if !found {
			known := make([]string, 0, len(ups))
			for _, up := range ups {
				known = append(known, up.Name())
			}
			return nil, fmt.Errorf("unknown distribution %q (have: %s)", name, strings.Join(known, ", "))
		}
	}
	return out, nil
}

func printReports(w io.Writer, reports []updater.Report) {
	for _, r := range reports {
		switch {
		case r.Err != nil:
			fmt.Fprintf(w, "%-10s FAILED: %v\n", r.Name, r.Err)
		case r.Links == 0:
			fmt.Fprintf(w, "%-10s no links found, section left alone\n", r.Name)
		default:
			versions := make([]string, 0, len(r.Versions))
			for _, v := range r.Versions {
				versions = append(versions, v.String())
			}
			fmt.Fprintf(w, "%-10s %s (%d links)\n", r.Name, strings.Join(versions, ", "), r.Links)
		}
	}
}

// crossCheckDistroWatch compares discovered versions against the
// DistroWatch feed and logs disagreements. The feed lags and uses its
// own naming, so mismatches are advisory only.
func crossCheckDistroWatch(ctx context.Context, c *updater.Client, reports []updater.Report) {
	feed, err := updater.DistroWatchVersions(ctx, c, updater.DistroWatchFeedURL)
	if err != nil {
		logger.Debug("distrowatch feed unavailable", logger.Fields{"error": err.Error()})
		return
	}
	for _, r := range reports {
		if r.Err != nil || len(r.Versions) == 0 {
			continue
		}
		dwVersion, ok := feed[r.Name]
		if !ok {
			continue
		}
		agrees := false
		for _, v := range r.Versions {
			if v.Value == dwVersion {
				agrees = true
				break
			}
		}
		if !agrees {
			logger.Warn("distrowatch disagrees", logger.Fields{
				"distro":      r.Name,
				"mirror":      r.Versions[0].Value,
				"distrowatch": dwVersion,
			})
		}
	}
}
