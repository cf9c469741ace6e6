// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package cli wires the distroget commands: the interactive browser,
// non-interactive downloads, catalog listing and updating, Proxmox
// deployment, the web server and config management.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pljakobs/distroget/internal/gitrepo"
	"github.com/pljakobs/distroget/internal/logger"
	"github.com/pljakobs/distroget/pkg/catalog"
	"github.com/pljakobs/distroget/pkg/distroget"
)

// RootOpts holds global CLI options plus the loaded configuration,
// threaded into every command constructor.
type RootOpts struct {
	ConfigPath string
	JSONOut    bool
	Quiet      bool
	Verbose    bool
	LogFormat  string

	cfg     Config
	cfgPath string
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ro := &RootOpts{}
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root := &cobra.Command{
		Use:           "distroget",
		Short:         "Browse and download Linux distribution images from a curated catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "info"
			if ro.Verbose {
				level = "debug"
			}
			logger.InitLogger(level, logger.OutputFormat(ro.LogFormat))

			cfg, path, err := LoadConfig(ro.ConfigPath)
			if err != nil {
				return err
			}
			ro.cfg = cfg
			ro.cfgPath = path
			return nil
		},
	}

	// Global flags
	root.PersistentFlags().StringVar(&ro.ConfigPath, "config", "", "Path to config file (YAML or JSON)")
	root.PersistentFlags().BoolVar(&ro.JSONOut, "json", false, "Emit machine-readable JSON events")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Quiet mode (line-per-event progress, minimal logs)")
	root.PersistentFlags().BoolVarP(&ro.Verbose, "verbose", "v", false, "Verbose logs (debug details)")
	root.PersistentFlags().StringVar(&ro.LogFormat, "log-format", "text", "Log format: text or json")

	root.AddCommand(newGetCmd(ro))
	root.AddCommand(newListCmd(ro))
	root.AddCommand(newUpdateCmd(ro))
	root.AddCommand(newDeployCmd(ro))
	root.AddCommand(newServeCmd(ro))
	root.AddCommand(newConfigCmd(ro))
	root.AddCommand(newVersionCmd(version))

	// Bare "distroget" opens the interactive browser.
	root.RunE = func(cmd *cobra.Command, args []string) error {
		return runBrowse(cmd.Context(), ro)
	}
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// engineSettings maps the loaded config onto engine settings. Flag
// overrides are applied by the commands on top of this.
func (ro *RootOpts) engineSettings() (distroget.Settings, error) {
	cfg := ro.cfg
	s := distroget.DefaultSettings()
	if cfg.Workers > 0 {
		s.Workers = cfg.Workers
	}
	if cfg.Retries != 0 {
		s.MaxRetries = cfg.Retries
	}
	if cfg.BackoffBase != "" {
		d, err := parseDurationValue("backoff-base", cfg.BackoffBase)
		if err != nil {
			return s, err
		}
		s.BackoffBase = d
	}
	if cfg.BackoffMax != "" {
		d, err := parseDurationValue("backoff-max", cfg.BackoffMax)
		if err != nil {
			return s, err
		}
		s.BackoffMax = d
	}
	if cfg.ChunkSize != "" {
		s.ChunkSize = cfg.ChunkSize
	}
	if cfg.LimitRate != "" {
		s.LimitRate = cfg.LimitRate
	}
	return s, nil
}

// catalogSource builds the catalog source: an override (local path or
// URL), or the configured repo-first source with raw-HTTP fallback.
func (ro *RootOpts) catalogSource(override string) catalog.Source {
	var src catalog.Source
	switch {
	case override == "":
		src.Syncer = gitrepo.New(gitrepo.URLFor(ro.cfg.RepoURLType), "")
		src.RawURL = ro.cfg.CatalogURL
		src.CacheDir = catalogCacheDir()
	case strings.Contains(override, "://"):
		src.RawURL = override
	default:
		src.Path = override
	}
	return src
}

// catalogCacheDir is where the raw catalog document is kept between
// runs for If-Modified-Since revalidation.
func catalogCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "distroget")
}

// loadCatalog fetches and parses the catalog document.
func loadCatalog(ctx context.Context, ro *RootOpts, override string) (*catalog.Catalog, error) {
	data, mechanism, err := catalog.Fetch(ctx, ro.catalogSource(override))
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	logger.Debug("catalog loaded", logger.Fields{"source": mechanism, "bytes": len(data)})
	return catalog.ParseBytes(data)
}
