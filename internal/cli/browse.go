// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"errors"
	"os"

	"golang.org/x/term"

	"github.com/pljakobs/distroget/internal/tui"
)

// runBrowse opens the interactive catalog browser, the default when
// distroget runs without a subcommand.
func runBrowse(ctx context.Context, ro *RootOpts) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("the browser needs a terminal; use `distroget get` or `distroget list` when scripting")
	}

	c, err := loadCatalog(ctx, ro, "")
	if err != nil {
		return err
	}
	settings, err := ro.engineSettings()
	if err != nil {
		return err
	}

	return tui.Run(ctx, tui.Options{
		Catalog:     c,
		Settings:    settings,
		InitialDest: defaultStr(ro.cfg.Output, "."),
		History:     ro.cfg.LocationHistory,
		OnDestination: func(dir string) {
			persistHistory(ro, dir)
		},
	})
}
