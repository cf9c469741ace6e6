// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/pljakobs/distroget/internal/logger"
	"github.com/pljakobs/distroget/pkg/distroget"
	"github.com/pljakobs/distroget/pkg/proxmox"
)

func newDeployCmd(ro *RootOpts) *cobra.Command {
	var (
		storage    string
		catalogSrc string
	)

	cmd := &cobra.Command{
		Use:   "deploy [url | catalog/path]...",
		Short: "Download images and push them onto Proxmox storage",
		Long: `Download images and upload each one to the configured Proxmox host as
it finishes, using ssh and scp with the operator's keys. ISOs land on
iso storage, container tarballs on vztmpl storage, following the
storage-mappings from the config. Without arguments the configured
auto-deploy-items are fetched.`,
		Example: `  distroget deploy "Fedora/Fedora 42 Workstation"
  distroget deploy --storage local https://mirror.example.org/f42.iso
  distroget deploy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			px := ro.cfg.Proxmox
			if px.Host == "" {
				return errors.New("no Proxmox host configured: set proxmox.host in the config file or DISTROGET_PROXMOX_HOST")
			}

			items := args
			if len(items) == 0 {
				items = ro.cfg.AutoDeployItems
			}
			if len(items) == 0 {
				return errors.New("nothing to deploy: give URLs or catalog paths, or set auto-deploy-items in the config")
			}
			urls, err := resolveTargets(ctx, ro, items, nil, catalogSrc)
			if err != nil {
				return err
			}

			uploader := &proxmox.Uploader{
				Target:   proxmox.New(px.Host, px.User),
				Storage:  storage,
				Mappings: px.StorageMappings,
			}
			if uploader.Storage == "" && len(uploader.Mappings) == 0 {
				// local exists on every stock Proxmox install.
				uploader.Storage = "local"
				logger.Debug("no storage configured, using local")
			}
			if err := uploader.Preflight(ctx); err != nil {
				return err
			}

			settings, err := ro.engineSettings()
			if err != nil {
				return err
			}
			dest := distroget.Destination{Host: px.Host}
			return runTransfers(ctx, ro, dest, settings, uploader, urls)
		},
	}

	cmd.Flags().StringVar(&storage, "storage", "", "Storage for content types without a mapping")
	cmd.Flags().StringVar(&catalogSrc, "catalog", "", "Catalog override: local file or URL")
	return cmd
}
