// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pljakobs/distroget/internal/server"
)

func newServeCmd(ro *RootOpts) *cobra.Command {
	var (
		addr       string
		port       int
		outputDir  string
		workers    int
		retries    int
		catalogSrc string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI and REST API",
		Long: `Start an HTTP server exposing the catalog and the download engine:
  - REST API for browsing the catalog and managing download jobs
  - WebSocket for live progress updates
  - Web UI for browser-based use

The output directory is fixed server-side; clients choose what to
download, not where it lands.`,
		Example: `  distroget serve
  distroget serve --port 3000 --output-dir /srv/iso`,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			outDir := outputDir
			if !f.Changed("output-dir") {
				outDir = defaultStr(ro.cfg.Output, ".")
			}

			srv := server.New(server.Config{
				Addr:      addr,
				Port:      port,
				OutputDir: expandHome(outDir),
				Settings:  settings,
				Catalog:   ro.catalogSource(catalogSrc),
			})

			fmt.Printf("Serving on http://%s\n", net.JoinHostPort(addr, strconv.Itoa(port)))
			return srv.ListenAndServe(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "0.0.0.0", "Address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory downloads are written to")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of concurrent downloads")
	cmd.Flags().IntVar(&retries, "retries", 0, "Retries per URL before giving up (0 disables)")
	cmd.Flags().StringVar(&catalogSrc, "catalog", "", "Catalog override: local file or URL")
	return cmd
}
