// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pljakobs/distroget/pkg/catalog"
)

func newListCmd(ro *RootOpts) *cobra.Command {
	var (
		filters    []string
		urlsOnly   bool
		catalogSrc string
	)

	cmd := &cobra.Command{
		Use:   "list [section/path]",
		Short: "Print the catalog as a tree",
		Long: `Print the image catalog. An optional slash-separated path limits the
output to one section, --filter prunes by substring or glob, --urls
emits bare URLs for piping, and --json emits one object per image.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCatalog(cmd.Context(), ro, catalogSrc)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				sub := c.Sub(splitCatalogPath(args[0])...)
				if sub == nil {
					return fmt.Errorf("%q not found in catalog", args[0])
				}
				c = sub
			}
			if len(filters) > 0 {
				if c, err = c.Filter(filters); err != nil {
					return err
				}
			}

			switch {
			case ro.JSONOut:
				return writeCatalogJSON(os.Stdout, c)
			case urlsOnly:
				for _, u := range c.URLs() {
					fmt.Println(u)
				}
				return nil
			default:
				catalog.RenderTree(os.Stdout, c)
				fmt.Printf("\n%d image(s)\n", c.Len())
				return nil
			}
		},
	}

	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Select entries by substring or glob (repeatable)")
	cmd.Flags().BoolVar(&urlsOnly, "urls", false, "Print bare URLs, one per line")
	cmd.Flags().StringVar(&catalogSrc, "catalog", "", "Catalog override: local file or URL")
	return cmd
}

func writeCatalogJSON(w io.Writer, c *catalog.Catalog) error {
	type item struct {
		Path string `json:"path"`
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	items := make([]item, 0, c.Len())
	c.Walk(func(path []string, e catalog.Entry) bool {
		items = append(items, item{Path: strings.Join(path, "/"), Name: e.Name, URL: e.URL})
		return true
	})
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}
