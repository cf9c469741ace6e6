// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// historyLimit caps how many recent download locations the config
// remembers.
const historyLimit = 10

// Config is the persisted configuration. Flags override environment,
// environment overrides file values; see LoadConfig.
type Config struct {
	Output      string `yaml:"output,omitempty"`
	Workers     int    `yaml:"workers,omitempty"`
	Retries     int    `yaml:"retries,omitempty"`
	BackoffBase string `yaml:"backoff-base,omitempty" envconfig:"BACKOFF_BASE"`
	BackoffMax  string `yaml:"backoff-max,omitempty" envconfig:"BACKOFF_MAX"`
	LimitRate   string `yaml:"limit-rate,omitempty" envconfig:"LIMIT_RATE"`
	ChunkSize   string `yaml:"chunk-size,omitempty" envconfig:"CHUNK_SIZE"`

	// RepoURLType picks the catalog repository remote: "https" or
	// "ssh".
	RepoURLType string `yaml:"repo-url-type,omitempty" envconfig:"REPO_URL_TYPE"`

	// CatalogURL overrides where the raw catalog document is fetched
	// from.
	CatalogURL string `yaml:"catalog-url,omitempty" envconfig:"CATALOG_URL"`

	// LocationHistory lists recent download destinations, most recent
	// first.
	LocationHistory []string `yaml:"location-history,omitempty" ignored:"true"`

	Proxmox    ProxmoxConfig    `yaml:"proxmox,omitempty"`
	AutoUpdate AutoUpdateConfig `yaml:"auto-update,omitempty" envconfig:"AUTO_UPDATE"`

	// AutoDeployItems are catalog paths or URLs that `deploy` fetches
	// and uploads to the Proxmox target.
	AutoDeployItems []string `yaml:"auto-deploy-items,omitempty" envconfig:"AUTO_DEPLOY_ITEMS"`
}

// ProxmoxConfig names the deploy target. No credentials: access runs
// over the operator's ssh keys.
type ProxmoxConfig struct {
	Host string `yaml:"host,omitempty"`
	User string `yaml:"user,omitempty"`

	// StorageMappings maps pvesm content types ("iso", "vztmpl") to
	// storage names.
	StorageMappings map[string]string `yaml:"storage-mappings,omitempty" envconfig:"STORAGE_MAPPINGS"`
}

// AutoUpdateConfig scopes the `update` command.
type AutoUpdateConfig struct {
	Enabled       bool     `yaml:"enabled,omitempty"`
	Distributions []string `yaml:"distributions,omitempty"`
}

// DefaultConfig returns the values written by `config init`.
func DefaultConfig() Config {
	return Config{
		Output:      ".",
		Workers:     3,
		Retries:     3,
		BackoffBase: "1s",
		ChunkSize:   "64KiB",
		RepoURLType: "https",
	}
}

// ConfigDir is where the config file lives.
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".distroget"
	}
	return filepath.Join(home, ".config", "distroget")
}

// DefaultConfigPath is where `config init` writes.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// findConfigFile returns the first existing config file, or empty.
func findConfigFile() string {
	for _, name := range []string{"config.yaml", "config.yml", "config.json"} {
		path := filepath.Join(ConfigDir(), name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// LoadConfig reads the config file and applies DISTROGET_* environment
// overrides on top. An explicit path must exist; the discovered
// default may be absent, which yields the zero Config. The returned
// path is where changes are saved back to.
func LoadConfig(explicit string) (Config, string, error) {
	var cfg Config

	path := explicit
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, "", fmt.Errorf("read config: %w", err)
		}
		// YAML is a superset of JSON, so one parser covers both
		// extensions.
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, "", fmt.Errorf("parse config %s: %w", path, err)
		}
	} else {
		path = DefaultConfigPath()
	}

	if err := envconfig.Process("distroget", &cfg); err != nil {
		return cfg, "", fmt.Errorf("environment overrides: %w", err)
	}
	return cfg, path, nil
}

// Save writes the config back to path, creating the directory on
// first use.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// RememberLocation records dir as the most recent download
// destination, deduplicating and capping the history.
func (c *Config) RememberLocation(dir string) {
	if dir == "" {
		return
	}
	history := []string{dir}
	for _, old := range c.LocationHistory {
		if old != dir {
			history = append(history, old)
		}
	}
	if len(history) > historyLimit {
		history = history[:historyLimit]
	}
	c.LocationHistory = history
}

// expandHome resolves a leading "~/" against the home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func newConfigCmd(ro *RootOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd(ro))
	cmd.AddCommand(newConfigPathCmd(ro))

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Long: `Creates a default configuration file under ~/.config/distroget/

The configuration file sets default values for all command flags.
CLI flags always override config file values.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := DefaultConfigPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file already exists: %s\nUse --force to overwrite", path)
			}
			if err := DefaultConfig().Save(path); err != nil {
				return fmt.Errorf("could not write config file: %w", err)
			}

			fmt.Printf("Created config file: %s\n", path)
			fmt.Println()
			fmt.Println("Edit this file to set your defaults. For example:")
			fmt.Println("  - Change the default output directory")
			fmt.Println("  - Add a proxmox target for deploy")
			fmt.Println("  - List auto-deploy-items")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing config file")
	return cmd
}

func newConfigShowCmd(ro *RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ro.cfgPath
			if _, err := os.Stat(path); err != nil {
				fmt.Println("No config file found.")
				fmt.Printf("Run 'distroget config init' to create one at:\n  %s\n", DefaultConfigPath())
				return nil
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			fmt.Printf("Config file: %s\n\n", path)
			fmt.Println(string(data))
			return nil
		},
	}
}

func newConfigPathCmd(ro *RootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(ro.cfgPath)
		},
	}
}
