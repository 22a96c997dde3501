package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rileyhilliard/vector/internal/config"
	"github.com/spf13/cobra"
)

var (
	hostPMCDFlag   string
	hostGlobalFlag bool
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Show or change the pmwebapi host",
}

var hostSetCmd = &cobra.Command{
	Use:   "set <host>",
	Short: "Persist the pmwebapi host",
	Long: `Write the pmwebapi host (and optionally the pmcd hostspec) to the config
file, keeping the rest of the file and its comments intact. A running
'vector serve' picks up host changes through PUT /api/host instead.

Examples:
  vector host set perf01
  vector host set perf01:44323 --pmcd db7
  vector host set --global perf01`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := hostConfigPath(hostGlobalFlag)
		if err != nil {
			return err
		}
		return hostSet(path, args[0], hostPMCDFlag, os.Stdout)
	},
}

var hostShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configured host",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		return hostShow(cfg, path, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(hostCmd)
	hostCmd.AddCommand(hostSetCmd, hostShowCmd)
	hostSetCmd.Flags().StringVar(&hostPMCDFlag, "pmcd", "", "pmcd hostspec to request contexts for")
	hostSetCmd.Flags().BoolVar(&hostGlobalFlag, "global", false, "write to ~/.config/vector/config.yaml")
}

// hostConfigPath picks the file to edit: --config, then a found config,
// then ./.vector.yaml (or the global file with --global).
func hostConfigPath(global bool) (string, error) {
	if global {
		return config.GlobalPath()
	}
	path, err := config.Find(cfgFile)
	if err != nil {
		return "", err
	}
	if path == "" {
		path = config.ConfigFileName
	}
	return path, nil
}

func hostSet(path, host, pmcd string, w io.Writer) error {
	cfg := config.DefaultConfig()
	cfg.Host = host
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.SaveHost(path, host, pmcd); err != nil {
		return err
	}
	fmt.Fprintf(w, "✓ host set to %s in %s\n", host, path)
	return nil
}

func hostShow(cfg *config.Config, path string, w io.Writer) error {
	if path == "" {
		path = "(defaults)"
	}
	host := cfg.Host
	if host == "" {
		host = "(not set)"
	}
	fmt.Fprintf(w, "host:   %s\n", host)
	fmt.Fprintf(w, "pmcd:   %s\n", cfg.PMCD)
	fmt.Fprintf(w, "port:   %d\n", cfg.Port)
	if cfg.Tunnel.Enabled() {
		fmt.Fprintf(w, "tunnel: %s\n", cfg.Tunnel.SSH)
	}
	fmt.Fprintf(w, "config: %s\n", path)
	return nil
}
