package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/rileyhilliard/vector/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configInitForce  bool
	configInitGlobal bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create, show or validate configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter .vector.yaml",
	Long: `Create a .vector.yaml in the current directory (or the global config with
--global) holding the defaults and a few example subscriptions.

Examples:
  vector config init
  vector config init --global
  vector config init --force`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.ConfigFileName
		if cfgFile != "" {
			path = cfgFile
		}
		if configInitGlobal {
			var err error
			if path, err = config.GlobalPath(); err != nil {
				return err
			}
		}
		if err := config.WriteDefault(path, configInitForce); err != nil {
			return err
		}
		fmt.Printf("✓ wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config (file, defaults and VECTOR_ overrides)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := config.LoadOrDefault(cfgFile)
		if err != nil {
			return err
		}
		return writeYAML(os.Stdout, cfg)
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config for errors",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, path, err := loadConfig()
		if err != nil {
			return err
		}
		if path == "" {
			path = "defaults"
		}
		fmt.Printf("✓ %s is valid\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd)
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configInitCmd.Flags().BoolVar(&configInitGlobal, "global", false, "write ~/.config/vector/config.yaml")
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}
