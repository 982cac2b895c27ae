package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sessiond/internal/config"
)

func newRootCommand() *cobra.Command {
	var apiFlag string
	var configFlag string

	resolveClient := func() (*apiClient, error) {
		base := strings.TrimSpace(apiFlag)
		if base == "" {
			cfg, _, _, err := config.Load(configFlag)
			if err != nil {
				return nil, fmt.Errorf("resolve api address: %w", err)
			}
			base = "http://" + cfg.API.Bind
		}
		return newAPIClient(base), nil
	}

	rootCmd := &cobra.Command{
		Use:           "sessionctl",
		Short:         "Control and inspect the sessiond recording daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&apiFlag, "api", "", "Daemon API base URL (default from config)")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newStatusCommand(resolveClient))
	rootCmd.AddCommand(newHealthCommand(resolveClient))
	rootCmd.AddCommand(newHistoryCommand(resolveClient))
	rootCmd.AddCommand(newMetadataCommand(resolveClient))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}

// newConfigCommand prints a sample configuration for bootstrapping a host.
func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print a sample configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), config.SampleConfig())
			return nil
		},
	}
}
