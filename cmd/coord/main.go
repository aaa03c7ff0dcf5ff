package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/coord/internal/cli"
	"github.com/example/coord/internal/version"
	"github.com/example/coord/internal/wire"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "coord",
		Short:   "coord - Persona coordination core",
		Version: version.String(),
		Long: `coord reconciles dual-authority execution state, resolves task
responsibility, and runs the handshake messaging, lifecycle, spend, and
monitoring services for a fleet of persona instances.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configPath != "" {
				wire.SetConfigPath(configPath)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.coord/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(cli.InitCmd())
	rootCmd.AddCommand(cli.DoctorCmd())
	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.ExecutionCmd())
	rootCmd.AddCommand(cli.MessageCmd())
	rootCmd.AddCommand(cli.InstanceCmd())
	rootCmd.AddCommand(cli.RaciCmd())
	rootCmd.AddCommand(cli.SpendCmd())
	rootCmd.AddCommand(cli.AlertCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
