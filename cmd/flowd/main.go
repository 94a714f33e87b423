// Package main is the entry point for the flowd daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/whrit/flow-agent-sub006/internal/config"
	"github.com/whrit/flow-agent-sub006/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flowd",
		Short:         "Hook execution engine and pipeline orchestrator for agent runtimes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), startCmd(), configCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("flowd %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			if err := app.Run(path); err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", "flowd.yaml", "path to configuration file")
	return cmd
}

func configCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	validate := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path := "flowd.yaml"
			if len(args) > 0 {
				path = args[0]
			}
			cfg, err := config.Load(path)
			if err != nil {
				fmt.Fprintln(os.Stderr, "error:", err)
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintln(os.Stderr, "invalid:", err)
				return err
			}
			fmt.Printf("%s: ok (%d pipeline(s))\n", path, len(cfg.Pipelines))
			return nil
		},
	}

	root.AddCommand(validate)
	return root
}
