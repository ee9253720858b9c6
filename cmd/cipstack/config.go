package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tturner/cipstack/internal/config"
)

const defaultConfigPath = "cipstack.yaml"

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and check configuration files",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

type configInitFlags struct {
	path  string
	force bool
}

func newConfigInitCmd() *cobra.Command {
	flags := &configInitFlags{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if !flags.force {
				if _, err := os.Stat(flags.path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", flags.path)
				}
			}
			if err := config.WriteDefaultConfig(flags.path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", flags.path)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.path, "config", defaultConfigPath, "Configuration file to write")
	cmd.Flags().BoolVar(&flags.force, "force", false, "Overwrite an existing file")

	return cmd
}

type configValidateFlags struct {
	path string
}

func newConfigValidateCmd() *cobra.Command {
	flags := &configValidateFlags{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.path == "" && len(args) > 0 {
				flags.path = args[0]
			}
			if flags.path == "" {
				return missingFlagError(cmd, "--config")
			}
			cfg, err := config.LoadConfig(flags.path, false)
			if err != nil {
				return err
			}
			if _, err := cfg.Connection.Params(); err != nil {
				return fmt.Errorf("connection: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", flags.path)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.path, "config", "", "Configuration file to check (required)")

	return cmd
}
