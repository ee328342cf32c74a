package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/oarkflow/postie"
	"github.com/oarkflow/postie/internal/config"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check configuration file",
	Long: `Check if the configuration file is valid.

This validates:
  - YAML syntax
  - Include statements
  - Retry settings
  - SMTP server settings
  - Alias types and hook commands`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", path)
		}

		if _, err := loadConfig(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration file %s is valid\n", path)
		return nil
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new configuration file",
	Long: `Initialize a new configuration file at $HOME/.postie/config.yaml,
or at the path given with --config.

This creates a basic configuration file that you can customize.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}

		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}

		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(config.DefaultTemplate()), 0o600); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "\nEdit this file to set your SMTP server and aliases.")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, and build date of Postie.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Postie %s\n", postie.Version)
		if postie.GitCommit != "" {
			fmt.Fprintf(out, "  Commit: %s\n", postie.GitCommit)
		}
		if postie.BuildDate != "" {
			fmt.Fprintf(out, "  Built:  %s\n", postie.BuildDate)
		}
	},
}
