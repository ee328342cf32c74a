/*
Package cmd provides the CLI commands for Postie.
*/
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	verbose     bool
	debug       bool
	metricsFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "postie",
	Short: "Send email from the command line",
	Long: `Postie sends email over SMTP with retries, templates, hooks and
named aliases.

Example:
  postie configure --host smtp.gmail.com --port 587 --user me@gmail.com --pass app-password
  postie send --to team@example.com --subject "Hello" --text "Hi there"
  postie trigger deploy --data version=1.4.2
  postie aliases`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is $HOME/.postie/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	// Add subcommands
	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(triggerCmd)
	rootCmd.AddCommand(aliasesCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if debug {
		log.SetLevel(log.DebugLevel)
	} else if verbose {
		log.SetLevel(log.InfoLevel)
	} else {
		log.SetLevel(log.WarnLevel)
	}

	// A missing .env is fine; anything else is worth a warning.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("Failed to load .env", "error", err)
	}

	if cfgFile != "" {
		// Use config file from the flag
		if _, err := os.Stat(cfgFile); os.IsNotExist(err) && !creatingConfig() {
			fmt.Fprintf(os.Stderr, "Config file not found: %s\n", cfgFile)
			os.Exit(1)
		}
	}
}

// creatingConfig reports whether the running command writes the config file.
func creatingConfig() bool {
	cmd, _, err := rootCmd.Find(os.Args[1:])
	if err != nil {
		return false
	}
	return cmd == configureCmd || cmd == initCmd
}

// configPath resolves --config or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return defaultConfigPath()
}
