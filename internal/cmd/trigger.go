package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oarkflow/postie/internal/mailer"
)

var triggerOpts sendOptions

var triggerCmd = &cobra.Command{
	Use:   "trigger NAME",
	Short: "Send a message defined as an alias",
	Long: `Send the alias NAME from the config file. Message flags override
the alias fields; --data values are merged into the alias data.

Example:
  postie trigger deploy --data version=1.4.2
  postie trigger outage --to oncall@example.com`,
	Args: cobra.ExactArgs(1),
	ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		cfg, err := loadConfig()
		if err != nil || len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		var names []string
		for name := range cfg.Aliases {
			if strings.HasPrefix(name, toComplete) {
				names = append(names, name)
			}
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		return s.close(runTrigger(cmd, s, args[0], &triggerOpts, wd))
	},
}

func runTrigger(cmd *cobra.Command, s *session, name string, opts *sendOptions, wd string) error {
	if !s.dispatcher.Config().DevMode && !s.transport {
		return errNotConfigured
	}

	overrides, err := opts.definition(wd)
	if err != nil {
		return err
	}

	res, err := s.dispatcher.Trigger(cmd.Context(), name, overrides)
	if err != nil {
		return deliveryFailure(fmt.Sprintf("error triggering %q", name), err)
	}
	printResult(cmd, res)
	return nil
}

var aliasesCmd = &cobra.Command{
	Use:   "aliases",
	Short: "List the aliases defined in the config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		printAliases(cmd, s)
		return nil
	},
}

func printAliases(cmd *cobra.Command, s *session) {
	out := cmd.OutOrStdout()
	names := s.dispatcher.Aliases()
	if len(names) == 0 {
		fmt.Fprintln(out, "No aliases defined")
		return
	}
	for _, name := range names {
		def := s.cfg.Aliases[name]
		kind := def.Type
		if kind == "" {
			kind = "send"
		}
		fmt.Fprintf(out, "%-20s %-8s %s\n", name, kind, strings.Join(mailer.Format(def.To, def.ToName), ", "))
	}
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test the SMTP connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		if !s.transport {
			return errNotConfigured
		}
		if !s.dispatcher.TestConnection(cmd.Context()) {
			return fmt.Errorf("connection test failed")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Connection test successful")
		return nil
	},
}

func init() {
	triggerOpts.bind(triggerCmd)
}
