package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/oarkflow/postie/internal/config"
)

// configureOptions holds the flags of the configure command.
type configureOptions struct {
	host          string
	port          int
	user          string
	pass          string
	secure        bool
	tlsMode       string
	devMode       bool
	retryAttempts int
	retryDelay    time.Duration
	noVerify      bool
}

func (o *configureOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.host, "host", "", "SMTP host")
	f.IntVar(&o.port, "port", 587, "SMTP port")
	f.StringVar(&o.user, "user", "", "SMTP username")
	f.StringVar(&o.pass, "pass", "", "SMTP password")
	f.BoolVar(&o.secure, "secure", false, "use an implicit TLS connection")
	f.StringVar(&o.tlsMode, "tls-mode", "", "TLS mode: auto, starttls, ssl or none")
	f.BoolVar(&o.devMode, "dev-mode", false, "log messages instead of sending them")
	f.IntVar(&o.retryAttempts, "retry-attempts", 3, "number of delivery attempts")
	f.DurationVar(&o.retryDelay, "retry-delay", time.Second, "delay between delivery attempts")
	f.BoolVar(&o.noVerify, "no-verify", false, "save without testing the connection")
}

var configureOpts configureOptions

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Configure SMTP settings",
	Long: `Configure the SMTP server and delivery settings.

The connection is tested before the configuration is saved. Existing
aliases, defaults, hooks and includes in the config file are kept as
written; environment variables in it are not expanded.

Example:
  postie configure --host smtp.gmail.com --port 587 --user me@gmail.com --pass app-password`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}
		return runConfigure(cmd, path, &configureOpts)
	},
}

func runConfigure(cmd *cobra.Command, path string, opts *configureOptions) error {
	cfg := &config.Config{}
	if _, err := os.Stat(path); err == nil {
		if cfg, err = config.Read(path); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	tr := &cfg.Transporter
	tr.Host = opts.host
	tr.Port = opts.port
	tr.Secure = opts.secure
	tr.User = opts.user
	tr.Pass = strings.TrimSpace(opts.pass)
	if cmd.Flags().Changed("tls-mode") || tr.TLSMode == "" {
		tr.TLSMode = opts.tlsMode
	}

	if cmd.Flags().Changed("dev-mode") || cfg.DevMode == nil {
		cfg.DevMode = &opts.devMode
	}
	if cmd.Flags().Changed("retry-attempts") || cfg.RetryAttempts == nil {
		cfg.RetryAttempts = &opts.retryAttempts
	}
	if cmd.Flags().Changed("retry-delay") || cfg.RetryDelay == nil {
		cfg.RetryDelay = &opts.retryDelay
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Info("Configuring SMTP",
		"host", tr.Host,
		"port", tr.Port,
		"user", tr.User,
		"secure", tr.Secure)

	if !opts.noVerify {
		s, err := newSession(&config.Config{Transporter: *tr}, nil)
		if err != nil {
			return err
		}
		if !s.dispatcher.TestConnection(cmd.Context()) {
			return fmt.Errorf("failed to configure SMTP. Please check your settings and try again")
		}
	}

	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ SMTP configuration saved to %s\n", path)
	return nil
}

func init() {
	configureOpts.bind(configureCmd)

	_ = configureCmd.MarkFlagRequired("host")
	_ = configureCmd.MarkFlagRequired("user")
	_ = configureCmd.MarkFlagRequired("pass")
}
