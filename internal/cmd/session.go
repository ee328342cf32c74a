package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/oarkflow/postie/internal/config"
	"github.com/oarkflow/postie/internal/hook"
	"github.com/oarkflow/postie/internal/mailer"
	"github.com/oarkflow/postie/internal/metrics"
	"github.com/oarkflow/postie/internal/tmpl"
	"github.com/oarkflow/postie/internal/transport/smtp"
)

var defaultConfigPath = config.DefaultPath

// errNotConfigured is returned when no config file exists yet.
var errNotConfigured = errors.New(`SMTP not configured. Please run "postie configure" first`)

// session is a dispatcher wired from the config file for one command run.
type session struct {
	cfg        *config.Config
	dispatcher *mailer.Dispatcher
	registry   *prometheus.Registry
	// transport is false when no SMTP server is configured.
	transport bool
}

// loadConfig reads and validates the config file.
func loadConfig() (*config.Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, errNotConfigured
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// openSession loads the config file and builds a dispatcher from it.
func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newSession(cfg, nil)
}

// newSession wires cfg into a dispatcher. A nil transport is built from
// cfg.Transporter when one is configured.
func newSession(cfg *config.Config, transport mailer.Transport) (*session, error) {
	s := &session{cfg: cfg}
	logger := log.Default().With("component", "mailer")

	opts := []mailer.Option{mailer.WithLogger(logger)}
	if metricsFile != "" {
		s.registry = prometheus.NewRegistry()
		collector, err := metrics.New(s.registry)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		opts = append(opts, mailer.WithObserver(collector))
	}

	if transport == nil && cfg.HasTransporter() {
		tr, err := smtp.New(cfg.Transporter)
		if err != nil {
			return nil, fmt.Errorf("failed to create transport: %w", err)
		}
		transport = tr
	}
	if transport != nil {
		opts = append(opts, mailer.WithTransport(transport))
		s.transport = true
	}

	d := mailer.New(opts...)
	if err := d.Configure(cfg.Options()); err != nil {
		return nil, err
	}
	var engineOpts []tmpl.EngineOption
	if cfg.Template.Strict {
		engineOpts = append(engineOpts, tmpl.WithStrict())
	}
	if err := d.SetTemplateEngine(tmpl.NewEngine(engineOpts...)); err != nil {
		return nil, err
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	runner := hook.NewRunner(wd, log.Default().With("component", "hook"))
	for _, mw := range runner.Middlewares(cfg.Hooks.BeforeSend) {
		d.Use(mw)
	}

	// Config defaults sit underneath every alias.
	base := mailer.AliasDefinition{Message: cfg.Defaults}
	for name, def := range cfg.Aliases {
		merged, err := mailer.Merge(base, def)
		if err != nil {
			return nil, fmt.Errorf("alias %q: %w", name, err)
		}
		if err := d.Define(name, merged); err != nil {
			return nil, fmt.Errorf("alias %q: %w", name, err)
		}
	}

	s.dispatcher = d
	return s, nil
}

// close flushes metrics and returns err, or the flush error if err is nil.
func (s *session) close(err error) error {
	if s.registry == nil || metricsFile == "" {
		return err
	}
	if werr := metrics.WriteTextfile(metricsFile, s.registry); werr != nil {
		log.Warn("Failed to write metrics", "path", metricsFile, "error", werr)
		if err == nil {
			return werr
		}
	}
	return err
}
