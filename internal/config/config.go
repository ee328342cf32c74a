/*
Package config provides configuration loading and validation for Postie.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/oarkflow/postie/internal/mailer"
	"github.com/oarkflow/postie/internal/transport/smtp"
)

// RCFile is the per-directory defaults file read by "postie send".
const RCFile = ".postierc"

// Config represents the complete Postie configuration
type Config struct {
	// Dispatcher settings; nil keeps the dispatcher default
	DevMode       *bool          `yaml:"dev_mode,omitempty"`
	RetryAttempts *int           `yaml:"retry_attempts,omitempty"`
	RetryDelay    *time.Duration `yaml:"retry_delay,omitempty"`

	// SMTP server used for delivery
	Transporter smtp.Config `yaml:"transporter,omitempty"`

	// Defaults applied to every message sent from the CLI
	Defaults mailer.Message `yaml:"defaults,omitempty"`

	// Template rendering settings
	Template Template `yaml:"template,omitempty"`

	// Named message templates
	Aliases map[string]mailer.AliasDefinition `yaml:"aliases,omitempty"`

	// Hooks run as send middleware
	Hooks Hooks `yaml:"hooks,omitempty"`

	// Include other configuration files
	Includes []string `yaml:"includes,omitempty"`
}

// Template configures the HTML template engine
type Template struct {
	// Strict fails rendering on keys missing from the data
	Strict bool `yaml:"strict,omitempty"`
}

// Hooks groups hook commands by pipeline stage
type Hooks struct {
	BeforeSend []Hook `yaml:"before_send,omitempty"`
}

// Hook represents a single hook command
type Hook struct {
	// Command to run
	Cmd string `yaml:"cmd"`

	// Directory to run the command in
	Dir string `yaml:"dir,omitempty"`

	// Environment variables
	Env map[string]string `yaml:"env,omitempty"`

	// Output handling
	Output string `yaml:"output,omitempty"`

	// If condition
	If string `yaml:"if,omitempty"`

	// FailFast aborts the send on error
	FailFast bool `yaml:"fail_fast,omitempty"`

	// Shell runs command in shell
	Shell bool `yaml:"shell,omitempty"`
}

// RC holds send defaults loaded from a .postierc file.
type RC struct {
	mailer.AliasDefinition `yaml:",inline"`
}

// DefaultPath returns $HOME/.postie/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".postie", "config.yaml"), nil
}

// Read parses the file at path as written: environment variables stay
// unexpanded and includes are not merged. Use it to edit and Save a config.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

// Load loads configuration from a file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Process includes
	baseDir := filepath.Dir(path)
	for _, include := range cfg.Includes {
		includePath := include
		if !filepath.IsAbs(includePath) {
			includePath = filepath.Join(baseDir, include)
		}

		// Support glob patterns
		matches, err := filepath.Glob(includePath)
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %s: %w", include, err)
		}

		for _, match := range matches {
			includeCfg, err := Load(match)
			if err != nil {
				return nil, fmt.Errorf("failed to load include %s: %w", match, err)
			}

			if err := mergo.Merge(&cfg, includeCfg, mergo.WithAppendSlice); err != nil {
				return nil, fmt.Errorf("failed to merge include %s: %w", match, err)
			}
		}
	}

	if cfg.Transporter.Port == 0 && cfg.Transporter.Host != "" {
		cfg.Transporter.Port = 587
		if cfg.Transporter.Secure {
			cfg.Transporter.Port = 465
		}
	}

	return &cfg, nil
}

// Save writes cfg to path, readable only by the owner since it carries
// SMTP credentials.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// LoadRC reads send defaults from path. JSON files parse as YAML.
func LoadRC(path string) (*RC, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var rc RC
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &rc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &rc, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []error

	if c.RetryAttempts != nil && *c.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry_attempts must be at least 1, got %d", *c.RetryAttempts))
	}
	if c.RetryDelay != nil && *c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry_delay must not be negative, got %s", *c.RetryDelay))
	}

	if c.HasTransporter() {
		if err := c.Transporter.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("transporter: %w", err))
		}
	}

	for name, alias := range c.Aliases {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("aliases: empty alias name"))
		}
		switch alias.Type {
		case "", mailer.AliasNotify, mailer.AliasAlert, mailer.AliasPing:
		default:
			errs = append(errs, fmt.Errorf("aliases.%s: unknown type %q", name, alias.Type))
		}
	}

	for i, h := range c.Hooks.BeforeSend {
		if strings.TrimSpace(h.Cmd) == "" {
			errs = append(errs, fmt.Errorf("hooks.before_send[%d]: cmd is required", i))
		}
	}

	return errors.Join(errs...)
}

// HasTransporter reports whether an SMTP server is configured.
func (c *Config) HasTransporter() bool {
	return c.Transporter.Host != ""
}

// Options converts the dispatcher settings for mailer.Dispatcher.Configure.
func (c *Config) Options() mailer.Options {
	return mailer.Options{
		DevMode:       c.DevMode,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
	}
}

// DefaultTemplate returns the default configuration template
func DefaultTemplate() string {
	return `# Postie configuration file

dev_mode: false
retry_attempts: 3
retry_delay: 1s

transporter:
  host: smtp.gmail.com
  port: 587
  user: ${POSTIE_SMTP_USER}
  pass: ${POSTIE_SMTP_PASS}

template:
  strict: false

# Applied to every message sent from the CLI
defaults:
  from: ${POSTIE_SMTP_USER}
  from_name: Postie

aliases:
  deploy:
    type: notify
    to: team@example.com
    subject: Deployment finished
    text: The deployment completed successfully.
  outage:
    type: alert
    to:
      - email: oncall@example.com
        name: On-call
    subject: Service outage
    template: "<h1>{{ .service }} is down</h1><p>{{ .details }}</p>"
    data:
      service: api
      details: Investigating.

hooks:
  before_send:
    - cmd: echo "sending {{ .Subject }}"
      shell: true
      output: "true"
`
}
