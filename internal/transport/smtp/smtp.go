// Package smtp delivers mailer envelopes over SMTP using go-mail.
package smtp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	gomail "github.com/go-mail/mail"
	"github.com/google/uuid"

	"github.com/oarkflow/postie/internal/mailer"
)

// TLS modes.
const (
	TLSAuto     = "auto"
	TLSStartTLS = "starttls"
	TLSSSL      = "ssl"
	TLSNone     = "none"
)

// Config describes an SMTP server.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Secure connects with implicit TLS, like TLSMode "ssl".
	Secure             bool          `yaml:"secure,omitempty"`
	User               string        `yaml:"user,omitempty"`
	Pass               string        `yaml:"pass,omitempty"`
	TLSMode            string        `yaml:"tls_mode,omitempty"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify,omitempty"`
	Timeout            time.Duration `yaml:"timeout,omitempty"`
}

// Validate checks the fields needed to dial.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("smtp: host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("smtp: invalid port %d", c.Port)
	}
	switch c.TLSMode {
	case "", TLSAuto, TLSStartTLS, TLSSSL, TLSNone:
	default:
		return fmt.Errorf("smtp: unknown tls mode %q", c.TLSMode)
	}
	return nil
}

// dialer is satisfied by *gomail.Dialer.
type dialer interface {
	Dial() (gomail.SendCloser, error)
}

// Transport implements mailer.Transport.
type Transport struct {
	cfg    Config
	dialer dialer
	logger *log.Logger
	newID  func() string
}

// Option customizes a Transport.
type Option func(*Transport)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithDialer swaps the dialer, mostly for tests.
func WithDialer(d dialer) Option {
	return func(t *Transport) {
		if d != nil {
			t.dialer = d
		}
	}
}

// New creates a Transport for cfg.
func New(cfg Config, opts ...Option) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if cfg.Timeout > 0 {
		d.Timeout = cfg.Timeout
	}

	switch {
	case cfg.Secure || cfg.TLSMode == TLSSSL:
		d.SSL = true
	case cfg.TLSMode == TLSNone:
		d.StartTLSPolicy = gomail.NoStartTLS
	case cfg.TLSMode == TLSStartTLS:
		d.StartTLSPolicy = gomail.MandatoryStartTLS
	}

	t := &Transport{
		cfg:    cfg,
		dialer: d,
		logger: log.Default().With("component", "smtp", "host", cfg.Host, "port", cfg.Port),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// Verify dials and authenticates without sending anything.
func (t *Transport) Verify(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s, err := t.dialer.Dial()
	if err != nil {
		return fmt.Errorf("smtp verify: %w", err)
	}
	return s.Close()
}

// Send delivers env and returns the generated Message-ID.
func (t *Transport) Send(ctx context.Context, env *mailer.Envelope) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m, id, err := t.build(env)
	if err != nil {
		return "", err
	}

	t.logger.Debug("Sending email", "from", env.From, "to", env.To, "subject", env.Subject)

	s, err := t.dialer.Dial()
	if err != nil {
		return "", fmt.Errorf("smtp dial: %w", err)
	}
	defer s.Close()

	if err := gomail.Send(s, m); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}
	return id, nil
}

// Diagnose classifies err for the dispatcher; see Diagnose.
func (t *Transport) Diagnose(err error) mailer.Diagnosis {
	d := Diagnose(err)
	return mailer.Diagnosis{Code: d.Code, Temporary: d.Temporary}
}

func (t *Transport) build(env *mailer.Envelope) (*gomail.Message, string, error) {
	m := gomail.NewMessage()

	for k, v := range env.Headers {
		m.SetHeader(k, v)
	}

	// Display names are encoded here; SetHeader would encode the
	// angle-addr along with a non-ASCII name.
	for _, h := range []struct {
		field string
		addrs []string
	}{
		{"From", []string{env.From}},
		{"To", env.To},
		{"Cc", env.CC},
		{"Bcc", env.BCC},
	} {
		if len(h.addrs) == 0 {
			continue
		}
		values, err := formatAddresses(m, h.addrs)
		if err != nil {
			return nil, "", fmt.Errorf("%s: %w", strings.ToLower(h.field), err)
		}
		m.SetHeader(h.field, values...)
	}
	m.SetHeader("Subject", env.Subject)

	id := fmt.Sprintf("<%s@%s>", t.newID(), domainOf(env.From, t.cfg.Host))
	m.SetHeader("Message-ID", id)

	// Prefer multipart/alternative when both bodies exist.
	switch {
	case env.Text != "" && env.HTML != "":
		m.SetBody("text/plain", env.Text)
		m.AddAlternative("text/html", env.HTML)
	case env.HTML != "":
		m.SetBody("text/html", env.HTML)
	default:
		m.SetBody("text/plain", env.Text)
	}

	for i, a := range env.Attachments {
		if err := attach(m, a); err != nil {
			return nil, "", fmt.Errorf("attachment %d: %w", i, err)
		}
	}
	return m, id, nil
}

// formatAddresses renders "Name" <addr> strings as RFC 2047 header values.
func formatAddresses(m *gomail.Message, addrs []string) ([]string, error) {
	values := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		parsed, err := mail.ParseAddress(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", addr, err)
		}
		values = append(values, m.FormatAddress(parsed.Address, parsed.Name))
	}
	return values, nil
}

func attach(m *gomail.Message, a mailer.Attachment) error {
	var settings []gomail.FileSetting
	if a.ContentType != "" {
		settings = append(settings, gomail.SetHeader(map[string][]string{"Content-Type": {a.ContentType}}))
	}

	switch {
	case a.Path != "":
		if a.Filename != "" {
			settings = append(settings, gomail.Rename(a.Filename))
		}
		m.Attach(a.Path, settings...)
	case a.Content != nil:
		if a.Filename == "" {
			return errors.New("inline content needs a filename")
		}
		content := a.Content
		settings = append(settings, gomail.SetCopyFunc(func(w io.Writer) error {
			_, err := w.Write(content)
			return err
		}))
		m.Attach(a.Filename, settings...)
	default:
		return errors.New("attachment needs a path or content")
	}
	return nil
}

// domainOf returns the domain part of a formatted address.
func domainOf(addr, fallback string) string {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return fallback
	}
	if at := strings.LastIndex(parsed.Address, "@"); at >= 0 && at < len(parsed.Address)-1 {
		return parsed.Address[at+1:]
	}
	return fallback
}
