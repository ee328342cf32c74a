/*
Package mailer implements the Postie send pipeline: address normalization,
middleware, template rendering, retried delivery and named aliases.

A Dispatcher is created per caller with New; there is no shared instance.
Configure, Use, Define and the setters mutate the dispatcher without locking,
so callers that share one across goroutines must synchronize those calls
themselves.
*/
package mailer

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// Config holds the dispatcher settings.
type Config struct {
	DevMode       bool
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultConfig returns the settings a new Dispatcher starts with.
func DefaultConfig() Config {
	return Config{
		DevMode:       false,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
	}
}

// Options updates a Config; nil fields keep their current value.
type Options struct {
	DevMode       *bool
	RetryAttempts *int
	RetryDelay    *time.Duration
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithLogger sets the logger used by the dispatcher.
func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithObserver reports delivery events to o.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observer = o
	}
}

// WithTransport sets the transport.
func WithTransport(t Transport) Option {
	return func(d *Dispatcher) {
		d.transport = t
	}
}

// Dispatcher composes the send pipeline.
type Dispatcher struct {
	config     Config
	transport  Transport
	renderer   *renderer
	middleware chain
	aliases    *registry
	logger     *log.Logger
	observer   Observer
	// wait is forwarded to the retrier.
	wait func(time.Duration)
}

// New creates a Dispatcher with DefaultConfig.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		config:  DefaultConfig(),
		aliases: newRegistry(),
		logger:  log.Default().With("component", "mailer"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Configure merges opts into the current config. Invalid values are
// rejected and leave the config unchanged.
func (d *Dispatcher) Configure(opts Options) error {
	next := d.config
	if opts.DevMode != nil {
		next.DevMode = *opts.DevMode
	}
	if opts.RetryAttempts != nil {
		next.RetryAttempts = *opts.RetryAttempts
	}
	if opts.RetryDelay != nil {
		next.RetryDelay = *opts.RetryDelay
	}

	if next.RetryAttempts < 1 {
		return fmt.Errorf("%w: retry attempts must be at least 1, got %d", ErrConfiguration, next.RetryAttempts)
	}
	if next.RetryDelay < 0 {
		return fmt.Errorf("%w: retry delay must not be negative, got %s", ErrConfiguration, next.RetryDelay)
	}

	d.config = next
	return nil
}

// Config returns the current settings.
func (d *Dispatcher) Config() Config {
	return d.config
}

// SetTransport replaces the transport used for delivery.
func (d *Dispatcher) SetTransport(t Transport) {
	d.transport = t
}

// SetTemplateEngine installs the engine used by SendTemplate.
func (d *Dispatcher) SetTemplateEngine(engine Engine) error {
	if engine == nil {
		return fmt.Errorf("%w: template engine must implement Render", ErrConfiguration)
	}
	d.renderer = newRenderer(engine)
	return nil
}

// Use appends fn to the middleware chain.
func (d *Dispatcher) Use(fn Middleware) *Dispatcher {
	d.middleware.use(fn)
	return d
}

// TestConnection verifies the transport and reports whether it is usable.
func (d *Dispatcher) TestConnection(ctx context.Context) bool {
	if d.transport == nil {
		d.logger.Error("Transport not configured")
		return false
	}

	if err := d.transport.Verify(ctx); err != nil {
		d.logger.Error("Connection test failed", "error", err)
		if dg, ok := d.transport.(Diagnoser); ok && dg.Diagnose(err).Code == "auth" {
			d.logger.Error("Authentication failed. Check that the username and password are correct")
			d.logger.Error("For Gmail, enable 2-Step Verification and use an App Password generated for Mail")
		}
		return false
	}

	d.logger.Info("Connection test successful")
	return true
}

// Send validates, normalizes and delivers msg.
func (d *Dispatcher) Send(ctx context.Context, msg Message) (SendResult, error) {
	start := time.Now()
	result, err := d.send(ctx, msg)
	if d.observer != nil {
		d.observer.ObserveSend(result, err, time.Since(start))
	}
	return result, err
}

func (d *Dispatcher) send(ctx context.Context, msg Message) (SendResult, error) {
	env := normalize(msg)
	if err := validateEnvelope(env); err != nil {
		return SendResult{}, err
	}

	if d.config.DevMode {
		d.logger.Info("Dev mode enabled - email not sent", "to", env.To, "subject", env.Subject)
		d.logger.Debug("Email envelope", "envelope", env)
		return SendResult{Success: true, DevMode: true, Envelope: env}, nil
	}

	if d.transport == nil {
		return SendResult{}, fmt.Errorf("%w: transport not configured", ErrConfiguration)
	}

	reached, err := d.middleware.run(ctx, env)
	if err != nil {
		return SendResult{}, err
	}
	if !reached {
		d.logger.Warn("Middleware halted the send", "to", env.To, "subject", env.Subject)
		return SendResult{Halted: true}, nil
	}

	r := &retrier{
		transport: d.transport,
		attempts:  d.config.RetryAttempts,
		delay:     d.config.RetryDelay,
		logger:    d.logger,
		observer:  d.observer,
		wait:      d.wait,
	}
	return r.deliver(ctx, env)
}

// SendTemplate renders msg.Template into the HTML body and sends it.
func (d *Dispatcher) SendTemplate(ctx context.Context, msg TemplateMessage) (SendResult, error) {
	if d.renderer == nil {
		return SendResult{}, fmt.Errorf("%w: template engine not configured", ErrConfiguration)
	}

	html, err := d.renderer.render(msg.Template, msg.Data)
	if err != nil {
		return SendResult{}, err
	}

	out := msg.Message
	out.HTML = html
	return d.Send(ctx, out)
}

// Notify sends msg with a "[NOTIFICATION]" subject prefix.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) (SendResult, error) {
	msg.Subject = "[NOTIFICATION] " + orDefault(msg.Subject, "New Notification")
	return d.Send(ctx, msg)
}

// Alert sends msg with an "[ALERT]" subject prefix.
func (d *Dispatcher) Alert(ctx context.Context, msg Message) (SendResult, error) {
	msg.Subject = "[ALERT] " + orDefault(msg.Subject, "New Alert")
	return d.Send(ctx, msg)
}

// Ping sends a fixed "Ping" message to the recipients of msg.
func (d *Dispatcher) Ping(ctx context.Context, msg Message) (SendResult, error) {
	msg.Subject = "Ping"
	msg.Text = "Ping!"
	return d.Send(ctx, msg)
}

// Define stores def under name, replacing any previous definition.
func (d *Dispatcher) Define(name string, def AliasDefinition) error {
	return d.aliases.define(name, def)
}

// DefineAll stores every alias in defs.
func (d *Dispatcher) DefineAll(defs map[string]AliasDefinition) error {
	for name, def := range defs {
		if err := d.Define(name, def); err != nil {
			return fmt.Errorf("alias %q: %w", name, err)
		}
	}
	return nil
}

// Aliases returns the defined alias names in sorted order.
func (d *Dispatcher) Aliases() []string {
	return d.aliases.names()
}

// Trigger sends the alias name with overrides applied.
func (d *Dispatcher) Trigger(ctx context.Context, name string, overrides AliasDefinition) (SendResult, error) {
	merged, err := d.aliases.resolve(name, overrides)
	if err != nil {
		return SendResult{}, err
	}

	d.logger.Debug("Triggering alias", "name", name, "type", merged.Type)

	if merged.Template != "" {
		return d.SendTemplate(ctx, TemplateMessage{
			Message:  merged.Message,
			Template: merged.Template,
			Data:     merged.Data,
		})
	}

	switch merged.Type {
	case AliasNotify:
		return d.Notify(ctx, merged.Message)
	case AliasAlert:
		return d.Alert(ctx, merged.Message)
	case AliasPing:
		return d.Ping(ctx, merged.Message)
	default:
		return d.Send(ctx, merged.Message)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
