// Package hook runs external commands as send middleware.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/oarkflow/postie/internal/config"
	"github.com/oarkflow/postie/internal/mailer"
	"github.com/oarkflow/postie/internal/tmpl"
)

// Runner executes before-send hooks against an envelope.
type Runner struct {
	workDir string
	logger  *log.Logger
	stdout  io.Writer
	stderr  io.Writer
}

// NewRunner creates a new hook runner.
func NewRunner(workDir string, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default().With("component", "hook")
	}
	return &Runner{
		workDir: workDir,
		logger:  logger,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
}

// Middleware wraps hook as a mailer middleware. A failing hook aborts the
// send only when FailFast is set.
func (r *Runner) Middleware(hook config.Hook) mailer.Middleware {
	return func(ctx context.Context, env *mailer.Envelope, next mailer.Next) error {
		if err := r.Run(ctx, hook, env); err != nil {
			return err
		}
		return next(ctx)
	}
}

// Middlewares converts every configured hook, preserving order.
func (r *Runner) Middlewares(hooks []config.Hook) []mailer.Middleware {
	out := make([]mailer.Middleware, 0, len(hooks))
	for _, h := range hooks {
		out = append(out, r.Middleware(h))
	}
	return out
}

// Run executes a hook for env.
func (r *Runner) Run(ctx context.Context, hook config.Hook, env *mailer.Envelope) error {
	tmplCtx := envelopeContext(env)

	if hook.If != "" {
		condition, err := tmplCtx.Apply(hook.If)
		if err != nil {
			return fmt.Errorf("failed to evaluate condition: %w", err)
		}
		condition = strings.TrimSpace(condition)
		if condition != "true" && condition != "1" {
			r.logger.Debug("Skipping hook due to condition", "condition", hook.If)
			return nil
		}
	}

	if hook.Cmd == "" {
		return nil
	}
	cmd, err := tmplCtx.Apply(hook.Cmd)
	if err != nil {
		return fmt.Errorf("failed to apply template to command: %w", err)
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	r.logger.Info("Running hook", "cmd", cmd)

	c := r.command(ctx, cmd, hook.Shell)
	if c == nil {
		return nil
	}
	c.Dir = r.workDir
	if hook.Dir != "" {
		c.Dir = hook.Dir
	}
	c.Stdin = bytes.NewReader(payload)

	c.Env = os.Environ()
	for key, value := range hook.Env {
		expanded, err := tmplCtx.Apply(value)
		if err != nil {
			expanded = value
		}
		c.Env = append(c.Env, fmt.Sprintf("%s=%s", key, expanded))
	}

	if hook.Output == "true" || hook.Output == "1" {
		c.Stdout = r.stdout
		c.Stderr = r.stderr
	}

	if err := c.Run(); err != nil {
		if hook.FailFast {
			return fmt.Errorf("hook %q failed: %w", cmd, err)
		}
		r.logger.Warn("Hook failed but continuing", "cmd", cmd, "error", err)
	}
	return nil
}

func (r *Runner) command(ctx context.Context, cmd string, shell bool) *exec.Cmd {
	if !shell {
		parts := strings.Fields(cmd)
		if len(parts) == 0 {
			return nil
		}
		return exec.CommandContext(ctx, parts[0], parts[1:]...)
	}

	shellPath := os.Getenv("SHELL")
	if shellPath == "" {
		if runtime.GOOS == "windows" {
			shellPath = "powershell.exe"
		} else {
			shellPath = "/bin/sh"
		}
	}
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, shellPath, "-Command", cmd)
	}
	return exec.CommandContext(ctx, shellPath, "-c", cmd)
}

// envelopeContext exposes the envelope to hook templates.
func envelopeContext(env *mailer.Envelope) *tmpl.Context {
	headers := map[string]string{}
	for k, v := range env.Headers {
		headers[k] = v
	}
	return tmpl.NewContext(map[string]interface{}{
		"From":        env.From,
		"To":          env.To,
		"CC":          env.CC,
		"BCC":         env.BCC,
		"Subject":     env.Subject,
		"Headers":     headers,
		"Attachments": len(env.Attachments),
		"HasHTML":     env.HTML != "",
	})
}
