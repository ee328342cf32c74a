package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oarkflow/postie/internal/config"
	"github.com/oarkflow/postie/internal/mailer"
)

func newConfigureCommand(flags map[string]string) (*cobra.Command, *configureOptions) {
	opts := &configureOptions{}
	cmd := &cobra.Command{Use: "configure"}
	opts.bind(cmd)
	for name, value := range flags {
		_ = cmd.Flags().Set(name, value)
	}
	cmd.SetOut(io.Discard)
	cmd.SetContext(context.Background())
	return cmd, opts
}

func TestRunConfigure_KeepsFileAsWritten(t *testing.T) {
	t.Setenv("POSTIE_TEST_FROM", "bot@example.com")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hooks.yaml"), []byte(`
hooks:
  before_send:
    - cmd: echo hi
`), 0o644))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retry_attempts: 5
includes:
  - hooks.yaml
transporter:
  host: old.example.com
  port: 25
  tls_mode: starttls
  insecure_skip_verify: true
  timeout: 5s
defaults:
  from: ${POSTIE_TEST_FROM}
aliases:
  deploy:
    to: team@example.com
`), 0o600))

	flags := map[string]string{
		"host":      "smtp.example.com",
		"user":      "bot@example.com",
		"pass":      " app-password ",
		"no-verify": "true",
	}
	for i := 0; i < 2; i++ {
		cmd, opts := newConfigureCommand(flags)
		require.NoError(t, runConfigure(cmd, path, opts))
	}

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "${POSTIE_TEST_FROM}")
	assert.NotContains(t, string(content), "echo hi")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Hooks.BeforeSend, 1)
	assert.Equal(t, mailer.Single("bot@example.com"), cfg.Defaults.From)
	assert.Contains(t, cfg.Aliases, "deploy")
	assert.Equal(t, 5, *cfg.RetryAttempts)
	assert.Equal(t, time.Second, *cfg.RetryDelay)
	assert.False(t, *cfg.DevMode)

	tr := cfg.Transporter
	assert.Equal(t, "smtp.example.com", tr.Host)
	assert.Equal(t, 587, tr.Port)
	assert.Equal(t, "app-password", tr.Pass)
	assert.Equal(t, "starttls", tr.TLSMode)
	assert.True(t, tr.InsecureSkipVerify)
	assert.Equal(t, 5*time.Second, tr.Timeout)
}

func TestRunConfigure_NewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "postie", "config.yaml")
	cmd, opts := newConfigureCommand(map[string]string{
		"host":           "smtp.example.com",
		"port":           "465",
		"secure":         "true",
		"user":           "bot@example.com",
		"pass":           "pw",
		"retry-attempts": "2",
		"no-verify":      "true",
	})
	require.NoError(t, runConfigure(cmd, path, opts))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 465, cfg.Transporter.Port)
	assert.True(t, cfg.Transporter.Secure)
	assert.Equal(t, 2, *cfg.RetryAttempts)

	cmd, opts = newConfigureCommand(map[string]string{
		"host": "smtp.example.com", "user": "u", "pass": "p", "retry-attempts": "0", "no-verify": "true",
	})
	assert.ErrorContains(t, runConfigure(cmd, path, opts), "retry_attempts")
}
