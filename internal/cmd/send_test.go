package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oarkflow/postie/internal/config"
	"github.com/oarkflow/postie/internal/mailer"
)

type fakeTransport struct {
	sent []*mailer.Envelope
}

func (f *fakeTransport) Verify(context.Context) error { return nil }

func (f *fakeTransport) Send(_ context.Context, env *mailer.Envelope) (string, error) {
	f.sent = append(f.sent, env)
	return "<id@example.com>", nil
}

type failingTransport struct {
	diag mailer.Diagnosis
}

func (f *failingTransport) Verify(context.Context) error { return nil }

func (f *failingTransport) Send(context.Context, *mailer.Envelope) (string, error) {
	return "", errors.New("421 4.7.0 try again later")
}

func (f *failingTransport) Diagnose(error) mailer.Diagnosis { return f.diag }

func testConfig() *config.Config {
	return &config.Config{
		Defaults: mailer.Message{
			From:     mailer.Single("bot@example.com"),
			FromName: "Bot",
		},
		Aliases: map[string]mailer.AliasDefinition{
			"deploy": {
				Type:    mailer.AliasNotify,
				Message: mailer.Message{To: mailer.Single("team@example.com"), Subject: "Deployed", Text: "done"},
			},
			"welcome": {
				Message:  mailer.Message{To: mailer.Single("new@example.com"), Subject: "Welcome"},
				Template: "<p>Hi {{ .name }}</p>",
				Data:     map[string]interface{}{"name": "friend"},
			},
		},
	}
}

func newTestSession(t *testing.T, cfg *config.Config) (*session, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	s, err := newSession(cfg, tr)
	require.NoError(t, err)
	return s, tr
}

func newTestCommand(opts *sendOptions, flags map[string]string) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{Use: "test"}
	opts.bind(cmd)
	for name, value := range flags {
		_ = cmd.Flags().Set(name, value)
	}
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	return cmd, &out
}

func TestDefinition(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "team.json"),
		[]byte(`["a@example.com", {"email": "b@example.com", "name": "Bee"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "body.html"), []byte("<h1>News</h1>"), 0o644))

	opts := &sendOptions{
		from:        "me@example.com",
		fromName:    "Me",
		to:          "team.json",
		cc:          "c@example.com",
		subject:     "News",
		html:        "body.html",
		attachments: "report.pdf, /tmp/logo.png,",
		data:        []string{"name=Ann", "greeting=a=b"},
	}
	def, err := opts.definition(dir)
	require.NoError(t, err)

	assert.Equal(t, mailer.Named("me@example.com", "Me"), def.From)
	assert.Equal(t, []string{"a@example.com", `"Bee" <b@example.com>`}, mailer.Format(def.To, ""))
	assert.Equal(t, mailer.Single("c@example.com"), def.CC)
	assert.True(t, def.BCC.IsZero())
	assert.Equal(t, "<h1>News</h1>", def.HTML)
	assert.Equal(t, []mailer.Attachment{
		{Filename: "report.pdf", Path: filepath.Join(dir, "report.pdf")},
		{Filename: "logo.png", Path: "/tmp/logo.png"},
	}, def.Attachments)
	assert.Equal(t, map[string]interface{}{"name": "Ann", "greeting": "a=b"}, def.Data)
}

func TestDefinition_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := (&sendOptions{to: "missing.json"}).definition(dir)
	assert.ErrorContains(t, err, "recipients file not found")

	_, err = (&sendOptions{html: "missing.html"}).definition(dir)
	assert.ErrorContains(t, err, "HTML file not found")

	_, err = (&sendOptions{data: []string{"novalue"}}).definition(dir)
	assert.ErrorContains(t, err, "expected key=value")
}

func TestRunSend_FlagsOverDefaults(t *testing.T) {
	s, tr := newTestSession(t, testConfig())
	opts := &sendOptions{}
	cmd, out := newTestCommand(opts, map[string]string{
		"to":      "a@example.com",
		"to-name": "Ann",
		"subject": "Hello",
		"text":    "hi",
	})

	require.NoError(t, runSend(cmd, s, opts, t.TempDir()))
	require.Len(t, tr.sent, 1)
	env := tr.sent[0]
	assert.Equal(t, `"Bot" <bot@example.com>`, env.From)
	assert.Equal(t, []string{`"Ann" <a@example.com>`}, env.To)
	assert.Equal(t, "Hello", env.Subject)
	assert.Contains(t, out.String(), "Email sent successfully")
}

func TestRunSend_RCFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.RCFile), []byte(`{
  "to": "rc@example.com",
  "subject": "From rc",
  "text": "body"
}`), 0o644))

	s, tr := newTestSession(t, testConfig())
	opts := &sendOptions{}
	cmd, _ := newTestCommand(opts, nil)

	require.NoError(t, runSend(cmd, s, opts, dir))
	require.Len(t, tr.sent, 1)
	assert.Equal(t, []string{"rc@example.com"}, tr.sent[0].To)
	assert.Equal(t, "From rc", tr.sent[0].Subject)
}

func TestRunSend_Template(t *testing.T) {
	s, tr := newTestSession(t, testConfig())
	opts := &sendOptions{}
	cmd, _ := newTestCommand(opts, map[string]string{
		"to":       "a@example.com",
		"subject":  "Welcome",
		"template": "<p>Hello {{ .name }}</p>",
		"data":     "name=Ann",
	})

	require.NoError(t, runSend(cmd, s, opts, t.TempDir()))
	require.Len(t, tr.sent, 1)
	assert.Equal(t, "<p>Hello Ann</p>", tr.sent[0].HTML)
}

func TestRunSend_RequiredFields(t *testing.T) {
	s, tr := newTestSession(t, testConfig())
	opts := &sendOptions{}
	cmd, _ := newTestCommand(opts, map[string]string{"to": "a@example.com", "text": "hi"})

	err := runSend(cmd, s, opts, t.TempDir())
	assert.ErrorContains(t, err, "subject is required")
	assert.Empty(t, tr.sent)
}

func TestRunSend_NotConfigured(t *testing.T) {
	s, err := newSession(&config.Config{}, nil)
	require.NoError(t, err)
	opts := &sendOptions{}
	cmd, _ := newTestCommand(opts, map[string]string{"from": "a@example.com", "to": "b@example.com", "subject": "s"})

	assert.ErrorIs(t, runSend(cmd, s, opts, t.TempDir()), errNotConfigured)

	devMode := true
	s, err = newSession(&config.Config{DevMode: &devMode}, nil)
	require.NoError(t, err)
	cmd, out := newTestCommand(opts, map[string]string{"from": "a@example.com", "to": "b@example.com", "subject": "s", "text": "t"})
	require.NoError(t, runSend(cmd, s, opts, t.TempDir()))
	assert.Contains(t, out.String(), "Dev mode")
}

func TestRunTrigger(t *testing.T) {
	s, tr := newTestSession(t, testConfig())

	opts := &sendOptions{}
	cmd, _ := newTestCommand(opts, map[string]string{"to": "ops@example.com"})
	require.NoError(t, runTrigger(cmd, s, "deploy", opts, t.TempDir()))
	require.Len(t, tr.sent, 1)
	assert.Equal(t, `"Bot" <bot@example.com>`, tr.sent[0].From)
	assert.Equal(t, []string{"ops@example.com"}, tr.sent[0].To)
	assert.Equal(t, "[NOTIFICATION] Deployed", tr.sent[0].Subject)

	opts = &sendOptions{}
	cmd, _ = newTestCommand(opts, map[string]string{"data": "name=Ann"})
	require.NoError(t, runTrigger(cmd, s, "welcome", opts, t.TempDir()))
	require.Len(t, tr.sent, 2)
	assert.Equal(t, "<p>Hi Ann</p>", tr.sent[1].HTML)

	err := runTrigger(cmd, s, "missing", opts, t.TempDir())
	assert.ErrorIs(t, err, mailer.ErrNotFound)
}

func TestPrintAliases(t *testing.T) {
	s, _ := newTestSession(t, testConfig())
	cmd, out := newTestCommand(&sendOptions{}, nil)

	printAliases(cmd, s)
	assert.Contains(t, out.String(), "deploy")
	assert.Contains(t, out.String(), "notify")
	assert.Contains(t, out.String(), "new@example.com")
}

func TestSession_MetricsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "postie.prom")
	metricsFile = path
	t.Cleanup(func() { metricsFile = "" })

	s, _ := newTestSession(t, testConfig())
	opts := &sendOptions{}
	cmd, _ := newTestCommand(opts, map[string]string{"to": "a@example.com", "subject": "s", "text": "t"})
	require.NoError(t, s.close(runSend(cmd, s, opts, t.TempDir())))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), `postie_sends_total{result="sent"} 1`)
}

func TestRunSend_TemporaryFailure(t *testing.T) {
	once := 1
	cfg := testConfig()
	cfg.RetryAttempts = &once

	s, err := newSession(cfg, &failingTransport{diag: mailer.Diagnosis{Code: "rate_limited", Temporary: true}})
	require.NoError(t, err)
	opts := &sendOptions{}
	cmd, _ := newTestCommand(opts, map[string]string{"to": "a@example.com", "subject": "s", "text": "t"})

	err = runSend(cmd, s, opts, t.TempDir())
	assert.ErrorIs(t, err, mailer.ErrDelivery)
	assert.ErrorContains(t, err, "temporary failure, try again later")

	s, err = newSession(cfg, &failingTransport{diag: mailer.Diagnosis{Code: "auth"}})
	require.NoError(t, err)
	err = runTrigger(cmd, s, "deploy", opts, t.TempDir())
	assert.ErrorIs(t, err, mailer.ErrDelivery)
	assert.NotContains(t, err.Error(), "temporary")
}

func TestSession_StrictTemplates(t *testing.T) {
	cfg := testConfig()
	cfg.Template.Strict = true
	s, tr := newTestSession(t, cfg)

	opts := &sendOptions{}
	cmd, _ := newTestCommand(opts, map[string]string{
		"to":       "a@example.com",
		"subject":  "Welcome",
		"template": "<p>Hello {{ .missing }}</p>",
	})
	assert.ErrorIs(t, runSend(cmd, s, opts, t.TempDir()), mailer.ErrTemplate)
	assert.Empty(t, tr.sent)
}
