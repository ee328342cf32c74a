package mailer

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func welcomeAlias() AliasDefinition {
	return AliasDefinition{
		Message: Message{
			From:    Named("welcome@example.com", "Team"),
			To:      Single("default@example.com"),
			Subject: "Welcome",
			Headers: map[string]string{"X-Campaign": "welcome", "X-Stored": "yes"},
		},
		Template: "hello {{name}}",
		Data:     map[string]interface{}{"name": "Y", "extra": "Z"},
	}
}

func TestRegistry_ResolveMergesData(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.define("welcome", welcomeAlias()))

	merged, err := r.resolve("welcome", AliasDefinition{Data: map[string]interface{}{"name": "X"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"name": "X", "extra": "Z"}, merged.Data)
	assert.Equal(t, "Welcome", merged.Subject)
	assert.Equal(t, Named("welcome@example.com", "Team"), merged.From)

	stored := r.aliases["welcome"]
	assert.Equal(t, "Y", stored.Data["name"], "stored definition must not change")
}

func TestRegistry_ResolveOverridesFields(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.define("welcome", welcomeAlias()))

	merged, err := r.resolve("welcome", AliasDefinition{
		Message: Message{
			To:      List(Single("a@example.com"), Single("b@example.com")),
			Subject: "Hi there",
			Headers: map[string]string{"X-Campaign": "spring"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, Format(merged.To, ""))
	assert.Equal(t, "Hi there", merged.Subject)
	assert.Equal(t, map[string]string{"X-Campaign": "spring"}, merged.Headers, "headers are replaced, not merged")
	assert.Equal(t, "hello {{name}}", merged.Template)

	// A single override must replace a stored list entirely.
	require.NoError(t, r.define("team", AliasDefinition{Message: Message{To: List(Single("x@example.com"), Single("y@example.com"))}}))
	merged, err = r.resolve("team", AliasDefinition{Message: Message{To: Single("z@example.com")}})
	require.NoError(t, err)
	assert.Equal(t, Single("z@example.com"), merged.To)
}

func TestRegistry_DefineOverwrites(t *testing.T) {
	r := newRegistry()
	require.NoError(t, r.define("a", AliasDefinition{Message: Message{Subject: "one"}}))
	require.NoError(t, r.define("a", AliasDefinition{Message: Message{Subject: "two"}}))

	merged, err := r.resolve("a", AliasDefinition{})
	require.NoError(t, err)
	assert.Equal(t, "two", merged.Subject)

	assert.ErrorIs(t, r.define("", AliasDefinition{}), ErrValidation)
}

func TestTrigger_UnknownAlias(t *testing.T) {
	tr := &fakeTransport{}
	d, _ := newTestDispatcher(t, tr, 1)

	_, err := d.Trigger(context.Background(), "missing", AliasDefinition{})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, tr.calls)
}

func TestTrigger_UsesTemplate(t *testing.T) {
	tr := &fakeTransport{}
	d, _ := newTestDispatcher(t, tr, 1)
	require.NoError(t, d.SetTemplateEngine(EngineFunc(func(compiled interface{}, data map[string]interface{}) (string, error) {
		return fmt.Sprintf("%v|%v|%v", compiled, data["name"], data["extra"]), nil
	})))
	require.NoError(t, d.Define("welcome", welcomeAlias()))

	res, err := d.Trigger(context.Background(), "welcome", AliasDefinition{
		Message: Message{To: Single("user@example.com")},
		Data:    map[string]interface{}{"name": "X"},
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, "hello {{name}}|X|Z", tr.sent[0].HTML)
	assert.Equal(t, []string{"user@example.com"}, tr.sent[0].To)
	assert.Equal(t, `"Team" <welcome@example.com>`, tr.sent[0].From)
}

func TestTrigger_ByType(t *testing.T) {
	tests := []struct {
		typ     string
		subject string
	}{
		{AliasAlert, "[ALERT] System Alert"},
		{AliasNotify, "[NOTIFICATION] System Alert"},
		{AliasPing, "Ping"},
		{"", "System Alert"},
	}
	for _, tt := range tests {
		t.Run("type="+tt.typ, func(t *testing.T) {
			tr := &fakeTransport{}
			d, _ := newTestDispatcher(t, tr, 1)
			require.NoError(t, d.Define("system.alert", AliasDefinition{
				Type: tt.typ,
				Message: Message{
					From:    Single("alerts@example.com"),
					Subject: "System Alert",
					Text:    "System is down",
				},
			}))

			_, err := d.Trigger(context.Background(), "system.alert", AliasDefinition{
				Message: Message{To: Single("admin@example.com"), Text: "CPU above 90%"},
			})
			require.NoError(t, err)
			require.Len(t, tr.sent, 1)
			assert.Equal(t, tt.subject, tr.sent[0].Subject)
			if tt.typ != AliasPing {
				assert.Equal(t, "CPU above 90%", tr.sent[0].Text)
			}
		})
	}
}

func TestDefineAllAndAliases(t *testing.T) {
	d := New(WithLogger(quietLogger()))
	require.NoError(t, d.DefineAll(map[string]AliasDefinition{
		"b": {}, "a": {}, "c": {},
	}))
	assert.Equal(t, []string{"a", "b", "c"}, d.Aliases())
}

func TestMerge_Defaults(t *testing.T) {
	defaults := AliasDefinition{Message: Message{
		From:     Single("bot@example.com"),
		FromName: "Bot",
		BCC:      Single("archive@example.com"),
		Headers:  map[string]string{"X-Mailer": "postie"},
	}}
	explicit := AliasDefinition{Message: Message{
		To:          List(Single("a@example.com"), Named("b@example.com", "Bee")),
		Subject:     "Report",
		Attachments: []Attachment{{Filename: "r.csv", Content: []byte("x")}},
	}}

	merged, err := Merge(defaults, explicit)
	require.NoError(t, err)
	assert.Equal(t, Single("bot@example.com"), merged.From)
	assert.Equal(t, "Bot", merged.FromName)
	assert.Equal(t, Single("archive@example.com"), merged.BCC)
	assert.Equal(t, explicit.To, merged.To)
	assert.Equal(t, "Report", merged.Subject)
	assert.Len(t, merged.Attachments, 1)
	assert.Equal(t, "postie", merged.Headers["X-Mailer"])

	merged.Headers["X-Mailer"] = "changed"
	assert.Equal(t, "postie", defaults.Headers["X-Mailer"])
}

func TestMerge_DoesNotShareOverrideHeaders(t *testing.T) {
	overrides := AliasDefinition{Message: Message{Headers: map[string]string{"X-Team": "ops"}}}

	merged, err := Merge(AliasDefinition{Message: Message{Headers: map[string]string{"X-Team": "base"}}}, overrides)
	require.NoError(t, err)
	assert.Equal(t, "ops", merged.Headers["X-Team"])

	merged.Headers["X-Team"] = "changed"
	assert.Equal(t, "ops", overrides.Headers["X-Team"])
}
