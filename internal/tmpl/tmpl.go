/*
Package tmpl provides template processing for Postie.

Engine is the default body renderer used by SendTemplate; it parses HTML
templates once and executes them with the trigger data. Context applies
plain text templates to strings such as hook commands.
*/
package tmpl

import (
	"bytes"
	htmltemplate "html/template"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"
)

// Engine renders HTML email bodies with html/template.
type Engine struct {
	funcs map[string]interface{}
	// missingKey is passed to Option("missingkey=...").
	missingKey string
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithStrict makes rendering fail on keys missing from the data.
func WithStrict() EngineOption {
	return func(e *Engine) {
		e.missingKey = "error"
	}
}

// NewEngine creates an Engine with the default function map.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		funcs:      funcs(),
		missingKey: "default",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compile parses source.
func (e *Engine) Compile(source string) (interface{}, error) {
	t, err := htmltemplate.New("email").
		Funcs(htmltemplate.FuncMap(e.funcs)).
		Option("missingkey=" + e.missingKey).
		Parse(source)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Render executes a template returned by Compile. A plain string is
// compiled on the fly.
func (e *Engine) Render(compiled interface{}, data map[string]interface{}) (string, error) {
	var t *htmltemplate.Template
	switch v := compiled.(type) {
	case *htmltemplate.Template:
		t = v
	case string:
		parsed, err := e.Compile(v)
		if err != nil {
			return "", err
		}
		t = parsed.(*htmltemplate.Template)
	default:
		return "", fmt.Errorf("unsupported compiled template %T", compiled)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Context provides template data for plain text expansion.
type Context struct {
	data map[string]interface{}
}

// NewContext creates a context seeded with data and the current time.
func NewContext(data map[string]interface{}) *Context {
	c := &Context{data: make(map[string]interface{}, len(data)+2)}
	for k, v := range data {
		c.data[k] = v
	}
	now := time.Now()
	c.data["Date"] = now.Format(time.RFC3339)
	c.data["Timestamp"] = now.Unix()
	return c
}

// Apply applies the template to a string
func (c *Context) Apply(tmpl string) (string, error) {
	t, err := template.New("").Funcs(template.FuncMap(funcs())).Parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, c.data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// funcs returns the template function map shared by Engine and Context.
func funcs() map[string]interface{} {
	return map[string]interface{}{
		// String functions
		"replace":    strings.ReplaceAll,
		"tolower":    strings.ToLower,
		"toupper":    strings.ToUpper,
		"title":      strings.Title,
		"trim":       strings.TrimSpace,
		"trimprefix": strings.TrimPrefix,
		"trimsuffix": strings.TrimSuffix,
		"split":      strings.Split,
		"join":       strings.Join,
		"contains":   strings.Contains,
		"hasprefix":  strings.HasPrefix,
		"hassuffix":  strings.HasSuffix,
		"repeat":     strings.Repeat,
		"fields":     strings.Fields,

		// Environment
		"env":       os.Getenv,
		"expandenv": os.ExpandEnv,

		// Default value
		"default": func(def, val interface{}) interface{} {
			if val == nil || val == "" {
				return def
			}
			return val
		},

		// Date formatting
		"time": func(t time.Time, format string) string {
			return t.Format(format)
		},
		"now": time.Now,

		// List helpers
		"first": func(items []string) string {
			if len(items) > 0 {
				return items[0]
			}
			return ""
		},
		"last": func(items []string) string {
			if len(items) > 0 {
				return items[len(items)-1]
			}
			return ""
		},
	}
}
