package mailer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Engine renders a compiled template with data.
type Engine interface {
	Render(compiled interface{}, data map[string]interface{}) (string, error)
}

// Compiler is implemented by engines that need a compile step. Engines
// without it receive the raw template body as the compiled value.
type Compiler interface {
	Compile(source string) (interface{}, error)
}

// EngineFunc adapts a plain render function to Engine.
type EngineFunc func(compiled interface{}, data map[string]interface{}) (string, error)

// Render calls f.
func (f EngineFunc) Render(compiled interface{}, data map[string]interface{}) (string, error) {
	return f(compiled, data)
}

const compiledTTL = 10 * time.Minute

type renderer struct {
	engine   Engine
	compiled *gocache.Cache
}

func newRenderer(engine Engine) *renderer {
	return &renderer{
		engine:   engine,
		compiled: gocache.New(compiledTTL, time.Minute),
	}
}

// render resolves source to a body (file path or inline text), compiles it
// when the engine supports that and renders it with data.
func (r *renderer) render(source string, data map[string]interface{}) (string, error) {
	if source == "" {
		return "", fmt.Errorf("%w: template not provided", ErrTemplate)
	}

	body, err := resolveTemplate(source)
	if err != nil {
		return "", err
	}

	compiled, err := r.compile(body)
	if err != nil {
		return "", err
	}

	if data == nil {
		data = map[string]interface{}{}
	}
	html, err := r.engine.Render(compiled, data)
	if err != nil {
		return "", fmt.Errorf("%w: render: %w", ErrTemplate, err)
	}
	return html, nil
}

func (r *renderer) compile(body string) (interface{}, error) {
	c, ok := r.engine.(Compiler)
	if !ok {
		return body, nil
	}

	sum := sha256.Sum256([]byte(body))
	key := hex.EncodeToString(sum[:])
	if compiled, found := r.compiled.Get(key); found {
		return compiled, nil
	}

	compiled, err := c.Compile(body)
	if err != nil {
		return nil, fmt.Errorf("%w: compile: %w", ErrTemplate, err)
	}
	r.compiled.SetDefault(key, compiled)
	return compiled, nil
}

func resolveTemplate(source string) (string, error) {
	info, err := os.Stat(source)
	if err != nil || info.IsDir() {
		return source, nil
	}

	content, err := os.ReadFile(source)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrTemplate, source, err)
	}
	return string(content), nil
}
