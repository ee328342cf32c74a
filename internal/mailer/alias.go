package mailer

import (
	"fmt"
	"maps"
	"reflect"
	"sort"

	"dario.cat/mergo"
)

// Alias types select a convenience wrapper when an alias is triggered.
const (
	AliasNotify = "notify"
	AliasAlert  = "alert"
	AliasPing   = "ping"
)

// AliasDefinition is a reusable message stored under a name.
type AliasDefinition struct {
	Message  `yaml:",inline"`
	Type     string                 `yaml:"type,omitempty" json:"type,omitempty"`
	Template string                 `yaml:"template,omitempty" json:"template,omitempty"`
	Data     map[string]interface{} `yaml:"data,omitempty" json:"data,omitempty"`
}

type registry struct {
	aliases map[string]AliasDefinition
}

func newRegistry() *registry {
	return &registry{aliases: make(map[string]AliasDefinition)}
}

func (r *registry) define(name string, def AliasDefinition) error {
	if name == "" {
		return ValidationError{"name": "is required"}
	}
	r.aliases[name] = def
	return nil
}

func (r *registry) names() []string {
	names := make([]string, 0, len(r.aliases))
	for name := range r.aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolve merges overrides onto the stored definition.
func (r *registry) resolve(name string, overrides AliasDefinition) (AliasDefinition, error) {
	def, ok := r.aliases[name]
	if !ok {
		return AliasDefinition{}, fmt.Errorf("%w: alias %q", ErrNotFound, name)
	}

	merged, err := Merge(def, overrides)
	if err != nil {
		return AliasDefinition{}, fmt.Errorf("merge alias %q: %w", name, err)
	}
	return merged, nil
}

// Merge returns base with the non-empty fields of overrides applied.
// Address fields, headers and attachments are replaced whole; Data is merged
// one level deep. base is left untouched.
func Merge(base, overrides AliasDefinition) (AliasDefinition, error) {
	merged := base
	merged.Data = maps.Clone(base.Data)
	if merged.Data == nil {
		merged.Data = map[string]interface{}{}
	}
	merged.Headers = maps.Clone(base.Headers)
	merged.Attachments = append([]Attachment(nil), base.Attachments...)

	if err := mergo.Merge(&merged, overrides, mergo.WithOverride, mergo.WithTransformers(aliasTransformers{})); err != nil {
		return AliasDefinition{}, err
	}
	return merged, nil
}

var (
	addressFieldType = reflect.TypeOf(AddressField{})
	dataType         = reflect.TypeOf(map[string]interface{}{})
	headersType      = reflect.TypeOf(map[string]string{})
)

// aliasTransformers keeps mergo from descending into values that must be
// replaced as a whole.
type aliasTransformers struct{}

func (aliasTransformers) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	switch typ {
	case addressFieldType:
		return func(dst, src reflect.Value) error {
			if dst.CanSet() && !src.IsZero() {
				dst.Set(src)
			}
			return nil
		}
	case headersType:
		return func(dst, src reflect.Value) error {
			if dst.CanSet() && src.Len() > 0 {
				dst.Set(reflect.ValueOf(maps.Clone(src.Interface().(map[string]string))))
			}
			return nil
		}
	case dataType:
		return func(dst, src reflect.Value) error {
			iter := src.MapRange()
			for iter.Next() {
				dst.SetMapIndex(iter.Key(), iter.Value())
			}
			return nil
		}
	}
	return nil
}
