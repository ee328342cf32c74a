package mailer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// AddressKind tags the shape of an AddressField.
type AddressKind int

const (
	AddressNone AddressKind = iota
	AddressSingle
	AddressNamed
	AddressList
)

// Address is one mailbox with an optional display name.
type Address struct {
	Email string `yaml:"email" json:"email"`
	Name  string `yaml:"name,omitempty" json:"name,omitempty"`
}

// AddressField is the value of a from/to/cc/bcc role: a bare address, a
// named address or an ordered list of either.
type AddressField struct {
	Kind AddressKind
	Addr Address
	List []AddressField
}

// Single returns a bare address.
func Single(email string) AddressField {
	return AddressField{Kind: AddressSingle, Addr: Address{Email: email}}
}

// Named returns an address with its own display name.
func Named(email, name string) AddressField {
	return AddressField{Kind: AddressNamed, Addr: Address{Email: email, Name: name}}
}

// List returns an ordered list of addresses. Nested lists are flattened.
func List(items ...AddressField) AddressField {
	flat := make([]AddressField, 0, len(items))
	for _, item := range items {
		if item.Kind == AddressList {
			flat = append(flat, item.List...)
			continue
		}
		flat = append(flat, item)
	}
	return AddressField{Kind: AddressList, List: flat}
}

// IsZero reports whether the field carries no address at all.
func (f AddressField) IsZero() bool {
	return f.Kind == AddressNone
}

// FormatEmailAddress renders email with an optional display name. An empty
// email yields "", which callers treat as absent.
func FormatEmailAddress(email, name string) string {
	if email == "" {
		return ""
	}
	if name == "" {
		return email
	}
	return `"` + quoteEscaper.Replace(name) + `" <` + email + ">"
}

// quoteEscaper escapes a display name for an RFC 5322 quoted-string.
var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// Format normalizes a role into formatted addresses. displayName applies only
// to a bare Single address; Named entries and list elements keep their own.
func Format(field AddressField, displayName string) []string {
	switch field.Kind {
	case AddressSingle:
		return nonEmpty(FormatEmailAddress(field.Addr.Email, displayName))
	case AddressNamed:
		return nonEmpty(FormatEmailAddress(field.Addr.Email, field.Addr.Name))
	case AddressList:
		return lo.FilterMap(field.List, func(item AddressField, _ int) (string, bool) {
			formatted := Format(item, "")
			if len(formatted) == 0 {
				return "", false
			}
			return formatted[0], true
		})
	default:
		return nil
	}
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

// UnmarshalYAML accepts a bare string, an {email, name} mapping or a
// sequence of either.
func (f *AddressField) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*f = Single(value.Value)
		return nil
	case yaml.MappingNode:
		var addr Address
		if err := value.Decode(&addr); err != nil {
			return err
		}
		*f = fromAddress(addr)
		return nil
	case yaml.SequenceNode:
		items := make([]AddressField, 0, len(value.Content))
		for _, node := range value.Content {
			var item AddressField
			if err := item.UnmarshalYAML(node); err != nil {
				return err
			}
			items = append(items, item)
		}
		*f = List(items...)
		return nil
	default:
		return fmt.Errorf("unsupported address node at line %d", value.Line)
	}
}

// MarshalYAML writes the field back in its most compact shape.
func (f AddressField) MarshalYAML() (interface{}, error) {
	switch f.Kind {
	case AddressSingle:
		return f.Addr.Email, nil
	case AddressNamed:
		return f.Addr, nil
	case AddressList:
		out := make([]interface{}, 0, len(f.List))
		for _, item := range f.List {
			v, err := item.MarshalYAML()
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		return nil, nil
	}
}

// UnmarshalJSON accepts the same shapes as UnmarshalYAML.
func (f *AddressField) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	field, err := fromJSONValue(raw)
	if err != nil {
		return err
	}
	*f = field
	return nil
}

func fromJSONValue(raw interface{}) (AddressField, error) {
	switch v := raw.(type) {
	case nil:
		return AddressField{}, nil
	case string:
		return Single(v), nil
	case map[string]interface{}:
		email, _ := v["email"].(string)
		name, _ := v["name"].(string)
		return fromAddress(Address{Email: email, Name: name}), nil
	case []interface{}:
		items := make([]AddressField, 0, len(v))
		for _, elem := range v {
			item, err := fromJSONValue(elem)
			if err != nil {
				return AddressField{}, err
			}
			items = append(items, item)
		}
		return List(items...), nil
	default:
		return AddressField{}, fmt.Errorf("unsupported address value %T", raw)
	}
}

// fromAddress keeps the structured form even without a name so that an
// external display name is still ignored for it.
func fromAddress(addr Address) AddressField {
	return AddressField{Kind: AddressNamed, Addr: addr}
}
