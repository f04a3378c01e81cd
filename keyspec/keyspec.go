// Package keyspec addresses one or more memory entries from configuration.
//
// A Spec is a single key, an ordered list of keys, or a name→key mapping.
// The shape is fixed when the Spec is built, and its resolution strategy is
// chosen then: Resolve never inspects the configuration again.
//
//	spec, err := keyspec.Parse(map[string]any{"logits": "valid_logits", "targets": "valid_targets"})
//	value, err := spec.Resolve(store)
//	logits, _ := value.Get("logits")
package keyspec

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"

	"github.com/tailored-agentic-units/passmem/tensor"
	"gopkg.in/yaml.v3"
)

// Kind identifies the addressing mode of a Spec.
type Kind int

const (
	KindInvalid Kind = iota
	KindSingle
	KindList
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindList:
		return "list"
	case KindMapping:
		return "mapping"
	default:
		return "invalid"
	}
}

// Source is the read side of a memory store.
type Source interface {
	Get(key string) (*tensor.Tensor, bool)
}

// Spec addresses memory entries. The zero Spec is invalid.
type Spec struct {
	kind    Kind
	names   []string
	keys    []string
	resolve func(src Source) (Value, error)
}

// Single addresses one key and resolves to a bare value.
func Single(key string) Spec {
	s := Spec{kind: KindSingle, names: []string{key}, keys: []string{key}}
	s.resolve = s.resolveSingle
	return s
}

// List addresses keys in order. Each resolved value is named by its key.
func List(keys ...string) Spec {
	s := Spec{kind: KindList, names: slices.Clone(keys), keys: slices.Clone(keys)}
	s.resolve = s.resolveNamed
	return s
}

// Mapping addresses mapping values under the mapping's names. Names are
// ordered lexicographically.
func Mapping(m map[string]string) Spec {
	names := slices.Collect(maps.Keys(m))
	sort.Strings(names)
	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = m[name]
	}
	s := Spec{kind: KindMapping, names: names, keys: keys}
	s.resolve = s.resolveNamed
	return s
}

// Parse builds a Spec from decoded configuration: a string, a list of
// strings, or a map of strings. Anything else is ErrMalformedSpec.
func Parse(raw any) (Spec, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return Spec{}, fmt.Errorf("%w: empty key", ErrMalformedSpec)
		}
		return Single(v), nil
	case []string:
		return parseList(v)
	case []any:
		keys := make([]string, len(v))
		for i, item := range v {
			key, ok := item.(string)
			if !ok {
				return Spec{}, fmt.Errorf("%w: list element %d is %T, want string", ErrMalformedSpec, i, item)
			}
			keys[i] = key
		}
		return parseList(keys)
	case map[string]string:
		return parseMapping(v)
	case map[string]any:
		m := make(map[string]string, len(v))
		for name, item := range v {
			key, ok := item.(string)
			if !ok {
				return Spec{}, fmt.Errorf("%w: mapping %q is %T, want string", ErrMalformedSpec, name, item)
			}
			m[name] = key
		}
		return parseMapping(m)
	default:
		return Spec{}, fmt.Errorf("%w: unsupported type %T", ErrMalformedSpec, raw)
	}
}

func parseList(keys []string) (Spec, error) {
	if len(keys) == 0 {
		return Spec{}, fmt.Errorf("%w: empty list", ErrMalformedSpec)
	}
	seen := make(map[string]bool, len(keys))
	for i, key := range keys {
		if key == "" {
			return Spec{}, fmt.Errorf("%w: list element %d is empty", ErrMalformedSpec, i)
		}
		if seen[key] {
			return Spec{}, fmt.Errorf("%w: duplicate key %q", ErrMalformedSpec, key)
		}
		seen[key] = true
	}
	return List(keys...), nil
}

func parseMapping(m map[string]string) (Spec, error) {
	if len(m) == 0 {
		return Spec{}, fmt.Errorf("%w: empty mapping", ErrMalformedSpec)
	}
	for name, key := range m {
		if name == "" || key == "" {
			return Spec{}, fmt.Errorf("%w: mapping %q→%q has an empty side", ErrMalformedSpec, name, key)
		}
	}
	return Mapping(m), nil
}

// Kind returns the addressing mode.
func (s Spec) Kind() Kind {
	return s.kind
}

// Keys returns the addressed memory keys in resolution order.
func (s Spec) Keys() []string {
	return slices.Clone(s.keys)
}

// Names returns the names resolved values are published under.
func (s Spec) Names() []string {
	return slices.Clone(s.names)
}

// IsZero reports whether s was never built.
func (s Spec) IsZero() bool {
	return s.kind == KindInvalid
}

// Resolve looks up every addressed key in src. Returns ErrMissingKey for
// the first absent key and ErrMalformedSpec for the zero Spec.
func (s Spec) Resolve(src Source) (Value, error) {
	if s.resolve == nil {
		return Value{}, fmt.Errorf("%w: spec was never built", ErrMalformedSpec)
	}
	return s.resolve(src)
}

func (s Spec) resolveSingle(src Source) (Value, error) {
	t, ok := src.Get(s.keys[0])
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrMissingKey, s.keys[0])
	}
	return Value{single: t}, nil
}

func (s Spec) resolveNamed(src Source) (Value, error) {
	named := make(map[string]*tensor.Tensor, len(s.keys))
	for i, key := range s.keys {
		t, ok := src.Get(key)
		if !ok {
			return Value{}, fmt.Errorf("%w: %s (as %q)", ErrMissingKey, key, s.names[i])
		}
		named[s.names[i]] = t
	}
	return Value{names: s.names, named: named}, nil
}

// MarshalJSON writes the Spec in the form Parse accepts.
func (s Spec) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.raw())
}

// UnmarshalJSON decodes a string, list or mapping through Parse.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSpec, err)
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML writes the Spec in the form Parse accepts.
func (s Spec) MarshalYAML() (any, error) {
	return s.raw(), nil
}

// UnmarshalYAML decodes a string, sequence or mapping through Parse.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSpec, err)
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s Spec) raw() any {
	switch s.kind {
	case KindSingle:
		return s.keys[0]
	case KindList:
		return s.Keys()
	case KindMapping:
		m := make(map[string]string, len(s.names))
		for i, name := range s.names {
			m[name] = s.keys[i]
		}
		return m
	default:
		return nil
	}
}
