package registry

import (
	"encoding/json"
	"fmt"
	"maps"

	"gopkg.in/yaml.v3"
)

// nameFields are the object fields that may carry a function name. Every
// other field of a reference object is a static parameter.
var nameFields = []string{"name", "metric", "transform", "batch_transform"}

// Ref names a registered function and its static parameters. In config it
// is either a bare name or an object:
//
//	"accuracy"
//	{"metric": "accuracy", "top_k": 3}
type Ref struct {
	Name   string
	Params Params
}

// ParseRef builds a Ref from decoded configuration.
func ParseRef(raw any) (Ref, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return Ref{}, ErrEmptyName
		}
		return Ref{Name: v}, nil
	case map[string]any:
		var (
			ref   Ref
			field string
		)
		for _, candidate := range nameFields {
			name, ok := v[candidate]
			if !ok {
				continue
			}
			if field != "" {
				return Ref{}, fmt.Errorf("%w: both %q and %q name the function", ErrMalformedRef, field, candidate)
			}
			s, ok := name.(string)
			if !ok {
				return Ref{}, fmt.Errorf("%w: %q is %T, want string", ErrMalformedRef, candidate, name)
			}
			field, ref.Name = candidate, s
		}
		if ref.Name == "" {
			return Ref{}, fmt.Errorf("%w: no name field in %v", ErrMalformedRef, v)
		}

		params := maps.Clone(v)
		delete(params, field)
		if len(params) > 0 {
			ref.Params = Params(params)
		}
		return ref, nil
	default:
		return Ref{}, fmt.Errorf("%w: unsupported type %T", ErrMalformedRef, raw)
	}
}

// MarshalJSON writes a bare name when there are no params.
func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.raw())
}

// UnmarshalJSON decodes a name or reference object through ParseRef.
func (r *Ref) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRef, err)
	}
	parsed, err := ParseRef(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MarshalYAML writes a bare name when there are no params.
func (r Ref) MarshalYAML() (any, error) {
	return r.raw(), nil
}

// UnmarshalYAML decodes a name or reference mapping through ParseRef.
func (r *Ref) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRef, err)
	}
	parsed, err := ParseRef(raw)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Ref) raw() any {
	if len(r.Params) == 0 {
		return r.Name
	}
	m := make(map[string]any, len(r.Params)+1)
	maps.Copy(m, r.Params)
	m["name"] = r.Name
	return m
}
