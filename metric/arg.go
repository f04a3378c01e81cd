package metric

import (
	"encoding/json"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"
)

// Arg names one element of a multi-metric result. Index args record under
// "{prefix}{index:02}", name args under "{prefix}_{name}".
type Arg struct {
	index int
	name  string
}

// Index creates an index Arg.
func Index(i int) Arg {
	return Arg{index: i}
}

// Name creates a name Arg. s must be non-empty; Name("") is Index(0).
func Name(s string) Arg {
	return Arg{name: s}
}

// ParseArg builds an Arg from a decoded integer or string.
func ParseArg(raw any) (Arg, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return Arg{}, fmt.Errorf("%w: empty name", ErrMalformedArg)
		}
		return Name(v), nil
	case int:
		if v >= 0 {
			return Index(v), nil
		}
	case float64:
		if v >= 0 && v == math.Trunc(v) {
			return Index(int(v)), nil
		}
	}
	return Arg{}, fmt.Errorf("%w: got %v", ErrMalformedArg, raw)
}

// IsIndex reports whether a is an index arg.
func (a Arg) IsIndex() bool {
	return a.name == ""
}

// Key returns the metric name recorded for a under prefix.
func (a Arg) Key(prefix string) string {
	if a.IsIndex() {
		return fmt.Sprintf("%s%02d", prefix, a.index)
	}
	return prefix + "_" + a.name
}

func (a Arg) String() string {
	if a.IsIndex() {
		return fmt.Sprint(a.index)
	}
	return a.name
}

func (a Arg) raw() any {
	if a.IsIndex() {
		return a.index
	}
	return a.name
}

func (a Arg) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.raw())
}

func (a *Arg) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedArg, err)
	}
	parsed, err := ParseArg(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Arg) MarshalYAML() (any, error) {
	return a.raw(), nil
}

func (a *Arg) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedArg, err)
	}
	parsed, err := ParseArg(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
