package extract

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/passmem/registry"
	"github.com/tailored-agentic-units/passmem/tensor"
)

// Config defines one extraction step.
type Config struct {
	// MemoryKey is the finalized buffer fed to the model.
	MemoryKey string `json:"memory_key" yaml:"memory_key"`
	// ModelKey selects the model from the host's model set.
	ModelKey string `json:"model_key" yaml:"model_key"`
	// Layers maps a dotted sub-component path ("" for the model itself) to
	// the outputs captured there.
	Layers            map[string]Outputs `json:"layer_key" yaml:"layer_key"`
	BatchSize         int                `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	Channels          int                `json:"channels,omitempty" yaml:"channels,omitempty"`
	TargetSize        Size               `json:"target_size,omitempty" yaml:"target_size,omitempty"`
	InterpolationMode string             `json:"interpolation_mode,omitempty" yaml:"interpolation_mode,omitempty"`
	AlignCorners      *bool              `json:"align_corners,omitempty" yaml:"align_corners,omitempty"`
}

// DefaultConfig returns batches of 64, three channels and nearest-neighbor
// resizing.
func DefaultConfig() Config {
	return Config{
		BatchSize:         64,
		Channels:          3,
		InterpolationMode: tensor.ModeNearest,
	}
}

// Merge overwrites fields of c with non-zero fields of source.
func (c *Config) Merge(source *Config) {
	if source.MemoryKey != "" {
		c.MemoryKey = source.MemoryKey
	}
	if source.ModelKey != "" {
		c.ModelKey = source.ModelKey
	}
	if source.Layers != nil {
		c.Layers = maps.Clone(source.Layers)
	}
	if source.BatchSize > 0 {
		c.BatchSize = source.BatchSize
	}
	if source.Channels > 0 {
		c.Channels = source.Channels
	}
	if len(source.TargetSize) > 0 {
		c.TargetSize = append(Size(nil), source.TargetSize...)
	}
	if source.InterpolationMode != "" {
		c.InterpolationMode = source.InterpolationMode
	}
	if source.AlignCorners != nil {
		v := *source.AlignCorners
		c.AlignCorners = &v
	}
}

// resizeOptions returns nil when no target size is configured.
func (c *Config) resizeOptions() *tensor.ResizeOptions {
	if len(c.TargetSize) == 0 {
		return nil
	}
	return &tensor.ResizeOptions{
		Size:         append([]int(nil), c.TargetSize...),
		Mode:         c.InterpolationMode,
		AlignCorners: c.AlignCorners,
	}
}

// Output is one capture at a sub-component: the buffer key written and an
// optional activation applied to the captured value. In config it is a bare
// key or an object:
//
//	"features"
//	{"memory_out_key": "probs", "activation": {"name": "softmax", "dim": 1}}
type Output struct {
	MemoryKey  string
	Activation *registry.Ref
}

// ParseOutput builds an Output from decoded configuration.
func ParseOutput(raw any) (Output, error) {
	switch v := raw.(type) {
	case string:
		if v == "" {
			return Output{}, fmt.Errorf("%w: empty output key", ErrMalformedLayer)
		}
		return Output{MemoryKey: v}, nil
	case map[string]any:
		if len(v) > 2 {
			return Output{}, fmt.Errorf("%w: at most memory_out_key and activation, got %d fields", ErrMalformedLayer, len(v))
		}
		var out Output
		for field, value := range v {
			switch field {
			case "memory_out_key":
				key, ok := value.(string)
				if !ok || key == "" {
					return Output{}, fmt.Errorf("%w: memory_out_key must be a non-empty string", ErrMalformedLayer)
				}
				out.MemoryKey = key
			case "activation":
				ref, err := registry.ParseRef(value)
				if err != nil {
					return Output{}, fmt.Errorf("%w: activation: %v", ErrMalformedLayer, err)
				}
				out.Activation = &ref
			default:
				return Output{}, fmt.Errorf("%w: unknown field %q", ErrMalformedLayer, field)
			}
		}
		if out.MemoryKey == "" {
			return Output{}, fmt.Errorf("%w: memory_out_key is required", ErrMalformedLayer)
		}
		return out, nil
	default:
		return Output{}, fmt.Errorf("%w: unsupported type %T", ErrMalformedLayer, raw)
	}
}

func (o Output) raw() any {
	if o.Activation == nil {
		return o.MemoryKey
	}
	return map[string]any{
		"memory_out_key": o.MemoryKey,
		"activation":     *o.Activation,
	}
}

// Outputs is every capture declared for one sub-component. It decodes from a
// single output or a list of them.
type Outputs []Output

// ParseOutputs builds Outputs from decoded configuration.
func ParseOutputs(raw any) (Outputs, error) {
	list, ok := raw.([]any)
	if !ok {
		out, err := ParseOutput(raw)
		if err != nil {
			return nil, err
		}
		return Outputs{out}, nil
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: empty output list", ErrMalformedLayer)
	}
	outs := make(Outputs, 0, len(list))
	for i, item := range list {
		out, err := ParseOutput(item)
		if err != nil {
			return nil, fmt.Errorf("output %d: %w", i, err)
		}
		outs = append(outs, out)
	}
	return outs, nil
}

func (o Outputs) raw() any {
	if len(o) == 1 {
		return o[0].raw()
	}
	items := make([]any, len(o))
	for i, out := range o {
		items[i] = out.raw()
	}
	return items
}

func (o Outputs) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.raw())
}

func (o *Outputs) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedLayer, err)
	}
	parsed, err := ParseOutputs(raw)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

func (o Outputs) MarshalYAML() (any, error) {
	return o.raw(), nil
}

func (o *Outputs) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedLayer, err)
	}
	parsed, err := ParseOutputs(raw)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// Size is a resize target: one value for every spatial axis, or one per
// axis. It decodes from a number or a list of numbers.
type Size []int

// ParseSize builds a Size from decoded configuration.
func ParseSize(raw any) (Size, error) {
	if list, ok := raw.([]any); ok {
		size := make(Size, len(list))
		for i, item := range list {
			v, err := sizeValue(item)
			if err != nil {
				return nil, err
			}
			size[i] = v
		}
		return size, nil
	}
	v, err := sizeValue(raw)
	if err != nil {
		return nil, err
	}
	return Size{v}, nil
}

func sizeValue(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case float64:
		if v == math.Trunc(v) {
			return int(v), nil
		}
	}
	return 0, fmt.Errorf("%w: target size %v is not an integer", ErrInvalidConfig, raw)
}

func (s *Size) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if raw == nil {
		*s = nil
		return nil
	}
	parsed, err := ParseSize(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func (s *Size) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if raw == nil {
		*s = nil
		return nil
	}
	parsed, err := ParseSize(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
