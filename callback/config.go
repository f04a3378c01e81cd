package callback

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/passmem/extract"
	"github.com/tailored-agentic-units/passmem/memory"
	"github.com/tailored-agentic-units/passmem/metric"
	"github.com/tailored-agentic-units/passmem/observability"
	"github.com/tailored-agentic-units/passmem/transform"
)

const defaultObserverName = "slog"

// Config holds the callbacks of one pipeline and the memory defaults their
// accumulators inherit.
type Config struct {
	Memory memory.Config `json:"memory" yaml:"memory"`
	// Observer names a registered observability observer, or several
	// separated by commas.
	Observer  string `json:"observer,omitempty" yaml:"observer,omitempty"`
	Callbacks []Spec `json:"callbacks" yaml:"callbacks"`
}

// Spec declares one callback. Exactly one of the callback fields is set.
// Name defaults to the callback kind and its position.
type Spec struct {
	Name             string             `json:"name,omitempty" yaml:"name,omitempty"`
	Accumulator      *AccumulatorConfig `json:"accumulator,omitempty" yaml:"accumulator,omitempty"`
	FeatureExtractor *extract.Config    `json:"feature_extractor,omitempty" yaml:"feature_extractor,omitempty"`
	Transform        *transform.Config  `json:"transform,omitempty" yaml:"transform,omitempty"`
	Metric           *metric.Config     `json:"metric,omitempty" yaml:"metric,omitempty"`
	MultiMetric      *metric.Config     `json:"multi_metric,omitempty" yaml:"multi_metric,omitempty"`
}

// kind reports which callback field is set.
func (s *Spec) kind() (string, error) {
	var kinds []string
	if s.Accumulator != nil {
		kinds = append(kinds, "accumulator")
	}
	if s.FeatureExtractor != nil {
		kinds = append(kinds, "feature_extractor")
	}
	if s.Transform != nil {
		kinds = append(kinds, "transform")
	}
	if s.Metric != nil {
		kinds = append(kinds, "metric")
	}
	if s.MultiMetric != nil {
		kinds = append(kinds, "multi_metric")
	}
	if len(kinds) != 1 {
		return "", fmt.Errorf("%w: got %v", ErrInvalidSpec, kinds)
	}
	return kinds[0], nil
}

// DefaultConfig returns the default memory settings and the slog observer.
func DefaultConfig() Config {
	return Config{
		Memory:   memory.DefaultConfig(),
		Observer: defaultObserverName,
	}
}

// Merge applies non-zero values from source into c. Callbacks are replaced
// as a whole.
func (c *Config) Merge(source *Config) {
	c.Memory.Merge(&source.Memory)

	if source.Observer != "" {
		c.Observer = source.Observer
	}
	if len(source.Callbacks) > 0 {
		c.Callbacks = source.Callbacks
	}
}

// LoadConfig reads a JSON config file, or YAML for .yaml and .yml files,
// merges it with defaults, and returns the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &loaded)
	default:
		err = json.Unmarshal(data, &loaded)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

// New builds a Runner from configuration. Accumulators inherit cfg.Memory
// for any memory setting they leave zero; a seeded accumulator draws from
// the random stream of its position in cfg.Callbacks. Options override the
// configured observer and supply registries and the random source.
func New(cfg *Config, opts ...Option) (*Runner, error) {
	if cfg.Observer != "" {
		obs, err := resolveObserver(cfg.Observer)
		if err != nil {
			return nil, err
		}
		// Configured observer first so caller options still win.
		opts = append([]Option{WithObserver(obs)}, opts...)
	}

	callbacks := make([]Callback, 0, len(cfg.Callbacks))
	for i := range cfg.Callbacks {
		cb, err := buildCallback(cfg, i, opts)
		if err != nil {
			return nil, err
		}
		callbacks = append(callbacks, cb)
	}
	return NewRunner(callbacks, opts...)
}

func buildCallback(cfg *Config, i int, opts []Option) (Callback, error) {
	spec := &cfg.Callbacks[i]
	kind, err := spec.kind()
	if err != nil {
		return nil, fmt.Errorf("callback %d: %w", i, err)
	}
	name := spec.Name
	if name == "" {
		name = fmt.Sprintf("%s_%d", kind, i)
	}

	switch kind {
	case "accumulator":
		acc := *spec.Accumulator
		merged := cfg.Memory
		merged.Merge(&acc.Config)
		acc.Config = merged
		// Accumulators sharing a seed draw from distinct streams.
		return NewAccumulator(name, &acc, append(slices.Clip(opts), withStream(uint64(i)))...)
	case "feature_extractor":
		return NewFeatureExtractor(name, spec.FeatureExtractor, opts...)
	case "transform":
		return NewTransform(name, spec.Transform, opts...)
	case "metric":
		return NewMetric(name, spec.Metric, false, opts...)
	default:
		return NewMetric(name, spec.MultiMetric, true, opts...)
	}
}

// resolveObserver looks up each comma-separated observer name. More than
// one name fans events out through a MultiObserver.
func resolveObserver(names string) (observability.Observer, error) {
	var observers []observability.Observer
	for name := range strings.SplitSeq(names, ",") {
		obs, err := observability.GetObserver(strings.TrimSpace(name))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		observers = append(observers, obs)
	}
	if len(observers) == 1 {
		return observers[0], nil
	}
	return observability.NewMultiObserver(observers...), nil
}

func defaultObserver() observability.Observer {
	return observability.NewSlogObserver(slog.Default())
}
