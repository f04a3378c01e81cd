package memory

import "fmt"

const (
	defaultPolicy   = "last"
	defaultCapacity = 2000
)

// Config holds buffer capacity and eviction parameters for one accumulator.
type Config struct {
	Policy   string  `json:"mode,omitempty" yaml:"mode,omitempty"`               // first | last | random (or keep-first, rotate-last, random-replace)
	Capacity int     `json:"memory_size,omitempty" yaml:"memory_size,omitempty"` // Maximum items kept per key.
	Seed     *uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`               // Seeds random-replace; nil draws a fresh seed per evictor.
}

// DefaultConfig returns the default memory configuration: rotate-last with
// room for 2000 items per key.
func DefaultConfig() Config {
	return Config{
		Policy:   defaultPolicy,
		Capacity: defaultCapacity,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Policy != "" {
		c.Policy = source.Policy
	}
	if source.Capacity != 0 {
		c.Capacity = source.Capacity
	}
	if source.Seed != nil {
		seed := *source.Seed
		c.Seed = &seed
	}
}

// Validate reports configuration errors: an unknown policy name or a
// non-positive capacity.
func (c *Config) Validate() error {
	if _, err := ParsePolicy(c.Policy); err != nil {
		return err
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidCapacity, c.Capacity)
	}
	return nil
}
