package callback

import (
	"maps"

	"github.com/tailored-agentic-units/passmem/memory"
	"github.com/tailored-agentic-units/passmem/nn"
	"github.com/tailored-agentic-units/passmem/tensor"
)

// State is what the host shares with callbacks during one pass. The host
// sets Input and Output before each EndBatch; the Runner owns PassID,
// Memory and Metrics.
type State struct {
	PassID string
	// Pass names the traversal, e.g. "train" or "valid".
	Pass   string
	Memory *memory.Store
	// Input and Output are the current batch's named arrays, leading axis
	// over items.
	Input   map[string]*tensor.Tensor
	Output  map[string]*tensor.Tensor
	Models  map[string]nn.Model
	Metrics map[string]float64
}

// NewState creates a State for pass with the host's models.
func NewState(pass string, models map[string]nn.Model) *State {
	return &State{
		Pass:   pass,
		Models: maps.Clone(models),
	}
}

// SetBatch replaces the current batch fields.
func (s *State) SetBatch(input, output map[string]*tensor.Tensor) {
	s.Input = input
	s.Output = output
}
