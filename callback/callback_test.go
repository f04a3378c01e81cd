package callback_test

import (
	"context"
	"testing"

	"github.com/tailored-agentic-units/passmem/callback"
	"github.com/tailored-agentic-units/passmem/keyspec"
	"github.com/tailored-agentic-units/passmem/metric"
	"github.com/tailored-agentic-units/passmem/observability"
	"github.com/tailored-agentic-units/passmem/registry"
	"github.com/tailored-agentic-units/passmem/tensor"
	"github.com/tailored-agentic-units/passmem/transform"
)

type captureObserver struct {
	events []observability.Event
}

func (c *captureObserver) OnEvent(_ context.Context, event observability.Event) {
	c.events = append(c.events, event)
}

func (c *captureObserver) types() []observability.EventType {
	types := make([]observability.EventType, len(c.events))
	for i, e := range c.events {
		types[i] = e.Type
	}
	return types
}

type recordingPicker struct {
	draws []int
	bound []int
	next  int
}

func (p *recordingPicker) IntN(n int) int {
	idx := p.next % n
	p.next += 5
	p.bound = append(p.bound, n)
	p.draws = append(p.draws, idx)
	return idx
}

func testMetrics() *metric.Registry {
	reg := metric.NewRegistry()
	reg.RegisterFunc("sum", func(_ context.Context, in keyspec.Value) (*tensor.Tensor, error) {
		var sum float32
		for _, v := range in.Single().Data() {
			sum += v
		}
		return tensor.Scalar(sum), nil
	})
	reg.RegisterFunc("mean", func(_ context.Context, in keyspec.Value) (*tensor.Tensor, error) {
		data := in.Single().Data()
		var sum float32
		for _, v := range data {
			sum += v
		}
		return tensor.Scalar(sum / float32(len(data))), nil
	})
	reg.RegisterFunc("column_mean", func(_ context.Context, in keyspec.Value) (*tensor.Tensor, error) {
		return in.Single().Mean(0, false)
	})
	return reg
}

func testTransforms() *transform.Registry {
	reg := transform.NewRegistry()
	reg.Register("scale", func(params registry.Params) (transform.Func, error) {
		factor, _ := params["factor"].(float64)
		return func(_ context.Context, in keyspec.Value) (any, error) {
			return in.Single().Scale(float32(factor)), nil
		}, nil
	})
	return reg
}

// scalars splits values into one batch per element.
func scalars(values ...float32) []map[string]*tensor.Tensor {
	batches := make([]map[string]*tensor.Tensor, len(values))
	for i, v := range values {
		batches[i] = map[string]*tensor.Tensor{"x": tensor.Vector(v)}
	}
	return batches
}

// runPass drives one pass with every batch as host input.
func runPass(t *testing.T, runner *callback.Runner, state *callback.State, batches []map[string]*tensor.Tensor) map[string]float64 {
	t.Helper()

	ctx := context.Background()
	if err := runner.StartPass(ctx, state); err != nil {
		t.Fatalf("StartPass() error = %v", err)
	}
	for i, batch := range batches {
		state.SetBatch(batch, nil)
		if err := runner.EndBatch(ctx, state); err != nil {
			t.Fatalf("EndBatch(%d) error = %v", i, err)
		}
	}
	metrics, err := runner.EndPass(ctx, state)
	if err != nil {
		t.Fatalf("EndPass() error = %v", err)
	}
	return metrics
}
