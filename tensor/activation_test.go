package tensor_test

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/tailored-agentic-units/passmem/tensor"
)

func TestLookupActivation(t *testing.T) {
	x := tensor.Vector(-1, 0, 2)

	tests := []struct {
		name   string
		params map[string]any
		want   []float32
	}{
		{name: "identity", want: []float32{-1, 0, 2}},
		{name: "relu", want: []float32{0, 0, 2}},
		{name: "abs", want: []float32{1, 0, 2}},
		{name: "clamp", params: map[string]any{"min": 0.0, "max": 1}, want: []float32{0, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, err := tensor.LookupActivation(tt.name, tt.params)
			if err != nil {
				t.Fatalf("LookupActivation(%q) error = %v", tt.name, err)
			}
			got, err := act(x)
			if err != nil {
				t.Fatalf("activation error = %v", err)
			}
			if !slices.Equal(got.Data(), tt.want) {
				t.Errorf("%s(%v) = %v, want %v", tt.name, x.Data(), got.Data(), tt.want)
			}
		})
	}
}

func TestLookupActivation_Softmax(t *testing.T) {
	x := tensor.Must(tensor.FromRows([]float32{1, 1}, []float32{0, 0}))

	act, err := tensor.LookupActivation("softmax", map[string]any{"dim": float64(1)})
	if err != nil {
		t.Fatalf("LookupActivation(softmax) error = %v", err)
	}
	got, err := act(x)
	if err != nil {
		t.Fatalf("softmax error = %v", err)
	}
	for i, v := range got.Data() {
		if math.Abs(float64(v)-0.5) > 1e-6 {
			t.Errorf("softmax()[%d] = %v, want 0.5", i, v)
		}
	}
}

func TestLookupActivation_Flatten(t *testing.T) {
	act, err := tensor.LookupActivation("flatten", map[string]any{"start_dim": 1})
	if err != nil {
		t.Fatalf("LookupActivation(flatten) error = %v", err)
	}
	got, err := act(tensor.Zeros(2, 3, 4))
	if err != nil {
		t.Fatalf("flatten error = %v", err)
	}
	if !slices.Equal(got.Shape(), []int{2, 12}) {
		t.Errorf("flatten shape = %v, want [2 12]", got.Shape())
	}
}

func TestLookupActivation_Errors(t *testing.T) {
	tests := []struct {
		name       string
		activation string
		params     map[string]any
		wantErr    error
	}{
		{name: "unknown", activation: "swishy", wantErr: tensor.ErrUnsupportedActivation},
		{name: "unknown param", activation: "relu", params: map[string]any{"inplace": true}, wantErr: tensor.ErrInvalidActivationParams},
		{name: "missing dim", activation: "softmax", wantErr: tensor.ErrInvalidActivationParams},
		{name: "fractional dim", activation: "softmax", params: map[string]any{"dim": 1.5}, wantErr: tensor.ErrInvalidActivationParams},
		{name: "inverted clamp", activation: "clamp", params: map[string]any{"min": 2, "max": 1}, wantErr: tensor.ErrInvalidActivationParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tensor.LookupActivation(tt.activation, tt.params)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("LookupActivation(%q) error = %v, want %v", tt.activation, err, tt.wantErr)
			}
		})
	}
}

func TestActivations_Sorted(t *testing.T) {
	names := tensor.Activations()
	if !slices.IsSorted(names) {
		t.Errorf("Activations() not sorted: %v", names)
	}
	if !slices.Contains(names, "relu") {
		t.Errorf("Activations() missing relu: %v", names)
	}
}
