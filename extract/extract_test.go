package extract_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/tailored-agentic-units/passmem/extract"
	"github.com/tailored-agentic-units/passmem/memory"
	"github.com/tailored-agentic-units/passmem/nn"
	"github.com/tailored-agentic-units/passmem/observability"
	"github.com/tailored-agentic-units/passmem/registry"
	"github.com/tailored-agentic-units/passmem/tensor"
)

// imageStore holds n finalized (channels, 2, 2) items under "images"; item i
// has every pixel of channel c set to i*10 + c.
func imageStore(t *testing.T, n, channels int) *memory.Store {
	t.Helper()

	store := memory.NewStore()
	for i := range n {
		data := make([]float32, 0, channels*4)
		for c := range channels {
			v := float32(i*10 + c)
			data = append(data, v, v, v, v)
		}
		if err := store.Append("images", tensor.Must(tensor.New([]int{channels, 2, 2}, data))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := store.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	return store
}

type testModel struct {
	*nn.Sequential
	pool *nn.GlobalAvgPool
	drop *nn.Dropout
	fc   *nn.Linear
}

func (m testModel) hookCount() int {
	return m.Sequential.HookCount() + m.pool.HookCount() + m.drop.HookCount() + m.fc.HookCount()
}

// newTestModel builds images -> backbone.pool -> backbone.drop -> fc, where
// fc sums the three pooled channels into one logit and copies channel 0.
func newTestModel(t *testing.T) testModel {
	t.Helper()

	pool := nn.NewGlobalAvgPool()
	drop, err := nn.NewDropout(0.9, 3)
	if err != nil {
		t.Fatalf("NewDropout() error = %v", err)
	}
	backbone, err := nn.NewSequential(
		nn.Layer{Name: "pool", Module: pool},
		nn.Layer{Name: "drop", Module: drop},
	)
	if err != nil {
		t.Fatalf("NewSequential() error = %v", err)
	}
	fc, err := nn.NewLinear(3, 2, []float32{1, 1, 1, 1, 0, 0}, nil)
	if err != nil {
		t.Fatalf("NewLinear() error = %v", err)
	}
	root, err := nn.NewSequential(
		nn.Layer{Name: "backbone", Module: backbone},
		nn.Layer{Name: "fc", Module: fc},
	)
	if err != nil {
		t.Fatalf("NewSequential() error = %v", err)
	}
	return testModel{Sequential: root, pool: pool, drop: drop, fc: fc}
}

func newExtractor(t *testing.T, cfg *extract.Config) *extract.Extractor {
	t.Helper()

	ex, err := extract.New(cfg, extract.WithObserver(observability.NoOpObserver{}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return ex
}

// gatedModel runs its "pos" child only when the first input value is
// positive and passes the batch through untouched otherwise.
type gatedModel struct {
	*nn.Sequential
	pos nn.Module
}

func (m gatedModel) Forward(ctx context.Context, x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.Data()[0] <= 0 {
		return x, nil
	}
	return m.pos.Forward(ctx, x)
}

func TestRun_SkippedLayerCapturesNothing(t *testing.T) {
	store := memory.NewStore()
	for _, v := range []float32{1, -1, 2} {
		if err := store.Append("x", tensor.Must(tensor.New([]int{1, 1}, []float32{v}))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := store.Finalize(); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	pos, err := nn.NewActivation("identity", nil)
	if err != nil {
		t.Fatalf("NewActivation() error = %v", err)
	}
	root, err := nn.NewSequential(nn.Layer{Name: "pos", Module: pos})
	if err != nil {
		t.Fatalf("NewSequential() error = %v", err)
	}
	model := gatedModel{Sequential: root, pos: pos}

	ex := newExtractor(t, &extract.Config{
		MemoryKey: "x",
		BatchSize: 1,
		Channels:  1,
		Layers:    map[string]extract.Outputs{"pos": {{MemoryKey: "f"}}},
	})
	if err := ex.Run(context.Background(), model, store); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, err := store.Lookup("f")
	if err != nil {
		t.Fatalf("Lookup(f) error = %v", err)
	}
	if !slices.Equal(got.Shape(), []int{2, 1, 1}) {
		t.Errorf("f shape = %v, want [2 1 1]", got.Shape())
	}
	if want := []float32{1, 2}; !slices.Equal(got.Data(), want) {
		t.Errorf("f = %v, want %v with nothing from the skipped slice", got.Data(), want)
	}
	if !model.Training() {
		t.Error("model left in eval mode")
	}
	if n := pos.HookCount(); n != 0 {
		t.Errorf("pos has %d hooks after Run, want 0", n)
	}
}

func TestRun_CapturesFeatures(t *testing.T) {
	store := imageStore(t, 5, 3)
	model := newTestModel(t)

	ex := newExtractor(t, &extract.Config{
		MemoryKey: "images",
		BatchSize: 2,
		Layers: map[string]extract.Outputs{
			"backbone.drop": {{MemoryKey: "features"}},
			"fc": {
				{MemoryKey: "logits"},
				{MemoryKey: "probs", Activation: &registry.Ref{Name: "softmax", Params: registry.Params{"dim": 1}}},
			},
		},
	})

	if err := ex.Run(context.Background(), model, store); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	features, err := store.Lookup("features")
	if err != nil {
		t.Fatalf("Lookup(features) error = %v", err)
	}
	if !slices.Equal(features.Shape(), []int{5, 3}) {
		t.Fatalf("features shape = %v, want [5 3]", features.Shape())
	}
	// Dropout is the identity in eval mode, so features are the pooled
	// channel values.
	if want := tensor.Vector(40, 41, 42); !features.At(4).Equal(want) {
		t.Errorf("features[4] = %v, want %v", features.At(4), want)
	}

	logits, _ := store.Lookup("logits")
	if want := tensor.Vector(63, 20); !logits.At(2).Equal(want) {
		t.Errorf("logits[2] = %v, want %v", logits.At(2), want)
	}

	probs, _ := store.Lookup("probs")
	for i, row := range probs.Unbind() {
		var sum float32
		for _, v := range row.Data() {
			sum += v
		}
		if sum < 0.999 || sum > 1.001 {
			t.Errorf("probs[%d] sums to %v, want 1", i, sum)
		}
	}

	if got := ex.OutputKeys(); !slices.Equal(got, []string{"features", "logits", "probs"}) {
		t.Errorf("OutputKeys() = %v", got)
	}
}

func TestRun_RestoresModel(t *testing.T) {
	tests := []struct {
		name     string
		training bool
	}{
		{name: "from training mode", training: true},
		{name: "from eval mode", training: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := imageStore(t, 3, 3)
			model := newTestModel(t)
			model.SetTraining(tt.training)

			ex := newExtractor(t, &extract.Config{
				MemoryKey: "images",
				Layers: map[string]extract.Outputs{
					"":              {{MemoryKey: "out"}},
					"backbone.pool": {{MemoryKey: "pooled"}},
				},
			})
			if err := ex.Run(context.Background(), model, store); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			if model.Training() != tt.training {
				t.Errorf("Training() = %v, want %v", model.Training(), tt.training)
			}
			if model.drop.Training() != tt.training {
				t.Errorf("dropout Training() = %v, want %v", model.drop.Training(), tt.training)
			}
			if !model.GradEnabled() {
				t.Error("GradEnabled() = false after Run")
			}
			if n := model.hookCount(); n != 0 {
				t.Errorf("%d hooks still attached", n)
			}

			before := store.Len("pooled")
			if _, err := model.Forward(context.Background(), tensor.Zeros(1, 3, 2, 2)); err != nil {
				t.Fatalf("Forward() error = %v", err)
			}
			if store.Len("pooled") != before {
				t.Error("forward pass after Run captured into the store")
			}
		})
	}
}

func TestRun_DetachesOnError(t *testing.T) {
	store := imageStore(t, 4, 3)
	model := newTestModel(t)

	ex := newExtractor(t, &extract.Config{
		MemoryKey: "images",
		BatchSize: 2,
		Layers: map[string]extract.Outputs{
			"backbone.pool": {{
				MemoryKey: "bad",
				// Softmax over axis 5 of a rank-2 capture fails inside the hook.
				Activation: &registry.Ref{Name: "softmax", Params: registry.Params{"dim": 5}},
			}},
		},
	})

	err := ex.Run(context.Background(), model, store)
	if !errors.Is(err, tensor.ErrInvalidAxis) {
		t.Fatalf("Run() error = %v, want %v", err, tensor.ErrInvalidAxis)
	}
	if !model.Training() {
		t.Error("model left in eval mode after failure")
	}
	if !model.GradEnabled() {
		t.Error("gradients left disabled after failure")
	}
	if n := model.hookCount(); n != 0 {
		t.Errorf("%d hooks still attached after failure", n)
	}
}

func TestRun_UnknownSubComponent(t *testing.T) {
	store := imageStore(t, 2, 3)
	model := newTestModel(t)

	ex := newExtractor(t, &extract.Config{
		MemoryKey: "images",
		Layers: map[string]extract.Outputs{
			"backbone.pool": {{MemoryKey: "pooled"}},
			"backbone.head": {{MemoryKey: "head"}},
		},
	})

	err := ex.Run(context.Background(), model, store)
	if !errors.Is(err, extract.ErrUnknownSubComponent) {
		t.Fatalf("Run() error = %v, want %v", err, extract.ErrUnknownSubComponent)
	}
	if n := model.hookCount(); n != 0 {
		t.Errorf("%d hooks attached by a failed resolve", n)
	}
}

func TestRun_BatchMismatch(t *testing.T) {
	store := imageStore(t, 4, 3)

	collapse, err := nn.NewActivation("mean", map[string]any{"dim": 0})
	if err != nil {
		t.Fatalf("NewActivation() error = %v", err)
	}
	model, err := nn.NewSequential(
		nn.Layer{Name: "pool", Module: nn.NewGlobalAvgPool()},
		nn.Layer{Name: "collapse", Module: collapse},
	)
	if err != nil {
		t.Fatalf("NewSequential() error = %v", err)
	}

	ex := newExtractor(t, &extract.Config{
		MemoryKey: "images",
		BatchSize: 2,
		Layers:    map[string]extract.Outputs{"collapse": {{MemoryKey: "collapsed"}}},
	})
	if err := ex.Run(context.Background(), model, store); !errors.Is(err, extract.ErrBatchMismatch) {
		t.Errorf("Run() error = %v, want %v", err, extract.ErrBatchMismatch)
	}
}

func TestRun_NormalizesAndResizes(t *testing.T) {
	store := imageStore(t, 2, 1)
	flatten := nn.NewFlatten()
	model, err := nn.NewSequential(nn.Layer{Name: "flat", Module: flatten})
	if err != nil {
		t.Fatalf("NewSequential() error = %v", err)
	}

	ex := newExtractor(t, &extract.Config{
		MemoryKey:  "images",
		Channels:   3,
		TargetSize: extract.Size{4},
		Layers:     map[string]extract.Outputs{"flat": {{MemoryKey: "pixels"}}},
	})
	if err := ex.Run(context.Background(), model, store); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	pixels, _ := store.Lookup("pixels")
	if !slices.Equal(pixels.Shape(), []int{2, 48}) {
		t.Fatalf("pixels shape = %v, want [2 48]", pixels.Shape())
	}
	for _, v := range pixels.At(1).Data() {
		if v != 10 {
			t.Fatalf("pixel value %v, want 10 in every repeated channel", v)
		}
	}
}

func TestRun_Canceled(t *testing.T) {
	store := imageStore(t, 2, 3)
	model := newTestModel(t)
	ex := newExtractor(t, &extract.Config{
		MemoryKey: "images",
		Layers:    map[string]extract.Outputs{"fc": {{MemoryKey: "logits"}}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ex.Run(ctx, model, store); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want %v", err, context.Canceled)
	}
	if n := model.hookCount(); n != 0 {
		t.Errorf("%d hooks still attached after cancellation", n)
	}
}

func TestRun_SourceNotFinalized(t *testing.T) {
	store := memory.NewStore()
	store.Append("images", tensor.Zeros(3, 2, 2))

	ex := newExtractor(t, &extract.Config{MemoryKey: "images"})
	if err := ex.Run(context.Background(), newTestModel(t), store); !errors.Is(err, memory.ErrNotFinalized) {
		t.Errorf("Run() error = %v, want %v", err, memory.ErrNotFinalized)
	}
}

func TestNormalizeChannels(t *testing.T) {
	gray := tensor.Must(tensor.New([]int{1, 1, 2}, []float32{1, 2}))
	rgb := tensor.Must(tensor.New([]int{1, 3, 2}, []float32{1, 2, 3, 4, 5, 6}))

	t.Run("one to three repeats", func(t *testing.T) {
		got, err := extract.NormalizeChannels(gray, 3)
		if err != nil {
			t.Fatalf("NormalizeChannels() error = %v", err)
		}
		want := tensor.Must(tensor.New([]int{1, 3, 2}, []float32{1, 2, 1, 2, 1, 2}))
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("three to one averages", func(t *testing.T) {
		got, err := extract.NormalizeChannels(rgb, 1)
		if err != nil {
			t.Fatalf("NormalizeChannels() error = %v", err)
		}
		want := tensor.Must(tensor.New([]int{1, 1, 2}, []float32{3, 4}))
		if !got.Equal(want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})

	t.Run("matching is unchanged", func(t *testing.T) {
		got, err := extract.NormalizeChannels(rgb, 3)
		if err != nil || !got.Equal(rgb) {
			t.Errorf("got %v, %v; want input unchanged", got, err)
		}
	})

	t.Run("unsupported conversion", func(t *testing.T) {
		two := tensor.Zeros(1, 2, 2)
		if _, err := extract.NormalizeChannels(two, 3); !errors.Is(err, extract.ErrChannelMismatch) {
			t.Errorf("error = %v, want %v", err, extract.ErrChannelMismatch)
		}
	})
}

func TestNew_Validation(t *testing.T) {
	alignCorners := true
	tests := []struct {
		name    string
		cfg     extract.Config
		wantErr error
	}{
		{
			name:    "missing memory key",
			cfg:     extract.Config{},
			wantErr: extract.ErrInvalidConfig,
		},
		{
			name:    "two channels",
			cfg:     extract.Config{MemoryKey: "images", Channels: 2},
			wantErr: extract.ErrInvalidChannels,
		},
		{
			name: "unknown activation",
			cfg: extract.Config{
				MemoryKey: "images",
				Layers:    map[string]extract.Outputs{"fc": {{MemoryKey: "x", Activation: &registry.Ref{Name: "gelu2"}}}},
			},
			wantErr: tensor.ErrUnsupportedActivation,
		},
		{
			name: "duplicate output key",
			cfg: extract.Config{
				MemoryKey: "images",
				Layers: map[string]extract.Outputs{
					"a": {{MemoryKey: "x"}},
					"b": {{MemoryKey: "x"}},
				},
			},
			wantErr: extract.ErrMalformedLayer,
		},
		{
			name: "output overwrites source",
			cfg: extract.Config{
				MemoryKey: "images",
				Layers:    map[string]extract.Outputs{"a": {{MemoryKey: "images"}}},
			},
			wantErr: extract.ErrMalformedLayer,
		},
		{
			name:    "align corners with nearest",
			cfg:     extract.Config{MemoryKey: "images", TargetSize: extract.Size{4}, AlignCorners: &alignCorners},
			wantErr: tensor.ErrInvalidResize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := extract.New(&tt.cfg); !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_DecodeLayers(t *testing.T) {
	doc := `{
		"memory_key": "images",
		"model_key": "model",
		"layer_key": {
			"backbone": "features",
			"fc": [
				"logits",
				{"memory_out_key": "probs", "activation": {"name": "softmax", "dim": 1}}
			]
		},
		"target_size": [8, 8]
	}`

	var cfg extract.Config
	if err := json.Unmarshal([]byte(doc), &cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	if got := cfg.Layers["backbone"]; len(got) != 1 || got[0].MemoryKey != "features" || got[0].Activation != nil {
		t.Errorf("backbone outputs = %+v", got)
	}
	fc := cfg.Layers["fc"]
	if len(fc) != 2 {
		t.Fatalf("fc outputs = %+v, want 2", fc)
	}
	if fc[1].MemoryKey != "probs" || fc[1].Activation == nil || fc[1].Activation.Name != "softmax" {
		t.Errorf("fc[1] = %+v", fc[1])
	}
	if dim := fc[1].Activation.Params["dim"]; dim != 1.0 {
		t.Errorf("softmax dim = %v, want 1", dim)
	}
	if !slices.Equal(cfg.TargetSize, extract.Size{8, 8}) {
		t.Errorf("TargetSize = %v, want [8 8]", cfg.TargetSize)
	}

	if _, err := extract.New(&cfg); err != nil {
		t.Errorf("New(decoded) error = %v", err)
	}
}

func TestParseOutput_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  any
	}{
		{name: "empty key", raw: ""},
		{name: "number", raw: 3},
		{name: "missing key", raw: map[string]any{"activation": "relu"}},
		{name: "too many fields", raw: map[string]any{"memory_out_key": "a", "activation": "relu", "extra": 1}},
		{name: "unknown field", raw: map[string]any{"memory_out_key": "a", "act": "relu"}},
		{name: "activation without name", raw: map[string]any{"memory_out_key": "a", "activation": map[string]any{"dim": 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := extract.ParseOutput(tt.raw); !errors.Is(err, extract.ErrMalformedLayer) {
				t.Errorf("ParseOutput() error = %v, want %v", err, extract.ErrMalformedLayer)
			}
		})
	}
}
