package options

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knights-analytics/dualrun/ops"
)

func TestDefaults(t *testing.T) {
	o := Defaults()
	assert.Equal(t, "model.onnx", o.ModelFilename)
	assert.Equal(t, int64(1), o.DynamicDimensionSize)
	assert.Equal(t, []string{"Atan2", "Sign"}, o.Operators.OpTypes())
	assert.False(t, o.Diagnostics)
	assert.NoError(t, o.Destroy())
}

func TestORTOnlyOptions(t *testing.T) {
	o := Defaults()
	o.Backends = []string{BackendGo}
	for name, opt := range map[string]WithOption{
		"telemetry": WithTelemetry(),
		"intra":     WithIntraOpNumThreads(1),
		"inter":     WithInterOpNumThreads(1),
		"arena":     WithCPUMemArena(false),
		"pattern":   WithMemPattern(false),
		"cuda":      WithCuda(map[string]string{}),
	} {
		assert.Error(t, opt(o), name)
	}

	o.Backends = []string{BackendORT, BackendGo}
	require.NoError(t, Apply(o, WithIntraOpNumThreads(2), WithTelemetry()))
	assert.Equal(t, 2, *o.ORTOptions.IntraOpNumThreads)
	assert.True(t, *o.ORTOptions.Telemetry)
}

func TestGeneralOptions(t *testing.T) {
	o := Defaults()
	registry := ops.NewRegistry()
	logger := zerolog.Nop()
	require.NoError(t, Apply(o,
		WithModelFilename("policy.onnx"),
		WithDynamicDimensionSize(0),
		WithOperatorRegistry(registry),
		WithDiagnostics(),
		WithComparisonTolerance(0.1, 0.2),
		WithLogger(logger),
		nil,
	))
	assert.Equal(t, "policy.onnx", o.ModelFilename)
	assert.Equal(t, int64(0), o.DynamicDimensionSize)
	assert.Same(t, registry, o.Operators)
	assert.True(t, o.Diagnostics)
	assert.Equal(t, Tolerance{Abs: 0.1, Rel: 0.2}, o.Tolerance)

	assert.Error(t, WithModelFilename("")(o))
	assert.Error(t, WithDynamicDimensionSize(-1)(o))
	assert.Error(t, WithOperatorRegistry(nil)(o))
	assert.Error(t, WithComparisonTolerance(-1, 0)(o))
}
