package testcases

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/advancedclimatesystems/gonnx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelsParse(t *testing.T) {
	for name, model := range All() {
		t.Run(name, func(t *testing.T) {
			data, err := model.Bytes()
			require.NoError(t, err)
			mp, err := gonnx.ModelProtoFromBytes(data)
			require.NoError(t, err)
			assert.Len(t, mp.GetGraph().GetInput(), len(model.Inputs))
			assert.Len(t, mp.GetGraph().GetOutput(), len(model.Outputs))
			assert.Len(t, mp.GetGraph().GetNode(), len(model.Nodes))
		})
	}
}

func TestCustomDomainOpset(t *testing.T) {
	assert.Len(t, Atan2().Proto().GetOpsetImport(), 2)
	assert.Len(t, Scenario().Proto().GetOpsetImport(), 1)
	dims := DynamicBatch().Proto().GetGraph().GetInput()[0].GetType().GetTensorType().GetShape().GetDim()
	require.Len(t, dims, 2)
	assert.Equal(t, "batch", dims[0].GetDimParam())
	assert.Equal(t, int64(3), dims[1].GetDimValue())
}

func TestWriteDir(t *testing.T) {
	dir, err := Scenario().WriteDir(filepath.Join(t.TempDir(), "scenario"), "model.onnx")
	require.NoError(t, err)
	info, err := os.Stat(filepath.Join(dir, "model.onnx"))
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
