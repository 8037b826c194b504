package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathJoinSafe(t *testing.T) {
	assert.Equal(t, filepath.Join("models", "agent", "model.onnx"), PathJoinSafe("models", "agent", "model.onnx"))
	assert.Equal(t, "s3://bucket/agent/model.onnx", PathJoinSafe("s3://bucket/", "agent", "model.onnx"))
}

func TestReadFileBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	exists, err := FileExists(path)
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := ReadFileBytes(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)

	exists, err = FileExists(filepath.Join(dir, "missing.onnx"))
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = ReadFileBytes(filepath.Join(dir, "missing.onnx"))
	assert.Error(t, err)
}
