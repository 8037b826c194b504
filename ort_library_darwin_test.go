//go:build darwin

package dualrun

// onnxRuntimeSharedLibrary is the default ONNX Runtime library path for macOS.
const onnxRuntimeSharedLibrary = "/usr/local/lib/libonnxruntime.dylib"
