//go:build linux

package dualrun

// onnxRuntimeSharedLibrary is the default ONNX Runtime library path for Linux.
const onnxRuntimeSharedLibrary = "/usr/lib64/onnxruntime.so"
