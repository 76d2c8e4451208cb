//go:build !onnx

package embedding

import "fmt"

// ONNXConfig locates the model artifacts for the local backend.
type ONNXConfig struct {
	ModelPath     string
	TokenizerPath string
	LibraryPath   string
	Dimensions    int
}

// NewONNXBackend is unavailable in builds without the onnx tag.
func NewONNXBackend(ONNXConfig) (Backend, error) {
	return nil, fmt.Errorf("onnx backend: binary built without -tags onnx")
}
