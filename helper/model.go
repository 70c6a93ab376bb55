package helper

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knights-analytics/hugot"
)

// ModelDir returns the directory local models are cached in.
// It defaults to ./models and can be overridden with MODEL_DIR.
func ModelDir() string {
	return GetEnv("MODEL_DIR", "./models")
}

// PrepareModel returns the local path of a Hugging Face model, downloading it
// into ModelDir on first use. onnxFilePath selects the onnx file inside the
// repository when it holds more than one.
func PrepareModel(modelName string, onnxFilePath string) (string, error) {
	modelDir := ModelDir()
	modelPath := filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))

	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to stat model directory: %w", err)
	}

	if err := os.MkdirAll(modelDir, 0750); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}

	downloadOptions := hugot.NewDownloadOptions()
	if onnxFilePath != "" {
		downloadOptions.OnnxFilePath = onnxFilePath
	}
	downloadedPath, err := hugot.DownloadModel(modelName, modelDir, downloadOptions)
	if err != nil {
		return "", fmt.Errorf("failed to download model %s: %w", modelName, err)
	}

	return downloadedPath, nil
}
