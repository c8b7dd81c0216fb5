package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/loansphere/internal/core/ports"
)

var _ ports.LoanClassifier = (*Classifier)(nil)
var _ ports.LoanClassifier = (*ONNXClassifier)(nil)

// Load reads a classifier artifact. JSON files are evaluated in process;
// YAML files are ONNX manifests and need the onnxruntime shared library.
func Load(path, onnxLibPath string) (ports.LoanClassifier, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(path)
	case ".yaml", ".yml":
		m, err := loadManifest(path)
		if err != nil {
			return nil, fmt.Errorf("load model %s: %w", path, err)
		}
		c, err := newONNXClassifier(m, onnxLibPath)
		if err != nil {
			return nil, fmt.Errorf("load model %s: %w", path, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("load model %s: unsupported artifact extension", path)
	}
}

func LoadJSON(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return ParseJSON(data)
}

func ParseJSON(data []byte) (*Classifier, error) {
	var art artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("parse model artifact: %w", err)
	}
	if err := art.validate(); err != nil {
		return nil, fmt.Errorf("invalid model artifact: %w", err)
	}
	return &Classifier{art: &art}, nil
}
