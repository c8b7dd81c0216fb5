package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gopkg.in/yaml.v3"
)

// manifest points at an ONNX export of the classifier.
type manifest struct {
	Backend      string   `yaml:"backend"`
	Path         string   `yaml:"path"`
	Type         string   `yaml:"type"`
	FeatureNames []string `yaml:"feature_names"`
	InputName    string   `yaml:"input_name"`
	LabelOutput  string   `yaml:"label_output"`
}

var ortInit sync.Mutex

// ONNXClassifier runs the model through onnxruntime. The session accepts a
// float32 [N, features] input and yields int64 [N] labels.
type ONNXClassifier struct {
	session  *ort.DynamicAdvancedSession
	name     string
	features []string
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Backend != "onnx" {
		return nil, fmt.Errorf("unsupported backend %q", m.Backend)
	}
	if m.Path == "" {
		return nil, errors.New("manifest path is empty")
	}
	if len(m.FeatureNames) == 0 {
		return nil, errors.New("feature_names is empty")
	}
	if !filepath.IsAbs(m.Path) {
		m.Path = filepath.Join(filepath.Dir(path), m.Path)
	}
	if m.InputName == "" {
		m.InputName = "float_input"
	}
	if m.LabelOutput == "" {
		m.LabelOutput = "output_label"
	}
	if m.Type == "" {
		m.Type = "ONNXClassifier"
	}
	return &m, nil
}

func newONNXClassifier(m *manifest, libPath string) (*ONNXClassifier, error) {
	if _, err := os.Stat(m.Path); err != nil {
		return nil, fmt.Errorf("model file missing at %s: %w", m.Path, err)
	}

	ortInit.Lock()
	defer ortInit.Unlock()
	if !ort.IsInitialized() {
		if libPath == "" {
			return nil, errors.New("onnxruntime shared library not configured; set ONNXRUNTIME_SHARED_LIBRARY_PATH")
		}
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(m.Path, []string{m.InputName}, []string{m.LabelOutput}, nil)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	return &ONNXClassifier{session: session, name: m.Type, features: m.FeatureNames}, nil
}

func (c *ONNXClassifier) Name() string {
	return c.name
}

func (c *ONNXClassifier) FeatureNames() []string {
	return append([]string(nil), c.features...)
}

func (c *ONNXClassifier) Predict(ctx context.Context, rows [][]float64) ([]int64, error) {
	if len(rows) == 0 {
		return []int64{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	width := len(c.features)
	data := make([]float32, 0, len(rows)*width)
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i+1, len(row), width)
		}
		for _, v := range row {
			data = append(data, float32(v))
		}
	}

	input, err := ort.NewTensor(ort.NewShape(int64(len(rows)), int64(width)), data)
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	defer input.Destroy()
	output, err := ort.NewEmptyTensor[int64](ort.NewShape(int64(len(rows))))
	if err != nil {
		return nil, fmt.Errorf("allocate label tensor: %w", err)
	}
	defer output.Destroy()

	if err := c.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("onnx run: %w", err)
	}
	return append([]int64(nil), output.GetData()...), nil
}

func (c *ONNXClassifier) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Destroy()
}
