package model

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Two stumps: credit score above 600 approves, annual income above 50000 approves.
const forestJSON = `{
  "type": "RandomForestClassifier",
  "feature_names": ["Credit Score", "Annual Income"],
  "classes": [0, 1],
  "estimators": [
    {
      "children_left": [1, -1, -1],
      "children_right": [2, -1, -1],
      "feature": [0, -2, -2],
      "threshold": [600, -2, -2],
      "value": [[5, 5], [4, 0], [1, 5]]
    },
    {
      "children_left": [1, -1, -1],
      "children_right": [2, -1, -1],
      "feature": [1, -2, -2],
      "threshold": [50000, -2, -2],
      "value": [[5, 5], [0.9, 0.1], [0.2, 0.8]]
    }
  ]
}`

func TestForestAveragesTreeProbabilities(t *testing.T) {
	clf, err := ParseJSON([]byte(forestJSON))
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	if clf.Name() != TypeRandomForest {
		t.Fatalf("unexpected name %q", clf.Name())
	}

	got, err := clf.Predict(context.Background(), [][]float64{
		{720, 60000},
		{580, 35000},
		{600, 90000},
	})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	// row 3: tree 1 goes left at the threshold (1.0 reject), tree 2 approves 0.8.
	want := []int64{1, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %d = %d, want %d (all %v)", i, got[i], want[i], got)
		}
	}
}

func TestLogisticRegressionBinary(t *testing.T) {
	clf, err := ParseJSON([]byte(`{
		"type": "LogisticRegression",
		"feature_names": ["Credit Score"],
		"classes": [0, 1],
		"coef": [[0.01]],
		"intercept": [-6.5]
	}`))
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	got, err := clf.Predict(context.Background(), [][]float64{{720}, {580}})
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if got[0] != 1 || got[1] != 0 {
		t.Fatalf("unexpected predictions %v", got)
	}
}

func TestPredictRejectsWrongWidth(t *testing.T) {
	clf, err := ParseJSON([]byte(forestJSON))
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	if _, err := clf.Predict(context.Background(), [][]float64{{1}}); err == nil {
		t.Fatalf("expected width error")
	}
}

func TestParseJSONValidatesArtifact(t *testing.T) {
	cases := map[string]string{
		"unknown type":    `{"type":"SVC","feature_names":["a"],"classes":[0,1]}`,
		"no features":     `{"type":"LogisticRegression","feature_names":[],"classes":[0,1],"coef":[[]],"intercept":[0]}`,
		"bad coef width":  `{"type":"LogisticRegression","feature_names":["a"],"classes":[0,1],"coef":[[1,2]],"intercept":[0]}`,
		"child cycle":     `{"type":"DecisionTreeClassifier","feature_names":["a"],"classes":[0,1],"estimators":[{"children_left":[0],"children_right":[0],"feature":[0],"threshold":[1],"value":[[1,1]]}]}`,
		"feature overrun": `{"type":"DecisionTreeClassifier","feature_names":["a"],"classes":[0,1],"estimators":[{"children_left":[1,-1,-1],"children_right":[2,-1,-1],"feature":[3,-2,-2],"threshold":[1,0,0],"value":[[1,1],[1,0],[0,1]]}]}`,
	}
	for name, body := range cases {
		if _, err := ParseJSON([]byte(body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadDispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loan_model.json")
	if err := os.WriteFile(path, []byte(forestJSON), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	clf, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if names := clf.FeatureNames(); len(names) != 2 || names[0] != "Credit Score" {
		t.Fatalf("unexpected features %v", names)
	}

	if _, err := Load(filepath.Join(dir, "model.pkl"), ""); err == nil {
		t.Fatalf("expected unsupported extension error")
	}

	manifestPath := filepath.Join(dir, "model.yaml")
	manifest := "backend: onnx\npath: missing.onnx\nfeature_names: [\"Credit Score\"]\n"
	if err := os.WriteFile(manifestPath, []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	_, err = Load(manifestPath, "")
	if err == nil || !strings.Contains(err.Error(), "model file missing") {
		t.Fatalf("expected missing model file error, got %v", err)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.yml")
	if err := os.WriteFile(path, []byte("backend: onnx\npath: loan.onnx\nfeature_names: [a, b]\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	m, err := loadManifest(path)
	if err != nil {
		t.Fatalf("loadManifest() error = %v", err)
	}
	if m.InputName != "float_input" || m.LabelOutput != "output_label" {
		t.Fatalf("unexpected io names %q %q", m.InputName, m.LabelOutput)
	}
	if m.Path != filepath.Join(dir, "loan.onnx") {
		t.Fatalf("expected path relative to manifest, got %q", m.Path)
	}
}
