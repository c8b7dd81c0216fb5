package model

import (
	"errors"
	"fmt"
)

// Model types accepted in JSON artifacts.
const (
	TypeDecisionTree       = "DecisionTreeClassifier"
	TypeRandomForest       = "RandomForestClassifier"
	TypeExtraTrees         = "ExtraTreesClassifier"
	TypeLogisticRegression = "LogisticRegression"
)

// artifact is a trained classifier exported to JSON. Tree arrays use the
// layout of a fitted tree: node i splits on feature[i] at threshold[i], and
// children_left[i] == -1 marks a leaf whose class weights are value[i].
type artifact struct {
	Type         string      `json:"type"`
	FeatureNames []string    `json:"feature_names"`
	Classes      []int64     `json:"classes"`
	Estimators   []treeNodes `json:"estimators,omitempty"`
	Coef         [][]float64 `json:"coef,omitempty"`
	Intercept    []float64   `json:"intercept,omitempty"`
}

type treeNodes struct {
	ChildrenLeft  []int       `json:"children_left"`
	ChildrenRight []int       `json:"children_right"`
	Feature       []int       `json:"feature"`
	Threshold     []float64   `json:"threshold"`
	Value         [][]float64 `json:"value"`
}

func (a *artifact) validate() error {
	if len(a.FeatureNames) == 0 {
		return errors.New("feature_names is empty")
	}
	seen := make(map[string]struct{}, len(a.FeatureNames))
	for _, name := range a.FeatureNames {
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate feature %q", name)
		}
		seen[name] = struct{}{}
	}
	if len(a.Classes) < 2 {
		return fmt.Errorf("expected at least 2 classes, got %d", len(a.Classes))
	}

	switch a.Type {
	case TypeDecisionTree, TypeRandomForest, TypeExtraTrees:
		if len(a.Estimators) == 0 {
			return fmt.Errorf("%s has no estimators", a.Type)
		}
		if a.Type == TypeDecisionTree && len(a.Estimators) != 1 {
			return fmt.Errorf("%s must have exactly one tree, got %d", a.Type, len(a.Estimators))
		}
		for i := range a.Estimators {
			if err := a.Estimators[i].validate(len(a.FeatureNames), len(a.Classes)); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
		}
	case TypeLogisticRegression:
		return a.validateLinear()
	default:
		return fmt.Errorf("unsupported model type %q", a.Type)
	}
	return nil
}

func (a *artifact) validateLinear() error {
	rows := len(a.Classes)
	if rows == 2 {
		rows = 1
	}
	if len(a.Coef) != rows || len(a.Intercept) != rows {
		return fmt.Errorf("expected %d coefficient rows and intercepts, got %d and %d", rows, len(a.Coef), len(a.Intercept))
	}
	for i, row := range a.Coef {
		if len(row) != len(a.FeatureNames) {
			return fmt.Errorf("coef row %d has %d weights, expected %d", i, len(row), len(a.FeatureNames))
		}
	}
	return nil
}

func (t *treeNodes) validate(features, classes int) error {
	n := len(t.ChildrenLeft)
	if n == 0 {
		return errors.New("tree has no nodes")
	}
	if len(t.ChildrenRight) != n || len(t.Feature) != n || len(t.Threshold) != n || len(t.Value) != n {
		return errors.New("node arrays differ in length")
	}
	for i := 0; i < n; i++ {
		left, right := t.ChildrenLeft[i], t.ChildrenRight[i]
		if left == -1 {
			if len(t.Value[i]) != classes {
				return fmt.Errorf("leaf %d has %d class weights, expected %d", i, len(t.Value[i]), classes)
			}
			continue
		}
		if left <= i || left >= n || right <= i || right >= n {
			return fmt.Errorf("node %d has children out of range", i)
		}
		if t.Feature[i] < 0 || t.Feature[i] >= features {
			return fmt.Errorf("node %d splits on unknown feature %d", i, t.Feature[i])
		}
	}
	return nil
}
