package model

import (
	"context"
	"fmt"
	"math"
)

// Classifier evaluates a JSON artifact in process.
type Classifier struct {
	art *artifact
}

func (c *Classifier) Name() string {
	return c.art.Type
}

func (c *Classifier) FeatureNames() []string {
	return append([]string(nil), c.art.FeatureNames...)
}

// Predict returns one class label per row.
func (c *Classifier) Predict(ctx context.Context, rows [][]float64) ([]int64, error) {
	out := make([]int64, len(rows))
	for i, row := range rows {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if len(row) != len(c.art.FeatureNames) {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i+1, len(row), len(c.art.FeatureNames))
		}
		out[i] = c.art.Classes[c.classIndex(row)]
	}
	return out, nil
}

func (c *Classifier) classIndex(row []float64) int {
	if c.art.Type == TypeLogisticRegression {
		return c.linearClass(row)
	}
	probs := make([]float64, len(c.art.Classes))
	for i := range c.art.Estimators {
		leaf := c.art.Estimators[i].Value[c.art.Estimators[i].leaf(row)]
		total := 0.0
		for _, w := range leaf {
			total += w
		}
		if total == 0 {
			continue
		}
		for k, w := range leaf {
			probs[k] += w / total
		}
	}
	return argmax(probs)
}

func (c *Classifier) linearClass(row []float64) int {
	scores := make([]float64, len(c.art.Coef))
	for k, weights := range c.art.Coef {
		z := c.art.Intercept[k]
		for j, w := range weights {
			z += w * row[j]
		}
		scores[k] = z
	}
	if len(scores) == 1 {
		if scores[0] > 0 {
			return 1
		}
		return 0
	}
	return argmax(scores)
}

// leaf walks the tree: left when the feature is at or below the threshold.
func (t *treeNodes) leaf(row []float64) int {
	node := 0
	for t.ChildrenLeft[node] != -1 {
		if row[t.Feature[node]] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
	}
	return node
}

// argmax returns the first index of the largest value.
func argmax(values []float64) int {
	best, bestValue := 0, math.Inf(-1)
	for i, v := range values {
		if v > bestValue {
			best, bestValue = i, v
		}
	}
	return best
}
