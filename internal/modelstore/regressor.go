// Package modelstore owns the model artifact contract: regressors are
// trained per target, serialized as opaque blobs, grouped under a run ID,
// and loaded through a cache keyed by that run ID.
package modelstore

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Regressor predicts one target from a feature matrix whose columns
// follow Features() order.
type Regressor interface {
	Predict(rows [][]float64) []float64
	Features() []string
}

// LinearRegressor is the baseline regressor: ordinary least squares
// with a small ridge term for numerical stability. The artifact format
// is JSON so runs stay inspectable.
type LinearRegressor struct {
	FeatureNames []string  `json:"features"`
	Weights      []float64 `json:"weights"`
	Intercept    float64   `json:"intercept"`
}

// Features returns the feature order the model was trained on.
func (m *LinearRegressor) Features() []string { return m.FeatureNames }

// Predict applies the fitted weights row by row.
func (m *LinearRegressor) Predict(rows [][]float64) []float64 {
	out := make([]float64, len(rows))
	for i, row := range rows {
		v := m.Intercept
		for j, w := range m.Weights {
			v += w * row[j]
		}
		out[i] = v
	}
	return out
}

// ridgeLambda stabilizes the normal equations when dummy features are
// collinear within the training window.
const ridgeLambda = 1e-6

// Train fits a LinearRegressor on the given feature matrix and target
// vector via ridge-regularized normal equations.
func Train(features []string, x [][]float64, y []float64) (*LinearRegressor, error) {
	n := len(x)
	if n == 0 {
		return nil, fmt.Errorf("train: no rows")
	}
	if len(y) != n {
		return nil, fmt.Errorf("train: %d rows but %d targets", n, len(y))
	}
	p := len(features)
	for i, row := range x {
		if len(row) != p {
			return nil, fmt.Errorf("train: row %d has %d values, want %d", i, len(row), p)
		}
	}

	// Augment with a bias column and solve (A'A + lambda*I) w = A'y.
	a := mat.NewDense(n, p+1, nil)
	for i, row := range x {
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, v)
		}
	}
	yv := mat.NewVecDense(n, y)

	var ata mat.Dense
	ata.Mul(a.T(), a)
	for j := 0; j <= p; j++ {
		ata.Set(j, j, ata.At(j, j)+ridgeLambda)
	}
	var aty mat.VecDense
	aty.MulVec(a.T(), yv)

	var w mat.VecDense
	if err := w.SolveVec(&ata, &aty); err != nil {
		return nil, fmt.Errorf("train: solve normal equations: %w", err)
	}

	weights := make([]float64, p)
	for j := 0; j < p; j++ {
		weights[j] = w.AtVec(j + 1)
	}
	return &LinearRegressor{
		FeatureNames: append([]string(nil), features...),
		Weights:      weights,
		Intercept:    w.AtVec(0),
	}, nil
}

func marshalRegressor(m *LinearRegressor) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func unmarshalRegressor(data []byte) (*LinearRegressor, error) {
	var m LinearRegressor
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	if len(m.Weights) != len(m.FeatureNames) {
		return nil, fmt.Errorf("decode model: %d weights for %d features", len(m.Weights), len(m.FeatureNames))
	}
	return &m, nil
}
