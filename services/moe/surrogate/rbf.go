// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package surrogate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultRBFRegularization is the diagonal regularization added to the
// kernel matrix to keep the interpolation system solvable.
const DefaultRBFRegularization = 1e-10

// RBF is a Gaussian radial-basis-function interpolant. The kernel width
// defaults to the mean pairwise distance between training points.
type RBF struct {
	// Centers are the training inputs, one row per basis center.
	Centers [][]float64 `json:"centers"`

	// Weights are the fitted basis weights, one per center.
	Weights []float64 `json:"weights"`

	// Width is the Gaussian kernel width σ.
	Width float64 `json:"width"`

	// Regularization is the diagonal term added to the kernel matrix.
	Regularization float64 `json:"regularization"`

	// Dim is the training input dimension.
	Dim int `json:"dim"`

	// Fitted reports whether Fit has succeeded.
	Fitted bool `json:"fitted"`
}

// NewRBF returns an unfitted Gaussian RBF model with default
// regularization and an automatic kernel width.
func NewRBF() *RBF {
	return &RBF{Regularization: DefaultRBFRegularization}
}

// Name returns the model identifier.
func (m *RBF) Name() string { return NameRBF }

// Fit solves the regularized interpolation system Φw = y where
// Φ_ij = exp(-‖x_i - x_j‖² / (2σ²)).
func (m *RBF) Fit(x mat.Matrix, y *mat.VecDense) error {
	n, d, err := checkTraining(x, y)
	if err != nil {
		return err
	}

	centers := make([][]float64, n)
	for i := 0; i < n; i++ {
		centers[i] = make([]float64, d)
		mat.Row(centers[i], i, x)
	}

	if m.Width <= 0 {
		m.Width = meanPairwiseDistance(centers)
		if m.Width <= 0 {
			// All points coincide; any positive width gives the same fit.
			m.Width = 1
		}
	}
	if m.Regularization <= 0 {
		m.Regularization = DefaultRBFRegularization
	}

	phi := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		phi.Set(i, i, 1+m.Regularization)
		for j := i + 1; j < n; j++ {
			v := m.kernel(centers[i], centers[j])
			phi.Set(i, j, v)
			phi.Set(j, i, v)
		}
	}

	var w mat.VecDense
	if err := w.SolveVec(phi, y); err != nil {
		return fmt.Errorf("%w: %v", ErrSingularSystem, err)
	}

	m.Dim = d
	m.Centers = centers
	m.Weights = make([]float64, n)
	for i := 0; i < n; i++ {
		m.Weights[i] = w.AtVec(i)
	}
	m.Fitted = true
	return nil
}

// Predict evaluates the interpolant at every row of x.
func (m *RBF) Predict(x mat.Matrix) (*mat.VecDense, error) {
	n, err := checkPrediction(x, m.Fitted, m.Dim)
	if err != nil {
		return nil, err
	}

	out := mat.NewVecDense(n, nil)
	row := make([]float64, m.Dim)
	for i := 0; i < n; i++ {
		mat.Row(row, i, x)
		var v float64
		for c, center := range m.Centers {
			v += m.Weights[c] * m.kernel(row, center)
		}
		out.SetVec(i, v)
	}
	return out, nil
}

// kernel evaluates the Gaussian kernel between two points.
func (m *RBF) kernel(a, b []float64) float64 {
	var sq float64
	for j := range a {
		d := a[j] - b[j]
		sq += d * d
	}
	return math.Exp(-sq / (2 * m.Width * m.Width))
}

// meanPairwiseDistance computes the average Euclidean distance between
// distinct point pairs.
func meanPairwiseDistance(points [][]float64) float64 {
	n := len(points)
	if n < 2 {
		return 0
	}
	var sum float64
	var count int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var sq float64
			for k := range points[i] {
				d := points[i][k] - points[j][k]
				sq += d * d
			}
			sum += math.Sqrt(sq)
			count++
		}
	}
	return sum / float64(count)
}
