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

	"gonum.org/v1/gonum/mat"
)

// Quadratic is a full second-order polynomial model fitted by least
// squares: intercept, linear terms, and all degree-two monomials
// x_i·x_j with i <= j.
type Quadratic struct {
	// Coefficients holds the fitted coefficients in feature order:
	// [1, x_0..x_{d-1}, x_0², x_0x_1, ..., x_{d-1}²].
	Coefficients []float64 `json:"coefficients"`

	// Dim is the training input dimension.
	Dim int `json:"dim"`

	// Fitted reports whether Fit has succeeded.
	Fitted bool `json:"fitted"`
}

// NewQuadratic returns an unfitted quadratic polynomial model.
func NewQuadratic() *Quadratic { return &Quadratic{} }

// Name returns the model identifier.
func (m *Quadratic) Name() string { return NameQP }

// numFeatures returns the quadratic feature count for dimension d.
func numQuadraticFeatures(d int) int {
	return 1 + d + d*(d+1)/2
}

// quadraticRow expands one sample into its quadratic feature vector.
func quadraticRow(dst []float64, x []float64) {
	dst[0] = 1
	idx := 1
	for j := range x {
		dst[idx] = x[j]
		idx++
	}
	for j := range x {
		for k := j; k < len(x); k++ {
			dst[idx] = x[j] * x[k]
			idx++
		}
	}
}

// Fit solves the least-squares system over the quadratic feature
// expansion of x.
func (m *Quadratic) Fit(x mat.Matrix, y *mat.VecDense) error {
	n, d, err := checkTraining(x, y)
	if err != nil {
		return err
	}

	p := numQuadraticFeatures(d)
	design := mat.NewDense(n, p, nil)
	row := make([]float64, d)
	features := make([]float64, p)
	for i := 0; i < n; i++ {
		mat.Row(row, i, x)
		quadraticRow(features, row)
		design.SetRow(i, features)
	}

	var beta mat.VecDense
	if err := beta.SolveVec(design, y); err != nil {
		return fmt.Errorf("%w: %v", ErrSingularSystem, err)
	}

	m.Dim = d
	m.Coefficients = make([]float64, p)
	for j := 0; j < p; j++ {
		m.Coefficients[j] = beta.AtVec(j)
	}
	m.Fitted = true
	return nil
}

// Predict evaluates the polynomial at every row of x.
func (m *Quadratic) Predict(x mat.Matrix) (*mat.VecDense, error) {
	n, err := checkPrediction(x, m.Fitted, m.Dim)
	if err != nil {
		return nil, err
	}

	out := mat.NewVecDense(n, nil)
	row := make([]float64, m.Dim)
	features := make([]float64, len(m.Coefficients))
	for i := 0; i < n; i++ {
		mat.Row(row, i, x)
		quadraticRow(features, row)
		var v float64
		for j, c := range m.Coefficients {
			v += c * features[j]
		}
		out.SetVec(i, v)
	}
	return out, nil
}
