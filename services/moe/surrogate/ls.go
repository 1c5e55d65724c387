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

// LeastSquares is a linear model y = β₀ + βᵀx fitted by least squares.
type LeastSquares struct {
	// Intercept is β₀.
	Intercept float64 `json:"intercept"`

	// Coefficients is β, one entry per input dimension.
	Coefficients []float64 `json:"coefficients"`

	// Dim is the training input dimension.
	Dim int `json:"dim"`

	// Fitted reports whether Fit has succeeded.
	Fitted bool `json:"fitted"`
}

// NewLeastSquares returns an unfitted linear least-squares model.
func NewLeastSquares() *LeastSquares { return &LeastSquares{} }

// Name returns the model identifier.
func (m *LeastSquares) Name() string { return NameLS }

// Fit solves the least-squares system for [1 | x] against y.
func (m *LeastSquares) Fit(x mat.Matrix, y *mat.VecDense) error {
	n, d, err := checkTraining(x, y)
	if err != nil {
		return err
	}

	design := mat.NewDense(n, d+1, nil)
	for i := 0; i < n; i++ {
		design.Set(i, 0, 1)
		for j := 0; j < d; j++ {
			design.Set(i, j+1, x.At(i, j))
		}
	}

	var beta mat.VecDense
	if err := beta.SolveVec(design, y); err != nil {
		return fmt.Errorf("%w: %v", ErrSingularSystem, err)
	}

	m.Dim = d
	m.Intercept = beta.AtVec(0)
	m.Coefficients = make([]float64, d)
	for j := 0; j < d; j++ {
		m.Coefficients[j] = beta.AtVec(j + 1)
	}
	m.Fitted = true
	return nil
}

// Predict evaluates the linear model at every row of x.
func (m *LeastSquares) Predict(x mat.Matrix) (*mat.VecDense, error) {
	n, err := checkPrediction(x, m.Fitted, m.Dim)
	if err != nil {
		return nil, err
	}

	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v := m.Intercept
		for j := 0; j < m.Dim; j++ {
			v += m.Coefficients[j] * x.At(i, j)
		}
		out.SetVec(i, v)
	}
	return out, nil
}
