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

// Kriging tuning defaults. The correlation length is deliberately fixed:
// hyperparameter estimation needs per-problem bounds, which is why KRG
// sits on the automatic-search exclusion list.
const (
	// DefaultKrigingTheta is the Gaussian correlation parameter.
	DefaultKrigingTheta = 1.0

	// DefaultKrigingNugget stabilizes the correlation matrix.
	DefaultKrigingNugget = 1e-8
)

// Kriging is an ordinary kriging model with a constant trend and a
// Gaussian correlation function with a fixed θ.
type Kriging struct {
	// Points are the training inputs.
	Points [][]float64 `json:"points"`

	// Gamma is R⁻¹(y - 1β), one entry per training point.
	Gamma []float64 `json:"gamma"`

	// Beta is the constant trend estimate.
	Beta float64 `json:"beta"`

	// Theta is the Gaussian correlation parameter.
	Theta float64 `json:"theta"`

	// Nugget is the diagonal stabilization term.
	Nugget float64 `json:"nugget"`

	// Dim is the training input dimension.
	Dim int `json:"dim"`

	// Fitted reports whether Fit has succeeded.
	Fitted bool `json:"fitted"`
}

// NewKriging returns an unfitted ordinary kriging model with default
// correlation settings.
func NewKriging() *Kriging {
	return &Kriging{Theta: DefaultKrigingTheta, Nugget: DefaultKrigingNugget}
}

// Name returns the model identifier.
func (m *Kriging) Name() string { return NameKRG }

// Fit estimates the constant trend by generalized least squares and
// precomputes the kriging weights.
func (m *Kriging) Fit(x mat.Matrix, y *mat.VecDense) error {
	n, d, err := checkTraining(x, y)
	if err != nil {
		return err
	}
	if m.Theta <= 0 {
		m.Theta = DefaultKrigingTheta
	}
	if m.Nugget <= 0 {
		m.Nugget = DefaultKrigingNugget
	}

	points := make([][]float64, n)
	for i := 0; i < n; i++ {
		points[i] = make([]float64, d)
		mat.Row(points[i], i, x)
	}

	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		corr.SetSym(i, i, 1+m.Nugget)
		for j := i + 1; j < n; j++ {
			corr.SetSym(i, j, m.correlation(points[i], points[j]))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(corr); !ok {
		return fmt.Errorf("%w: correlation matrix is not positive definite", ErrSingularSystem)
	}

	ones := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		ones.SetVec(i, 1)
	}

	rInvOnes := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(rInvOnes, ones); err != nil {
		return fmt.Errorf("%w: %v", ErrSingularSystem, err)
	}
	rInvY := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(rInvY, y); err != nil {
		return fmt.Errorf("%w: %v", ErrSingularSystem, err)
	}

	denom := mat.Dot(ones, rInvOnes)
	if denom == 0 {
		return fmt.Errorf("%w: degenerate trend system", ErrSingularSystem)
	}
	beta := mat.Dot(ones, rInvY) / denom

	resid := mat.NewVecDense(n, nil)
	resid.AddScaledVec(y, -beta, ones)
	gammaVec := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(gammaVec, resid); err != nil {
		return fmt.Errorf("%w: %v", ErrSingularSystem, err)
	}

	m.Dim = d
	m.Points = points
	m.Beta = beta
	m.Gamma = make([]float64, n)
	for i := 0; i < n; i++ {
		m.Gamma[i] = gammaVec.AtVec(i)
	}
	m.Fitted = true
	return nil
}

// Predict evaluates the kriging mean at every row of x.
func (m *Kriging) Predict(x mat.Matrix) (*mat.VecDense, error) {
	n, err := checkPrediction(x, m.Fitted, m.Dim)
	if err != nil {
		return nil, err
	}

	out := mat.NewVecDense(n, nil)
	row := make([]float64, m.Dim)
	for i := 0; i < n; i++ {
		mat.Row(row, i, x)
		v := m.Beta
		for j, p := range m.Points {
			v += m.Gamma[j] * m.correlation(row, p)
		}
		out.SetVec(i, v)
	}
	return out, nil
}

// correlation evaluates the Gaussian correlation between two points.
func (m *Kriging) correlation(a, b []float64) float64 {
	var sq float64
	for j := range a {
		d := a[j] - b[j]
		sq += d * d
	}
	return math.Exp(-m.Theta * sq)
}
