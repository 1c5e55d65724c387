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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// grid1D builds a 1D training set y = f(x) over evenly spaced points.
func grid1D(n int, f func(float64) float64) (*mat.Dense, *mat.VecDense) {
	x := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		xi := float64(i) / float64(n-1)
		x.Set(i, 0, xi)
		y.SetVec(i, f(xi))
	}
	return x, y
}

func TestRegistry_InsertionOrder(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("B", func() Regressor { return NewLeastSquares() }))
	require.NoError(t, r.Register("A", func() Regressor { return NewQuadratic() }))
	require.NoError(t, r.Register("C", func() Regressor { return NewIDW() }))

	assert.Equal(t, []string{"B", "A", "C"}, r.Names())
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_DuplicateAndUnknown(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("LS", func() Regressor { return NewLeastSquares() }))

	err := r.Register("LS", func() Regressor { return NewLeastSquares() })
	assert.ErrorIs(t, err, ErrDuplicateModel)

	_, err = r.New("NOPE")
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestDefaultRegistry_CanonicalOrder(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{NameLS, NameQP, NameRBF, NameIDW, NameKRG}, r.Names())

	for _, name := range r.Names() {
		model, err := r.New(name)
		require.NoError(t, err)
		assert.Equal(t, name, model.Name())
	}
}

func TestLeastSquares_RecoversLinearFunction(t *testing.T) {
	// y = 3 - 2x fitted exactly.
	x, y := grid1D(10, func(v float64) float64 { return 3 - 2*v })

	m := NewLeastSquares()
	require.NoError(t, m.Fit(x, y))
	assert.InDelta(t, 3.0, m.Intercept, 1e-9)
	assert.InDelta(t, -2.0, m.Coefficients[0], 1e-9)

	pred, err := m.Predict(mat.NewDense(2, 1, []float64{0.25, 2}))
	require.NoError(t, err)
	assert.InDelta(t, 2.5, pred.AtVec(0), 1e-9)
	assert.InDelta(t, -1.0, pred.AtVec(1), 1e-9)
}

func TestQuadratic_RecoversQuadraticFunction(t *testing.T) {
	x, y := grid1D(12, func(v float64) float64 { return 1 + v + 2*v*v })

	m := NewQuadratic()
	require.NoError(t, m.Fit(x, y))

	pred, err := m.Predict(mat.NewDense(1, 1, []float64{0.5}))
	require.NoError(t, err)
	assert.InDelta(t, 2.0, pred.AtVec(0), 1e-8)
}

func TestQuadratic_TwoDimensionalCrossTerm(t *testing.T) {
	// y = x0*x1 needs the cross monomial.
	n := 0
	x := mat.NewDense(16, 2, nil)
	y := mat.NewVecDense(16, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			a, b := float64(i)/3, float64(j)/3
			x.Set(n, 0, a)
			x.Set(n, 1, b)
			y.SetVec(n, a*b)
			n++
		}
	}

	m := NewQuadratic()
	require.NoError(t, m.Fit(x, y))

	pred, err := m.Predict(mat.NewDense(1, 2, []float64{0.5, 0.8}))
	require.NoError(t, err)
	assert.InDelta(t, 0.4, pred.AtVec(0), 1e-8)
}

func TestRBF_InterpolatesTrainingPoints(t *testing.T) {
	x, y := grid1D(8, func(v float64) float64 { return v * v })

	m := NewRBF()
	require.NoError(t, m.Fit(x, y))

	pred, err := m.Predict(x)
	require.NoError(t, err)
	for i := 0; i < y.Len(); i++ {
		assert.InDelta(t, y.AtVec(i), pred.AtVec(i), 1e-6, "row %d", i)
	}
}

func TestIDW_ExactAtTrainingPointsAndBounded(t *testing.T) {
	x, y := grid1D(6, func(v float64) float64 { return 10 * v })

	m := NewIDW()
	require.NoError(t, m.Fit(x, y))

	// Exact on a training point.
	pred, err := m.Predict(mat.NewDense(1, 1, []float64{x.At(2, 0)}))
	require.NoError(t, err)
	assert.Equal(t, y.AtVec(2), pred.AtVec(0))

	// Weighted averages never leave the training range.
	pred, err = m.Predict(mat.NewDense(1, 1, []float64{0.37}))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pred.AtVec(0), 0.0)
	assert.LessOrEqual(t, pred.AtVec(0), 10.0)
}

func TestKriging_InterpolatesTrainingPoints(t *testing.T) {
	x, y := grid1D(7, func(v float64) float64 { return 2 + v*v })

	m := NewKriging()
	// A short correlation length keeps the 7-point system well conditioned.
	m.Theta = 25
	require.NoError(t, m.Fit(x, y))

	pred, err := m.Predict(x)
	require.NoError(t, err)
	for i := 0; i < y.Len(); i++ {
		assert.InDelta(t, y.AtVec(i), pred.AtVec(i), 1e-4, "row %d", i)
	}
}

func TestFit_EmptyTrainingSet(t *testing.T) {
	models := []Regressor{NewLeastSquares(), NewQuadratic(), NewRBF(), NewIDW(), NewKriging()}
	for _, m := range models {
		err := m.Fit(nil, nil)
		assert.ErrorIs(t, err, ErrEmptyTrainingSet, m.Name())
	}
}

func TestPredict_BeforeFit(t *testing.T) {
	models := []Regressor{NewLeastSquares(), NewQuadratic(), NewRBF(), NewIDW(), NewKriging()}
	for _, m := range models {
		_, err := m.Predict(mat.NewDense(1, 1, []float64{0}))
		assert.ErrorIs(t, err, ErrNotFitted, m.Name())
	}
}

func TestPredict_DimensionMismatch(t *testing.T) {
	x, y := grid1D(5, func(v float64) float64 { return v })
	m := NewLeastSquares()
	require.NoError(t, m.Fit(x, y))

	_, err := m.Predict(mat.NewDense(1, 2, []float64{0, 0}))
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestDefaultExclusions_ContainKrigingFamily(t *testing.T) {
	ex := DefaultExclusions()
	assert.Contains(t, ex, NameKRG)
	assert.Contains(t, ex, "RMTC")
	assert.Contains(t, ex, "RMTB")
	assert.Contains(t, ex, "GEKPLS")
}
