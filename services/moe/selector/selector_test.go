// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package selector

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/AleutianAI/AleutianMOE/services/moe/surrogate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var errBrokenModel = errors.New("broken model")

// brokenModel fails at fit or predict time, controlled per instance.
type brokenModel struct {
	failFit     bool
	failPredict bool
}

func (b *brokenModel) Name() string { return "BROKEN" }

func (b *brokenModel) Fit(x mat.Matrix, y *mat.VecDense) error {
	if b.failFit {
		return errBrokenModel
	}
	return nil
}

func (b *brokenModel) Predict(x mat.Matrix) (*mat.VecDense, error) {
	if b.failPredict {
		return nil, errBrokenModel
	}
	n, _ := x.Dims()
	return mat.NewVecDense(n, nil), nil
}

// quadraticSplit builds train/validation splits of y = x² on [0, 1].
func quadraticSplit() (xTrain *mat.Dense, yTrain *mat.VecDense, xValid *mat.Dense, yValid *mat.VecDense) {
	xTrain = mat.NewDense(9, 1, nil)
	yTrain = mat.NewVecDense(9, nil)
	for i := 0; i < 9; i++ {
		v := float64(i) / 8
		xTrain.Set(i, 0, v)
		yTrain.SetVec(i, v*v)
	}
	xValid = mat.NewDense(3, 1, nil)
	yValid = mat.NewVecDense(3, nil)
	for i, v := range []float64{0.15, 0.45, 0.85} {
		xValid.Set(i, 0, v)
		yValid.SetVec(i, v*v)
	}
	return xTrain, yTrain, xValid, yValid
}

func TestSelectBest_PrefersLowerValidationError(t *testing.T) {
	xTrain, yTrain, xValid, yValid := quadraticSplit()

	reg := surrogate.NewRegistry()
	require.NoError(t, reg.Register(surrogate.NameLS, func() surrogate.Regressor { return surrogate.NewLeastSquares() }))
	require.NoError(t, reg.Register(surrogate.NameQP, func() surrogate.Regressor { return surrogate.NewQuadratic() }))

	res, err := SelectBest(context.Background(), reg, nil, xTrain, yTrain, xValid, yValid)
	require.NoError(t, err)

	// The quadratic fits x² exactly; the line cannot.
	assert.Equal(t, surrogate.NameQP, res.Name)
	assert.False(t, res.Bypassed)
	assert.Less(t, res.Scores[surrogate.NameQP], res.Scores[surrogate.NameLS])
	assert.InDelta(t, 0, res.RMSE, 1e-8)
}

func TestSelectBest_SingleCandidateBypassesSearch(t *testing.T) {
	xTrain, yTrain, xValid, yValid := quadraticSplit()

	reg := surrogate.NewRegistry()
	require.NoError(t, reg.Register(surrogate.NameLS, func() surrogate.Regressor { return surrogate.NewLeastSquares() }))

	res, err := SelectBest(context.Background(), reg, nil, xTrain, yTrain, xValid, yValid)
	require.NoError(t, err)

	assert.True(t, res.Bypassed)
	assert.Equal(t, surrogate.NameLS, res.Name)
	assert.True(t, math.IsNaN(res.RMSE))
	assert.Empty(t, res.Scores)
}

func TestSelectBest_ExclusionsReduceToBypass(t *testing.T) {
	xTrain, yTrain, xValid, yValid := quadraticSplit()

	reg := surrogate.DefaultRegistry()
	excluded := []string{surrogate.NameQP, surrogate.NameRBF, surrogate.NameIDW, surrogate.NameKRG}

	res, err := SelectBest(context.Background(), reg, excluded, xTrain, yTrain, xValid, yValid)
	require.NoError(t, err)
	assert.True(t, res.Bypassed)
	assert.Equal(t, surrogate.NameLS, res.Name)
}

func TestSelectBest_AllExcluded(t *testing.T) {
	xTrain, yTrain, xValid, yValid := quadraticSplit()

	reg := surrogate.DefaultRegistry()
	_, err := SelectBest(context.Background(), reg, reg.Names(), xTrain, yTrain, xValid, yValid)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestSelectBest_EmptyTrainingGroup(t *testing.T) {
	_, _, xValid, yValid := quadraticSplit()

	reg := surrogate.NewRegistry()
	require.NoError(t, reg.Register(surrogate.NameLS, func() surrogate.Regressor { return surrogate.NewLeastSquares() }))

	_, err := SelectBest(context.Background(), reg, nil, nil, nil, xValid, yValid)
	assert.ErrorIs(t, err, surrogate.ErrEmptyTrainingSet)
}

func TestSelectBest_FitFailureAborts(t *testing.T) {
	_, _, xValid, yValid := quadraticSplit()

	reg := surrogate.NewRegistry()
	require.NoError(t, reg.Register(surrogate.NameLS, func() surrogate.Regressor { return surrogate.NewLeastSquares() }))
	require.NoError(t, reg.Register(surrogate.NameQP, func() surrogate.Regressor { return surrogate.NewQuadratic() }))

	_, err := SelectBest(context.Background(), reg, nil, nil, nil, xValid, yValid)
	assert.ErrorIs(t, err, surrogate.ErrEmptyTrainingSet)
}

func TestSelectBest_CandidateFailurePropagates(t *testing.T) {
	xTrain, yTrain, xValid, yValid := quadraticSplit()

	// A failing candidate aborts the search even when a healthy one
	// follows it in registry order.
	tests := []struct {
		name  string
		model *brokenModel
	}{
		{name: "fit failure", model: &brokenModel{failFit: true}},
		{name: "predict failure", model: &brokenModel{failPredict: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := surrogate.NewRegistry()
			require.NoError(t, reg.Register("BROKEN", func() surrogate.Regressor { return tt.model }))
			require.NoError(t, reg.Register(surrogate.NameLS, func() surrogate.Regressor { return surrogate.NewLeastSquares() }))

			res, err := SelectBest(context.Background(), reg, nil, xTrain, yTrain, xValid, yValid)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, errBrokenModel)
		})
	}
}

func TestSelectBest_CancelledContext(t *testing.T) {
	xTrain, yTrain, xValid, yValid := quadraticSplit()

	reg := surrogate.DefaultRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := SelectBest(ctx, reg, nil, xTrain, yTrain, xValid, yValid)
	assert.ErrorIs(t, err, context.Canceled)
}
