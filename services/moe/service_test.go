// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package moe

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/AleutianAI/AleutianMOE/services/moe/cluster"
	"github.com/AleutianAI/AleutianMOE/services/moe/surrogate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// parabolaData samples y = x² plus small noise on a uniform grid in [0, 1].
func parabolaData(n int) (*mat.Dense, *mat.VecDense) {
	rng := rand.New(rand.NewPCG(9, 9))
	x := mat.NewDense(n, 1, nil)
	y := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		xi := float64(i) / float64(n-1)
		x.Set(i, 0, xi)
		y.SetVec(i, xi*xi+0.005*rng.NormFloat64())
	}
	return x, y
}

// linearOnlyRegistry restricts the expert catalog to least squares so a
// two-cluster fit is piecewise linear.
func linearOnlyRegistry(t *testing.T) *surrogate.Registry {
	t.Helper()
	r := surrogate.NewRegistry()
	require.NoError(t, r.Register(surrogate.NameLS, func() surrogate.Regressor { return surrogate.NewLeastSquares() }))
	return r
}

// spyEstimator records whether clustering ever ran.
type spyEstimator struct {
	fitCalled bool
}

func (s *spyEstimator) Fit(_ context.Context, _ mat.Matrix) (*cluster.MixtureParams, error) {
	s.fitCalled = true
	return nil, cluster.ErrNoConvergence
}

func (s *spyEstimator) Predict(_ mat.Matrix) ([]int, error) {
	return nil, cluster.ErrNotFitted
}

func TestTrain_ParabolaTwoClustersHard(t *testing.T) {
	x, y := parabolaData(60)

	opts := DefaultOptions()
	opts.X = x
	opts.Y = y
	opts.NumberClusters = 2
	opts.Registry = linearOnlyRegistry(t)
	opts.Excluded = []string{}

	m, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, m.Train(context.Background()))
	assert.Equal(t, PhaseTrained, m.Phase())

	// Two linear experts approximate the parabola well at the middle.
	pred, err := m.PredictValues(context.Background(), mat.NewDense(1, 1, []float64{0.5}))
	require.NoError(t, err)
	assert.InDelta(t, 0.25, pred.AtVec(0), 0.1)

	// Hard gating over linear experts is piecewise linear: somewhere in
	// the domain the finite-difference slope jumps at the cluster
	// boundary, and away from it the slope is locally constant.
	grid := mat.NewDense(201, 1, nil)
	for i := 0; i < 201; i++ {
		grid.Set(i, 0, float64(i)/200)
	}
	preds, err := m.PredictValues(context.Background(), grid)
	require.NoError(t, err)

	maxJump := 0.0
	prevSlope := math.NaN()
	for i := 1; i < 201; i++ {
		slope := (preds.AtVec(i) - preds.AtVec(i-1)) * 200
		if !math.IsNaN(prevSlope) {
			if jump := math.Abs(slope - prevSlope); jump > maxJump {
				maxJump = jump
			}
		}
		prevSlope = slope
	}
	assert.Greater(t, maxJump, 0.3, "expected a slope discontinuity at the cluster boundary")
}

func TestTrain_SingleClusterHardEqualsSmooth(t *testing.T) {
	x, y := parabolaData(40)
	queries := mat.NewDense(5, 1, []float64{0, 0.25, 0.5, 0.75, 1})

	predict := func(hard bool) *mat.VecDense {
		opts := DefaultOptions()
		opts.X = x
		opts.Y = y
		opts.HardRecombination = hard
		opts.Registry = linearOnlyRegistry(t)
		opts.Excluded = []string{}

		m, err := New(opts)
		require.NoError(t, err)
		require.NoError(t, m.Train(context.Background()))

		pred, err := m.PredictValues(context.Background(), queries)
		require.NoError(t, err)
		return pred
	}

	hp, sp := predict(true), predict(false)
	for i := 0; i < 5; i++ {
		assert.InDelta(t, hp.AtVec(i), sp.AtVec(i), 1e-12, "row %d", i)
	}
}

func TestTrain_ClusterCapCheckedBeforeClustering(t *testing.T) {
	x, y := parabolaData(20)

	spy := &spyEstimator{}
	opts := DefaultOptions()
	opts.X = x
	opts.Y = y
	opts.NumberClusters = 5 // 18 training rows allow at most 2
	opts.Estimator = spy

	m, err := New(opts)
	require.NoError(t, err)

	err = m.Train(context.Background())
	assert.ErrorIs(t, err, ErrTooManyClusters)
	assert.False(t, spy.fitCalled, "clustering must not run when the cap is violated")
	assert.Equal(t, PhaseConfigured, m.Phase())
}

func TestNew_ConfigurationErrors(t *testing.T) {
	x, y := parabolaData(20)

	t.Run("missing inputs", func(t *testing.T) {
		_, err := New(DefaultOptions())
		assert.ErrorIs(t, err, ErrMissingInputs)
	})

	t.Run("row mismatch", func(t *testing.T) {
		opts := DefaultOptions()
		opts.X = x
		opts.Y = mat.NewVecDense(5, nil)
		_, err := New(opts)
		assert.ErrorIs(t, err, ErrRowMismatch)
	})

	t.Run("criterion row mismatch", func(t *testing.T) {
		opts := DefaultOptions()
		opts.X = x
		opts.Y = y
		opts.C = mat.NewDense(3, 1, nil)
		_, err := New(opts)
		assert.ErrorIs(t, err, ErrRowMismatch)
	})

	t.Run("automatic cluster count rejected", func(t *testing.T) {
		opts := DefaultOptions()
		opts.X = x
		opts.Y = y
		opts.NumberClusters = 0
		_, err := New(opts)
		assert.ErrorIs(t, err, ErrAutoClusterUnsupported)
	})

	t.Run("lone validation matrix", func(t *testing.T) {
		opts := DefaultOptions()
		opts.X = x
		opts.Y = y
		opts.ValidationX = mat.NewDense(2, 1, nil)
		_, err := New(opts)
		assert.ErrorIs(t, err, ErrValidationMismatch)
	})
}

func TestTrain_RefitPreservesShape(t *testing.T) {
	x, y := parabolaData(60)

	opts := DefaultOptions()
	opts.X = x
	opts.Y = y
	opts.NumberClusters = 2
	opts.Registry = linearOnlyRegistry(t)
	opts.Excluded = []string{}

	m, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, m.Train(context.Background()))

	assert.Equal(t, 2, m.NumClusters())
	assert.True(t, m.Hard())
	assert.Len(t, m.ModelNames(), 2)
	for _, name := range m.ModelNames() {
		assert.Equal(t, surrogate.NameLS, name)
	}

	hard, smooth := m.Reports()
	require.NotNil(t, hard)
	require.NotNil(t, smooth)
	assert.False(t, math.IsNaN(hard.RMSE))
	assert.False(t, math.IsNaN(smooth.RMSE))
}

func TestTrain_ExternalValidationSet(t *testing.T) {
	x, y := parabolaData(40)
	xv, yv := parabolaData(8)

	opts := DefaultOptions()
	opts.X = x
	opts.Y = y
	opts.ValidationX = xv
	opts.ValidationY = yv
	opts.Registry = linearOnlyRegistry(t)
	opts.Excluded = []string{}

	m, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, m.Train(context.Background()))
	assert.Equal(t, PhaseTrained, m.Phase())
}

func TestTrain_ExternalValidationSkipsRefit(t *testing.T) {
	x, y := parabolaData(40)
	xv, yv := parabolaData(8)

	// With an external validation set the search already fits on the
	// full dataset, so training must keep the search-phase experts
	// instead of constructing and fitting a second generation.
	instances := 0
	reg := surrogate.NewRegistry()
	require.NoError(t, reg.Register(surrogate.NameLS, func() surrogate.Regressor {
		instances++
		return surrogate.NewLeastSquares()
	}))

	opts := DefaultOptions()
	opts.X = x
	opts.Y = y
	opts.ValidationX = xv
	opts.ValidationY = yv
	opts.Registry = reg
	opts.Excluded = []string{}

	m, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, m.Train(context.Background()))

	assert.Equal(t, 1, instances, "search-phase expert must be reused, not refitted")

	pred, err := m.PredictValues(context.Background(), mat.NewDense(1, 1, []float64{0.5}))
	require.NoError(t, err)
	assert.False(t, math.IsNaN(pred.AtVec(0)))
}

func TestTrain_HeavisideTuningKeepsGridScale(t *testing.T) {
	x, y := parabolaData(60)

	opts := DefaultOptions()
	opts.X = x
	opts.Y = y
	opts.NumberClusters = 2
	opts.TuneHeaviside = true
	opts.Registry = linearOnlyRegistry(t)
	opts.Excluded = []string{}

	m, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, m.Train(context.Background()))

	assert.Greater(t, m.Scale(), 0.0)
	assert.LessOrEqual(t, m.Scale(), 2.1+1e-9)
}

func TestPredictValues_BeforeTraining(t *testing.T) {
	x, y := parabolaData(20)

	opts := DefaultOptions()
	opts.X = x
	opts.Y = y
	m, err := New(opts)
	require.NoError(t, err)

	_, err = m.PredictValues(context.Background(), mat.NewDense(1, 1, []float64{0.5}))
	assert.ErrorIs(t, err, ErrNotTrained)

	_, err = m.MembershipGradient([]float64{0.5})
	assert.ErrorIs(t, err, ErrNotTrained)
}

func TestMembershipGradient_SingleClusterIsZero(t *testing.T) {
	x, y := parabolaData(30)

	opts := DefaultOptions()
	opts.X = x
	opts.Y = y
	opts.Registry = linearOnlyRegistry(t)
	opts.Excluded = []string{}

	m, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, m.Train(context.Background()))

	grad, err := m.MembershipGradient([]float64{0.5})
	require.NoError(t, err)
	r, c := grad.Dims()
	assert.Equal(t, 1, r)
	assert.Equal(t, 1, c)
	assert.Zero(t, grad.At(0, 0))
}
