// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// twoComponentGate builds the reference two-cluster gate used across tests:
// weight 0.6 at (0.25, 0.25) and weight 0.4 at (0.75, 0.75), both with
// isotropic covariance 0.05·I.
func twoComponentGate(t *testing.T, scale float64) *Gate {
	t.Helper()
	g, err := New(2,
		[]float64{0.6, 0.4},
		[][]float64{{0.25, 0.25}, {0.75, 0.75}},
		[]*mat.SymDense{
			mat.NewSymDense(2, []float64{0.05, 0, 0, 0.05}),
			mat.NewSymDense(2, []float64{0.05, 0, 0, 0.05}),
		},
		scale,
	)
	require.NoError(t, err)
	return g
}

func TestNew_Validation(t *testing.T) {
	cov := mat.NewSymDense(2, []float64{1, 0, 0, 1})

	tests := []struct {
		name    string
		dim     int
		weights []float64
		means   [][]float64
		covs    []*mat.SymDense
		scale   float64
		wantErr error
	}{
		{
			name:    "no components",
			dim:     2,
			weights: nil,
			scale:   1,
			wantErr: ErrNoComponents,
		},
		{
			name:    "component count mismatch",
			dim:     2,
			weights: []float64{0.5, 0.5},
			means:   [][]float64{{0, 0}},
			covs:    []*mat.SymDense{cov, cov},
			scale:   1,
			wantErr: ErrComponentMismatch,
		},
		{
			name:    "mean shorter than dim",
			dim:     3,
			weights: []float64{1},
			means:   [][]float64{{0, 0}},
			covs:    []*mat.SymDense{cov},
			scale:   1,
			wantErr: ErrDimension,
		},
		{
			name:    "non-positive scale",
			dim:     2,
			weights: []float64{1},
			means:   [][]float64{{0, 0}},
			covs:    []*mat.SymDense{cov},
			scale:   0,
			wantErr: ErrScale,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.dim, tt.weights, tt.means, tt.covs, tt.scale)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_NotPositiveDefinite(t *testing.T) {
	// A zero covariance cannot be factorized when densities are needed.
	zero := mat.NewSymDense(2, nil)
	_, err := New(2,
		[]float64{0.5, 0.5},
		[][]float64{{0, 0}, {1, 1}},
		[]*mat.SymDense{zero, zero},
		DefaultScale,
	)
	assert.ErrorIs(t, err, ErrNotPositiveDefinite)
}

func TestNew_SingleComponentAllowsDegenerateCovariance(t *testing.T) {
	// With K=1 the density is never evaluated, so a singular covariance
	// must not fail construction.
	zero := mat.NewSymDense(2, nil)
	g, err := New(2, []float64{1}, [][]float64{{0, 0}}, []*mat.SymDense{zero}, DefaultScale)
	require.NoError(t, err)

	prob, label, err := g.Membership([]float64{3, -4})
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, prob)
	assert.Equal(t, 0, label)

	grad, err := g.MembershipGradient([]float64{3, -4})
	require.NoError(t, err)
	assert.Equal(t, 0.0, mat.Norm(grad, 1))
}

func TestMembership_UnitSquareCorners(t *testing.T) {
	g := twoComponentGate(t, DefaultScale)

	// Corners (0,0), (0,1), (1,0) are nearest to (or equidistant from) the
	// heavier component; only (1,1) flips to the second cluster. On the
	// equidistant diagonal corners the 0.6 weight breaks the tie.
	corners := [][]float64{{0, 0}, {0, 1}, {1, 0}, {1, 1}}
	wantLabels := []int{0, 0, 0, 1}

	for i, x := range corners {
		prob, label, err := g.Membership(x)
		require.NoError(t, err)
		assert.Equal(t, wantLabels[i], label, "corner %v", x)

		sum := 0.0
		for _, p := range prob {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "corner %v", x)
	}
}

func TestMembership_ProbabilitiesSumToOne(t *testing.T) {
	g := twoComponentGate(t, DefaultScale)

	points := [][]float64{
		{0.5, 0.5}, {0.1, 0.9}, {-0.3, 0.2}, {1.2, 0.7}, {0.25, 0.25},
	}
	for _, x := range points {
		prob, _, err := g.Membership(x)
		require.NoError(t, err)
		sum := 0.0
		for _, p := range prob {
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "point %v", x)
	}
}

func TestMembership_ZeroSumLeavesRawValues(t *testing.T) {
	// Both densities underflow to exactly zero this far in the tails; the
	// gate must report the raw (zero) values instead of dividing by zero.
	g, err := New(1,
		[]float64{0.5, 0.5},
		[][]float64{{0}, {1}},
		[]*mat.SymDense{
			mat.NewSymDense(1, []float64{1e-4}),
			mat.NewSymDense(1, []float64{1e-4}),
		},
		DefaultScale,
	)
	require.NoError(t, err)

	prob, label, err := g.Membership([]float64{1e6})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, prob)
	assert.Equal(t, 0, label)
}

func TestMembership_DimensionError(t *testing.T) {
	g := twoComponentGate(t, DefaultScale)
	_, _, err := g.Membership([]float64{0.5})
	assert.ErrorIs(t, err, ErrDimension)
}

func TestMembershipBatch_MatchesPerSample(t *testing.T) {
	g := twoComponentGate(t, DefaultScale)

	x := mat.NewDense(4, 2, []float64{
		0, 0,
		0, 1,
		1, 0,
		1, 1,
	})
	probs, labels, err := g.MembershipBatch(x)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		row := []float64{x.At(i, 0), x.At(i, 1)}
		wantProb, wantLabel, err := g.Membership(row)
		require.NoError(t, err)
		assert.Equal(t, wantLabel, labels[i], "row %d", i)
		for k, p := range wantProb {
			assert.InDelta(t, p, probs.At(i, k), 1e-12, "row %d cluster %d", i, k)
		}
	}
}

func TestMembershipGradient_FiniteDifference(t *testing.T) {
	g := twoComponentGate(t, DefaultScale)

	points := [][]float64{{0.5, 0.5}, {0.3, 0.6}, {0.9, 0.1}}
	const h = 1e-6

	for _, x := range points {
		grad, err := g.MembershipGradient(x)
		require.NoError(t, err)

		for k := 0; k < g.NumClusters(); k++ {
			for j := 0; j < g.Dim(); j++ {
				hi := append([]float64(nil), x...)
				lo := append([]float64(nil), x...)
				hi[j] += h
				lo[j] -= h

				probHi, _, err := g.Membership(hi)
				require.NoError(t, err)
				probLo, _, err := g.Membership(lo)
				require.NoError(t, err)

				numeric := (probHi[k] - probLo[k]) / (2 * h)
				assert.InDelta(t, numeric, grad.At(k, j), 1e-5,
					"point %v cluster %d dim %d", x, k, j)
			}
		}
	}
}

func TestMembershipGradient_ZeroSum(t *testing.T) {
	g, err := New(1,
		[]float64{0.5, 0.5},
		[][]float64{{0}, {1}},
		[]*mat.SymDense{
			mat.NewSymDense(1, []float64{1e-4}),
			mat.NewSymDense(1, []float64{1e-4}),
		},
		DefaultScale,
	)
	require.NoError(t, err)

	grad, err := g.MembershipGradient([]float64{1e6})
	require.NoError(t, err)
	assert.Equal(t, 0.0, mat.Norm(grad, 1))
}

func TestScale_SharpensTransition(t *testing.T) {
	neutral := twoComponentGate(t, DefaultScale)
	sharp := twoComponentGate(t, 0.25)

	// Off-center, the dominant cluster's probability grows as the
	// covariance shrinks.
	x := []float64{0.35, 0.35}
	pn, _, err := neutral.Membership(x)
	require.NoError(t, err)
	ps, _, err := sharp.Membership(x)
	require.NoError(t, err)
	assert.Greater(t, ps[0], pn[0])
}
