// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gate computes cluster-membership probabilities for the mixture
// of experts.
//
// A Gate is built from the weights, means, and covariances of a fitted
// Gaussian mixture. The clustering criterion dimensions are marginalized
// out at construction time: only the leading input dimensions of each
// component's mean and covariance participate in density evaluation.
package gate

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Sentinel errors for gate construction and evaluation.
var (
	// ErrNoComponents indicates the mixture has zero components.
	ErrNoComponents = errors.New("gate requires at least one mixture component")

	// ErrComponentMismatch indicates weights, means, and covariances disagree
	// on the number of components.
	ErrComponentMismatch = errors.New("weights, means, and covariances must have the same length")

	// ErrDimension indicates a mean or covariance is smaller than the input
	// dimension being gated.
	ErrDimension = errors.New("component mean or covariance smaller than gate dimension")

	// ErrNotPositiveDefinite indicates a scaled covariance block is not
	// positive definite.
	ErrNotPositiveDefinite = errors.New("scaled covariance block is not positive definite")

	// ErrScale indicates a non-positive covariance scale factor.
	ErrScale = errors.New("covariance scale factor must be positive")
)

// DefaultScale is the neutral covariance scale factor. Values below one
// sharpen the effective covariance (steeper transitions between clusters),
// values above one flatten it.
const DefaultScale = 1.0

// component is one frozen multivariate normal restricted to the gate
// dimensions.
type component struct {
	weight float64
	mean   []float64
	dist   *distmv.Normal
	chol   mat.Cholesky
}

// Gate maps input vectors to per-cluster membership probabilities.
//
// A Gate is immutable after construction. Changing the scale factor
// requires building a new Gate from the same mixture parameters.
//
// Thread Safety: Safe for concurrent use.
type Gate struct {
	dim        int
	scale      float64
	components []component
}

// New builds a Gate from Gaussian mixture parameters.
//
// Description:
//
//	Restricts each component's mean to its first dim coordinates and its
//	covariance to the top-left dim×dim block, scales the block by scale,
//	and freezes the resulting multivariate normal. Means and covariances
//	may carry trailing clustering-criterion dimensions; those are dropped
//	here, not at evaluation time.
//
// Inputs:
//
//   - dim: Number of input dimensions to gate on. Must be >= 1.
//   - weights: Mixture weight per component. Must be non-empty.
//   - means: One mean vector per component, each of length >= dim.
//   - covariances: One covariance matrix per component, each at least
//     dim×dim.
//   - scale: Covariance scale factor. Must be > 0. Use DefaultScale for
//     the untuned gate.
//
// Outputs:
//
//   - *Gate: The frozen gate.
//   - error: Non-nil on component count or dimension mismatch, or when a
//     scaled covariance block is not positive definite.
func New(dim int, weights []float64, means [][]float64, covariances []*mat.SymDense, scale float64) (*Gate, error) {
	if len(weights) == 0 {
		return nil, ErrNoComponents
	}
	if len(means) != len(weights) || len(covariances) != len(weights) {
		return nil, fmt.Errorf("%w: %d weights, %d means, %d covariances",
			ErrComponentMismatch, len(weights), len(means), len(covariances))
	}
	if dim < 1 {
		return nil, fmt.Errorf("%w: dim=%d", ErrDimension, dim)
	}
	if scale <= 0 {
		return nil, fmt.Errorf("%w: got %v", ErrScale, scale)
	}

	g := &Gate{
		dim:        dim,
		scale:      scale,
		components: make([]component, len(weights)),
	}

	for k := range weights {
		if len(means[k]) < dim {
			return nil, fmt.Errorf("%w: component %d mean has %d dims, need %d",
				ErrDimension, k, len(means[k]), dim)
		}
		if r, c := covariances[k].Dims(); r < dim || c < dim {
			return nil, fmt.Errorf("%w: component %d covariance is %dx%d, need %dx%d",
				ErrDimension, k, r, c, dim, dim)
		}

		mean := make([]float64, dim)
		copy(mean, means[k][:dim])

		sigma := mat.NewSymDense(dim, nil)
		for i := 0; i < dim; i++ {
			for j := i; j < dim; j++ {
				sigma.SetSym(i, j, scale*covariances[k].At(i, j))
			}
		}

		// With a single component the gate is constant and the density is
		// never evaluated, so a degenerate covariance is acceptable there.
		if len(weights) == 1 {
			g.components[k] = component{weight: weights[k], mean: mean}
			continue
		}

		dist, ok := distmv.NewNormal(mean, sigma, nil)
		if !ok {
			return nil, fmt.Errorf("%w: component %d", ErrNotPositiveDefinite, k)
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(sigma); !ok {
			return nil, fmt.Errorf("%w: component %d", ErrNotPositiveDefinite, k)
		}
		g.components[k] = component{
			weight: weights[k],
			mean:   mean,
			dist:   dist,
			chol:   chol,
		}
	}

	return g, nil
}

// Dim returns the number of input dimensions the gate evaluates.
func (g *Gate) Dim() int { return g.dim }

// NumClusters returns the number of mixture components.
func (g *Gate) NumClusters() int { return len(g.components) }

// Scale returns the covariance scale factor the gate was built with.
func (g *Gate) Scale() float64 { return g.scale }

// Membership computes the cluster-membership probabilities for one sample.
//
// Description:
//
//	Evaluates weight_k * pdf_k(x) per component and normalizes by the sum.
//	When the sum is exactly zero (all components equally improbable, e.g.
//	deep in the tails), the raw unnormalized values are returned instead
//	of dividing by zero. The hard label is the index of the maximum
//	probability; the first index wins ties.
//
// Inputs:
//
//   - x: Sample of length Dim().
//
// Outputs:
//
//   - []float64: Membership probability per cluster.
//   - int: Hard cluster label.
//   - error: Non-nil when x has the wrong length.
//
// Thread Safety: Safe for concurrent use.
func (g *Gate) Membership(x []float64) ([]float64, int, error) {
	if len(x) != g.dim {
		return nil, 0, fmt.Errorf("%w: sample has %d dims, gate expects %d", ErrDimension, len(x), g.dim)
	}

	k := len(g.components)
	if k == 1 {
		return []float64{1}, 0, nil
	}

	prob := make([]float64, k)
	var sum float64
	for i, c := range g.components {
		v := c.weight * math.Exp(c.dist.LogProb(x))
		prob[i] = v
		sum += v
	}
	if sum != 0 {
		for i := range prob {
			prob[i] /= sum
		}
	}

	label := 0
	for i := 1; i < k; i++ {
		if prob[i] > prob[label] {
			label = i
		}
	}
	return prob, label, nil
}

// MembershipBatch computes membership probabilities for every row of x.
//
// Outputs:
//
//   - *mat.Dense: n×K matrix of probabilities, row order matching x.
//   - []int: Hard label per row.
//   - error: Non-nil when x has the wrong column count.
//
// Thread Safety: Safe for concurrent use.
func (g *Gate) MembershipBatch(x mat.Matrix) (*mat.Dense, []int, error) {
	n, d := x.Dims()
	if d != g.dim {
		return nil, nil, fmt.Errorf("%w: batch has %d columns, gate expects %d", ErrDimension, d, g.dim)
	}

	probs := mat.NewDense(n, len(g.components), nil)
	labels := make([]int, n)
	row := make([]float64, d)
	for i := 0; i < n; i++ {
		mat.Row(row, i, x)
		p, label, err := g.Membership(row)
		if err != nil {
			return nil, nil, err
		}
		probs.SetRow(i, p)
		labels[i] = label
	}
	return probs, labels, nil
}

// MembershipGradient computes the analytic gradient of each cluster's
// membership probability with respect to the input.
//
// Description:
//
//	Applies the quotient rule to prob_k = u_k / v with
//	u_k = weight_k * pdf_k(x) and v = Σ_j u_j, using
//	∇u_k = -u_k · Σ_k⁻¹ (x - µ_k) and ∇v = Σ_j ∇u_j. With a single
//	component the probability is constant and the gradient is zero. When
//	v is exactly zero the gradient is reported as zero as well, mirroring
//	the unnormalized-probability convention of Membership.
//
// Inputs:
//
//   - x: Sample of length Dim().
//
// Outputs:
//
//   - *mat.Dense: K×Dim() gradient matrix; row k is ∇prob_k.
//   - error: Non-nil when x has the wrong length.
//
// Thread Safety: Safe for concurrent use.
func (g *Gate) MembershipGradient(x []float64) (*mat.Dense, error) {
	if len(x) != g.dim {
		return nil, fmt.Errorf("%w: sample has %d dims, gate expects %d", ErrDimension, len(x), g.dim)
	}

	k := len(g.components)
	grad := mat.NewDense(k, g.dim, nil)
	if k == 1 {
		return grad, nil
	}

	u := make([]float64, k)
	uprime := make([]*mat.VecDense, k)
	vprime := mat.NewVecDense(g.dim, nil)
	var v float64

	diff := mat.NewVecDense(g.dim, nil)
	solved := mat.NewVecDense(g.dim, nil)
	for i := range g.components {
		c := &g.components[i]
		u[i] = c.weight * math.Exp(c.dist.LogProb(x))
		v += u[i]

		for j := 0; j < g.dim; j++ {
			diff.SetVec(j, x[j]-c.mean[j])
		}
		if err := c.chol.SolveVecTo(solved, diff); err != nil {
			return nil, fmt.Errorf("solving covariance system for component %d: %w", i, err)
		}

		up := mat.NewVecDense(g.dim, nil)
		up.ScaleVec(-u[i], solved)
		uprime[i] = up
		vprime.AddVec(vprime, up)
	}

	if v == 0 {
		return grad, nil
	}

	row := mat.NewVecDense(g.dim, nil)
	for i := 0; i < k; i++ {
		// (v·u'_k - u_k·v') / v²
		row.ScaleVec(v, uprime[i])
		row.AddScaledVec(row, -u[i], vprime)
		row.ScaleVec(1/(v*v), row)
		grad.SetRow(i, row.RawVector().Data)
	}
	return grad, nil
}
