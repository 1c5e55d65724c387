// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Defaults for the Gaussian mixture estimator.
const (
	// DefaultMaxIterations bounds the EM loop per restart.
	DefaultMaxIterations = 100

	// DefaultTolerance is the mean log-likelihood change below which EM
	// is considered converged.
	DefaultTolerance = 1e-6

	// DefaultRestarts is the number of random restarts; the highest
	// log-likelihood fit wins.
	DefaultRestarts = 5

	// DefaultRegularization is added to covariance diagonals to keep
	// them positive definite.
	DefaultRegularization = 1e-6

	// DefaultSeed makes fits reproducible unless a caller overrides it.
	DefaultSeed = 1
)

// GaussianMixture estimates a full-covariance Gaussian mixture by
// expectation-maximization with k-means++ seeding and multiple restarts.
//
// Thread Safety: Fit and Predict must not run concurrently on the same
// instance; a fitted instance is safe for concurrent Predict calls.
type GaussianMixture struct {
	// Components is the number of mixture components. Must be >= 1.
	Components int

	// MaxIterations bounds the EM loop per restart.
	MaxIterations int

	// Tolerance is the mean log-likelihood change treated as converged.
	Tolerance float64

	// Restarts is the number of seeded restarts.
	Restarts int

	// Regularization is added to covariance diagonals.
	Regularization float64

	// Seed drives the restart RNGs; fits with equal seeds are identical.
	Seed uint64

	dim    int
	params *MixtureParams
	dists  []*distmv.Normal
}

// NewGaussianMixture returns an estimator for k components with default
// EM settings.
func NewGaussianMixture(k int) *GaussianMixture {
	return &GaussianMixture{
		Components:     k,
		MaxIterations:  DefaultMaxIterations,
		Tolerance:      DefaultTolerance,
		Restarts:       DefaultRestarts,
		Regularization: DefaultRegularization,
		Seed:           DefaultSeed,
	}
}

// Fit estimates mixture parameters from the rows of x.
//
// Description:
//
//	Runs Restarts independent EM fits, each seeded by k-means++, and
//	keeps the one with the highest log-likelihood. Covariance diagonals
//	are regularized throughout, so clusters collapsing onto few points
//	do not produce singular components.
//
// Inputs:
//
//   - ctx: Context for cancellation between iterations.
//   - x: n×d point matrix. Must have at least Components rows.
//
// Outputs:
//
//   - *MixtureParams: Weights, means, and full covariances per component.
//   - error: Non-nil on invalid configuration, cancellation, or when no
//     restart yields a valid mixture.
func (g *GaussianMixture) Fit(ctx context.Context, x mat.Matrix) (*MixtureParams, error) {
	if g.Components < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrComponents, g.Components)
	}
	n, d := x.Dims()
	if n < g.Components {
		return nil, fmt.Errorf("%w: %d samples for %d components", ErrTooFewSamples, n, g.Components)
	}
	g.applyDefaults()

	points := make([][]float64, n)
	for i := 0; i < n; i++ {
		points[i] = make([]float64, d)
		mat.Row(points[i], i, x)
	}

	var best *MixtureParams
	bestLL := math.Inf(-1)
	for r := 0; r < g.Restarts; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rng := rand.New(rand.NewPCG(g.Seed+uint64(r), g.Seed*0x9e3779b97f4a7c15+uint64(r)))
		params, ll, err := g.emOnce(ctx, points, rng)
		if err != nil {
			slog.Debug("EM restart failed",
				slog.Int("restart", r),
				slog.String("error", err.Error()),
			)
			continue
		}
		if ll > bestLL {
			best, bestLL = params, ll
		}
	}
	if best == nil {
		return nil, ErrNoConvergence
	}

	dists, err := frozenComponents(best)
	if err != nil {
		return nil, err
	}

	g.dim = d
	g.params = best
	g.dists = dists

	slog.Debug("Gaussian mixture fitted",
		slog.Int("components", g.Components),
		slog.Int("samples", n),
		slog.Float64("log_likelihood", bestLL),
	)
	return best, nil
}

// Predict hard-assigns every row of x to its most likely component.
func (g *GaussianMixture) Predict(x mat.Matrix) ([]int, error) {
	if g.params == nil {
		return nil, ErrNotFitted
	}
	n, d := x.Dims()
	if d != g.dim {
		return nil, fmt.Errorf("%w: got %d columns, fitted on %d", ErrDimensionMismatch, d, g.dim)
	}

	labels := make([]int, n)
	row := make([]float64, d)
	for i := 0; i < n; i++ {
		mat.Row(row, i, x)
		best := 0
		bestLP := math.Inf(-1)
		for k, dist := range g.dists {
			lp := math.Log(g.params.Weights[k]) + dist.LogProb(row)
			if lp > bestLP {
				best, bestLP = k, lp
			}
		}
		labels[i] = best
	}
	return labels, nil
}

// applyDefaults fills zero-valued tuning fields.
func (g *GaussianMixture) applyDefaults() {
	if g.MaxIterations <= 0 {
		g.MaxIterations = DefaultMaxIterations
	}
	if g.Tolerance <= 0 {
		g.Tolerance = DefaultTolerance
	}
	if g.Restarts <= 0 {
		g.Restarts = DefaultRestarts
	}
	if g.Regularization <= 0 {
		g.Regularization = DefaultRegularization
	}
	if g.Seed == 0 {
		g.Seed = DefaultSeed
	}
}

// emOnce runs one seeded EM fit to convergence.
func (g *GaussianMixture) emOnce(ctx context.Context, points [][]float64, rng *rand.Rand) (*MixtureParams, float64, error) {
	n := len(points)
	d := len(points[0])
	k := g.Components

	centers, labels := kmeansSeed(points, k, rng)
	params := g.initialParams(points, centers, labels)

	resp := make([][]float64, n)
	for i := range resp {
		resp[i] = make([]float64, k)
	}

	prevLL := math.Inf(-1)
	var ll float64
	for iter := 0; iter < g.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		dists, err := frozenComponents(params)
		if err != nil {
			return nil, 0, err
		}

		// E-step.
		ll = 0
		logp := make([]float64, k)
		for i, p := range points {
			for c := 0; c < k; c++ {
				logp[c] = math.Log(params.Weights[c]) + dists[c].LogProb(p)
			}
			lse := floats.LogSumExp(logp)
			ll += lse
			for c := 0; c < k; c++ {
				resp[i][c] = math.Exp(logp[c] - lse)
			}
		}
		ll /= float64(n)

		// M-step.
		for c := 0; c < k; c++ {
			var nk float64
			for i := 0; i < n; i++ {
				nk += resp[i][c]
			}
			if nk < 1e-10 {
				// Component lost all responsibility; keep its previous
				// parameters and let the weight floor it out.
				params.Weights[c] = 1e-10
				continue
			}
			params.Weights[c] = nk / float64(n)

			mean := make([]float64, d)
			for i, p := range points {
				for j := 0; j < d; j++ {
					mean[j] += resp[i][c] * p[j]
				}
			}
			for j := 0; j < d; j++ {
				mean[j] /= nk
			}
			params.Means[c] = mean

			cov := mat.NewSymDense(d, nil)
			diff := make([]float64, d)
			for i, p := range points {
				for j := 0; j < d; j++ {
					diff[j] = p[j] - mean[j]
				}
				for a := 0; a < d; a++ {
					for b := a; b < d; b++ {
						cov.SetSym(a, b, cov.At(a, b)+resp[i][c]*diff[a]*diff[b])
					}
				}
			}
			for a := 0; a < d; a++ {
				for b := a; b < d; b++ {
					cov.SetSym(a, b, cov.At(a, b)/nk)
				}
				cov.SetSym(a, a, cov.At(a, a)+g.Regularization)
			}
			params.Covariances[c] = cov
		}
		normalizeWeights(params.Weights)

		if math.Abs(ll-prevLL) < g.Tolerance {
			break
		}
		prevLL = ll
	}
	return params, ll, nil
}

// initialParams derives starting weights, means, and covariances from a
// hard k-means assignment.
func (g *GaussianMixture) initialParams(points [][]float64, centers [][]float64, labels []int) *MixtureParams {
	n := len(points)
	d := len(points[0])
	k := g.Components

	params := &MixtureParams{
		Weights:     make([]float64, k),
		Means:       make([][]float64, k),
		Covariances: make([]*mat.SymDense, k),
	}

	counts := make([]int, k)
	for _, label := range labels {
		counts[label]++
	}
	globalCov := scatter(points, meanOf(points), nil, g.Regularization)

	for c := 0; c < k; c++ {
		params.Weights[c] = math.Max(float64(counts[c]), 1) / float64(n)
		params.Means[c] = append([]float64(nil), centers[c][:d]...)
		if counts[c] < 2 {
			params.Covariances[c] = copySym(globalCov)
			continue
		}
		members := make([][]float64, 0, counts[c])
		for i, p := range points {
			if labels[i] == c {
				members = append(members, p)
			}
		}
		params.Covariances[c] = scatter(members, params.Means[c], nil, g.Regularization)
	}
	normalizeWeights(params.Weights)
	return params
}

// frozenComponents builds one frozen multivariate normal per component.
func frozenComponents(params *MixtureParams) ([]*distmv.Normal, error) {
	dists := make([]*distmv.Normal, len(params.Weights))
	for c := range params.Weights {
		dist, ok := distmv.NewNormal(params.Means[c], params.Covariances[c], nil)
		if !ok {
			return nil, fmt.Errorf("component %d: covariance not positive definite", c)
		}
		dists[c] = dist
	}
	return dists, nil
}

// scatter computes a covariance matrix around the given mean, optionally
// weighted, with diagonal regularization.
func scatter(points [][]float64, mean []float64, weights []float64, reg float64) *mat.SymDense {
	d := len(mean)
	cov := mat.NewSymDense(d, nil)
	var total float64
	diff := make([]float64, d)
	for i, p := range points {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		total += w
		for j := 0; j < d; j++ {
			diff[j] = p[j] - mean[j]
		}
		for a := 0; a < d; a++ {
			for b := a; b < d; b++ {
				cov.SetSym(a, b, cov.At(a, b)+w*diff[a]*diff[b])
			}
		}
	}
	if total == 0 {
		total = 1
	}
	for a := 0; a < d; a++ {
		for b := a; b < d; b++ {
			cov.SetSym(a, b, cov.At(a, b)/total)
		}
		cov.SetSym(a, a, cov.At(a, a)+reg)
	}
	return cov
}

// meanOf computes the mean point.
func meanOf(points [][]float64) []float64 {
	d := len(points[0])
	mean := make([]float64, d)
	for _, p := range points {
		for j := 0; j < d; j++ {
			mean[j] += p[j]
		}
	}
	for j := 0; j < d; j++ {
		mean[j] /= float64(len(points))
	}
	return mean
}

// copySym deep-copies a symmetric matrix.
func copySym(s *mat.SymDense) *mat.SymDense {
	d := s.SymmetricDim()
	out := mat.NewSymDense(d, nil)
	out.CopySym(s)
	return out
}

// normalizeWeights rescales weights to sum to one.
func normalizeWeights(w []float64) {
	var sum float64
	for _, v := range w {
		sum += v
	}
	if sum == 0 {
		return
	}
	for i := range w {
		w[i] /= sum
	}
}
