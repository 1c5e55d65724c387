// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cluster provides the clustering-provider contract consumed by
// the mixture of experts, and a default full-covariance Gaussian mixture
// estimator.
//
// The mixture core depends only on the Estimator interface; any provider
// producing component weights, means, and covariances plus hard labels is
// substitutable.
package cluster

import (
	"context"
	"errors"

	"gonum.org/v1/gonum/mat"
)

// Sentinel errors for clustering.
var (
	// ErrNotFitted indicates Predict was called before a successful Fit.
	ErrNotFitted = errors.New("estimator is not fitted")

	// ErrComponents indicates a non-positive component count.
	ErrComponents = errors.New("component count must be at least one")

	// ErrTooFewSamples indicates fewer samples than components.
	ErrTooFewSamples = errors.New("fewer samples than mixture components")

	// ErrDimensionMismatch indicates prediction inputs disagree with the
	// training dimension.
	ErrDimensionMismatch = errors.New("input dimension does not match training dimension")

	// ErrNoConvergence indicates every restart failed to produce a valid
	// mixture.
	ErrNoConvergence = errors.New("no restart produced a valid mixture")
)

// MixtureParams holds the output of a fitted mixture: one weight, mean,
// and covariance per component. Means and covariances span the full
// clustering space (inputs plus criterion columns); consumers restrict
// them as needed.
type MixtureParams struct {
	// Weights are the component mixing weights, summing to one.
	Weights []float64

	// Means holds one mean vector per component.
	Means [][]float64

	// Covariances holds one full covariance matrix per component.
	Covariances []*mat.SymDense
}

// NumComponents returns the number of mixture components.
func (p *MixtureParams) NumComponents() int { return len(p.Weights) }

// Estimator is a clustering provider: it fits mixture parameters on a
// point set and hard-assigns points to components.
type Estimator interface {
	// Fit estimates mixture parameters from the rows of x.
	Fit(ctx context.Context, x mat.Matrix) (*MixtureParams, error)

	// Predict returns the most likely component per row of x, using the
	// estimator's own posterior, and may only be called after Fit.
	Predict(x mat.Matrix) ([]int, error)
}
