// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report computes validation error metrics for predicted outputs.
package report

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Sentinel errors for report construction.
var (
	// ErrEmpty indicates zero-length inputs.
	ErrEmpty = errors.New("validation report requires at least one sample")

	// ErrLengthMismatch indicates true and predicted vectors differ in length.
	ErrLengthMismatch = errors.New("true and predicted vectors must have the same length")
)

// varianceEpsilon is the output-variance threshold below which lack-of-fit
// and R² are undefined.
const varianceEpsilon = 1e-10

// Report holds error metrics for one true/predicted pair.
//
// LackOfFit and RSquared are nil when the output variance is negligible:
// normalizing by (near) zero variance is a legitimate degenerate data
// state, not a failure, and must not surface as NaN.
type Report struct {
	// L2 is the Euclidean norm of the residual vector.
	L2 float64 `json:"l2"`

	// RelL2 is L2 normalized by the norm of the true outputs.
	RelL2 float64 `json:"rel_l2"`

	// MSE is the mean squared error.
	MSE float64 `json:"mse"`

	// RMSE is the root mean squared error, sqrt(MSE).
	RMSE float64 `json:"rmse"`

	// RelErrors is the per-sample relative error in percent.
	RelErrors []float64 `json:"rel_errors"`

	// MeanRelErr is the mean of RelErrors.
	MeanRelErr float64 `json:"mean_rel_err"`

	// MaxRelErr is the maximum of RelErrors.
	MaxRelErr float64 `json:"max_rel_err"`

	// MaxAbsErr is the infinity norm of the residual vector.
	MaxAbsErr float64 `json:"max_abs_err"`

	// LackOfFit is MSE normalized by output variance, in percent.
	// Nil when the output variance is negligible.
	LackOfFit *float64 `json:"lack_of_fit,omitempty"`

	// RSquared is the coefficient of determination, 1 - LackOfFit/100.
	// Nil when the output variance is negligible.
	RSquared *float64 `json:"r_squared,omitempty"`
}

// New computes a validation report for a true/predicted pair.
//
// Inputs:
//
//   - yTrue: True outputs. Must be non-empty.
//   - yPred: Predicted outputs. Must match yTrue in length.
//
// Outputs:
//
//   - *Report: The computed metrics.
//   - error: Non-nil on empty or mismatched inputs.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func New(yTrue, yPred *mat.VecDense) (*Report, error) {
	n := yTrue.Len()
	if n == 0 {
		return nil, ErrEmpty
	}
	if yPred.Len() != n {
		return nil, fmt.Errorf("%w: %d true, %d predicted", ErrLengthMismatch, n, yPred.Len())
	}

	resid := mat.NewVecDense(n, nil)
	resid.SubVec(yTrue, yPred)

	r := &Report{
		L2:        mat.Norm(resid, 2),
		MaxAbsErr: mat.Norm(resid, math.Inf(1)),
		RelErrors: make([]float64, n),
	}
	r.RelL2 = r.L2 / mat.Norm(yTrue, 2)
	r.MSE = r.L2 * r.L2 / float64(n)
	r.RMSE = math.Sqrt(r.MSE)

	for i := 0; i < n; i++ {
		r.RelErrors[i] = 100 * math.Abs(resid.AtVec(i)/yTrue.AtVec(i))
		r.MeanRelErr += r.RelErrors[i]
		if r.RelErrors[i] > r.MaxRelErr {
			r.MaxRelErr = r.RelErrors[i]
		}
	}
	r.MeanRelErr /= float64(n)

	if v := populationVariance(yTrue); math.Abs(v) > varianceEpsilon {
		lof := 100 * r.MSE / v
		r2 := 1 - lof/100
		r.LackOfFit = &lof
		r.RSquared = &r2
	}
	return r, nil
}

// populationVariance computes the variance with an n denominator, matching
// the normalization used by the lack-of-fit definition.
func populationVariance(y *mat.VecDense) float64 {
	n := y.Len()
	var sum float64
	for i := 0; i < n; i++ {
		sum += y.AtVec(i)
	}
	mean := sum / float64(n)

	var sq float64
	for i := 0; i < n; i++ {
		d := y.AtVec(i) - mean
		sq += d * d
	}
	return sq / float64(n)
}

// RMSE computes the root mean squared error between two vectors without
// building a full report.
//
// Thread Safety: This function is stateless and safe for concurrent use.
func RMSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n := yTrue.Len()
	if n == 0 {
		return 0, ErrEmpty
	}
	if yPred.Len() != n {
		return 0, fmt.Errorf("%w: %d true, %d predicted", ErrLengthMismatch, n, yPred.Len())
	}

	var sq float64
	for i := 0; i < n; i++ {
		d := yTrue.AtVec(i) - yPred.AtVec(i)
		sq += d * d
	}
	return math.Sqrt(sq / float64(n)), nil
}
