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
	"fmt"

	"github.com/AleutianAI/AleutianMOE/services/moe/cluster"
	"github.com/AleutianAI/AleutianMOE/services/moe/gate"
	"github.com/AleutianAI/AleutianMOE/services/moe/surrogate"
	"gonum.org/v1/gonum/mat"
)

// Phase is a stage of the training state machine. Any error during a
// transition resets the model to PhaseConfigured; there is no partial
// success.
type Phase int

// Training phases, in transition order.
const (
	PhaseConfigured Phase = iota
	PhaseSplit
	PhaseClustered
	PhasePerClusterFit
	PhaseValidated
	PhaseRefit
	PhaseTrained
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseConfigured:
		return "configured"
	case PhaseSplit:
		return "split"
	case PhaseClustered:
		return "clustered"
	case PhasePerClusterFit:
		return "per_cluster_fit"
	case PhaseValidated:
		return "validated"
	case PhaseRefit:
		return "refit"
	case PhaseTrained:
		return "trained"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// Options configures a MixtureOfExperts.
type Options struct {
	// X is the required n×d training input matrix.
	X *mat.Dense

	// Y is the required n-vector of training outputs.
	Y *mat.VecDense

	// C is an optional n×k clustering-criterion matrix. Clustering runs
	// on [X | C]; when nil, Y is used as a one-column criterion.
	C *mat.Dense

	// NumberClusters is the number of experts. Must be >= 1; zero
	// requests automatic selection, which is rejected.
	NumberClusters int

	// HardRecombination selects hard gating for trained predictions.
	// Smooth gating blends all experts by membership probability.
	HardRecombination bool

	// Scale is the gate covariance scale factor. DefaultScale leaves the
	// mixture covariances untouched.
	Scale float64

	// TuneHeaviside sweeps the gate scale over a fixed grid after the
	// validation pass and keeps the scale with the lowest hard-gating
	// validation RMSE. Only meaningful with more than one cluster.
	TuneHeaviside bool

	// Estimator is the clustering provider. Defaults to a Gaussian
	// mixture fitted by EM.
	Estimator cluster.Estimator

	// Registry is the candidate expert catalog. Defaults to the full
	// built-in catalog.
	Registry *surrogate.Registry

	// Excluded names registry entries removed from the automatic search.
	// A nil slice means the default exclusions; an empty non-nil slice
	// excludes nothing.
	Excluded []string

	// ValidationX and ValidationY supply an external validation set.
	// When nil, a deterministic 90/10 round-robin split of the training
	// data is used.
	ValidationX *mat.Dense
	ValidationY *mat.VecDense

	// Workers caps concurrent expert evaluation during prediction.
	// Zero means one worker per logical CPU.
	Workers int
}

// DefaultOptions returns the baseline configuration: one cluster, hard
// recombination, neutral gate scale.
func DefaultOptions() Options {
	return Options{
		NumberClusters:    1,
		HardRecombination: true,
		Scale:             gate.DefaultScale,
	}
}

// Validate checks the configuration for fatal errors.
func (o *Options) Validate() error {
	if o.X == nil || o.Y == nil {
		return ErrMissingInputs
	}
	n, d := o.X.Dims()
	if n == 0 {
		return ErrMissingInputs
	}
	if o.Y.Len() != n {
		return fmt.Errorf("%w: X has %d rows, Y has %d", ErrRowMismatch, n, o.Y.Len())
	}
	if o.C != nil {
		if cn, _ := o.C.Dims(); cn != n {
			return fmt.Errorf("%w: X has %d rows, C has %d", ErrRowMismatch, n, cn)
		}
	}
	if o.NumberClusters == 0 {
		return ErrAutoClusterUnsupported
	}
	if o.NumberClusters < 0 {
		return fmt.Errorf("%w: got %d", ErrClusterCount, o.NumberClusters)
	}
	if o.Scale <= 0 {
		return fmt.Errorf("%w: got %v", gate.ErrScale, o.Scale)
	}
	if (o.ValidationX == nil) != (o.ValidationY == nil) {
		return ErrValidationMismatch
	}
	if o.ValidationX != nil {
		vn, vd := o.ValidationX.Dims()
		if vn == 0 || vn != o.ValidationY.Len() {
			return fmt.Errorf("%w: validation X has %d rows, Y has %d", ErrValidationMismatch, vn, o.ValidationY.Len())
		}
		if vd != d {
			return fmt.Errorf("%w: validation X has %d columns, training X has %d", ErrValidationMismatch, vd, d)
		}
	}
	return nil
}
