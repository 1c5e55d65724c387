// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package surrogate provides the local regression models trained per
// cluster, and the registry the model selector searches.
//
// Every model exposes only Fit and Predict; its parameters are opaque to
// the mixture. The registry maps a model identifier to a factory and is
// iterated in insertion order so that selection tie-breaks stay
// reproducible.
package surrogate

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Sentinel errors shared by the local models and the registry.
var (
	// ErrEmptyTrainingSet indicates Fit was called with zero rows.
	ErrEmptyTrainingSet = errors.New("training set is empty")

	// ErrNotFitted indicates Predict was called before a successful Fit.
	ErrNotFitted = errors.New("model is not fitted")

	// ErrDimensionMismatch indicates prediction inputs disagree with the
	// training dimension.
	ErrDimensionMismatch = errors.New("input dimension does not match training dimension")

	// ErrSingularSystem indicates the normal or correlation system could
	// not be solved.
	ErrSingularSystem = errors.New("singular system while fitting model")

	// ErrUnknownModel indicates a model identifier absent from the registry.
	ErrUnknownModel = errors.New("unknown model identifier")

	// ErrDuplicateModel indicates an identifier registered twice.
	ErrDuplicateModel = errors.New("model identifier already registered")
)

// Model identifiers for the built-in catalog.
const (
	NameLS  = "LS"  // linear least squares
	NameQP  = "QP"  // quadratic polynomial
	NameRBF = "RBF" // Gaussian radial basis functions
	NameIDW = "IDW" // inverse distance weighting
	NameKRG = "KRG" // ordinary kriging
)

// DefaultExclusions lists model identifiers excluded from automatic
// per-cluster search. Kriging-family and structured-grid models need
// per-problem settings (bounds, kernel choices) that the automatic search
// cannot supply.
func DefaultExclusions() []string {
	return []string{NameKRG, "GEKPLS", "RMTC", "RMTB"}
}

// Regressor is a trainable local regression model.
//
// Implementations must reject an empty training set with
// ErrEmptyTrainingSet and must reject Predict before Fit with
// ErrNotFitted.
type Regressor interface {
	// Name returns the model identifier used in reports and exclusions.
	Name() string

	// Fit trains the model on x (m×d) and y (length m).
	Fit(x mat.Matrix, y *mat.VecDense) error

	// Predict evaluates the model at every row of x.
	Predict(x mat.Matrix) (*mat.VecDense, error)
}

// Factory produces a fresh, unfitted Regressor.
type Factory func() Regressor

// Registry maps model identifiers to factories, preserving insertion
// order for deterministic iteration.
//
// Thread Safety: Not safe for concurrent mutation; populate at startup.
type Registry struct {
	names     []string
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns the built-in catalog in its canonical order:
// LS, QP, RBF, IDW, KRG.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	// Registration of built-in names cannot collide.
	_ = r.Register(NameLS, func() Regressor { return NewLeastSquares() })
	_ = r.Register(NameQP, func() Regressor { return NewQuadratic() })
	_ = r.Register(NameRBF, func() Regressor { return NewRBF() })
	_ = r.Register(NameIDW, func() Regressor { return NewIDW() })
	_ = r.Register(NameKRG, func() Regressor { return NewKriging() })
	return r
}

// Register adds a factory under the given identifier.
//
// Outputs:
//
//   - error: ErrDuplicateModel when the identifier is already present.
func (r *Registry) Register(name string, f Factory) error {
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateModel, name)
	}
	r.names = append(r.names, name)
	r.factories[name] = f
	return nil
}

// Names returns the identifiers in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of registered models.
func (r *Registry) Len() int { return len(r.names) }

// New instantiates a fresh model for the given identifier.
//
// Outputs:
//
//   - Regressor: An unfitted model.
//   - error: ErrUnknownModel when the identifier is absent.
func (r *Registry) New(name string) (Regressor, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return f(), nil
}

// checkTraining validates common Fit preconditions and returns the
// training dimensions.
func checkTraining(x mat.Matrix, y *mat.VecDense) (n, d int, err error) {
	if x == nil || y == nil {
		return 0, 0, ErrEmptyTrainingSet
	}
	n, d = x.Dims()
	if n == 0 {
		return 0, 0, ErrEmptyTrainingSet
	}
	if y.Len() != n {
		return 0, 0, fmt.Errorf("%w: %d inputs, %d outputs", ErrDimensionMismatch, n, y.Len())
	}
	return n, d, nil
}

// checkPrediction validates common Predict preconditions.
func checkPrediction(x mat.Matrix, fitted bool, dim int) (n int, err error) {
	if !fitted {
		return 0, ErrNotFitted
	}
	n, d := x.Dims()
	if d != dim {
		return 0, fmt.Errorf("%w: got %d columns, trained on %d", ErrDimensionMismatch, d, dim)
	}
	return n, nil
}
