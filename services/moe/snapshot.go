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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianMOE/services/moe/cluster"
	"github.com/AleutianAI/AleutianMOE/services/moe/ensemble"
	"github.com/AleutianAI/AleutianMOE/services/moe/gate"
	"github.com/AleutianAI/AleutianMOE/services/moe/report"
	"github.com/AleutianAI/AleutianMOE/services/moe/surrogate"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidSnapshot indicates a snapshot whose fields are internally
// inconsistent.
var ErrInvalidSnapshot = errors.New("snapshot is not internally consistent")

// Snapshot is a serializable capture of a trained model: the mixture
// parameters driving the gate plus every expert's fitted parameters.
type Snapshot struct {
	// ID uniquely identifies the snapshot.
	ID string `json:"id"`

	// CreatedAt is the capture time.
	CreatedAt time.Time `json:"created_at"`

	// Dim is the gated input dimension.
	Dim int `json:"dim"`

	// NumClusters is the expert count.
	NumClusters int `json:"num_clusters"`

	// HardRecombination is the fixed prediction mode.
	HardRecombination bool `json:"hard_recombination"`

	// Scale is the gate covariance scale factor in effect.
	Scale float64 `json:"scale"`

	// Weights, Means, and Covariances are the fitted mixture parameters
	// over the full clustering space. Covariances are flattened
	// row-major, one square matrix per component.
	Weights     []float64   `json:"weights"`
	Means       [][]float64 `json:"means"`
	Covariances [][]float64 `json:"covariances"`

	// ModelNames and Models hold each cluster's expert type and its
	// marshaled fitted parameters, indexed by cluster.
	ModelNames []string          `json:"model_names"`
	Models     []json.RawMessage `json:"models"`

	// HardReport and SmoothReport are the validation reports recorded
	// during training.
	HardReport   *report.Report `json:"hard_report,omitempty"`
	SmoothReport *report.Report `json:"smooth_report,omitempty"`
}

// Snapshot captures the trained model for persistence.
func (m *MixtureOfExperts) Snapshot() (*Snapshot, error) {
	if m.phase != PhaseTrained {
		return nil, fmt.Errorf("%w: phase is %s", ErrNotTrained, m.phase)
	}

	snap := &Snapshot{
		ID:                uuid.NewString(),
		CreatedAt:         time.Now().UTC(),
		Dim:               m.dim,
		NumClusters:       len(m.models),
		HardRecombination: m.opts.HardRecombination,
		Scale:             m.scale,
		Weights:           append([]float64(nil), m.params.Weights...),
		Means:             make([][]float64, len(m.params.Means)),
		Covariances:       make([][]float64, len(m.params.Covariances)),
		ModelNames:        m.ModelNames(),
		Models:            make([]json.RawMessage, len(m.models)),
		HardReport:        m.hardReport,
		SmoothReport:      m.smoothReport,
	}
	for k, mean := range m.params.Means {
		snap.Means[k] = append([]float64(nil), mean...)
	}
	for k, cov := range m.params.Covariances {
		side := cov.SymmetricDim()
		flat := make([]float64, 0, side*side)
		for i := 0; i < side; i++ {
			for j := 0; j < side; j++ {
				flat = append(flat, cov.At(i, j))
			}
		}
		snap.Covariances[k] = flat
	}
	for k, model := range m.models {
		data, err := json.Marshal(model)
		if err != nil {
			return nil, fmt.Errorf("marshal expert %d (%s): %w", k, m.modelNames[k], err)
		}
		snap.Models[k] = data
	}
	return snap, nil
}

// Restore rebuilds a trained model from a snapshot.
//
// Description:
//
//	Reconstructs the gate from the stored mixture parameters and each
//	expert from its marshaled fitted parameters via the registry. The
//	result predicts immediately; it carries no training data and cannot
//	be retrained.
//
// Inputs:
//
//   - snap: A snapshot produced by Snapshot.
//   - registry: Expert catalog used to instantiate the stored model
//     types. Nil means the default catalog.
//
// Outputs:
//
//   - *MixtureOfExperts: A trained, predict-only model.
//   - error: Non-nil on inconsistent snapshots or unknown model names.
func Restore(snap *Snapshot, registry *surrogate.Registry) (*MixtureOfExperts, error) {
	if registry == nil {
		registry = surrogate.DefaultRegistry()
	}
	k := snap.NumClusters
	if k < 1 || snap.Dim < 1 ||
		len(snap.Weights) != k || len(snap.Means) != k || len(snap.Covariances) != k ||
		len(snap.ModelNames) != k || len(snap.Models) != k {
		return nil, ErrInvalidSnapshot
	}

	params := &cluster.MixtureParams{
		Weights:     append([]float64(nil), snap.Weights...),
		Means:       make([][]float64, k),
		Covariances: make([]*mat.SymDense, k),
	}
	for c := 0; c < k; c++ {
		side := len(snap.Means[c])
		if side < snap.Dim || len(snap.Covariances[c]) != side*side {
			return nil, fmt.Errorf("%w: component %d", ErrInvalidSnapshot, c)
		}
		params.Means[c] = append([]float64(nil), snap.Means[c]...)
		sym := mat.NewSymDense(side, nil)
		for i := 0; i < side; i++ {
			for j := i; j < side; j++ {
				sym.SetSym(i, j, snap.Covariances[c][i*side+j])
			}
		}
		params.Covariances[c] = sym
	}

	g, err := gate.New(snap.Dim, params.Weights, params.Means, params.Covariances, snap.Scale)
	if err != nil {
		return nil, err
	}

	models := make([]surrogate.Regressor, k)
	for c := 0; c < k; c++ {
		model, err := registry.New(snap.ModelNames[c])
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(snap.Models[c], model); err != nil {
			return nil, fmt.Errorf("unmarshal expert %d (%s): %w", c, snap.ModelNames[c], err)
		}
		models[c] = model
	}

	rec, err := ensemble.New(g, models, snap.HardRecombination)
	if err != nil {
		return nil, err
	}

	return &MixtureOfExperts{
		opts: Options{
			NumberClusters:    k,
			HardRecombination: snap.HardRecombination,
			Scale:             snap.Scale,
			Registry:          registry,
		},
		phase:        PhaseTrained,
		dim:          snap.Dim,
		scale:        snap.Scale,
		params:       params,
		gate:         g,
		models:       models,
		modelNames:   append([]string(nil), snap.ModelNames...),
		recombiner:   rec,
		hardReport:   snap.HardReport,
		smoothReport: snap.SmoothReport,
	}, nil
}
