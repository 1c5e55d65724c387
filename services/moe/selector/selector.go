// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package selector picks the best surrogate model for one expert by
// fitting every eligible registry entry on a training split and scoring
// it on a validation split.
package selector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/AleutianAI/AleutianMOE/services/moe/report"
	"github.com/AleutianAI/AleutianMOE/services/moe/surrogate"
	"gonum.org/v1/gonum/mat"
)

// ErrNoCandidates indicates the registry is empty or every entry is
// excluded.
var ErrNoCandidates = errors.New("no candidate models remain after exclusions")

// Result describes the winner of a model search.
type Result struct {
	// Model is the fitted winning regressor.
	Model surrogate.Regressor

	// Name is the winning registry entry.
	Name string

	// RMSE is the winner's validation error. NaN when the search was
	// bypassed because only one candidate existed.
	RMSE float64

	// Scores maps each scored candidate to its validation RMSE.
	Scores map[string]float64

	// Bypassed reports whether the search was skipped for a lone
	// candidate.
	Bypassed bool
}

// SelectBest fits every non-excluded registry entry on the training
// split and returns the one with the lowest validation RMSE.
//
// Description:
//
//	Candidates are tried in registry insertion order and ties keep the
//	earlier entry. With exactly one eligible candidate the validation
//	pass is skipped entirely and the candidate is fitted directly.
//	A candidate that fails to fit or score aborts the search; regressor
//	errors propagate unchanged, wrapped with the candidate name.
//
// Inputs:
//
//   - ctx: Context checked between candidates.
//   - registry: Candidate catalog searched in insertion order.
//   - excluded: Names removed from the search before it starts.
//   - xTrain, yTrain: Training split for candidate fitting.
//   - xValid, yValid: Validation split the candidates are scored on.
//
// Outputs:
//
//   - *Result: Fitted winner with its score sheet.
//   - error: Non-nil when no candidates remain or any candidate fails.
func SelectBest(
	ctx context.Context,
	registry *surrogate.Registry,
	excluded []string,
	xTrain mat.Matrix, yTrain *mat.VecDense,
	xValid mat.Matrix, yValid *mat.VecDense,
) (*Result, error) {
	skip := make(map[string]struct{}, len(excluded))
	for _, name := range excluded {
		skip[name] = struct{}{}
	}

	candidates := make([]string, 0, registry.Len())
	for _, name := range registry.Names() {
		if _, ok := skip[name]; !ok {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	if len(candidates) == 1 {
		model, err := registry.New(candidates[0])
		if err != nil {
			return nil, err
		}
		if err := model.Fit(xTrain, yTrain); err != nil {
			return nil, fmt.Errorf("fit %s: %w", candidates[0], err)
		}
		return &Result{
			Model:    model,
			Name:     candidates[0],
			RMSE:     math.NaN(),
			Scores:   map[string]float64{},
			Bypassed: true,
		}, nil
	}

	best := &Result{RMSE: math.Inf(1), Scores: make(map[string]float64, len(candidates))}
	for _, name := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		model, err := registry.New(name)
		if err != nil {
			return nil, err
		}
		if err := model.Fit(xTrain, yTrain); err != nil {
			return nil, fmt.Errorf("fit %s: %w", name, err)
		}
		pred, err := model.Predict(xValid)
		if err != nil {
			return nil, fmt.Errorf("predict %s: %w", name, err)
		}
		rmse, err := report.RMSE(yValid, pred)
		if err != nil {
			return nil, fmt.Errorf("score %s: %w", name, err)
		}

		best.Scores[name] = rmse
		if rmse < best.RMSE {
			best.Model = model
			best.Name = name
			best.RMSE = rmse
		}
	}

	slog.Debug("model selected",
		slog.String("model", best.Name),
		slog.Float64("rmse", best.RMSE),
		slog.Int("candidates", len(candidates)),
	)
	return best, nil
}
