// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ensemble recombines per-cluster expert predictions into a
// single response, either by hard gating (each point answered by its
// most likely expert) or by smooth gating (membership-weighted blend of
// all experts).
package ensemble

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/AleutianAI/AleutianMOE/services/moe/gate"
	"github.com/AleutianAI/AleutianMOE/services/moe/surrogate"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Sentinel errors for recombination.
var (
	// ErrNoModels indicates an empty expert list.
	ErrNoModels = errors.New("ensemble requires at least one expert model")

	// ErrModelMismatch indicates the expert count disagrees with the
	// gate's cluster count.
	ErrModelMismatch = errors.New("expert count does not match gate cluster count")
)

// Recombiner evaluates a committee of fitted experts behind a Gaussian
// gate.
//
// Thread Safety: a Recombiner is immutable after New and safe for
// concurrent Predict calls.
type Recombiner struct {
	gate    *gate.Gate
	models  []surrogate.Regressor
	hard    bool
	workers int
}

// Option tunes a Recombiner.
type Option func(*Recombiner)

// WithWorkers caps the number of experts evaluated concurrently.
func WithWorkers(n int) Option {
	return func(r *Recombiner) {
		if n > 0 {
			r.workers = n
		}
	}
}

// New builds a Recombiner over fitted experts, one per gate cluster.
func New(g *gate.Gate, models []surrogate.Regressor, hard bool, opts ...Option) (*Recombiner, error) {
	if len(models) == 0 {
		return nil, ErrNoModels
	}
	if len(models) != g.NumClusters() {
		return nil, fmt.Errorf("%w: %d experts for %d clusters", ErrModelMismatch, len(models), g.NumClusters())
	}
	r := &Recombiner{
		gate:    g,
		models:  models,
		hard:    hard,
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Hard reports whether the recombiner uses hard gating.
func (r *Recombiner) Hard() bool { return r.hard }

// Predict evaluates the ensemble at every row of x.
//
// Description:
//
//	Hard gating routes each row to the expert of its most likely
//	cluster; smooth gating evaluates every expert on the full batch and
//	blends the outputs with the membership probabilities. Experts run
//	concurrently, bounded by the worker cap.
//
// Inputs:
//
//   - ctx: Context for cancelling in-flight expert evaluation.
//   - x: n×dim query matrix in the gate's input space.
//
// Outputs:
//
//   - *mat.VecDense: One prediction per input row, in row order.
//   - error: Non-nil on dimension mismatch or expert failure.
func (r *Recombiner) Predict(ctx context.Context, x mat.Matrix) (*mat.VecDense, error) {
	probs, labels, err := r.gate.MembershipBatch(x)
	if err != nil {
		return nil, err
	}
	if r.hard {
		return r.predictHard(ctx, x, labels)
	}
	return r.predictSmooth(ctx, x, probs)
}

// predictHard answers each row with the expert of its assigned cluster.
func (r *Recombiner) predictHard(ctx context.Context, x mat.Matrix, labels []int) (*mat.VecDense, error) {
	n, d := x.Dims()
	out := mat.NewVecDense(n, nil)

	groups := make([][]int, len(r.models))
	for i, label := range labels {
		groups[label] = append(groups[label], i)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for k, indices := range groups {
		if len(indices) == 0 {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sub := mat.NewDense(len(indices), d, nil)
			row := make([]float64, d)
			for i, idx := range indices {
				mat.Row(row, idx, x)
				sub.SetRow(i, row)
			}
			pred, err := r.models[k].Predict(sub)
			if err != nil {
				return fmt.Errorf("expert %d (%s): %w", k, r.models[k].Name(), err)
			}
			for i, idx := range indices {
				out.SetVec(idx, pred.AtVec(i))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// predictSmooth blends every expert's full-batch output with the
// membership probabilities.
func (r *Recombiner) predictSmooth(ctx context.Context, x mat.Matrix, probs *mat.Dense) (*mat.VecDense, error) {
	n, _ := x.Dims()
	preds := make([]*mat.VecDense, len(r.models))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for k := range r.models {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pred, err := r.models[k].Predict(x)
			if err != nil {
				return fmt.Errorf("expert %d (%s): %w", k, r.models[k].Name(), err)
			}
			preds[k] = pred
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		var v float64
		for k := range r.models {
			v += probs.At(i, k) * preds[k].AtVec(i)
		}
		out.SetVec(i, v)
	}
	return out, nil
}
