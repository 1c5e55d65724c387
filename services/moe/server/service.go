// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the mixture-of-experts trainer and stored
// models over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/AleutianMOE/services/moe"
	"github.com/AleutianAI/AleutianMOE/services/moe/store"
	"github.com/AleutianAI/AleutianMOE/services/moe/surrogate"
	"gonum.org/v1/gonum/mat"
)

// Service mediates between HTTP handlers, the trainer, and the
// snapshot store. Restored models are cached so repeated predictions
// skip deserialization.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	store    *store.Store
	registry *surrogate.Registry

	mu    sync.RWMutex
	cache map[string]*moe.MixtureOfExperts
}

// NewService builds a service over the given snapshot store. A nil
// registry means the default expert catalog.
func NewService(st *store.Store, registry *surrogate.Registry) *Service {
	if registry == nil {
		registry = surrogate.DefaultRegistry()
	}
	return &Service{
		store:    st,
		registry: registry,
		cache:    make(map[string]*moe.MixtureOfExperts),
	}
}

// Train trains a model from the request data, persists its snapshot,
// and returns the snapshot.
func (s *Service) Train(ctx context.Context, req *TrainRequest) (*moe.Snapshot, error) {
	x := denseFromRows(req.X)
	y := mat.NewVecDense(len(req.Y), append([]float64(nil), req.Y...))

	opts := moe.DefaultOptions()
	opts.X = x
	opts.Y = y
	opts.Registry = s.registry
	opts.Excluded = req.Excluded
	opts.TuneHeaviside = req.TuneHeaviside
	if req.C != nil {
		opts.C = denseFromRows(req.C)
	}
	if req.NumberClusters > 0 {
		opts.NumberClusters = req.NumberClusters
	}
	if req.HardRecombination != nil {
		opts.HardRecombination = *req.HardRecombination
	}

	model, err := moe.New(opts)
	if err != nil {
		return nil, err
	}
	if err := model.Train(ctx); err != nil {
		return nil, err
	}

	snap, err := model.Snapshot()
	if err != nil {
		return nil, err
	}
	if err := s.store.Put(ctx, snap); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[snap.ID] = model
	s.mu.Unlock()

	slog.Info("model trained and stored",
		slog.String("id", snap.ID),
		slog.Int("clusters", snap.NumClusters),
		slog.Bool("hard", snap.HardRecombination),
	)
	return snap, nil
}

// Predict evaluates a stored model at the given query rows.
func (s *Service) Predict(ctx context.Context, id string, rows [][]float64) ([]float64, error) {
	model, err := s.model(ctx, id)
	if err != nil {
		return nil, err
	}

	pred, err := model.PredictValues(ctx, denseFromRows(rows))
	if err != nil {
		return nil, err
	}
	out := make([]float64, pred.Len())
	for i := range out {
		out[i] = pred.AtVec(i)
	}
	return out, nil
}

// GetModel returns a stored model's summary.
func (s *Service) GetModel(ctx context.Context, id string) (*ModelSummary, error) {
	snap, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &ModelSummary{
		ID:                snap.ID,
		CreatedAt:         snap.CreatedAt,
		NumClusters:       snap.NumClusters,
		HardRecombination: snap.HardRecombination,
		ModelNames:        snap.ModelNames,
	}, nil
}

// DeleteModel removes a stored model and evicts its cache entry.
func (s *Service) DeleteModel(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.cache, id)
	s.mu.Unlock()
	return nil
}

// ListModels returns the stored model IDs.
func (s *Service) ListModels(ctx context.Context) ([]string, error) {
	return s.store.List(ctx)
}

// model returns a cached trained model, restoring it from the store on
// a cache miss.
func (s *Service) model(ctx context.Context, id string) (*moe.MixtureOfExperts, error) {
	s.mu.RLock()
	model, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return model, nil
	}

	snap, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	model, err = moe.Restore(snap, s.registry)
	if err != nil {
		return nil, fmt.Errorf("restore model %s: %w", id, err)
	}

	s.mu.Lock()
	s.cache[id] = model
	s.mu.Unlock()
	return model, nil
}

// denseFromRows copies request rows into a matrix. Rows are validated
// as rectangular at binding time.
func denseFromRows(rows [][]float64) *mat.Dense {
	out := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, row := range rows {
		out.SetRow(i, row)
	}
	return out
}
