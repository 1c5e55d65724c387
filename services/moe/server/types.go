// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"time"

	"github.com/AleutianAI/AleutianMOE/services/moe/report"
	"github.com/go-playground/validator/v10"
)

// ServiceVersion is the mixture-of-experts service version.
const ServiceVersion = "0.1.0"

// TrainRequest is the body of POST /v1/moe/train.
type TrainRequest struct {
	// X holds one input row per sample.
	X [][]float64 `json:"x" binding:"required,min=1,rectangular"`

	// Y holds one output per sample.
	Y []float64 `json:"y" binding:"required,min=1"`

	// C optionally holds one clustering-criterion row per sample.
	C [][]float64 `json:"c,omitempty" binding:"omitempty,rectangular"`

	// NumberClusters is the expert count. Zero means one.
	NumberClusters int `json:"number_clusters" binding:"omitempty,min=1"`

	// HardRecombination selects the prediction mode. Defaults to true.
	HardRecombination *bool `json:"hard_recombination,omitempty"`

	// TuneHeaviside enables the gate scale sweep.
	TuneHeaviside bool `json:"tune_heaviside,omitempty"`

	// Excluded removes catalog entries from the automatic search. Null
	// means the default exclusions.
	Excluded []string `json:"excluded,omitempty"`
}

// TrainResponse is the result of a training run.
type TrainResponse struct {
	ID                string         `json:"id"`
	CreatedAt         time.Time      `json:"created_at"`
	NumClusters       int            `json:"num_clusters"`
	HardRecombination bool           `json:"hard_recombination"`
	Scale             float64        `json:"scale"`
	ModelNames        []string       `json:"model_names"`
	HardReport        *report.Report `json:"hard_report,omitempty"`
	SmoothReport      *report.Report `json:"smooth_report,omitempty"`
}

// PredictRequest is the body of POST /v1/moe/models/:id/predict.
type PredictRequest struct {
	// X holds one query row per prediction.
	X [][]float64 `json:"x" binding:"required,min=1,rectangular"`
}

// PredictResponse holds one prediction per query row.
type PredictResponse struct {
	Y []float64 `json:"y"`
}

// ModelSummary describes a stored model.
type ModelSummary struct {
	ID                string    `json:"id"`
	CreatedAt         time.Time `json:"created_at"`
	NumClusters       int       `json:"num_clusters"`
	HardRecombination bool      `json:"hard_recombination"`
	ModelNames        []string  `json:"model_names"`
}

// ListResponse is the body of GET /v1/moe/models.
type ListResponse struct {
	Models []string `json:"models"`
}

// HealthResponse is the body of GET /v1/moe/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// rectangularRows validates that a [][]float64 field has rows of one
// shared, non-zero length.
func rectangularRows(fl validator.FieldLevel) bool {
	rows, ok := fl.Field().Interface().([][]float64)
	if !ok {
		return false
	}
	if len(rows) == 0 {
		return true
	}
	width := len(rows[0])
	if width == 0 {
		return false
	}
	for _, row := range rows[1:] {
		if len(row) != width {
			return false
		}
	}
	return true
}
