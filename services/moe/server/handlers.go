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
	"errors"
	"log/slog"
	"net/http"

	"github.com/AleutianAI/AleutianMOE/services/moe"
	"github.com/AleutianAI/AleutianMOE/services/moe/gate"
	"github.com/AleutianAI/AleutianMOE/services/moe/selector"
	"github.com/AleutianAI/AleutianMOE/services/moe/store"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handlers contains the HTTP handlers for the mixture-of-experts
// service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// getOrCreateRequestID returns the X-Request-ID header or a new UUID.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// HandleTrain handles POST /v1/moe/train.
//
// Response:
//
//	200 OK: TrainResponse
//	400 Bad Request: Validation or configuration error
//	500 Internal Server Error: Training failure
func (h *Handlers) HandleTrain(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleTrain")

	var req TrainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	if len(req.X) != len(req.Y) || (req.C != nil && len(req.C) != len(req.X)) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: moe.ErrRowMismatch.Error(),
			Code:  "ROW_MISMATCH",
		})
		return
	}

	logger.Info("Training model",
		"rows", len(req.X),
		"clusters", req.NumberClusters,
	)

	snap, err := h.svc.Train(c.Request.Context(), &req)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "TRAIN_FAILED"

		switch {
		case errors.Is(err, moe.ErrMissingInputs),
			errors.Is(err, moe.ErrRowMismatch),
			errors.Is(err, moe.ErrClusterCount),
			errors.Is(err, moe.ErrAutoClusterUnsupported),
			errors.Is(err, moe.ErrTooManyClusters),
			errors.Is(err, moe.ErrValidationMismatch),
			errors.Is(err, gate.ErrScale),
			errors.Is(err, selector.ErrNoCandidates):
			statusCode = http.StatusBadRequest
			errCode = "INVALID_CONFIGURATION"
		case errors.Is(err, moe.ErrEmptyCluster):
			statusCode = http.StatusUnprocessableEntity
			errCode = "EMPTY_CLUSTER"
		}

		logger.Error("Training failed", "error", err)
		c.JSON(statusCode, ErrorResponse{Error: err.Error(), Code: errCode})
		return
	}

	logger.Info("Model trained", "id", snap.ID, "clusters", snap.NumClusters)
	c.JSON(http.StatusOK, TrainResponse{
		ID:                snap.ID,
		CreatedAt:         snap.CreatedAt,
		NumClusters:       snap.NumClusters,
		HardRecombination: snap.HardRecombination,
		Scale:             snap.Scale,
		ModelNames:        snap.ModelNames,
		HardReport:        snap.HardReport,
		SmoothReport:      snap.SmoothReport,
	})
}

// HandlePredict handles POST /v1/moe/models/:id/predict.
//
// Response:
//
//	200 OK: PredictResponse
//	400 Bad Request: Validation error
//	404 Not Found: Unknown model ID
//	500 Internal Server Error: Prediction failure
func (h *Handlers) HandlePredict(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandlePredict")

	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	id := c.Param("id")
	preds, err := h.svc.Predict(c.Request.Context(), id, req.X)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "PREDICT_FAILED"

		switch {
		case errors.Is(err, store.ErrNotFound):
			statusCode = http.StatusNotFound
			errCode = "MODEL_NOT_FOUND"
		case errors.Is(err, gate.ErrDimension):
			statusCode = http.StatusBadRequest
			errCode = "DIMENSION_MISMATCH"
		}

		logger.Error("Prediction failed", "model_id", id, "error", err)
		c.JSON(statusCode, ErrorResponse{Error: err.Error(), Code: errCode})
		return
	}

	c.JSON(http.StatusOK, PredictResponse{Y: preds})
}

// HandleGetModel handles GET /v1/moe/models/:id.
func (h *Handlers) HandleGetModel(c *gin.Context) {
	id := c.Param("id")
	summary, err := h.svc.GetModel(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "MODEL_NOT_FOUND"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "GET_FAILED"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// HandleDeleteModel handles DELETE /v1/moe/models/:id.
func (h *Handlers) HandleDeleteModel(c *gin.Context) {
	id := c.Param("id")
	if err := h.svc.DeleteModel(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "MODEL_NOT_FOUND"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "DELETE_FAILED"})
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleListModels handles GET /v1/moe/models.
func (h *Handlers) HandleListModels(c *gin.Context) {
	ids, err := h.svc.ListModels(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "LIST_FAILED"})
		return
	}
	c.JSON(http.StatusOK, ListResponse{Models: ids})
}

// HandleHealth handles GET /v1/moe/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: ServiceVersion})
}
