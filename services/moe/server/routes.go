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
	"net/http"

	"github.com/AleutianAI/AleutianMOE/services/moe/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"
)

// RateLimit rejects requests exceeding the limiter with 429.
// Training is CPU-bound, so the train endpoint carries one.
func RateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "training rate limit exceeded",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// RegisterRoutes registers all mixture-of-experts routes with the
// router group.
//
// Endpoints:
//
//	POST   /v1/moe/train - Train a model and store its snapshot
//	GET    /v1/moe/models - List stored model IDs
//	GET    /v1/moe/models/:id - Get a stored model summary
//	DELETE /v1/moe/models/:id - Delete a stored model
//	POST   /v1/moe/models/:id/predict - Predict with a stored model
//	GET    /v1/moe/health - Health check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers, trainLimiter *rate.Limiter) {
	m := rg.Group("/moe")
	{
		if trainLimiter != nil {
			m.POST("/train", RateLimit(trainLimiter), handlers.HandleTrain)
		} else {
			m.POST("/train", handlers.HandleTrain)
		}

		models := m.Group("/models")
		{
			models.GET("", handlers.HandleListModels)
			models.GET("/:id", handlers.HandleGetModel)
			models.DELETE("/:id", handlers.HandleDeleteModel)
			models.POST("/:id/predict", handlers.HandlePredict)
		}

		m.GET("/health", handlers.HandleHealth)
	}
}

// NewRouter builds a gin engine with the service routes, custom
// validators, and the metrics endpoint.
func NewRouter(handlers *Handlers, trainLimiter *rate.Limiter) *gin.Engine {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		// Registration only fails for an empty tag name.
		_ = v.RegisterValidation("rectangular", rectangularRows)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("moe-service"))

	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers, trainLimiter)

	if mh := telemetry.MetricsHandler(); mh != nil {
		router.GET("/metrics", gin.WrapH(mh))
	}
	return router
}
