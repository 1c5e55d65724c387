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

import "errors"

// Sentinel errors for mixture-of-experts configuration and training.
var (
	// ErrMissingInputs indicates the required training matrices are absent.
	ErrMissingInputs = errors.New("training inputs X and Y are required")

	// ErrRowMismatch indicates X, Y, and C disagree on row counts.
	ErrRowMismatch = errors.New("X, Y, and C must have the same number of rows")

	// ErrClusterCount indicates a negative cluster count.
	ErrClusterCount = errors.New("cluster count must be positive")

	// ErrAutoClusterUnsupported indicates a request for automatic
	// cluster-count selection, which this model does not perform.
	ErrAutoClusterUnsupported = errors.New("automatic cluster-count selection is not supported; set NumberClusters explicitly")

	// ErrTooManyClusters indicates the requested cluster count exceeds
	// floor(trainingRows/10)+1.
	ErrTooManyClusters = errors.New("cluster count exceeds the training-set maximum")

	// ErrEmptyCluster indicates a cluster received zero training samples.
	ErrEmptyCluster = errors.New("cluster received no training samples")

	// ErrValidationMismatch indicates an external validation set whose X
	// and Y do not align with each other or with the training dimension.
	ErrValidationMismatch = errors.New("external validation X and Y must align with the training data")

	// ErrNotTrained indicates prediction was requested before a
	// successful Train.
	ErrNotTrained = errors.New("model is not trained")
)
