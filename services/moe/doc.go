// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package moe implements a mixture-of-experts regression meta-model.
//
// Training partitions the input space with a Gaussian mixture fitted on
// the inputs joined with a clustering criterion (the outputs by
// default), searches a catalog of local regression models per cluster
// against a held-out validation split, and finally refits the winning
// expert types on the full dataset. Prediction routes queries through a
// Gaussian gate, either answering with the most likely cluster's expert
// (hard recombination) or blending all experts by membership
// probability (smooth recombination).
//
// The clustering provider and the expert catalog are both pluggable:
// any cluster.Estimator and any surrogate.Registry can be supplied
// through Options.
package moe
