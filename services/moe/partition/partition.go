// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package partition bins labeled samples into per-cluster groups.
//
// The partitioner only bins: an empty group is a legitimate output here
// and becomes an error downstream, when a local model refuses to fit on
// zero rows.
package partition

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Sentinel errors for partitioning.
var (
	// ErrLabelOutOfRange indicates a hard label outside [0, K).
	ErrLabelOutOfRange = errors.New("cluster label out of range")

	// ErrLengthMismatch indicates labels and rows disagree in count.
	ErrLengthMismatch = errors.New("label count does not match row count")

	// ErrNoClusters indicates a non-positive cluster count.
	ErrNoClusters = errors.New("cluster count must be at least one")
)

// ByLabel groups row indices by hard cluster label.
//
// Description:
//
//	Returns K groups of row indices. Original row order is preserved
//	within each group, and the groups form a true partition of
//	[0, len(labels)): every index appears in exactly one group.
//
// Inputs:
//
//   - labels: Hard cluster label per row.
//   - k: Number of clusters. Must be >= 1.
//
// Outputs:
//
//   - [][]int: K groups of row indices.
//   - error: Non-nil when k < 1 or a label falls outside [0, k).
//
// Thread Safety: Safe for concurrent use.
func ByLabel(labels []int, k int) ([][]int, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrNoClusters, k)
	}

	groups := make([][]int, k)
	for i, label := range labels {
		if label < 0 || label >= k {
			return nil, fmt.Errorf("%w: row %d has label %d, expected [0, %d)", ErrLabelOutOfRange, i, label, k)
		}
		groups[label] = append(groups[label], i)
	}
	return groups, nil
}

// Rows materializes a group of row indices as an input matrix and output
// vector.
//
// Description:
//
//	Copies the selected rows of x and y, preserving the order of indices.
//	An empty index group yields (nil, nil, nil): callers that cannot
//	tolerate empty groups surface that at fit time.
//
// Inputs:
//
//   - x: Full n×d input matrix.
//   - y: Full n-vector of outputs.
//   - indices: Row indices to extract.
//
// Outputs:
//
//   - *mat.Dense: len(indices)×d inputs, or nil for an empty group.
//   - *mat.VecDense: len(indices) outputs, or nil for an empty group.
//   - error: Non-nil when an index is out of bounds or x and y disagree
//     on the row count.
//
// Thread Safety: Safe for concurrent use.
func Rows(x mat.Matrix, y *mat.VecDense, indices []int) (*mat.Dense, *mat.VecDense, error) {
	n, d := x.Dims()
	if y.Len() != n {
		return nil, nil, fmt.Errorf("%w: %d inputs, %d outputs", ErrLengthMismatch, n, y.Len())
	}
	if len(indices) == 0 {
		return nil, nil, nil
	}

	xs := mat.NewDense(len(indices), d, nil)
	ys := mat.NewVecDense(len(indices), nil)
	for i, idx := range indices {
		if idx < 0 || idx >= n {
			return nil, nil, fmt.Errorf("%w: index %d with %d rows", ErrLabelOutOfRange, idx, n)
		}
		for j := 0; j < d; j++ {
			xs.Set(i, j, x.At(idx, j))
		}
		ys.SetVec(i, y.AtVec(idx))
	}
	return xs, ys, nil
}
