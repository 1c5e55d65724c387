// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package surrogate

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultIDWPower is the default inverse-distance exponent.
const DefaultIDWPower = 2.0

// idwEpsilon is the squared distance below which a query point is treated
// as coincident with a training point.
const idwEpsilon = 1e-24

// IDW is an inverse-distance-weighting interpolant (Shepard's method).
// Queries coincident with a training point return its output exactly.
type IDW struct {
	// Points are the training inputs.
	Points [][]float64 `json:"points"`

	// Values are the training outputs.
	Values []float64 `json:"values"`

	// Power is the inverse-distance exponent.
	Power float64 `json:"power"`

	// Dim is the training input dimension.
	Dim int `json:"dim"`

	// Fitted reports whether Fit has succeeded.
	Fitted bool `json:"fitted"`
}

// NewIDW returns an unfitted inverse-distance-weighting model.
func NewIDW() *IDW { return &IDW{Power: DefaultIDWPower} }

// Name returns the model identifier.
func (m *IDW) Name() string { return NameIDW }

// Fit stores the training set. IDW has no parameters beyond the data.
func (m *IDW) Fit(x mat.Matrix, y *mat.VecDense) error {
	n, d, err := checkTraining(x, y)
	if err != nil {
		return err
	}
	if m.Power <= 0 {
		m.Power = DefaultIDWPower
	}

	m.Points = make([][]float64, n)
	m.Values = make([]float64, n)
	for i := 0; i < n; i++ {
		m.Points[i] = make([]float64, d)
		mat.Row(m.Points[i], i, x)
		m.Values[i] = y.AtVec(i)
	}
	m.Dim = d
	m.Fitted = true
	return nil
}

// Predict evaluates the interpolant at every row of x.
func (m *IDW) Predict(x mat.Matrix) (*mat.VecDense, error) {
	n, err := checkPrediction(x, m.Fitted, m.Dim)
	if err != nil {
		return nil, err
	}

	out := mat.NewVecDense(n, nil)
	row := make([]float64, m.Dim)
	for i := 0; i < n; i++ {
		mat.Row(row, i, x)
		out.SetVec(i, m.evaluate(row))
	}
	return out, nil
}

// evaluate computes the weighted average for one query point.
func (m *IDW) evaluate(x []float64) float64 {
	var num, den float64
	for i, p := range m.Points {
		var sq float64
		for j := range x {
			d := x[j] - p[j]
			sq += d * d
		}
		if sq < idwEpsilon {
			return m.Values[i]
		}
		w := 1 / math.Pow(sq, m.Power/2)
		num += w * m.Values[i]
		den += w
	}
	return num / den
}
