// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// Sentinel errors for dataset loading.
var (
	// ErrEmptyDataset indicates a CSV with no data rows.
	ErrEmptyDataset = errors.New("dataset has no data rows")

	// ErrTooFewColumns indicates rows too narrow for the requested
	// layout.
	ErrTooFewColumns = errors.New("dataset rows have too few columns")
)

// readNumericCSV reads all rows of a CSV file as floats. A single
// leading non-numeric row is treated as a header and skipped.
func readNumericCSV(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	var rows [][]float64
	first := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		row := make([]float64, len(record))
		numeric := true
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				numeric = false
				break
			}
			row[j] = v
		}
		if !numeric {
			if first {
				first = false
				continue
			}
			return nil, fmt.Errorf("read %s: non-numeric value on data row %d", path, len(rows)+1)
		}
		first = false
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDataset, path)
	}
	return rows, nil
}

// loadDataset reads a training CSV: input columns, then criterionCols
// clustering-criterion columns, then the target as the last column.
func loadDataset(path string, criterionCols int) (x *mat.Dense, y *mat.VecDense, c *mat.Dense, err error) {
	rows, err := readNumericCSV(path)
	if err != nil {
		return nil, nil, nil, err
	}

	width := len(rows[0])
	inputs := width - 1 - criterionCols
	if inputs < 1 {
		return nil, nil, nil, fmt.Errorf("%w: %d columns with %d criterion columns", ErrTooFewColumns, width, criterionCols)
	}

	n := len(rows)
	x = mat.NewDense(n, inputs, nil)
	y = mat.NewVecDense(n, nil)
	if criterionCols > 0 {
		c = mat.NewDense(n, criterionCols, nil)
	}
	for i, row := range rows {
		if len(row) != width {
			return nil, nil, nil, fmt.Errorf("read %s: row %d has %d columns, expected %d", path, i+1, len(row), width)
		}
		for j := 0; j < inputs; j++ {
			x.Set(i, j, row[j])
		}
		for j := 0; j < criterionCols; j++ {
			c.Set(i, j, row[inputs+j])
		}
		y.SetVec(i, row[width-1])
	}
	return x, y, c, nil
}

// loadQueries reads a CSV of query rows, every column an input.
func loadQueries(path string) (*mat.Dense, error) {
	rows, err := readNumericCSV(path)
	if err != nil {
		return nil, err
	}

	width := len(rows[0])
	out := mat.NewDense(len(rows), width, nil)
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("read %s: row %d has %d columns, expected %d", path, i+1, len(row), width)
		}
		out.SetRow(i, row)
	}
	return out, nil
}
