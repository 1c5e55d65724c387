// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cluster

import (
	"math"
	"math/rand/v2"
)

// kmeansIterations bounds the Lloyd refinement used to seed EM.
const kmeansIterations = 25

// kmeansSeed runs k-means++ seeding followed by Lloyd iterations and
// returns the final centers and hard labels. Used only to initialize the
// EM restarts.
func kmeansSeed(points [][]float64, k int, rng *rand.Rand) (centers [][]float64, labels []int) {
	centers = kmeansPlusPlus(points, k, rng)
	labels = make([]int, len(points))

	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for i, p := range points {
			best := nearestCenter(p, centers)
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}

		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, len(points[0]))
		}
		for i, p := range points {
			counts[labels[i]]++
			for j, v := range p {
				sums[labels[i]][j] += v
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// Reseed an empty cluster at the point farthest from its
				// current assignment.
				centers[c] = append([]float64(nil), points[farthestPoint(points, centers, labels)]...)
				continue
			}
			for j := range sums[c] {
				centers[c][j] = sums[c][j] / float64(counts[c])
			}
		}

		if !changed && iter > 0 {
			break
		}
	}

	for i, p := range points {
		labels[i] = nearestCenter(p, centers)
	}
	return centers, labels
}

// kmeansPlusPlus picks k starting centers with the k-means++ weighting.
func kmeansPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), points[rng.IntN(len(points))]...))

	dist := make([]float64, len(points))
	for len(centers) < k {
		var total float64
		for i, p := range points {
			dist[i] = squaredDistance(p, centers[nearestCenter(p, centers)])
			total += dist[i]
		}

		if total == 0 {
			// All remaining mass sits on existing centers; duplicate one.
			centers = append(centers, append([]float64(nil), centers[0]...))
			continue
		}

		target := rng.Float64() * total
		var acc float64
		chosen := len(points) - 1
		for i, d := range dist {
			acc += d
			if acc >= target {
				chosen = i
				break
			}
		}
		centers = append(centers, append([]float64(nil), points[chosen]...))
	}
	return centers
}

// nearestCenter returns the index of the closest center to p.
func nearestCenter(p []float64, centers [][]float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, center := range centers {
		if d := squaredDistance(p, center); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

// farthestPoint returns the index of the point farthest from its
// assigned center.
func farthestPoint(points [][]float64, centers [][]float64, labels []int) int {
	best := 0
	bestDist := -1.0
	for i, p := range points {
		if d := squaredDistance(p, centers[labels[i]]); d > bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// squaredDistance computes the squared Euclidean distance.
func squaredDistance(a, b []float64) float64 {
	var sq float64
	for j := range a {
		d := a[j] - b[j]
		sq += d * d
	}
	return sq
}
