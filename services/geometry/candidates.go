// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package geometry

import (
	"cmp"
	"slices"
)

// GenerateCandidates builds every rectangle spanned by a pair of points.
//
// # Description
//
// Produces all N*(N-1)/2 unordered pairs (i < j) with their inclusive area,
// sorted by area descending. The sort is stable over pair order, so equal
// areas keep the order in which their pairs were generated and the result is
// reproducible run to run.
//
// # Inputs
//
//   - points: Candidate corner points. Fewer than two yields an empty slice.
//
// # Outputs
//
//   - []Candidate: Sorted candidates. Treated as immutable by callers.
func GenerateCandidates(points []Point) []Candidate {
	n := len(points)
	if n < 2 {
		return []Candidate{}
	}

	candidates := make([]Candidate, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			rect := Rect{P1: points[i], P2: points[j]}
			candidates = append(candidates, Candidate{Rect: rect, Area: rect.Area()})
		}
	}

	slices.SortStableFunc(candidates, func(a, b Candidate) int {
		return cmp.Compare(b.Area, a.Area)
	})
	return candidates
}

// MaxPairArea returns the largest area spanned by any two points, ignoring
// containment. Returns 0 for fewer than two points.
func MaxPairArea(points []Point) uint64 {
	var best uint64
	for i := 0; i < len(points); i++ {
		for j := i + 1; j < len(points); j++ {
			best = max(best, Rect{P1: points[i], P2: points[j]}.Area())
		}
	}
	return best
}
