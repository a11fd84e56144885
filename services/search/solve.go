// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"

	"github.com/AleutianAI/polyrect/services/geometry"
)

// ctxCheckEvery is how many candidates Solve evaluates between context
// checks.
const ctxCheckEvery = 1024

// Solution is the result of a sequential search.
type Solution struct {
	// Candidate is the first contained candidate. Zero when Found is false.
	Candidate geometry.Candidate
	// Found is false when no candidate is contained.
	Found bool
	// Checked is the number of candidates evaluated.
	Checked uint64
}

// Solve returns the first candidate contained in polygon.
//
// # Description
//
// Walks candidates in order on the calling goroutine. With candidates sorted
// by descending area, the first contained one has the largest contained
// area, which is the value a drained Engine run reports.
//
// # Outputs
//
//   - Solution: The result. Checked counts candidates evaluated so far when
//     ctx is cancelled.
//   - error: ctx.Err() if cancelled before an answer was found.
func Solve(ctx context.Context, polygon *geometry.Polygon, candidates []geometry.Candidate) (Solution, error) {
	var sol Solution
	for i, c := range candidates {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return sol, err
			}
		}
		sol.Checked++
		if polygon.Contains(c.Rect) {
			sol.Candidate = c
			sol.Found = true
			return sol, nil
		}
	}
	return sol, nil
}
