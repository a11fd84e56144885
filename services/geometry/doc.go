// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package geometry provides the integer-grid primitives used by the rectangle
// search: points, rectangles, polygons, the containment oracle, and the
// exhaustive candidate generator.
//
// # Description
//
// Every type in this package is an immutable value once constructed. A
// Polygon precomputes its edge list and bounding box so that Contains can be
// called concurrently from any number of goroutines without synchronization.
//
// # Containment Accuracy
//
// Contains is a sampling approximation, not an exact segment-intersection
// test. Concave notches narrower than the sampling resolution can be missed:
//
//   - 5 quick samples per rectangle side (4 interior points)
//   - dense sampling at max(width, height)/1000 points per side once the
//     larger dimension exceeds 10000 units
//
// These thresholds are part of the observable result and must not change.
//
// # Thread Safety
//
// All functions are pure. Values may be shared freely between goroutines.
package geometry
