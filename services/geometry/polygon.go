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

// Sampling thresholds for Contains. Changing them changes which rectangles
// are accepted on concave inputs.
const (
	// QuickSamples is the number of segments each rectangle side is split
	// into for the first sampling pass.
	QuickSamples = 5

	// DenseSampleThreshold is the larger rectangle dimension above which the
	// dense sampling pass runs.
	DenseSampleThreshold = 10000

	// DenseSampleSpacing is the approximate distance between dense samples.
	DenseSampleSpacing = 1000
)

// Polygon is a simple polygon with precomputed edges and bounding box.
//
// # Description
//
// The vertex order defines the edges: vertex i connects to vertex i+1 and the
// last vertex closes back to the first. Both clockwise and counter-clockwise
// orderings are accepted.
//
// # Thread Safety
//
// Immutable after NewPolygon returns. Safe for concurrent use.
type Polygon struct {
	edges []Line
	bbox  BoundingBox
}

// NewPolygon builds a polygon from its ordered vertices.
//
// # Inputs
//
//   - vertices: Ordered polygon corners. The slice is not retained.
//
// # Outputs
//
//   - *Polygon: The polygon. An empty vertex list yields an empty polygon
//     with a zero bounding box that contains nothing.
func NewPolygon(vertices []Point) *Polygon {
	p := &Polygon{}
	if len(vertices) == 0 {
		return p
	}

	p.bbox = BoundingBox{
		MinX: vertices[0].X, MaxX: vertices[0].X,
		MinY: vertices[0].Y, MaxY: vertices[0].Y,
	}
	p.edges = make([]Line, 0, len(vertices))
	for i, v := range vertices {
		p.bbox.MinX = min(p.bbox.MinX, v.X)
		p.bbox.MaxX = max(p.bbox.MaxX, v.X)
		p.bbox.MinY = min(p.bbox.MinY, v.Y)
		p.bbox.MaxY = max(p.bbox.MaxY, v.Y)
		p.edges = append(p.edges, Line{P1: v, P2: vertices[(i+1)%len(vertices)]})
	}
	return p
}

// Edges returns a copy of the polygon's edge list.
func (p *Polygon) Edges() []Line {
	return append([]Line(nil), p.edges...)
}

// BoundingBox returns the polygon's axis-aligned extent.
func (p *Polygon) BoundingBox() BoundingBox {
	return p.bbox
}

// Contains reports whether rect lies inside the polygon or on its boundary.
//
// # Description
//
// The containment oracle. Runs, in order:
//  1. Bounding-box rejection.
//  2. Inside-or-on test for all four corners.
//  3. Quick pass: 4 interior samples on each side. Each sample is ray cast
//     first and only consulted against the edges when the ray cast misses,
//     so points lying on the boundary are accepted.
//  4. Dense pass when max(width, height) > DenseSampleThreshold: samples
//     QuickSamples..n-1 of n = maxDim/DenseSampleSpacing per side, each with
//     the inside-or-on test.
//
// # Inputs
//
//   - rect: Candidate rectangle, corners in any order.
//
// # Outputs
//
//   - bool: True if every tested point is inside or on the polygon.
//
// # Limitations
//
//   - Approximate for concave polygons: notches narrower than the sample
//     spacing between two samples are not detected.
//
// # Thread Safety
//
// Pure. Safe for concurrent use.
func (p *Polygon) Contains(rect Rect) bool {
	if len(p.edges) == 0 {
		return false
	}
	minX, maxX, minY, maxY := rect.Bounds()

	if minX < p.bbox.MinX || maxX > p.bbox.MaxX || minY < p.bbox.MinY || maxY > p.bbox.MaxY {
		return false
	}

	corners := [4]Point{{minX, minY}, {minX, maxY}, {maxX, minY}, {maxX, maxY}}
	for _, c := range corners {
		if !p.PointInOrOn(c) {
			return false
		}
	}

	width := maxX - minX
	height := maxY - minY

	for i := 1; i < QuickSamples; i++ {
		x := minX + width*i/QuickSamples
		if !p.quickSample(Point{x, minY}) || !p.quickSample(Point{x, maxY}) {
			return false
		}
	}
	for i := 1; i < QuickSamples; i++ {
		y := minY + height*i/QuickSamples
		if !p.quickSample(Point{minX, y}) || !p.quickSample(Point{maxX, y}) {
			return false
		}
	}

	maxDim := max(width, height)
	if maxDim <= DenseSampleThreshold {
		return true
	}

	samples := maxDim / DenseSampleSpacing
	for i := QuickSamples; i < samples; i++ {
		x := minX + width*i/samples
		if !p.PointInOrOn(Point{x, minY}) || !p.PointInOrOn(Point{x, maxY}) {
			return false
		}
	}
	for i := QuickSamples; i < samples; i++ {
		y := minY + height*i/samples
		if !p.PointInOrOn(Point{minX, y}) || !p.PointInOrOn(Point{maxX, y}) {
			return false
		}
	}

	return true
}

// Contains is the free-function form of (*Polygon).Contains.
func Contains(polygon *Polygon, rect Rect) bool {
	return polygon.Contains(rect)
}

// PointInOrOn reports whether pt is strictly inside the polygon or lies on
// one of its edges.
func (p *Polygon) PointInOrOn(pt Point) bool {
	return p.onBoundary(pt) || p.insideByRayCast(pt)
}

// quickSample is the quick-pass test. The ray cast is tried first since it is
// the common case for interior samples.
func (p *Polygon) quickSample(pt Point) bool {
	return p.insideByRayCast(pt) || p.onBoundary(pt)
}

func (p *Polygon) onBoundary(pt Point) bool {
	for _, e := range p.edges {
		if e.containsPoint(pt) {
			return true
		}
	}
	return false
}

// insideByRayCast counts edge crossings of a horizontal ray cast from pt to
// the right. Odd parity means inside. Boundary points may go either way.
func (p *Polygon) insideByRayCast(pt Point) bool {
	crossings := 0
	for _, e := range p.edges {
		if e.crossesHorizontal(pt.Y) && e.leftOfIntersection(pt) {
			crossings++
		}
	}
	return crossings%2 == 1
}
