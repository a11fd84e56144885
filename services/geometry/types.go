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

import "fmt"

// Point is an integer grid coordinate.
type Point struct {
	X int
	Y int
}

// String renders the point as "x,y", the same form ParsePoints accepts.
func (p Point) String() string {
	return fmt.Sprintf("%d,%d", p.X, p.Y)
}

// Rect is an axis-aligned rectangle spanned by two opposite corners.
//
// # Description
//
// The corners may be given in any order. Area counts grid cells inclusively,
// so a rectangle whose corners coincide has area 1.
type Rect struct {
	P1 Point
	P2 Point
}

// Area returns the inclusive grid area (|dx|+1) * (|dy|+1).
func (r Rect) Area() uint64 {
	return uint64(absInt(r.P2.X-r.P1.X)+1) * uint64(absInt(r.P2.Y-r.P1.Y)+1)
}

// Bounds returns the rectangle's min and max coordinates on both axes.
func (r Rect) Bounds() (minX, maxX, minY, maxY int) {
	return min(r.P1.X, r.P2.X), max(r.P1.X, r.P2.X), min(r.P1.Y, r.P2.Y), max(r.P1.Y, r.P2.Y)
}

// Line is a polygon edge from P1 to P2.
type Line struct {
	P1 Point
	P2 Point
}

// containsPoint reports whether p lies exactly on the segment.
func (l Line) containsPoint(p Point) bool {
	minX, maxX := min(l.P1.X, l.P2.X), max(l.P1.X, l.P2.X)
	minY, maxY := min(l.P1.Y, l.P2.Y), max(l.P1.Y, l.P2.Y)

	cross := int64(l.P2.X-l.P1.X)*int64(p.Y-l.P1.Y) - int64(l.P2.Y-l.P1.Y)*int64(p.X-l.P1.X)
	return cross == 0 && p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY
}

// crossesHorizontal reports whether the edge straddles the horizontal line at
// y. The test is half-open so a vertex shared by two edges is counted once.
func (l Line) crossesHorizontal(y int) bool {
	return (l.P1.Y > y) != (l.P2.Y > y)
}

// leftOfIntersection reports whether p lies left of the point where this edge
// meets the horizontal line through p. The comparison is cross-multiplied so
// no division happens; the inequality flips with the sign of the edge's dy.
// Only meaningful when crossesHorizontal(p.Y) is true.
func (l Line) leftOfIntersection(p Point) bool {
	lhs := int64(p.X-l.P1.X) * int64(l.P2.Y-l.P1.Y)
	rhs := int64(p.Y-l.P1.Y) * int64(l.P2.X-l.P1.X)
	if l.P2.Y-l.P1.Y > 0 {
		return lhs < rhs
	}
	return lhs > rhs
}

// BoundingBox is the axis-aligned extent of a polygon.
type BoundingBox struct {
	MinX int
	MaxX int
	MinY int
	MaxY int
}

// Candidate pairs a rectangle with its precomputed area.
type Candidate struct {
	Rect Rect
	Area uint64
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
