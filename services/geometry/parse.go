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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

var (
	// ErrMalformedPoint is returned when an input line is not "x,y".
	ErrMalformedPoint = errors.New("malformed point")

	// ErrTooFewPoints is returned when the input cannot form a polygon.
	ErrTooFewPoints = errors.New("too few points")
)

// MinPolygonVertices is the smallest vertex count accepted by ReadInputFile.
const MinPolygonVertices = 3

// ParsePoints reads one "x,y" pair per line.
//
// # Description
//
// Blank lines and surrounding whitespace are ignored. The returned order is
// the input order, which is both the polygon's vertex order and the order
// candidate pairs are generated in.
//
// # Outputs
//
//   - []Point: Parsed points.
//   - error: Wraps ErrMalformedPoint with the 1-based line number, or the
//     reader's error.
func ParsePoints(r io.Reader) ([]Point, error) {
	var points []Point
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		xs, ys, ok := strings.Cut(text, ",")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformedPoint, line, text)
		}
		x, err := strconv.Atoi(strings.TrimSpace(xs))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedPoint, line, err)
		}
		y, err := strconv.Atoi(strings.TrimSpace(ys))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedPoint, line, err)
		}
		points = append(points, Point{X: x, Y: y})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read points: %w", err)
	}
	return points, nil
}

// ReadInputFile parses a puzzle input file and checks it can form a polygon.
func ReadInputFile(path string) ([]Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input %s: %w", path, err)
	}
	defer f.Close()

	points, err := ParsePoints(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse input %s: %w", path, err)
	}
	if len(points) < MinPolygonVertices {
		return nil, fmt.Errorf("%w: %s has %d, need at least %d",
			ErrTooFewPoints, path, len(points), MinPolygonVertices)
	}
	return points, nil
}
