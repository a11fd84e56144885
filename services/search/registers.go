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

import "sync/atomic"

// Counters holds the two shared result registers of a run.
//
// # Description
//
// checked only ever increments and best only ever rises, so readers may see
// stale values but never a value that goes backwards.
//
// # Thread Safety
//
// Lock-free. Safe for any number of concurrent callers.
type Counters struct {
	checked atomic.Uint64
	best    atomic.Uint64
}

// IncChecked adds one to the checked count and returns the new value.
func (c *Counters) IncChecked() uint64 {
	return c.checked.Add(1)
}

// RaiseBest sets best to max(best, area) and reports whether it changed.
func (c *Counters) RaiseBest(area uint64) bool {
	for {
		cur := c.best.Load()
		if area <= cur {
			return false
		}
		if c.best.CompareAndSwap(cur, area) {
			return true
		}
	}
}

// Checked returns the number of candidates evaluated so far.
func (c *Counters) Checked() uint64 {
	return c.checked.Load()
}

// Best returns the largest contained area found so far.
func (c *Counters) Best() uint64 {
	return c.best.Load()
}
