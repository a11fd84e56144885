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

import "sync"

// WorkQueue is a FIFO of candidate indices shared by all workers of a run.
//
// # Description
//
// Indices are popped in the order they were filled. Since the candidate list
// is sorted by descending area, an index popped earlier never has a smaller
// area than one popped later, whichever worker pops it.
//
// # Thread Safety
//
// Fill, TryPop and Len are mutually exclusive.
type WorkQueue struct {
	mu    sync.Mutex
	items []int
	head  int
}

// NewWorkQueue returns an empty queue.
func NewWorkQueue() *WorkQueue {
	return &WorkQueue{}
}

// Fill replaces the queue contents with 0..count-1 in order.
func (q *WorkQueue) Fill(count int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = make([]int, max(count, 0))
	for i := range q.items {
		q.items[i] = i
	}
	q.head = 0
}

// TryPop removes and returns the oldest index. ok is false when the queue is
// empty.
func (q *WorkQueue) TryPop() (index int, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.items) {
		return 0, false
	}
	index = q.items[q.head]
	q.head++
	return index, true
}

// Len returns the number of indices not yet popped.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
