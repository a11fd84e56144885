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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/polyrect/services/geometry"
)

func TestWorkQueue_FIFO(t *testing.T) {
	q := NewWorkQueue()
	q.Fill(3)
	require.Equal(t, 3, q.Len())

	for want := 0; want < 3; want++ {
		got, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := q.TryPop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestWorkQueue_FillResets(t *testing.T) {
	q := NewWorkQueue()
	q.Fill(5)
	q.TryPop()
	q.TryPop()

	q.Fill(2)
	got, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 0, got)
	assert.Equal(t, 1, q.Len())

	q.Fill(-1)
	assert.Equal(t, 0, q.Len())
}

func TestWorkQueue_ConcurrentPopsAreExclusive(t *testing.T) {
	const n = 20000
	q := NewWorkQueue()
	q.Fill(n)

	var mu sync.Mutex
	seen := make([]int, n)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := -1
			for {
				idx, ok := q.TryPop()
				if !ok {
					return
				}
				// Each worker sees increasing indices.
				if idx <= last {
					t.Errorf("pop order went backwards: %d after %d", idx, last)
				}
				last = idx
				mu.Lock()
				seen[idx]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for i, c := range seen {
		if c != 1 {
			t.Fatalf("index %d popped %d times", i, c)
		}
	}
}

func TestCounters_Concurrent(t *testing.T) {
	var c Counters
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				c.IncChecked()
				c.RaiseBest(uint64(w*1000 + i))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, uint64(8000), c.Checked())
	assert.Equal(t, uint64(7999), c.Best())
}

func TestCounters_RaiseBestNeverLowers(t *testing.T) {
	var c Counters
	assert.True(t, c.RaiseBest(10))
	assert.False(t, c.RaiseBest(4))
	assert.False(t, c.RaiseBest(10))
	assert.Equal(t, uint64(10), c.Best())
}

func TestWorkerSlots(t *testing.T) {
	s := NewWorkerSlots(2)
	assert.Empty(t, s.Snapshot())

	r := geometry.Rect{P1: geometry.Point{X: 0, Y: 0}, P2: geometry.Point{X: 2, Y: 2}}
	s.Publish(5, r, 9, true)
	s.Publish(1, r, 4, false)
	s.Publish(1, r, 3, true)

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, SlotReport{WorkerID: 1, Rect: r, Area: 3, Contained: true}, snap[0])
	assert.Equal(t, 5, snap[1].WorkerID)

	s.Clear(5)
	s.Clear(99)
	snap = s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 1, snap[0].WorkerID)
}
