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

	"github.com/AleutianAI/polyrect/services/geometry"
)

// SlotReport is the last result a worker published.
type SlotReport struct {
	WorkerID  int
	Rect      geometry.Rect
	Area      uint64
	Contained bool
}

// WorkerSlots is the per-worker table of latest results.
//
// # Description
//
// Slot i belongs to worker identity i. A slot is empty until its worker
// publishes and is overwritten on every publish. The table grows when a
// worker with an identity past the current capacity publishes.
//
// # Thread Safety
//
// Guarded by a mutex held only for the copy in or out.
type WorkerSlots struct {
	mu    sync.Mutex
	slots []slot
}

type slot struct {
	set    bool
	report SlotReport
}

// NewWorkerSlots returns a table sized for capacity workers.
func NewWorkerSlots(capacity int) *WorkerSlots {
	return &WorkerSlots{slots: make([]slot, max(capacity, 0))}
}

// Publish overwrites the slot of worker id.
func (w *WorkerSlots) Publish(id int, rect geometry.Rect, area uint64, contained bool) {
	if id < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if id >= len(w.slots) {
		w.slots = append(w.slots, make([]slot, id+1-len(w.slots))...)
	}
	w.slots[id] = slot{
		set: true,
		report: SlotReport{
			WorkerID:  id,
			Rect:      rect,
			Area:      area,
			Contained: contained,
		},
	}
}

// Clear empties the slot of worker id.
func (w *WorkerSlots) Clear(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if id >= 0 && id < len(w.slots) {
		w.slots[id] = slot{}
	}
}

// Snapshot returns every non-empty slot ordered by worker identity.
func (w *WorkerSlots) Snapshot() []SlotReport {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]SlotReport, 0, len(w.slots))
	for _, s := range w.slots {
		if s.set {
			out = append(out, s.report)
		}
	}
	return out
}
