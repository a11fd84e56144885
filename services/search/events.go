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

import "time"

// EventKind identifies the type of an Event.
type EventKind string

const (
	// EventUpdate is a periodic progress snapshot.
	EventUpdate EventKind = "update"
	// EventComplete is emitted once when a run drains.
	EventComplete EventKind = "complete"
	// EventStatus reports the control state after a command or completion.
	EventStatus EventKind = "status"
)

// Event is a message emitted by the Engine to its subscribers.
type Event interface {
	Kind() EventKind
}

// UpdateEvent is a snapshot of all non-empty worker slots and the shared
// registers.
type UpdateEvent struct {
	RunID        string
	Workers      []SlotReport
	CurrentBest  uint64
	CheckedCount uint64
}

// Kind implements Event.
func (UpdateEvent) Kind() EventKind { return EventUpdate }

// CompleteEvent reports the final result of a run that drained without a
// stop.
type CompleteEvent struct {
	RunID        string
	Result       uint64
	CheckedCount uint64
	Duration     time.Duration
}

// Kind implements Event.
func (CompleteEvent) Kind() EventKind { return EventComplete }

// StatusEvent reports the control state.
type StatusEvent struct {
	Running bool
	Paused  bool
}

// Kind implements Event.
func (StatusEvent) Kind() EventKind { return EventStatus }
