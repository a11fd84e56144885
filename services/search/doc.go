// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search runs the parallel maximum-rectangle search.
//
// # Description
//
// An Engine owns the control plane for one process: run state, throttle
// speed, worker count, and the subscribers that receive progress events. Each
// Start builds a fresh run made of an immutable candidate list, a FIFO
// WorkQueue of candidate indices, a pair of monotonic Counters, and a
// WorkerSlots table. Workers drain the queue concurrently. A broadcaster
// samples the slots on a fixed clock, and a supervisor reports completion
// once every worker has retired with the queue empty.
//
// # Thread Safety
//
// All exported types are safe for concurrent use.
package search
