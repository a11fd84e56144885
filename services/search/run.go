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
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/polyrect/services/geometry"
	"github.com/AleutianAI/polyrect/services/telemetry"
)

// run is the state of one Start. Nothing in it is shared with later runs.
type run struct {
	id         string
	candidates []geometry.Candidate
	queue      *WorkQueue
	counters   Counters
	slots      *WorkerSlots
	startedAt  time.Time
	logger     *slog.Logger
	span       trace.Span

	// stop is set once by Stop and never cleared.
	stop atomic.Bool
	// target is the worker count. Written under mu, read lock-free by
	// workers as a fast path.
	target atomic.Int64

	mu       sync.Mutex
	alive    map[int]bool
	live     int
	finished bool

	done     chan struct{}
	doneOnce sync.Once

	// reported is closed by the supervisor after result is set.
	reported chan struct{}
	result   *CompleteEvent
}

func newRun(candidates []geometry.Candidate, slotCapacity int) *run {
	r := &run{
		id:         uuid.NewString(),
		candidates: candidates,
		queue:      NewWorkQueue(),
		slots:      NewWorkerSlots(slotCapacity),
		startedAt:  time.Now(),
		logger:     slog.Default(),
		alive:      make(map[int]bool),
		done:       make(chan struct{}),
		reported:   make(chan struct{}),
	}
	r.queue.Fill(len(candidates))
	return r
}

func (r *run) finish() {
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *run) liveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// hasStayingLocked reports whether a live worker other than exclude has an
// identity below the current target.
func (r *run) hasStayingLocked(exclude int) bool {
	target := int(r.target.Load())
	for id := range r.alive {
		if id != exclude && id < target {
			return true
		}
	}
	return false
}

// =============================================================================
// Worker Pool
// =============================================================================

// spawnLocked starts worker id. Caller holds r.mu.
func (e *Engine) spawnLocked(r *run, id int) {
	r.alive[id] = true
	r.live++
	e.metrics.setLiveWorkers(r.live)
	r.logger.Info("search worker started", "worker_id", id)
	go e.runWorker(r, id)
}

// resize moves the run to n workers. Caller holds e.mu.
func (e *Engine) resize(r *run, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}

	old := int(r.target.Load())
	r.target.Store(int64(n))
	r.logger.Info("search workers resized", "from", old, "to", n, "live_workers", r.live)

	for id := old; id < n; id++ {
		if !r.alive[id] {
			e.spawnLocked(r, id)
		}
	}

	// A shrink may leave only workers that are about to retire while early
	// exits already took the ones below n. Keep one drainer below n.
	if n > 0 && n < old && r.queue.Len() > 0 && !r.hasStayingLocked(-1) {
		for id := 0; id < n; id++ {
			if !r.alive[id] {
				e.spawnLocked(r, id)
				break
			}
		}
	}
}

// runWorker drains the queue as worker id until it retires. A panic is
// logged and treated as a retirement.
func (e *Engine) runWorker(r *run, id int) {
	reason, left := RetireFailed, false
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("search worker failed", "worker_id", id, "panic", rec)
			e.metrics.recordFailure()
		}
		if !left {
			e.leave(r, id, reason)
		}
	}()
	reason, left = e.drain(r, id)
}

// drain is the worker loop. left is true when the worker already removed
// itself from the run under r.mu.
func (e *Engine) drain(r *run, id int) (reason string, left bool) {
	for {
		if int64(id) >= r.target.Load() && e.retireShrunk(r, id) {
			return RetireShrunk, true
		}

		idx, ok := r.queue.TryPop()
		if !ok {
			return RetireDrained, false
		}
		if r.stop.Load() {
			return RetireStopped, false
		}
		for e.paused.Load() {
			if r.stop.Load() {
				return RetireStopped, false
			}
			time.Sleep(e.cfg.PausePoll)
		}

		c := r.candidates[idx]
		contained := e.polygon.Contains(c.Rect)
		r.counters.IncChecked()
		if contained && r.counters.RaiseBest(c.Area) {
			e.publishBest(r)
		}
		e.metrics.recordChecked(contained)
		r.slots.Publish(id, c.Rect, c.Area, contained)

		if us := e.speedUS.Load(); us > 0 {
			time.Sleep(time.Duration(us) * time.Microsecond)
		}

		// Everything popped before this item had an area >= c.Area, so a
		// contained item equal to the global best cannot be beaten by what
		// is left in the queue.
		if contained && c.Area == r.counters.Best() && e.tryEarlyExit(r, id) {
			return RetireEarlyExit, true
		}
	}
}

// retireShrunk removes worker id if its identity is still at or past the
// target when checked under the lock.
func (e *Engine) retireShrunk(r *run, id int) bool {
	r.mu.Lock()
	if int64(id) < r.target.Load() {
		r.mu.Unlock()
		return false
	}
	finished := e.leaveLocked(r, id, RetireShrunk)
	r.mu.Unlock()
	if finished {
		r.finish()
	}
	return true
}

// tryEarlyExit retires worker id if another worker will keep draining.
func (e *Engine) tryEarlyExit(r *run, id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasStayingLocked(id) {
		return false
	}
	e.leaveLocked(r, id, RetireEarlyExit)
	return true
}

// publishBest copies the best area of r to the gauge. A stopped run no
// longer owns the gauges. stopLocked sets the flag before taking r.mu.
func (e *Engine) publishBest(r *run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stop.Load() {
		e.metrics.setBestArea(r.counters.Best())
	}
}

func (e *Engine) leave(r *run, id int, reason string) {
	r.mu.Lock()
	finished := e.leaveLocked(r, id, reason)
	r.mu.Unlock()
	if finished {
		r.finish()
	}
}

// leaveLocked removes worker id and reports whether the run just finished:
// no live workers and either stopped or drained. Caller holds r.mu.
func (e *Engine) leaveLocked(r *run, id int, reason string) bool {
	delete(r.alive, id)
	r.live--
	if reason == RetireShrunk {
		r.slots.Clear(id)
	}
	if !r.stop.Load() {
		e.metrics.setLiveWorkers(r.live)
	}
	e.metrics.recordRetirement(reason)
	r.logger.Info("search worker retired", "worker_id", id, "reason", reason, "live_workers", r.live)

	if r.finished || r.live > 0 {
		return false
	}
	if r.stop.Load() || r.queue.Len() == 0 {
		r.finished = true
		return true
	}
	r.logger.Info("search run parked, no live workers", "remaining", r.queue.Len())
	return false
}

// =============================================================================
// Broadcaster and Supervisor
// =============================================================================

// broadcast emits an UpdateEvent every BroadcastInterval until the run
// finishes or is stopped.
func (e *Engine) broadcast(r *run, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.cfg.BroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			if r.stop.Load() {
				return
			}
			e.emitUpdate(r)
		}
	}
}

// emitUpdate sends a snapshot of r unless no worker has reported yet.
func (e *Engine) emitUpdate(r *run) {
	workers := r.slots.Snapshot()
	if len(workers) == 0 {
		return
	}
	e.emit(UpdateEvent{
		RunID:        r.id,
		Workers:      workers,
		CurrentBest:  r.counters.Best(),
		CheckedCount: r.counters.Checked(),
	})
}

// supervise waits for every worker and the broadcaster of r to exit, then
// reports the outcome. Only a run that is still current and was not stopped
// completes. It emits a final update, then the CompleteEvent, then the idle
// status.
func (e *Engine) supervise(r *run, broadcastDone <-chan struct{}) {
	<-r.done
	<-broadcastDone

	elapsed := time.Since(r.startedAt)
	best, checked := r.counters.Best(), r.counters.Checked()

	e.mu.Lock()
	completed := e.current == r && !r.stop.Load()
	if completed {
		e.current = nil
		e.paused.Store(false)
		r.result = &CompleteEvent{
			RunID:        r.id,
			Result:       best,
			CheckedCount: checked,
			Duration:     elapsed,
		}
		e.emitUpdate(r)
		e.emit(*r.result)
		e.emit(e.statusLocked())
	}
	e.mu.Unlock()

	outcome := OutcomeStopped
	if completed {
		outcome = OutcomeCompleted
		telemetry.SetSpanOK(r.span)
	} else {
		telemetry.AddSpanEvent(r.span, "stopped")
	}
	e.metrics.recordRun(outcome, elapsed)
	e.otelRun.record(trace.ContextWithSpan(context.Background(), r.span), outcome, checked, elapsed)
	r.span.SetAttributes(
		attribute.String("outcome", outcome),
		attribute.Int64("best_area", int64(best)),
		attribute.Int64("checked_count", int64(checked)),
	)
	r.span.End()

	r.logger.Info("search run finished",
		"outcome", outcome,
		"best_area", best,
		"checked_count", checked,
		"duration", elapsed.String(),
	)
	close(r.reported)
}
