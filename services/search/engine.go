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
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/polyrect/services/geometry"
	"github.com/AleutianAI/polyrect/services/telemetry"
)

const tracerName = "polyrect.search"

var (
	// ErrEngineClosed is returned by Run after Close.
	ErrEngineClosed = errors.New("search engine closed")

	// ErrRunInProgress is returned by Run when another run is active.
	ErrRunInProgress = errors.New("search run already in progress")

	// ErrRunStopped is returned by Run when the run was stopped before it
	// drained.
	ErrRunStopped = errors.New("search run stopped")
)

// =============================================================================
// Configuration
// =============================================================================

// Config holds the tunables of an Engine.
//
// # Fields
//
//   - MaxWorkers: Upper bound for worker counts. <= 0 means runtime.NumCPU().
//   - DefaultSpeedUS: Throttle used before the first Start. Default: 10000.
//   - DefaultWorkers: Configured worker count before the first Start or
//     SetCores. Default: 1.
//   - BroadcastInterval: Update event period. Default: 1/60 s.
//   - PausePoll: Sleep between pause checks. Default: 50ms.
//   - SlotCapacity: Initial worker slot table size. Default: 16.
//   - EventBuffer: Per-subscriber event buffer. Default: 256.
//   - Metrics: Prometheus instruments. Nil disables metrics.
//   - MeterProvider: Source of the OpenTelemetry run instruments. Nil uses
//     the global provider.
type Config struct {
	MaxWorkers        int
	DefaultSpeedUS    uint64
	DefaultWorkers    int
	BroadcastInterval time.Duration
	PausePoll         time.Duration
	SlotCapacity      int
	EventBuffer       int
	Metrics           *Metrics
	MeterProvider     metric.MeterProvider
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:        runtime.NumCPU(),
		DefaultSpeedUS:    10000,
		DefaultWorkers:    1,
		BroadcastInterval: 16667 * time.Microsecond,
		PausePoll:         50 * time.Millisecond,
		SlotCapacity:      16,
		EventBuffer:       256,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = d.MaxWorkers
	}
	if c.DefaultWorkers < 0 {
		c.DefaultWorkers = 0
	}
	if c.BroadcastInterval <= 0 {
		c.BroadcastInterval = d.BroadcastInterval
	}
	if c.PausePoll <= 0 {
		c.PausePoll = d.PausePoll
	}
	if c.SlotCapacity <= 0 {
		c.SlotCapacity = d.SlotCapacity
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	return c
}

// StartParams are the arguments of a start command.
type StartParams struct {
	// SpeedUS is the per-item throttle in microseconds. 0 disables it.
	SpeedUS uint64
	// NumCores is the initial worker count, clamped to [0, MaxWorkers].
	NumCores int
}

// =============================================================================
// Engine
// =============================================================================

// Engine is the control plane of the search.
//
// # Description
//
// Holds run state, throttle speed, configured worker count and the event
// subscribers. At most one run is current at a time. Each command emits a
// StatusEvent to every subscriber after it takes effect.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Lock order is Engine.mu, then
// run.mu, then the subscriber lock. Workers never take Engine.mu.
type Engine struct {
	polygon *geometry.Polygon
	points  []geometry.Point
	cfg     Config
	metrics *Metrics
	otelRun runInstruments

	paused  atomic.Bool
	speedUS atomic.Uint64

	mu      sync.Mutex
	cores   int
	current *run
	closed  bool

	subMu      sync.RWMutex
	subs       map[uint64]chan Event
	nextSub    uint64
	subsClosed bool
}

// New creates an idle engine searching the rectangles spanned by pairs of
// points inside polygon.
//
// # Inputs
//
//   - polygon: The containment polygon. Shared read-only by all workers.
//   - points: Candidate corner points. Copied.
//   - cfg: Engine configuration. Zero fields take DefaultConfig values.
func New(polygon *geometry.Polygon, points []geometry.Point, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		polygon: polygon,
		points:  append([]geometry.Point(nil), points...),
		cfg:     cfg,
		metrics: cfg.Metrics,
		otelRun: newRunInstruments(cfg.MeterProvider),
		cores:   min(cfg.DefaultWorkers, cfg.MaxWorkers),
		subs:    make(map[uint64]chan Event),
	}
	e.speedUS.Store(cfg.DefaultSpeedUS)
	return e
}

// Polygon returns the polygon the engine searches in.
func (e *Engine) Polygon() *geometry.Polygon {
	return e.polygon
}

// MaxWorkers returns the worker cap.
func (e *Engine) MaxWorkers() int {
	return e.cfg.MaxWorkers
}

// Workers returns the configured worker count.
func (e *Engine) Workers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cores
}

// Speed returns the current throttle in microseconds.
func (e *Engine) Speed() uint64 {
	return e.speedUS.Load()
}

// Status returns the current control state.
func (e *Engine) Status() StatusEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked()
}

// LiveWorkers returns the number of workers of the current run that have not
// retired, or 0 when idle.
func (e *Engine) LiveWorkers() int {
	e.mu.Lock()
	r := e.current
	e.mu.Unlock()
	if r == nil {
		return 0
	}
	return r.liveCount()
}

// Progress returns the shared registers of the current run. ok is false when
// idle.
func (e *Engine) Progress() (best, checked uint64, ok bool) {
	e.mu.Lock()
	r := e.current
	e.mu.Unlock()
	if r == nil {
		return 0, 0, false
	}
	return r.counters.Best(), r.counters.Checked(), true
}

// =============================================================================
// Commands
// =============================================================================

// Start begins a new run.
//
// # Description
//
// Ignored when a run is already current (the status event is still sent).
// Otherwise generates the candidate list, fills a fresh queue, clears the
// pause flag, and spawns NumCores workers with identities 0..NumCores-1.
//
// # Outputs
//
//   - bool: True if a new run was started.
func (e *Engine) Start(params StartParams) bool {
	return e.start(params) != nil
}

func (e *Engine) start(params StartParams) *run {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	if e.current != nil {
		slog.Info("start ignored, search already running", "run_id", e.current.id)
		e.emit(e.statusLocked())
		return nil
	}

	cores := e.clampCores(params.NumCores)
	e.cores = cores
	e.speedUS.Store(params.SpeedUS)
	e.paused.Store(false)

	r := newRun(geometry.GenerateCandidates(e.points), e.cfg.SlotCapacity)
	var ctx context.Context
	ctx, r.span = telemetry.StartSpan(context.Background(), tracerName, "search.Run",
		trace.WithAttributes(
			attribute.String("run_id", r.id),
			attribute.Int("candidates", len(r.candidates)),
			attribute.Int("num_workers", cores),
		),
	)
	r.logger = telemetry.LoggerWithTrace(ctx, slog.Default()).With("run_id", r.id)
	e.current = r
	e.metrics.setBestArea(0)

	r.logger.Info("search run started",
		"candidates", len(r.candidates),
		"num_workers", cores,
		"speed_us", params.SpeedUS,
	)
	e.emit(StatusEvent{Running: true, Paused: false})

	r.mu.Lock()
	r.target.Store(int64(cores))
	for id := 0; id < cores; id++ {
		e.spawnLocked(r, id)
	}
	finished := r.live == 0 && r.queue.Len() == 0
	if finished {
		r.finished = true
	}
	r.mu.Unlock()
	if finished {
		r.finish()
	}

	broadcastDone := make(chan struct{})
	go e.broadcast(r, broadcastDone)
	go e.supervise(r, broadcastDone)
	return r
}

// Pause sets the pause flag. Workers hold at their next poll point.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.paused.Store(true)
	slog.Info("search paused")
	e.emit(e.statusLocked())
}

// Resume clears the pause flag.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.paused.Store(false)
	slog.Info("search resumed")
	e.emit(e.statusLocked())
}

// Stop ends the current run.
//
// # Description
//
// The run is marked stopped and detached at once, so the status event sent
// here already reports running=false. Workers exit at their next poll point
// without reporting the item they hold. A stopped run never emits a
// CompleteEvent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.stopLocked()
	e.emit(e.statusLocked())
}

func (e *Engine) stopLocked() {
	r := e.current
	e.current = nil
	e.paused.Store(false)
	if r == nil {
		return
	}

	r.logger.Info("search run stopping")
	r.stop.Store(true)

	r.mu.Lock()
	e.metrics.setLiveWorkers(0)
	finished := r.live == 0 && !r.finished
	if finished {
		r.finished = true
	}
	r.mu.Unlock()
	if finished {
		r.finish()
	}
}

// SetSpeed changes the per-item throttle. Every worker uses the new value
// from its next item on.
func (e *Engine) SetSpeed(speedUS uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.speedUS.Store(speedUS)
	slog.Info("search speed changed", "speed_us", speedUS)
	e.emit(e.statusLocked())
}

// SetCores changes the worker count.
//
// # Description
//
// n is clamped to [0, MaxWorkers]. While idle only the configured count
// changes. While running, growing spawns a worker for every identity in
// [old, n) that is not still alive; shrinking lets workers with identity >= n
// retire at their next poll point. Zero workers parks the run until cores are
// restored or Stop is called.
func (e *Engine) SetCores(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	n = e.clampCores(n)
	e.cores = n
	if r := e.current; r != nil {
		e.resize(r, n)
	} else {
		slog.Info("search idle, worker count updated", "num_workers", n)
	}
	e.emit(e.statusLocked())
}

// Close stops the current run and closes every subscriber channel. Later
// commands are ignored.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.stopLocked()
	e.closed = true
	e.mu.Unlock()

	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.subsClosed = true
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}

// Run executes one run to completion and returns its result.
//
// # Description
//
// Headless form of Start. Cancelling ctx stops the run.
//
// # Outputs
//
//   - *CompleteEvent: The final result.
//   - error: ErrEngineClosed, ErrRunInProgress, ErrRunStopped, or ctx.Err().
func (e *Engine) Run(ctx context.Context, params StartParams) (*CompleteEvent, error) {
	e.mu.Lock()
	closed, busy := e.closed, e.current != nil
	e.mu.Unlock()
	if closed {
		return nil, ErrEngineClosed
	}
	if busy {
		return nil, ErrRunInProgress
	}

	r := e.start(params)
	if r == nil {
		return nil, fmt.Errorf("start run: %w", ErrRunInProgress)
	}

	select {
	case <-r.reported:
	case <-ctx.Done():
		e.mu.Lock()
		if e.current == r {
			e.stopLocked()
			e.emit(e.statusLocked())
		}
		e.mu.Unlock()
		<-r.reported
		if r.result == nil {
			return nil, ctx.Err()
		}
	}

	if r.result == nil {
		return nil, ErrRunStopped
	}
	return r.result, nil
}

// =============================================================================
// Subscriptions
// =============================================================================

// Subscribe registers a new event subscriber.
//
// # Description
//
// The returned channel receives every event emitted after the call. Sends
// never block: when the channel's buffer is full the event is dropped for
// that subscriber. The channel is closed by the returned cancel function or
// by Close.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, e.cfg.EventBuffer)

	e.subMu.Lock()
	if e.subsClosed {
		e.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			defer e.subMu.Unlock()
			if c, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(c)
			}
		})
	}
}

func (e *Engine) emit(ev Event) {
	e.subMu.RLock()
	defer e.subMu.RUnlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.metrics.recordDropped(ev.Kind())
		}
	}
}

// =============================================================================
// Internal Helpers
// =============================================================================

func (e *Engine) statusLocked() StatusEvent {
	return StatusEvent{Running: e.current != nil, Paused: e.paused.Load()}
}

func (e *Engine) clampCores(n int) int {
	return max(0, min(n, e.cfg.MaxWorkers))
}
