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
	"math/rand"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/polyrect/services/geometry"
)

// =============================================================================
// Helpers
// =============================================================================

var examplePoints = []geometry.Point{
	{X: 7, Y: 1}, {X: 11, Y: 1}, {X: 11, Y: 7}, {X: 9, Y: 7},
	{X: 9, Y: 5}, {X: 2, Y: 5}, {X: 2, Y: 3}, {X: 7, Y: 3},
}

func testConfig() Config {
	return Config{
		MaxWorkers:        8,
		BroadcastInterval: time.Millisecond,
		PausePoll:         time.Millisecond,
		EventBuffer:       4096,
	}
}

func squarePolygon(size int) *geometry.Polygon {
	return geometry.NewPolygon([]geometry.Point{{X: 0, Y: 0}, {X: 0, Y: size}, {X: size, Y: size}, {X: size, Y: 0}})
}

// farPolygon contains none of the rectangles spanned by randomPoints, so no
// worker ever takes the early exit.
func farPolygon() *geometry.Polygon {
	return geometry.NewPolygon([]geometry.Point{{X: 1000, Y: 1000}, {X: 1000, Y: 1010}, {X: 1010, Y: 1010}, {X: 1010, Y: 1000}})
}

func randomPoints(n int, seed int64) []geometry.Point {
	rng := rand.New(rand.NewSource(seed))
	points := make([]geometry.Point, n)
	for i := range points {
		points[i] = geometry.Point{X: rng.Intn(100), Y: rng.Intn(100)}
	}
	return points
}

func runToCompletion(t *testing.T, e *Engine, params StartParams) *CompleteEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := e.Run(ctx, params)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

// nextEvent returns the first event on ch matching match, failing after
// timeout.
func nextEvent(t *testing.T, ch <-chan Event, timeout time.Duration, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				t.Fatal("event channel closed")
			}
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return nil
		}
	}
}

// drain discards everything currently buffered on ch.
func drain(ch <-chan Event) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func isKind(kind EventKind) func(Event) bool {
	return func(ev Event) bool { return ev.Kind() == kind }
}

// =============================================================================
// Results
// =============================================================================

func TestEngine_SquareScenario(t *testing.T) {
	points := []geometry.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 5, Y: 5}}

	for _, workers := range []int{1, 4} {
		e := New(squarePolygon(10), points, testConfig())
		res := runToCompletion(t, e, StartParams{NumCores: workers})

		assert.Equal(t, uint64(121), res.Result, "workers=%d", workers)
		assert.Equal(t, uint64(10), res.CheckedCount, "workers=%d", workers)
		e.Close()
	}
}

func TestEngine_MatchesSolveAcrossWorkerCounts(t *testing.T) {
	polygon := geometry.NewPolygon(examplePoints)
	want, err := Solve(context.Background(), polygon, geometry.GenerateCandidates(examplePoints))
	require.NoError(t, err)
	require.True(t, want.Found)

	for _, workers := range []int{1, 2, 8} {
		for i := 0; i < 10; i++ {
			e := New(polygon, examplePoints, testConfig())
			res := runToCompletion(t, e, StartParams{NumCores: workers})

			assert.Equal(t, want.Candidate.Area, res.Result, "workers=%d", workers)
			assert.Equal(t, uint64(28), res.CheckedCount, "workers=%d: every candidate checked once", workers)
			e.Close()
		}
	}
}

func TestEngine_CheckedEqualsEnqueued(t *testing.T) {
	points := randomPoints(60, 7)
	total := uint64(len(points) * (len(points) - 1) / 2)

	for _, workers := range []int{1, 2, 8} {
		e := New(squarePolygon(100), points, testConfig())
		res := runToCompletion(t, e, StartParams{NumCores: workers})

		assert.Equal(t, total, res.CheckedCount, "workers=%d", workers)
		assert.Equal(t, geometry.GenerateCandidates(points)[0].Area, res.Result, "convex polygon contains the largest pair")
		e.Close()
	}
}

func TestEngine_EmptyCandidateList(t *testing.T) {
	e := New(squarePolygon(10), []geometry.Point{{X: 1, Y: 1}}, testConfig())
	defer e.Close()

	res := runToCompletion(t, e, StartParams{NumCores: 2})
	assert.Equal(t, uint64(0), res.Result)
	assert.Equal(t, uint64(0), res.CheckedCount)
	assert.False(t, e.Status().Running)
}

func TestSolve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Solve(ctx, farPolygon(), geometry.GenerateCandidates(randomPoints(10, 1)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolve_NothingContained(t *testing.T) {
	candidates := geometry.GenerateCandidates(randomPoints(10, 1))
	sol, err := Solve(context.Background(), farPolygon(), candidates)
	require.NoError(t, err)
	assert.False(t, sol.Found)
	assert.Equal(t, uint64(len(candidates)), sol.Checked)
}

// =============================================================================
// Control Plane
// =============================================================================

func TestEngine_StartEmitsStatusThenCompletes(t *testing.T) {
	e := New(squarePolygon(100), randomPoints(30, 3), testConfig())
	defer e.Close()
	events, cancel := e.Subscribe()
	defer cancel()

	require.True(t, e.Start(StartParams{NumCores: 2}))

	first := nextEvent(t, events, time.Second, func(Event) bool { return true })
	assert.Equal(t, StatusEvent{Running: true, Paused: false}, first)

	complete := nextEvent(t, events, 10*time.Second, isKind(EventComplete)).(CompleteEvent)
	assert.Equal(t, uint64(435), complete.CheckedCount)

	status := nextEvent(t, events, time.Second, isKind(EventStatus))
	assert.Equal(t, StatusEvent{Running: false, Paused: false}, status)
}

func TestEngine_StartIgnoredWhileRunning(t *testing.T) {
	e := New(farPolygon(), randomPoints(50, 4), testConfig())
	defer e.Close()
	events, cancel := e.Subscribe()
	defer cancel()

	require.True(t, e.Start(StartParams{SpeedUS: 1000, NumCores: 1}))
	nextEvent(t, events, time.Second, isKind(EventStatus))

	assert.False(t, e.Start(StartParams{NumCores: 4}))
	status := nextEvent(t, events, time.Second, isKind(EventStatus))
	assert.Equal(t, StatusEvent{Running: true}, status)
	assert.Equal(t, 1, e.Workers(), "ignored start keeps the worker count")

	e.Stop()
}

func TestEngine_PauseResumeIdempotent(t *testing.T) {
	e := New(farPolygon(), randomPoints(100, 5), testConfig())
	defer e.Close()
	events, cancel := e.Subscribe()
	defer cancel()

	require.True(t, e.Start(StartParams{SpeedUS: 1000, NumCores: 2}))
	nextEvent(t, events, time.Second, isKind(EventStatus))

	e.Pause()
	once := e.Status()
	e.Pause()
	assert.Equal(t, once, e.Status())
	assert.Equal(t, StatusEvent{Running: true, Paused: true}, once)

	for i := 0; i < 2; i++ {
		ev := nextEvent(t, events, time.Second, isKind(EventStatus))
		assert.Equal(t, StatusEvent{Running: true, Paused: true}, ev)
	}

	// Workers hold while paused: the checked count stops moving.
	time.Sleep(20 * time.Millisecond)
	_, before, ok := e.Progress()
	require.True(t, ok)
	time.Sleep(50 * time.Millisecond)
	_, after, _ := e.Progress()
	assert.Equal(t, before, after)

	e.Resume()
	e.Resume()
	assert.Equal(t, StatusEvent{Running: true, Paused: false}, e.Status())
	require.Eventually(t, func() bool {
		_, checked, _ := e.Progress()
		return checked > after
	}, 5*time.Second, 5*time.Millisecond)

	e.Stop()
}

func TestEngine_StopImmediatelyAfterStart(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := testConfig()
	cfg.Metrics = NewMetrics(reg)
	e := New(farPolygon(), randomPoints(50, 6), cfg)
	defer e.Close()
	events, cancel := e.Subscribe()
	defer cancel()

	require.True(t, e.Start(StartParams{SpeedUS: 200000, NumCores: 4}))
	e.Stop()

	assert.Equal(t, StatusEvent{Running: true}, nextEvent(t, events, time.Second, isKind(EventStatus)))
	assert.Equal(t, StatusEvent{Running: false}, nextEvent(t, events, time.Second, isKind(EventStatus)))
	assert.False(t, e.Status().Running)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(cfg.Metrics.RunsTotal.WithLabelValues(OutcomeStopped)) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(cfg.Metrics.RunsTotal.WithLabelValues(OutcomeCompleted)))

	// No complete event for a stopped run.
	for {
		select {
		case ev := <-events:
			assert.NotEqual(t, EventComplete, ev.Kind())
			continue
		default:
		}
		break
	}
}

func TestEngine_StopThenStartRunsFresh(t *testing.T) {
	points := randomPoints(40, 8)
	e := New(farPolygon(), points, testConfig())
	defer e.Close()

	require.True(t, e.Start(StartParams{SpeedUS: 100000, NumCores: 4}))
	e.Stop()

	res := runToCompletion(t, e, StartParams{NumCores: 3})
	assert.Equal(t, uint64(len(points)*(len(points)-1)/2), res.CheckedCount)
}

func TestEngine_StoppedRunLeavesGaugesToNextRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := testConfig()
	cfg.Metrics = NewMetrics(reg)
	e := New(farPolygon(), randomPoints(40, 9), cfg)
	defer e.Close()

	require.True(t, e.Start(StartParams{SpeedUS: 20000, NumCores: 4}))
	require.Eventually(t, func() bool {
		_, checked, _ := e.Progress()
		return checked >= 4
	}, 5*time.Second, time.Millisecond)
	e.Stop()
	require.True(t, e.Start(StartParams{SpeedUS: 1000000, NumCores: 1}))

	// The old workers retire while the new run is current.
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(cfg.Metrics.RetirementsTotal.WithLabelValues(RetireStopped)) == 4
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(cfg.Metrics.LiveWorkers))
	assert.Equal(t, 0.0, testutil.ToFloat64(cfg.Metrics.BestArea))
	assert.Equal(t, 1, e.LiveWorkers())
	e.Stop()
	assert.Equal(t, 0.0, testutil.ToFloat64(cfg.Metrics.LiveWorkers))
}

func TestEngine_SetSpeedAndIdleSetCores(t *testing.T) {
	e := New(farPolygon(), randomPoints(10, 9), testConfig())
	defer e.Close()
	events, cancel := e.Subscribe()
	defer cancel()

	e.SetSpeed(42)
	assert.Equal(t, uint64(42), e.Speed())
	assert.Equal(t, StatusEvent{}, nextEvent(t, events, time.Second, isKind(EventStatus)))

	e.SetCores(100)
	assert.Equal(t, 8, e.Workers(), "clamped to MaxWorkers")
	e.SetCores(-3)
	assert.Equal(t, 0, e.Workers())
	assert.Equal(t, 0, e.LiveWorkers())
}

// =============================================================================
// Resize
// =============================================================================

func TestEngine_ShrinkAndGrow(t *testing.T) {
	e := New(farPolygon(), randomPoints(200, 10), testConfig())
	defer e.Close()
	events, cancel := e.Subscribe()
	defer cancel()

	require.True(t, e.Start(StartParams{SpeedUS: 2000, NumCores: 4}))
	require.Eventually(t, func() bool { return e.LiveWorkers() == 4 }, time.Second, time.Millisecond)

	e.SetCores(1)
	require.Eventually(t, func() bool { return e.LiveWorkers() == 1 }, 5*time.Second, time.Millisecond)
	drain(events)

	// Retired workers clear their slots, so updates only carry worker 0.
	ev := nextEvent(t, events, 5*time.Second, func(ev Event) bool {
		u, ok := ev.(UpdateEvent)
		return ok && len(u.Workers) == 1
	}).(UpdateEvent)
	assert.Equal(t, 0, ev.Workers[0].WorkerID)

	e.SetCores(3)
	require.Eventually(t, func() bool { return e.LiveWorkers() == 3 }, 5*time.Second, time.Millisecond)
	drain(events)
	ev = nextEvent(t, events, 5*time.Second, func(ev Event) bool {
		u, ok := ev.(UpdateEvent)
		return ok && len(u.Workers) == 3
	}).(UpdateEvent)
	for i, w := range ev.Workers {
		assert.Equal(t, i, w.WorkerID)
	}

	e.Stop()
}

func TestEngine_ZeroCoresParksUntilStop(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := testConfig()
	cfg.Metrics = NewMetrics(reg)
	e := New(farPolygon(), randomPoints(200, 11), cfg)
	defer e.Close()
	events, cancel := e.Subscribe()
	defer cancel()

	require.True(t, e.Start(StartParams{SpeedUS: 1000, NumCores: 2}))
	e.SetCores(0)
	require.Eventually(t, func() bool { return e.LiveWorkers() == 0 }, 5*time.Second, time.Millisecond)

	_, checked, _ := e.Progress()
	time.Sleep(30 * time.Millisecond)
	_, later, ok := e.Progress()
	assert.True(t, ok)
	assert.True(t, e.Status().Running, "parked run is still running")
	assert.Equal(t, checked, later)

	e.Stop()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(cfg.Metrics.RunsTotal.WithLabelValues(OutcomeStopped)) == 1
	}, 5*time.Second, 10*time.Millisecond)

	for {
		select {
		case ev := <-events:
			assert.NotEqual(t, EventComplete, ev.Kind())
			continue
		default:
		}
		break
	}
}

func TestEngine_ZeroCoresThenRestore(t *testing.T) {
	points := randomPoints(200, 12)
	e := New(farPolygon(), points, testConfig())
	defer e.Close()
	events, cancel := e.Subscribe()
	defer cancel()

	require.True(t, e.Start(StartParams{SpeedUS: 1000, NumCores: 2}))
	e.SetCores(0)
	require.Eventually(t, func() bool { return e.LiveWorkers() == 0 }, 5*time.Second, time.Millisecond)

	e.SetSpeed(0)
	e.SetCores(4)

	complete := nextEvent(t, events, 10*time.Second, isKind(EventComplete)).(CompleteEvent)
	assert.Equal(t, uint64(len(points)*(len(points)-1)/2), complete.CheckedCount)
}

// =============================================================================
// Subscriptions and Metrics
// =============================================================================

func TestEngine_MetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := testConfig()
	cfg.Metrics = NewMetrics(reg)
	points := []geometry.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 5, Y: 5}}
	e := New(squarePolygon(10), points, cfg)
	defer e.Close()

	runToCompletion(t, e, StartParams{NumCores: 1})

	assert.Equal(t, 10.0, testutil.ToFloat64(cfg.Metrics.CandidatesChecked))
	assert.Equal(t, 10.0, testutil.ToFloat64(cfg.Metrics.CandidatesContained))
	assert.Equal(t, 121.0, testutil.ToFloat64(cfg.Metrics.BestArea))
	assert.Equal(t, 1.0, testutil.ToFloat64(cfg.Metrics.RunsTotal.WithLabelValues(OutcomeCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(cfg.Metrics.RetirementsTotal.WithLabelValues(RetireDrained)))
	assert.Equal(t, 0.0, testutil.ToFloat64(cfg.Metrics.LiveWorkers))
}

func TestEngine_SlowSubscriberDropsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := testConfig()
	cfg.Metrics = NewMetrics(reg)
	cfg.EventBuffer = 1
	e := New(farPolygon(), nil, cfg)
	defer e.Close()

	_, cancel := e.Subscribe()
	defer cancel()

	e.Pause()
	e.Resume()
	e.Pause()

	assert.Equal(t, 2.0, testutil.ToFloat64(cfg.Metrics.EventsDroppedTotal.WithLabelValues(string(EventStatus))))
}

func TestEngine_UnsubscribeClosesChannel(t *testing.T) {
	e := New(farPolygon(), nil, testConfig())
	defer e.Close()

	events, cancel := e.Subscribe()
	cancel()
	cancel()

	_, ok := <-events
	assert.False(t, ok)
}

func TestEngine_Close(t *testing.T) {
	e := New(farPolygon(), randomPoints(50, 13), testConfig())
	events, _ := e.Subscribe()

	require.True(t, e.Start(StartParams{SpeedUS: 1000, NumCores: 2}))
	e.Close()
	e.Close()

	for range events {
	}
	assert.False(t, e.Status().Running)

	_, err := e.Run(context.Background(), StartParams{NumCores: 1})
	assert.True(t, errors.Is(err, ErrEngineClosed))

	late, _ := e.Subscribe()
	_, ok := <-late
	assert.False(t, ok)
}

func TestEngine_RunCancelled(t *testing.T) {
	e := New(farPolygon(), randomPoints(100, 14), testConfig())
	defer e.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := e.Run(ctx, StartParams{SpeedUS: 5000, NumCores: 1})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, e.Status().Running)
}
