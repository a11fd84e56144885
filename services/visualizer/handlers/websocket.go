// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the visualizer's HTTP and websocket handlers.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/polyrect/services/geometry"
	"github.com/AleutianAI/polyrect/services/search"
	"github.com/AleutianAI/polyrect/services/telemetry"
	"github.com/AleutianAI/polyrect/services/visualizer/datatypes"
	"github.com/AleutianAI/polyrect/services/visualizer/observability"
)

const (
	tracerName = "polyrect.visualizer"

	// maxFrameBytes caps inbound frames. Commands are a few dozen bytes.
	maxFrameBytes = 64 * 1024
)

var errEventsClosed = errors.New("engine event stream closed")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 64 * 1024,
}

// SearchEngine is the control surface a session drives.
//
// *search.Engine implements it.
type SearchEngine interface {
	Polygon() *geometry.Polygon
	MaxWorkers() int
	Subscribe() (<-chan search.Event, func())
	Start(params search.StartParams) bool
	Pause()
	Resume()
	Stop()
	SetSpeed(speedUS uint64)
	SetCores(n int)
}

var _ SearchEngine = (*search.Engine)(nil)

// SessionOptions tunes websocket sessions.
//
// # Fields
//
//   - WriteTimeout: Deadline for each outbound frame. Default: 10s.
//   - SpeedRate: Sustained set_speed applications per second. Default: 50.
//   - SpeedBurst: set_speed burst size. Default: 20.
//   - Metrics: Session metrics. Nil disables them.
//
// Only set_speed is limited. Control commands always reach the engine.
type SessionOptions struct {
	WriteTimeout time.Duration
	SpeedRate    rate.Limit
	SpeedBurst   int
	Metrics      *observability.SessionMetrics
}

// DefaultSessionOptions returns the session defaults.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		WriteTimeout: 10 * time.Second,
		SpeedRate:    50,
		SpeedBurst:   20,
	}
}

func (o SessionOptions) withDefaults() SessionOptions {
	d := DefaultSessionOptions()
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.SpeedRate <= 0 {
		o.SpeedRate = d.SpeedRate
	}
	if o.SpeedBurst <= 0 {
		o.SpeedBurst = d.SpeedBurst
	}
	return o
}

// HandleSearchWebSocket serves one control session per connection.
//
// # Description
//
// Upgrades the request, sends the init message, and subscribes to the
// engine's events. Two relays then run until either fails: the writer
// forwards engine events as JSON frames, and the reader decodes commands
// and applies them to the engine. Binary, malformed and unknown frames are
// dropped without a reply. A set_speed over the rate limit is held and
// replaced by any newer one; the held value is applied before the next
// control command or once the limiter allows. Closing the connection ends
// both relays but leaves any run going.
//
// # Inputs
//
//   - engine: The shared search engine.
//   - opts: Session options. Zero fields take DefaultSessionOptions values.
//
// # Thread Safety
//
// Only the writer relay writes to the connection after init.
func HandleSearchWebSocket(engine SearchEngine, opts SessionOptions) gin.HandlerFunc {
	opts = opts.withDefaults()

	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		ws.SetReadLimit(maxFrameBytes)

		s := &session{
			id:      uuid.NewString(),
			ws:      ws,
			engine:  engine,
			opts:    opts,
			limiter: rate.NewLimiter(opts.SpeedRate, opts.SpeedBurst),
		}
		s.serve(c.Request.Context())
	}
}

type session struct {
	id      string
	ws      *websocket.Conn
	engine  SearchEngine
	opts    SessionOptions
	limiter *rate.Limiter
	logger  *slog.Logger

	// speedMu guards the held set_speed value.
	speedMu    sync.Mutex
	heldSpeed  uint64
	holding    bool
	speedTimer *time.Timer
}

func (s *session) serve(parent context.Context) {
	ctx, span := telemetry.StartSpan(parent, tracerName, "visualizer.Session",
		trace.WithAttributes(attribute.String("session_id", s.id)),
	)
	defer span.End()
	s.logger = telemetry.LoggerWithTrace(ctx, slog.Default()).With("session_id", s.id)

	opened := time.Now()
	s.opts.Metrics.SessionOpened()
	defer func() { s.opts.Metrics.SessionClosed(time.Since(opened)) }()
	s.logger.Info("websocket session opened", "remote_addr", s.ws.RemoteAddr().String())

	events, unsubscribe := s.engine.Subscribe()
	defer unsubscribe()

	if err := s.send(datatypes.TypeInit, datatypes.NewInit(s.engine.Polygon(), s.engine.MaxWorkers())); err != nil {
		telemetry.RecordError(span, err)
		s.logger.Warn("failed to send init", "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.writeLoop(gctx, events) })
	g.Go(s.readLoop)
	g.Go(func() error {
		<-gctx.Done()
		return s.ws.Close()
	})

	err := g.Wait()
	s.flushSpeed()
	if isNormalClose(err) {
		telemetry.SetSpanOK(span)
		s.logger.Info("websocket session closed")
		return
	}
	telemetry.RecordError(span, err)
	s.logger.Info("websocket session closed", "reason", err.Error())
}

// writeLoop forwards engine events until the context ends, the stream
// closes, or a write fails. It always returns a non-nil error so the group
// context is cancelled.
func (s *session) writeLoop(ctx context.Context, events <-chan search.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return errEventsClosed
			}
			msg, ok := datatypes.FromEvent(ev)
			if !ok {
				continue
			}
			if err := s.send(string(ev.Kind()), msg); err != nil {
				return err
			}
		}
	}
}

// readLoop applies inbound commands until the connection fails. It always
// returns a non-nil error.
func (s *session) readLoop() error {
	for {
		msgType, data, err := s.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if msgType != websocket.TextMessage {
			s.opts.Metrics.Dropped(observability.DropBinary)
			continue
		}

		msg, err := datatypes.DecodeClientMessage(data)
		if err != nil {
			reason := observability.DropMalformed
			if errors.Is(err, datatypes.ErrUnknownMessageType) {
				reason = observability.DropUnknownType
			}
			s.opts.Metrics.Dropped(reason)
			s.logger.Debug("dropped inbound frame", "reason", reason, "error", err)
			continue
		}

		s.opts.Metrics.Message(observability.DirectionInbound, msg.Type)
		s.dispatch(msg)
	}
}

func (s *session) dispatch(msg datatypes.ClientMessage) {
	s.logger.Info("received command", "type", msg.Type, "speed_us", msg.Speed, "num_cores", msg.NumCores)

	if msg.Type == datatypes.TypeSetSpeed {
		s.setSpeed(msg.Speed)
		return
	}
	s.flushSpeed()

	switch msg.Type {
	case datatypes.TypeStart:
		s.engine.Start(search.StartParams{SpeedUS: msg.Speed, NumCores: msg.NumCores})
	case datatypes.TypePause:
		s.engine.Pause()
	case datatypes.TypeResume:
		s.engine.Resume()
	case datatypes.TypeStop:
		s.engine.Stop()
	case datatypes.TypeSetCores:
		s.engine.SetCores(msg.NumCores)
	}
}

// setSpeed applies speed now if the limiter allows. Otherwise the value is
// held until a token is due, and a value already held is replaced.
func (s *session) setSpeed(speed uint64) {
	s.speedMu.Lock()
	defer s.speedMu.Unlock()

	if s.holding {
		s.heldSpeed = speed
		s.opts.Metrics.Dropped(observability.DropCoalesced)
		return
	}
	if s.limiter.Allow() {
		s.engine.SetSpeed(speed)
		return
	}
	s.heldSpeed = speed
	s.holding = true
	s.speedTimer = time.AfterFunc(s.limiter.Reserve().Delay(), s.flushSpeed)
}

// flushSpeed applies the held set_speed value, if any.
func (s *session) flushSpeed() {
	s.speedMu.Lock()
	defer s.speedMu.Unlock()

	if !s.holding {
		return
	}
	s.holding = false
	if s.speedTimer != nil {
		s.speedTimer.Stop()
		s.speedTimer = nil
	}
	s.engine.SetSpeed(s.heldSpeed)
}

func (s *session) send(msgType string, v any) error {
	if err := s.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := s.ws.WriteJSON(v); err != nil {
		return fmt.Errorf("write %s: %w", msgType, err)
	}
	s.opts.Metrics.Message(observability.DirectionOutbound, msgType)
	return nil
}

func isNormalClose(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return false
	}
	switch ce.Code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
		return true
	}
	return false
}
