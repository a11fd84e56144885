// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the JSON messages exchanged over the visualizer
// websocket.
//
// Every message is a JSON object with a "type" tag. Field names are
// snake_case.
package datatypes

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/polyrect/services/geometry"
	"github.com/AleutianAI/polyrect/services/search"
)

var (
	// ErrMalformedMessage is returned for frames that are not valid client
	// messages.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrUnknownMessageType is returned for a well-formed message with an
	// unrecognized type tag.
	ErrUnknownMessageType = errors.New("unknown message type")
)

var validate = validator.New()

// =============================================================================
// Client Messages
// =============================================================================

// Client message type tags.
const (
	TypeStart    = "start"
	TypePause    = "pause"
	TypeResume   = "resume"
	TypeStop     = "stop"
	TypeSetSpeed = "set_speed"
	TypeSetCores = "set_cores"
)

// ClientMessage is a decoded control command.
//
// Speed is set for start and set_speed, NumCores for start and set_cores.
type ClientMessage struct {
	Type     string
	Speed    uint64
	NumCores int
}

type envelope struct {
	Type string `json:"type" validate:"required"`
}

type startFields struct {
	Speed    *uint64 `json:"speed" validate:"required"`
	NumCores *uint   `json:"num_cores" validate:"required"`
}

type speedFields struct {
	Speed *uint64 `json:"speed" validate:"required"`
}

type coresFields struct {
	NumCores *uint `json:"num_cores" validate:"required"`
}

// DecodeClientMessage parses one text frame.
//
// # Outputs
//
//   - ClientMessage: The command.
//   - error: Wraps ErrMalformedMessage for undecodable JSON, a missing type,
//     or missing or invalid fields. Wraps ErrUnknownMessageType for an
//     unrecognized type.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := validate.Struct(env); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	msg := ClientMessage{Type: env.Type}
	switch env.Type {
	case TypePause, TypeResume, TypeStop:
		return msg, nil

	case TypeStart:
		var f startFields
		if err := decodeFields(data, &f); err != nil {
			return ClientMessage{}, err
		}
		msg.Speed, msg.NumCores = *f.Speed, clampInt(*f.NumCores)
		return msg, nil

	case TypeSetSpeed:
		var f speedFields
		if err := decodeFields(data, &f); err != nil {
			return ClientMessage{}, err
		}
		msg.Speed = *f.Speed
		return msg, nil

	case TypeSetCores:
		var f coresFields
		if err := decodeFields(data, &f); err != nil {
			return ClientMessage{}, err
		}
		msg.NumCores = clampInt(*f.NumCores)
		return msg, nil

	default:
		return ClientMessage{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}

func decodeFields(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return nil
}

func clampInt(v uint) int {
	const maxInt = int(^uint(0) >> 1)
	if v > uint(maxInt) {
		return maxInt
	}
	return int(v)
}

// =============================================================================
// Server Messages
// =============================================================================

// Server message type tags.
const (
	TypeInit     = "init"
	TypeUpdate   = "update"
	TypeComplete = "complete"
	TypeStatus   = "status"
)

// PointJSON is a point on the wire.
type PointJSON struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// RectJSON is a rectangle on the wire.
type RectJSON struct {
	P1 PointJSON `json:"p1"`
	P2 PointJSON `json:"p2"`
}

// LineJSON is a polygon edge on the wire.
type LineJSON struct {
	P1 PointJSON `json:"p1"`
	P2 PointJSON `json:"p2"`
}

// PolygonJSON carries the polygon edges and its bounding box as
// [minX, maxX, minY, maxY].
type PolygonJSON struct {
	Edges       []LineJSON `json:"edges"`
	BoundingBox [4]int     `json:"bounding_box"`
}

// InitMessage is sent once when a session opens.
type InitMessage struct {
	Type     string      `json:"type"`
	Polygon  PolygonJSON `json:"polygon"`
	MaxCores int         `json:"max_cores"`
}

// WorkerUpdate is one worker slot in an UpdateMessage.
type WorkerUpdate struct {
	WorkerID    int      `json:"worker_id"`
	Rect        RectJSON `json:"rect"`
	Area        uint64   `json:"area"`
	IsContained bool     `json:"is_contained"`
}

// UpdateMessage is a periodic progress snapshot.
type UpdateMessage struct {
	Type         string         `json:"type"`
	Workers      []WorkerUpdate `json:"workers"`
	CurrentBest  uint64         `json:"current_best"`
	CheckedCount uint64         `json:"checked_count"`
}

// CompleteMessage reports the result of a drained run.
type CompleteMessage struct {
	Type         string `json:"type"`
	Result       uint64 `json:"result"`
	CheckedCount uint64 `json:"checked_count"`
}

// StatusMessage reports the control state.
type StatusMessage struct {
	Type    string `json:"type"`
	Running bool   `json:"running"`
	Paused  bool   `json:"paused"`
}

// NewInit builds the init message for polygon.
func NewInit(polygon *geometry.Polygon, maxCores int) InitMessage {
	edges := polygon.Edges()
	msg := InitMessage{
		Type:     TypeInit,
		Polygon:  PolygonJSON{Edges: make([]LineJSON, 0, len(edges))},
		MaxCores: maxCores,
	}
	for _, e := range edges {
		msg.Polygon.Edges = append(msg.Polygon.Edges, LineJSON{P1: toPoint(e.P1), P2: toPoint(e.P2)})
	}
	bb := polygon.BoundingBox()
	msg.Polygon.BoundingBox = [4]int{bb.MinX, bb.MaxX, bb.MinY, bb.MaxY}
	return msg
}

// FromEvent converts an engine event to its wire message. ok is false for
// event types that have no wire form.
func FromEvent(ev search.Event) (msg any, ok bool) {
	switch ev := ev.(type) {
	case search.UpdateEvent:
		workers := make([]WorkerUpdate, 0, len(ev.Workers))
		for _, w := range ev.Workers {
			workers = append(workers, WorkerUpdate{
				WorkerID:    w.WorkerID,
				Rect:        RectJSON{P1: toPoint(w.Rect.P1), P2: toPoint(w.Rect.P2)},
				Area:        w.Area,
				IsContained: w.Contained,
			})
		}
		return UpdateMessage{
			Type:         TypeUpdate,
			Workers:      workers,
			CurrentBest:  ev.CurrentBest,
			CheckedCount: ev.CheckedCount,
		}, true
	case search.CompleteEvent:
		return CompleteMessage{Type: TypeComplete, Result: ev.Result, CheckedCount: ev.CheckedCount}, true
	case search.StatusEvent:
		return StatusMessage{Type: TypeStatus, Running: ev.Running, Paused: ev.Paused}, true
	default:
		return nil, false
	}
}

func toPoint(p geometry.Point) PointJSON {
	return PointJSON{X: p.X, Y: p.Y}
}
