// ABOUTME: Bridge protocol message definitions for editor clients
// ABOUTME: JSON envelopes for control, binary chunks for the monitor stream
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Version is the bridge protocol version negotiated in the handshake
const Version = 1

// Message is the top-level wrapper for all bridge messages.
//
// Types: client/hello, server/hello, server/error, client/time,
// server/time, transport/command, edit/command, project/load,
// project/save, project/saved, transport/state, frame/update,
// capture/start, capture/stop.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ClientHello is sent by editor clients to initiate the handshake
type ClientHello struct {
	ClientID string   `json:"client_id"`
	Name     string   `json:"name"`
	Version  int      `json:"version"`
	Roles    []string `json:"roles"` // "editor" and/or "monitor"
}

// ServerHello is the engine's response to client/hello
type ServerHello struct {
	ServerID string  `json:"server_id"`
	Name     string  `json:"name"`
	Version  int     `json:"version"`
	Software string  `json:"software,omitempty"`
	Sequence string  `json:"sequence"`
	CanvasW  float64 `json:"canvas_w"`
	CanvasH  float64 `json:"canvas_h"`
}

// ErrorPayload reports a failed request or a rejected connection
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// TransportCommand drives the playback clock
type TransportCommand struct {
	Action    string  `json:"action"` // play, pause, seek, rate, loop, loop-clear
	Position  float64 `json:"position,omitempty"`
	Rate      float64 `json:"rate,omitempty"`
	LoopStart float64 `json:"loop_start,omitempty"`
	LoopEnd   float64 `json:"loop_end,omitempty"`
}

// EditCommand mutates the sequence. Element is the full element document
// for add and update; transient updates (mid-gesture) set Transient so no
// undo point is recorded.
type EditCommand struct {
	Action    string          `json:"action"` // add, update, remove, undo, redo, commit, add-marker, mute-track
	Element   json.RawMessage `json:"element,omitempty"`
	ElementID string          `json:"element_id,omitempty"`
	TrackID   string          `json:"track_id,omitempty"`
	Muted     bool            `json:"muted,omitempty"`
	Time      float64         `json:"time,omitempty"`
	Text      string          `json:"text,omitempty"`
	Color     string          `json:"color,omitempty"`
	Label     string          `json:"label,omitempty"`
	Transient bool            `json:"transient,omitempty"`
}

// ProjectLoad replaces the whole sequence document
type ProjectLoad struct {
	Sequence json.RawMessage `json:"sequence"`
}

// ProjectSave asks the engine to persist a snapshot of the live sequence
type ProjectSave struct {
	Name string `json:"name,omitempty"`
}

// ProjectSaved confirms a persisted snapshot
type ProjectSaved struct {
	SnapshotID string `json:"snapshot_id"`
	Name       string `json:"name"`
}

// TransportState mirrors the engine status for remote UIs
type TransportState struct {
	Sequence  string  `json:"sequence"`
	Playing   bool    `json:"playing"`
	Position  float64 `json:"position"`
	Rate      float64 `json:"rate"`
	Duration  float64 `json:"duration"`
	LoopStart float64 `json:"loop_start,omitempty"`
	LoopEnd   float64 `json:"loop_end,omitempty"`
	LoopSet   bool    `json:"loop_set,omitempty"`
	CanUndo   bool    `json:"can_undo"`
	CanRedo   bool    `json:"can_redo"`
	UndoLabel string  `json:"undo_label,omitempty"`
	RedoLabel string  `json:"redo_label,omitempty"`
}

// ClientTime is sent for clock synchronization
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // client clock, microseconds
}

// ServerTime is the response to client/time
type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"` // echoed
	ServerReceived    int64 `json:"server_received"`
	ServerTransmitted int64 `json:"server_transmitted"`
}

// DecodePayload re-decodes a generic message payload into a typed struct
func DecodePayload(payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// MonitorChunkType is the binary message type for monitor audio chunks
const MonitorChunkType = 1

// EncodeMonitorChunk frames one encoded audio packet with its engine
// timestamp. Binary format: [type:1][timestamp:8][payload:N].
func EncodeMonitorChunk(timestampMicros int64, payload []byte) []byte {
	chunk := make([]byte, 1+8+len(payload))
	chunk[0] = MonitorChunkType
	binary.BigEndian.PutUint64(chunk[1:9], uint64(timestampMicros))
	copy(chunk[9:], payload)
	return chunk
}

// DecodeMonitorChunk splits a binary frame into timestamp and payload
func DecodeMonitorChunk(chunk []byte) (int64, []byte, error) {
	if len(chunk) < 9 {
		return 0, nil, fmt.Errorf("monitor chunk too short: %d bytes", len(chunk))
	}
	if chunk[0] != MonitorChunkType {
		return 0, nil, fmt.Errorf("unknown binary message type %d", chunk[0])
	}
	return int64(binary.BigEndian.Uint64(chunk[1:9])), chunk[9:], nil
}
