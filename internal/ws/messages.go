package ws

import (
	"interviewsense/internal/analysis"
)

// Envelope is the part of every inbound frame the server looks at.
type Envelope struct {
	Type string `json:"type"`
}

var (
	pongFrame     = []byte(`{"type":"pong"}`)
	peerLeftFrame = []byte(`{"type":"peer_left"}`)
)

const roomFullMessage = "Room is full. Maximum 2 participants allowed."

// ──────────────────────────── Outbound DTOs ─────────────────────────────────

type SnapshotUpdate struct {
	Type     string            `json:"type"` // "snapshot_update"
	Snapshot analysis.Snapshot `json:"snapshot"`
}

type Pong struct {
	Type string `json:"type"`
}

// ErrorBody is returned for rejected or malformed frames.
type ErrorBody struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ──────────────────────────── Inbound DTOs ──────────────────────────────────

// SampleRequest is the body of "sample" (alias "multimodal_frame").
type SampleRequest struct {
	Type string `json:"type"`
	analysis.Sample
}

type PingRequest struct {
	Type string `json:"type"`
}
