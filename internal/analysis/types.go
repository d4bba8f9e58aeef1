package analysis

import (
	"context"
	"errors"
	"time"
)

var (
	ErrStaleResult   = errors.New("stale analysis result")
	ErrInvalidSample = errors.New("invalid sample")
	ErrRoomInactive  = errors.New("room has no producer")
)

// Sample is one producer capture: a representative video frame and an
// optional audio clip, both base64 (optionally as data URLs).
type Sample struct {
	Video string `json:"video" validate:"required"`
	Audio string `json:"audio,omitempty"`
}

// Fields is the raw, loosely typed analyzer output before normalization.
type Fields map[string]any

type TopicTag struct {
	Topic     string `json:"topic"`
	Sentiment string `json:"sentiment"`
}

// Snapshot is the canonical behavioral-analysis result that leaves the
// pipeline. Every consumer sees exactly this shape.
type Snapshot struct {
	DominantState    string     `json:"dominant_state"`
	Confidence       float64    `json:"confidence"`
	EngagementScore  float64    `json:"engagement_score"`
	EyeFocus         string     `json:"eye_focus,omitempty"`
	ProctoringAlerts []string   `json:"proctoring_alerts"`
	Nudge            string     `json:"smart_nudge"`
	NudgePriority    string     `json:"smart_nudge_priority"`
	Topics           []TopicTag `json:"technical_capture"`
	Pacing           string     `json:"pacing,omitempty"`
	Insight          string     `json:"insight,omitempty"`
	HeartRate        int        `json:"heart_rate"`
	BlinkRate        int        `json:"blink_rate"`

	Sequence        uint64    `json:"sequence"`
	CapturedAt      time.Time `json:"captured_at"`
	RelativeSeconds float64   `json:"relative_seconds"`
}

// Analyzer is the remote behavioral-analysis capability.
type Analyzer interface {
	Analyze(ctx context.Context, s Sample) (Fields, error)
}

// Publisher receives results that passed the ordering guard.
type Publisher interface {
	Publish(ctx context.Context, roomID string, snap Snapshot)
}

// MeetingClock resolves when a meeting started. A zero time means unknown.
type MeetingClock interface {
	StartedAt(ctx context.Context, roomID string) (time.Time, error)
}
