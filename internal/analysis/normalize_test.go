package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_Variants(t *testing.T) {
	tests := []struct {
		name  string
		in    Fields
		check func(t *testing.T, s Snapshot)
	}{
		{
			name: "current schema with nudge object",
			in: Fields{
				"dominant_state":    "Confident",
				"engagement_score":  8.0,
				"eye_focus":         "on_screen",
				"proctoring_alerts": []any{},
				"smart_nudge":       map[string]any{"action": "Push harder", "priority": "HIGH"},
				"technical_capture": []any{map[string]any{"topic": "Go", "sentiment": "Positive"}},
				"pacing":            "normal",
			},
			check: func(t *testing.T, s Snapshot) {
				assert.Equal(t, "confident", s.DominantState)
				assert.Equal(t, 8.0, s.EngagementScore)
				assert.Equal(t, 80.0, s.Confidence)
				assert.Equal(t, "Push harder", s.Nudge)
				assert.Equal(t, "high", s.NudgePriority)
				assert.Equal(t, []TopicTag{{Topic: "Go", Sentiment: "positive"}}, s.Topics)
				assert.Equal(t, 72, s.HeartRate)
				assert.Equal(t, 15, s.BlinkRate)
			},
		},
		{
			name: "legacy schema with flat nudge",
			in: Fields{
				"primary":              "anxious",
				"confidence":           65,
				"smart_nudge":          "Slow down",
				"smart_nudge_priority": "medium",
				"topic_tags":           []any{map[string]any{"topic": "React", "sentiment": "neutral"}},
				"heartRate":            80,
				"blinkRate":            "18",
			},
			check: func(t *testing.T, s Snapshot) {
				assert.Equal(t, "anxious", s.DominantState)
				assert.Equal(t, 65.0, s.Confidence)
				assert.Equal(t, 6.5, s.EngagementScore)
				assert.Equal(t, "Slow down", s.Nudge)
				assert.Equal(t, "medium", s.NudgePriority)
				assert.Equal(t, "React", s.Topics[0].Topic)
				assert.Equal(t, 80, s.HeartRate)
				assert.Equal(t, 18, s.BlinkRate)
			},
		},
		{
			name: "dominant_emotion and confident_meter",
			in: Fields{
				"dominant_emotion": "hesitant",
				"confident_meter":  "40",
			},
			check: func(t *testing.T, s Snapshot) {
				assert.Equal(t, "hesitant", s.DominantState)
				assert.Equal(t, 40.0, s.Confidence)
				assert.Equal(t, 4.0, s.EngagementScore)
			},
		},
		{
			name: "empty input gets defaults",
			in:   Fields{},
			check: func(t *testing.T, s Snapshot) {
				assert.Equal(t, "neutral", s.DominantState)
				assert.Equal(t, 7.0, s.EngagementScore)
				assert.Equal(t, 70.0, s.Confidence)
				assert.Equal(t, "low", s.NudgePriority)
				assert.NotNil(t, s.ProctoringAlerts)
				assert.NotNil(t, s.Topics)
			},
		},
		{
			name: "out of range values are clamped",
			in: Fields{
				"engagement_score": 42,
				"confidence":       -3,
				"smart_nudge":      map[string]any{"action": "x", "priority": "urgent"},
			},
			check: func(t *testing.T, s Snapshot) {
				assert.Equal(t, 10.0, s.EngagementScore)
				assert.Equal(t, 0.0, s.Confidence)
				assert.Equal(t, "low", s.NudgePriority)
			},
		},
		{
			name: "alerts as string and topics as strings",
			in: Fields{
				"proctoring_alerts": "looking_away_from_screen",
				"technical_capture": []any{"Kubernetes", "", map[string]any{"topic": ""}},
			},
			check: func(t *testing.T, s Snapshot) {
				assert.Equal(t, []string{"looking_away_from_screen"}, s.ProctoringAlerts)
				assert.Equal(t, []TopicTag{{Topic: "Kubernetes", Sentiment: "neutral"}}, s.Topics)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Normalize(tt.in)
			assert.Zero(t, s.Sequence)
			assert.True(t, s.CapturedAt.IsZero())
			tt.check(t, s)
		})
	}
}

func TestNormalize_SynthesizerOutputIsCanonical(t *testing.T) {
	synth := NewSynthesizer(7)
	for i := 0; i < 50; i++ {
		s := Normalize(synth.Fields())
		assert.Contains(t, synthStates, s.DominantState)
		assert.GreaterOrEqual(t, s.Confidence, 60.0)
		assert.LessOrEqual(t, s.Confidence, 95.0)
		assert.GreaterOrEqual(t, s.EngagementScore, 5.0)
		assert.LessOrEqual(t, s.EngagementScore, 10.0)
		assert.Contains(t, []string{"low", "medium"}, s.NudgePriority)
		assert.LessOrEqual(t, len(s.Topics), 2)
		assert.NotEmpty(t, s.Insight)
	}
}
