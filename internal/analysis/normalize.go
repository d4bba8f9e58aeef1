package analysis

import (
	"math"
	"strings"

	"github.com/spf13/cast"
)

const (
	defaultState      = "neutral"
	defaultPriority   = "low"
	defaultEngagement = 7.0
	defaultHeartRate  = 72
	defaultBlinkRate  = 15
)

// Normalize maps every analyzer response shape seen so far onto Snapshot.
// It is pure: sequencing and timing fields are left zero for the caller.
//
// Known variants:
//
//	dominant_state | dominant_emotion | primary | emotion
//	smart_nudge {action, priority} | smart_nudge "text" + smart_nudge_priority
//	technical_capture | topic_tags
//	confidence | confident_meter   (falls back to engagement_score*10)
//	heartRate | heart_rate, blinkRate | blink_rate
func Normalize(f Fields) Snapshot {
	snap := Snapshot{
		DominantState:    strings.ToLower(stringOf(f, "dominant_state", "dominant_emotion", "primary", "emotion")),
		EyeFocus:         strings.ToLower(stringOf(f, "eye_focus", "eyeFocus")),
		ProctoringAlerts: alertsOf(f),
		Topics:           topicsOf(f),
		Pacing:           strings.ToLower(stringOf(f, "pacing")),
		Insight:          stringOf(f, "insight"),
	}
	if snap.DominantState == "" {
		snap.DominantState = defaultState
	}

	snap.Nudge, snap.NudgePriority = nudgeOf(f)

	engagement, hasEngagement := numberOf(f, "engagement_score", "engagement")
	confidence, hasConfidence := numberOf(f, "confidence", "confident_meter")
	switch {
	case hasConfidence && !hasEngagement:
		engagement = confidence / 10
	case !hasConfidence && !hasEngagement:
		engagement = defaultEngagement
	}
	if !hasConfidence {
		confidence = engagement * 10
	}
	snap.EngagementScore = clamp(engagement, 0, 10)
	snap.Confidence = clamp(confidence, 0, 100)

	snap.HeartRate = intOf(f, defaultHeartRate, "heartRate", "heart_rate")
	snap.BlinkRate = intOf(f, defaultBlinkRate, "blinkRate", "blink_rate")
	return snap
}

func nudgeOf(f Fields) (action, priority string) {
	v, _ := firstOf(f, "smart_nudge", "nudge")
	switch n := v.(type) {
	case map[string]any:
		action = cast.ToString(n["action"])
		priority = cast.ToString(n["priority"])
	case nil:
	default:
		action = cast.ToString(n)
	}
	if priority == "" {
		priority = stringOf(f, "smart_nudge_priority", "nudge_priority")
	}
	return strings.TrimSpace(action), normalizePriority(priority)
}

func normalizePriority(p string) string {
	switch p = strings.ToLower(strings.TrimSpace(p)); p {
	case "low", "medium", "high":
		return p
	default:
		return defaultPriority
	}
}

func alertsOf(f Fields) []string {
	out := []string{}
	v, ok := firstOf(f, "proctoring_alerts", "alerts")
	if !ok {
		return out
	}
	switch a := v.(type) {
	case string:
		if s := strings.TrimSpace(a); s != "" {
			out = append(out, s)
		}
	default:
		for _, s := range cast.ToStringSlice(a) {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func topicsOf(f Fields) []TopicTag {
	out := []TopicTag{}
	v, ok := firstOf(f, "technical_capture", "topic_tags")
	if !ok {
		return out
	}
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case []map[string]any:
		for _, m := range t {
			items = append(items, m)
		}
	case []TopicTag:
		return append(out, t...)
	}
	for _, it := range items {
		switch tag := it.(type) {
		case map[string]any:
			topic := strings.TrimSpace(cast.ToString(tag["topic"]))
			if topic == "" {
				continue
			}
			sentiment := strings.ToLower(cast.ToString(tag["sentiment"]))
			if sentiment == "" {
				sentiment = "neutral"
			}
			out = append(out, TopicTag{Topic: topic, Sentiment: sentiment})
		case string:
			if topic := strings.TrimSpace(tag); topic != "" {
				out = append(out, TopicTag{Topic: topic, Sentiment: "neutral"})
			}
		}
	}
	return out
}

func firstOf(f Fields, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringOf(f Fields, keys ...string) string {
	v, ok := firstOf(f, keys...)
	if !ok {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func numberOf(f Fields, keys ...string) (float64, bool) {
	v, ok := firstOf(f, keys...)
	if !ok {
		return 0, false
	}
	n, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

func intOf(f Fields, def int, keys ...string) int {
	n, ok := numberOf(f, keys...)
	if !ok || n <= 0 {
		return def
	}
	return int(math.Round(n))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
