// Package synth implements S5: per-segment TTS with emotion-aware prosody
// and rate pre-alignment, via a premium cloud provider with a local
// free-tier fallback.
package synth

import (
	"strings"

	"github.com/voicebridge/dubline/internal/model"
)

// Prosody is the base rate/pitch delta a detected emotion applies before
// any duration-driven rate_adjust is layered on top.
type Prosody struct {
	RatePct float64
	PitchHz float64
}

// emotionTable maps each of the 8 emotions to a prosody delta and the
// keywords that trigger it.
var emotionTable = []struct {
	emotion  model.Emotion
	prosody  Prosody
	keywords []string
}{
	{model.EmotionHappy, Prosody{RatePct: 8, PitchHz: 20}, []string{"great", "wonderful", "happy", "love", "excited", "yay", "awesome"}},
	{model.EmotionSad, Prosody{RatePct: -10, PitchHz: -15}, []string{"sad", "sorry", "cry", "miss", "lonely", "grief", "unfortunately"}},
	{model.EmotionAngry, Prosody{RatePct: 12, PitchHz: 10}, []string{"angry", "furious", "hate", "damn", "mad", "rage"}},
	{model.EmotionFearful, Prosody{RatePct: 15, PitchHz: 25}, []string{"afraid", "scared", "terrified", "help", "run", "danger"}},
	{model.EmotionSurprised, Prosody{RatePct: 10, PitchHz: 30}, []string{"wow", "what", "really", "surprised", "unbelievable", "whoa"}},
	{model.EmotionDisgusted, Prosody{RatePct: 5, PitchHz: -5}, []string{"disgusting", "gross", "ugh", "ew", "revolting"}},
	{model.EmotionCalm, Prosody{RatePct: -5, PitchHz: -5}, []string{"calm", "relax", "peaceful", "quiet", "gentle"}},
}

// neutralProsody is the zero-delta default applied when no keyword matches.
var neutralProsody = Prosody{RatePct: 0, PitchHz: 0}

// DetectEmotion classifies text by keyword match against the emotion
// table, defaulting to neutral. The first matching
// emotion in table order wins; text is matched case-insensitively.
func DetectEmotion(text string) (model.Emotion, Prosody) {
	lower := strings.ToLower(text)
	for _, row := range emotionTable {
		for _, kw := range row.keywords {
			if strings.Contains(lower, kw) {
				return row.emotion, row.prosody
			}
		}
	}
	return model.EmotionNeutral, neutralProsody
}
