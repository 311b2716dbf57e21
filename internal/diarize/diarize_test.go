package diarize

import (
	"math"
	"testing"

	"github.com/voicebridge/dubline/internal/model"
)

// sineAt generates sampleCount samples of a pure sine tone at freqHz.
func sineAt(freqHz float64, sampleRate, sampleCount int) []float32 {
	out := make([]float32, sampleCount)
	for i := range out {
		out[i] = float32(math.Sin(2 * math.Pi * freqHz * float64(i) / float64(sampleRate)))
	}
	return out
}

func TestClassifyLowPitchIsMale(t *testing.T) {
	e := classify(110)
	if e.gender != model.GenderMale {
		t.Fatalf("expected male for 110Hz, got %s", e.gender)
	}
}

func TestClassifyHighPitchIsFemale(t *testing.T) {
	e := classify(220)
	if e.gender != model.GenderFemale {
		t.Fatalf("expected female for 220Hz, got %s", e.gender)
	}
}

func TestClassifyNoPitchIsUnknown(t *testing.T) {
	e := classify(0)
	if e.gender != model.GenderUnknown || e.confidence != 0 {
		t.Fatalf("expected unknown/0 confidence, got %s/%f", e.gender, e.confidence)
	}
}

func TestEstimateF0RecoversKnownTone(t *testing.T) {
	sampleRate := 16000
	seg := model.Segment{Start: 0, End: 1.0}
	samples := sineAt(120, sampleRate, sampleRate)
	f0 := estimateF0(seg, samples, sampleRate)
	if math.Abs(f0-120) > 5 {
		t.Fatalf("expected ~120Hz, got %f", f0)
	}
}

func TestRunAssignsGenderAndConfidence(t *testing.T) {
	sampleRate := 16000
	totalSec := 2.0
	samples := make([]float32, int(totalSec*float64(sampleRate)))
	copy(samples, sineAt(110, sampleRate, sampleRate))
	copy(samples[sampleRate:], sineAt(220, sampleRate, sampleRate))

	segs := []model.Segment{
		{ID: 0, Start: 0, End: 1.0},
		{ID: 1, Start: 1.0, End: 2.0},
	}
	out := Run(segs, samples, sampleRate, DefaultOptions())
	if out[0].Gender != model.GenderMale {
		t.Errorf("segment 0: expected male, got %s", out[0].Gender)
	}
	if out[1].Gender != model.GenderFemale {
		t.Errorf("segment 1: expected female, got %s", out[1].Gender)
	}
	if out[0].SpeakerID == out[1].SpeakerID {
		t.Errorf("expected distinct speaker ids for distinct genders")
	}
}

func TestRunPropagatesBeyondSamplingThreshold(t *testing.T) {
	sampleRate := 16000
	n := 120
	samples := make([]float32, sampleRate*2)
	copy(samples, sineAt(110, sampleRate, len(samples)))

	segs := make([]model.Segment, n)
	for i := range segs {
		segs[i] = model.Segment{ID: i, Start: 0, End: 0.25}
	}
	out := Run(segs, samples, sampleRate, DefaultOptions())
	for i, s := range out {
		if s.Gender == model.GenderUnknown {
			t.Fatalf("segment %d: expected a propagated gender, got unknown", i)
		}
	}
}

func TestRunEmptySegments(t *testing.T) {
	out := Run(nil, nil, 16000, DefaultOptions())
	if len(out) != 0 {
		t.Fatalf("expected 0 segments, got %d", len(out))
	}
}
