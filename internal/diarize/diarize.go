// Package diarize implements S3: assigning speaker_id, gender, and
// confidence per segment via pitch-based fundamental-frequency (F0)
// estimation, with no ML model required.
package diarize

import (
	"math"
	"os"

	"gonum.org/v1/gonum/floats"

	"github.com/voicebridge/dubline/internal/audio"
	"github.com/voicebridge/dubline/internal/model"
)

// samplingThreshold is the segment-count above which F0 is estimated only
// for an evenly-spaced sample of segments and propagated to the rest.
const samplingThreshold = 50

// Confidence carried over from a sampled segment to its nearest unsampled
// neighbors is discounted by a multiplier. Callers read the configured
// value from config.Tuning and pass it in; DefaultPropagationMultiplier
// is the fallback when no tuning file is loaded.
const DefaultPropagationMultiplier = 0.8

// pitchWindowSec bounds how much of a segment's audio is used for F0
// estimation; long segments don't need their full duration analyzed.
const pitchWindowSec = 1.5

// Options configures the diarization pass.
type Options struct {
	PropagationMultiplier float64
}

// DefaultOptions returns the defaults.
func DefaultOptions() Options {
	return Options{PropagationMultiplier: DefaultPropagationMultiplier}
}

// estimate is one segment's raw pitch classification, before propagation.
type estimate struct {
	gender     model.Gender
	confidence float64
	sampled    bool
}

// Run assigns speaker_id, gender, and confidence to every segment using
// mono 16kHz samples extracted from the same audio S1 prepared. Segments
// that fail pitch estimation get gender=unknown, confidence=0; a
// caller-level failure of the whole stage additionally resets speaker_id
// to 0 across the board (handled by the orchestrator's best-effort stage
// policy).
func Run(segments []model.Segment, samples []float32, sampleRate int, opts Options) []model.Segment {
	if len(segments) == 0 {
		return segments
	}
	mult := opts.PropagationMultiplier
	if mult <= 0 {
		mult = DefaultPropagationMultiplier
	}

	estimates := make([]estimate, len(segments))
	indices := sampleIndices(len(segments))
	for _, i := range indices {
		estimates[i] = classify(estimateF0(segments[i], samples, sampleRate))
		estimates[i].sampled = true
	}
	if len(indices) < len(segments) {
		propagate(estimates, mult)
	}

	out := make([]model.Segment, len(segments))
	speakers := assignSpeakers(segments, estimates)
	for i, seg := range segments {
		seg.Gender = estimates[i].gender
		seg.Confidence = estimates[i].confidence
		seg.SpeakerID = speakers[i]
		out[i] = seg
	}
	return out
}

// sampleIndices returns every index when the segment count is at or below
// samplingThreshold, or an evenly-spaced subset otherwise.
func sampleIndices(n int) []int {
	if n <= samplingThreshold {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	idx := make([]int, 0, samplingThreshold)
	step := float64(n) / float64(samplingThreshold)
	for i := 0; i < samplingThreshold; i++ {
		idx = append(idx, int(float64(i)*step))
	}
	return idx
}

// propagate carries each sampled estimate's gender to its nearest
// unsampled neighbors, discounting confidence by mult.
func propagate(estimates []estimate, mult float64) {
	for i := range estimates {
		if estimates[i].sampled {
			continue
		}
		nearest := nearestSampled(estimates, i)
		if nearest < 0 {
			continue
		}
		estimates[i].gender = estimates[nearest].gender
		estimates[i].confidence = estimates[nearest].confidence * mult
	}
}

func nearestSampled(estimates []estimate, from int) int {
	best := -1
	bestDist := len(estimates) + 1
	for i, e := range estimates {
		if !e.sampled {
			continue
		}
		d := i - from
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// estimateF0 extracts up to pitchWindowSec of samples for a segment and
// returns the fundamental frequency in Hz via normalized autocorrelation
// over the lag range sr/400 .. sr/50. Returns 0 when no lag
// clears the 0.1 correlation threshold.
func estimateF0(seg model.Segment, samples []float32, sampleRate int) float64 {
	if sampleRate <= 0 || len(samples) == 0 {
		return 0
	}
	startSample := int(seg.Start * float64(sampleRate))
	endSample := int(seg.End * float64(sampleRate))
	if maxWindow := startSample + int(pitchWindowSec*float64(sampleRate)); endSample > maxWindow {
		endSample = maxWindow
	}
	if startSample < 0 {
		startSample = 0
	}
	if endSample > len(samples) {
		endSample = len(samples)
	}
	if endSample-startSample < sampleRate/50 {
		return 0
	}
	window := samples[startSample:endSample]

	minLag := sampleRate / 400
	maxLag := sampleRate / 50
	if maxLag >= len(window) {
		maxLag = len(window) - 1
	}
	if minLag < 1 || minLag >= maxLag {
		return 0
	}

	data := make([]float64, len(window))
	for i, s := range window {
		data[i] = float64(s)
	}
	energy := floats.Dot(data, data)
	if energy == 0 {
		return 0
	}

	bestLag := -1
	bestCorr := 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var sum float64
		for i := 0; i < len(data)-lag; i++ {
			sum += data[i] * data[i+lag]
		}
		corr := sum / energy
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}
	if bestLag < 0 || bestCorr < 0.1 {
		return 0
	}
	return float64(sampleRate) / float64(bestLag)
}

// classify applies the F0-to-gender thresholds.
func classify(f0 float64) estimate {
	switch {
	case f0 <= 0:
		return estimate{gender: model.GenderUnknown, confidence: 0}
	case f0 < 140:
		conf := math.Min(1, (140-f0)/55+0.5)
		return estimate{gender: model.GenderMale, confidence: conf}
	case f0 > 185:
		conf := math.Min(1, (f0-185)/70+0.5)
		return estimate{gender: model.GenderFemale, confidence: conf}
	default:
		maleScore := (185 - f0) / 45
		femaleScore := (f0 - 140) / 45
		if maleScore > femaleScore {
			return estimate{gender: model.GenderMale, confidence: 0.7 * maleScore}
		}
		return estimate{gender: model.GenderFemale, confidence: 0.7 * femaleScore}
	}
}

// assignSpeakers derives stable integer speaker_ids from the gender
// sequence: each distinct estimated gender gets one speaker id, numbered
// in order of first appearance and reused whenever that gender recurs,
// giving a deterministic, stable-within-job speaker track for the
// smart/alternating speaker modes to consume.
func assignSpeakers(segments []model.Segment, estimates []estimate) []int {
	ids := make([]int, len(segments))
	if len(segments) == 0 {
		return ids
	}
	next := 0
	known := map[model.Gender]int{}
	assign := func(g model.Gender) int {
		if id, ok := known[g]; ok {
			return id
		}
		id := next
		known[g] = id
		next++
		return id
	}
	for i, e := range estimates {
		ids[i] = assign(e.gender)
	}
	return ids
}

// RunFromFile is a convenience wrapper for callers that only have a WAV
// path rather than already-decoded samples (the orchestrator, which reads
// the preprocessed mono track once per job).
func RunFromFile(segments []model.Segment, monoWAVPath string, opts Options) ([]model.Segment, error) {
	data, err := os.ReadFile(monoWAVPath)
	if err != nil {
		return nil, err
	}
	info, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	return Run(segments, info.Samples, info.SampleRate, opts), nil
}
