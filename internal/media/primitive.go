// Package media defines the abstract MediaPrimitive interface that the
// Orchestrator and its stages depend on, plus the concrete
// implementations: a subprocess-ffmpeg primitive for operations with no
// native Go equivalent, and in-process native helpers (MP3 encode/decode,
// deterministic silence) for the ones that have one.
package media

import "context"

// LoudnessStats is the result of an integrated-loudness analysis pass,
// mirroring the EBU R128 measurements used throughout the pipeline.
type LoudnessStats struct {
	IntegratedLUFS float64
	TruePeakDB     float64
	LRA            float64
}

// FilterSpec is one optional S1 sub-step: high-pass, denoise, or
// loudness-normalize, each independently skippable.
type FilterSpec struct {
	Highpass        bool
	HighpassHz      float64
	Denoise         bool
	DenoiseStrength float64 // 0..1, mapped to the primitive's 0-40dB range
	DenoiseFloorDB  float64
	Normalize       bool
	TargetLUFS      float64
	TruePeakDB      float64
	LRA             float64

	// Reverb applies S7's optional subtle room-tone matching;
	// ReverbAmount is bounded by the caller to config.Tuning.MaxReverbAmount.
	Reverb       bool
	ReverbAmount float64
}

// StretchKind selects which time-stretch algorithm class to use.
type StretchKind string

const (
	StretchPreferred StretchKind = "phase_vocoder" // pitch-preserving
	StretchFallback  StretchKind = "tempo_only"
)

// StretchSpec is one stretch request's algorithm class plus the ratio
// clamp to apply to it. Callers thread their configured clamp ranges here;
// zero bounds fall back to the kind's defaults.
type StretchSpec struct {
	Kind      StretchKind
	RatioLow  float64
	RatioHigh float64
}

// Bounds returns the effective clamp range for the spec.
func (s StretchSpec) Bounds() (low, high float64) {
	if s.RatioLow > 0 && s.RatioHigh > 0 {
		return s.RatioLow, s.RatioHigh
	}
	if s.Kind == StretchFallback {
		return 0.5, 2.0
	}
	return 0.7, 1.5
}

// MediaPrimitive is the abstract surface the Orchestrator and every stage
// depend on instead of talking to ffmpeg (or any other tool) directly. A
// subprocess-backed implementation and a native in-process implementation
// both satisfy it; see ffmpeg.go and mp3.go.
type MediaPrimitive interface {
	// Extract pulls the audio track out of a (possibly video) container,
	// writing 16kHz mono PCM to mono16Path and 48kHz stereo PCM to
	// stereo48Path. Fatal if it fails — the only S1 fatal condition.
	Extract(ctx context.Context, sourcePath, mono16Path, stereo48Path string) error

	// Filter applies the enabled FilterSpec sub-steps in order, writing to
	// outPath. Each sub-step is independently skippable, but the enabled
	// sub-steps run as one chain: a failing sub-step fails the whole call,
	// no partial result of the earlier sub-steps is kept, and the caller
	// decides whether to carry on with inPath.
	Filter(ctx context.Context, inPath, outPath string, spec FilterSpec) error

	// ProbeDuration returns a file's playback duration in seconds.
	ProbeDuration(ctx context.Context, path string) (float64, error)

	// AnalyzeLoudness measures integrated loudness, true peak, and LRA.
	AnalyzeLoudness(ctx context.Context, path string) (LoudnessStats, error)

	// Concat joins a sequence of audio files (in order) into a single
	// output file, used by S6's final assembly step.
	Concat(ctx context.Context, parts []string, outPath string) error

	// Stretch time-stretches inPath to targetDuration seconds, writing
	// outPath, clamping the stretch ratio to spec's bounds and reporting
	// whether clamping occurred.
	Stretch(ctx context.Context, inPath, outPath string, targetDuration float64, spec StretchSpec) (ratio float64, clamped bool, err error)

	// Mix sums two streams with the given linear weights, re-normalizes to
	// the loudness target, and writes outPath.
	Mix(ctx context.Context, backgroundPath, dubbedPath, outPath string, bgWeight, dubWeight float64, target LoudnessStats) error

	// Encode transcodes a PCM file to the requested output format/codec at
	// 48kHz stereo, producing the final deliverable.
	Encode(ctx context.Context, inPath, outPath string, format string) error
}
