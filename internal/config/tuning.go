package config

import (
	"encoding/json"
	"log/slog"
	"os"
)

// Tuning holds per-job numeric knobs that don't belong in the
// environment: loudness targets, stretch clamps, batch sizes, retry
// backoffs, and the diarization-propagation multiplier. These are values
// likely to move to a database eventually; for now a JSON file keeps them
// out of env vars.
type Tuning struct {
	// Loudness targets.
	PreprocessTargetLUFS float64 `json:"preprocess_target_lufs"`
	PreprocessTruePeakDB float64 `json:"preprocess_true_peak_dbtp"`
	PreprocessLRA        float64 `json:"preprocess_lra"`
	MixTargetLUFS        float64 `json:"mix_target_lufs"`
	MixTruePeakDB        float64 `json:"mix_true_peak_dbtp"`
	MixLRA               float64 `json:"mix_lra"`
	DubbedTargetLUFS     float64 `json:"dubbed_target_lufs"`

	// S4 translation batching.
	TranslateBatchSize        int     `json:"translate_batch_size"`
	TranslateInterBatchDelayS float64 `json:"translate_inter_batch_delay_s"`

	// S5 synthesis.
	SyncGoodThresholdS    float64 `json:"sync_good_threshold_s"`
	SyncFairThresholdS    float64 `json:"sync_fair_threshold_s"`
	SynthFallbackAfterN   int     `json:"synth_fallback_after_n"`

	// S6 assembly stretch clamps.
	StretchClampPreferredLow  float64 `json:"stretch_clamp_preferred_low"`
	StretchClampPreferredHigh float64 `json:"stretch_clamp_preferred_high"`
	StretchClampFallbackLow   float64 `json:"stretch_clamp_fallback_low"`
	StretchClampFallbackHigh  float64 `json:"stretch_clamp_fallback_high"`

	// The diarization sampling-propagation confidence multiplier is not
	// derived from measurement, so it stays tunable.
	DiarizationPropagationMultiplier float64 `json:"diarization_propagation_multiplier"`

	// reverb bounds carried from the Python original's defaults.
	DefaultReverbAmount float64 `json:"default_reverb_amount"`
	MaxReverbAmount     float64 `json:"max_reverb_amount"`

	// Bounded concurrency for S5/S6 segment work.
	ConcurrencyW int `json:"concurrency_w"`

	// Local sherpa-onnx TTS speaker indices, keyed by catalog voice ID
	// (internal/voices). Deployment-specific to whichever multi-speaker
	// model is mounted at SherpaTTSModelDir, so it travels with the rest
	// of the numeric tunables rather than the static catalog.
	SherpaVoiceSpeakerIDs map[string]int `json:"sherpa_voice_speaker_ids"`
}

// DefaultTuning returns the built-in defaults, used whenever
// no tuning file is present or it fails to parse.
func DefaultTuning() Tuning {
	return Tuning{
		PreprocessTargetLUFS: -16,
		PreprocessTruePeakDB: -1.5,
		PreprocessLRA:        11,
		MixTargetLUFS:        -16,
		MixTruePeakDB:        -1.5,
		MixLRA:               11,
		DubbedTargetLUFS:     -14,

		TranslateBatchSize:        20,
		TranslateInterBatchDelayS: 1.5,

		SyncGoodThresholdS:  0.5,
		SyncFairThresholdS:  1.0,
		SynthFallbackAfterN: 3,

		StretchClampPreferredLow:  0.7,
		StretchClampPreferredHigh: 1.5,
		StretchClampFallbackLow:   0.5,
		StretchClampFallbackHigh:  2.0,

		DiarizationPropagationMultiplier: 0.8,

		DefaultReverbAmount: 0.15,
		MaxReverbAmount:     0.2,

		ConcurrencyW: 4,

		SherpaVoiceSpeakerIDs: map[string]int{},
	}
}

// LoadTuning reads path if present, otherwise returns DefaultTuning; a bad
// file logs a warning and falls back to defaults rather than failing
// startup.
func LoadTuning(path string) Tuning {
	t := DefaultTuning()
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Info("no tuning file, using defaults", "path", path)
		return t
	}
	if err = json.Unmarshal(data, &t); err != nil {
		slog.Warn("bad tuning file, using defaults", "path", path, "error", err)
		return DefaultTuning()
	}
	slog.Info("loaded tuning", "path", path)
	return t
}
