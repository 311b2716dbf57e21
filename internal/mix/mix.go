// Package mix implements S7: combining the untouched background track with
// the assembled dubbed track into a final, loudness-normalized deliverable.
package mix

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/voicebridge/dubline/internal/media"
	"github.com/voicebridge/dubline/internal/model"
)

// Options configures S7's gain staging, loudness targets, and optional
// reverb matching.
type Options struct {
	TargetDubbedLUFS float64 // pre-mix dubbed-track target, default -14
	BackgroundLevel  float64 // linear background gain override; 0 means use the 15-18% default
	TargetLUFS       float64 // final re-normalize target
	TargetTruePeakDB float64
	TargetLRA        float64
	ReverbEnabled    bool
	ReverbAmount     float64 // clamped to MaxReverbAmount inside Run when MaxReverbAmount > 0
	MaxReverbAmount  float64
	QuickMix         bool // fewer analyses, identical loudness targets
}

// DefaultOptions returns the pipeline defaults.
func DefaultOptions() Options {
	return Options{
		TargetDubbedLUFS: -14,
		BackgroundLevel:  0.18,
		TargetLUFS:       -16,
		TargetTruePeakDB: -1.5,
		TargetLRA:        11,
		ReverbAmount:     0.15,
		MaxReverbAmount:  0.2,
	}
}

// Result is S7's output summary, folded into the job record's metrics.
type Result struct {
	OutputPath     string
	DubbedGainDB   float64
	BackgroundGain float64
	OverallLUFS    float64
	ReverbApplied  bool
}

// Run executes S7 over the background and dubbed tracks, writing outPath.
func Run(ctx context.Context, prim media.MediaPrimitive, backgroundPath, dubbedPath, outPath, scratchDir string, opts Options) (Result, error) {
	result := Result{OutputPath: outPath}

	dubbedGainDB := 0.0
	if !opts.QuickMix {
		dubbedStats, err := prim.AnalyzeLoudness(ctx, dubbedPath)
		if err != nil {
			return Result{}, fmt.Errorf("%w: analyze dubbed loudness: %v", model.ErrStageFailed, err)
		}
		dubbedGainDB = clamp(opts.TargetDubbedLUFS-dubbedStats.IntegratedLUFS, -20, 20)
	}
	result.DubbedGainDB = dubbedGainDB
	dubWeight := dbToLinear(dubbedGainDB)

	bgGain := opts.BackgroundLevel
	if bgGain <= 0 {
		bgGain = 0.18
	}
	result.BackgroundGain = bgGain

	dubbedInput := dubbedPath
	if opts.ReverbEnabled && !opts.QuickMix {
		amount := opts.ReverbAmount
		if opts.MaxReverbAmount > 0 && amount > opts.MaxReverbAmount {
			amount = opts.MaxReverbAmount
		}
		reverbPath := filepath.Join(scratchDir, "dubbed_reverb.wav")
		if err := prim.Filter(ctx, dubbedPath, reverbPath, media.FilterSpec{Reverb: true, ReverbAmount: amount}); err != nil {
			// A failing reverb primitive is skipped, not fatal.
			slog.Warn("reverb matching failed, mixing without it", "error", err)
		} else {
			dubbedInput = reverbPath
			result.ReverbApplied = true
		}
	}

	target := media.LoudnessStats{
		IntegratedLUFS: opts.TargetLUFS,
		TruePeakDB:     opts.TargetTruePeakDB,
		LRA:            opts.TargetLRA,
	}
	if err := prim.Mix(ctx, backgroundPath, dubbedInput, outPath, bgGain, dubWeight, target); err != nil {
		return Result{}, fmt.Errorf("%w: mix tracks: %v", model.ErrStageFailed, err)
	}

	if !opts.QuickMix {
		finalStats, err := prim.AnalyzeLoudness(ctx, outPath)
		if err == nil {
			result.OverallLUFS = finalStats.IntegratedLUFS
		}
	} else {
		result.OverallLUFS = opts.TargetLUFS
	}

	return result, nil
}

func clamp(v, low, high float64) float64 {
	if v < low {
		return low
	}
	if v > high {
		return high
	}
	return v
}

func dbToLinear(db float64) float64 {
	return math.Pow(10, db/20)
}
