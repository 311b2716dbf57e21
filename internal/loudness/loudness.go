// Package loudness implements lightweight, in-process loudness and
// silence measurement over raw PCM buffers, supplementing
// internal/media's subprocess-backed EBU R128 analysis for the
// hot paths that don't need a full ffmpeg round trip: S6's per-region
// silence verification and S7's pre-mix gain staging.
package loudness

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// blockSec is the EBU R128 "gating block" length used by the simplified
// relative-gating integrated-loudness estimate below.
const blockSec = 0.4

// absoluteGateDB is R128's absolute silence gate: blocks quieter than this
// never contribute to the integrated measurement.
const absoluteGateDB = -70

// relativeGateOffsetDB is R128's relative gate: after the absolute gate,
// blocks more than this far below the ungated mean are dropped too.
const relativeGateOffsetDB = -10

// RMSDB returns the root-mean-square level of samples in dBFS, or -100 for
// an empty or effectively-silent buffer (matching internal/audio's VAD
// energy floor).
func RMSDB(samples []float32) float64 {
	if len(samples) == 0 {
		return -100
	}
	data := make([]float64, len(samples))
	for i, s := range samples {
		data[i] = float64(s)
	}
	meanSquare := floats.Dot(data, data) / float64(len(data))
	if meanSquare <= 0 {
		return -100
	}
	rms := math.Sqrt(meanSquare)
	if rms < 1e-10 {
		return -100
	}
	return 20 * math.Log10(rms)
}

// IsSilence reports whether samples' RMS level is at or below thresholdDB,
// used by S6/S8's "silent regions have RMS < -50dB" property.
func IsSilence(samples []float32, thresholdDB float64) bool {
	return RMSDB(samples) <= thresholdDB
}

// IntegratedLUFSEstimate approximates EBU R128 integrated loudness via
// simplified absolute+relative block gating: 400ms blocks, an absolute
// -70 LUFS floor, then a relative gate 10dB below the ungated mean. This
// is not a certified R128 implementation (internal/media.AnalyzeLoudness's
// ffmpeg ebur128 filter is authoritative for the pipeline's actual loudness
// targets); it exists so S1/S7's idempotence and gain-staging tests can
// reason about loudness without a subprocess round trip.
func IntegratedLUFSEstimate(samples []float32, sampleRate int) float64 {
	blockLen := int(blockSec * float64(sampleRate))
	if blockLen <= 0 || len(samples) < blockLen {
		return RMSDB(samples)
	}

	var blockDB []float64
	for pos := 0; pos+blockLen <= len(samples); pos += blockLen {
		blockDB = append(blockDB, RMSDB(samples[pos:pos+blockLen]))
	}
	if len(blockDB) == 0 {
		return RMSDB(samples)
	}

	gated := filterAbove(blockDB, absoluteGateDB)
	if len(gated) == 0 {
		return absoluteGateDB
	}
	relativeGate := stat.Mean(gated, nil) + relativeGateOffsetDB
	gated = filterAbove(gated, relativeGate)
	if len(gated) == 0 {
		return relativeGate
	}
	return stat.Mean(gated, nil)
}

func filterAbove(values []float64, gate float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v > gate {
			out = append(out, v)
		}
	}
	return out
}
