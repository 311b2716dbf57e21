package audio

import "math"

// VADConfig controls voice activity detection behavior over a fixed audio buffer.
type VADConfig struct {
	SpeechThresholdDB   float64
	SilenceTimeoutSec   float64
	MinSpeechSec        float64
	PreSpeechSec        float64
	FrameSec            float64
	SampleRate          int
	CalibrationSec      float64 // noise floor calibration window (0 = disabled)
	AdaptiveMarginDB    float64 // dB above noise floor for speech threshold
}

// DefaultVADConfig mirrors S2's default voice-activity filtering: 500 ms
// minimum silence before a segment boundary, 300 ms of pre-roll kept so the
// onset of speech is not clipped.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		SpeechThresholdDB: -30,
		SilenceTimeoutSec: 0.5,
		MinSpeechSec:      0.2,
		PreSpeechSec:      0.3,
		FrameSec:          0.02,
		SampleRate:        16000,
		CalibrationSec:    0.5,
		AdaptiveMarginDB:  10,
	}
}

// Region is a [StartSample, EndSample) span of detected speech within a buffer.
type Region struct {
	StartSample int
	EndSample   int
}

// DetectSpeechRegions runs energy-based VAD over an entire buffer and returns
// the speech regions found, in order. Unlike a streaming detector this makes
// a single pass keyed on sample offsets rather than wall-clock time, which is
// the shape S1/S2 need when filtering a fully-decoded file.
func DetectSpeechRegions(samples []float32, cfg VADConfig) []Region {
	frameLen := max(1, int(cfg.FrameSec*float64(cfg.SampleRate)))
	preSpeechLen := int(cfg.PreSpeechSec * float64(cfg.SampleRate))
	silenceTimeoutLen := int(cfg.SilenceTimeoutSec * float64(cfg.SampleRate))
	minSpeechLen := int(cfg.MinSpeechSec * float64(cfg.SampleRate))
	calibrationLen := int(cfg.CalibrationSec * float64(cfg.SampleRate))

	threshold := cfg.SpeechThresholdDB
	if calibrationLen > 0 && calibrationLen < len(samples) {
		threshold = calibrateThreshold(samples[:calibrationLen], cfg)
	}

	var regions []Region
	inSpeech := false
	speechStart := 0
	lastSpeechEnd := 0

	for pos := 0; pos < len(samples); pos += frameLen {
		end := min(pos+frameLen, len(samples))
		energyDB := computeEnergyDB(samples[pos:end])

		if energyDB >= threshold {
			if !inSpeech {
				inSpeech = true
				speechStart = max(0, pos-preSpeechLen)
			}
			lastSpeechEnd = end
			continue
		}

		if inSpeech && pos-lastSpeechEnd >= silenceTimeoutLen {
			inSpeech = false
			if lastSpeechEnd-speechStart >= minSpeechLen {
				regions = append(regions, Region{StartSample: speechStart, EndSample: lastSpeechEnd})
			}
		}
	}

	if inSpeech && lastSpeechEnd-speechStart >= minSpeechLen {
		regions = append(regions, Region{StartSample: speechStart, EndSample: lastSpeechEnd})
	}

	return regions
}

// calibrateThreshold computes a noise-floor-relative speech threshold from a
// leading calibration window, adopting it only if it is stricter (higher)
// than the static default.
func calibrateThreshold(calibration []float32, cfg VADConfig) float64 {
	frameLen := max(1, int(cfg.FrameSec*float64(cfg.SampleRate)))
	var sum float64
	var n int
	for pos := 0; pos < len(calibration); pos += frameLen {
		end := min(pos+frameLen, len(calibration))
		sum += computeEnergyDB(calibration[pos:end])
		n++
	}
	if n == 0 {
		return cfg.SpeechThresholdDB
	}
	noiseFloor := sum / float64(n)
	adaptive := noiseFloor + cfg.AdaptiveMarginDB
	if adaptive > cfg.SpeechThresholdDB {
		return adaptive
	}
	return cfg.SpeechThresholdDB
}

func computeEnergyDB(samples []float32) float64 {
	if len(samples) == 0 {
		return -100
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms < 1e-10 {
		return -100
	}
	return 20 * math.Log10(rms)
}
