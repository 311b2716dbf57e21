package media

import (
	"os"

	"github.com/voicebridge/dubline/internal/audio"
)

// Silence builds a deterministic silence buffer of the given duration,
// sample rate, and channel count: a pure function of its inputs with no
// entropy source, so two runs of S6 over the same inputs produce
// byte-identical silence regions.
func Silence(durationSec float64, sampleRate, channels int) []float32 {
	if durationSec <= 0 {
		return nil
	}
	frames := int(durationSec*float64(sampleRate) + 0.5)
	return make([]float32, frames*channels)
}

// WriteSilenceWAV writes a deterministic silence buffer to path as a WAV
// file; the duration is rounded to the nearest whole frame.
func WriteSilenceWAV(path string, durationSec float64, sampleRate, channels int) error {
	samples := Silence(durationSec, sampleRate, channels)
	return writeFile(path, audio.SamplesToWAV(samples, sampleRate, channels))
}

func writeFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0o644)
}
