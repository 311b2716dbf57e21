package media

import (
	"fmt"
	"os"

	shine "github.com/braheezy/shine-mp3/pkg/mp3"
	"github.com/hajimehoshi/go-mp3"

	"github.com/voicebridge/dubline/internal/audio"
	"github.com/voicebridge/dubline/internal/model"
)

// EncodeMP3Native shine-encodes PCM samples directly instead of shelling
// out to ffmpeg, avoiding a subprocess round-trip on the final encode
// step when output_format is mp3.
func EncodeMP3Native(samples []float32, sampleRate, channels int, outPath string) error {
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		clamped := max(float32(-1.0), min(float32(1.0), s))
		pcm[i] = int16(clamped * 32767)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("%w: create mp3 %s: %v", model.ErrAssetMissing, outPath, err)
	}
	defer f.Close()

	enc := shine.NewEncoder(sampleRate, channels)
	enc.Write(f, pcm)
	return nil
}

// ProbeMP3Duration decodes an MP3 file in-process with go-mp3 to measure its
// duration, used on the per-segment duration-check hot path so it
// doesn't need a subprocess round trip through ffprobe for every clip.
func ProbeMP3Duration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: open mp3 %s: %v", model.ErrAssetMissing, path, err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, fmt.Errorf("%w: decode mp3 %s: %v", model.ErrAssetMissing, path, err)
	}

	const bytesPerSample = 4 // go-mp3 always decodes to 16-bit stereo PCM
	length := dec.Length()
	if length < 0 {
		return 0, fmt.Errorf("%w: unknown mp3 length %s", model.ErrAssetMissing, path)
	}
	frames := length / bytesPerSample
	return float64(frames) / float64(dec.SampleRate()), nil
}

// DecodeMP3Samples decodes an MP3 file to interleaved float32 samples,
// normalized to [-1, 1], plus its sample rate — used when a downstream
// stretch/mix step needs raw samples rather than just the duration.
func DecodeMP3Samples(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: open mp3 %s: %v", model.ErrAssetMissing, path, err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: decode mp3 %s: %v", model.ErrAssetMissing, path, err)
	}

	buf := make([]byte, 4096)
	var raw []byte
	for {
		n, readErr := dec.Read(buf)
		if n > 0 {
			raw = append(raw, buf[:n]...)
		}
		if readErr != nil {
			break
		}
	}

	wav, err := audio.DecodeWAV(wrapPCMAsWAV(raw, dec.SampleRate(), 2))
	if err != nil {
		return nil, 0, err
	}
	return wav.Samples, dec.SampleRate(), nil
}

// wrapPCMAsWAV re-wraps raw 16-bit stereo PCM as a canonical WAV so it can
// be handed to audio.DecodeWAV, reusing that single PCM parser rather than
// duplicating int16-to-float32 conversion here.
func wrapPCMAsWAV(pcm []byte, sampleRate, channels int) []byte {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		lo, hi := pcm[i*2], pcm[i*2+1]
		v := int16(uint16(lo) | uint16(hi)<<8)
		samples[i] = float32(v) / 32768
	}
	return audio.SamplesToWAV(samples, sampleRate, channels)
}
