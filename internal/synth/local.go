package synth

import (
	"context"
	"fmt"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/voicebridge/dubline/internal/audio"
	"github.com/voicebridge/dubline/internal/model"
)

// clipSampleRate is the uniform rate every local clip is rendered at, so
// S6's concatenation never mixes rates: VITS models synthesize at whatever
// rate they were trained on (typically 22.05kHz) and the output is
// resampled up-front.
const clipSampleRate = 48000

// Local is S5's free/local provider: an in-process sherpa-onnx VITS
// offline TTS model, mirroring internal/transcribe/local.go's in-process
// ONNX-binding pattern for the synthesis direction.
type Local struct {
	tts        *sherpa.OfflineTts
	sampleRate int
	voiceSpeed map[string]int // catalog voice_id -> sherpa speaker id, per loaded model
}

// NewLocal loads a sherpa-onnx VITS model directory for in-process speech
// synthesis. voiceSpeakerIDs maps catalog voice_ids to the loaded model's
// numeric speaker ids (a single-speaker model uses {} and ignores voiceID).
func NewLocal(modelDir string, voiceSpeakerIDs map[string]int) (*Local, error) {
	config := sherpa.OfflineTtsConfig{
		Model: sherpa.OfflineTtsModelConfig{
			Vits: sherpa.OfflineTtsVitsModelConfig{
				Model:   modelDir + "/model.onnx",
				Lexicon: modelDir + "/lexicon.txt",
				Tokens:  modelDir + "/tokens.txt",
			},
			NumThreads: 2,
			Provider:   "cpu",
		},
	}
	tts := sherpa.NewOfflineTts(&config)
	if tts == nil {
		return nil, fmt.Errorf("%w: sherpa-onnx tts init failed for %s", model.ErrConfig, modelDir)
	}
	return &Local{tts: tts, sampleRate: int(tts.SampleRate()), voiceSpeed: voiceSpeakerIDs}, nil
}

// Close releases the underlying ONNX model.
func (l *Local) Close() {
	if l.tts != nil {
		sherpa.DeleteOfflineTts(l.tts)
	}
}

// Name implements Provider.
func (l *Local) Name() string { return "sherpa-local" }

// Synthesize implements Provider. sherpa-onnx's VITS generator exposes a
// speaking-rate speed multiplier but no independent pitch control: only
// ratePct is applied, as a speed factor of 1+ratePct/100 floored at 0.5,
// and pitchHz is ignored, so clips from this provider carry no pitch
// delta (the Polly provider applies both).
func (l *Local) Synthesize(ctx context.Context, text, voiceID string, ratePct, pitchHz float64) ([]byte, string, error) {
	speakerID := l.voiceSpeed[voiceID]
	speed := float32(1 + ratePct/100)
	if speed < 0.5 {
		speed = 0.5
	}

	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	default:
	}

	audioOut := l.tts.Generate(text, speakerID, speed)
	if audioOut == nil || len(audioOut.Samples) == 0 {
		return nil, "", fmt.Errorf("%w: sherpa tts produced no samples", model.ErrAssetMissing)
	}

	samples := audio.Resample(audioOut.Samples, int(audioOut.SampleRate), clipSampleRate)
	wav := audio.SamplesToWAV(samples, clipSampleRate, 1)
	return wav, "wav", nil
}
