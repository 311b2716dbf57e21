package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"

	"github.com/voicebridge/dubline/internal/audio"
	"github.com/voicebridge/dubline/internal/model"
)

// Local is S2's primary transcription path: an in-process sherpa-onnx
// offline recognizer with word-level timestamps and voice-activity
// filtering.
type Local struct {
	recognizer *sherpa.OfflineRecognizer
	vad        audio.VADConfig
}

// NewLocal loads a sherpa-onnx Whisper offline-recognizer model
// (encoder.onnx, decoder.onnx and tokens.txt in modelDir) for in-process
// transcription. Other model families are not configured.
func NewLocal(modelDir string, vad audio.VADConfig) (*Local, error) {
	config := sherpa.OfflineRecognizerConfig{
		ModelConfig: sherpa.OfflineModelConfig{
			Whisper: sherpa.OfflineWhisperModelConfig{
				Encoder: modelDir + "/encoder.onnx",
				Decoder: modelDir + "/decoder.onnx",
			},
			Tokens:     modelDir + "/tokens.txt",
			NumThreads: 2,
			Provider:   "cpu",
		},
	}
	recognizer := sherpa.NewOfflineRecognizer(&config)
	if recognizer == nil {
		return nil, fmt.Errorf("%w: sherpa-onnx recognizer init failed for %s", model.ErrConfig, modelDir)
	}
	return &Local{recognizer: recognizer, vad: vad}, nil
}

// Close releases the underlying ONNX recognizer.
func (l *Local) Close() {
	if l.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(l.recognizer)
	}
}

// Name implements Provider.
func (l *Local) Name() string { return "sherpa-local" }

// Transcribe implements Provider: VAD-filters the decoded 16kHz mono audio
// per the 500ms minimum-silence rule, runs each speech region through
// the offline recognizer, and normalizes word timestamps if the model
// reports them (Whisper-class models do not; Zipformer-class models may).
func (l *Local) Transcribe(ctx context.Context, audioPath string, sourceLanguage string) (TranscriptResult, error) {
	raw, err := readWAV(audioPath)
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("%w: %v", model.ErrAssetMissing, err)
	}

	cfg := l.vad
	if cfg.SampleRate == 0 {
		cfg = audio.DefaultVADConfig()
	}
	cfg.SilenceTimeoutSec = 0.5 // minimum silence before a segment boundary

	regions := audio.DetectSpeechRegions(raw.Samples, cfg)
	if len(regions) == 0 {
		return TranscriptResult{}, nil
	}

	var segments []RawSegment
	for _, region := range regions {
		select {
		case <-ctx.Done():
			return TranscriptResult{}, ctx.Err()
		default:
		}

		clip := raw.Samples[region.StartSample:region.EndSample]
		stream := sherpa.NewOfflineStream(l.recognizer)
		stream.AcceptWaveform(raw.SampleRate, clip)
		l.recognizer.Decode(stream)
		result := stream.GetResult()
		sherpa.DeleteOfflineStream(stream)

		text := strings.TrimSpace(result.Text)
		if text == "" {
			continue
		}
		segments = append(segments, RawSegment{
			Start: float64(region.StartSample) / float64(raw.SampleRate),
			End:   float64(region.EndSample) / float64(raw.SampleRate),
			Text:  text,
			Words: wordsFromTimestamps(result.Tokens, result.Timestamps),
		})
	}

	return TranscriptResult{Segments: segments}, nil
}

// wordsFromTimestamps builds RawWords from sherpa's parallel token/timestamp
// arrays, when the loaded model reports per-token timing.
func wordsFromTimestamps(tokens []string, timestamps []float32) []RawWord {
	if len(tokens) == 0 || len(tokens) != len(timestamps) {
		return nil
	}
	words := make([]RawWord, len(tokens))
	for i, tok := range tokens {
		end := float64(timestamps[i]) + 0.2
		if i+1 < len(timestamps) {
			end = float64(timestamps[i+1])
		}
		words[i] = RawWord{Word: tok, Start: float64(timestamps[i]), End: end, Probability: 1}
	}
	return words
}

type wavFile struct {
	SampleRate int
	Samples    []float32
}

func readWAV(path string) (wavFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return wavFile{}, err
	}
	info, err := audio.DecodeWAV(data)
	if err != nil {
		return wavFile{}, err
	}
	return wavFile{SampleRate: info.SampleRate, Samples: info.Samples}, nil
}
