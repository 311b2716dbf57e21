package synth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/aws/smithy-go"

	"github.com/voicebridge/dubline/internal/model"
)

// Polly is S5's premium provider: Amazon Polly neural TTS, SSML-driven so
// the rate/pitch prosody deltas can be applied per call without a
// separate re-encode pass.
type Polly struct {
	client *polly.Client
	engine types.Engine
}

// NewPolly builds the premium provider from a bootstrapped AWS config and
// the configured voice engine ("neural" or "standard",
// internal/config.Config.PollyVoiceEngine).
func NewPolly(cfg aws.Config, engine string) *Polly {
	e := types.EngineNeural
	if engine == "standard" {
		e = types.EngineStandard
	}
	return &Polly{client: polly.NewFromConfig(cfg), engine: e}
}

// Name implements Provider.
func (p *Polly) Name() string { return "polly" }

// Synthesize implements Provider: wraps text in an SSML <prosody> tag
// carrying the combined rate/pitch, requesting MP3 output.
func (p *Polly) Synthesize(ctx context.Context, text, voiceID string, ratePct, pitchHz float64) ([]byte, string, error) {
	ssml := buildSSML(text, ratePct, pitchHz)
	input := &polly.SynthesizeSpeechInput{
		Text:         aws.String(ssml),
		TextType:     types.TextTypeSsml,
		VoiceId:      types.VoiceId(voiceID),
		Engine:       p.engine,
		OutputFormat: types.OutputFormatMp3,
		SampleRate:   aws.String("24000"),
	}

	result, err := p.client.SynthesizeSpeech(ctx, input)
	if err != nil {
		return nil, "", classifyPollyError(err)
	}
	defer result.AudioStream.Close()

	data, err := io.ReadAll(result.AudioStream)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read polly audio stream: %v", model.ErrAssetMissing, err)
	}
	return data, "mp3", nil
}

// buildSSML renders the rate/pitch prosody deltas computed as an
// SSML <prosody> wrapper; Polly accepts rate as a percentage and pitch as a
// signed Hz-relative percentage, so the Hz delta is approximated as a
// percentage of a typical 170Hz speaking pitch.
func buildSSML(text string, ratePct, pitchHz float64) string {
	rate := 100 + ratePct
	pitchPct := pitchHz / 170 * 100
	return fmt.Sprintf(
		`<speak><prosody rate="%.0f%%" pitch="%+.0f%%">%s</prosody></speak>`,
		math.Max(20, rate), pitchPct, escapeSSML(text),
	)
}

func escapeSSML(text string) string {
	out := make([]byte, 0, len(text))
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '&':
			out = append(out, []byte("&amp;")...)
		case '<':
			out = append(out, []byte("&lt;")...)
		case '>':
			out = append(out, []byte("&gt;")...)
		default:
			out = append(out, text[i])
		}
	}
	return string(out)
}

// classifyPollyError maps a smithy API error to the taxonomy, matching
// internal/translate/aws.go's classification pattern.
func classifyPollyError(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %v", model.ErrProviderTransient, err)
	}
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "TooManyRequestsException":
		return fmt.Errorf("%w: %v", model.ErrProviderTransient, err)
	}
	var faultErr interface{ ErrorFault() smithy.ErrorFault }
	if errors.As(err, &faultErr) && faultErr.ErrorFault() == smithy.FaultClient {
		return fmt.Errorf("%w: %v", model.ErrProviderPermanent, err)
	}
	return fmt.Errorf("%w: %v", model.ErrProviderTransient, err)
}
