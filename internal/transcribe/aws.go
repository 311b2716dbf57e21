package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"

	"github.com/voicebridge/dubline/internal/audio"
	"github.com/voicebridge/dubline/internal/model"
)

// AWSTranscribe is S2's cloud fallback, used only when the local path fails
// and the API is configured.
type AWSTranscribe struct {
	client *transcribestreaming.Client
}

// NewAWSTranscribe builds the cloud fallback adapter from a bootstrapped
// AWS config (internal/config.LoadAWS).
func NewAWSTranscribe(cfg aws.Config) *AWSTranscribe {
	return &AWSTranscribe{client: transcribestreaming.NewFromConfig(cfg)}
}

// Name implements Provider.
func (a *AWSTranscribe) Name() string { return "aws-transcribe" }

// Transcribe implements Provider by streaming the 16kHz mono PCM payload to
// Amazon Transcribe and collecting the alternatives into RawSegments. AWS
// Transcribe streaming does not report per-word timestamps in the same
// shape as the local path's offline decode, so Words is left empty here;
// downstream segmentation handles word-less segments.
func (a *AWSTranscribe) Transcribe(ctx context.Context, audioPath string, sourceLanguage string) (TranscriptResult, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("%w: %v", model.ErrAssetMissing, err)
	}
	info, err := audio.DecodeWAV(data)
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("%w: %v", model.ErrAssetMissing, err)
	}

	input := &transcribestreaming.StartStreamTranscriptionInput{
		MediaEncoding:        types.MediaEncodingPcm,
		MediaSampleRateHertz: aws.Int32(int32(info.SampleRate)),
	}
	if sourceLanguage == "" {
		input.IdentifyLanguage = true
	} else {
		input.LanguageCode = types.LanguageCode(sourceLanguage)
	}

	stream, err := a.client.StartStreamTranscription(ctx, input)
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("%w: start stream: %v", model.ErrProviderTransient, err)
	}
	eventStream := stream.GetStream()
	defer eventStream.Close()

	go streamPCMFrames(eventStream, audio.EncodePCM16(info.Samples))

	var segments []RawSegment
	for event := range eventStream.Events() {
		transcriptEvent, ok := event.(*types.TranscriptResultStreamMemberTranscriptEvent)
		if !ok {
			continue
		}
		for _, result := range transcriptEvent.Value.Transcript.Results {
			if result.IsPartial || len(result.Alternatives) == 0 {
				continue
			}
			text := strings.TrimSpace(aws.ToString(result.Alternatives[0].Transcript))
			if text == "" {
				continue
			}
			segments = append(segments, RawSegment{
				Start: result.StartTime,
				End:   result.EndTime,
				Text:  text,
			})
		}
	}
	if err := eventStream.Err(); err != nil {
		return TranscriptResult{}, fmt.Errorf("%w: stream transcription: %v", model.ErrProviderTransient, err)
	}

	return TranscriptResult{Segments: segments}, nil
}

// streamPCMFrames feeds raw PCM audio to Transcribe in chunks, closing the
// writer when the payload is exhausted so the server emits its final
// transcript events.
func streamPCMFrames(stream *transcribestreaming.StartStreamTranscriptionEventStream, data []byte) {
	const chunkSize = 32 * 1024
	for offset := 0; offset < len(data); offset += chunkSize {
		end := min(offset+chunkSize, len(data))
		_ = stream.Send(context.Background(), &types.AudioStreamMemberAudioEvent{
			Value: types.AudioEvent{AudioChunk: data[offset:end]},
		})
	}
	_ = stream.Close()
}
