// Package transcribe implements S2: producing an ordered Segment list with
// word-level timestamps when available, from a local ASR model with a
// cloud fallback.
package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/voicebridge/dubline/internal/model"
	"github.com/voicebridge/dubline/internal/retry"
)

// maxSegmentWords and maxWordGapSec implement the segmentation rule:
// when a provider returns only a flat word list (no provider-native
// segments), a new segment opens whenever the gap since the last word
// exceeds maxWordGapSec or the current segment reaches maxSegmentWords.
const (
	maxSegmentWords  = 20
	maxWordGapSec    = 1.5
	speakerToggleGap = 2.0 // gap that flips the S2 heuristic initial speaker guess
)

// RawWord is a provider-normalized word timestamp, independent of whether
// it came from the local or cloud path.
type RawWord struct {
	Word        string
	Start       float64
	End         float64
	Probability float64
}

// RawSegment is a provider-normalized segment, used when a provider returns
// native segmentation (e.g. Whisper-style) instead of a flat word list.
type RawSegment struct {
	Start float64
	End   float64
	Text  string
	Words []RawWord
}

// TranscriptResult is the normalized sum of provider response shapes: a
// flat Words list or native Segments, never both, with provider-specific
// field names kept behind the adapter boundary.
type TranscriptResult struct {
	Words              []RawWord
	Segments           []RawSegment
	DetectedLanguage   string
	DetectedLanguageProb float64
}

// HasSegments reports whether the provider returned native segmentation.
func (r TranscriptResult) HasSegments() bool { return len(r.Segments) > 0 }

// Provider is satisfied by both the local (sherpa-onnx) and cloud
// (AWS Transcribe streaming) adapters.
type Provider interface {
	Name() string
	Transcribe(ctx context.Context, audioPath string, sourceLanguage string) (TranscriptResult, error)
}

// Options configures S2's voice-activity filtering and retry policy.
type Options struct {
	MinSilenceSec float64       // VAD minimum silence, default 500ms
	CallTimeout   time.Duration // bound on each individual provider call, not the whole stage
}

// DefaultOptions returns the pipeline defaults.
func DefaultOptions() Options {
	return Options{MinSilenceSec: 0.5, CallTimeout: 300 * time.Second}
}

// backoffSchedule is the retry schedule: 2s, 4s, 8s across up to 4
// attempts of the primary provider.
func backoffSchedule() []time.Duration {
	return []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}
}

// Run executes S2: try the primary provider with backoff, fall back to the
// cloud provider if configured and the primary exhausts its retries,
// normalize whichever result succeeds into a Segment list.
func Run(ctx context.Context, primary, fallback Provider, audioPath, sourceLanguage string, opts Options) ([]model.Segment, string, float64, error) {
	var result TranscriptResult
	policy := retry.FixedBackoff(4, backoffSchedule()...)
	primaryErr := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		r, err := transcribeOnce(ctx, primary, audioPath, sourceLanguage, opts)
		if err != nil {
			return err
		}
		result = r
		return nil
	})

	providerErr := primaryErr
	if primaryErr != nil && fallback != nil {
		providerErr = retry.Do(ctx, retry.FixedBackoff(1), func(ctx context.Context, attempt int) error {
			r, err := transcribeOnce(ctx, fallback, audioPath, sourceLanguage, opts)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
	}
	if providerErr != nil {
		return nil, "", 0, fmt.Errorf("%w: transcription fatal: %v", model.ErrStageFailed, providerErr)
	}

	segments := Normalize(result, opts)
	if len(segments) == 0 && strings.TrimSpace(result.flatText()) == "" {
		// Zero-segment transcription is a valid boundary case, not a
		// failure — an empty/silent source produces no segments at all.
		return nil, result.DetectedLanguage, result.DetectedLanguageProb, nil
	}
	return segments, result.DetectedLanguage, result.DetectedLanguageProb, nil
}

// transcribeOnce bounds one provider call to the per-call timeout, so a
// hung model or network call fails that attempt rather than eating the
// whole stage budget.
func transcribeOnce(ctx context.Context, p Provider, audioPath, sourceLanguage string, opts Options) (TranscriptResult, error) {
	timeout := opts.CallTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Transcribe(callCtx, audioPath, sourceLanguage)
}

func (r TranscriptResult) flatText() string {
	var b strings.Builder
	for _, s := range r.Segments {
		b.WriteString(s.Text)
	}
	for _, w := range r.Words {
		b.WriteString(w.Word)
	}
	return b.String()
}

// Normalize converts a provider's TranscriptResult into the Segment model,
// applying the segmentation rule when only a flat word list is
// available, and the initial speaker-id heuristic (toggle on gaps > 2s).
func Normalize(result TranscriptResult, opts Options) []model.Segment {
	if result.HasSegments() {
		return normalizeFromSegments(result.Segments)
	}
	return normalizeFromWords(result.Words)
}

func normalizeFromSegments(raw []RawSegment) []model.Segment {
	segs := make([]model.Segment, 0, len(raw))
	speaker := 0
	prevEnd := 0.0
	for i, r := range raw {
		if i > 0 && r.Start-prevEnd > speakerToggleGap {
			speaker = 1 - speaker
		}
		segs = append(segs, model.Segment{
			ID:        i,
			Start:     round3(r.Start),
			End:       round3(r.End),
			Text:      strings.TrimSpace(r.Text),
			Words:     convertWords(r.Words),
			SpeakerID: speaker,
		})
		prevEnd = r.End
	}
	return segs
}

// normalizeFromWords implements the segmentation rule directly: open a
// new segment on a >1.5s gap or once the current segment hits 20 words.
func normalizeFromWords(words []RawWord) []model.Segment {
	if len(words) == 0 {
		return nil
	}

	var segs []model.Segment
	var cur []RawWord
	speaker := 0
	prevEnd := words[0].Start

	flush := func() {
		if len(cur) == 0 {
			return
		}
		var text strings.Builder
		for i, w := range cur {
			if i > 0 {
				text.WriteByte(' ')
			}
			text.WriteString(w.Word)
		}
		segs = append(segs, model.Segment{
			ID:        len(segs),
			Start:     round3(cur[0].Start),
			End:       round3(cur[len(cur)-1].End),
			Text:      strings.TrimSpace(text.String()),
			Words:     convertWords(cur),
			SpeakerID: speaker,
		})
		cur = nil
	}

	for _, w := range words {
		gap := w.Start - prevEnd
		if len(cur) > 0 && (gap > maxWordGapSec || len(cur) >= maxSegmentWords) {
			flush()
		}
		if gap > speakerToggleGap {
			speaker = 1 - speaker
		}
		cur = append(cur, w)
		prevEnd = w.End
	}
	flush()
	return segs
}

func convertWords(raw []RawWord) []model.Word {
	if len(raw) == 0 {
		return nil
	}
	out := make([]model.Word, len(raw))
	for i, w := range raw {
		out[i] = model.Word{Word: w.Word, Start: round3(w.Start), End: round3(w.End), Probability: w.Probability}
	}
	return out
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
