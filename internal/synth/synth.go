package synth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voicebridge/dubline/internal/audio"
	"github.com/voicebridge/dubline/internal/media"
	"github.com/voicebridge/dubline/internal/model"
	"github.com/voicebridge/dubline/internal/retry"
	"github.com/voicebridge/dubline/internal/voices"
)

// Provider is satisfied by the Polly (premium) and Local (free) adapters.
// Synthesize returns raw encoded audio bytes plus the format extension
// ("mp3" or "wav") the caller should write the clip as.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text, voiceID string, ratePct, pitchHz float64) (data []byte, format string, err error)
}

// Options configures S5's concurrency, retry, fallback, and sync-quality
// thresholds; zero-value fields fall back to DefaultOptions' constants.
type Options struct {
	ConcurrencyW         int
	RetryBackoff         []time.Duration
	PerSegmentTimeout    time.Duration // bound on each individual provider render
	FallbackAfterN       int           // consecutive primary failures before switching providers
	DurationToleranceSec float64       // trigger for the rate_adjust re-render
	GoodThresholdSec     float64
	FairThresholdSec     float64
	PreferredStyle       voices.PreferredStyle
}

// DefaultOptions returns the pipeline defaults, with bounded concurrency
// W=4.
func DefaultOptions() Options {
	return Options{
		ConcurrencyW:         4,
		RetryBackoff:         []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second},
		PerSegmentTimeout:    120 * time.Second,
		FallbackAfterN:       3,
		DurationToleranceSec: 0.3,
		GoodThresholdSec:     0.5,
		FairThresholdSec:     1.0,
	}
}

// Summary is the per-job sync-quality rollup: a tally over final
// per-segment residuals, computed once here and reused by internal/jobstore
// and internal/metrics.
type Summary struct {
	Good, Fair, Poor int
	Attempted        int // non-empty segments attempted
	Succeeded        int // attempted segments that produced an audio file
}

// AcceptanceStatus classifies the stage against the 80% threshold: succeeded
// at >=80% of non-empty segments producing audio, degraded below that but
// above zero, failed if none succeeded at all.
func (s Summary) AcceptanceStatus() model.StageState {
	if s.Attempted == 0 {
		return model.StateSucceeded
	}
	ratio := float64(s.Succeeded) / float64(s.Attempted)
	switch {
	case ratio >= 0.8:
		return model.StateSucceeded
	case s.Succeeded > 0:
		return model.StateDegraded
	default:
		return model.StateFailed
	}
}

// jobFailureState is per-Job state: Run constructs a fresh one per call
// rather than reading/writing any package-level variable, so one job's
// provider failures never bleed into the next.
type jobFailureState struct {
	consecutivePrimaryFailures int32
	fallbackOnly               int32 // 0/1, flips permanently once FallbackAfterN is hit
}

func (s *jobFailureState) recordFailure(threshold int32) {
	if atomic.AddInt32(&s.consecutivePrimaryFailures, 1) >= threshold {
		atomic.StoreInt32(&s.fallbackOnly, 1)
	}
}

func (s *jobFailureState) recordSuccess() {
	atomic.StoreInt32(&s.consecutivePrimaryFailures, 0)
}

func (s *jobFailureState) useFallback() bool {
	return atomic.LoadInt32(&s.fallbackOnly) == 1
}

// Run executes S5 over every segment: emotion detection, voice assignment,
// provider render with duration-driven rate re-alignment, retry/fallback,
// and sync-quality classification. Segments are processed with bounded
// concurrency W; ordering in the output slice matches the input slice
// (segment.id, not completion order), so completion order never matters.
func Run(ctx context.Context, job *model.Job, segments []model.Segment, assignment *voices.Assignment, primary, fallback Provider, ttsDir string, opts Options) ([]model.Segment, Summary, error) {
	out := make([]model.Segment, len(segments))
	copy(out, segments)

	// Voice assignment touches the job-scoped cache; resolve every
	// segment's voice sequentially up front so the concurrent render pass
	// below never races on model.Job.Voices.
	voiceIDs := make([]string, len(segments))
	for i, seg := range segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		voiceIDs[i] = voices.Assign(job, assignment, seg.SpeakerID, job.TargetLanguage, seg.Gender, opts.PreferredStyle)
	}

	if err := os.MkdirAll(ttsDir, 0o755); err != nil {
		return nil, Summary{}, fmt.Errorf("%w: create tts_dir: %v", model.ErrAssetMissing, err)
	}

	state := &jobFailureState{}
	sem := make(chan struct{}, max(1, opts.ConcurrencyW))
	var wg sync.WaitGroup
	var mu sync.Mutex
	summary := Summary{}

	for i := range segments {
		if voiceIDs[i] == "" {
			continue // empty translated segment is excluded from S5
		}
		summary.Attempted++

		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			seg := out[i]
			result := renderSegment(ctx, seg, voiceIDs[i], primary, fallback, state, ttsDir, opts)

			mu.Lock()
			out[i] = result.segment
			if result.segment.AudioPath != "" {
				summary.Succeeded++
				switch result.segment.SyncQuality {
				case model.SyncGood:
					summary.Good++
				case model.SyncFair:
					summary.Fair++
				case model.SyncPoor:
					summary.Poor++
				}
			}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return out, summary, ctx.Err()
	}
	return out, summary, nil
}

type renderResult struct {
	segment model.Segment
}

// renderSegment implements one segment's full algorithm: emotion
// detect, render, measure, rate-adjust re-render if needed, classify.
func renderSegment(ctx context.Context, seg model.Segment, voiceID string, primary, fallback Provider, state *jobFailureState, ttsDir string, opts Options) renderResult {
	emotion, base := DetectEmotion(seg.Text)
	seg.Emotion = emotion

	data, format, err := renderWithRetryAndFallback(ctx, seg.Text, voiceID, base.RatePct, base.PitchHz, primary, fallback, state, opts)
	if err != nil {
		seg.Failed = true
		return renderResult{segment: seg}
	}

	path := segmentPath(ttsDir, seg.ID, format)
	actual, measureErr := writeAndMeasure(path, data, format)
	if measureErr != nil {
		seg.Failed = true
		return renderResult{segment: seg}
	}

	target := seg.Duration()
	residual := math.Abs(actual - target)
	if residual > opts.DurationToleranceSec && target > 0 {
		rateAdjust := math.Round((actual/target - 1) * 100)
		combinedRate := clamp(base.RatePct+rateAdjust, -50, 100)

		data2, format2, err2 := synthesizeOnce(ctx, currentProvider(primary, fallback, state), seg.Text, voiceID, combinedRate, base.PitchHz, opts)
		if err2 == nil {
			path2 := segmentPath(ttsDir, seg.ID, format2)
			if actual2, measureErr2 := writeAndMeasure(path2, data2, format2); measureErr2 == nil {
				if path2 != path {
					_ = os.Remove(path)
				}
				path = path2
				actual = actual2
				residual = math.Abs(actual - target)
			}
		}
	}

	seg.AudioPath = path
	seg.SyncQuality = classifySync(residual, opts)
	return renderResult{segment: seg}
}

// renderWithRetryAndFallback tries the currently-selected provider (primary
// unless the job has already tripped into fallback-only mode) with the
// per-segment retry schedule. A primary failure counts toward the job's
// consecutive-failure tally; once that tally reaches FallbackAfterN, later
// segments route straight to the fallback "without further probing" the
// primary at all — the segment whose failure trips the counter does not
// itself get a bonus fallback attempt.
func renderWithRetryAndFallback(ctx context.Context, text, voiceID string, ratePct, pitchHz float64, primary, fallback Provider, state *jobFailureState, opts Options) ([]byte, string, error) {
	p := currentProvider(primary, fallback, state)

	var data []byte
	var format string
	policy := retry.Policy{Attempts: 3, Backoff: opts.RetryBackoff, Retryable: retry.AlwaysRetryable}
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		d, f, rErr := synthesizeOnce(ctx, p, text, voiceID, ratePct, pitchHz, opts)
		if rErr != nil {
			return rErr
		}
		data, format = d, f
		return nil
	})

	if err == nil {
		if p == primary {
			state.recordSuccess()
		}
		return data, format, nil
	}

	if p == primary && fallback != nil {
		state.recordFailure(int32(opts.FallbackAfterN))
	}
	return nil, "", fmt.Errorf("%w: synthesize segment: %v", model.ErrStageFailed, err)
}

// synthesizeOnce bounds one provider render to the per-segment call
// timeout, so a hung render never holds a pool worker for the whole stage
// budget.
func synthesizeOnce(ctx context.Context, p Provider, text, voiceID string, ratePct, pitchHz float64, opts Options) ([]byte, string, error) {
	if p == nil {
		return nil, "", errors.New("synth: no provider available")
	}
	timeout := opts.PerSegmentTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Synthesize(callCtx, text, voiceID, ratePct, pitchHz)
}

// currentProvider selects primary unless the job has tripped into
// fallback-only mode ("after N consecutive primary failures across
// segments, switch remaining segments to the fallback provider without
// further probing").
func currentProvider(primary, fallback Provider, state *jobFailureState) Provider {
	if state.useFallback() && fallback != nil {
		return fallback
	}
	return primary
}

func segmentPath(ttsDir string, id int, format string) string {
	return fmt.Sprintf("%s/segment_%04d.%s", ttsDir, id, format)
}

func writeAndMeasure(path string, data []byte, format string) (float64, error) {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("%w: write segment clip: %v", model.ErrAssetMissing, err)
	}
	return measureDuration(path, format)
}

// measureDuration measures a rendered clip's duration in-process: wav via
// the shared PCM decoder, mp3 via go-mp3 (internal/media.ProbeMP3Duration),
// avoiding a subprocess round trip on this hot per-segment path.
func measureDuration(path, format string) (float64, error) {
	if format == "mp3" {
		return media.ProbeMP3Duration(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: read clip for measurement: %v", model.ErrAssetMissing, err)
	}
	info, err := audio.DecodeWAV(data)
	if err != nil {
		return 0, fmt.Errorf("%w: decode wav for measurement: %v", model.ErrAssetMissing, err)
	}
	if info.SampleRate == 0 || info.Channels == 0 {
		return 0, fmt.Errorf("%w: invalid wav header", model.ErrAssetMissing)
	}
	frames := len(info.Samples) / info.Channels
	return float64(frames) / float64(info.SampleRate), nil
}

// classifySync buckets the final duration residual.
func classifySync(residual float64, opts Options) model.SyncQuality {
	switch {
	case residual <= opts.GoodThresholdSec:
		return model.SyncGood
	case residual <= opts.FairThresholdSec:
		return model.SyncFair
	default:
		return model.SyncPoor
	}
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
