// Package assemble implements S6: stitching per-segment TTS clips and
// inter-segment silence into one continuous track whose duration matches
// the source, time-stretching clips that drift from their target span.
package assemble

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/voicebridge/dubline/internal/media"
	"github.com/voicebridge/dubline/internal/model"
)

// Options configures S6's concurrency and the stretch thresholds. The
// clamp bounds are threaded into every MediaPrimitive.Stretch call via
// media.StretchSpec, so tuning them takes effect without touching the
// primitive.
type Options struct {
	ConcurrencyW         int
	SampleRate           int
	Channels             int
	DurationToleranceSec float64
	StretchTimeout       time.Duration // bound on each individual stretch call
	PreferredLow         float64
	PreferredHigh        float64
	FallbackLow          float64
	FallbackHigh         float64
}

// DefaultOptions returns the pipeline defaults, with bounded concurrency
// W=4.
func DefaultOptions() Options {
	return Options{
		ConcurrencyW:         4,
		SampleRate:           48000,
		Channels:             2,
		DurationToleranceSec: 0.3,
		StretchTimeout:       120 * time.Second,
		PreferredLow:         0.7,
		PreferredHigh:        1.5,
		FallbackLow:          0.5,
		FallbackHigh:         2.0,
	}
}

// Result is S6's output artifact summary, folded into the job record's
// metrics alongside S5's sync-quality tally.
type Result struct {
	OutputPath       string
	StretchedClips   int
	ClampedStretches int
	AssembledSeconds float64
}

// partKind distinguishes the three kinds of part a cursor walk can emit.
type partKind int

const (
	partSilence partKind = iota
	partClipAsIs
	partClipStretch
)

type part struct {
	kind        partKind
	duration    float64 // target length, used for silence and stretch parts
	sourcePath  string  // clip path, for partClipAsIs/partClipStretch
	segmentIdx  int     // index into the sorted segment slice, -1 for gap/trailing silence
}

// Run executes S6 over segments (already placed in time by S3/S4/S5):
// sort by start, walk a cursor inserting silence for gaps and missing
// clips, stretch clips whose measured duration drifts from their target
// span by more than DurationToleranceSec, and concatenate the resulting
// sequence into outPath. totalDuration is the source media's duration
// (the trailing-silence target).
func Run(ctx context.Context, prim media.MediaPrimitive, segments []model.Segment, totalDuration float64, scratchDir, outPath string, opts Options) (Result, []model.Segment, error) {
	sorted := make([]model.Segment, len(segments))
	copy(sorted, segments)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	partsDir := filepath.Join(scratchDir, "assemble_parts")
	if err := os.MkdirAll(partsDir, 0o755); err != nil {
		return Result{}, nil, fmt.Errorf("%w: create assemble scratch: %v", model.ErrAssetMissing, err)
	}

	// Pass 1 (sequential, cheap): walk the cursor and decide what each part
	// of the final sequence needs to be. This determines ordering; the
	// actual rendering of each part below has no cross-part dependency and
	// is safe to parallelize.
	var parts []part
	t := 0.0
	const epsilon = 1e-6
	for i, seg := range sorted {
		if seg.Start-t > epsilon {
			parts = append(parts, part{kind: partSilence, duration: seg.Start - t, segmentIdx: -1})
		}
		switch {
		case seg.AudioPath == "":
			parts = append(parts, part{kind: partSilence, duration: seg.Duration(), segmentIdx: i})
		default:
			current, err := prim.ProbeDuration(ctx, seg.AudioPath)
			if err != nil {
				// Treat an unprobeable clip the same as a missing one rather
				// than failing the whole assembly over one bad segment.
				parts = append(parts, part{kind: partSilence, duration: seg.Duration(), segmentIdx: i})
				break
			}
			if math.Abs(current-seg.Duration()) > opts.DurationToleranceSec {
				parts = append(parts, part{kind: partClipStretch, duration: seg.Duration(), sourcePath: seg.AudioPath, segmentIdx: i})
			} else {
				parts = append(parts, part{kind: partClipAsIs, sourcePath: seg.AudioPath, segmentIdx: i})
			}
		}
		t = seg.End
	}
	if totalDuration-t > epsilon {
		parts = append(parts, part{kind: partSilence, duration: totalDuration - t, segmentIdx: -1})
	}

	// Pass 2 (bounded concurrency W): materialize every part into its own
	// file; gap silence, missing-clip silence, and stretch all go through
	// the same pool since ordering is already fixed by the slice index.
	partPaths := make([]string, len(parts))
	result := Result{}
	var resultMu sync.Mutex
	sem := make(chan struct{}, max(1, opts.ConcurrencyW))
	var wg sync.WaitGroup
	errs := make([]error, len(parts))

	for idx, p := range parts {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, p part) {
			defer wg.Done()
			defer func() { <-sem }()

			switch p.kind {
			case partSilence:
				path := filepath.Join(partsDir, fmt.Sprintf("part_%04d_silence.wav", idx))
				if err := media.WriteSilenceWAV(path, p.duration, opts.SampleRate, opts.Channels); err != nil {
					errs[idx] = fmt.Errorf("%w: write silence part: %v", model.ErrAssetMissing, err)
					return
				}
				partPaths[idx] = path

			case partClipAsIs:
				partPaths[idx] = p.sourcePath

			case partClipStretch:
				path := filepath.Join(partsDir, fmt.Sprintf("part_%04d_stretch%s", idx, filepath.Ext(p.sourcePath)))
				preferred := media.StretchSpec{Kind: media.StretchPreferred, RatioLow: opts.PreferredLow, RatioHigh: opts.PreferredHigh}
				tempoOnly := media.StretchSpec{Kind: media.StretchFallback, RatioLow: opts.FallbackLow, RatioHigh: opts.FallbackHigh}
				_, clamped, err := stretchOnce(ctx, prim, p.sourcePath, path, p.duration, preferred, opts.StretchTimeout)
				if err != nil {
					_, clamped, err = stretchOnce(ctx, prim, p.sourcePath, path, p.duration, tempoOnly, opts.StretchTimeout)
				}
				if err != nil {
					// Stretch failed on both primitives; fall back to the
					// unstretched clip rather than failing the whole job.
					partPaths[idx] = p.sourcePath
					return
				}
				partPaths[idx] = path
				resultMu.Lock()
				result.StretchedClips++
				if clamped {
					result.ClampedStretches++
				}
				resultMu.Unlock()
				if p.segmentIdx >= 0 {
					sorted[p.segmentIdx].Stretched = true
					sorted[p.segmentIdx].StretchRatioClamped = clamped
				}
			}
		}(idx, p)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return Result{}, nil, err
		}
	}
	if ctx.Err() != nil {
		return Result{}, nil, ctx.Err()
	}

	if err := prim.Concat(ctx, partPaths, outPath); err != nil {
		return Result{}, nil, fmt.Errorf("%w: concat assembled parts: %v", model.ErrStageFailed, err)
	}

	result.OutputPath = outPath
	result.AssembledSeconds = totalDuration
	return result, sorted, nil
}

// stretchOnce bounds one Stretch invocation to the per-stretch timeout, so
// a single hung subprocess never holds a pool worker for the whole stage
// budget.
func stretchOnce(ctx context.Context, prim media.MediaPrimitive, inPath, outPath string, target float64, spec media.StretchSpec, timeout time.Duration) (float64, bool, error) {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return prim.Stretch(callCtx, inPath, outPath, target, spec)
}
