package mix

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/voicebridge/dubline/internal/media"
)

type fakePrimitive struct {
	loudness    map[string]media.LoudnessStats
	filterFails bool
	mixCalls    []mixCall
	filterCalls []filterCall
}

type mixCall struct {
	bg, dub               string
	bgWeight, dubWeight   float64
	target                media.LoudnessStats
}

type filterCall struct {
	inPath string
	spec   media.FilterSpec
}

func (f *fakePrimitive) Extract(ctx context.Context, sourcePath, mono16Path, stereo48Path string) error {
	return nil
}
func (f *fakePrimitive) Filter(ctx context.Context, inPath, outPath string, spec media.FilterSpec) error {
	f.filterCalls = append(f.filterCalls, filterCall{inPath: inPath, spec: spec})
	if f.filterFails {
		return os.ErrInvalid
	}
	return os.WriteFile(outPath, []byte("filtered"), 0o644)
}
func (f *fakePrimitive) ProbeDuration(ctx context.Context, path string) (float64, error) {
	return 1, nil
}
func (f *fakePrimitive) AnalyzeLoudness(ctx context.Context, path string) (media.LoudnessStats, error) {
	if s, ok := f.loudness[path]; ok {
		return s, nil
	}
	return media.LoudnessStats{IntegratedLUFS: -16}, nil
}
func (f *fakePrimitive) Concat(ctx context.Context, parts []string, outPath string) error { return nil }
func (f *fakePrimitive) Stretch(ctx context.Context, inPath, outPath string, targetDuration float64, spec media.StretchSpec) (float64, bool, error) {
	return 1, false, nil
}
func (f *fakePrimitive) Mix(ctx context.Context, backgroundPath, dubbedPath, outPath string, bgWeight, dubWeight float64, target media.LoudnessStats) error {
	f.mixCalls = append(f.mixCalls, mixCall{bg: backgroundPath, dub: dubbedPath, bgWeight: bgWeight, dubWeight: dubWeight, target: target})
	return os.WriteFile(outPath, []byte("mixed"), 0o644)
}
func (f *fakePrimitive) Encode(ctx context.Context, inPath, outPath string, format string) error {
	return nil
}

// TestRun_DubbedGainComputedFromMeasuredLoudness: a
// dubbed track quieter than the target gets a positive gain, clamped to
// [-20, 20].
func TestRun_DubbedGainComputedFromMeasuredLoudness(t *testing.T) {
	dir := t.TempDir()
	bg := filepath.Join(dir, "bg.wav")
	dub := filepath.Join(dir, "dub.wav")
	out := filepath.Join(dir, "out.wav")

	prim := &fakePrimitive{loudness: map[string]media.LoudnessStats{
		dub: {IntegratedLUFS: -24}, // 10dB quieter than the -14 target
	}}
	result, err := Run(context.Background(), prim, bg, dub, out, dir, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DubbedGainDB != 10 {
		t.Fatalf("expected +10dB gain, got %v", result.DubbedGainDB)
	}
	if len(prim.mixCalls) != 1 {
		t.Fatalf("expected exactly one Mix call, got %d", len(prim.mixCalls))
	}
}

// TestRun_DubbedGainClamped covers the clamp(-20,20) bound.
func TestRun_DubbedGainClamped(t *testing.T) {
	dir := t.TempDir()
	bg := filepath.Join(dir, "bg.wav")
	dub := filepath.Join(dir, "dub.wav")
	out := filepath.Join(dir, "out.wav")

	prim := &fakePrimitive{loudness: map[string]media.LoudnessStats{
		dub: {IntegratedLUFS: -60}, // would need +46dB without clamping
	}}
	result, err := Run(context.Background(), prim, bg, dub, out, dir, DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DubbedGainDB != 20 {
		t.Fatalf("expected gain clamped to +20dB, got %v", result.DubbedGainDB)
	}
}

// TestRun_BackgroundLevelOverride: the background_level option overrides
// the default ducking gain.
func TestRun_BackgroundLevelOverride(t *testing.T) {
	dir := t.TempDir()
	bg := filepath.Join(dir, "bg.wav")
	dub := filepath.Join(dir, "dub.wav")
	out := filepath.Join(dir, "out.wav")

	prim := &fakePrimitive{}
	opts := DefaultOptions()
	opts.BackgroundLevel = 0.3
	result, err := Run(context.Background(), prim, bg, dub, out, dir, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.BackgroundGain != 0.3 {
		t.Fatalf("expected background gain override 0.3, got %v", result.BackgroundGain)
	}
	if prim.mixCalls[0].bgWeight != 0.3 {
		t.Fatalf("expected Mix to receive the overridden bg weight, got %v", prim.mixCalls[0].bgWeight)
	}
}

// TestRun_ReverbFailureSkipsWithoutAborting: a failing reverb primitive
// is skipped without aborting the mix.
func TestRun_ReverbFailureSkipsWithoutAborting(t *testing.T) {
	dir := t.TempDir()
	bg := filepath.Join(dir, "bg.wav")
	dub := filepath.Join(dir, "dub.wav")
	out := filepath.Join(dir, "out.wav")

	prim := &fakePrimitive{filterFails: true}
	opts := DefaultOptions()
	opts.ReverbEnabled = true
	result, err := Run(context.Background(), prim, bg, dub, out, dir, opts)
	if err != nil {
		t.Fatalf("expected reverb failure not to abort the mix: %v", err)
	}
	if result.ReverbApplied {
		t.Fatal("expected ReverbApplied=false when the filter primitive fails")
	}
	if prim.mixCalls[0].dub != dub {
		t.Fatalf("expected Mix to fall back to the original dubbed clip, got %v", prim.mixCalls[0].dub)
	}
}

// TestRun_ReverbAmountBoundedByMax covers the amount clamp.
func TestRun_ReverbAmountBoundedByMax(t *testing.T) {
	dir := t.TempDir()
	bg := filepath.Join(dir, "bg.wav")
	dub := filepath.Join(dir, "dub.wav")
	out := filepath.Join(dir, "out.wav")

	prim := &fakePrimitive{}
	opts := DefaultOptions()
	opts.ReverbEnabled = true
	opts.ReverbAmount = 0.9
	opts.MaxReverbAmount = 0.2
	result, err := Run(context.Background(), prim, bg, dub, out, dir, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.ReverbApplied {
		t.Fatal("expected reverb to apply")
	}
	if prim.filterCalls[0].spec.ReverbAmount != 0.2 {
		t.Fatalf("expected reverb amount clamped to 0.2, got %v", prim.filterCalls[0].spec.ReverbAmount)
	}
}

// TestRun_QuickMixSkipsAnalyses covers the quick-mix variant: no loudness
// analysis calls, fixed gains, identical loudness targets passed to Mix.
func TestRun_QuickMixSkipsAnalyses(t *testing.T) {
	dir := t.TempDir()
	bg := filepath.Join(dir, "bg.wav")
	dub := filepath.Join(dir, "dub.wav")
	out := filepath.Join(dir, "out.wav")

	prim := &fakePrimitive{loudness: map[string]media.LoudnessStats{dub: {IntegratedLUFS: -40}}}
	opts := DefaultOptions()
	opts.QuickMix = true
	result, err := Run(context.Background(), prim, bg, dub, out, dir, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DubbedGainDB != 0 {
		t.Fatalf("expected quick-mix to skip gain computation (0dB), got %v", result.DubbedGainDB)
	}
	if prim.mixCalls[0].target.IntegratedLUFS != opts.TargetLUFS {
		t.Fatalf("expected quick-mix to keep the same loudness target, got %v", prim.mixCalls[0].target)
	}
}
