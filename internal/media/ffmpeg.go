package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/voicebridge/dubline/internal/mediatool"
	"github.com/voicebridge/dubline/internal/model"
)

// subprocessTimeout bounds each individual tool invocation, independent of
// whatever deadline the caller's stage context carries.
const subprocessTimeout = 300 * time.Second

// videoExtensions mirrors the container-format list: files with these
// extensions are treated as video and need an audio-extraction pass first.
var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true, ".webm": true, ".flv": true,
}

// FFmpeg is the subprocess-backed MediaPrimitive: every operation shells
// out to a whitelisted ffmpeg binary rather than building ad hoc
// exec.Command calls inline. It covers every MediaPrimitive operation with
// no native Go equivalent: container demux, filter graphs, time-stretch,
// and loudness analysis.
type FFmpeg struct {
	registry *mediatool.Registry
	binary   string
}

// NewFFmpeg creates a subprocess primitive bound to a whitelisted ffmpeg/
// ffprobe registry entry.
func NewFFmpeg(registry *mediatool.Registry) *FFmpeg {
	binary := "ffmpeg"
	if meta, ok := registry.Lookup("ffmpeg"); ok {
		binary = meta.BinaryPath
	}
	return &FFmpeg{registry: registry, binary: binary}
}

func (f *FFmpeg) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, f.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: ffmpeg %v: %v: %s", model.ErrAssetMissing, args, err, stderr.String())
	}
	return stdout.String(), nil
}

func isVideo(path string) bool {
	for ext := range videoExtensions {
		if strings.HasSuffix(strings.ToLower(path), ext) {
			return true
		}
	}
	return false
}

// Extract implements MediaPrimitive.Extract. It always produces both
// tracks, one ffmpeg run per track over the same input: 16kHz mono PCM
// for transcription and 48kHz stereo PCM (untouched) for S7's background
// mix.
func (f *FFmpeg) Extract(ctx context.Context, sourcePath, mono16Path, stereo48Path string) error {
	args := []string{"-y", "-i", sourcePath}
	if isVideo(sourcePath) {
		args = append(args, "-vn")
	}
	if _, err := f.run(ctx, append(args, "-ac", "1", "-ar", "16000", "-f", "wav", mono16Path)...); err != nil {
		return fmt.Errorf("%w: extract mono16: %v", model.ErrAssetMissing, err)
	}
	if _, err := f.run(ctx, append(args, "-ac", "2", "-ar", "48000", "-f", "wav", stereo48Path)...); err != nil {
		return fmt.Errorf("%w: extract stereo48: %v", model.ErrAssetMissing, err)
	}
	return nil
}

// Filter implements MediaPrimitive.Filter, chaining highpass/denoise/
// loudnorm as an ffmpeg -af filtergraph. Each sub-step is
// independently skippable; if the whole chain fails, the caller is expected
// to keep using inPath (the prior artifact) rather than abort S1.
func (f *FFmpeg) Filter(ctx context.Context, inPath, outPath string, spec FilterSpec) error {
	var chain []string
	if spec.Highpass {
		chain = append(chain, fmt.Sprintf("highpass=f=%g", spec.HighpassHz))
	}
	if spec.Denoise {
		// Map [0,1] noise-reduction strength onto the primitive's 0-40dB range.
		db := spec.DenoiseStrength * 40
		chain = append(chain, fmt.Sprintf("afftdn=nr=%g:nf=%g", db, spec.DenoiseFloorDB))
	}
	if spec.Normalize {
		chain = append(chain, fmt.Sprintf("loudnorm=I=%g:TP=%g:LRA=%g", spec.TargetLUFS, spec.TruePeakDB, spec.LRA))
	}
	if spec.Reverb {
		// aecho approximates a subtle room tone: a single short, quiet
		// reflection scaled by the bounded reverb amount.
		decay := spec.ReverbAmount
		chain = append(chain, fmt.Sprintf("aecho=1.0:0.7:60:%g", decay))
	}
	if len(chain) == 0 {
		chain = []string{"anull"}
	}
	_, err := f.run(ctx, "-y", "-i", inPath, "-af", strings.Join(chain, ","), outPath)
	return err
}

// ProbeDuration implements MediaPrimitive.ProbeDuration via ffprobe.
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	probe := "ffprobe"
	if meta, ok := f.registry.Lookup("ffprobe"); ok {
		probe = meta.BinaryPath
	}
	ctx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, probe, "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("%w: probe duration %s: %v", model.ErrAssetMissing, path, err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse duration %s: %v", model.ErrAssetMissing, path, err)
	}
	return secs, nil
}

// AnalyzeLoudness implements MediaPrimitive.AnalyzeLoudness using ffmpeg's
// ebur128 filter in single-pass info mode.
func (f *FFmpeg) AnalyzeLoudness(ctx context.Context, path string) (LoudnessStats, error) {
	// ebur128 writes its summary to stderr; our run() captures stderr only
	// on error, so this needs its own invocation.
	ctx, cancel := context.WithTimeout(ctx, subprocessTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, f.binary, "-nostats", "-i", path, "-af", "ebur128=peak=true", "-f", "null", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return LoudnessStats{}, fmt.Errorf("%w: analyze loudness %s: %v", model.ErrAssetMissing, path, err)
	}
	return parseEBUR128Summary(stderr.String()), nil
}

// parseEBUR128Summary extracts Integrated/True peak/LRA lines out of
// ffmpeg's "Summary:" block. Parsing is forgiving: a missing line just
// leaves that stat at zero rather than failing the whole analysis.
func parseEBUR128Summary(output string) LoudnessStats {
	var stats LoudnessStats
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "I:"):
			stats.IntegratedLUFS = firstFloat(line)
		case strings.HasPrefix(line, "Peak:"):
			stats.TruePeakDB = firstFloat(line)
		case strings.HasPrefix(line, "LRA:"):
			stats.LRA = firstFloat(line)
		}
	}
	return stats
}

func firstFloat(line string) float64 {
	fields := strings.Fields(line)
	for _, field := range fields {
		if v, err := strconv.ParseFloat(field, 64); err == nil {
			return v
		}
	}
	return 0
}

// Concat implements MediaPrimitive.Concat via ffmpeg's concat demuxer.
func (f *FFmpeg) Concat(ctx context.Context, parts []string, outPath string) error {
	var listFile bytes.Buffer
	for _, p := range parts {
		fmt.Fprintf(&listFile, "file '%s'\n", p)
	}
	tmpList := outPath + ".concat.txt"
	if err := writeFile(tmpList, listFile.Bytes()); err != nil {
		return fmt.Errorf("%w: write concat list: %v", model.ErrAssetMissing, err)
	}
	_, err := f.run(ctx, "-y", "-f", "concat", "-safe", "0", "-i", tmpList, "-c", "copy", outPath)
	return err
}

// Stretch implements MediaPrimitive.Stretch, clamping the computed ratio
// to spec's bounds and reporting whether clamping occurred. The preferred
// class uses ffmpeg's rubberband filter (phase-vocoder, pitch-preserving);
// the fallback class uses atempo, available in every ffmpeg build.
func (f *FFmpeg) Stretch(ctx context.Context, inPath, outPath string, targetDuration float64, spec StretchSpec) (float64, bool, error) {
	current, err := f.ProbeDuration(ctx, inPath)
	if err != nil || current <= 0 {
		return 1, false, fmt.Errorf("%w: probe before stretch: %v", model.ErrAssetMissing, err)
	}
	ratio := current / targetDuration

	low, high := spec.Bounds()
	clamped := false
	if ratio < low {
		ratio, clamped = low, true
	} else if ratio > high {
		ratio, clamped = high, true
	}

	chain := atempoChain(ratio)
	if spec.Kind == StretchPreferred {
		chain = fmt.Sprintf("rubberband=tempo=%g", ratio)
	}
	_, err = f.run(ctx, "-y", "-i", inPath, "-af", chain, outPath)
	return ratio, clamped, err
}

// atempoChain builds an atempo filter chain for ratios outside ffmpeg's
// native [0.5, 2.0] single-filter support by factoring into multiple stages.
func atempoChain(ratio float64) string {
	if ratio >= 0.5 && ratio <= 2.0 {
		return fmt.Sprintf("atempo=%g", ratio)
	}
	var stages []string
	remaining := ratio
	for remaining > 2.0 {
		stages = append(stages, "atempo=2.0")
		remaining /= 2.0
	}
	for remaining < 0.5 {
		stages = append(stages, "atempo=0.5")
		remaining /= 0.5
	}
	stages = append(stages, fmt.Sprintf("atempo=%g", remaining))
	return strings.Join(stages, ",")
}

// Mix implements MediaPrimitive.Mix: weighted sum of two streams via
// amix/volume filters, followed by a loudnorm re-normalization pass.
func (f *FFmpeg) Mix(ctx context.Context, backgroundPath, dubbedPath, outPath string, bgWeight, dubWeight float64, target LoudnessStats) error {
	filter := fmt.Sprintf(
		"[0:a]volume=%g[bg];[1:a]volume=%g[dub];[bg][dub]amix=inputs=2:duration=longest,loudnorm=I=%g:TP=%g:LRA=%g",
		bgWeight, dubWeight, target.IntegratedLUFS, target.TruePeakDB, target.LRA,
	)
	_, err := f.run(ctx, "-y", "-i", backgroundPath, "-i", dubbedPath, "-filter_complex", filter, "-ar", "48000", "-ac", "2", outPath)
	return err
}

// Encode implements MediaPrimitive.Encode, dispatching to the requested
// codec at 48kHz stereo.
func (f *FFmpeg) Encode(ctx context.Context, inPath, outPath string, format string) error {
	codec := "aac"
	if format == "mp3" {
		codec = "libmp3lame"
	}
	_, err := f.run(ctx, "-y", "-i", inPath, "-ar", "48000", "-ac", "2", "-c:a", codec, outPath)
	return err
}
