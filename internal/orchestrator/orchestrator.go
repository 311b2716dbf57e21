// Package orchestrator implements the pipeline's core state machine: it
// sequences S1-S7, applies each stage's fail-fast vs best-effort policy,
// owns the job's scratch directory lifecycle, and produces the final
// Result record. The Orchestrator depends only on the MediaPrimitive and
// Provider interfaces; wiring concrete backends is cmd/dubline's job.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/voicebridge/dubline/internal/assemble"
	"github.com/voicebridge/dubline/internal/audio"
	"github.com/voicebridge/dubline/internal/diarize"
	"github.com/voicebridge/dubline/internal/media"
	"github.com/voicebridge/dubline/internal/metrics"
	"github.com/voicebridge/dubline/internal/mix"
	"github.com/voicebridge/dubline/internal/model"
	"github.com/voicebridge/dubline/internal/synth"
	"github.com/voicebridge/dubline/internal/transcribe"
	"github.com/voicebridge/dubline/internal/translate"
	"github.com/voicebridge/dubline/internal/voices"
)

// stageTimeout is a coarse backstop on each stage's total wall-clock time,
// including retries, backoff sleeps, and inter-batch pauses. The tight
// per-operation limits live at the call sites: 300s per subprocess in
// internal/media, 300s per transcription call in internal/transcribe, 180s
// per translation call in internal/translate, 120s per render in
// internal/synth, and 120s per stretch in internal/assemble.
var stageTimeout = map[model.StageName]time.Duration{
	model.StagePreprocess: 15 * time.Minute,
	model.StageTranscribe: 30 * time.Minute,
	model.StageDiarize:    2 * time.Minute,
	model.StageTranslate:  30 * time.Minute,
	model.StageSynthesize: 20 * time.Minute,
	model.StageAssemble:   20 * time.Minute,
	model.StageMix:        15 * time.Minute,
}

// Recorder receives stage transitions and the final result. All
// implementations are nil-safe. internal/jobstore's Tracer and
// internal/progress's Broadcaster both implement it; cmd/dubline composes
// them with a fanout Recorder so a job emits to both with one call site.
type Recorder interface {
	StartJob(jobID string)
	RecordStage(jobID string, stage model.StageResult)
	EndJob(jobID string, result model.Result)
}

// Config bundles every stage's concrete dependencies: the media primitive,
// provider pairs, and per-stage tunables. Wiring a Config is cmd/dubline's
// job; the Orchestrator itself never constructs a provider.
type Config struct {
	Media media.MediaPrimitive

	TranscribePrimary, TranscribeFallback transcribe.Provider
	TranslatePrimary, TranslateFallback   translate.Provider
	SynthPrimary, SynthFallback           synth.Provider

	TranscribeOpts transcribe.Options
	DiarizeOpts    diarize.Options
	TranslateOpts  translate.Options
	SynthOpts      synth.Options
	AssembleOpts   assemble.Options
	MixOpts        mix.Options

	Recorder Recorder
}

// Orchestrator sequences the seven stages for one Job at a time; it holds
// no per-job mutable state itself (that lives on *model.Job), so one
// Orchestrator value is safe to reuse concurrently across jobs.
type Orchestrator struct {
	cfg Config
}

// New builds an Orchestrator from a fully-wired Config.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// Run executes every stage of job in order, writing the final deliverable
// to outputPath, and returns the final job record. The scratch
// directory is created eagerly and removed once outputPath has been
// written (or the job is abandoned).
func (o *Orchestrator) Run(ctx context.Context, job *model.Job, outputPath string) (model.Result, error) {
	if err := os.MkdirAll(job.ScratchDir, 0o755); err != nil {
		return model.Result{}, fmt.Errorf("%w: create scratch dir: %v", model.ErrAssetMissing, err)
	}
	defer func() {
		if err := os.RemoveAll(job.ScratchDir); err != nil {
			slog.Warn("scratch cleanup failed", "job_id", job.JobID, "error", err)
		}
	}()

	o.startJob(job.JobID)
	metrics.JobsActive.Inc()
	defer metrics.JobsActive.Dec()

	for _, name := range model.Stages {
		if err := ctx.Err(); err != nil {
			metrics.JobsTotal.WithLabelValues("failed").Inc()
			return o.abort(job, err)
		}
		stageCtx, cancel := context.WithTimeout(ctx, stageTimeout[name])
		fatal := o.runStage(stageCtx, job, name)
		cancel()
		if fatal != nil {
			metrics.JobsTotal.WithLabelValues("failed").Inc()
			return o.abort(job, fatal)
		}
	}

	if err := copyFile(job.Artifacts.FinalOutput, outputPath); err != nil {
		metrics.JobsTotal.WithLabelValues("failed").Inc()
		return o.abort(job, fmt.Errorf("%w: persist final output: %v", model.ErrAssetMissing, err))
	}
	job.Artifacts.FinalOutput = outputPath

	result := o.finalize(job)
	metrics.JobsTotal.WithLabelValues("succeeded").Inc()
	o.endJob(job.JobID, result)
	return result, nil
}

// copyFile persists a scratch-relative artifact to a destination outside
// the scratch dir before Run's deferred cleanup removes it.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// runStage dispatches to the named stage's implementation, updates the
// job's StageResult in place, and reports a non-nil error only when the
// stage's policy (the table) classifies the failure as fatal.
func (o *Orchestrator) runStage(ctx context.Context, job *model.Job, name model.StageName) error {
	stage := job.StageResultFor(name)
	stage.Status = model.StateRunning
	start := time.Now()

	var status model.StageState
	var warnings []string
	var err error

	switch name {
	case model.StagePreprocess:
		status, warnings, err = o.runPreprocess(ctx, job)
	case model.StageTranscribe:
		status, warnings, err = o.runTranscribe(ctx, job)
	case model.StageDiarize:
		status, warnings, err = o.runDiarize(ctx, job)
	case model.StageTranslate:
		status, warnings, err = o.runTranslate(ctx, job)
	case model.StageSynthesize:
		status, warnings, err = o.runSynthesize(ctx, job)
	case model.StageAssemble:
		status, warnings, err = o.runAssemble(ctx, job)
	case model.StageMix:
		status, warnings, err = o.runMix(ctx, job)
	}

	elapsed := time.Since(start)
	stage.DurationMs = float64(elapsed.Milliseconds())
	stage.Status = status
	stage.Warnings = warnings
	metrics.StageDuration.WithLabelValues(string(name)).Observe(elapsed.Seconds())
	if err != nil {
		stage.Error = err.Error()
		stage.ErrorKind = model.Kind(err).Error()
	}
	if status == model.StateFailed || status == model.StateDegraded {
		metrics.StageErrors.WithLabelValues(string(name), stage.ErrorKind).Inc()
	}
	o.recordStage(job, *stage)

	if status == model.StateFailed {
		return err
	}
	return nil
}

// runPreprocess follows the policy table's "fatal only if
// extraction fails" rule.
func (o *Orchestrator) runPreprocess(ctx context.Context, job *model.Job) (model.StageState, []string, error) {
	mono16 := filepath.Join(job.ScratchDir, "preprocess_mono16.wav")
	stereo48 := filepath.Join(job.ScratchDir, "background_stereo48.wav")
	if err := o.cfg.Media.Extract(ctx, job.SourcePath, mono16, stereo48); err != nil {
		return model.StateFailed, nil, fmt.Errorf("%w: extract audio: %v", model.ErrAssetMissing, err)
	}
	job.Artifacts.BackgroundAudio = stereo48

	current := mono16
	var warnings []string
	spec := media.FilterSpec{
		Highpass:        job.Options.ApplyHighpass,
		HighpassHz:      80,
		Denoise:         job.Options.ApplyNoiseReduction,
		DenoiseStrength: 0.5,
		DenoiseFloorDB:  -25,
		Normalize:       job.Options.ApplyNormalization,
		TargetLUFS:      -16,
		TruePeakDB:      -1.5,
		LRA:             11,
	}
	if spec.Highpass || spec.Denoise || spec.Normalize {
		filtered := filepath.Join(job.ScratchDir, "preprocess_filtered.wav")
		if err := o.cfg.Media.Filter(ctx, current, filtered, spec); err != nil {
			warnings = append(warnings, fmt.Sprintf("filter chain failed, using unfiltered audio: %v", err))
		} else {
			current = filtered
		}
	}
	job.Artifacts.PreprocessedAudio = current

	if d, err := o.cfg.Media.ProbeDuration(ctx, stereo48); err == nil {
		job.SourceDuration = d
	} else {
		warnings = append(warnings, fmt.Sprintf("source duration probe failed, deferring to assemble: %v", err))
	}
	return model.StateSucceeded, warnings, nil
}

// runTranscribe runs S2; fatal per the policy table.
func (o *Orchestrator) runTranscribe(ctx context.Context, job *model.Job) (model.StageState, []string, error) {
	segments, detectedLang, detectedProb, err := transcribe.Run(
		ctx, o.cfg.TranscribePrimary, o.cfg.TranscribeFallback,
		job.Artifacts.PreprocessedAudio, job.SourceLanguage, o.cfg.TranscribeOpts,
	)
	if err != nil {
		return model.StateFailed, nil, fmt.Errorf("%w: transcribe: %v", model.ErrStageFailed, err)
	}
	if err := model.ValidateOrder(segments); err != nil {
		// Overlaps past the 50ms tolerance mean the provider handed back a
		// broken timeline; truncating would silently reorder speech.
		return model.StateFailed, nil, err
	}
	model.TruncateOverlaps(segments)
	job.Segments = segments
	if job.SourceLanguage == "" {
		job.DetectedLanguage = detectedLang
		job.DetectedLanguageProb = detectedProb
	}
	o.writeSegmentDocument(job, "segments_transcribed.json", job.SourceOrDetectedLanguage())
	return model.StateSucceeded, nil, nil
}

// writeSegmentDocument snapshots the job's current segment list as the
// portable segment document. Stage handoff rides on job.Segments; the document is a
// durable, tooling-friendly copy, so a write failure only logs.
func (o *Orchestrator) writeSegmentDocument(job *model.Job, name, language string) {
	path := filepath.Join(job.ScratchDir, name)
	doc := model.NewSegmentDocument(language, job.SourceDuration, job.Segments)
	if err := doc.Write(path); err != nil {
		slog.Warn("segment document write failed", "job_id", job.JobID, "path", path, "error", err)
		return
	}
	job.Artifacts.SegmentsJSON = path
}

// runDiarize runs S3 under its best-effort policy: on failure every
// segment gets speaker_id=0, gender=unknown rather than aborting the job.
func (o *Orchestrator) runDiarize(ctx context.Context, job *model.Job) (model.StageState, []string, error) {
	diarized, err := diarize.RunFromFile(job.Segments, job.Artifacts.PreprocessedAudio, o.cfg.DiarizeOpts)
	if err != nil {
		for i := range job.Segments {
			job.Segments[i].SpeakerID = 0
			job.Segments[i].Gender = model.GenderUnknown
			job.Segments[i].Confidence = 0
		}
		job.Segments = diarize.ApplyMode(job.Segments, job.Options.SpeakerMode, job.Options.DefaultGender)
		return model.StateDegraded, []string{fmt.Sprintf("diarization failed, defaulting speaker_id=0: %v", err)}, nil
	}
	job.Segments = diarize.ApplyMode(diarized, job.Options.SpeakerMode, job.Options.DefaultGender)

	if job.Options.SpeakerMode == model.SpeakerSmart {
		cfgPath := filepath.Join(job.ScratchDir, "speaker_config.json")
		speakerCfg := diarize.BuildSpeakerConfig(job.Segments, job.Options.SpeakerMode, job.Options.DefaultGender)
		if err := speakerCfg.Write(cfgPath); err != nil {
			slog.Warn("speaker config write failed", "job_id", job.JobID, "error", err)
		} else {
			job.Artifacts.SpeakerConfig = cfgPath
		}
	}
	return model.StateSucceeded, nil, nil
}

// runTranslate runs S4; fatal after 3 consecutive batch failures,
// but the partial_count and whatever segments did translate are retained.
func (o *Orchestrator) runTranslate(ctx context.Context, job *model.Job) (model.StageState, []string, error) {
	result, err := translate.Run(ctx, job.Segments, job.SourceOrDetectedLanguage(), job.TargetLanguage, o.cfg.TranslatePrimary, o.cfg.TranslateFallback, o.cfg.TranslateOpts)
	job.Segments = result.Segments
	job.Metrics.PartialCount = result.PartialCount
	if err != nil {
		return model.StateFailed, nil, fmt.Errorf("%w: translate: %v", model.ErrStageFailed, err)
	}
	o.writeSegmentDocument(job, "segments_translated.json", job.TargetLanguage)
	return model.StateSucceeded, nil, nil
}

// runSynthesize runs S5, applying the 80%/0% acceptance thresholds via
// synth.Summary.AcceptanceStatus.
func (o *Orchestrator) runSynthesize(ctx context.Context, job *model.Job) (model.StageState, []string, error) {
	ttsDir := filepath.Join(job.ScratchDir, "tts")
	assignment := voices.NewAssignment()
	out, summary, err := synth.Run(ctx, job, job.Segments, assignment, o.cfg.SynthPrimary, o.cfg.SynthFallback, ttsDir, o.cfg.SynthOpts)
	if err != nil {
		return model.StateFailed, nil, fmt.Errorf("%w: synthesize: %v", model.ErrStageFailed, err)
	}
	job.Segments = out
	job.Artifacts.TTSDir = ttsDir
	job.Metrics.SyncGood, job.Metrics.SyncFair, job.Metrics.SyncPoor = summary.Good, summary.Fair, summary.Poor
	metrics.SyncQuality.WithLabelValues("good").Add(float64(summary.Good))
	metrics.SyncQuality.WithLabelValues("fair").Add(float64(summary.Fair))
	metrics.SyncQuality.WithLabelValues("poor").Add(float64(summary.Poor))

	status := summary.AcceptanceStatus()
	var warnings []string
	if status == model.StateDegraded {
		warnings = append(warnings, fmt.Sprintf("%d/%d segments produced audio (<80%%)", summary.Succeeded, summary.Attempted))
	}
	return status, warnings, nil
}

// runAssemble runs S6; fatal if the final concatenation fails, but
// per-segment stretch failures degrade to the unstretched clip internally
// (handled inside internal/assemble) rather than failing here.
func (o *Orchestrator) runAssemble(ctx context.Context, job *model.Job) (model.StageState, []string, error) {
	totalDuration := job.SourceDuration
	if totalDuration <= 0 {
		d, err := o.cfg.Media.ProbeDuration(ctx, job.Artifacts.BackgroundAudio)
		if err != nil {
			return model.StateFailed, nil, fmt.Errorf("%w: probe source duration: %v", model.ErrAssetMissing, err)
		}
		totalDuration = d
	}
	assembledPath := filepath.Join(job.ScratchDir, "assembled.wav")
	result, segs, err := assemble.Run(ctx, o.cfg.Media, job.Segments, totalDuration, job.ScratchDir, assembledPath, o.cfg.AssembleOpts)
	if err != nil {
		return model.StateFailed, nil, fmt.Errorf("%w: assemble: %v", model.ErrStageFailed, err)
	}
	job.Segments = segs
	job.Artifacts.AssembledAudio = result.OutputPath
	var warnings []string
	if result.ClampedStretches > 0 {
		warnings = append(warnings, fmt.Sprintf("%d/%d stretched clips clamped", result.ClampedStretches, result.StretchedClips))
	}
	return model.StateSucceeded, warnings, nil
}

// runMix runs S7; fatal if producing the final track fails.
func (o *Orchestrator) runMix(ctx context.Context, job *model.Job) (model.StageState, []string, error) {
	mixedPath := filepath.Join(job.ScratchDir, "mixed.wav")
	opts := o.cfg.MixOpts
	if job.Options.BackgroundLevel > 0 {
		opts.BackgroundLevel = job.Options.BackgroundLevel
	}
	opts.ReverbEnabled = job.Options.ReverbEnabled
	if job.Options.ReverbAmount > 0 {
		opts.ReverbAmount = job.Options.ReverbAmount
	}
	opts.QuickMix = job.Options.QuickMode

	result, err := mix.Run(ctx, o.cfg.Media, job.Artifacts.BackgroundAudio, job.Artifacts.AssembledAudio, mixedPath, job.ScratchDir, opts)
	if err != nil {
		return model.StateFailed, nil, fmt.Errorf("%w: mix: %v", model.ErrStageFailed, err)
	}
	job.Artifacts.MixedAudio = result.OutputPath
	job.Metrics.OverallLUFS = result.OverallLUFS
	metrics.OverallLUFS.Set(result.OverallLUFS)

	format := string(job.Options.OutputFormat)
	if format == "" {
		format = string(model.FormatAAC)
	}
	encodedPath := filepath.Join(job.ScratchDir, "final."+format)
	var warnings []string
	if format == string(model.FormatMP3) {
		// In-process shine encode skips a subprocess round trip; the ffmpeg
		// primitive stays as the fallback when the mixed WAV can't be decoded.
		if err := encodeMP3Native(result.OutputPath, encodedPath); err == nil {
			job.Artifacts.FinalOutput = encodedPath
			return model.StateSucceeded, warnings, nil
		} else {
			warnings = append(warnings, fmt.Sprintf("native mp3 encode failed, using media primitive: %v", err))
		}
	}
	if err := o.cfg.Media.Encode(ctx, result.OutputPath, encodedPath, format); err != nil {
		return model.StateFailed, warnings, fmt.Errorf("%w: encode final output: %v", model.ErrStageFailed, err)
	}
	job.Artifacts.FinalOutput = encodedPath
	return model.StateSucceeded, warnings, nil
}

// encodeMP3Native decodes the mixed WAV and shine-encodes it in process.
func encodeMP3Native(wavPath, outPath string) error {
	data, err := os.ReadFile(wavPath)
	if err != nil {
		return err
	}
	info, err := audio.DecodeWAV(data)
	if err != nil {
		return err
	}
	return media.EncodeMP3Native(info.Samples, info.SampleRate, info.Channels, outPath)
}

// finalize assembles the job record. Run has already copied the final
// artifact out of the scratch dir before calling it.
func (o *Orchestrator) finalize(job *model.Job) model.Result {
	success := job.Succeeded()
	return model.Result{
		Success:   success,
		Status:    model.StatusString(success),
		JobID:     job.JobID,
		Stages:    job.StageStatus,
		Artifacts: job.Artifacts,
		Metrics:   job.Metrics,
	}
}

// abort builds a failure Result after a fatal stage or context
// cancellation; scratch cleanup still runs via Run's deferred call.
func (o *Orchestrator) abort(job *model.Job, err error) (model.Result, error) {
	result := model.Result{
		Success:   false,
		Status:    model.StatusString(false),
		JobID:     job.JobID,
		Stages:    job.StageStatus,
		Artifacts: job.Artifacts,
		Metrics:   job.Metrics,
	}
	o.endJob(job.JobID, result)
	return result, err
}

func (o *Orchestrator) startJob(jobID string) {
	if o.cfg.Recorder != nil {
		o.cfg.Recorder.StartJob(jobID)
	}
}

func (o *Orchestrator) recordStage(job *model.Job, stage model.StageResult) {
	slog.Info("stage complete", "job_id", job.JobID, "stage", stage.Name, "status", stage.Status, "duration_ms", stage.DurationMs)
	if o.cfg.Recorder != nil {
		o.cfg.Recorder.RecordStage(job.JobID, stage)
	}
}

func (o *Orchestrator) endJob(jobID string, result model.Result) {
	if o.cfg.Recorder != nil {
		o.cfg.Recorder.EndJob(jobID, result)
	}
}
