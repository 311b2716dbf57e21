// Command dubline runs one end-to-end dubbing job: extract, transcribe,
// diarize, translate, synthesize, assemble, and mix a source media file
// into a target-language track. Deployment-shaped settings come from the
// environment (internal/config.Load), numeric tunables from an optional
// JSON file (internal/config.LoadTuning).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicebridge/dubline/internal/assemble"
	"github.com/voicebridge/dubline/internal/audio"
	"github.com/voicebridge/dubline/internal/config"
	"github.com/voicebridge/dubline/internal/diarize"
	"github.com/voicebridge/dubline/internal/httpx"
	"github.com/voicebridge/dubline/internal/jobstore"
	"github.com/voicebridge/dubline/internal/media"
	"github.com/voicebridge/dubline/internal/mediatool"
	"github.com/voicebridge/dubline/internal/mix"
	"github.com/voicebridge/dubline/internal/model"
	"github.com/voicebridge/dubline/internal/orchestrator"
	"github.com/voicebridge/dubline/internal/progress"
	"github.com/voicebridge/dubline/internal/provider"
	"github.com/voicebridge/dubline/internal/synth"
	"github.com/voicebridge/dubline/internal/transcribe"
	"github.com/voicebridge/dubline/internal/translate"
	"github.com/voicebridge/dubline/internal/voices"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	sourcePath := flag.String("source", "", "path to the source media file")
	outputPath := flag.String("output", "", "path to write the final mixed track")
	targetLanguage := flag.String("target-language", "", "target language code, e.g. es or es-MX")
	sourceLanguage := flag.String("source-language", "", "source language code; empty detects in S2")
	tuningPath := flag.String("tuning", "dubline.json", "path to the numeric tuning file")
	quickMode := flag.Bool("quick", false, "skip optional analysis passes for a faster, lower-fidelity mix")
	outputFormat := flag.String("format", "aac", "output container/codec: aac or mp3")
	speakerMode := flag.String("speaker-mode", "smart", "speaker resolution: single, alternating, multi, or smart")
	defaultGender := flag.String("default-gender", "female", "voice gender when diarization is inconclusive: male or female")
	backgroundLevel := flag.Float64("background-level", 0, "linear background gain override, 0 uses the default ducking")
	reverb := flag.Bool("reverb", false, "apply subtle room tone to the dubbed track before mixing")
	flag.Parse()

	if *sourcePath == "" || *outputPath == "" || *targetLanguage == "" {
		fmt.Fprintln(os.Stderr, "usage: dubline -source FILE -output FILE -target-language CODE")
		os.Exit(1)
	}

	t := config.LoadTuning(*tuningPath)
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go awaitShutdown(cancel)

	recorder, closeRecorder := buildRecorder(ctx, cfg)
	defer closeRecorder()

	go serveMetricsAndProgress(cfg)

	orc := buildOrchestrator(ctx, cfg, t, recorder)

	if !voices.HasLanguage(*targetLanguage) {
		emitFailure("", nil, fmt.Errorf("%w: no voice catalog for target language %q", model.ErrConfig, *targetLanguage))
		os.Exit(1)
	}

	opts := model.DefaultOptions()
	opts.QuickMode = *quickMode
	opts.OutputFormat = model.OutputFormat(*outputFormat)
	opts.SpeakerMode = model.SpeakerMode(*speakerMode)
	opts.DefaultGender = model.Gender(*defaultGender)
	opts.BackgroundLevel = *backgroundLevel
	opts.ReverbEnabled = *reverb

	jobID := uuid.NewString()
	scratchDir := filepath.Join(cfg.ScratchRoot, "dubline-"+jobID)
	job := model.NewJob(jobID, *sourcePath, *targetLanguage, opts, scratchDir)
	job.SourceLanguage = *sourceLanguage

	result, err := orc.Run(ctx, job, *outputPath)
	if err != nil {
		emitFailure(jobID, result.Stages, err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	if !result.Success {
		os.Exit(1)
	}
}

// emitFailure writes the JSON failure payload to stdout: error kind,
// the stage that failed, and a human-readable message.
func emitFailure(jobID string, stages []model.StageResult, err error) {
	stageName := ""
	for _, s := range stages {
		if s.Status == model.StateFailed {
			stageName = string(s.Name)
			break
		}
	}
	payload := struct {
		JobID   string `json:"job_id"`
		Kind    string `json:"error_kind"`
		Stage   string `json:"stage,omitempty"`
		Message string `json:"error"`
	}{
		JobID:   jobID,
		Kind:    model.Kind(err).Error(),
		Stage:   stageName,
		Message: err.Error(),
	}
	_ = json.NewEncoder(os.Stdout).Encode(payload)
}

func awaitShutdown(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)
	cancel()
}

// buildRecorder wires internal/jobstore's async Tracer (if POSTGRES_URL is
// set) and internal/progress's WebSocket Broadcaster into one fanout
// orchestrator.Recorder, so a job emits to both with a single call site.
func buildRecorder(ctx context.Context, cfg config.Config) (orchestrator.Recorder, func()) {
	broadcaster := progress.NewBroadcaster()

	postgresURL := os.Getenv("POSTGRES_URL")
	var tracer *jobstore.Tracer
	if postgresURL != "" {
		store, err := jobstore.Open(postgresURL)
		if err != nil {
			slog.Error("jobstore open failed, continuing without persistence", "error", err)
		} else {
			tracer = jobstore.NewTracer(store)
			slog.Info("job persistence enabled", "postgres", postgresURL)
		}
	}

	recorder := fanoutRecorder{tracer: tracer, broadcaster: broadcaster}
	progressHandler = progress.NewHandler(broadcaster)

	return recorder, func() {
		if tracer != nil {
			tracer.Close()
		}
	}
}

// progressHandler is set by buildRecorder before serveMetricsAndProgress
// starts listening; both run for the single job this process drives.
var progressHandler http.Handler

// fanoutRecorder composes jobstore.Tracer (nil-safe) and progress.Broadcaster
// into one orchestrator.Recorder.
type fanoutRecorder struct {
	tracer      *jobstore.Tracer
	broadcaster *progress.Broadcaster
}

func (f fanoutRecorder) StartJob(jobID string) {
	f.tracer.StartJob(jobID)
	f.broadcaster.StartJob(jobID)
}

func (f fanoutRecorder) RecordStage(jobID string, stage model.StageResult) {
	f.tracer.RecordStage(jobID, stage)
	f.broadcaster.RecordStage(jobID, stage)
}

func (f fanoutRecorder) EndJob(jobID string, result model.Result) {
	f.tracer.EndJob(jobID, result)
	f.broadcaster.EndJob(jobID, result)
}

// serveMetricsAndProgress runs the Prometheus scrape endpoint and the
// progress WebSocket endpoint for the lifetime of this job's process.
func serveMetricsAndProgress(cfg config.Config) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/progress", progressHandler)
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Warn("metrics/progress server stopped", "error", err)
	}
}

// buildOrchestrator wires every stage's concrete providers from cfg/t.
func buildOrchestrator(ctx context.Context, cfg config.Config, t config.Tuning, recorder orchestrator.Recorder) *orchestrator.Orchestrator {
	registry := mediatool.NewRegistry(map[string]mediatool.ToolMeta{
		"ffmpeg":  {BinaryPath: "ffmpeg", VersionArg: "-version"},
		"ffprobe": {BinaryPath: "ffprobe", VersionArg: "-version"},
	})
	mediaPrim := media.NewFFmpeg(registry)

	awsCfg, awsErr := config.LoadAWS(ctx, cfg.AWSRegion, "", "")
	if awsErr != nil {
		slog.Warn("aws config unavailable, cloud fallback providers disabled", "error", awsErr)
	}

	transcribePrimary, transcribeFallback := buildTranscribeProviders(cfg, awsCfg, awsErr)
	translatePrimary, translateFallback := buildTranslateProviders(cfg, awsCfg, awsErr)
	synthPrimary, synthFallback := buildSynthProviders(cfg, awsCfg, awsErr, t)

	return orchestrator.New(orchestrator.Config{
		Media:              mediaPrim,
		TranscribePrimary:  transcribePrimary,
		TranscribeFallback: transcribeFallback,
		TranslatePrimary:   translatePrimary,
		TranslateFallback:  translateFallback,
		SynthPrimary:       synthPrimary,
		SynthFallback:      synthFallback,
		TranscribeOpts:     transcribe.DefaultOptions(),
		DiarizeOpts:        diarize.Options{PropagationMultiplier: t.DiarizationPropagationMultiplier},
		TranslateOpts:      translateOptsFromTuning(t),
		SynthOpts:          synthOptsFromTuning(t, cfg),
		AssembleOpts:       assembleOptsFromTuning(t, cfg),
		MixOpts:            mixOptsFromTuning(t),
		Recorder:           recorder,
	})
}

// pickEngines routes to the preferred backend by name via internal/provider's
// named-engine Router and returns whichever other registered backend
// remains as the orchestrator's fallback. Only ever two candidate names
// are registered per stage, so "the other one" is unambiguous.
func pickEngines[T any](backends map[string]T, preferred, nameA, nameB string) (T, T) {
	other := nameB
	if preferred == nameB {
		other = nameA
	}
	router := provider.NewRouter(backends, other)
	var zero T
	primary, err := router.Route(preferred)
	if err != nil {
		return zero, zero
	}
	if router.Has(preferred) {
		if fb, ok := backends[other]; ok {
			return primary, fb
		}
		return primary, zero
	}
	// preferred engine unregistered; Route already fell back to other.
	return primary, zero
}

// buildTranscribeProviders registers the in-process sherpa-onnx model under
// "local" and AWS Transcribe under "aws", then routes to cfg.ASREngine.
func buildTranscribeProviders(cfg config.Config, awsCfg aws.Config, awsErr error) (transcribe.Provider, transcribe.Provider) {
	backends := map[string]transcribe.Provider{}
	if cfg.SherpaASRModelDir != "" {
		if l, err := transcribe.NewLocal(cfg.SherpaASRModelDir, audio.DefaultVADConfig()); err != nil {
			slog.Warn("local ASR model unavailable", "error", err)
		} else {
			backends["local"] = l
		}
	}
	if awsErr == nil {
		backends["aws"] = transcribe.NewAWSTranscribe(awsCfg)
	}
	return pickEngines(backends, cfg.ASREngine, "local", "aws")
}

// buildTranslateProviders registers OpenAI under "openai" and AWS Translate
// under "aws", then routes to cfg.TranslateEngine.
func buildTranslateProviders(cfg config.Config, awsCfg aws.Config, awsErr error) (translate.Provider, translate.Provider) {
	backends := map[string]translate.Provider{}
	if cfg.OpenAIAPIKey != "" {
		httpClient := httpx.NewPooledHTTPClient(cfg.HTTPPoolSize, 60*time.Second)
		backends["openai"] = translate.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAITranslateModel, httpClient)
	}
	if awsErr == nil {
		backends["aws"] = translate.NewAWSTranslate(awsCfg)
	}
	return pickEngines(backends, cfg.TranslateEngine, "openai", "aws")
}

// buildSynthProviders registers the in-process sherpa-onnx voice models
// under "local" and Polly under "aws", then routes to cfg.TTSEngine.
func buildSynthProviders(cfg config.Config, awsCfg aws.Config, awsErr error, t config.Tuning) (synth.Provider, synth.Provider) {
	backends := map[string]synth.Provider{}
	if cfg.SherpaTTSModelDir != "" {
		if l, err := synth.NewLocal(cfg.SherpaTTSModelDir, t.SherpaVoiceSpeakerIDs); err != nil {
			slog.Warn("local TTS model unavailable", "error", err)
		} else {
			backends["local"] = l
		}
	}
	if awsErr == nil {
		backends["aws"] = synth.NewPolly(awsCfg, cfg.PollyVoiceEngine)
	}
	return pickEngines(backends, cfg.TTSEngine, "local", "aws")
}

func translateOptsFromTuning(t config.Tuning) translate.Options {
	opts := translate.DefaultOptions()
	opts.BatchSize = t.TranslateBatchSize
	opts.InterBatchDelay = time.Duration(t.TranslateInterBatchDelayS * float64(time.Second))
	return opts
}

func synthOptsFromTuning(t config.Tuning, cfg config.Config) synth.Options {
	opts := synth.DefaultOptions()
	opts.ConcurrencyW = cfg.ConcurrencyW
	opts.FallbackAfterN = t.SynthFallbackAfterN
	opts.GoodThresholdSec = t.SyncGoodThresholdS
	opts.FairThresholdSec = t.SyncFairThresholdS
	return opts
}

func assembleOptsFromTuning(t config.Tuning, cfg config.Config) assemble.Options {
	opts := assemble.DefaultOptions()
	opts.ConcurrencyW = cfg.ConcurrencyW
	opts.PreferredLow = t.StretchClampPreferredLow
	opts.PreferredHigh = t.StretchClampPreferredHigh
	opts.FallbackLow = t.StretchClampFallbackLow
	opts.FallbackHigh = t.StretchClampFallbackHigh
	return opts
}

func mixOptsFromTuning(t config.Tuning) mix.Options {
	opts := mix.DefaultOptions()
	opts.TargetDubbedLUFS = t.DubbedTargetLUFS
	opts.TargetLUFS = t.MixTargetLUFS
	opts.TargetTruePeakDB = t.MixTruePeakDB
	opts.TargetLRA = t.MixLRA
	opts.MaxReverbAmount = t.MaxReverbAmount
	opts.ReverbAmount = t.DefaultReverbAmount
	return opts
}
