package model

import "time"

// StageName identifies one of the seven pipeline stages plus the
// orchestrator's own bookkeeping, in the order they run.
type StageName string

const (
	StagePreprocess  StageName = "preprocess"
	StageTranscribe  StageName = "transcribe"
	StageDiarize     StageName = "diarize"
	StageTranslate   StageName = "translate"
	StageSynthesize  StageName = "synthesize"
	StageAssemble    StageName = "assemble"
	StageMix         StageName = "mix"
)

// Stages is the fixed execution order of the seven pipeline stages.
var Stages = []StageName{
	StagePreprocess, StageTranscribe, StageDiarize, StageTranslate,
	StageSynthesize, StageAssemble, StageMix,
}

// StageState is where a stage currently sits in its lifecycle.
type StageState string

const (
	StatePending   StageState = "pending"
	StateRunning   StageState = "running"
	StateSucceeded StageState = "succeeded"
	StateDegraded  StageState = "degraded"
	StateFailed    StageState = "failed"
)

// StageResult is one row of the job record's stages[] array.
type StageResult struct {
	Name       StageName  `json:"name"`
	Status     StageState `json:"status"`
	DurationMs float64    `json:"duration_ms"`
	Error      string     `json:"error,omitempty"`
	ErrorKind  string     `json:"error_kind,omitempty"`
	Warnings   []string   `json:"warnings,omitempty"`
}

// OutputFormat is the requested container/codec for the final mixed track.
type OutputFormat string

const (
	FormatAAC OutputFormat = "aac"
	FormatMP3 OutputFormat = "mp3"
)

// SpeakerMode controls how S3/S5 resolve per-segment speaker identity.
type SpeakerMode string

const (
	SpeakerSingle      SpeakerMode = "single"
	SpeakerAlternating SpeakerMode = "alternating"
	SpeakerMulti       SpeakerMode = "multi"
	SpeakerSmart       SpeakerMode = "smart"
)

// Options are the user-facing knobs, bound once at job submission.
type Options struct {
	ApplyNoiseReduction bool
	ApplyHighpass       bool
	ApplyNormalization  bool
	OutputFormat        OutputFormat
	QuickMode           bool
	SpeakerMode         SpeakerMode
	DefaultGender       Gender
	BackgroundLevel     float64 // 0 means "use default 15-18% linear gain"
	ReverbEnabled       bool
	ReverbAmount        float64 // 0 means "use DefaultReverbAmount"
}

// DefaultOptions mirrors the pipeline's conservative defaults: every
// optional S1 sub-step enabled, smart speaker assignment, AAC output.
func DefaultOptions() Options {
	return Options{
		ApplyNoiseReduction: true,
		ApplyHighpass:       true,
		ApplyNormalization:  true,
		OutputFormat:        FormatAAC,
		SpeakerMode:         SpeakerSmart,
		DefaultGender:       GenderFemale,
	}
}

// Artifacts are the scratch-relative paths produced by each stage. Stage
// N+1 reads only from this struct, never reaching back into stage N's
// internals.
type Artifacts struct {
	PreprocessedAudio string `json:"preprocessed_audio,omitempty"` // S1: 16kHz mono, for transcription
	BackgroundAudio   string `json:"background_audio,omitempty"`   // S1: 48kHz stereo, untouched extract for S7
	SegmentsJSON      string `json:"segments_json,omitempty"`      // latest portable segment document
	SpeakerConfig     string `json:"speaker_config,omitempty"`     // S3: speaker roster + per-segment assignments
	TTSDir            string `json:"tts_dir,omitempty"`            // S5: per-segment rendered clips
	AssembledAudio    string `json:"assembled_audio,omitempty"`    // S6: continuous track, source duration
	MixedAudio        string `json:"mixed_audio,omitempty"`        // S7: final mixed track, pre-mux
	FinalOutput       string `json:"final_output_path,omitempty"`  // final artifact path handed back to the caller
}

// Metrics is the rollup reported in the job record: sync-quality
// tallies computed once in internal/synth and reused here and by
// internal/metrics' Prometheus counters.
type Metrics struct {
	SyncGood     int     `json:"sync_good"`
	SyncFair     int     `json:"sync_fair"`
	SyncPoor     int     `json:"sync_poor"`
	OverallLUFS  float64 `json:"overall_lufs"`
	PartialCount int     `json:"partial_count,omitempty"` // segments translated before a fatal translate abort
}

// Job is the single shared context threaded through every stage.
type Job struct {
	JobID            string
	SourcePath       string
	TargetLanguage   string
	SourceLanguage   string // empty means "detect in S2"
	Options          Options
	ScratchDir       string
	CreatedAt        time.Time

	StageStatus []StageResult
	Segments    []Segment
	Artifacts   Artifacts
	Metrics     Metrics

	// Voices caches the per-job (speaker_id, language) -> voice_id mapping;
	// see VoiceAssignment and internal/voices.Assign.
	Voices map[VoiceKey]string

	// DetectedLanguage/DetectedLanguageProb are set by S2 when SourceLanguage
	// was left empty at submission.
	DetectedLanguage     string
	DetectedLanguageProb float64

	// SourceDuration is the probed duration of the extracted source audio,
	// set by S1 and reused by S6's timeline assembly and the segment
	// documents' total_duration field.
	SourceDuration float64
}

// VoiceKey identifies a stable voice assignment scope: one speaker, one
// target language.
type VoiceKey struct {
	SpeakerID int
	Language  string
}

// NewJob creates a Job in its initial pending state, one StageResult per
// stage in execution order.
func NewJob(jobID, sourcePath, targetLanguage string, opts Options, scratchDir string) *Job {
	stages := make([]StageResult, len(Stages))
	for i, name := range Stages {
		stages[i] = StageResult{Name: name, Status: StatePending}
	}
	return &Job{
		JobID:          jobID,
		SourcePath:     sourcePath,
		TargetLanguage: targetLanguage,
		Options:        opts,
		ScratchDir:     scratchDir,
		CreatedAt:      time.Now(),
		StageStatus:    stages,
		Voices:         make(map[VoiceKey]string),
	}
}

// SourceOrDetectedLanguage returns the submitted source language, or the
// S2-detected one when submission left it empty.
func (j *Job) SourceOrDetectedLanguage() string {
	if j.SourceLanguage != "" {
		return j.SourceLanguage
	}
	return j.DetectedLanguage
}

// StageResultFor returns a pointer into StageStatus for the named stage, so
// callers can update it in place.
func (j *Job) StageResultFor(name StageName) *StageResult {
	for i := range j.StageStatus {
		if j.StageStatus[i].Name == name {
			return &j.StageStatus[i]
		}
	}
	return nil
}

// Succeeded reports whether every stage landed in {succeeded, degraded} and
// none is still pending/running/failed.
func (j *Job) Succeeded() bool {
	for _, s := range j.StageStatus {
		if s.Status != StateSucceeded && s.Status != StateDegraded {
			return false
		}
	}
	return true
}

// Result is the Orchestrator's public contract: Run(Job) -> Result.
type Result struct {
	Success   bool          `json:"success"`
	Status    string        `json:"status"` // "succeeded" | "failed"
	JobID     string        `json:"job_id"`
	Stages    []StageResult `json:"stages"`
	Artifacts Artifacts     `json:"artifacts"`
	Metrics   Metrics       `json:"metrics"`
}

// StatusString renders the terminal job status for the record.
func StatusString(success bool) string {
	if success {
		return "succeeded"
	}
	return "failed"
}
