// Package config loads the pipeline's environment-variable layer:
// deployment-shaped values (URLs, credentials, pool sizes, feature
// toggles) come from the environment; see tuning.go for the companion
// JSON numeric-tunable layer.
package config

import (
	"os"
	"strconv"
)

// Config holds the environment-sourced settings for a dubline process.
type Config struct {
	ScratchRoot string // base directory under which each job gets its own scratch dir

	HTTPPoolSize int

	AWSRegion string

	OpenAITranslateModel string
	OpenAIAPIKey          string

	PollyVoiceEngine string // "neural" or "standard"

	SherpaASRModelDir string
	SherpaTTSModelDir string

	MetricsAddr  string
	ProgressAddr string

	ConcurrencyW int // default bounded concurrency for S5/S6 segment work

	// ASREngine/TranslateEngine/TTSEngine name which registered backend
	// internal/provider.Router should prefer as primary for each stage;
	// the other registered backend becomes the orchestrator's fallback.
	ASREngine       string
	TranslateEngine string
	TTSEngine       string
}

// Load reads process environment variables, falling back to conservative
// defaults when a variable is unset or malformed.
func Load() Config {
	return Config{
		ScratchRoot:           envStr("DUBLINE_SCRATCH_ROOT", os.TempDir()),
		HTTPPoolSize:          envInt("DUBLINE_HTTP_POOL_SIZE", 20),
		AWSRegion:             envStr("AWS_REGION", "us-east-1"),
		OpenAITranslateModel:  envStr("OPENAI_TRANSLATE_MODEL", "gpt-4.1-mini"),
		OpenAIAPIKey:          envStr("OPENAI_API_KEY", ""),
		PollyVoiceEngine:      envStr("POLLY_VOICE_ENGINE", "neural"),
		SherpaASRModelDir:     envStr("SHERPA_ASR_MODEL_DIR", "/opt/models/asr"),
		SherpaTTSModelDir:     envStr("SHERPA_TTS_MODEL_DIR", "/opt/models/tts"),
		MetricsAddr:           envStr("DUBLINE_METRICS_ADDR", ":9090"),
		ProgressAddr:          envStr("DUBLINE_PROGRESS_ADDR", ":8090"),
		ConcurrencyW:          envInt("DUBLINE_CONCURRENCY_W", 4),
		ASREngine:             envStr("DUBLINE_ASR_ENGINE", "local"),
		TranslateEngine:       envStr("DUBLINE_TRANSLATE_ENGINE", "openai"),
		TTSEngine:             envStr("DUBLINE_TTS_ENGINE", "local"),
	}
}

func envStr(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}
