package media

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/voicebridge/dubline/internal/audio"
)

// TestSilence_Deterministic covers the byte-identical silence-region
// round-trip property: silence is a pure function of (duration, rate,
// channels), so two writes of the same spec produce identical files.
func TestSilence_Deterministic(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.wav")
	b := filepath.Join(dir, "b.wav")

	if err := WriteSilenceWAV(a, 1.25, 48000, 2); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := WriteSilenceWAV(b, 1.25, 48000, 2); err != nil {
		t.Fatalf("write b: %v", err)
	}

	dataA, _ := os.ReadFile(a)
	dataB, _ := os.ReadFile(b)
	if !bytes.Equal(dataA, dataB) {
		t.Fatal("expected byte-identical silence files for the same spec")
	}
}

func TestSilence_DurationAndContent(t *testing.T) {
	samples := Silence(2.0, 16000, 1)
	if len(samples) != 32000 {
		t.Fatalf("got %d samples, want 32000", len(samples))
	}
	for i, s := range samples {
		if s != 0 {
			t.Fatalf("sample %d = %v, want 0", i, s)
		}
	}
	if Silence(0, 16000, 1) != nil {
		t.Error("zero duration should produce no samples")
	}
	if Silence(-1, 16000, 1) != nil {
		t.Error("negative duration should produce no samples")
	}
}

func TestWriteSilenceWAV_Decodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.wav")
	if err := WriteSilenceWAV(path, 0.5, 48000, 2); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	info, err := audio.DecodeWAV(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.SampleRate != 48000 || info.Channels != 2 {
		t.Fatalf("format = %d/%d, want 48000/2", info.SampleRate, info.Channels)
	}
	if d := info.DurationSeconds(); d < 0.499 || d > 0.501 {
		t.Fatalf("duration = %v, want 0.5", d)
	}
}

func TestIsVideo(t *testing.T) {
	cases := map[string]bool{
		"movie.mp4":  true,
		"clip.MKV":   true,
		"show.webm":  true,
		"track.wav":  false,
		"track.mp3":  false,
		"noext":      false,
	}
	for path, want := range cases {
		if got := isVideo(path); got != want {
			t.Errorf("isVideo(%q) = %v, want %v", path, got, want)
		}
	}
}
