package voices

import (
	"testing"

	"github.com/voicebridge/dubline/internal/model"
)

func newTestJob() *model.Job {
	return model.NewJob("job-1", "src.mp4", "fr", model.DefaultOptions(), "/tmp/scratch")
}

// TestAssign_StablePerSpeaker checks that the same (speaker_id, language)
// pair always resolves to the same voice across many calls.
func TestAssign_StablePerSpeaker(t *testing.T) {
	job := newTestJob()
	a := NewAssignment()

	first := Assign(job, a, 2, "fr", model.GenderMale, PreferredStyle(StyleMovieDialogue))
	for i := 0; i < 12; i++ {
		got := Assign(job, a, 2, "fr", model.GenderMale, PreferredStyle(StyleMovieDialogue))
		if got != first {
			t.Fatalf("call %d: voice drifted: got %q want %q", i, got, first)
		}
	}
}

// TestAssign_DistinctSpeakersGetDistinctVoices covers the uniqueness half
// of the stability property: three speakers of the same gender in the same
// language each land on a different catalog voice as long as the catalog
// has enough entries.
func TestAssign_DistinctSpeakersGetDistinctVoices(t *testing.T) {
	job := newTestJob()
	a := NewAssignment()

	v0 := Assign(job, a, 0, "fr", model.GenderMale, "")
	v1 := Assign(job, a, 1, "fr", model.GenderMale, "")
	v2 := Assign(job, a, 2, "fr", model.GenderMale, "")

	seen := map[string]bool{v0: true}
	if seen[v1] {
		t.Fatalf("speaker 1 reused speaker 0's voice %q", v1)
	}
	seen[v1] = true
	if seen[v2] {
		t.Fatalf("speaker 2 reused an earlier voice %q", v2)
	}
}

// TestAssign_FallsBackWhenGenderExhausted exercises the "all used" branch:
// once every male fr voice is claimed, a new male speaker still
// gets a voice rather than an empty string.
func TestAssign_FallsBackWhenGenderExhausted(t *testing.T) {
	job := newTestJob()
	a := NewAssignment()

	n := len(VoicesFor("fr", "male"))
	for i := 0; i < n; i++ {
		if got := Assign(job, a, i, "fr", model.GenderMale, ""); got == "" {
			t.Fatalf("speaker %d: expected a voice, got empty", i)
		}
	}
	overflow := Assign(job, a, n, "fr", model.GenderMale, "")
	if overflow == "" {
		t.Fatal("expected a fallback voice once the gender pool is exhausted, got empty")
	}
}

// TestAssign_RegionalVariantFallsBackToBaseLanguage exercises VoicesFor's
// base-language fallback through Assign for a regional code the catalog
// does not carry directly.
func TestAssign_RegionalVariantFallsBackToBaseLanguage(t *testing.T) {
	job := newTestJob()
	a := NewAssignment()

	got := Assign(job, a, 0, "es-AR", model.GenderFemale, "")
	if got == "" {
		t.Fatal("expected es-AR to fall back to es's catalog, got empty")
	}
}
