package diarize

import (
	"path/filepath"
	"testing"

	"github.com/voicebridge/dubline/internal/model"
)

func diarizedFixture() []model.Segment {
	return []model.Segment{
		{ID: 0, Start: 0, End: 1, SpeakerID: 0, Gender: model.GenderMale, Confidence: 0.9},
		{ID: 1, Start: 2, End: 3, SpeakerID: 0, Gender: model.GenderMale, Confidence: 0.9},
		{ID: 2, Start: 4, End: 5, SpeakerID: 1, Gender: model.GenderFemale, Confidence: 0.8},
		{ID: 3, Start: 6, End: 7, SpeakerID: 2, Gender: model.GenderUnknown, Confidence: 0},
	}
}

func TestApplyMode_Single(t *testing.T) {
	out := ApplyMode(diarizedFixture(), model.SpeakerSingle, model.GenderMale)
	for i, s := range out {
		if s.SpeakerID != 0 {
			t.Errorf("segment %d speaker = %d, want 0", i, s.SpeakerID)
		}
		if s.Gender != model.GenderMale {
			t.Errorf("segment %d gender = %s, want male", i, s.Gender)
		}
	}
}

func TestApplyMode_Alternating(t *testing.T) {
	out := ApplyMode(diarizedFixture(), model.SpeakerAlternating, model.GenderFemale)

	wantSpeakers := []int{0, 0, 1, 0}
	wantGenders := []model.Gender{model.GenderFemale, model.GenderFemale, model.GenderMale, model.GenderFemale}
	for i, s := range out {
		if s.SpeakerID != wantSpeakers[i] {
			t.Errorf("segment %d speaker = %d, want %d", i, s.SpeakerID, wantSpeakers[i])
		}
		if s.Gender != wantGenders[i] {
			t.Errorf("segment %d gender = %s, want %s", i, s.Gender, wantGenders[i])
		}
	}
}

func TestApplyMode_SmartFillsUnknownGender(t *testing.T) {
	out := ApplyMode(diarizedFixture(), model.SpeakerSmart, model.GenderMale)

	if out[0].SpeakerID != 0 || out[2].SpeakerID != 1 || out[3].SpeakerID != 2 {
		t.Errorf("smart mode must keep diarized speaker ids, got %d/%d/%d", out[0].SpeakerID, out[2].SpeakerID, out[3].SpeakerID)
	}
	if out[0].Gender != model.GenderMale || out[2].Gender != model.GenderFemale {
		t.Error("smart mode must keep diarized genders")
	}
	if out[3].Gender != model.GenderMale {
		t.Errorf("unknown gender should fall back to the default, got %s", out[3].Gender)
	}
}

func TestBuildSpeakerConfig(t *testing.T) {
	segs := ApplyMode(diarizedFixture(), model.SpeakerSmart, model.GenderFemale)
	cfg := BuildSpeakerConfig(segs, model.SpeakerSmart, model.GenderFemale)

	if cfg.Mode != "smart" || cfg.DefaultGender != "female" {
		t.Errorf("header = (%s, %s), want (smart, female)", cfg.Mode, cfg.DefaultGender)
	}
	if len(cfg.Speakers) != 3 {
		t.Fatalf("got %d speakers, want 3", len(cfg.Speakers))
	}
	for i, sp := range cfg.Speakers {
		if sp.ID != i {
			t.Errorf("speakers must be sorted by id, got %d at position %d", sp.ID, i)
		}
	}
	if cfg.Speakers[0].Gender != "male" || cfg.Speakers[1].Gender != "female" {
		t.Errorf("speaker genders = %s/%s, want male/female", cfg.Speakers[0].Gender, cfg.Speakers[1].Gender)
	}
	if len(cfg.SegmentAssignments) != 4 {
		t.Fatalf("got %d assignments, want 4", len(cfg.SegmentAssignments))
	}
	if cfg.SegmentAssignments[2].SegmentID != 2 || cfg.SegmentAssignments[2].SpeakerID != 1 {
		t.Errorf("assignment 2 = %+v, want segment 2 -> speaker 1", cfg.SegmentAssignments[2])
	}
}

func TestSpeakerConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "speaker_config.json")
	segs := ApplyMode(diarizedFixture(), model.SpeakerSmart, model.GenderFemale)
	in := BuildSpeakerConfig(segs, model.SpeakerSmart, model.GenderFemale)
	if err := in.Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out, err := ReadSpeakerConfig(path)
	if err != nil {
		t.Fatalf("ReadSpeakerConfig: %v", err)
	}
	if len(out.Speakers) != len(in.Speakers) || len(out.SegmentAssignments) != len(in.SegmentAssignments) {
		t.Fatalf("round trip lost entries: %d/%d speakers, %d/%d assignments",
			len(out.Speakers), len(in.Speakers), len(out.SegmentAssignments), len(in.SegmentAssignments))
	}
	if out.Speakers[1].Name != "Speaker 2" {
		t.Errorf("speaker 1 name = %q, want %q", out.Speakers[1].Name, "Speaker 2")
	}
}
