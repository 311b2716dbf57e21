package diarize

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/voicebridge/dubline/internal/model"
)

// SpeakerInfo is one distinct speaker in the speaker config document.
type SpeakerInfo struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Gender string `json:"gender"`
}

// SegmentAssignment maps one segment to its resolved speaker.
type SegmentAssignment struct {
	SegmentID int    `json:"segment_id"`
	SpeakerID int    `json:"speaker_id"`
	Gender    string `json:"gender"`
}

// SpeakerConfig is the JSON document S3 hands to S5 when speaker_mode is
// smart: the diarized speaker roster plus per-segment assignments.
type SpeakerConfig struct {
	Mode               string              `json:"mode"`
	DefaultGender      string              `json:"defaultGender"`
	Speakers           []SpeakerInfo       `json:"speakers"`
	SegmentAssignments []SegmentAssignment `json:"segment_assignments"`
}

// ApplyMode post-processes diarized segments according to the job's
// speaker_mode option:
//
//   - single: every segment collapses to speaker 0 with the default gender.
//   - alternating: speaker ids toggle 0/1 at each diarized speaker-change
//     boundary; speaker 0 carries the default gender, speaker 1 the other.
//   - multi, smart: the diarized speaker ids and genders stand; segments
//     whose gender stayed unknown fall back to the default gender so voice
//     assignment always has a gender to match against.
func ApplyMode(segs []model.Segment, mode model.SpeakerMode, defaultGender model.Gender) []model.Segment {
	if defaultGender != model.GenderMale && defaultGender != model.GenderFemale {
		defaultGender = model.GenderFemale
	}
	out := make([]model.Segment, len(segs))
	copy(out, segs)

	switch mode {
	case model.SpeakerSingle:
		for i := range out {
			out[i].SpeakerID = 0
			out[i].Gender = defaultGender
		}
	case model.SpeakerAlternating:
		toggled := 0
		for i := range out {
			if i > 0 && segs[i].SpeakerID != segs[i-1].SpeakerID {
				toggled = 1 - toggled
			}
			out[i].SpeakerID = toggled
			if toggled == 0 {
				out[i].Gender = defaultGender
			} else {
				out[i].Gender = otherGender(defaultGender)
			}
		}
	default: // multi, smart
		for i := range out {
			if out[i].Gender == model.GenderUnknown || out[i].Gender == "" {
				out[i].Gender = defaultGender
			}
		}
	}
	return out
}

func otherGender(g model.Gender) model.Gender {
	if g == model.GenderMale {
		return model.GenderFemale
	}
	return model.GenderMale
}

// BuildSpeakerConfig derives the speaker config document from a segment
// list that has already been through ApplyMode.
func BuildSpeakerConfig(segs []model.Segment, mode model.SpeakerMode, defaultGender model.Gender) SpeakerConfig {
	cfg := SpeakerConfig{
		Mode:               string(mode),
		DefaultGender:      string(defaultGender),
		SegmentAssignments: make([]SegmentAssignment, 0, len(segs)),
	}

	genders := map[int]string{}
	for _, s := range segs {
		if _, ok := genders[s.SpeakerID]; !ok {
			genders[s.SpeakerID] = string(s.Gender)
		}
		cfg.SegmentAssignments = append(cfg.SegmentAssignments, SegmentAssignment{
			SegmentID: s.ID,
			SpeakerID: s.SpeakerID,
			Gender:    string(s.Gender),
		})
	}

	ids := make([]int, 0, len(genders))
	for id := range genders {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		cfg.Speakers = append(cfg.Speakers, SpeakerInfo{
			ID:     id,
			Name:   fmt.Sprintf("Speaker %d", id+1),
			Gender: genders[id],
		})
	}
	return cfg
}

// Write persists the speaker config as indented JSON.
func (c SpeakerConfig) Write(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal speaker config: %v", model.ErrAssetMissing, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSpeakerConfig loads a document previously written by Write.
func ReadSpeakerConfig(path string) (SpeakerConfig, error) {
	var c SpeakerConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("%w: read speaker config: %v", model.ErrAssetMissing, err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%w: parse speaker config: %v", model.ErrAssetMissing, err)
	}
	return c, nil
}
