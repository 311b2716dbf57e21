package voices

import "github.com/voicebridge/dubline/internal/model"

// Assignment is the cache backing the per-job (speaker_id, language) ->
// voice_id mapping: chosen at first use, then stable for the job's
// lifetime so a character keeps one voice across segments.
type Assignment struct {
	used map[string]bool // voice IDs already claimed by this job, across all speakers
}

// NewAssignment creates an empty voice-assignment cache for one job.
func NewAssignment() *Assignment {
	return &Assignment{used: make(map[string]bool)}
}

// PreferredStyle is the delivery style (movie dialogue vs documentary)
// Assign prefers once every catalog voice of the wanted gender is already
// claimed; it plays no part while an unclaimed voice remains.
type PreferredStyle Style

// Assign resolves (or reuses) the voice_id for one (speaker_id, language)
// pair. The job's cache (model.Job.Voices) is the source of truth: a
// repeated call for the same key always returns the same voice, satisfying
// the stability property. A first-use call picks the first catalog
// voice for the matching gender not yet used in this job; if every voice
// of that gender is already claimed, it falls back to the first voice
// matching preferredStyle, and finally to the first catalog voice of
// any style so a job never fails to assign a voice outright.
func Assign(job *model.Job, a *Assignment, speakerID int, language string, gender model.Gender, preferredStyle PreferredStyle) string {
	key := model.VoiceKey{SpeakerID: speakerID, Language: language}
	if voiceID, ok := job.Voices[key]; ok {
		return voiceID
	}

	voiceID := pick(a, language, genderString(gender), Style(preferredStyle))
	job.Voices[key] = voiceID
	a.used[voiceID] = true
	return voiceID
}

func pick(a *Assignment, language, gender string, preferredStyle Style) string {
	candidates := VoicesFor(language, gender)
	if len(candidates) == 0 {
		// Unknown/absent gender table: widen to whichever gender the
		// catalog does carry for this language rather than leaving the
		// segment unvoiced.
		candidates = VoicesFor(language, "female")
		if len(candidates) == 0 {
			candidates = VoicesFor(language, "male")
		}
	}
	if len(candidates) == 0 {
		return ""
	}

	for _, v := range candidates {
		if !a.used[v.ID] {
			return v.ID
		}
	}
	// Every voice of this gender is already claimed by another speaker in
	// this job: prefer one matching the inferred style.
	if preferredStyle != "" {
		for _, v := range candidates {
			if v.Style == preferredStyle {
				return v.ID
			}
		}
	}
	return candidates[0].ID
}

func genderString(g model.Gender) string {
	switch g {
	case model.GenderMale:
		return "male"
	case model.GenderFemale:
		return "female"
	default:
		return "female" // default_gender option covers the unknown case upstream
	}
}
