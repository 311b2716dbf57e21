package model

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// SegmentDocument is the portable segment-list format exchanged between
// stages and written to the scratch directory as a stage boundary artifact.
// Provider-specific field names never appear here; adapters normalize at
// ingress and this document is the only cross-stage wire shape.
type SegmentDocument struct {
	Language      string        `json:"language"`
	FullText      string        `json:"full_text"`
	TotalSegments int           `json:"total_segments"`
	TotalDuration float64       `json:"total_duration"`
	Segments      []SegmentJSON `json:"segments"`
}

// SegmentJSON is one segment's wire representation.
type SegmentJSON struct {
	ID           int        `json:"id"`
	Start        float64    `json:"start"`
	End          float64    `json:"end"`
	Duration     float64    `json:"duration"`
	Text         string     `json:"text"`
	OriginalText string     `json:"original_text,omitempty"`
	Words        []WordJSON `json:"words,omitempty"`
	SpeakerID    int        `json:"speaker_id"`
	Gender       Gender     `json:"gender,omitempty"`
	Confidence   float64    `json:"confidence"`
	Emotion      Emotion    `json:"emotion,omitempty"`
	AudioPath    string     `json:"audio_path,omitempty"`
	SyncQuality  string     `json:"sync_quality,omitempty"`
	Failed       bool       `json:"failed,omitempty"`
}

// WordJSON is one word-level timestamp on the wire.
type WordJSON struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability,omitempty"`
}

// NewSegmentDocument builds the wire document for a segment list. language
// is whatever the list's text is currently in (source language after S2,
// target language after S4); totalDuration is the source audio duration
// when known, else the last segment's end.
func NewSegmentDocument(language string, totalDuration float64, segs []Segment) SegmentDocument {
	doc := SegmentDocument{
		Language:      language,
		TotalSegments: len(segs),
		TotalDuration: totalDuration,
		Segments:      make([]SegmentJSON, len(segs)),
	}
	var full strings.Builder
	for i, s := range segs {
		if i > 0 {
			full.WriteByte(' ')
		}
		full.WriteString(s.Text)
		doc.Segments[i] = SegmentJSON{
			ID:           s.ID,
			Start:        s.Start,
			End:          s.End,
			Duration:     s.Duration(),
			Text:         s.Text,
			OriginalText: s.OriginalText,
			Words:        wordsToJSON(s.Words),
			SpeakerID:    s.SpeakerID,
			Gender:       s.Gender,
			Confidence:   s.Confidence,
			Emotion:      s.Emotion,
			AudioPath:    s.AudioPath,
			SyncQuality:  string(s.SyncQuality),
			Failed:       s.Failed,
		}
	}
	if doc.TotalDuration == 0 && len(segs) > 0 {
		doc.TotalDuration = segs[len(segs)-1].End
	}
	doc.FullText = strings.TrimSpace(full.String())
	return doc
}

// ToSegments converts the wire document back into the in-memory model.
func (d SegmentDocument) ToSegments() []Segment {
	segs := make([]Segment, len(d.Segments))
	for i, s := range d.Segments {
		segs[i] = Segment{
			ID:           s.ID,
			Start:        s.Start,
			End:          s.End,
			Text:         s.Text,
			OriginalText: s.OriginalText,
			Words:        wordsFromJSON(s.Words),
			SpeakerID:    s.SpeakerID,
			Gender:       s.Gender,
			Confidence:   s.Confidence,
			Emotion:      s.Emotion,
			AudioPath:    s.AudioPath,
			SyncQuality:  SyncQuality(s.SyncQuality),
			Failed:       s.Failed,
		}
	}
	return segs
}

// Write persists the document as indented JSON.
func (d SegmentDocument) Write(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal segment document: %v", ErrAssetMissing, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSegmentDocument loads a document previously written by Write.
func ReadSegmentDocument(path string) (SegmentDocument, error) {
	var d SegmentDocument
	data, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("%w: read segment document: %v", ErrAssetMissing, err)
	}
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("%w: parse segment document: %v", ErrAssetMissing, err)
	}
	return d, nil
}

func wordsToJSON(words []Word) []WordJSON {
	if len(words) == 0 {
		return nil
	}
	out := make([]WordJSON, len(words))
	for i, w := range words {
		out[i] = WordJSON{Word: w.Word, Start: w.Start, End: w.End, Probability: w.Probability}
	}
	return out
}

func wordsFromJSON(words []WordJSON) []Word {
	if len(words) == 0 {
		return nil
	}
	out := make([]Word, len(words))
	for i, w := range words {
		out[i] = Word{Word: w.Word, Start: w.Start, End: w.End, Probability: w.Probability}
	}
	return out
}
