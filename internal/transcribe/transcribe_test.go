package transcribe

import "testing"

func TestNormalizeFromWordsSplitsOnGap(t *testing.T) {
	words := []RawWord{
		{Word: "hello", Start: 0.0, End: 0.4},
		{Word: "there", Start: 0.4, End: 0.8},
		// > 1.5s gap opens a new segment
		{Word: "world", Start: 3.0, End: 3.4},
	}
	segs := normalizeFromWords(words)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].Text != "hello there" {
		t.Errorf("segment 0 text = %q", segs[0].Text)
	}
	if segs[1].Text != "world" {
		t.Errorf("segment 1 text = %q", segs[1].Text)
	}
}

func TestNormalizeFromWordsSplitsOnWordCount(t *testing.T) {
	var words []RawWord
	t0 := 0.0
	for i := 0; i < 25; i++ {
		words = append(words, RawWord{Word: "w", Start: t0, End: t0 + 0.1})
		t0 += 0.1
	}
	segs := normalizeFromWords(words)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments after 20-word split, got %d", len(segs))
	}
	if len(segs[0].Words) != 20 {
		t.Errorf("expected first segment to have 20 words, got %d", len(segs[0].Words))
	}
}

func TestNormalizeFromWordsSpeakerToggleOnLargeGap(t *testing.T) {
	words := []RawWord{
		{Word: "a", Start: 0, End: 0.5},
		{Word: "b", Start: 3.0, End: 3.5}, // > 2s gap: speaker id toggles
	}
	segs := normalizeFromWords(words)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].SpeakerID == segs[1].SpeakerID {
		t.Errorf("expected speaker id to toggle across >2s gap")
	}
}

func TestNormalizeFromSegmentsPreservesOrder(t *testing.T) {
	raw := []RawSegment{
		{Start: 0, End: 2, Text: "Hello"},
		{Start: 5, End: 7, Text: "World"},
	}
	segs := normalizeFromSegments(raw)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segs))
	}
	if segs[0].ID != 0 || segs[1].ID != 1 {
		t.Errorf("expected sequential ids, got %d, %d", segs[0].ID, segs[1].ID)
	}
}

func TestNormalizeEmptyWords(t *testing.T) {
	segs := normalizeFromWords(nil)
	if len(segs) != 0 {
		t.Fatalf("expected zero segments for empty input, got %d", len(segs))
	}
}
