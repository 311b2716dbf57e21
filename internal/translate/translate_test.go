package translate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/voicebridge/dubline/internal/model"
)

func TestParseNumbered(t *testing.T) {
	out, err := ParseNumbered("[1] hola\n[2] mundo", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0] != "hola" || out[1] != "mundo" {
		t.Fatalf("unexpected parse: %+v", out)
	}
}

func TestParseNumbered_MissingEntry(t *testing.T) {
	if _, err := ParseNumbered("[1] hola", 2); err == nil {
		t.Fatal("expected error for missing numbered entry")
	}
}

// TestParseBatchResponse_FallsBackToLineSplit covers a batch response
// that drops its numbering and recovers via line-split.
func TestParseBatchResponse_FallsBackToLineSplit(t *testing.T) {
	lines := make([]string, 20)
	for i := range lines {
		lines[i] = "line " + string(rune('a'+i))
	}
	response := strings.Join(lines, "\n") // no "[N]" prefixes at all

	out, err := ParseBatchResponse(response, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 20 {
		t.Fatalf("expected 20 outputs, got %d", len(out))
	}
	if out[0] != lines[0] {
		t.Fatalf("expected %q, got %q", lines[0], out[0])
	}
}

// TestParseBatchResponse_PartialNumberingRecovers: one batch's reply is
// missing a numbered entry so the numbered parse fails, but the line
// count still matches 20 and line-split recovers all of them.
func TestParseBatchResponse_PartialNumberingRecovers(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 19; i++ {
		b.WriteString("[")
		b.WriteString(string(rune('1')))
		b.WriteString("] x\n")
	}
	b.WriteString("unnumbered final line")
	out, err := ParseBatchResponse(b.String(), 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 20 {
		t.Fatalf("expected 20 outputs, got %d", len(out))
	}
}

type fakeProvider struct {
	name    string
	results [][]string // one entry consumed per call
	errs    []error
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) TranslateBatch(ctx context.Context, lines []string, sourceLanguage, targetLanguage, genre string) ([]string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	out := make([]string, len(lines))
	for j, l := range lines {
		out[j] = "translated:" + l
	}
	return out, nil
}

func segsWithText(texts ...string) []model.Segment {
	segs := make([]model.Segment, len(texts))
	for i, text := range texts {
		segs[i] = model.Segment{ID: i, Start: float64(i), End: float64(i) + 1, Text: text}
	}
	return segs
}

func fastOptions() Options {
	o := DefaultOptions()
	o.BatchSize = 2
	o.InterBatchDelay = time.Millisecond
	o.RateLimitBackoff = []time.Duration{time.Millisecond, time.Millisecond}
	o.ServerErrorBackoff = []time.Duration{time.Millisecond, time.Millisecond}
	return o
}

func TestRun_HappyPath(t *testing.T) {
	segs := segsWithText("a", "b", "c")
	primary := &fakeProvider{name: "primary"}

	result, err := Run(context.Background(), segs, "en", "fr", primary, nil, fastOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Segments[0].Text != "translated:a" || result.Segments[0].OriginalText != "a" {
		t.Fatalf("unexpected segment 0: %+v", result.Segments[0])
	}
	if result.PartialCount != 3 {
		t.Fatalf("expected partial_count 3, got %d", result.PartialCount)
	}
}

func TestRun_EmptySegmentsPassThrough(t *testing.T) {
	segs := segsWithText("a", "", "c")
	primary := &fakeProvider{name: "primary"}

	result, err := Run(context.Background(), segs, "en", "fr", primary, nil, fastOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Segments[1].Text != "" {
		t.Fatalf("expected empty segment to stay empty, got %q", result.Segments[1].Text)
	}
}

func TestRun_FallsBackToSecondaryProvider(t *testing.T) {
	segs := segsWithText("a", "b")
	boom := WrapServerError(errors.New("boom"))
	primary := &fakeProvider{name: "primary", errs: []error{boom, boom, boom}}
	fallback := &fakeProvider{name: "fallback"}

	result, err := Run(context.Background(), segs, "en", "fr", primary, fallback, fastOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fallback.calls == 0 {
		t.Fatal("expected fallback to be invoked")
	}
	if result.Segments[0].Text != "translated:a" {
		t.Fatalf("unexpected result: %+v", result.Segments[0])
	}
}

// TestRun_FatalAfterThreeConsecutiveBatchFailures: three consecutive
// batch failures abort the stage and report how many segments were
// translated before the abort.
func TestRun_FatalAfterThreeConsecutiveBatchFailures(t *testing.T) {
	segs := segsWithText("a", "b", "c", "d", "e", "f", "g", "h")
	permanentErr := WrapPermanent(errors.New("bad request"))
	primary := &fakeProvider{name: "primary", errs: []error{nil, permanentErr, permanentErr, permanentErr}}

	result, err := Run(context.Background(), segs, "en", "fr", primary, nil, fastOptions())
	if err == nil {
		t.Fatal("expected fatal translation error")
	}
	if !errors.Is(err, model.ErrStageFailed) {
		t.Fatalf("expected ErrStageFailed, got %v", err)
	}
	if result.PartialCount != 2 {
		t.Fatalf("expected partial_count 2 (one successful batch of 2), got %d", result.PartialCount)
	}
}

func TestRun_NoRetryOnPermanentError(t *testing.T) {
	primary := &fakeProvider{name: "primary", errs: []error{WrapPermanent(errors.New("bad request"))}}

	_, err := translateBatchWithRetry(context.Background(), primary, []string{"a", "b"}, "en", "fr", fastOptions())
	if err == nil {
		t.Fatal("expected error")
	}
	if primary.calls != 1 {
		t.Fatalf("expected exactly 1 call for a permanent error, got %d", primary.calls)
	}
}
