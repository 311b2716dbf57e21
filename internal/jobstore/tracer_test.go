package jobstore

import (
	"testing"

	"github.com/voicebridge/dubline/internal/model"
)

func TestTracer_NilSafe(t *testing.T) {
	var tr *Tracer
	tr.StartJob("job-1")
	tr.RecordStage("job-1", model.StageResult{Name: model.StagePreprocess, Status: model.StateSucceeded})
	tr.EndJob("job-1", model.Result{Success: true})
	tr.Close() // must not panic or block
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("expected unchanged string, got %q", got)
	}
	if got := truncate("a long string", 5); got != "a lon" {
		t.Fatalf("expected truncated to 5 bytes, got %q", got)
	}
}
