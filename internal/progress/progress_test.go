package progress

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicebridge/dubline/internal/model"
)

func dialProgress(t *testing.T, server *httptest.Server, jobID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?job_id=" + jobID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestBroadcaster_DeliversStageEventsToSubscriber covers the basic fan-out
// path: a subscriber on job-1 receives StartJob/RecordStage/EndJob frames
// in order.
func TestBroadcaster_DeliversStageEventsToSubscriber(t *testing.T) {
	b := NewBroadcaster()
	server := httptest.NewServer(NewHandler(b))
	defer server.Close()

	conn := dialProgress(t, server, "job-1")
	time.Sleep(20 * time.Millisecond) // let the upgrade/subscribe land before broadcasting

	b.StartJob("job-1")
	var started Event
	if err := conn.ReadJSON(&started); err != nil {
		t.Fatalf("read job_started: %v", err)
	}
	if started.Type != "job_started" || started.JobID != "job-1" {
		t.Fatalf("unexpected event: %+v", started)
	}

	b.RecordStage("job-1", model.StageResult{Name: model.StagePreprocess, Status: model.StateSucceeded, DurationMs: 12})
	var stage Event
	if err := conn.ReadJSON(&stage); err != nil {
		t.Fatalf("read stage: %v", err)
	}
	if stage.Type != "stage" || stage.Stage != string(model.StagePreprocess) || stage.Status != string(model.StateSucceeded) {
		t.Fatalf("unexpected stage event: %+v", stage)
	}

	b.EndJob("job-1", model.Result{Success: true})
	var ended Event
	if err := conn.ReadJSON(&ended); err != nil {
		t.Fatalf("read job_ended: %v", err)
	}
	if ended.Type != "job_ended" || !ended.Success {
		t.Fatalf("unexpected end event: %+v", ended)
	}
}

// TestBroadcaster_IsolatesJobs covers that a subscriber on job-A never
// receives job-B's events.
func TestBroadcaster_IsolatesJobs(t *testing.T) {
	b := NewBroadcaster()
	server := httptest.NewServer(NewHandler(b))
	defer server.Close()

	connA := dialProgress(t, server, "job-a")
	time.Sleep(20 * time.Millisecond)

	b.StartJob("job-b")
	b.StartJob("job-a")

	var ev Event
	if err := connA.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.JobID != "job-a" {
		t.Fatalf("expected only job-a events, got %+v", ev)
	}
}

// TestBroadcaster_EndJobDropsSubscribers covers that EndJob clears the
// subscriber set so no later Subscribe leaks state across jobs.
func TestBroadcaster_EndJobDropsSubscribers(t *testing.T) {
	b := NewBroadcaster()
	server := httptest.NewServer(NewHandler(b))
	defer server.Close()

	_ = dialProgress(t, server, "job-1")
	time.Sleep(20 * time.Millisecond)

	b.mu.Lock()
	count := len(b.subs["job-1"])
	b.mu.Unlock()
	if count != 1 {
		t.Fatalf("expected one subscriber before EndJob, got %d", count)
	}

	b.EndJob("job-1", model.Result{Success: true})

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs["job-1"]; ok {
		t.Fatalf("expected job-1's subscriber set to be removed after EndJob")
	}
}
