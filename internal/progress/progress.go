// Package progress streams a job's stage transitions to WebSocket
// subscribers: a mutex-guarded per-connection JSON writer behind a
// Broadcaster that fans one job's stage events out to every client
// watching it.
package progress

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/voicebridge/dubline/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is one frame sent to a job's progress subscribers.
type Event struct {
	JobID      string   `json:"job_id"`
	Type       string   `json:"type"` // "job_started" | "stage" | "job_ended"
	Stage      string   `json:"stage,omitempty"`
	Status     string   `json:"status,omitempty"`
	DurationMs float64  `json:"duration_ms,omitempty"`
	Error      string   `json:"error,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	Success    bool     `json:"success,omitempty"`
}

// subscriber wraps one WebSocket connection with its own write mutex, since
// gorilla/websocket forbids concurrent writers on a single *Conn.
type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ev)
}

// Broadcaster fans a job's Events out to every subscriber currently
// watching that job, and implements orchestrator.Recorder so the
// Orchestrator can drive it directly.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers conn as a listener for jobID's events.
func (b *Broadcaster) Subscribe(jobID string, conn *websocket.Conn) *subscriber {
	sub := &subscriber{conn: conn}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[*subscriber]struct{})
	}
	b.subs[jobID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub from jobID's listener set.
func (b *Broadcaster) Unsubscribe(jobID string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[jobID], sub)
	if len(b.subs[jobID]) == 0 {
		delete(b.subs, jobID)
	}
}

// broadcast writes ev to every current subscriber of jobID. A subscriber
// whose write fails (closed connection) is dropped rather than retried.
func (b *Broadcaster) broadcast(jobID string, ev Event) {
	b.mu.Lock()
	subs := make([]*subscriber, 0, len(b.subs[jobID]))
	for s := range b.subs[jobID] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if err := s.send(ev); err != nil {
			slog.Info("progress subscriber write failed, dropping", "job_id", jobID, "error", err)
			b.Unsubscribe(jobID, s)
		}
	}
}

// StartJob implements orchestrator.Recorder.
func (b *Broadcaster) StartJob(jobID string) {
	b.broadcast(jobID, Event{JobID: jobID, Type: "job_started"})
}

// RecordStage implements orchestrator.Recorder.
func (b *Broadcaster) RecordStage(jobID string, stage model.StageResult) {
	b.broadcast(jobID, Event{
		JobID:      jobID,
		Type:       "stage",
		Stage:      string(stage.Name),
		Status:     string(stage.Status),
		DurationMs: stage.DurationMs,
		Error:      stage.Error,
		Warnings:   stage.Warnings,
	})
}

// EndJob implements orchestrator.Recorder; it broadcasts the terminal
// event and then drops every subscriber of jobID, since no further events
// will ever be sent for it.
func (b *Broadcaster) EndJob(jobID string, result model.Result) {
	b.broadcast(jobID, Event{JobID: jobID, Type: "job_ended", Success: result.Success})
	b.mu.Lock()
	delete(b.subs, jobID)
	b.mu.Unlock()
}

// Handler upgrades a progress-subscription request into a WebSocket and
// registers it with a Broadcaster until the client disconnects.
type Handler struct {
	broadcaster *Broadcaster
}

// NewHandler creates a Handler backed by b.
func NewHandler(b *Broadcaster) *Handler {
	return &Handler{broadcaster: b}
}

// ServeHTTP expects a job_id query parameter and upgrades the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		http.Error(w, "job_id is required", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("progress websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := h.broadcaster.Subscribe(jobID, conn)
	defer h.broadcaster.Unsubscribe(jobID, sub)

	// Subscribers only receive; block here reading control/close frames
	// until the client disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
