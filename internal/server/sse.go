package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jonathan/product-factory/internal/db"
)

// SSEWriter helps write Server-Sent Events
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends an SSE event
func (s *SSEWriter) WriteEvent(event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteError sends an error event
func (s *SSEWriter) WriteError(message string) {
	s.WriteEvent("error", map[string]string{"error": message}) //nolint:errcheck
}

// WriteComplete sends a completion event
func (s *SSEWriter) WriteComplete(runID, status string) {
	s.WriteEvent("complete", map[string]string{ //nolint:errcheck
		"run_id": runID,
		"status": status,
	})
}

// pollInterval is how often the stream checks for new progress updates.
const pollInterval = time.Second

// handleStreamRun streams run progress as Server-Sent Events. Clients can
// pass ?from=N to replay from a known update index after reconnecting.
func (s *Server) handleStreamRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.ownedRun(w, r)
	if !ok {
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	from := 0
	if raw := r.URL.Query().Get("from"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			from = parsed
		}
	}

	sse.WriteEvent("connected", map[string]string{ //nolint:errcheck
		"run_id": run.ID.String(),
		"status": run.Status,
	})

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		for _, update := range s.progress.Updates(run.ID, from) {
			if err := sse.WriteEvent("progress", update); err != nil {
				return
			}
			from++
		}

		current, err := s.db.GetRun(r.Context(), run.ID)
		if err != nil {
			sse.WriteError("failed to read run status")
			return
		}
		if current == nil {
			sse.WriteError("run deleted")
			return
		}
		if current.Status == db.RunStatusCompleted || current.Status == db.RunStatusFailed || current.Status == db.RunStatusPaused {
			// Drain anything emitted between the read and the status check.
			for _, update := range s.progress.Updates(run.ID, from) {
				if err := sse.WriteEvent("progress", update); err != nil {
					return
				}
				from++
			}
			sse.WriteComplete(current.ID.String(), current.Status)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
