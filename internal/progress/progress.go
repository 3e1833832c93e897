// Package progress keeps an ordered, per-run log of pipeline events for
// delivery to SSE observers. Readers tail the log by index so a reconnecting
// client never sees an event twice.
package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Update is one progress event for a run.
type Update struct {
	Stage     string         `json:"stage"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Log is an in-process progress store. Events for a run are appended in
// emission order and read back by index.
type Log struct {
	mu      sync.RWMutex
	updates map[uuid.UUID][]Update
}

// NewLog creates an empty progress log.
func NewLog() *Log {
	return &Log{updates: make(map[uuid.UUID][]Update)}
}

// Emit appends one event to a run's log.
func (l *Log) Emit(runID uuid.UUID, stage, message string, data map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates[runID] = append(l.updates[runID], Update{
		Stage:     stage,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

// Updates returns a copy of the run's events starting at from. A from beyond
// the current length returns nil.
func (l *Log) Updates(runID uuid.UUID, from int) []Update {
	l.mu.RLock()
	defer l.mu.RUnlock()
	events := l.updates[runID]
	if from < 0 {
		from = 0
	}
	if from >= len(events) {
		return nil
	}
	out := make([]Update, len(events)-from)
	copy(out, events[from:])
	return out
}

// Len returns the number of events recorded for a run.
func (l *Log) Len(runID uuid.UUID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.updates[runID])
}

// Clear drops all events for a run, typically after deletion.
func (l *Log) Clear(runID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.updates, runID)
}
