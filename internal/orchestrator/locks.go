package orchestrator

import (
	"sync"

	"github.com/google/uuid"
)

// activeRuns enforces at most one in-flight execution per run. Concurrent
// Start/Resume calls on one run are a correctness hazard (duplicate
// artifacts, racing status writes), so the second caller is rejected rather
// than queued.
type activeRuns struct {
	mu  sync.Mutex
	ids map[uuid.UUID]struct{}
}

// acquire claims the run for execution; false means it is already claimed.
func (a *activeRuns) acquire(runID uuid.UUID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ids == nil {
		a.ids = make(map[uuid.UUID]struct{})
	}
	if _, busy := a.ids[runID]; busy {
		return false
	}
	a.ids[runID] = struct{}{}
	return true
}

func (a *activeRuns) release(runID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.ids, runID)
}
