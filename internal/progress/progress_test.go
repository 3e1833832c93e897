package progress

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_EmitAndTail(t *testing.T) {
	log := NewLog()
	runID := uuid.New()

	log.Emit(runID, "research", "Pipeline started", nil)
	log.Emit(runID, "research", "Stage research completed", nil)
	log.Emit(runID, "epics", "Stage epics completed", map[string]any{"epic_count": 4})

	all := log.Updates(runID, 0)
	require.Len(t, all, 3)
	assert.Equal(t, "Pipeline started", all[0].Message)
	assert.Equal(t, "epics", all[2].Stage)
	assert.Equal(t, 4, all[2].Data["epic_count"])
	assert.False(t, all[0].Timestamp.IsZero())

	tail := log.Updates(runID, 2)
	require.Len(t, tail, 1)
	assert.Equal(t, "epics", tail[0].Stage)

	assert.Nil(t, log.Updates(runID, 3), "from beyond the log is empty")
	assert.Len(t, log.Updates(runID, -5), 3, "negative from reads from the start")
	assert.Equal(t, 3, log.Len(runID))
}

func TestLog_IsolatesRuns(t *testing.T) {
	log := NewLog()
	first, second := uuid.New(), uuid.New()

	log.Emit(first, "research", "one", nil)
	log.Emit(second, "research", "two", nil)

	assert.Equal(t, 1, log.Len(first))
	assert.Equal(t, "two", log.Updates(second, 0)[0].Message)
}

func TestLog_Clear(t *testing.T) {
	log := NewLog()
	runID := uuid.New()

	log.Emit(runID, "research", "started", nil)
	log.Clear(runID)

	assert.Zero(t, log.Len(runID))
	assert.Nil(t, log.Updates(runID, 0))
}

func TestLog_ReturnsCopies(t *testing.T) {
	log := NewLog()
	runID := uuid.New()
	log.Emit(runID, "research", "original", nil)

	got := log.Updates(runID, 0)
	got[0].Message = "mutated"

	assert.Equal(t, "original", log.Updates(runID, 0)[0].Message)
}

func TestLog_ConcurrentEmit(t *testing.T) {
	log := NewLog()
	runID := uuid.New()

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				log.Emit(runID, "code", "tick", nil)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, writers*10, log.Len(runID))
}
