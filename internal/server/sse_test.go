package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEWriter_Events(t *testing.T) {
	rec := httptest.NewRecorder()

	sse, err := NewSSEWriter(rec)
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))

	require.NoError(t, sse.WriteEvent("progress", map[string]string{"stage": "epics"}))
	sse.WriteComplete("run-1", "completed")
	sse.WriteError("boom")

	body := rec.Body.String()
	assert.Contains(t, body, "event: progress\n")
	assert.Contains(t, body, `data: {"stage":"epics"}`)
	assert.Contains(t, body, "event: complete\n")
	assert.Contains(t, body, `"run_id":"run-1"`)
	assert.Contains(t, body, `"status":"completed"`)
	assert.Contains(t, body, "event: error\n")
	assert.Contains(t, body, `"error":"boom"`)
	assert.True(t, rec.Flushed)
}

// noFlushWriter wraps a recorder without exposing Flush.
type noFlushWriter struct{ rec *httptest.ResponseRecorder }

func (w *noFlushWriter) Header() http.Header         { return w.rec.Header() }
func (w *noFlushWriter) Write(b []byte) (int, error) { return w.rec.Write(b) }
func (w *noFlushWriter) WriteHeader(code int)        { w.rec.WriteHeader(code) }

func TestSSEWriter_RequiresFlusher(t *testing.T) {
	_, err := NewSSEWriter(&noFlushWriter{rec: httptest.NewRecorder()})
	assert.Error(t, err)
}
