package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArtifact_IsFallback(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]any
		want     bool
	}{
		{"no metadata", nil, false},
		{"flag absent", map[string]any{"epic_count": 3}, false},
		{"flag true", map[string]any{"fallback": true, "error": "timeout"}, true},
		{"flag false", map[string]any{"fallback": false}, false},
		{"flag wrong type", map[string]any{"fallback": "true"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Artifact{Metadata: tt.metadata}
			assert.Equal(t, tt.want, a.IsFallback())
		})
	}
}
