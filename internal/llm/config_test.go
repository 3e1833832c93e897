package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetModel_FallsBack(t *testing.T) {
	full := DefaultConfig()
	assert.Equal(t, "gemini-2.5-pro", full.GetModel(TierAdvanced))
	assert.Equal(t, "gemini-2.5-flash", full.GetModel(TierStandard))
	assert.Equal(t, "gemini-2.5-flash-lite", full.GetModel(TierLite))

	standardOnly := &Config{Models: map[ModelTier]string{TierStandard: "m-standard"}}
	assert.Equal(t, "m-standard", standardOnly.GetModel(TierAdvanced))

	liteOnly := &Config{Models: map[ModelTier]string{TierLite: "m-lite"}}
	assert.Equal(t, "m-lite", liteOnly.GetModel(TierAdvanced))

	empty := &Config{}
	assert.Equal(t, "", empty.GetModel(TierAdvanced))
}
