package orchestrator

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/product-factory/internal/db"
)

func TestStageOrder(t *testing.T) {
	assert.Equal(t, []string{
		StageResearch, StageEpics, StageStories, StageSpecs, StageCode, StageValidation,
	}, StageOrder)

	// The table links stages in the same order.
	for i, name := range StageOrder {
		spec, ok := stageTable[name]
		require.True(t, ok, name)
		if i < len(StageOrder)-1 {
			assert.Equal(t, StageOrder[i+1], spec.Next, name)
		} else {
			assert.Empty(t, spec.Next, "validation is terminal")
		}
	}
}

func TestGatedStages(t *testing.T) {
	assert.Equal(t, []string{StageEpics, StageStories, StageSpecs}, GatedStages)

	for _, name := range StageOrder {
		spec := stageTable[name]
		if spec.Gated {
			assert.NotEmpty(t, spec.WaitState, name)
			assert.True(t, IsGatedStage(name))
		} else {
			assert.Empty(t, spec.WaitState, name)
			assert.False(t, IsGatedStage(name))
		}
	}
	assert.False(t, IsGatedStage("unknown"))
}

func TestStageForWaitState(t *testing.T) {
	tests := []struct {
		state string
		stage string
		ok    bool
	}{
		{WaitEpicApproval, StageEpics, true},
		{WaitStoryApproval, StageStories, true},
		{WaitSpecApproval, StageSpecs, true},
		{StageResearch, "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		stage, ok := StageForWaitState(tt.state)
		assert.Equal(t, tt.ok, ok, tt.state)
		assert.Equal(t, tt.stage, stage, tt.state)
	}
}

func TestStageArtifactNames(t *testing.T) {
	expected := map[string]string{
		StageResearch:   "research.md",
		StageEpics:      "epics.md",
		StageStories:    "stories.md",
		StageSpecs:      "specs.md",
		StageCode:       "code.md",
		StageValidation: "validation_report.md",
	}
	for stage, name := range expected {
		assert.Equal(t, name, stageTable[stage].ArtifactName, stage)
	}
}

func TestIsValidAction(t *testing.T) {
	assert.True(t, IsValidAction(db.ActionProceed))
	assert.True(t, IsValidAction(db.ActionRegenerate))
	assert.True(t, IsValidAction(db.ActionReject))
	assert.False(t, IsValidAction(""))
	assert.False(t, IsValidAction("approve"))
}

func TestWithFeedback_InjectsSessionState(t *testing.T) {
	sess := newSession(uuid.Nil, "request")
	sess.feedback[StageEpics] = "cut scope"
	sess.regen[StageEpics] = 2

	inputs := stageTable[StageEpics].Inputs(sess)
	assert.Equal(t, "cut scope", inputs["feedback"])
	assert.Equal(t, "2", inputs["regeneration_count"])
}
