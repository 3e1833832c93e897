package orchestrator

import (
	"strconv"

	"github.com/jonathan/product-factory/internal/db"
)

// Stage names. The execution order is research, epics, stories, specs, code,
// validation; each gated stage is followed by a wait state where the run
// suspends until a decision arrives.
const (
	StageResearch   = "research"
	StageEpics      = "epics"
	StageStories    = "stories"
	StageSpecs      = "specs"
	StageCode       = "code"
	StageValidation = "validation"
	StageCompleted  = "completed"

	WaitEpicApproval  = "wait_epic_approval"
	WaitStoryApproval = "wait_story_approval"
	WaitSpecApproval  = "wait_spec_approval"
)

// StageSpec describes one pipeline stage: what artifact it produces, whether
// it is gated behind human approval, what comes next, and which inputs its
// executor receives. The table below is the entire pipeline contract; the
// execution loop is generic over it.
type StageSpec struct {
	Name         string
	ArtifactType string
	ArtifactName string
	Gated        bool
	WaitState    string
	Next         string
	Inputs       func(s *session) map[string]string
}

var stageTable = map[string]StageSpec{
	StageResearch: {
		Name:         StageResearch,
		ArtifactType: db.ArtifactResearch,
		ArtifactName: "research.md",
		Next:         StageEpics,
		Inputs: func(s *session) map[string]string {
			return map[string]string{
				"product_request": s.productRequest,
			}
		},
	},
	StageEpics: {
		Name:         StageEpics,
		ArtifactType: db.ArtifactEpics,
		ArtifactName: "epics.md",
		Gated:        true,
		WaitState:    WaitEpicApproval,
		Next:         StageStories,
		Inputs: func(s *session) map[string]string {
			return withFeedback(s, StageEpics, map[string]string{
				"product_request": s.productRequest,
				"research":        s.contents[db.ArtifactResearch],
			})
		},
	},
	StageStories: {
		Name:         StageStories,
		ArtifactType: db.ArtifactStories,
		ArtifactName: "stories.md",
		Gated:        true,
		WaitState:    WaitStoryApproval,
		Next:         StageSpecs,
		Inputs: func(s *session) map[string]string {
			return withFeedback(s, StageStories, map[string]string{
				"epics": s.contents[db.ArtifactEpics],
			})
		},
	},
	StageSpecs: {
		Name:         StageSpecs,
		ArtifactType: db.ArtifactSpecs,
		ArtifactName: "specs.md",
		Gated:        true,
		WaitState:    WaitSpecApproval,
		Next:         StageCode,
		Inputs: func(s *session) map[string]string {
			return withFeedback(s, StageSpecs, map[string]string{
				"stories": s.contents[db.ArtifactStories],
			})
		},
	},
	StageCode: {
		Name:         StageCode,
		ArtifactType: db.ArtifactCode,
		ArtifactName: "code.md",
		Next:         StageValidation,
		Inputs: func(s *session) map[string]string {
			return map[string]string{
				"specs": s.contents[db.ArtifactSpecs],
			}
		},
	},
	StageValidation: {
		Name:         StageValidation,
		ArtifactType: db.ArtifactValidation,
		ArtifactName: "validation_report.md",
		Next:         "", // terminal; completion follows
		Inputs: func(s *session) map[string]string {
			return map[string]string{
				"code": s.contents[db.ArtifactCode],
			}
		},
	},
}

// StageOrder is the fixed execution order of the pipeline.
var StageOrder = []string{
	StageResearch, StageEpics, StageStories, StageSpecs, StageCode, StageValidation,
}

// GatedStages lists the stages whose output requires human approval.
var GatedStages = []string{StageEpics, StageStories, StageSpecs}

// IsGatedStage reports whether stage requires an approval decision.
func IsGatedStage(stage string) bool {
	spec, ok := stageTable[stage]
	return ok && spec.Gated
}

// StageForWaitState maps a wait state back to its gated stage. ok is false
// for states that are not wait states.
func StageForWaitState(state string) (string, bool) {
	for _, stage := range GatedStages {
		if stageTable[stage].WaitState == state {
			return stage, true
		}
	}
	return "", false
}

// IsValidAction reports whether action is a recognized decision action.
func IsValidAction(action string) bool {
	switch action {
	case db.ActionProceed, db.ActionRegenerate, db.ActionReject:
		return true
	}
	return false
}

// withFeedback adds stored human feedback and the regeneration counter to a
// gated stage's inputs. Both are empty/zero outside a regeneration pass.
func withFeedback(s *session, stage string, inputs map[string]string) map[string]string {
	inputs["feedback"] = s.feedback[stage]
	inputs["regeneration_count"] = strconv.Itoa(s.regen[stage])
	return inputs
}
