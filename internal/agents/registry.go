package agents

import (
	"github.com/jonathan/product-factory/internal/fetch"
	"github.com/jonathan/product-factory/internal/llm"
	"github.com/jonathan/product-factory/internal/orchestrator"
)

// Registry builds the full executor set, keyed by stage name. searcher may
// be nil when web search is not configured.
func Registry(client llm.Client, fetcher *fetch.Fetcher, searcher Searcher) map[string]orchestrator.Executor {
	return map[string]orchestrator.Executor{
		orchestrator.StageResearch:   NewResearchAgent(client, fetcher, searcher),
		orchestrator.StageEpics:      NewPromptAgent(orchestrator.StageEpics, llm.TierStandard, client, epicPrompt, epicMetadata),
		orchestrator.StageStories:    NewPromptAgent(orchestrator.StageStories, llm.TierStandard, client, storyPrompt, storyMetadata),
		orchestrator.StageSpecs:      NewPromptAgent(orchestrator.StageSpecs, llm.TierAdvanced, client, specPrompt, specMetadata),
		orchestrator.StageCode:       NewPromptAgent(orchestrator.StageCode, llm.TierAdvanced, client, codePrompt, codeMetadata),
		orchestrator.StageValidation: NewValidationAgent(client),
	}
}
