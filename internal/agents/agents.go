// Package agents implements the stage executors of the product pipeline.
// Each agent turns its documented inputs into one markdown artifact via an
// LLM call. Provider failures are reported as structured results so the
// pipeline can record a fallback artifact instead of aborting the run.
package agents

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/jonathan/product-factory/internal/llm"
	"github.com/jonathan/product-factory/internal/orchestrator"
)

// PromptAgent is a generic text-generation executor. The prompt builder and
// metadata extractor give each stage its identity.
type PromptAgent struct {
	name     string
	tier     llm.ModelTier
	client   llm.Client
	prompt   func(inputs map[string]string) string
	metadata func(content string) map[string]any
}

// NewPromptAgent creates an executor with the given prompt builder. The
// metadata func may be nil.
func NewPromptAgent(name string, tier llm.ModelTier, client llm.Client, prompt func(map[string]string) string, metadata func(string) map[string]any) *PromptAgent {
	return &PromptAgent{name: name, tier: tier, client: client, prompt: prompt, metadata: metadata}
}

func (a *PromptAgent) Name() string { return a.name }

// Execute generates the stage artifact. LLM errors become structured
// failures; only cancellation propagates as a Go error.
func (a *PromptAgent) Execute(ctx context.Context, inputs map[string]string) (*orchestrator.Result, error) {
	content, usage, err := a.client.GenerateContent(ctx, a.prompt(inputs), a.tier)
	if err != nil {
		if isFatal(err) {
			return nil, err
		}
		return failure(err), nil
	}

	metadata := baseMetadata(usage, inputs)
	if a.metadata != nil {
		for k, v := range a.metadata(content) {
			metadata[k] = v
		}
	}
	return &orchestrator.Result{Succeeded: true, Content: content, Metadata: metadata}, nil
}

// isFatal reports whether an executor error should abort the run rather
// than produce a fallback artifact.
func isFatal(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func failure(err error) *orchestrator.Result {
	return &orchestrator.Result{Succeeded: false, Error: err.Error()}
}

func baseMetadata(usage llm.Usage, inputs map[string]string) map[string]any {
	metadata := map[string]any{
		"prompt_tokens":     usage.PromptTokens,
		"completion_tokens": usage.CompletionTokens,
	}
	if raw, ok := inputs["regeneration_count"]; ok {
		if n, err := strconv.Atoi(raw); err == nil {
			metadata["regeneration_count"] = n
		}
	}
	return metadata
}

// truncate bounds upstream artifact text injected into prompts.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}

func countOccurrences(haystack, needle string) int {
	return strings.Count(haystack, needle)
}
