package llm

// ModelTier represents the capability level requested for a generation.
type ModelTier string

const (
	// TierLite is for cheap tasks: summarization, extraction.
	TierLite ModelTier = "lite"
	// TierStandard is for moderate reasoning: planning documents, stories.
	TierStandard ModelTier = "standard"
	// TierAdvanced is for complex reasoning: specs and code generation.
	TierAdvanced ModelTier = "advanced"
)

// Config holds the model selection for the application.
type Config struct {
	Models map[ModelTier]string
}

// DefaultConfig returns the default Gemini model mapping.
func DefaultConfig() *Config {
	return &Config{
		Models: map[ModelTier]string{
			TierLite:     "gemini-2.5-flash-lite",
			TierStandard: "gemini-2.5-flash",
			TierAdvanced: "gemini-2.5-pro",
		},
	}
}

// GetModel returns the model name for a tier, falling back to standard, then
// lite, when the tier is not configured.
func (c *Config) GetModel(tier ModelTier) string {
	if model, ok := c.Models[tier]; ok {
		return model
	}
	if model, ok := c.Models[TierStandard]; ok {
		return model
	}
	if model, ok := c.Models[TierLite]; ok {
		return model
	}
	return ""
}
