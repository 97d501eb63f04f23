package settings

// ModelOption is a selectable Anthropic model with its display label.
type ModelOption struct {
	ID    string // Model identifier sent to the API.
	Label string // Human-readable label for the settings page.
}

// DefaultModel is selected when a user has not chosen one.
const DefaultModel = "claude-3-5-haiku-latest"

// AvailableModels is the enumerated set users can choose from.
var AvailableModels = []ModelOption{
	{ID: "claude-3-5-haiku-latest", Label: "Claude 3.5 Haiku (Fast)"},
	{ID: "claude-sonnet-4-20250514", Label: "Claude Sonnet 4 (Balanced)"},
	{ID: "claude-opus-4-5-20250514", Label: "Claude Opus 4.5 (Most Capable)"},
}

// IsAllowedModel reports whether the model is in the allowed set.
func IsAllowedModel(model string) bool {
	for _, option := range AvailableModels {
		if option.ID == model {
			return true
		}
	}
	return false
}

// ModelLabel returns the display label, falling back to the raw ID.
func ModelLabel(model string) string {
	for _, option := range AvailableModels {
		if option.ID == model {
			return option.Label
		}
	}
	return model
}
