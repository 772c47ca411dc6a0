package models

// Tool is a named AI persona: a system prompt plus model settings and
// spending limits. Tools are read-mostly; only the admin CRUD mutates them.
type Tool struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Icon         string  `json:"icon,omitempty"`
	SystemPrompt string  `json:"systemPrompt"`
	Model        string  `json:"model"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"maxTokens"`
	// CostCeiling is the daily spend cap in USD. Zero disables enforcement.
	CostCeiling float64 `json:"costCeiling,omitempty"`
	// FallbackModel is used once the ceiling is hit. Empty means the tool
	// is suspended for the rest of the day instead of downgraded.
	FallbackModel string `json:"fallbackModel,omitempty"`
	IsActive      bool   `json:"isActive"`
	OrderIndex    int    `json:"orderIndex"`
}
