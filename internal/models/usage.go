package models

// UsageSource identifies which channel triggered an LLM call.
type UsageSource string

const (
	UsageSourceWeb      UsageSource = "web"
	UsageSourceWhatsApp UsageSource = "whatsapp"
)

// UsageRecord is an immutable accounting entry for one completed LLM call.
type UsageRecord struct {
	ID             string      `json:"id"`
	Timestamp      string      `json:"timestamp"`
	ToolID         string      `json:"toolId"`
	Model          string      `json:"model"`
	UserID         string      `json:"userId"`
	Source         UsageSource `json:"source"`
	PromptTokens   int         `json:"promptTokens"`
	ResponseTokens int         `json:"responseTokens"`
	TotalTokens    int         `json:"totalTokens"`
	PromptCost     float64     `json:"promptCost"`
	ResponseCost   float64     `json:"responseCost"`
	TotalCost      float64     `json:"totalCost"`
}

// UsageTotals aggregates a set of usage records.
type UsageTotals struct {
	Requests            int     `json:"requests"`
	Tokens              int     `json:"tokens"`
	Cost                float64 `json:"cost"`
	AvgCostPerRequest   float64 `json:"avgCostPerRequest"`
	AvgTokensPerRequest int     `json:"avgTokensPerRequest"`
}

// UsageGroup aggregates records sharing one grouping key (tool, model, source).
type UsageGroup struct {
	Requests int     `json:"requests"`
	Tokens   int     `json:"tokens"`
	Cost     float64 `json:"cost"`
}

// UsageDay is one entry of the zero-filled daily time series.
type UsageDay struct {
	Date     string  `json:"date"`
	Requests int     `json:"requests"`
	Tokens   int     `json:"tokens"`
	Cost     float64 `json:"cost"`
}

// UsageStats is the full report shape returned by the ledger.
type UsageStats struct {
	Period         string               `json:"period"`
	Total          UsageTotals          `json:"total"`
	ByTool         map[string]UsageGroup `json:"byTool"`
	ByModel        map[string]UsageGroup `json:"byModel"`
	BySource       map[string]UsageGroup `json:"bySource"`
	DailyBreakdown []UsageDay           `json:"dailyBreakdown"`
	RecentActivity []UsageRecord        `json:"recentActivity"`
}
