package usage

import "math"

// modelPricing is the cost per 1K tokens, split by prompt and response.
type modelPricing struct {
	Prompt   float64
	Response float64
}

const defaultPricingModel = "gpt-4o-mini"

// Pricing per 1K tokens. Unknown models fall back to the default entry.
var modelPricingTable = map[string]modelPricing{
	"gpt-4o":        {Prompt: 0.03, Response: 0.06},
	"gpt-4o-mini":   {Prompt: 0.00015, Response: 0.0006},
	"gpt-3.5-turbo": {Prompt: 0.001, Response: 0.002},
}

// EstimateTokens approximates the token count of text at ~0.25 tokens per
// character, matching the accounting the stats were calibrated against.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) * 0.25))
}

// CalculateCost prices prompt and response tokens for a model, each rounded
// to 4 decimal places.
func CalculateCost(promptTokens, responseTokens int, model string) (promptCost, responseCost, totalCost float64) {
	pricing, ok := modelPricingTable[model]
	if !ok {
		pricing = modelPricingTable[defaultPricingModel]
	}

	promptCost = round4(float64(promptTokens) * pricing.Prompt / 1000)
	responseCost = round4(float64(responseTokens) * pricing.Response / 1000)
	totalCost = round4(float64(promptTokens)*pricing.Prompt/1000 + float64(responseTokens)*pricing.Response/1000)
	return promptCost, responseCost, totalCost
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
