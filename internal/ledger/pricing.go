package ledger

import "strings"

// ModelPricing contains pricing per 1M tokens for a model.
type ModelPricing struct {
	InputPerMillion  float64 // Cost per 1M input tokens
	OutputPerMillion float64 // Cost per 1M output tokens
}

// DefaultModelPricing contains pricing for known Claude models.
var DefaultModelPricing = map[string]ModelPricing{
	"claude-opus-4-5-20251101":   {InputPerMillion: 5.00, OutputPerMillion: 25.00},
	"claude-opus-4-1-20250805":   {InputPerMillion: 15.00, OutputPerMillion: 75.00},
	"claude-sonnet-4-5-20250929": {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-sonnet-4-20250514":   {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-haiku-4-5-20251001":  {InputPerMillion: 1.00, OutputPerMillion: 5.00},
	"claude-3-5-haiku-20241022":  {InputPerMillion: 0.80, OutputPerMillion: 4.00},
}

// FallbackPricing is used for models missing from the table.
var FallbackPricing = ModelPricing{InputPerMillion: 3.00, OutputPerMillion: 15.00}

// Lookup returns the pricing for a model. Bedrock inference profile names
// such as "us.anthropic.claude-sonnet-4-20250514-v1:0" resolve to the
// underlying model.
func Lookup(table map[string]ModelPricing, model string) ModelPricing {
	if p, ok := table[model]; ok {
		return p
	}
	for name, p := range table {
		if strings.Contains(model, name) {
			return p
		}
	}
	return FallbackPricing
}

// Cost returns the dollar cost of the given token counts.
func (p ModelPricing) Cost(input, output int64) float64 {
	return float64(input)/1_000_000*p.InputPerMillion + float64(output)/1_000_000*p.OutputPerMillion
}
