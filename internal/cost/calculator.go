// Package cost computes USD costs for AI token usage on pipeline runs.
package cost

import "github.com/sells-group/pim-core/internal/config"

// Calculator computes costs for API usage.
type Calculator struct {
	pricing config.PricingConfig
}

// NewCalculator creates a Calculator with the given pricing.
func NewCalculator(pricing config.PricingConfig) *Calculator {
	if pricing.Anthropic == nil {
		pricing = DefaultPricing()
	}
	return &Calculator{pricing: pricing}
}

// Claude computes the cost for a Claude API call. Unknown models cost zero.
func (c *Calculator) Claude(model string, input, output int64) float64 {
	rate, ok := c.pricing.Anthropic[model]
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// DefaultPricing returns the default per-model rates (USD per million tokens).
func DefaultPricing() config.PricingConfig {
	return config.PricingConfig{
		Anthropic: map[string]config.ModelPricing{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
	}
}
