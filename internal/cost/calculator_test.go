package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/pim-core/internal/config"
)

func TestClaude_KnownModel(t *testing.T) {
	c := NewCalculator(config.PricingConfig{
		Anthropic: map[string]config.ModelPricing{
			"test-model": {Input: 3.00, Output: 15.00},
		},
	})

	got := c.Claude("test-model", 1_000_000, 1_000_000)
	assert.InDelta(t, 18.00, got, 1e-9)
}

func TestClaude_UnknownModel(t *testing.T) {
	c := NewCalculator(DefaultPricing())
	assert.Zero(t, c.Claude("no-such-model", 1000, 1000))
}

func TestClaude_DefaultsWhenEmpty(t *testing.T) {
	c := NewCalculator(config.PricingConfig{})
	got := c.Claude("claude-sonnet-4-5-20250929", 2_000_000, 0)
	assert.InDelta(t, 6.00, got, 1e-9)
}
