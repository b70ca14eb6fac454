package cost

import "sort"

// Rates holds per-model token pricing.
type Rates struct {
	Models map[string]ModelRate `yaml:"models" mapstructure:"models"`
}

// ModelRate holds per-model token pricing (USD per million tokens).
type ModelRate struct {
	Provider string  `yaml:"provider" mapstructure:"provider"`
	Input    float64 `yaml:"input" mapstructure:"input"`
	Output   float64 `yaml:"output" mapstructure:"output"`
}

// PerKTokens is the blended price per thousand tokens, assuming an even
// input/output split. The provider roster stores it as CostPerKTokens.
func (r ModelRate) PerKTokens() float64 {
	return (r.Input + r.Output) / 2 / 1000
}

// Calculator computes costs for provider usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	if rates.Models == nil {
		rates.Models = map[string]ModelRate{}
	}
	return &Calculator{rates: rates}
}

// Rate returns the pricing of model.
func (c *Calculator) Rate(model string) (ModelRate, bool) {
	r, ok := c.rates.Models[model]
	return r, ok
}

// Known reports whether model is in the catalog.
func (c *Calculator) Known(model string) bool {
	_, ok := c.rates.Models[model]
	return ok
}

// Cost computes the USD cost of one call. ok is false for unknown models.
func (c *Calculator) Cost(model string, input, output int) (usd float64, ok bool) {
	rate, ok := c.rates.Models[model]
	if !ok {
		return 0, false
	}
	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	return inCost + outCost, true
}

// Models lists the catalog for provider, or every model when provider is empty.
func (c *Calculator) Models(provider string) []string {
	var out []string
	for name, r := range c.rates.Models {
		if provider == "" || r.Provider == provider {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// WithOverrides returns rates with override entries replacing or extending the defaults.
func (r Rates) WithOverrides(override map[string]ModelRate) Rates {
	merged := make(map[string]ModelRate, len(r.Models)+len(override))
	for k, v := range r.Models {
		merged[k] = v
	}
	for k, v := range override {
		if base, ok := merged[k]; ok && v.Provider == "" {
			v.Provider = base.Provider
		}
		merged[k] = v
	}
	return Rates{Models: merged}
}

// DefaultRates returns the default pricing catalog.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"glm-4.5":                   {Provider: "glm", Input: 0.6, Output: 2.2},
			"glm-4.5-air":               {Provider: "glm", Input: 0.2, Output: 1.1},
			"gpt-4o-mini":               {Provider: "openai", Input: 0.15, Output: 0.6},
			"gpt-4o":                    {Provider: "openai", Input: 2.5, Output: 10},
			"gpt-4-turbo":               {Provider: "openai", Input: 10, Output: 30},
			"claude-haiku-4-5-20251001": {Provider: "anthropic", Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5":         {Provider: "anthropic", Input: 3.00, Output: 15.00},
		},
	}
}
