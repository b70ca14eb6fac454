package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCost(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(DefaultRates())

	tests := []struct {
		name   string
		model  string
		input  int
		output int
		want   float64
		known  bool
	}{
		{name: "gpt-4o-mini", model: "gpt-4o-mini", input: 1000000, output: 100000, want: 0.15 + 0.06, known: true},
		{name: "glm-4.5", model: "glm-4.5", input: 2000, output: 500, want: 0.0012 + 0.0011, known: true},
		{name: "haiku", model: "claude-haiku-4-5-20251001", input: 1000000, output: 0, want: 0.80, known: true},
		{name: "unknown model", model: "mystery", input: 1000, output: 1000, want: 0, known: false},
		{name: "zero tokens", model: "gpt-4o", want: 0, known: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := calc.Cost(tt.model, tt.input, tt.output)
			assert.Equal(t, tt.known, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestModels(t *testing.T) {
	calc := NewCalculator(DefaultRates())
	assert.Equal(t, []string{"glm-4.5", "glm-4.5-air"}, calc.Models("glm"))
	assert.Equal(t, []string{"gpt-4-turbo", "gpt-4o", "gpt-4o-mini"}, calc.Models("openai"))
	assert.Len(t, calc.Models(""), 7)
	assert.True(t, calc.Known("gpt-4o"))
	assert.False(t, calc.Known("gpt-5"))
}

func TestWithOverrides(t *testing.T) {
	rates := DefaultRates().WithOverrides(map[string]ModelRate{
		"gpt-4o-mini": {Input: 1, Output: 2},
		"local-llm":   {Provider: "openai", Input: 0, Output: 0},
	})
	calc := NewCalculator(rates)

	r, ok := calc.Rate("gpt-4o-mini")
	assert.True(t, ok)
	assert.Equal(t, "openai", r.Provider, "provider inherited from the default entry")
	assert.Equal(t, 1.0, r.Input)
	assert.True(t, calc.Known("local-llm"))

	_, ok = NewCalculator(DefaultRates()).Rate("local-llm")
	assert.False(t, ok, "defaults are not mutated")
}

func TestPerKTokens(t *testing.T) {
	assert.InDelta(t, 0.000375, ModelRate{Input: 0.15, Output: 0.6}.PerKTokens(), 1e-12)
	assert.Zero(t, NewCalculator(Rates{}).Models(""))
}
