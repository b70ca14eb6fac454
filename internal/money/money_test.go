package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1.450,00", "R$ 1.450,00"},
		{"R$ 1.450,00", "R$ 1.450,00"},
		{"R$455,79", "R$ 455,79"},
		{"1450.5", "R$ 1.450,50"},
		{"1,450.50", "R$ 1.450,50"},
		{"1.450", "R$ 1.450,00"},
		{"1.234.567,8", "R$ 1.234.567,80"},
		{"120", "R$ 120,00"},
		{"0,5", "R$ 0,50"},
		{"R$ 99,00.", "R$ 99,00"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Normalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_NoDigits(t *testing.T) {
	_, err := Parse("R$ ")
	assert.ErrorIs(t, err, ErrNoAmount)

	_, err = Parse("não identificado")
	assert.ErrorIs(t, err, ErrNoAmount)
}

func TestParse_Negative(t *testing.T) {
	d, err := Parse("-12,30")
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("-12.30")))
	assert.Equal(t, "R$ -12,30", Format(d))
}

func TestFromAny(t *testing.T) {
	d, err := FromAny(1450.5)
	require.NoError(t, err)
	assert.Equal(t, "R$ 1.450,50", Format(d))

	d, err = FromAny(json.Number("455.79"))
	require.NoError(t, err)
	assert.Equal(t, "R$ 455,79", Format(d))

	_, err = FromAny(true)
	assert.ErrorIs(t, err, ErrNoAmount)
}

func TestRelativeDiff(t *testing.T) {
	a := decimal.RequireFromString("120")
	b := decimal.RequireFromString("455.79")
	assert.InDelta(t, 0.7367, RelativeDiff(a, b), 0.0001)
	assert.InDelta(t, 0.7367, RelativeDiff(b, a), 0.0001)
	assert.Zero(t, RelativeDiff(decimal.Zero, decimal.Zero))
	assert.Zero(t, RelativeDiff(a, a))
}
