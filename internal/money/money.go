// Package money parses and renders Brazilian real amounts.
package money

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
)

// ErrNoAmount is returned when the input carries no digits.
var ErrNoAmount = eris.New("money: no amount")

// Parse reads an amount written with either Brazilian ("1.450,00") or
// English ("1450.50", "1,450.50") separators. Currency symbols and spaces
// are ignored.
func Parse(s string) (decimal.Decimal, error) {
	var b strings.Builder
	neg := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			neg = true
		}
	}
	cleaned := strings.Trim(b.String(), ".,")
	if cleaned == "" {
		return decimal.Zero, ErrNoAmount
	}

	d, err := decimal.NewFromString(canonical(cleaned))
	if err != nil {
		return decimal.Zero, eris.Wrapf(err, "money: parse %q", s)
	}
	if neg {
		d = d.Neg()
	}
	return d, nil
}

// canonical rewrites s (digits and separators only) to a plain decimal string.
func canonical(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	var decSep byte
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			decSep = ','
		} else {
			decSep = '.'
		}
	case lastComma >= 0:
		decSep = guessSeparator(s, ',')
	case lastDot >= 0:
		decSep = guessSeparator(s, '.')
	default:
		return s
	}

	idx := -1
	if decSep != 0 {
		idx = strings.LastIndexByte(s, decSep)
	}
	var out strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case i == idx:
			out.WriteByte('.')
		case c == ',' || c == '.':
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

// guessSeparator decides whether a lone separator kind is decimal. A single
// occurrence followed by one or two digits is decimal; anything else groups
// thousands.
func guessSeparator(s string, sep byte) byte {
	if strings.Count(s, string(sep)) != 1 {
		return 0
	}
	tail := len(s) - strings.LastIndexByte(s, sep) - 1
	if tail >= 1 && tail <= 2 {
		return sep
	}
	return 0
}

// FromAny parses a JSON-decoded value: strings, numbers and json.Number.
func FromAny(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case string:
		return Parse(val)
	case float64:
		return decimal.NewFromFloat(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int64:
		return decimal.NewFromInt(val), nil
	case json.Number:
		return Parse(string(val))
	default:
		return decimal.Zero, ErrNoAmount
	}
}

// Format renders d as "R$ 1.450,00".
func Format(d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(c)
	}

	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return "R$ " + sign + grouped.String() + "," + frac
}

// Normalize parses s and renders it in the canonical format.
func Normalize(s string) (string, error) {
	d, err := Parse(s)
	if err != nil {
		return "", err
	}
	return Format(d), nil
}

// RelativeDiff returns |a-b| / max(|a|,|b|), or 0 when both are zero.
func RelativeDiff(a, b decimal.Decimal) float64 {
	hi := decimal.Max(a.Abs(), b.Abs())
	if hi.IsZero() {
		return 0
	}
	f, _ := a.Sub(b).Abs().Div(hi).Float64()
	return f
}
