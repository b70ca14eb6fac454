package reconcile

import (
	"regexp"
	"strings"
	"time"
)

var (
	ocrAmountRe      = regexp.MustCompile(`R\$?\s?(\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2})?)`)
	fileCurrencyRe   = regexp.MustCompile(`R\$\s*(\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2}))`)
	fileAmountRe     = regexp.MustCompile(`(\d+[.,]\d{2})(?:\D|$)`)
	fileDottedDateRe = regexp.MustCompile(`\d{2}\.\d{2}\.\d{4}`)
	textDateRe       = regexp.MustCompile(`(\d{2})[/\-](\d{2})[/\-](\d{4})`)
	upperRunRe       = regexp.MustCompile(`[A-Z][A-Z ]+[A-Z]`)
	cnpjRe           = regexp.MustCompile(`\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}`)
	cpfRe            = regexp.MustCompile(`\d{3}\.?\d{3}\.?\d{3}-?\d{2}`)
	fileTaxIDRe      = regexp.MustCompile(`\d{2}\.?\d{3}\.?\d{3}[/\-]?\d{4}[/\-]?\d{2}`)
)

// knownSuppliers are matched case- and accent-insensitively before falling
// back to the first upper-case run of the text.
var knownSuppliers = []string{
	"uber", "ifood", "magazine luiza", "amazon", "correios", "vivo", "tim", "claro",
	"petrobrás", "shell", "ipiranga", "ambev", "coca-cola", "nestlé", "unilever",
}

var filenameNoise = map[string]bool{"pdf": true, "jpg": true, "jpeg": true, "png": true, "doc": true, "docx": true}

// OCRAmount returns the first currency amount in text, as "R$ <digits>".
func OCRAmount(text string) string {
	m := ocrAmountRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return "R$ " + m[1]
}

// FilenameAmount returns the amount encoded in a file name. Dotted dates are
// removed first so "06.08.2025" is never read as an amount.
func FilenameAmount(name string) string {
	name = fileDottedDateRe.ReplaceAllString(name, " ")
	if m := fileCurrencyRe.FindStringSubmatch(name); m != nil {
		return "R$ " + m[1]
	}
	if m := fileAmountRe.FindStringSubmatch(name); m != nil {
		return "R$ " + m[1]
	}
	return ""
}

// Dates returns every DD/MM/YYYY-like date in text, rendered with slashes.
func Dates(text string) []string {
	var out []string
	for _, m := range textDateRe.FindAllStringSubmatch(text, -1) {
		out = append(out, m[1]+"/"+m[2]+"/"+m[3])
	}
	return out
}

// FilenameDate returns the first date of a file name, either dotted or slashed.
func FilenameDate(name string) string {
	if m := fileDottedDateRe.FindString(name); m != "" {
		return strings.ReplaceAll(m, ".", "/")
	}
	if dates := Dates(name); len(dates) > 0 {
		return dates[0]
	}
	return ""
}

// ParseDate reads DD/MM/YYYY.
func ParseDate(s string) (time.Time, bool) {
	t, err := time.Parse("02/01/2006", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// OCRSupplier guesses the counterparty named in text.
func OCRSupplier(text string) string {
	folded := fold(text)
	for _, s := range knownSuppliers {
		if containsWord(folded, fold(s)) {
			return s
		}
	}
	if m := upperRunRe.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}

// containsWord reports whether needle occurs in haystack on word boundaries,
// so "tim" does not match "estimativa".
func containsWord(haystack, needle string) bool {
	for i := 0; ; {
		j := strings.Index(haystack[i:], needle)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(needle)
		if (start == 0 || !isWordByte(haystack[start-1])) && (end == len(haystack) || !isWordByte(haystack[end])) {
			return true
		}
		i = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b >= 0x80
}

// FilenameSupplier returns the first meaningful word of a file name.
func FilenameSupplier(name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	})
	for _, w := range words {
		if len([]rune(w)) > 3 && !filenameNoise[w] && !isDigits(w) {
			return w
		}
	}
	return ""
}

// TaxIDs returns every CNPJ and CPF candidate in text.
func TaxIDs(text string) []string {
	out := cnpjRe.FindAllString(text, -1)
	return append(out, cpfRe.FindAllString(text, -1)...)
}

// FilenameTaxID returns the first CNPJ-like number of a file name.
func FilenameTaxID(name string) string {
	return fileTaxIDRe.FindString(name)
}

// Digits strips everything but ASCII digits.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDigits(s string) bool {
	return s != "" && Digits(s) == s
}
