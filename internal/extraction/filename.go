package extraction

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// NoFilenameDataText is emitted when no pattern matched the filename.
const NoFilenameDataText = "Nenhum dado estruturado encontrado no nome do arquivo"

// Weight of each pattern class in the filename confidence.
const (
	weightDate        = 30
	weightCurrency    = 25
	weightTaxID       = 20
	weightCategory    = 15
	weightDescription = 10
)

var (
	filenameDateRe     = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4})`)
	filenameCurrencyRe = regexp.MustCompile(`R\$?\s?(\d{1,3}(?:\.\d{3})*(?:,\d{2})?)`)
	filenameTaxIDRe    = regexp.MustCompile(`\d{2}\.\d{3}\.\d{3}/\d{4}-\d{2}|\d{3}\.\d{3}\.\d{3}-\d{2}`)
	filenameCategoryRe = regexp.MustCompile(`(?i)transporte|uber|taxi|combustivel|gasolina|manutencao|pneu|pecas|aluguel|locacao|energia|agua|telefone|internet|material|escritorio`)
	filenameNoiseRe    = regexp.MustCompile(`R\$|[\d.,/\-_$]`)
)

// analyzeFilename derives pseudo-text from structured hints in the file name.
func analyzeFilename(path string) model.ExtractionResult {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var (
		lines    []string
		patterns []string
		conf     int
	)

	var value, date, taxID string
	if m := filenameCurrencyRe.FindStringSubmatch(name); m != nil {
		value = "R$ " + m[1]
		patterns = append(patterns, "currency")
		conf += weightCurrency
	}
	if m := filenameDateRe.FindStringSubmatch(name); m != nil {
		date = m[1] + "/" + m[2] + "/" + m[3]
		patterns = append(patterns, "date")
		conf += weightDate
	}
	if m := filenameTaxIDRe.FindString(name); m != "" {
		taxID = m
		patterns = append(patterns, "document")
		conf += weightTaxID
	}

	var categories []string
	seen := map[string]bool{}
	for _, m := range filenameCategoryRe.FindAllString(name, -1) {
		c := strings.ToLower(m)
		if !seen[c] {
			seen[c] = true
			categories = append(categories, c)
		}
	}
	if len(categories) > 0 {
		patterns = append(patterns, "category")
		conf += weightCategory
	}

	description := strings.Join(strings.Fields(filenameNoiseRe.ReplaceAllString(name, " ")), " ")
	if utf8.RuneCountInString(description) > 5 {
		patterns = append(patterns, "description")
		conf += weightDescription
	} else {
		description = ""
	}

	if value != "" {
		lines = append(lines, "Valor: "+value)
	}
	if date != "" {
		lines = append(lines, "Data: "+date)
	}
	if len(categories) > 0 {
		lines = append(lines, "Categoria: "+strings.Join(categories, ", "))
	}
	if description != "" {
		lines = append(lines, "Descrição: "+description)
	}
	if taxID != "" {
		lines = append(lines, "Documento: "+taxID)
	}

	text := strings.Join(lines, "\n")
	if text == "" {
		text = NoFilenameDataText
	}
	if conf > 100 {
		conf = 100
	}
	return model.ExtractionResult{
		Text:           text,
		Confidence:     conf,
		CharacterCount: utf8.RuneCountInString(text),
		Metadata:       map[string]any{model.MetaPatternsFound: patterns},
	}
}
