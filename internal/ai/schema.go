package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/money"
)

// Normalization failures. Both map to a fallback reason.
var (
	ErrInvalidJSON   = eris.New("ai: invalid json")
	ErrInvalidSchema = eris.New("ai: invalid schema")
)

// DefaultConfidence is used when a provider omits or garbles confidence.
const DefaultConfidence = 75

const unidentified = "não_identificado"

const fieldsSchema = `{
  "type": "object",
  "required": ["confidence"],
  "properties": {
    "amount": {"type": "string", "pattern": "^R\\$ \\d{1,3}(\\.\\d{3})*,\\d{2}$"},
    "confidence": {"type": "integer", "minimum": 0, "maximum": 100},
    "supplier_name": {"type": "string", "minLength": 1},
    "counterparty_relation": {"enum": ["SUPPLIER", "CLIENT"]}
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("fields.json", strings.NewReader(fieldsSchema)); err != nil {
		panic(err)
	}
	return c.MustCompile("fields.json")
}

// Aliases accepted for each canonical field, in lookup order.
var fieldAliases = []struct {
	aliases []string
	set     func(*model.AIExtractionFields, string)
}{
	{[]string{"valor", "amount", "valor_total"}, func(f *model.AIExtractionFields, v string) { f.Amount = v }},
	{[]string{"data_pagamento", "payment_date"}, func(f *model.AIExtractionFields, v string) { f.PaymentDate = v }},
	{[]string{"data_vencimento", "due_date"}, func(f *model.AIExtractionFields, v string) { f.DueDate = v }},
	{[]string{"data_emissao", "issue_date"}, func(f *model.AIExtractionFields, v string) { f.IssueDate = v }},
	{[]string{"competencia", "accrual_period"}, func(f *model.AIExtractionFields, v string) { f.AccrualPeriod = v }},
	{[]string{"fornecedor", "supplier", "supplier_name"}, func(f *model.AIExtractionFields, v string) { f.SupplierName = v }},
	{[]string{"descricao", "description"}, func(f *model.AIExtractionFields, v string) { f.Description = v }},
	{[]string{"categoria", "category"}, func(f *model.AIExtractionFields, v string) { f.Category = v }},
	{[]string{"centro_custo", "cost_center"}, func(f *model.AIExtractionFields, v string) { f.CostCenter = v }},
	{[]string{"documento", "cnpj", "cpf", "tax_document_number"}, func(f *model.AIExtractionFields, v string) { f.TaxDocumentNumber = v }},
	{[]string{"cliente_fornecedor", "counterparty"}, func(f *model.AIExtractionFields, v string) { f.Counterparty = v }},
	{[]string{"observacoes", "notes"}, func(f *model.AIExtractionFields, v string) { f.Notes = v }},
}

var (
	isoDateRe  = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	dashDateRe = regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{4})$`)
	brDateRe   = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)
)

// Normalize parses a provider reply into canonical fields and validates them.
func Normalize(raw []byte) (*model.AIExtractionFields, error) {
	doc, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}

	fields := &model.AIExtractionFields{}
	for _, fa := range fieldAliases {
		for _, key := range fa.aliases {
			if v := stringValue(doc[key]); v != "" {
				fa.set(fields, v)
				break
			}
		}
	}

	if raw := firstValue(doc, fieldAliases[0].aliases...); raw != nil {
		if d, err := money.FromAny(raw); err == nil {
			fields.Amount = money.Format(d)
		}
	}
	fields.PaymentDate = NormalizeDate(fields.PaymentDate)
	fields.DueDate = NormalizeDate(fields.DueDate)
	fields.IssueDate = NormalizeDate(fields.IssueDate)
	fields.Confidence = coerceConfidence(doc["confidence"])
	fields.CounterpartyRelation = relation(firstString(doc, "tipo_relacao", "counterparty_relation"))

	if err := validateFields(fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func decodeObject(raw []byte) (map[string]any, error) {
	body := stripFences(raw)
	if len(body) == 0 {
		return nil, eris.Wrap(ErrInvalidJSON, "empty reply")
	}
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err == nil && doc != nil {
		return doc, nil
	}
	repaired := repairJSON(raw)
	if err := json.Unmarshal(repaired, &doc); err != nil || doc == nil {
		return nil, eris.Wrapf(ErrInvalidJSON, "decode %d bytes", len(raw))
	}
	return doc, nil
}

// stripFences removes a surrounding markdown code block.
func stripFences(raw []byte) []byte {
	s := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(s, []byte("```")) {
		return s
	}
	s = bytes.TrimPrefix(s, []byte("```"))
	s = bytes.TrimPrefix(s, []byte("json"))
	s = bytes.TrimSuffix(bytes.TrimSpace(s), []byte("```"))
	return bytes.TrimSpace(s)
}

// repairJSON applies the usual fixes for near-JSON replies: fences, single
// quotes, and missing outer braces.
func repairJSON(raw []byte) []byte {
	s := string(stripFences(raw))
	s = strings.ReplaceAll(s, "'", `"`)
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		s = "{" + s
	}
	if !strings.HasSuffix(s, "}") {
		s = strings.TrimRight(s, ", \n\t") + "}"
	}
	return []byte(s)
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		s := strings.TrimSpace(val)
		if s == unidentified {
			return ""
		}
		return s
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func firstValue(doc map[string]any, keys ...string) any {
	for _, k := range keys {
		if stringValue(doc[k]) != "" {
			return doc[k]
		}
	}
	return nil
}

func firstString(doc map[string]any, keys ...string) string {
	for _, k := range keys {
		if v := stringValue(doc[k]); v != "" {
			return v
		}
	}
	return ""
}

// coerceConfidence accepts numbers, numeric strings and the Portuguese
// words alta/média/baixa.
func coerceConfidence(v any) int {
	switch val := v.(type) {
	case float64:
		return clamp(int(math.Round(val)))
	case string:
		s := strings.ToLower(strings.TrimSpace(val))
		switch s {
		case "alta", "high":
			return 90
		case "media", "média", "medium":
			return 70
		case "baixa", "low":
			return 50
		}
		s = strings.TrimSuffix(s, "%")
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return clamp(int(math.Round(f)))
		}
	}
	return DefaultConfidence
}

func clamp(c int) int {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}

func relation(s string) model.CounterpartyRelation {
	switch strings.ToLower(s) {
	case "fornecedor", "supplier":
		return model.RelationSupplier
	case "cliente", "client":
		return model.RelationClient
	}
	return ""
}

// NormalizeDate converts YYYY-MM-DD and DD-MM-YYYY to DD/MM/YYYY. Other
// inputs are returned unchanged; the unidentified marker becomes empty.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == unidentified:
		return ""
	case brDateRe.MatchString(s):
		return s
	}
	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		return m[3] + "/" + m[2] + "/" + m[1]
	}
	if m := dashDateRe.FindStringSubmatch(s); m != nil {
		return m[1] + "/" + m[2] + "/" + m[3]
	}
	return s
}

func validateFields(f *model.AIExtractionFields) error {
	b, err := json.Marshal(f)
	if err != nil {
		return eris.Wrap(err, "ai: marshal fields")
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return eris.Wrap(err, "ai: unmarshal fields")
	}
	if err := compiledSchema.Validate(v); err != nil {
		return eris.Wrapf(ErrInvalidSchema, "%v", err)
	}
	return nil
}
