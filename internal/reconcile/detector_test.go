package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/model"
)

type fakeStore struct {
	calls map[string][]model.Inconsistency
	err   error
}

func (s *fakeStore) ReplaceInconsistencies(_ context.Context, id string, set []model.Inconsistency) error {
	if s.calls == nil {
		s.calls = map[string][]model.Inconsistency{}
	}
	s.calls[id] = set
	return s.err
}

func TestEvaluate_AmountHigh(t *testing.T) {
	v := Evaluate("RECIBO R$ 120,00", &model.AIExtractionFields{Amount: "R$ 455,79"}, model.FormFacts{Filename: "doc.pdf"})

	require.Len(t, v.Inconsistencies, 1)
	inc := v.Inconsistencies[0]
	assert.Equal(t, model.FieldAmount, inc.Field)
	assert.Equal(t, model.SeverityHigh, inc.Severity)
	assert.Equal(t, "R$ 120,00", inc.SourceValues.OCR)
	assert.Equal(t, "R$ 455,79", inc.SourceValues.AI)
	assert.Equal(t, 70, v.Confidence)
	assert.True(t, v.IsValid)
}

func TestEvaluate_AmountMedium(t *testing.T) {
	v := Evaluate("Total R$ 100,00", &model.AIExtractionFields{Amount: "R$ 110,00"}, model.FormFacts{})
	require.Len(t, v.Inconsistencies, 1)
	assert.Equal(t, model.SeverityMedium, v.Inconsistencies[0].Severity)
	assert.Equal(t, 85, v.Confidence)
}

func TestEvaluate_FilenamePairFlags(t *testing.T) {
	v := Evaluate("Total R$ 100,00", &model.AIExtractionFields{Amount: "R$ 100,00"}, model.FormFacts{Filename: "nota_R$ 300,00.pdf"})
	require.Len(t, v.Inconsistencies, 1)
	assert.Equal(t, model.SeverityHigh, v.Inconsistencies[0].Severity)
	assert.Equal(t, "R$ 300,00", v.Inconsistencies[0].SourceValues.Filename)
}

func TestEvaluate_FormOverridesFilenameAmount(t *testing.T) {
	form := model.FormFacts{Filename: "nota_R$ 300,00.pdf", Amount: "100,00"}
	v := Evaluate("Total R$ 100,00", &model.AIExtractionFields{Amount: "R$ 100,00"}, form)
	assert.Empty(t, v.Inconsistencies)
	assert.Equal(t, 100, v.Confidence)
	assert.True(t, v.IsValid)
}

func TestEvaluate_EndToEndFilename(t *testing.T) {
	form := model.FormFacts{Filename: "06.08.2025_PAGO_Aluguel_Transporte_CC1_R$ 455,79.pdf"}
	fields := &model.AIExtractionFields{Amount: "R$ 455,79", PaymentDate: "06/08/2025"}

	v := Evaluate("RECIBO DE PAGAMENTO\nData: 06/08/2025\nValor R$ 120,00", fields, form)

	require.Len(t, v.Inconsistencies, 1)
	inc := v.Inconsistencies[0]
	assert.Equal(t, model.FieldAmount, inc.Field)
	assert.Equal(t, "R$ 455,79", inc.SourceValues.Filename)
	conf, valid := Score(v.Inconsistencies)
	assert.Equal(t, conf, v.Confidence)
	assert.Equal(t, valid, v.IsValid)
}

func TestEvaluate_TaxIDOneDigitOff(t *testing.T) {
	v := Evaluate("CPF: 123.456.789-09", &model.AIExtractionFields{TaxDocumentNumber: "123.456.789-08"}, model.FormFacts{})
	require.Len(t, v.Inconsistencies, 1)
	assert.Equal(t, model.FieldDocumentNumber, v.Inconsistencies[0].Field)
	assert.Equal(t, model.SeverityHigh, v.Inconsistencies[0].Severity)
}

func TestEvaluate_TaxIDMatches(t *testing.T) {
	v := Evaluate("CNPJ 12.345.678/0001-90", &model.AIExtractionFields{TaxDocumentNumber: "12345678000190"}, model.FormFacts{})
	assert.Empty(t, v.Inconsistencies)

	v = Evaluate("CNPJ 12.345.678/0001-90", &model.AIExtractionFields{}, model.FormFacts{TaxID: "12.345.678/0001-91"})
	require.Len(t, v.Inconsistencies, 1)
	assert.Equal(t, "12.345.678/0001-91", v.Inconsistencies[0].SourceValues.Form)
}

func TestEvaluate_Dates(t *testing.T) {
	v := Evaluate("vencimento 10/01/2025", &model.AIExtractionFields{DueDate: "2024-01-05"}, model.FormFacts{})
	require.Len(t, v.Inconsistencies, 1)
	assert.Equal(t, model.FieldDate, v.Inconsistencies[0].Field)
	assert.Equal(t, model.SeverityHigh, v.Inconsistencies[0].Severity)

	v = Evaluate("vencimento 10-01-2025", &model.AIExtractionFields{DueDate: "01/03/2025"}, model.FormFacts{})
	require.Len(t, v.Inconsistencies, 1)
	assert.Equal(t, model.SeverityMedium, v.Inconsistencies[0].Severity)

	v = Evaluate("vencimento 10/01/2025", &model.AIExtractionFields{}, model.FormFacts{Date: "20/01/2025"})
	assert.Empty(t, v.Inconsistencies)
}

func TestEvaluate_Supplier(t *testing.T) {
	v := Evaluate("pagamento uber viagem", &model.AIExtractionFields{SupplierName: "Padaria Central"}, model.FormFacts{})
	require.Len(t, v.Inconsistencies, 1)
	assert.Equal(t, model.SeverityHigh, v.Inconsistencies[0].Severity)
	assert.Equal(t, "uber", v.Inconsistencies[0].SourceValues.OCR)

	v = Evaluate("compra amazon", &model.AIExtractionFields{SupplierName: "amazon.com.br"}, model.FormFacts{})
	require.Len(t, v.Inconsistencies, 1)
	assert.Equal(t, model.SeverityMedium, v.Inconsistencies[0].Severity)

	v = Evaluate("compra amazon", &model.AIExtractionFields{}, model.FormFacts{Supplier: "Amazon"})
	assert.Empty(t, v.Inconsistencies)
}

func TestEvaluate_NilFields(t *testing.T) {
	v := Evaluate("R$ 10,00", nil, model.FormFacts{})
	assert.NotNil(t, v.Inconsistencies)
	assert.Empty(t, v.Inconsistencies)
	assert.True(t, v.IsValid)
}

func TestScore(t *testing.T) {
	conf, valid := Score(nil)
	assert.Equal(t, 100, conf)
	assert.True(t, valid)

	conf, valid = Score([]model.Inconsistency{{Severity: model.SeverityHigh}, {Severity: model.SeverityMedium}})
	assert.Equal(t, 55, conf)
	assert.False(t, valid)

	conf, _ = Score([]model.Inconsistency{{Severity: model.SeverityLow}})
	assert.Equal(t, 95, conf)

	high := model.Inconsistency{Severity: model.SeverityHigh}
	conf, valid = Score([]model.Inconsistency{high, high, high, high})
	assert.Zero(t, conf)
	assert.False(t, valid)
}

func TestDetector_ReplacesStoredSet(t *testing.T) {
	store := &fakeStore{}
	d := NewDetector(store)

	v, err := d.DetectInconsistencies(context.Background(), "doc-1", "R$ 120,00", &model.AIExtractionFields{Amount: "R$ 455,79"}, model.FormFacts{})
	require.NoError(t, err)
	assert.Equal(t, v.Inconsistencies, store.calls["doc-1"])

	_, err = d.DetectInconsistencies(context.Background(), "doc-1", "R$ 455,79", &model.AIExtractionFields{Amount: "R$ 455,79"}, model.FormFacts{})
	require.NoError(t, err)
	assert.Empty(t, store.calls["doc-1"])
}

func TestDetector_StoreErrorKeepsVerdict(t *testing.T) {
	d := NewDetector(&fakeStore{err: errors.New("db down")})
	v, err := d.DetectInconsistencies(context.Background(), "doc-2", "", nil, model.FormFacts{})
	require.Error(t, err)
	require.NotNil(t, v)
	assert.True(t, v.IsValid)
}
