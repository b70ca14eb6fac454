package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/ai"
	"github.com/sells-group/reconcile-cli/internal/extraction"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/reconcile"
	storemocks "github.com/sells-group/reconcile-cli/internal/store/mocks"
)

type fakeEngine struct {
	text  string
	calls atomic.Int32
}

func (f *fakeEngine) ProcessDocumentWithID(_ context.Context, _, _ string) extraction.Output {
	f.calls.Add(1)
	return extraction.Output{
		Text:                f.text,
		Confidence:          90,
		StrategyUsed:        extraction.NamePdfToText,
		Success:             true,
		StrategiesAttempted: 2,
	}
}

type fakeAnalyzer struct {
	fields *model.AIExtractionFields
	err    error
}

func (f *fakeAnalyzer) AnalyzeDocument(_ context.Context, req ai.AnalyzeRequest) (*ai.AnalysisResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ai.AnalysisResult{Provider: "glm", Model: "glm-4.5", ExtractedFields: f.fields, Confidence: f.fields.Confidence}, nil
}

func writeDoc(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))
	return path
}

func permissiveStore(t *testing.T) *storemocks.MockStore {
	st := storemocks.NewMockStore(t)
	st.On("UpdateDocument", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	st.On("AppendLog", mock.Anything, mock.Anything).Return(nil)
	return st
}

func updates(st *storemocks.MockStore) []model.DocumentUpdate {
	var out []model.DocumentUpdate
	for _, c := range st.Calls {
		if c.Method == "UpdateDocument" {
			out = append(out, c.Arguments.Get(2).(model.DocumentUpdate))
		}
	}
	return out
}

func actions(st *storemocks.MockStore) []string {
	var out []string
	for _, c := range st.Calls {
		if c.Method == "AppendLog" {
			out = append(out, c.Arguments.Get(1).(model.DocumentLog).Action)
		}
	}
	return out
}

func TestCoordinator_ValidDocumentRouted(t *testing.T) {
	st := permissiveStore(t)
	fields := &model.AIExtractionFields{Amount: "R$ 455,79", DueDate: "10/08/2025", SupplierName: "Uber", Confidence: 90}
	c := New(&fakeEngine{text: "Recibo Uber valor R$ 455,79"}, &fakeAnalyzer{fields: fields}, reconcile.NewDetector(nil), st)

	out, err := c.Process(context.Background(), Document{ID: "doc-1", Path: writeDoc(t, "recibo.pdf"), Type: model.DocumentPago})
	require.NoError(t, err)

	assert.Equal(t, Decision{model.StatusPaidToReconcile, model.TaskReconcile, model.PriorityNormal}, out.Decision)
	require.NotNil(t, out.Verdict)
	assert.True(t, out.Verdict.IsValid)
	assert.Equal(t, "glm", out.Analysis.Provider)

	ups := updates(st)
	require.Len(t, ups, 2)
	assert.Equal(t, model.StatusProcessing, ups[0].Status)
	assert.Equal(t, "recibo.pdf", ups[0].OriginalName)
	final := ups[1]
	assert.Equal(t, model.StatusPaidToReconcile, final.Status)
	assert.Equal(t, "R$ 455,79", final.Amount)
	assert.Equal(t, "10/08/2025", final.DueDate)
	assert.Equal(t, "Uber", final.Supplier)
	assert.Contains(t, final.ExtractedData, `"amount":"R$ 455,79"`)
	assert.NotNil(t, final.ProcessedAt)

	assert.Equal(t, []string{
		model.LogProcessingStart, model.LogOCRComplete, model.LogAIComplete,
		model.LogValidationComplete, model.LogProcessingComplete,
	}, actions(st))
}

func TestCoordinator_InvalidDocumentKeepsMetadata(t *testing.T) {
	st := permissiveStore(t)
	fields := &model.AIExtractionFields{Amount: "R$ 455,79", TaxDocumentNumber: "123.456.789-08", Confidence: 90}
	c := New(&fakeEngine{text: "valor R$ 120,00 CPF 123.456.789-09"}, &fakeAnalyzer{fields: fields}, reconcile.NewDetector(nil), st)

	out, err := c.Process(context.Background(), Document{ID: "doc-2", Path: writeDoc(t, "nota.pdf"), Type: model.DocumentEmitirNF})
	require.NoError(t, err)

	assert.False(t, out.Verdict.IsValid)
	assert.Equal(t, 40, out.Verdict.Confidence)
	assert.Equal(t, model.StatusPendingReview, out.Decision.Status)
	assert.Equal(t, model.TaskReview, out.Decision.Task)

	final := updates(st)[1]
	assert.Empty(t, final.Amount)
	assert.Empty(t, final.Supplier)
	assert.NotEmpty(t, final.ExtractedData)
}

func TestCoordinator_EndToEndFilename(t *testing.T) {
	st := permissiveStore(t)
	name := "06.08.2025_PAGO_Aluguel_Transporte_CC1_R$ 455,79.pdf"
	fields := &model.AIExtractionFields{Amount: "R$ 455,79", Confidence: 85}
	c := New(&fakeEngine{text: "RECIBO valor R$ 120,00"}, &fakeAnalyzer{fields: fields}, reconcile.NewDetector(nil), st)

	out, err := c.Process(context.Background(), Document{ID: "doc-3", Path: writeDoc(t, "upload.pdf"), OriginalName: name, Type: model.DocumentPago})
	require.NoError(t, err)

	require.Len(t, out.Verdict.Inconsistencies, 1)
	assert.Equal(t, model.FieldAmount, out.Verdict.Inconsistencies[0].Field)
	assert.Equal(t, "R$ 455,79", out.Verdict.Inconsistencies[0].SourceValues.Filename)
	assert.Equal(t, out.Verdict.Confidence >= reconcile.ValidConfidence, out.Verdict.IsValid)
	assert.Equal(t, Route(model.DocumentPago, out.Verdict.IsValid), out.Decision)
}

func TestCoordinator_UnreadableFileIsFatal(t *testing.T) {
	st := permissiveStore(t)
	engine := &fakeEngine{}
	c := New(engine, &fakeAnalyzer{}, reconcile.NewDetector(nil), st)

	out, err := c.Process(context.Background(), Document{ID: "doc-4", Path: filepath.Join(t.TempDir(), "missing.pdf"), Type: model.DocumentPago})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Zero(t, engine.calls.Load())

	assert.Equal(t, model.StatusPendingReview, out.Decision.Status)
	final := updates(st)[1]
	assert.Equal(t, model.StatusPendingReview, final.Status)
	assert.Contains(t, final.Error, "missing.pdf")
	assert.Equal(t, []string{model.LogProcessingStart, model.LogProcessingError}, actions(st))
}

func TestCoordinator_AllProvidersFailed(t *testing.T) {
	st := permissiveStore(t)
	failure := errors.Join(ai.ErrAllProvidersFailed, errors.New("openai: timeout"))
	c := New(&fakeEngine{text: "R$ 10,00"}, &fakeAnalyzer{err: failure}, reconcile.NewDetector(nil), st)

	out, err := c.Process(context.Background(), Document{ID: "doc-5", Path: writeDoc(t, "a.pdf"), Type: model.DocumentAgendado})
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrAllProvidersFailed)
	assert.NotNil(t, out.Extraction)
	assert.Nil(t, out.Analysis)
	assert.Equal(t, model.StatusPendingReview, updates(st)[1].Status)
	assert.Equal(t, model.LogProcessingError, actions(st)[2])
}

type failingValidator struct{ verdict *model.ValidationVerdict }

func (f failingValidator) DetectInconsistencies(context.Context, string, string, *model.AIExtractionFields, model.FormFacts) (*model.ValidationVerdict, error) {
	return f.verdict, errors.New("db down")
}

func TestCoordinator_ValidatorStoreErrorIsNotFatal(t *testing.T) {
	st := permissiveStore(t)
	fields := &model.AIExtractionFields{Confidence: 80}
	verdict := &model.ValidationVerdict{IsValid: true, Confidence: 100, Inconsistencies: []model.Inconsistency{}}
	c := New(&fakeEngine{text: "x"}, &fakeAnalyzer{fields: fields}, failingValidator{verdict: verdict}, st)

	out, err := c.Process(context.Background(), Document{ID: "doc-6", Path: writeDoc(t, "b.pdf"), Type: "OUTRO"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusClassified, out.Decision.Status)

	_, err = New(&fakeEngine{text: "x"}, &fakeAnalyzer{fields: fields}, failingValidator{}, st).
		Process(context.Background(), Document{ID: "doc-7", Path: writeDoc(t, "c.pdf")})
	assert.Error(t, err)
}

func TestCoordinator_StoreFailuresDoNotAbort(t *testing.T) {
	st := storemocks.NewMockStore(t)
	st.On("UpdateDocument", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("locked"))
	st.On("AppendLog", mock.Anything, mock.Anything).Return(errors.New("locked"))

	fields := &model.AIExtractionFields{Amount: "R$ 10,00", Confidence: 80}
	c := New(&fakeEngine{text: "R$ 10,00"}, &fakeAnalyzer{fields: fields}, reconcile.NewDetector(nil), st)
	out, err := c.Process(context.Background(), Document{Path: writeDoc(t, "d.pdf"), Type: model.DocumentPago})
	require.NoError(t, err)
	assert.NotEmpty(t, out.DocumentID)
	assert.Equal(t, model.StatusPaidToReconcile, out.Decision.Status)
}

func TestCoordinator_ClockAndNilStore(t *testing.T) {
	base := time.Date(2025, 8, 6, 9, 0, 0, 0, time.UTC)
	ticks := 0
	clock := func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}
	fields := &model.AIExtractionFields{Confidence: 80}
	c := New(&fakeEngine{text: "ok"}, &fakeAnalyzer{fields: fields}, reconcile.NewDetector(nil), nil, WithClock(clock))

	out, err := c.Process(context.Background(), Document{Path: writeDoc(t, "e.pdf"), Type: model.DocumentPago})
	require.NoError(t, err)
	assert.Positive(t, out.ProcessingTimeMs)
	require.NotNil(t, out.Applied.ProcessedAt)
	assert.True(t, out.Applied.ProcessedAt.After(base))
}
