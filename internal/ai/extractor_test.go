package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
)

const validReply = `{"valor": "455,79", "data_pagamento": "2025-08-06", "fornecedor": "LOCADORA SA", "confidence": "alta"}`

type fakeAdapter struct {
	name  string
	reply *Reply
	err   error
	block bool
	hook  func()

	mu    sync.Mutex
	calls int
	last  Request
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Complete(ctx context.Context, req Request) (*Reply, error) {
	f.mu.Lock()
	f.calls++
	f.last = req
	f.mu.Unlock()
	if f.hook != nil {
		f.hook()
	}
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

type memRecorder struct {
	mu   sync.Mutex
	runs []model.AIRunRecord
	err  error
}

func (m *memRecorder) AppendAIRun(_ context.Context, rec model.AIRunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, rec)
	return m.err
}

func twoProviders(t *testing.T) *Roster {
	t.Helper()
	r, err := NewRoster([]model.ProviderConfig{
		{Name: "a", Kind: KindOpenAI, Enabled: true, Priority: 1, Model: "gpt-4o-mini", CostPerKTokens: 0.0004},
		{Name: "b", Kind: KindGLM, Enabled: true, Priority: 2, Model: "glm-4.5", CostPerKTokens: 0.0014},
	}, nil)
	require.NoError(t, err)
	return r
}

func TestAnalyze_FallsBackOnTransportFailure(t *testing.T) {
	roster := twoProviders(t)
	a := &fakeAdapter{name: "a", err: context.DeadlineExceeded}
	b := &fakeAdapter{name: "b", reply: &Reply{Content: validReply, TokensIn: 1000, TokensOut: 200, Model: "glm-4.5"}}
	rec := &memRecorder{}
	ex := NewExtractor(roster, map[string]Adapter{"a": a, "b": b}, WithRecorder(rec))

	res, err := ex.AnalyzeDocument(context.Background(), AnalyzeRequest{
		DocumentID: "doc-1", Text: "R$ 455,79", Filename: "06.08.2025_PG_Aluguel.pdf", OCRStrategy: "PDFTOTEXT_COMMAND",
	})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Provider)
	assert.Equal(t, model.FallbackTimeout, res.FallbackReason)
	assert.Equal(t, "R$ 455,79", res.ExtractedFields.Amount)
	assert.Equal(t, "06/08/2025", res.ExtractedFields.PaymentDate)
	assert.Equal(t, 90, res.Confidence)
	assert.InDelta(t, 0.0006+0.00044, res.ProcessingCost, 1e-9)

	require.Len(t, rec.runs, 2)
	assert.Equal(t, "a", rec.runs[0].Provider)
	assert.False(t, rec.runs[0].Success)
	assert.Equal(t, model.FallbackTimeout, rec.runs[0].FallbackReason)
	assert.NotEmpty(t, rec.runs[0].Error)
	assert.Equal(t, "b", rec.runs[1].Provider)
	assert.True(t, rec.runs[1].Success)
	assert.Equal(t, "PDFTOTEXT_COMMAND", rec.runs[1].OCRStrategy)
	assert.Equal(t, 90, rec.runs[1].Confidence)
	assert.NotEqual(t, rec.runs[0].ID, rec.runs[1].ID)

	pa, _ := roster.Get("a")
	pb, _ := roster.Get("b")
	assert.Equal(t, model.ProviderError, pa.Status)
	assert.Equal(t, model.ProviderOnline, pb.Status)
	assert.Equal(t, 1, pa.Stats.FailureReasons[model.FallbackTimeout])
	assert.Equal(t, 100.0, pb.Stats.SuccessRate)

	assert.Equal(t, SystemPrompt, b.last.System)
	assert.Equal(t, "glm-4.5", b.last.Model)
	assert.Contains(t, b.last.Prompt, "06/08/2025")
}

func TestAnalyze_FirstProviderWinsWithoutReason(t *testing.T) {
	roster := twoProviders(t)
	a := &fakeAdapter{name: "a", reply: &Reply{Content: validReply}}
	b := &fakeAdapter{name: "b"}
	ex := NewExtractor(roster, map[string]Adapter{"a": a, "b": b})

	res, err := ex.AnalyzeDocument(context.Background(), AnalyzeRequest{DocumentID: "d"})
	require.NoError(t, err)
	assert.Equal(t, "a", res.Provider)
	assert.Equal(t, model.FallbackNone, res.FallbackReason)
	assert.Zero(t, b.calls)
	assert.Positive(t, res.TokensIn, "usage estimated when the provider omits it")
	assert.Positive(t, res.TokensOut)
}

func TestAnalyze_AllFail(t *testing.T) {
	roster := twoProviders(t)
	a := &fakeAdapter{name: "a", reply: &Reply{Content: "desculpe, não consigo"}}
	b := &fakeAdapter{name: "b", reply: &Reply{Content: `{"valor": "R$ --", "confidence": 80}`}}
	rec := &memRecorder{err: errors.New("db down")}
	ex := NewExtractor(roster, map[string]Adapter{"a": a, "b": b}, WithRecorder(rec))

	_, err := ex.AnalyzeDocument(context.Background(), AnalyzeRequest{DocumentID: "d"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.ErrorIs(t, err, ErrInvalidSchema, "wraps the last provider error")
	assert.Contains(t, err.Error(), "2 attempts")

	require.Len(t, rec.runs, 2, "recorder errors do not stop the cascade")
	assert.Equal(t, model.FallbackInvalidJSON, rec.runs[0].FallbackReason)
	assert.Equal(t, model.FallbackInvalidSchema, rec.runs[1].FallbackReason)
}

func TestAnalyze_MalformedAmountFallsBackWithSchemaReason(t *testing.T) {
	roster := twoProviders(t)
	a := &fakeAdapter{name: "a", reply: &Reply{Content: `{"valor": "cento e vinte", "confidence": 80}`}}
	b := &fakeAdapter{name: "b", reply: &Reply{Content: `{"fornecedor": "Uber", "data_pagamento": "2025-07-19", "confidence": "alta"}`}}
	rec := &memRecorder{}
	ex := NewExtractor(roster, map[string]Adapter{"a": a, "b": b}, WithRecorder(rec))

	res, err := ex.AnalyzeDocument(context.Background(), AnalyzeRequest{DocumentID: "d"})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Provider)
	assert.Equal(t, model.FallbackInvalidSchema, res.FallbackReason)
	assert.Empty(t, res.ExtractedFields.Amount, "a reply without an amount is accepted")
	assert.Equal(t, "Uber", res.ExtractedFields.SupplierName)

	require.Len(t, rec.runs, 2)
	assert.Equal(t, model.FallbackInvalidSchema, rec.runs[0].FallbackReason)
	assert.True(t, rec.runs[1].Success)
}

func TestAnalyze_ProviderRemovedDuringAttempt(t *testing.T) {
	roster := twoProviders(t)
	a := &fakeAdapter{name: "a", reply: &Reply{Content: validReply}}
	a.hook = func() {
		require.NoError(t, roster.Import(strings.NewReader(
			"providers:\n  - name: b\n    kind: glm\n    enabled: true\n    priority: 1\n    model: glm-4.5\n",
		)))
	}
	ex := NewExtractor(roster, map[string]Adapter{"a": a})

	res, err := ex.AnalyzeDocument(context.Background(), AnalyzeRequest{DocumentID: "d"})
	require.NoError(t, err)
	assert.Equal(t, "a", res.Provider)
	_, ok := roster.Get("a")
	assert.False(t, ok)
}

func TestAnalyze_DisabledSkippedStatusIgnored(t *testing.T) {
	roster := twoProviders(t)
	_, err := roster.Toggle("a")
	require.NoError(t, err)
	require.NoError(t, roster.SetStatus("b", model.ProviderOffline))

	a := &fakeAdapter{name: "a", reply: &Reply{Content: validReply}}
	b := &fakeAdapter{name: "b", reply: &Reply{Content: validReply}}
	ex := NewExtractor(roster, map[string]Adapter{"a": a, "b": b})

	res, err := ex.AnalyzeDocument(context.Background(), AnalyzeRequest{})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Provider)
	assert.Equal(t, model.FallbackNone, res.FallbackReason, "b was the first provider tried")
	assert.Zero(t, a.calls)
}

func TestAnalyze_NoEnabledProviders(t *testing.T) {
	roster, err := NewRoster(nil, nil)
	require.NoError(t, err)
	_, err = NewExtractor(roster, nil).AnalyzeDocument(context.Background(), AnalyzeRequest{})
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
}

func TestAnalyze_PerAttemptTimeout(t *testing.T) {
	roster := twoProviders(t)
	a := &fakeAdapter{name: "a", block: true}
	b := &fakeAdapter{name: "b", reply: &Reply{Content: validReply}}
	ex := NewExtractor(roster, map[string]Adapter{"a": a, "b": b}, WithTimeout(20*time.Millisecond))

	res, err := ex.AnalyzeDocument(context.Background(), AnalyzeRequest{})
	require.NoError(t, err)
	assert.Equal(t, "b", res.Provider)
	assert.Equal(t, model.FallbackTimeout, res.FallbackReason)
}

func TestAnalyze_MissingAdapterIsProviderError(t *testing.T) {
	roster := twoProviders(t)
	b := &fakeAdapter{name: "b", reply: &Reply{Content: validReply}}
	res, err := NewExtractor(roster, map[string]Adapter{"b": b}).AnalyzeDocument(context.Background(), AnalyzeRequest{})
	require.NoError(t, err)
	assert.Equal(t, model.FallbackProviderError, res.FallbackReason)
}

func TestAnalyze_OpenBreakerMarksOffline(t *testing.T) {
	roster := twoProviders(t)
	a := &fakeAdapter{name: "a", err: errors.New("401 unauthorized")}
	b := &fakeAdapter{name: "b", reply: &Reply{Content: validReply}}
	health := resilience.NewServiceHealth(resilience.HealthConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	ex := NewExtractor(roster, map[string]Adapter{"a": a, "b": b}, WithHealth(health))

	res, err := ex.AnalyzeDocument(context.Background(), AnalyzeRequest{})
	require.NoError(t, err)
	assert.Equal(t, model.FallbackProviderError, res.FallbackReason)
	pa, _ := roster.Get("a")
	assert.Equal(t, model.ProviderOffline, pa.Status)

	// An open breaker never blocks: the provider is still tried first.
	_, err = ex.AnalyzeDocument(context.Background(), AnalyzeRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, a.calls)
}

func TestAnalyze_UnknownModelFallsBackToPerK(t *testing.T) {
	roster, err := NewRoster([]model.ProviderConfig{
		{Name: "a", Kind: KindOpenAI, Enabled: true, Priority: 1, Model: "local", CostPerKTokens: 0.01},
	}, nil)
	require.NoError(t, err)
	a := &fakeAdapter{name: "a", reply: &Reply{Content: validReply, TokensIn: 700, TokensOut: 300}}

	res, err := NewExtractor(roster, map[string]Adapter{"a": a}).AnalyzeDocument(context.Background(), AnalyzeRequest{})
	require.NoError(t, err)
	assert.InDelta(t, 0.01, res.ProcessingCost, 1e-12)
	assert.Equal(t, "local", res.Model)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, model.FallbackNone, Classify(nil))
	assert.Equal(t, model.FallbackTimeout, Classify(context.DeadlineExceeded))
	assert.Equal(t, model.FallbackProviderError, Classify(errors.New("read: connection reset by peer")))
	assert.Equal(t, model.FallbackProviderError, Classify(fmt.Errorf("openai: %w", syscall.ECONNRESET)))
	assert.Equal(t, model.FallbackInvalidJSON, Classify(ErrInvalidJSON))
	assert.Equal(t, model.FallbackInvalidSchema, Classify(ErrInvalidSchema))
	assert.Equal(t, model.FallbackProviderError, Classify(errors.New("500 internal")))
}
