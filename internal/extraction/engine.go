package extraction

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// MetricsSink receives one ExtractionMetrics record per processed document.
type MetricsSink interface {
	RecordExtraction(ctx context.Context, m model.ExtractionMetrics) error
}

// criticalFallbackLevel marks metrics of a run that never reached the cascade.
const criticalFallbackLevel = 99

// Output is what the engine hands back to callers.
type Output struct {
	Text                string                   `json:"text"`
	Confidence          int                      `json:"confidence"`
	StrategyUsed        string                   `json:"strategy_used"`
	Success             bool                     `json:"success"`
	ProcessingTimeMs    int64                    `json:"processing_time_ms"`
	StrategiesAttempted int                      `json:"strategies_attempted"`
	AllResults          []model.ExtractionResult `json:"all_results"`
}

// Engine composes the cache, the orchestrator, and metrics emission.
type Engine struct {
	orch  *Orchestrator
	sink  MetricsSink
	cache ResultCache
	now   func() time.Time
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMetricsSink sends per-document metrics to sink.
func WithMetricsSink(sink MetricsSink) EngineOption {
	return func(e *Engine) { e.sink = sink }
}

// WithResultCache memoizes cacheable strategies through c.
func WithResultCache(c ResultCache) EngineOption {
	return func(e *Engine) { e.cache = c }
}

// NewEngine builds an engine over strategies.
func NewEngine(strategies []Strategy, opts ...EngineOption) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache != nil {
		wrapped := make([]Strategy, len(strategies))
		for i, s := range strategies {
			wrapped[i] = s.WithCache(e.cache)
		}
		strategies = wrapped
	}
	e.orch = NewOrchestrator(strategies)
	return e
}

// Strategies lists the cascade in execution order.
func (e *Engine) Strategies() []string { return e.orch.Names() }

// ProcessDocument extracts text from path without attaching a document ID.
func (e *Engine) ProcessDocument(ctx context.Context, path string) Output {
	return e.ProcessDocumentWithID(ctx, "", path)
}

// ProcessDocumentWithID extracts text from path and records metrics under documentID.
// It never fails: an unexpected panic is reported as CRITICAL_ERROR.
func (e *Engine) ProcessDocumentWithID(ctx context.Context, documentID, path string) (out Output) {
	start := e.now()
	log := zap.L().With(zap.String("document_id", documentID))

	defer func() {
		if r := recover(); r != nil {
			err := eris.Errorf("extraction: engine panicked: %v", r)
			log.Error("extraction: critical error", zap.Error(err))
			out = Output{
				StrategyUsed:     model.StrategyCriticalError,
				ProcessingTimeMs: e.now().Sub(start).Milliseconds(),
			}
			e.emit(ctx, model.ExtractionMetrics{
				DocumentID:       documentID,
				StrategyUsed:     model.StrategyCriticalError,
				ProcessingTimeMs: out.ProcessingTimeMs,
				FallbackLevel:    criticalFallbackLevel,
				Attempts:         []model.AttemptSummary{{Strategy: model.StrategyCriticalError, Error: err.Error()}},
				CreatedAt:        e.now(),
			})
		}
	}()

	run := e.orch.Execute(ctx, path)
	elapsed := e.now().Sub(start).Milliseconds()

	out = Output{
		Text:                run.Result.Text,
		Confidence:          run.Result.Confidence,
		StrategyUsed:        run.SuccessfulStrategy,
		Success:             run.Success,
		ProcessingTimeMs:    elapsed,
		StrategiesAttempted: run.StrategiesAttempted,
		AllResults:          run.AllResults,
	}

	level := run.StrategiesAttempted - 1
	if level < 0 {
		level = 0
	}
	e.emit(ctx, model.ExtractionMetrics{
		DocumentID:       documentID,
		StrategyUsed:     run.SuccessfulStrategy,
		Success:          run.Success,
		ProcessingTimeMs: elapsed,
		CharacterCount:   run.Result.CharacterCount,
		Confidence:       run.Result.Confidence,
		FallbackLevel:    level,
		Attempts:         model.Summarize(run.AllResults),
		CreatedAt:        e.now(),
	})

	log.Info("extraction: document processed",
		zap.String("strategy", out.StrategyUsed),
		zap.Int("confidence", out.Confidence),
		zap.Int("attempted", out.StrategiesAttempted),
		zap.Int64("elapsed_ms", elapsed),
	)
	return out
}

func (e *Engine) emit(ctx context.Context, m model.ExtractionMetrics) {
	if e.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("extraction: metrics sink panicked", zap.Any("panic", r))
		}
	}()
	if err := e.sink.RecordExtraction(ctx, m); err != nil {
		zap.L().Warn("extraction: record metrics failed",
			zap.String("document_id", m.DocumentID),
			zap.Error(err),
		)
	}
}
