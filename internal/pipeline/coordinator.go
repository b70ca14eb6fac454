// Package pipeline sequences extraction, AI analysis and reconciliation for
// a document and owns its lifecycle state.
package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/ai"
	"github.com/sells-group/reconcile-cli/internal/extraction"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/store"
)

// TextExtractor runs the extraction cascade.
type TextExtractor interface {
	ProcessDocumentWithID(ctx context.Context, documentID, path string) extraction.Output
}

// Analyzer structures extracted text through the provider roster.
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, req ai.AnalyzeRequest) (*ai.AnalysisResult, error)
}

// Validator reconciles the sources into a verdict.
type Validator interface {
	DetectInconsistencies(ctx context.Context, documentID, text string, fields *model.AIExtractionFields, form model.FormFacts) (*model.ValidationVerdict, error)
}

// Document is one unit of work.
type Document struct {
	ID           string             `json:"id"`
	Path         string             `json:"path"`
	OriginalName string             `json:"original_name"`
	Type         model.DocumentType `json:"type"`
	Form         model.FormFacts    `json:"form"`
}

// Outcome is the structured result of processing one document.
type Outcome struct {
	DocumentID       string                   `json:"document_id"`
	Decision         Decision                 `json:"decision"`
	Extraction       *extraction.Output       `json:"extraction,omitempty"`
	Analysis         *ai.AnalysisResult       `json:"analysis,omitempty"`
	Verdict          *model.ValidationVerdict `json:"verdict,omitempty"`
	Applied          model.DocumentUpdate     `json:"applied"`
	Error            string                   `json:"error,omitempty"`
	ProcessingTimeMs int64                    `json:"processing_time_ms"`
}

// Coordinator drives documents through the pipeline.
type Coordinator struct {
	engine    TextExtractor
	analyzer  Analyzer
	validator Validator
	docs      store.DocumentStore
	now       func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// New builds a Coordinator.
func New(engine TextExtractor, analyzer Analyzer, validator Validator, docs store.DocumentStore, opts ...Option) *Coordinator {
	c := &Coordinator{engine: engine, analyzer: analyzer, validator: validator, docs: docs, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Process runs one document end to end. Only pipeline-fatal failures are
// returned as errors; the document is then left in PENDENTE_REVISAO with
// the error attached.
func (c *Coordinator) Process(ctx context.Context, doc Document) (*Outcome, error) {
	start := c.now()
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.OriginalName == "" {
		doc.OriginalName = filepath.Base(doc.Path)
	}
	if doc.Form.Filename == "" {
		doc.Form.Filename = doc.OriginalName
	}
	log := zap.L().With(zap.String("document_id", doc.ID), zap.String("file", doc.OriginalName))
	log.Info("pipeline: processing document", zap.String("type", string(doc.Type)))

	out := &Outcome{DocumentID: doc.ID}
	c.update(ctx, doc.ID, model.DocumentUpdate{
		OriginalName: doc.OriginalName,
		Path:         doc.Path,
		Type:         doc.Type,
		Status:       model.StatusProcessing,
	})
	c.appendLog(ctx, doc.ID, model.LogProcessingStart, model.LogSuccess, map[string]any{
		"file": doc.OriginalName,
		"type": string(doc.Type),
	})

	if _, err := os.Stat(doc.Path); err != nil {
		return c.fail(ctx, out, start, eris.Wrapf(err, "pipeline: read %s", doc.Path))
	}

	extracted := c.engine.ProcessDocumentWithID(ctx, doc.ID, doc.Path)
	out.Extraction = &extracted
	c.appendLog(ctx, doc.ID, model.LogOCRComplete, outcomeStatus(extracted.Success), map[string]any{
		"strategy":   extracted.StrategyUsed,
		"confidence": extracted.Confidence,
		"attempted":  extracted.StrategiesAttempted,
		"characters": len(extracted.Text),
	})

	analysis, err := c.analyzer.AnalyzeDocument(ctx, ai.AnalyzeRequest{
		DocumentID:  doc.ID,
		Text:        extracted.Text,
		Filename:    doc.OriginalName,
		OCRStrategy: extracted.StrategyUsed,
	})
	if err == nil && analysis == nil {
		err = eris.New("analyzer returned no result")
	}
	if err != nil {
		return c.fail(ctx, out, start, eris.Wrap(err, "pipeline: ai analysis"))
	}
	out.Analysis = analysis
	c.appendLog(ctx, doc.ID, model.LogAIComplete, model.LogSuccess, map[string]any{
		"provider":        analysis.Provider,
		"model":           analysis.Model,
		"confidence":      analysis.Confidence,
		"cost_usd":        analysis.ProcessingCost,
		"fallback_reason": string(analysis.FallbackReason),
	})

	verdict, err := c.validator.DetectInconsistencies(ctx, doc.ID, extracted.Text, analysis.ExtractedFields, doc.Form)
	if verdict == nil {
		if err == nil {
			err = eris.New("validator returned no verdict")
		}
		return c.fail(ctx, out, start, eris.Wrap(err, "pipeline: validation"))
	}
	if err != nil {
		log.Warn("pipeline: inconsistencies not persisted", zap.Error(err))
	}
	out.Verdict = verdict
	c.appendLog(ctx, doc.ID, model.LogValidationComplete, outcomeStatus(verdict.IsValid), map[string]any{
		"valid":           verdict.IsValid,
		"confidence":      verdict.Confidence,
		"inconsistencies": len(verdict.Inconsistencies),
	})

	out.Decision = Route(doc.Type, verdict.IsValid)
	processed := c.now()
	out.Applied = model.DocumentUpdate{Status: out.Decision.Status, ProcessedAt: &processed}
	if fields := analysis.ExtractedFields; fields != nil {
		if b, err := json.Marshal(fields); err == nil {
			out.Applied.ExtractedData = string(b)
		}
		// Unvalidated AI output never overwrites uploader metadata.
		if verdict.IsValid {
			out.Applied.Amount = fields.Amount
			out.Applied.DueDate = fields.DueDate
			out.Applied.Supplier = fields.SupplierName
		}
	}
	c.update(ctx, doc.ID, out.Applied)

	out.ProcessingTimeMs = c.now().Sub(start).Milliseconds()
	details := map[string]any{
		"status":             string(out.Decision.Status),
		"confidence":         verdict.Confidence,
		"processing_time_ms": out.ProcessingTimeMs,
	}
	if out.Decision.HasTask() {
		details["task"] = string(out.Decision.Task)
		details["priority"] = string(out.Decision.Priority)
	}
	c.appendLog(ctx, doc.ID, model.LogProcessingComplete, model.LogSuccess, details)

	log.Info("pipeline: document routed",
		zap.String("status", string(out.Decision.Status)),
		zap.String("task", string(out.Decision.Task)),
		zap.Bool("valid", verdict.IsValid),
		zap.Int("confidence", verdict.Confidence),
		zap.Int64("elapsed_ms", out.ProcessingTimeMs),
	)
	return out, nil
}

func (c *Coordinator) fail(ctx context.Context, out *Outcome, start time.Time, err error) (*Outcome, error) {
	zap.L().Error("pipeline: processing failed", zap.String("document_id", out.DocumentID), zap.Error(err))

	processed := c.now()
	out.Decision = Route("", false)
	out.Error = err.Error()
	out.Applied = model.DocumentUpdate{Status: out.Decision.Status, Error: out.Error, ProcessedAt: &processed}
	out.ProcessingTimeMs = processed.Sub(start).Milliseconds()

	c.update(ctx, out.DocumentID, out.Applied)
	c.appendLog(ctx, out.DocumentID, model.LogProcessingError, model.LogError, map[string]any{"error": out.Error})
	return out, err
}

// update and appendLog never abort processing; store writes are already retried.
func (c *Coordinator) update(ctx context.Context, id string, u model.DocumentUpdate) {
	if c.docs == nil {
		return
	}
	if err := c.docs.UpdateDocument(ctx, id, u); err != nil {
		zap.L().Warn("pipeline: update document failed",
			zap.String("document_id", id),
			zap.String("status", string(u.Status)),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) appendLog(ctx context.Context, id, action, status string, details map[string]any) {
	if c.docs == nil {
		return
	}
	entry := model.DocumentLog{DocumentID: id, Action: action, Status: status, Details: details, CreatedAt: c.now()}
	if err := c.docs.AppendLog(ctx, entry); err != nil {
		zap.L().Warn("pipeline: append log failed",
			zap.String("document_id", id),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func outcomeStatus(ok bool) string {
	if ok {
		return model.LogSuccess
	}
	return model.LogWarning
}
