package ai

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/reconcile-cli/internal/cost"
	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/resilience"
)

// ErrAllProvidersFailed is returned when every enabled provider failed.
// The returned error also wraps the last provider's error.
var ErrAllProvidersFailed = eris.New("ai: all providers failed")

// DefaultTimeout bounds a single provider attempt.
const DefaultTimeout = 10 * time.Second

// RunRecorder appends one audit row per provider attempt.
type RunRecorder interface {
	AppendAIRun(ctx context.Context, rec model.AIRunRecord) error
}

// AnalyzeRequest is the input of one analysis.
type AnalyzeRequest struct {
	DocumentID  string
	Text        string
	Filename    string
	OCRStrategy string
}

// AnalysisResult is the winning provider's normalized answer.
type AnalysisResult struct {
	Provider         string                    `json:"provider"`
	Model            string                    `json:"model"`
	ExtractedFields  *model.AIExtractionFields `json:"extracted_fields"`
	Confidence       int                       `json:"confidence"`
	ProcessingCost   float64                   `json:"processing_cost"`
	TokensIn         int                       `json:"tokens_in"`
	TokensOut        int                       `json:"tokens_out"`
	ProcessingTimeMs int64                     `json:"processing_time_ms"`
	FallbackReason   model.FallbackReason      `json:"fallback_reason,omitempty"`
	RawResponse      string                    `json:"raw_response,omitempty"`
}

// Extractor tries the roster's enabled providers in priority order until one
// returns a reply that normalizes and validates.
type Extractor struct {
	roster   *Roster
	adapters map[string]Adapter
	recorder RunRecorder
	calc     *cost.Calculator
	health   *resilience.ServiceHealth
	timeout  time.Duration
	perSec   float64
	now      func() time.Time

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRecorder sets the audit recorder.
func WithRecorder(rec RunRecorder) Option { return func(e *Extractor) { e.recorder = rec } }

// WithCalculator sets the pricing catalog used for processing cost.
func WithCalculator(c *cost.Calculator) Option { return func(e *Extractor) { e.calc = c } }

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRateLimit caps requests per second to each provider. Zero disables it.
func WithRateLimit(perSec float64) Option { return func(e *Extractor) { e.perSec = perSec } }

// WithHealth sets the per-provider health trackers.
func WithHealth(h *resilience.ServiceHealth) Option { return func(e *Extractor) { e.health = h } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(e *Extractor) { e.now = now } }

// NewExtractor wires the roster to its adapters.
func NewExtractor(roster *Roster, adapters map[string]Adapter, opts ...Option) *Extractor {
	e := &Extractor{
		roster:   roster,
		adapters: adapters,
		calc:     cost.NewCalculator(cost.DefaultRates()),
		health:   resilience.NewServiceHealth(resilience.DefaultHealthConfig()),
		timeout:  DefaultTimeout,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Roster exposes the provider table for operator commands.
func (e *Extractor) Roster() *Roster { return e.roster }

// AnalyzeDocument runs the provider cascade for one document.
func (e *Extractor) AnalyzeDocument(ctx context.Context, req AnalyzeRequest) (*AnalysisResult, error) {
	log := zap.L().With(zap.String("document_id", req.DocumentID))
	providers := e.roster.Enabled()
	if len(providers) == 0 {
		return nil, eris.Wrap(ErrAllProvidersFailed, "no enabled providers")
	}

	prompt := BuildPrompt(req.Text, req.Filename)
	var (
		lastErr    error
		lastReason model.FallbackReason
		attempts   int
	)
	for i, p := range providers {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		attempts++
		res, reason, err := e.attempt(ctx, p, req, prompt)
		if err == nil {
			if i > 0 {
				res.FallbackReason = lastReason
			}
			log.Info("ai: analysis complete",
				zap.String("provider", p.Name),
				zap.Int("confidence", res.Confidence),
				zap.String("fallback_reason", string(res.FallbackReason)),
			)
			return res, nil
		}
		log.Warn("ai: provider failed",
			zap.String("provider", p.Name),
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
		lastErr, lastReason = err, reason
	}
	return nil, errors.Join(ErrAllProvidersFailed, eris.Wrapf(lastErr, "ai: %d attempts", attempts))
}

func (e *Extractor) attempt(ctx context.Context, p model.ProviderConfig, req AnalyzeRequest, prompt string) (*AnalysisResult, model.FallbackReason, error) {
	start := e.now()

	var (
		reply  *Reply
		fields *model.AIExtractionFields
		err    error
	)
	adapter, ok := e.adapters[p.Name]
	if !ok {
		err = eris.Errorf("ai: no adapter for provider %q", p.Name)
	} else if err = e.limiter(p.Name).Wait(ctx); err == nil {
		actx, cancel := context.WithTimeout(ctx, e.timeout)
		reply, err = adapter.Complete(actx, Request{
			System:      SystemPrompt,
			Prompt:      prompt,
			Model:       p.Model,
			Temperature: p.Temperature,
			MaxTokens:   p.MaxTokens,
		})
		cancel()
		if err == nil {
			fields, err = Normalize([]byte(reply.Content))
		}
	}
	elapsed := e.now().Sub(start)

	var tokensIn, tokensOut int
	var content, modelID string
	if reply != nil {
		tokensIn, tokensOut, content, modelID = reply.TokensIn, reply.TokensOut, reply.Content, reply.Model
		if tokensIn == 0 && tokensOut == 0 {
			tokensIn, tokensOut = estimateTokens(prompt, content)
		}
	}
	if modelID == "" {
		modelID = p.Model
	}
	usd := e.cost(p, tokensIn, tokensOut)
	reason := Classify(err)

	status := model.ProviderOnline
	state := e.health.Get(p.Name).Record(err)
	if err != nil {
		status = model.ProviderError
		if state == resilience.CircuitOpen {
			status = model.ProviderOffline
		}
	}
	if serr := e.roster.SetStatus(p.Name, status); serr != nil {
		zap.L().Debug("ai: provider left the roster mid-attempt",
			zap.String("provider", p.Name),
			zap.Error(serr),
		)
	}
	e.roster.RecordOutcome(p.Name, Outcome{
		Success: err == nil,
		CostUSD: usd,
		Tokens:  tokensIn + tokensOut,
		Latency: elapsed,
		Reason:  reason,
	})

	rec := model.AIRunRecord{
		ID:               uuid.NewString(),
		DocumentID:       req.DocumentID,
		Provider:         p.Name,
		Model:            modelID,
		FallbackReason:   reason,
		OCRStrategy:      req.OCRStrategy,
		TokensIn:         tokensIn,
		TokensOut:        tokensOut,
		CostUSD:          usd,
		ProcessingTimeMs: elapsed.Milliseconds(),
		Success:          err == nil,
		CreatedAt:        e.now().UTC(),
	}
	if fields != nil {
		rec.Confidence = fields.Confidence
	}
	if err != nil {
		rec.Error = err.Error()
	}
	e.record(ctx, rec)

	if err != nil {
		return nil, reason, err
	}
	return &AnalysisResult{
		Provider:         p.Name,
		Model:            modelID,
		ExtractedFields:  fields,
		Confidence:       fields.Confidence,
		ProcessingCost:   usd,
		TokensIn:         tokensIn,
		TokensOut:        tokensOut,
		ProcessingTimeMs: elapsed.Milliseconds(),
		RawResponse:      content,
	}, model.FallbackNone, nil
}

// Classify maps an attempt error to its fallback reason.
func Classify(err error) model.FallbackReason {
	switch {
	case err == nil:
		return model.FallbackNone
	case errors.Is(err, ErrInvalidSchema):
		return model.FallbackInvalidSchema
	case errors.Is(err, ErrInvalidJSON):
		return model.FallbackInvalidJSON
	case resilience.IsTimeout(err):
		return model.FallbackTimeout
	default:
		return model.FallbackProviderError
	}
}

func (e *Extractor) cost(p model.ProviderConfig, in, out int) float64 {
	if usd, ok := e.calc.Cost(p.Model, in, out); ok {
		return usd
	}
	return p.CostPerKTokens * float64(in+out) / 1000
}

func (e *Extractor) record(ctx context.Context, rec model.AIRunRecord) {
	if e.recorder == nil {
		return
	}
	// The audit row is written even when the analysis context was cancelled.
	if err := e.recorder.AppendAIRun(context.WithoutCancel(ctx), rec); err != nil {
		zap.L().Error("ai: record run failed",
			zap.String("document_id", rec.DocumentID),
			zap.String("provider", rec.Provider),
			zap.Error(err),
		)
	}
}

func (e *Extractor) limiter(name string) *rate.Limiter {
	e.limMu.Lock()
	defer e.limMu.Unlock()
	l, ok := e.limiters[name]
	if !ok {
		limit := rate.Inf
		if e.perSec > 0 {
			limit = rate.Limit(e.perSec)
		}
		l = rate.NewLimiter(limit, 1)
		e.limiters[name] = l
	}
	return l
}

// estimateTokens approximates usage at four characters per token, split 70/30
// between prompt and completion, for providers that omit usage.
func estimateTokens(prompt, content string) (in, out int) {
	total := (len(prompt) + len(content) + 3) / 4
	in = total * 7 / 10
	return in, total - in
}
