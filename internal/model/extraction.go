package model

import "time"

// Metadata keys shared by strategies, the cache, and the orchestrator.
const (
	MetaError           = "error"
	MetaFromCache       = "from_cache"
	MetaCachedAt        = "cached_at"
	MetaPNGPath         = "png_path"
	MetaResolution      = "resolution"
	MetaTool            = "tool"
	MetaTesseractConfig = "tesseract_config"
	MetaLanguage        = "language"
	MetaPageCount       = "page_count"
	MetaPatternsFound   = "patterns_found"
	MetaSourceStrategy  = "source_strategy"
	MetaWordCount       = "word_count"
)

// Well-known labels the orchestrator and engine report in place of a strategy name.
const (
	StrategyBestEffort    = "FALLBACK_BEST_EFFORT"
	StrategyNone          = "NO_STRATEGY"
	StrategyCriticalError = "CRITICAL_ERROR"
)

// ExtractionResult is the outcome of running one strategy against one document.
// Confidence is strategy-local (0-100) and has not been cross-validated.
type ExtractionResult struct {
	Text             string         `json:"text"`
	Confidence       int            `json:"confidence"`
	StrategyName     string         `json:"strategy_name"`
	ProcessingTimeMs int64          `json:"processing_time_ms"`
	CharacterCount   int            `json:"character_count"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Error returns the captured failure message, if any.
func (r ExtractionResult) Error() string {
	if r.Metadata == nil {
		return ""
	}
	if s, ok := r.Metadata[MetaError].(string); ok {
		return s
	}
	return ""
}

// Failed reports whether the strategy produced nothing usable.
func (r ExtractionResult) Failed() bool {
	return r.Confidence == 0 || r.CharacterCount == 0
}

// WithMetadata returns a copy of r with key set. The receiver's map is not mutated.
func (r ExtractionResult) WithMetadata(key string, value any) ExtractionResult {
	md := make(map[string]any, len(r.Metadata)+1)
	for k, v := range r.Metadata {
		md[k] = v
	}
	md[key] = value
	r.Metadata = md
	return r
}

// FailedResult builds the zero-confidence result strategies return instead of an error.
func FailedResult(strategy string, started time.Time, err error) ExtractionResult {
	msg := "extraction failed"
	if err != nil {
		msg = err.Error()
	}
	return ExtractionResult{
		StrategyName:     strategy,
		ProcessingTimeMs: time.Since(started).Milliseconds(),
		Metadata:         map[string]any{MetaError: msg},
	}
}

// SuccessCriteria is the per-strategy threshold a result must meet to stop the cascade.
type SuccessCriteria struct {
	MinCharacters int `json:"min_characters" yaml:"min_characters" mapstructure:"min_characters"`
	MinConfidence int `json:"min_confidence" yaml:"min_confidence" mapstructure:"min_confidence"`
}

// Met reports whether r satisfies the criteria.
func (c SuccessCriteria) Met(r ExtractionResult) bool {
	return r.CharacterCount >= c.MinCharacters && r.Confidence >= c.MinConfidence
}

// AttemptSummary is the compact per-strategy record kept in ExtractionMetrics.
type AttemptSummary struct {
	Strategy         string `json:"strategy"`
	Confidence       int    `json:"confidence"`
	CharacterCount   int    `json:"character_count"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	Error            string `json:"error,omitempty"`
}

// ExtractionMetrics is emitted once per processed document.
type ExtractionMetrics struct {
	ID               string           `json:"id,omitempty"`
	DocumentID       string           `json:"document_id"`
	StrategyUsed     string           `json:"strategy_used"`
	Success          bool             `json:"success"`
	ProcessingTimeMs int64            `json:"processing_time_ms"`
	CharacterCount   int              `json:"character_count"`
	Confidence       int              `json:"confidence"`
	FallbackLevel    int              `json:"fallback_level"`
	Attempts         []AttemptSummary `json:"attempts"`
	CreatedAt        time.Time        `json:"created_at"`
}

// Summarize converts full results into attempt summaries.
func Summarize(results []ExtractionResult) []AttemptSummary {
	out := make([]AttemptSummary, 0, len(results))
	for _, r := range results {
		out = append(out, AttemptSummary{
			Strategy:         r.StrategyName,
			Confidence:       r.Confidence,
			CharacterCount:   r.CharacterCount,
			ProcessingTimeMs: r.ProcessingTimeMs,
			Error:            r.Error(),
		})
	}
	return out
}
