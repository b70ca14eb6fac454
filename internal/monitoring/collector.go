package monitoring

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
	"github.com/sells-group/reconcile-cli/internal/store"
)

// collectLimit bounds the AI run history read per snapshot.
const collectLimit = 10000

// StrategyStats aggregates every attempt of one extraction strategy.
type StrategyStats struct {
	Strategy      string  `json:"strategy"`
	Attempts      int     `json:"attempts"`
	Wins          int     `json:"wins"`
	SuccessRate   float64 `json:"success_rate"`
	AvgTimeMs     float64 `json:"avg_time_ms"`
	AvgConfidence float64 `json:"avg_confidence"`
	AvgCharacters float64 `json:"avg_characters"`
}

// ProviderStats aggregates AI runs of one provider.
type ProviderStats struct {
	Provider     string                       `json:"provider"`
	Requests     int                          `json:"requests"`
	Failures     int                          `json:"failures"`
	FailureRate  float64                      `json:"failure_rate"`
	CostUSD      float64                      `json:"cost_usd"`
	AvgLatencyMs float64                      `json:"avg_latency_ms"`
	Reasons      map[model.FallbackReason]int `json:"reasons,omitempty"`
}

// MetricsSnapshot holds a point-in-time view of extraction and AI health.
type MetricsSnapshot struct {
	// Extraction cascade (within lookback window).
	Documents             int             `json:"documents"`
	DocumentsSucceeded    int             `json:"documents_succeeded"`
	DocumentsWithFallback int             `json:"documents_with_fallback"`
	FallbackRate          float64         `json:"fallback_rate"`
	AvgFallbackLevel      float64         `json:"avg_fallback_level"`
	Strategies            []StrategyStats `json:"strategies"`

	// AI providers (within lookback window).
	AIRequests    int             `json:"ai_requests"`
	AIFailures    int             `json:"ai_failures"`
	AIFailureRate float64         `json:"ai_failure_rate"`
	AICostUSD     float64         `json:"ai_cost_usd"`
	Providers     []ProviderStats `json:"providers"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Source is the slice of the store the collector reads.
type Source interface {
	ListExtractionMetrics(ctx context.Context, since time.Time) ([]model.ExtractionMetrics, error)
	ListAIRuns(ctx context.Context, filter store.RunFilter) ([]model.AIRunRecord, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	src Source
	now func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(src Source) *Collector {
	return &Collector{src: src, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
		Strategies:    []StrategyStats{},
		Providers:     []ProviderStats{},
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	metrics, err := c.src.ListExtractionMetrics(ctx, cutoff)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list extraction metrics")
	}
	collectExtraction(snap, metrics)

	runs, err := c.src.ListAIRuns(ctx, store.RunFilter{Since: cutoff, Limit: collectLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list ai runs")
	}
	collectAI(snap, runs)

	return snap, nil
}

func collectExtraction(snap *MetricsSnapshot, metrics []model.ExtractionMetrics) {
	type acc struct {
		StrategyStats
		time, conf, chars float64
	}
	byName := map[string]*acc{}
	var levels int

	for _, m := range metrics {
		snap.Documents++
		if m.Success {
			snap.DocumentsSucceeded++
		}
		if m.FallbackLevel > 0 {
			snap.DocumentsWithFallback++
		}
		levels += m.FallbackLevel

		for _, a := range m.Attempts {
			s, ok := byName[a.Strategy]
			if !ok {
				s = &acc{StrategyStats: StrategyStats{Strategy: a.Strategy}}
				byName[a.Strategy] = s
			}
			s.Attempts++
			s.time += float64(a.ProcessingTimeMs)
			s.conf += float64(a.Confidence)
			s.chars += float64(a.CharacterCount)
			if m.Success && wonBy(m.StrategyUsed, a.Strategy) {
				s.Wins++
			}
		}
	}

	if snap.Documents > 0 {
		snap.FallbackRate = float64(snap.DocumentsWithFallback) / float64(snap.Documents)
		snap.AvgFallbackLevel = float64(levels) / float64(snap.Documents)
	}

	for _, s := range byName {
		n := float64(s.Attempts)
		s.SuccessRate = float64(s.Wins) / n
		s.AvgTimeMs = s.time / n
		s.AvgConfidence = s.conf / n
		s.AvgCharacters = s.chars / n
		snap.Strategies = append(snap.Strategies, s.StrategyStats)
	}
	sort.Slice(snap.Strategies, func(i, j int) bool {
		a, b := snap.Strategies[i], snap.Strategies[j]
		if a.Attempts != b.Attempts {
			return a.Attempts > b.Attempts
		}
		return a.Strategy < b.Strategy
	})
}

// wonBy reports whether the recorded winner is strategy, including a
// recognition pass reported as "<raster> + <recognizer>".
func wonBy(used, strategy string) bool {
	return used == strategy || strings.HasSuffix(used, " + "+strategy)
}

func collectAI(snap *MetricsSnapshot, runs []model.AIRunRecord) {
	type acc struct {
		ProviderStats
		latency float64
	}
	byName := map[string]*acc{}

	for _, r := range runs {
		p, ok := byName[r.Provider]
		if !ok {
			p = &acc{ProviderStats: ProviderStats{Provider: r.Provider}}
			byName[r.Provider] = p
		}
		p.Requests++
		p.CostUSD += r.CostUSD
		p.latency += float64(r.ProcessingTimeMs)
		if !r.Success {
			p.Failures++
			if r.FallbackReason != model.FallbackNone {
				if p.Reasons == nil {
					p.Reasons = map[model.FallbackReason]int{}
				}
				p.Reasons[r.FallbackReason]++
			}
		}

		snap.AIRequests++
		snap.AICostUSD += r.CostUSD
		if !r.Success {
			snap.AIFailures++
		}
	}

	if snap.AIRequests > 0 {
		snap.AIFailureRate = float64(snap.AIFailures) / float64(snap.AIRequests)
	}

	for _, p := range byName {
		n := float64(p.Requests)
		p.FailureRate = float64(p.Failures) / n
		p.AvgLatencyMs = p.latency / n
		snap.Providers = append(snap.Providers, p.ProviderStats)
	}
	sort.Slice(snap.Providers, func(i, j int) bool {
		return snap.Providers[i].Provider < snap.Providers[j].Provider
	})
}
