package extraction

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// Run is the outcome of one cascade over a document.
type Run struct {
	Result              model.ExtractionResult
	StrategiesAttempted int
	SuccessfulStrategy  string
	Success             bool
	AllResults          []model.ExtractionResult
}

// Orchestrator tries strategies in priority order until one validates.
type Orchestrator struct {
	strategies  []Strategy
	recognizers []Strategy
}

// NewOrchestrator sorts strategies by priority. Recognition strategies are
// split out: they only run against images produced by raster strategies.
func NewOrchestrator(strategies []Strategy) *Orchestrator {
	o := &Orchestrator{}
	for _, s := range strategies {
		if s.Kind == KindRecognition {
			o.recognizers = append(o.recognizers, s)
		} else {
			o.strategies = append(o.strategies, s)
		}
	}
	byPriority := func(list []Strategy) func(i, j int) bool {
		return func(i, j int) bool { return list[i].Priority < list[j].Priority }
	}
	sort.SliceStable(o.strategies, byPriority(o.strategies))
	sort.SliceStable(o.recognizers, byPriority(o.recognizers))
	return o
}

// Names lists the top-level cascade in execution order.
func (o *Orchestrator) Names() []string {
	names := make([]string, 0, len(o.strategies))
	for _, s := range o.strategies {
		names = append(names, s.Name)
	}
	return names
}

// Execute runs the cascade against path. It never fails; when nothing
// validates the richest attempt is returned as a best-effort result.
func (o *Orchestrator) Execute(ctx context.Context, path string) Run {
	log := zap.L().With(zap.String("file", path))
	run := Run{}
	recognized := map[string]bool{}
	// Raster results carry an image, not text, so they never compete for best effort.
	var candidates []model.ExtractionResult

	for _, s := range o.strategies {
		if ctx.Err() != nil {
			log.Warn("extraction: cascade cancelled", zap.Error(ctx.Err()))
			break
		}

		run.StrategiesAttempted++
		res := s.Execute(ctx, path)
		run.AllResults = append(run.AllResults, res)

		if s.Kind == KindRaster {
			if res.Confidence > 0 {
				hit, ok := o.recognize(ctx, s, res, recognized, &run, &candidates)
				if ok {
					run.StrategiesAttempted++
					run.Result = hit
					run.SuccessfulStrategy = s.Name + " + " + hit.StrategyName
					run.Success = true
					log.Info("extraction: recognition succeeded",
						zap.String("strategy", run.SuccessfulStrategy),
						zap.Int("confidence", hit.Confidence),
					)
					return run
				}
			}
			log.Debug("extraction: raster produced no usable text", zap.String("strategy", s.Name))
			continue
		}
		candidates = append(candidates, res)

		if s.Validate(res) {
			run.Result = res
			run.SuccessfulStrategy = s.Name
			run.Success = true
			log.Info("extraction: strategy succeeded",
				zap.String("strategy", s.Name),
				zap.Int("characters", res.CharacterCount),
				zap.Int("confidence", res.Confidence),
			)
			return run
		}
		log.Debug("extraction: strategy did not validate",
			zap.String("strategy", s.Name),
			zap.String("error", res.Error()),
		)
	}

	if len(candidates) == 0 {
		candidates = run.AllResults
	}
	run.Result = SelectBest(candidates)
	run.SuccessfulStrategy = model.StrategyBestEffort
	if len(run.AllResults) == 0 {
		run.SuccessfulStrategy = model.StrategyNone
	}
	log.Warn("extraction: no strategy validated, using best effort",
		zap.String("picked", run.Result.StrategyName),
		zap.Int("attempted", run.StrategiesAttempted),
	)
	return run
}

// recognize runs every recognition configuration against the produced image,
// returning the first result that validates. Scratch files are released afterwards.
func (o *Orchestrator) recognize(ctx context.Context, raster Strategy, res model.ExtractionResult, seen map[string]bool, run *Run, candidates *[]model.ExtractionResult) (model.ExtractionResult, bool) {
	defer raster.Release(res)

	png, _ := res.Metadata[model.MetaPNGPath].(string)
	if png == "" || seen[png] {
		return model.ExtractionResult{}, false
	}
	seen[png] = true

	for _, rec := range o.recognizers {
		if ctx.Err() != nil {
			return model.ExtractionResult{}, false
		}
		out := rec.Execute(ctx, png).WithMetadata(model.MetaSourceStrategy, raster.Name)
		run.AllResults = append(run.AllResults, out)
		*candidates = append(*candidates, out)
		if rec.Validate(out) {
			return out, true
		}
	}
	return model.ExtractionResult{}, false
}

// SelectBest picks the most informative result: highest confidence, then
// most characters, then fastest.
func SelectBest(results []model.ExtractionResult) model.ExtractionResult {
	if len(results) == 0 {
		return model.ExtractionResult{
			StrategyName: model.StrategyNone,
			Metadata:     map[string]any{model.MetaError: "no strategy was executed"},
		}
	}
	best := results[0]
	for _, r := range results[1:] {
		if better(r, best) {
			best = r
		}
	}
	return best
}

func better(a, b model.ExtractionResult) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.CharacterCount != b.CharacterCount {
		return a.CharacterCount > b.CharacterCount
	}
	return a.ProcessingTimeMs < b.ProcessingTimeMs
}
