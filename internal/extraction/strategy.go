// Package extraction turns a source document into text through an ordered
// cascade of strategies, from the embedded PDF text layer down to filename
// heuristics.
package extraction

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// Kind tags the closed set of strategy variants.
type Kind int

const (
	KindTextLayer Kind = iota + 1
	KindCommand
	KindRaster
	KindRecognition
	KindFilename
)

func (k Kind) String() string {
	switch k {
	case KindTextLayer:
		return "text_layer"
	case KindCommand:
		return "command"
	case KindRaster:
		return "raster"
	case KindRecognition:
		return "recognition"
	case KindFilename:
		return "filename"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Tools holds the external binaries strategies invoke.
type Tools struct {
	PdfToText   string
	PdfToPPM    string
	Ghostscript string
	Tesseract   string
}

// Toolbox is the shared environment strategies execute in.
type Toolbox struct {
	Runner  Runner
	Tools   Tools
	WorkDir string
}

// RecognitionConfig is one tesseract layout/engine combination.
type RecognitionConfig struct {
	Name     string
	Language string
	PSM      int
	OEM      int
}

// ResultCache memoizes strategy results per file.
type ResultCache interface {
	Get(ctx context.Context, path, strategy string) (*model.ExtractionResult, bool)
	Set(ctx context.Context, path, strategy string, res model.ExtractionResult) error
}

// Strategy is one way of extracting text. Behavior is selected by Kind.
type Strategy struct {
	Kind     Kind
	Name     string
	Priority int
	Criteria model.SuccessCriteria

	// Tool is the binary for command, raster, and recognition variants.
	Tool string
	// Resolution and Renderer apply to raster variants.
	Resolution  int
	Renderer    string
	Recognition RecognitionConfig

	box   *Toolbox
	cache ResultCache
}

// Cacheable reports whether results of this strategy may be memoized.
// Raster output points at scratch files and recognition runs against them.
// Filename analysis depends on the name alone, which the fingerprint ignores.
func (s Strategy) Cacheable() bool {
	switch s.Kind {
	case KindTextLayer, KindCommand:
		return true
	default:
		return false
	}
}

// WithCache returns a copy of s that consults c before executing.
// Non-cacheable strategies are returned unchanged.
func (s Strategy) WithCache(c ResultCache) Strategy {
	if s.Cacheable() {
		s.cache = c
	}
	return s
}

// Execute runs the strategy against path. It never returns an error: failures
// are reported as a zero-confidence result carrying metadata["error"].
func (s Strategy) Execute(ctx context.Context, path string) (res model.ExtractionResult) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("extraction: strategy panicked",
				zap.String("strategy", s.Name),
				zap.Any("panic", r),
			)
			res = model.FailedResult(s.Name, started, eris.Errorf("extraction: %s panicked: %v", s.Name, r))
		}
	}()

	if s.cache != nil {
		if hit, ok := s.cache.Get(ctx, path, s.Name); ok {
			return *hit
		}
	}

	out, err := s.run(ctx, path)
	if err != nil {
		zap.L().Debug("extraction: strategy failed",
			zap.String("strategy", s.Name),
			zap.Error(err),
		)
		return model.FailedResult(s.Name, started, err)
	}

	out.StrategyName = s.Name
	out.ProcessingTimeMs = time.Since(started).Milliseconds()
	out.Confidence = clampConfidence(out.Confidence)

	if s.cache != nil {
		if err := s.cache.Set(ctx, path, s.Name, out); err != nil {
			zap.L().Warn("extraction: cache set failed", zap.String("strategy", s.Name), zap.Error(err))
		}
	}
	return out
}

func (s Strategy) run(ctx context.Context, path string) (model.ExtractionResult, error) {
	if s.Kind != KindFilename {
		if _, err := os.Stat(path); err != nil {
			return model.ExtractionResult{}, eris.Wrapf(err, "extraction: %s", s.Name)
		}
	}

	switch s.Kind {
	case KindTextLayer:
		return readTextLayer(path)
	case KindCommand:
		return s.runCommand(ctx, path)
	case KindRaster:
		return s.rasterize(ctx, path)
	case KindRecognition:
		return s.recognize(ctx, path)
	case KindFilename:
		return analyzeFilename(path), nil
	default:
		return model.ExtractionResult{}, eris.Errorf("extraction: unknown strategy kind %s", s.Kind)
	}
}

// Validate reports whether r is good enough to stop the cascade. It does no I/O.
func (s Strategy) Validate(r model.ExtractionResult) bool {
	switch s.Kind {
	case KindFilename:
		return true
	case KindRaster:
		png, _ := r.Metadata[model.MetaPNGPath].(string)
		return png != "" && r.Confidence >= s.Criteria.MinConfidence
	default:
		return s.Criteria.Met(r)
	}
}

// Release removes scratch files a raster result points at.
func (s Strategy) Release(r model.ExtractionResult) {
	if s.Kind != KindRaster {
		return
	}
	dir, _ := r.Metadata[metaScratchDir].(string)
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		zap.L().Warn("extraction: remove scratch dir", zap.String("dir", dir), zap.Error(err))
	}
}

func (s Strategy) runner() Runner {
	if s.box == nil || s.box.Runner == nil {
		return ExecRunner{}
	}
	return s.box.Runner
}

func (s Strategy) workDir() string {
	if s.box == nil {
		return ""
	}
	return s.box.WorkDir
}

func clampConfidence(c int) int {
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}
