package extraction

import (
	"time"

	"github.com/sells-group/reconcile-cli/internal/config"
	"github.com/sells-group/reconcile-cli/internal/model"
)

// Strategy names of the default roster.
const (
	NameDirectText    = "PDF_DIRECT_TEXT"
	NamePdfToText     = "PDFTOTEXT_COMMAND"
	NamePNGHigh       = "PDF_TO_PNG_HIGH_RES"
	NamePNGMedium     = "PDF_TO_PNG_MEDIUM_RES"
	NamePNGLow        = "PDF_TO_PNG_LOW_RES"
	NameGhostscript   = "GHOSTSCRIPT_CONVERSION"
	NameFilename      = "FILENAME_ANALYSIS"
	recognitionPrefix = "TESSERACT_"
)

// NewToolbox builds the strategy environment from configuration.
func NewToolbox(cfg config.ExtractionConfig) *Toolbox {
	return &Toolbox{
		Runner: ExecRunner{Timeout: time.Duration(cfg.CommandTimeoutSecs) * time.Second},
		Tools: Tools{
			PdfToText:   orDefault(cfg.Tools.PdfToText, "pdftotext"),
			PdfToPPM:    orDefault(cfg.Tools.PdfToPPM, "pdftoppm"),
			Ghostscript: orDefault(cfg.Tools.Ghostscript, "gs"),
			Tesseract:   orDefault(cfg.Tools.Tesseract, "tesseract"),
		},
		WorkDir: cfg.WorkDir,
	}
}

// TextLayerStrategy reads the embedded PDF text layer.
func TextLayerStrategy(box *Toolbox) Strategy {
	return Strategy{
		Kind:     KindTextLayer,
		Name:     NameDirectText,
		Priority: 1,
		Criteria: model.SuccessCriteria{MinCharacters: 50, MinConfidence: 80},
		Tool:     "pdfcpu",
		box:      box,
	}
}

// CommandStrategy shells out to pdftotext.
func CommandStrategy(box *Toolbox) Strategy {
	return Strategy{
		Kind:     KindCommand,
		Name:     NamePdfToText,
		Priority: 2,
		Criteria: model.SuccessCriteria{MinCharacters: 50, MinConfidence: 75},
		Tool:     box.Tools.PdfToText,
		box:      box,
	}
}

// RasterStrategy renders the first page at dpi with the given renderer.
func RasterStrategy(box *Toolbox, name string, priority, dpi int, renderer string) Strategy {
	tool := box.Tools.PdfToPPM
	if renderer == ToolGhostscript {
		tool = box.Tools.Ghostscript
	}
	return Strategy{
		Kind:       KindRaster,
		Name:       name,
		Priority:   priority,
		Criteria:   model.SuccessCriteria{MinConfidence: 80},
		Tool:       tool,
		Resolution: dpi,
		Renderer:   renderer,
		box:        box,
	}
}

// RecognitionStrategy applies one tesseract configuration to an image.
func RecognitionStrategy(box *Toolbox, cfg RecognitionConfig, priority int) Strategy {
	return Strategy{
		Kind:        KindRecognition,
		Name:        recognitionPrefix + cfg.Name,
		Priority:    priority,
		Criteria:    model.SuccessCriteria{MinCharacters: 20, MinConfidence: 60},
		Tool:        box.Tools.Tesseract,
		Recognition: cfg,
		box:         box,
	}
}

// FilenameStrategy is the terminal fallback. It always validates.
func FilenameStrategy() Strategy {
	return Strategy{
		Kind:     KindFilename,
		Name:     NameFilename,
		Priority: 99,
	}
}

// DefaultStrategies is the full cascade including recognition sub-strategies.
func DefaultStrategies(box *Toolbox) []Strategy {
	out := []Strategy{
		TextLayerStrategy(box),
		CommandStrategy(box),
		RasterStrategy(box, NamePNGHigh, 3, 300, ToolPdfToPPM),
		RasterStrategy(box, NamePNGMedium, 4, 150, ToolPdfToPPM),
		RasterStrategy(box, NamePNGLow, 5, 72, ToolPdfToPPM),
		RasterStrategy(box, NameGhostscript, 6, 150, ToolGhostscript),
	}
	for i, cfg := range RecognitionConfigs {
		out = append(out, RecognitionStrategy(box, cfg, 7+i))
	}
	return append(out, FilenameStrategy())
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
