package extraction

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// Raster tools.
const (
	ToolPdfToPPM    = "pdftoppm"
	ToolGhostscript = "ghostscript"
)

// rasterConfidence is reported whenever an image was produced.
const rasterConfidence = 85

// metaScratchDir records the temporary directory holding a produced image.
const metaScratchDir = "scratch_dir"

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true, ".bmp": true, ".webp": true,
}

// isImage reports whether path already is a raster image.
func isImage(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

// rasterize renders the first page of path to PNG. Image inputs are passed
// through untouched so recognition can run on them directly.
func (s Strategy) rasterize(ctx context.Context, path string) (model.ExtractionResult, error) {
	meta := map[string]any{
		model.MetaResolution: s.Resolution,
		model.MetaTool:       s.Renderer,
	}
	if isImage(path) {
		meta[model.MetaPNGPath] = path
		return model.ExtractionResult{Confidence: rasterConfidence, Metadata: meta}, nil
	}

	dir, err := os.MkdirTemp(s.workDir(), "raster-*")
	if err != nil {
		return model.ExtractionResult{}, eris.Wrap(err, "extraction: create scratch dir")
	}

	png, err := s.renderFirstPage(ctx, path, dir)
	if err != nil {
		os.RemoveAll(dir)
		return model.ExtractionResult{}, err
	}

	meta[model.MetaPNGPath] = png
	meta[metaScratchDir] = dir
	return model.ExtractionResult{Confidence: rasterConfidence, Metadata: meta}, nil
}

func (s Strategy) renderFirstPage(ctx context.Context, path, dir string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dpi := strconv.Itoa(s.Resolution)

	if s.Renderer == ToolGhostscript {
		out := filepath.Join(dir, stem+"_gs.png")
		_, _, err := s.runner().Run(ctx, s.Tool,
			"-dNOPAUSE", "-dBATCH", "-dSAFER", "-sDEVICE=png16m",
			"-r"+dpi, "-dFirstPage=1", "-dLastPage=1",
			"-sOutputFile="+out, path,
		)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(out); err != nil {
			return "", eris.Wrapf(err, "extraction: %s produced no image", s.Name)
		}
		return out, nil
	}

	base := filepath.Join(dir, stem+"_temp")
	_, _, err := s.runner().Run(ctx, s.Tool, "-f", "1", "-l", "1", "-png", "-r", dpi, path, base)
	if err != nil {
		return "", err
	}
	// pdftoppm zero-pads the page suffix to the width of the page count.
	matches, err := filepath.Glob(base + "-*.png")
	if err != nil || len(matches) == 0 {
		return "", eris.Errorf("extraction: %s produced no image", s.Name)
	}
	sort.Strings(matches)
	return matches[0], nil
}
