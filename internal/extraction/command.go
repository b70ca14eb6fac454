package extraction

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// runCommand extracts the text layer with pdftotext, preserving layout.
func (s Strategy) runCommand(ctx context.Context, path string) (model.ExtractionResult, error) {
	stdout, stderr, err := s.runner().Run(ctx, s.Tool, "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return model.ExtractionResult{}, err
	}

	text := strings.TrimSpace(string(stdout))
	if text == "" && strings.TrimSpace(string(stderr)) != "" {
		return model.ExtractionResult{}, eris.Errorf("extraction: %s: %s", s.Tool, tail(string(stderr), 300))
	}

	chars := utf8.RuneCountInString(text)
	conf := 65
	if chars > 50 {
		conf = 90
	}
	return model.ExtractionResult{
		Text:           text,
		Confidence:     conf,
		CharacterCount: chars,
		Metadata:       map[string]any{model.MetaTool: s.Tool},
	}, nil
}
