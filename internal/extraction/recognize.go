package extraction

import (
	"bufio"
	"bytes"
	"context"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// RecognitionConfigs is the fixed order in which layouts are tried against an image.
var RecognitionConfigs = []RecognitionConfig{
	{Name: "PORTUGUES_PADRAO", Language: "por", PSM: 1, OEM: 3},
	{Name: "AUTO_DETECT", Language: "por", PSM: 3, OEM: 1},
	{Name: "BLOCO_UNICO", Language: "por", PSM: 6, OEM: 3},
	{Name: "MULTI_IDIOMA", Language: "por+eng", PSM: 1, OEM: 2},
	{Name: "TEXTO_DENSO", Language: "por", PSM: 2, OEM: 3},
	{Name: "LINHA_UNICA", Language: "por", PSM: 7, OEM: 2},
}

// recognize runs tesseract in TSV mode against an image and rebuilds the text
// line by line. Confidence is the mean word confidence.
func (s Strategy) recognize(ctx context.Context, imagePath string) (model.ExtractionResult, error) {
	cfg := s.Recognition
	stdout, _, err := s.runner().Run(ctx, s.Tool,
		imagePath, "stdout",
		"-l", cfg.Language,
		"--psm", strconv.Itoa(cfg.PSM),
		"--oem", strconv.Itoa(cfg.OEM),
		"tsv",
	)
	if err != nil {
		return model.ExtractionResult{}, err
	}

	text, conf, words := parseTSV(stdout)
	if words == 0 {
		return model.ExtractionResult{}, eris.Errorf("extraction: %s recognized no words", s.Name)
	}
	return model.ExtractionResult{
		Text:           text,
		Confidence:     int(math.Round(conf)),
		CharacterCount: utf8.RuneCountInString(text),
		Metadata: map[string]any{
			model.MetaTesseractConfig: cfg.Name,
			model.MetaLanguage:        cfg.Language,
			model.MetaWordCount:       words,
		},
	}, nil
}

const tsvColumns = 12

// parseTSV reads tesseract TSV output. Word rows (level 5) are grouped by
// block, paragraph and line number.
func parseTSV(out []byte) (text string, meanConf float64, words int) {
	var (
		lines   []string
		current []string
		lineKey string
		confSum float64
	)
	flush := func() {
		if len(current) > 0 {
			lines = append(lines, strings.Join(current, " "))
			current = current[:0]
		}
	}

	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		cols := strings.Split(sc.Text(), "\t")
		if len(cols) < tsvColumns || cols[0] != "5" {
			continue
		}
		word := strings.TrimSpace(cols[11])
		conf, err := strconv.ParseFloat(cols[10], 64)
		if word == "" || err != nil || conf < 0 {
			continue
		}

		key := cols[1] + "/" + cols[2] + "/" + cols[3] + "/" + cols[4]
		if key != lineKey {
			flush()
			lineKey = key
		}
		current = append(current, word)
		confSum += conf
		words++
	}
	flush()

	if words == 0 {
		return "", 0, 0
	}
	return strings.Join(lines, "\n"), confSum / float64(words), words
}
