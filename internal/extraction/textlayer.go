package extraction

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/charmap"
	xunicode "golang.org/x/text/encoding/unicode"

	"github.com/sells-group/reconcile-cli/internal/model"
)

// readTextLayer decodes text-showing operators from every page content stream.
func readTextLayer(path string) (model.ExtractionResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.ExtractionResult{}, eris.Wrap(err, "extraction: open pdf")
	}
	defer f.Close()

	pdfCtx, err := api.ReadValidateAndOptimize(f, pdfmodel.NewDefaultConfiguration())
	if err != nil {
		return model.ExtractionResult{}, eris.Wrap(err, "extraction: read pdf")
	}

	var pages []string
	for pageNr := 1; pageNr <= pdfCtx.PageCount; pageNr++ {
		r, err := pdfcpu.ExtractPageContent(pdfCtx, pageNr)
		if err != nil || r == nil {
			continue
		}
		data, err := io.ReadAll(r)
		if err != nil || len(data) == 0 {
			continue
		}
		if text := decodeContentStream(data); text != "" {
			pages = append(pages, text)
		}
	}

	text := strings.TrimSpace(strings.Join(pages, "\n"))
	if text == "" {
		return model.ExtractionResult{}, eris.New("extraction: pdf has no text layer")
	}
	if printableRatio(text) < 0.5 {
		return model.ExtractionResult{}, eris.New("extraction: text layer uses an undecodable font encoding")
	}

	chars := utf8.RuneCountInString(text)
	conf := 70
	if chars > 50 {
		conf = 95
	}
	return model.ExtractionResult{
		Text:           text,
		Confidence:     conf,
		CharacterCount: chars,
		Metadata: map[string]any{
			model.MetaPageCount: pdfCtx.PageCount,
			model.MetaTool:      "pdfcpu",
		},
	}, nil
}

// decodeContentStream walks a page content stream and renders the operands of
// the text-showing operators (Tj, TJ, ' and ") as lines of text.
func decodeContentStream(data []byte) string {
	var (
		out      strings.Builder
		operands []string
		inArray  bool
	)
	newline := func() {
		if out.Len() > 0 {
			out.WriteByte('\n')
		}
	}
	emit := func() {
		for _, s := range operands {
			out.WriteString(s)
		}
	}

	for i := 0; i < len(data); {
		c := data[i]
		switch {
		case isPDFSpace(c):
			i++
		case c == '%':
			for i < len(data) && data[i] != '\n' && data[i] != '\r' {
				i++
			}
		case c == '(':
			s, next := readLiteralString(data, i)
			operands = append(operands, decodePDFText(s))
			i = next
		case c == '<' && i+1 < len(data) && data[i+1] == '<':
			i += 2
		case c == '>' && i+1 < len(data) && data[i+1] == '>':
			i += 2
		case c == '<':
			s, next := readHexString(data, i)
			operands = append(operands, decodePDFText(s))
			i = next
		case c == '[':
			inArray = true
			i++
		case c == ']':
			inArray = false
			i++
		case c == '/':
			i++
			for i < len(data) && !isPDFSpace(data[i]) && !isPDFDelim(data[i]) {
				i++
			}
		default:
			start := i
			for i < len(data) && !isPDFSpace(data[i]) && !isPDFDelim(data[i]) {
				i++
			}
			if i == start {
				i++
				continue
			}
			tok := string(data[start:i])
			if n, err := strconv.ParseFloat(tok, 64); err == nil {
				// Large negative kerning inside a TJ array separates words.
				if inArray && n < -200 {
					operands = append(operands, " ")
				}
				continue
			}
			switch tok {
			case "Tj", "TJ":
				emit()
			case "'", "\"":
				newline()
				emit()
			case "T*", "Td", "TD", "Tm", "ET":
				newline()
			}
			operands = operands[:0]
		}
	}
	return cleanLines(out.String())
}

func readLiteralString(data []byte, i int) ([]byte, int) {
	var buf bytes.Buffer
	depth := 0
	for i++; i < len(data); i++ {
		c := data[i]
		switch {
		case c == '\\' && i+1 < len(data):
			i++
			switch e := data[i]; e {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b', 'f':
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && i+1 < len(data) && data[i+1] >= '0' && data[i+1] <= '7'; k++ {
						i++
						v = v*8 + int(data[i]-'0')
					}
					buf.WriteByte(byte(v))
				} else {
					buf.WriteByte(e)
				}
			}
		case c == '(':
			depth++
			buf.WriteByte(c)
		case c == ')':
			if depth == 0 {
				return buf.Bytes(), i + 1
			}
			depth--
			buf.WriteByte(c)
		default:
			buf.WriteByte(c)
		}
	}
	return buf.Bytes(), i
}

func readHexString(data []byte, i int) ([]byte, int) {
	var digits []byte
	for i++; i < len(data) && data[i] != '>'; i++ {
		if isHex(data[i]) {
			digits = append(digits, data[i])
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	for k := range out {
		v, _ := strconv.ParseUint(string(digits[2*k:2*k+2]), 16, 8)
		out[k] = byte(v)
	}
	return out, i + 1
}

var utf16BE = xunicode.UTF16(xunicode.BigEndian, xunicode.ExpectBOM)

// decodePDFText handles UTF-16BE strings with a byte order mark and treats
// everything else as a single-byte Windows-1252 string.
func decodePDFText(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		if s, err := utf16BE.NewDecoder().Bytes(b); err == nil {
			return string(s)
		}
	}
	s, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

func cleanLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

func printableRatio(s string) float64 {
	total, printable := 0, 0
	for _, r := range s {
		total++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(printable) / float64(total)
}

func isPDFSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isPDFDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
