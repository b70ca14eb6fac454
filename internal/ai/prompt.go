package ai

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// SystemPrompt frames every provider call.
const SystemPrompt = "Você é um especialista em análise de documentos financeiros brasileiros. Responda sempre em JSON válido."

var (
	fileDateRe       = regexp.MustCompile(`(\d{2})\.(\d{2})\.(\d{4})`)
	fileValueRe      = regexp.MustCompile(`R\$\s*(\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{2}))`)
	fileDatePartRe   = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)
	fileCostCenterRe = regexp.MustCompile(`^[A-Z]{2,4}\d+$`)
)

var documentExtensions = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true,
	".tif": true, ".tiff": true, ".heic": true, ".webp": true,
}

// FilenameMetadata is what the uploader encoded in the file name. It is
// sent to the provider for cross-checking.
type FilenameMetadata struct {
	Dates       []string `json:"datas,omitempty"`
	Value       string   `json:"valor,omitempty"`
	Description string   `json:"descricao,omitempty"`
	Type        string   `json:"tipo,omitempty"`
	CostCenter  string   `json:"centro_custo,omitempty"`
}

// Empty reports whether nothing was recognized.
func (m FilenameMetadata) Empty() bool {
	return len(m.Dates) == 0 && m.Value == "" && m.Description == "" && m.Type == "" && m.CostCenter == ""
}

// ParseFilename reads the conventional "DD.MM.YYYY_TIPO_Descricao_CC_R$ X,XX.pdf" layout.
func ParseFilename(name string) FilenameMetadata {
	name = filepath.Base(name)
	if ext := filepath.Ext(name); documentExtensions[strings.ToLower(ext)] {
		name = strings.TrimSuffix(name, ext)
	}

	var meta FilenameMetadata
	for _, m := range fileDateRe.FindAllStringSubmatch(name, -1) {
		meta.Dates = append(meta.Dates, m[1]+"/"+m[2]+"/"+m[3])
	}
	if m := fileValueRe.FindStringSubmatch(name); m != nil {
		meta.Value = "R$ " + m[1]
	}

	var desc []string
	for _, part := range strings.Split(name, "_") {
		part = strings.TrimSpace(part)
		upper := strings.ToUpper(part)
		switch {
		case len(part) <= 1, fileDatePartRe.MatchString(part), strings.HasPrefix(part, "R$"):
			continue
		case upper == "PG" || upper == "PAGO":
			meta.Type = "PAGO"
			continue
		case upper == "AG" || upper == "AGENDADO":
			meta.Type = "AGENDADO"
			continue
		case meta.CostCenter == "" && fileCostCenterRe.MatchString(part):
			meta.CostCenter = part
			continue
		}
		desc = append(desc, strings.NewReplacer("-", " ", "_", " ").Replace(part))
	}
	meta.Description = strings.Join(desc, " ")
	return meta
}

// BuildPrompt renders the user prompt for one document.
func BuildPrompt(text, filename string) string {
	meta, _ := json.MarshalIndent(ParseFilename(filename), "", "  ")
	return fmt.Sprintf(promptTemplate, filepath.Base(filename), text, meta)
}

const promptTemplate = `Analise o documento fiscal brasileiro abaixo com foco em precisão.

ARQUIVO: %s
TEXTO OCR: %q

METADADOS DO ARQUIVO (para validação cruzada):
%s

PRIORIDADES:
1. Quando o OCR estiver incompleto, prefira os dados estruturados do nome do arquivo.
2. Use o texto OCR para fornecedor, descrição e documento.
3. Se o valor do OCR divergir muito do arquivo, use o valor do arquivo.

REGRAS:
- valor no formato "R$ X.XXX,XX"
- datas no formato "DD/MM/AAAA"
- centro_custo: código alfanumérico do arquivo (ex: SRJ1, SP01)
- documento: CNPJ ou CPF, se houver

Responda apenas com JSON puro, sem markdown, seguindo o modelo:
{
  "valor": "R$ 0,00",
  "data_pagamento": "DD/MM/AAAA",
  "data_vencimento": "DD/MM/AAAA",
  "fornecedor": "",
  "descricao": "",
  "categoria": "",
  "centro_custo": "",
  "documento": "",
  "cliente_fornecedor": "",
  "observacoes": "",
  "confidence": 0
}`
