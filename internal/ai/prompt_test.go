package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFilename(t *testing.T) {
	meta := ParseFilename("/uploads/06.08.2025_PAGO_Aluguel_Transporte_CC1_R$ 455,79.pdf")
	assert.Equal(t, []string{"06/08/2025"}, meta.Dates)
	assert.Equal(t, "R$ 455,79", meta.Value)
	assert.Equal(t, "PAGO", meta.Type)
	assert.Equal(t, "CC1", meta.CostCenter)
	assert.Equal(t, "Aluguel Transporte", meta.Description)
}

func TestParseFilename_Variants(t *testing.T) {
	meta := ParseFilename("10.09.2025_11.09.2025_AG_Locação-De-Veículos_SRJ1.jpeg")
	assert.Equal(t, []string{"10/09/2025", "11/09/2025"}, meta.Dates)
	assert.Equal(t, "AGENDADO", meta.Type)
	assert.Equal(t, "SRJ1", meta.CostCenter)
	assert.Equal(t, "Locação De Veículos", meta.Description)
	assert.Empty(t, meta.Value)

	assert.True(t, ParseFilename("x.pdf").Empty())
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("TOTAL R$ 120,00", "dir/06.08.2025_PG_Aluguel_CC1.pdf")
	assert.Contains(t, p, "ARQUIVO: 06.08.2025_PG_Aluguel_CC1.pdf")
	assert.Contains(t, p, `TEXTO OCR: "TOTAL R$ 120,00"`)
	assert.Contains(t, p, `"centro_custo": "CC1"`)
	assert.Contains(t, p, `"tipo": "PAGO"`)
	assert.Contains(t, p, `"confidence": 0`)
}
