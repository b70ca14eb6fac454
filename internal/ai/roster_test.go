package ai

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/reconcile-cli/internal/model"
)

func defaultRoster(t *testing.T) *Roster {
	t.Helper()
	r, err := NewRoster(DefaultProviders(), nil)
	require.NoError(t, err)
	return r
}

func names(ps []model.ProviderConfig) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Name
	}
	return out
}

func TestDefaultProviders(t *testing.T) {
	r := defaultRoster(t)
	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, []string{"glm", "openai"}, names(snap))
	assert.Equal(t, "glm-4.5", snap[0].Model)
	assert.Equal(t, 0.0014, snap[0].CostPerKTokens)
	assert.Equal(t, "gpt-4o-mini", snap[1].Model)
	assert.Equal(t, 1500, snap[1].MaxTokens)
	assert.Equal(t, model.ProviderOnline, snap[1].Status)
}

func TestNewRoster_RejectsDuplicates(t *testing.T) {
	_, err := NewRoster([]model.ProviderConfig{{Name: "a"}, {Name: "a"}}, nil)
	assert.Error(t, err)
	_, err = NewRoster([]model.ProviderConfig{{Priority: 1}}, nil)
	assert.Error(t, err)
}

func TestRoster_ToggleAndEnabled(t *testing.T) {
	r := defaultRoster(t)
	on, err := r.Toggle("glm")
	require.NoError(t, err)
	assert.False(t, on)
	assert.Equal(t, []string{"openai"}, names(r.Enabled()))

	_, err = r.Toggle("mistral")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRoster_SetStatus(t *testing.T) {
	r := defaultRoster(t)
	require.NoError(t, r.SetStatus("glm", model.ProviderError))
	p, _ := r.Get("glm")
	assert.Equal(t, model.ProviderError, p.Status)
	assert.Error(t, r.SetStatus("glm", "BROKEN"))
	assert.Len(t, r.Enabled(), 2, "status never removes a provider from the cascade")
}

func TestRoster_SwapPriorities(t *testing.T) {
	r := defaultRoster(t)
	require.NoError(t, r.SwapPriorities("glm", "openai"))
	assert.Equal(t, []string{"openai", "glm"}, names(r.Snapshot()))
	assert.ErrorIs(t, r.SwapPriorities("glm", "nope"), ErrUnknownProvider)
}

func TestRoster_EmergencyMode(t *testing.T) {
	r := defaultRoster(t)
	require.NoError(t, r.EnableEmergencyMode("openai"))

	primary, on := r.Emergency()
	assert.True(t, on)
	assert.Equal(t, "openai", primary)
	assert.Equal(t, []string{"openai"}, names(r.Enabled()))
	glm, _ := r.Get("glm")
	assert.Equal(t, model.ProviderOffline, glm.Status)
	oa, _ := r.Get("openai")
	assert.Equal(t, 1, oa.Priority)

	r.DisableEmergencyMode()
	_, on = r.Emergency()
	assert.False(t, on)
	snap := r.Snapshot()
	assert.Equal(t, []string{"glm", "openai"}, names(snap))
	assert.Equal(t, 1, snap[0].Priority)
	assert.Equal(t, 2, snap[1].Priority)
	assert.True(t, snap[0].Enabled)
	assert.Equal(t, model.ProviderOnline, snap[0].Status)
}

func TestRoster_EmergencyKeepsFirstBaseline(t *testing.T) {
	r := defaultRoster(t)
	require.NoError(t, r.EnableEmergencyMode("openai"))
	require.NoError(t, r.EnableEmergencyMode("glm"))
	r.DisableEmergencyMode()
	assert.Equal(t, []string{"glm", "openai"}, names(r.Enabled()))

	assert.ErrorIs(t, r.EnableEmergencyMode("nope"), ErrUnknownProvider)
}

func TestRoster_SetModel(t *testing.T) {
	r := defaultRoster(t)
	require.NoError(t, r.SetModel("glm", "glm-4.5-air"))
	p, _ := r.Get("glm")
	assert.Equal(t, "glm-4.5-air", p.Model)
	assert.InDelta(t, 0.00065, p.CostPerKTokens, 1e-12)

	assert.Error(t, r.SetModel("glm", "gpt-4o"), "catalog is per provider kind")
	assert.Error(t, r.SetModel("openai", "gpt-9"))

	models, err := r.Models("openai")
	require.NoError(t, err)
	assert.Contains(t, models, "gpt-4o")
}

func TestRoster_UpdateConfig(t *testing.T) {
	r := defaultRoster(t)
	prio, temp, maxTok := 5, 0.3, 800
	require.NoError(t, r.UpdateConfig("glm", ConfigPatch{Priority: &prio, Temperature: &temp, MaxTokens: &maxTok}))
	p, _ := r.Get("glm")
	assert.Equal(t, 5, p.Priority)
	assert.Equal(t, 0.3, p.Temperature)
	assert.Equal(t, 800, p.MaxTokens)
	assert.Equal(t, "glm-4.5", p.Model, "untouched fields keep their value")

	bad := -1
	assert.Error(t, r.UpdateConfig("glm", ConfigPatch{MaxTokens: &bad}))
	wrong := "gpt-4o"
	assert.Error(t, r.UpdateConfig("glm", ConfigPatch{Model: &wrong}))
}

func TestRoster_RecordOutcomeAndMetrics(t *testing.T) {
	r := defaultRoster(t)
	r.RecordOutcome("glm", Outcome{Success: true, CostUSD: 0.002, Tokens: 1000, Latency: 2 * time.Second})
	r.RecordOutcome("glm", Outcome{Success: false, Latency: 4 * time.Second, Reason: model.FallbackTimeout})
	r.RecordOutcome("ghost", Outcome{Success: true})

	p, _ := r.Get("glm")
	assert.Equal(t, 2, p.Stats.TotalRequests)
	assert.Equal(t, 1000, p.Stats.TotalTokens)
	assert.Equal(t, 50.0, p.Stats.SuccessRate)
	assert.Equal(t, 3000.0, p.Stats.AvgResponseTimeMs)
	assert.Equal(t, 1, p.Stats.FailureReasons[model.FallbackTimeout])

	m := r.Metrics()
	require.Len(t, m, 2)
	assert.Equal(t, "glm", m[0].Name)
	assert.InDelta(t, 0.001, m[0].AvgCostUSD, 1e-12)
	assert.Zero(t, m[1].Requests)
}

func TestRoster_Recommendations(t *testing.T) {
	r := defaultRoster(t)
	assert.Empty(t, r.Recommendations(), "no traffic, no advice")

	r.RecordOutcome("glm", Outcome{Success: false, CostUSD: 0.001, Latency: time.Second, Reason: model.FallbackInvalidJSON})
	r.RecordOutcome("openai", Outcome{Success: true, CostUSD: 0.05, Latency: 12 * time.Second})

	recs := strings.Join(r.Recommendations(), "\n")
	assert.Contains(t, recs, "glm: success rate 0.0%")
	assert.Contains(t, recs, "openai: average response time 12000ms")
	assert.Contains(t, recs, "glm costs under a tenth of openai")
	assert.NotContains(t, recs, "openai costs under")
}

func TestRoster_ExportImport(t *testing.T) {
	r := defaultRoster(t)
	r.RecordOutcome("openai", Outcome{Success: true})
	require.NoError(t, r.SetStatus("openai", model.ProviderError))

	var buf bytes.Buffer
	require.NoError(t, r.Export(&buf))
	out := buf.String()
	assert.Contains(t, out, "name: glm")
	assert.Contains(t, out, "base_url: "+GLMBaseURL)
	assert.NotContains(t, out, "total_requests")

	edited := strings.Replace(out, "priority: 1", "priority: 3", 1)
	require.NoError(t, r.Import(strings.NewReader(edited)))
	assert.Equal(t, []string{"openai", "glm"}, names(r.Snapshot()))
	oa, _ := r.Get("openai")
	assert.Equal(t, 1, oa.Stats.TotalRequests, "stats survive an import")
	assert.Equal(t, model.ProviderError, oa.Status)

	assert.Error(t, r.Import(strings.NewReader("providers: []\n")))
	assert.Error(t, r.Import(strings.NewReader("providers:\n  - name: a\n  - name: a\n")))
	assert.Len(t, r.Snapshot(), 2, "failed import keeps the previous roster")
}

func TestRoster_EmergencySurvivesExportImport(t *testing.T) {
	r := defaultRoster(t)
	require.NoError(t, r.EnableEmergencyMode("openai"))

	var buf bytes.Buffer
	require.NoError(t, r.Export(&buf))
	assert.Contains(t, buf.String(), "primary: openai")

	fresh := defaultRoster(t)
	require.NoError(t, fresh.Import(&buf))
	primary, on := fresh.Emergency()
	assert.True(t, on)
	assert.Equal(t, "openai", primary)
	assert.Equal(t, []string{"openai"}, names(fresh.Enabled()))

	fresh.DisableEmergencyMode()
	snap := fresh.Snapshot()
	assert.Equal(t, []string{"glm", "openai"}, names(snap))
	assert.Equal(t, 2, snap[1].Priority)
	assert.True(t, snap[0].Enabled)
}
