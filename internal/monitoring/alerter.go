package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/reconcile-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFallbackRate  AlertType = "fallback_rate"
	AlertAIFailureRate AlertType = "ai_failure_rate"
	AlertCostOverrun   AlertType = "cost_overrun"
)

// minSample is the smallest population a rate alert is computed on.
const minSample = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// A zero threshold disables its check.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if a.cfg.FallbackRateThreshold > 0 && snap.Documents >= minSample &&
		snap.FallbackRate > a.cfg.FallbackRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFallbackRate,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Extraction fallback rate %.1f%% exceeds threshold %.1f%% (%d of %d documents in last %dh)",
				snap.FallbackRate*100, a.cfg.FallbackRateThreshold*100,
				snap.DocumentsWithFallback, snap.Documents, snap.LookbackHours,
			),
			Details: map[string]any{
				"fallback_rate":      snap.FallbackRate,
				"threshold":          a.cfg.FallbackRateThreshold,
				"avg_fallback_level": snap.AvgFallbackLevel,
				"documents":          snap.Documents,
			},
			Timestamp: now,
		})
	}

	if a.cfg.AIFailureRateThreshold > 0 && snap.AIRequests >= minSample &&
		snap.AIFailureRate > a.cfg.AIFailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertAIFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"AI failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d requests in last %dh)",
				snap.AIFailureRate*100, a.cfg.AIFailureRateThreshold*100,
				snap.AIFailures, snap.AIRequests, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.AIFailureRate,
				"threshold":    a.cfg.AIFailureRateThreshold,
				"failed":       snap.AIFailures,
				"requests":     snap.AIRequests,
				"providers":    failingProviders(snap.Providers),
			},
			Timestamp: now,
		})
	}

	if a.cfg.CostBudgetUSD > 0 && snap.AICostUSD > a.cfg.CostBudgetUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"AI cost $%.2f exceeds budget $%.2f in last %dh",
				snap.AICostUSD, a.cfg.CostBudgetUSD, snap.LookbackHours,
			),
			Details: map[string]any{
				"cost_usd":    snap.AICostUSD,
				"budget_usd":  a.cfg.CostBudgetUSD,
				"ai_requests": snap.AIRequests,
			},
			Timestamp: now,
		})
	}

	return alerts
}

func failingProviders(stats []ProviderStats) []string {
	out := []string{}
	for _, p := range stats {
		if p.Failures > 0 {
			out = append(out, p.Provider)
		}
	}
	return out
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single alert to the webhook URL.
func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
