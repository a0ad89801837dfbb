package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crowdcount/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertCapacity    AlertType = "capacity"
	AlertStaleSource AlertType = "stale_source"
	AlertNoReadings  AlertType = "no_readings"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Project   string         `json:"project"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds
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
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// A silent feed makes the other checks meaningless.
	if snap.Readings == 0 {
		return []Alert{{
			Type:     AlertNoReadings,
			Project:  snap.Project,
			Severity: "high",
			Message: fmt.Sprintf("%s: no readings in the last %d minutes",
				snap.Name, snap.LookbackMinutes),
			Timestamp: now,
		}}
	}

	if snap.Capacity > 0 && snap.Utilisation >= a.cfg.UtilisationThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertCapacity,
			Project:  snap.Project,
			Severity: "high",
			Message: fmt.Sprintf("%s: occupancy %d is %.1f%% of capacity %d (threshold %.1f%%)",
				snap.Name, snap.Current, snap.Utilisation, snap.Capacity, a.cfg.UtilisationThreshold),
			Details: map[string]any{
				"current":     snap.Current,
				"capacity":    snap.Capacity,
				"utilisation": snap.Utilisation,
				"threshold":   a.cfg.UtilisationThreshold,
			},
			Timestamp: now,
		})
	}

	if len(snap.StaleSources) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertStaleSource,
			Project:  snap.Project,
			Severity: "medium",
			Message: fmt.Sprintf("%s: no recent readings from %s",
				snap.Name, strings.Join(snap.StaleSources, ", ")),
			Details: map[string]any{
				"sources":             snap.StaleSources,
				"stale_after_minutes": a.cfg.StaleAfterMinutes,
			},
			Timestamp: now,
		})
	}

	return alerts
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
				zap.String("project", alert.Project),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("project", alert.Project),
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
