package tracker

import (
	"context"
	"fmt"
	"log/slog"
)

// AlertKind classifies a tracker alert.
type AlertKind string

// Alert kinds.
const (
	AlertBudgetWarning  AlertKind = "budget_warning"
	AlertBudgetCritical AlertKind = "budget_critical"
	AlertLowPerformance AlertKind = "low_performance"
)

// Thresholds are the ratios that raise alerts.
type Thresholds struct {
	BudgetWarning  float64
	BudgetCritical float64
	LowPerformance float64
}

// DefaultThresholds warns at 80% and 95% of budget and when fewer than half
// of the target applications have arrived.
var DefaultThresholds = Thresholds{BudgetWarning: 0.8, BudgetCritical: 0.95, LowPerformance: 0.5}

// Alert reports a campaign crossing a threshold. Alerts are informational;
// nothing acts on them automatically.
type Alert struct {
	Kind         AlertKind
	CampaignID   int64
	Campaign     string
	Ratio        float64
	Spent        float64
	Budget       float64
	Applications int
	Target       int
}

// Message renders the alert for humans.
func (a Alert) Message() string {
	switch a.Kind {
	case AlertBudgetCritical:
		return fmt.Sprintf("Campaign %d (%s): CRITICAL, %.1f%% of budget used (%.2f of %.2f)",
			a.CampaignID, a.Campaign, a.Ratio*100, a.Spent, a.Budget)
	case AlertBudgetWarning:
		return fmt.Sprintf("Campaign %d (%s): %.1f%% of budget used (%.2f of %.2f)",
			a.CampaignID, a.Campaign, a.Ratio*100, a.Spent, a.Budget)
	case AlertLowPerformance:
		return fmt.Sprintf("Campaign %d (%s): low performance, %.1f%% of target (%d of %d applications)",
			a.CampaignID, a.Campaign, a.Ratio*100, a.Applications, a.Target)
	default:
		return fmt.Sprintf("Campaign %d: alert %s", a.CampaignID, a.Kind)
	}
}

// AlertSink receives alerts.
type AlertSink interface {
	Send(ctx context.Context, a Alert) error
}

// LogSink writes alerts to a logger.
type LogSink struct {
	Log *slog.Logger
}

// Send logs the alert at warn level.
func (s LogSink) Send(_ context.Context, a Alert) error {
	s.Log.Warn(a.Message(), "campaign_id", a.CampaignID, "alert", string(a.Kind), "ratio", a.Ratio)
	return nil
}

// Sinks fans an alert out to several sinks and returns the first error.
type Sinks []AlertSink

// Send delivers the alert to every sink.
func (s Sinks) Send(ctx context.Context, a Alert) error {
	var first error
	for _, sink := range s {
		if err := sink.Send(ctx, a); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func evaluate(th Thresholds, id int64, name string, budget float64, target int, spent float64, apps int) []Alert {
	var out []Alert
	if budget > 0 {
		usage := spent / budget
		base := Alert{CampaignID: id, Campaign: name, Ratio: usage, Spent: spent, Budget: budget}
		switch {
		case usage >= th.BudgetCritical:
			base.Kind = AlertBudgetCritical
			out = append(out, base)
		case usage >= th.BudgetWarning:
			base.Kind = AlertBudgetWarning
			out = append(out, base)
		}
	}
	if target > 0 {
		rate := float64(apps) / float64(target)
		if rate < th.LowPerformance {
			out = append(out, Alert{
				Kind: AlertLowPerformance, CampaignID: id, Campaign: name,
				Ratio: rate, Applications: apps, Target: target,
			})
		}
	}
	return out
}
