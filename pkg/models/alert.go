package models

import (
	"strconv"
	"strings"
	"time"
)

// Alert is an immutable record of a rule firing plus a mutable resolution
// envelope. Everything except the Resolved* fields is frozen at fire time.
type Alert struct {
	ID           string                 `json:"id"`
	Type         RuleType               `json:"type"`
	Severity     RuleSeverity           `json:"severity"`
	Title        string                 `json:"title"`
	Description  string                 `json:"description"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Threshold    float64                `json:"threshold"`
	CurrentValue float64                `json:"currentValue"`
	Timestamp    time.Time              `json:"timestamp"`
	Resolved     bool                   `json:"resolved"`
	ResolvedAt   *time.Time             `json:"resolvedAt,omitempty"`
	ResolvedBy   string                 `json:"resolvedBy,omitempty"`
}

// AlertFilter is a conjunction over alert fields. Nil fields are unconstrained.
type AlertFilter struct {
	Type     *RuleType     `json:"type,omitempty"`
	Severity *RuleSeverity `json:"severity,omitempty"`
	Resolved *bool         `json:"resolved,omitempty"`
}

// Matches reports whether the alert satisfies every constrained field.
// A nil filter matches everything.
func (f *AlertFilter) Matches(a *Alert) bool {
	if f == nil {
		return true
	}
	if f.Type != nil && a.Type != *f.Type {
		return false
	}
	if f.Severity != nil && a.Severity != *f.Severity {
		return false
	}
	if f.Resolved != nil && a.Resolved != *f.Resolved {
		return false
	}
	return true
}

// AlertCounts summarizes the unresolved portion of the alert log
type AlertCounts struct {
	Active   int `json:"active"`
	Critical int `json:"critical"`
}

// MetricUnit returns the display unit for a metric name: "ms" for
// latency/duration style metrics, "%" for rates, empty for unitless
// metrics such as cumulative_layout_shift.
func MetricUnit(metric string) string {
	switch {
	case strings.Contains(metric, "rate"):
		return "%"
	case strings.Contains(metric, "paint"),
		strings.Contains(metric, "delay"),
		strings.Contains(metric, "duration"),
		strings.Contains(metric, "latency"),
		strings.HasSuffix(metric, "_ms"):
		return "ms"
	default:
		return ""
	}
}

// FormatMetricValue renders a metric value without trailing zeros,
// so 4240.0 prints as "4240" and 0.31 as "0.31".
func FormatMetricValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
