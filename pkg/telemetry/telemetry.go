package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	evaluationTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "crm_alert_engine",
			Name:      "evaluation_ticks_total",
			Help:      "Total number of completed evaluation ticks.",
		},
	)

	alertsFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crm_alert_engine",
			Name:      "alerts_fired_total",
			Help:      "Total number of alerts fired, partitioned by severity.",
		},
		[]string{"severity"},
	)

	metricQueryErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crm_alert_engine",
			Name:      "metric_query_errors_total",
			Help:      "Total number of metric source query failures, partitioned by metric.",
		},
		[]string{"metric"},
	)

	escalationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "crm_alert_engine",
			Name:      "escalation_failures_total",
			Help:      "Total number of failed best-effort escalation attempts.",
		},
	)
)

// Register attaches the engine's collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		evaluationTicksTotal,
		alertsFiredTotal,
		metricQueryErrorsTotal,
		escalationFailuresTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveTick records a completed evaluation tick
func ObserveTick() {
	evaluationTicksTotal.Inc()
}

// ObserveAlertFired records a fired alert by severity
func ObserveAlertFired(severity string) {
	alertsFiredTotal.WithLabelValues(severity).Inc()
}

// ObserveMetricQueryError records a metric source query failure
func ObserveMetricQueryError(metric string) {
	metricQueryErrorsTotal.WithLabelValues(metric).Inc()
}

// ObserveEscalationFailure records a failed escalation attempt
func ObserveEscalationFailure() {
	escalationFailuresTotal.Inc()
}
