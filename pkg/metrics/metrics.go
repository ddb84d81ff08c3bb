package metrics

import "github.com/prometheus/client_golang/prometheus"

// FormMetrics exposes counters/histograms for the Gap Scan wizard.
type FormMetrics struct {
	stepsTotal       *prometheus.CounterVec
	submissionsTotal *prometheus.CounterVec
	webhookLatency   prometheus.Histogram
	sessionsCreated  *prometheus.CounterVec
}

func NewFormMetrics(reg prometheus.Registerer) *FormMetrics {
	m := &FormMetrics{
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gapscan",
			Subsystem: "form",
			Name:      "step_advance_total",
			Help:      "Step advance attempts by step and outcome",
		}, []string{"step", "result"}),
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gapscan",
			Subsystem: "form",
			Name:      "submissions_total",
			Help:      "Webhook submissions by outcome",
		}, []string{"result"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gapscan",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "Latency of outbound webhook submissions",
			Buckets:   prometheus.DefBuckets,
		}),
		sessionsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gapscan",
			Subsystem: "form",
			Name:      "sessions_total",
			Help:      "Form sessions opened, split by whether a draft was rehydrated",
		}, []string{"rehydrated"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.stepsTotal, m.submissionsTotal, m.webhookLatency, m.sessionsCreated)
	return m
}

// ObserveStep records one advance attempt. result is "ok" or "invalid".
func (m *FormMetrics) ObserveStep(step int, result string) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(stepLabel(step), result).Inc()
}

// ObserveSubmission records a webhook outcome: "success", "configuration"
// or "transport".
func (m *FormMetrics) ObserveSubmission(result string, seconds float64) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(result).Inc()
	if result != "configuration" {
		m.webhookLatency.Observe(seconds)
	}
}

func (m *FormMetrics) ObserveSession(rehydrated bool) {
	if m == nil {
		return
	}
	label := "false"
	if rehydrated {
		label = "true"
	}
	m.sessionsCreated.WithLabelValues(label).Inc()
}

func stepLabel(step int) string {
	switch step {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	default:
		return "unknown"
	}
}
