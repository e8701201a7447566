package push

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carebeat",
			Subsystem: "push",
			Name:      "sends_total",
			Help:      "Endpoint delivery attempts by payload type and reason.",
		},
		[]string{"type", "reason"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "carebeat",
			Subsystem: "push",
			Name:      "send_duration_seconds",
			Help:      "Latency of one endpoint delivery attempt.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"reason"},
	)

	prunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "carebeat",
			Subsystem: "push",
			Name:      "pruned_endpoints_total",
			Help:      "Subscriptions deleted after the push service reported them gone.",
		},
	)
)

func observeReport(payloadType string, report Report) {
	for _, res := range report.Results {
		sendsTotal.WithLabelValues(payloadType, res.Reason).Inc()
		sendDuration.WithLabelValues(res.Reason).Observe(res.Duration.Seconds())
	}
	prunedTotal.Add(float64(report.Pruned))
}
