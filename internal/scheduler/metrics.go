package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/albapepper/carebeat/internal/push"
)

var (
	ticksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carebeat",
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Completed ticks by outcome (ok, push_disabled, gate_closed, list_failed).",
		},
		[]string{"scheduler", "outcome"},
	)

	tickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "carebeat",
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of ticks that evaluated subjects.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"scheduler"},
	)

	eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carebeat",
			Subsystem: "scheduler",
			Name:      "events_total",
			Help:      "Due occurrences by result (fired, duplicate).",
		},
		[]string{"scheduler", "result"},
	)

	deliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carebeat",
			Subsystem: "scheduler",
			Name:      "deliveries_total",
			Help:      "Endpoint attempts of fired events by result (sent, failed).",
		},
		[]string{"scheduler", "result"},
	)

	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carebeat",
			Subsystem: "scheduler",
			Name:      "errors_total",
			Help:      "Per-subject and recipient resolution failures.",
		},
		[]string{"scheduler", "kind"},
	)
)

func observeTick(res TickResult) {
	outcome := "ok"
	switch {
	case res.Skipped != "":
		outcome = res.Skipped
	case res.Err != nil:
		outcome = "list_failed"
	}
	ticksTotal.WithLabelValues(res.Scheduler, outcome).Inc()
	if outcome != "ok" {
		return
	}

	tickDuration.WithLabelValues(res.Scheduler).Observe(res.Duration.Seconds())
	eventsTotal.WithLabelValues(res.Scheduler, "fired").Add(float64(res.Fired))
	eventsTotal.WithLabelValues(res.Scheduler, "duplicate").Add(float64(res.Duplicates))
	errorsTotal.WithLabelValues(res.Scheduler, "subject").Add(float64(res.SubjectErrors))
	errorsTotal.WithLabelValues(res.Scheduler, "recipient").Add(float64(res.RecipientErrors))
}

func observeDelivery(scheduler string, report push.Report) {
	deliveriesTotal.WithLabelValues(scheduler, "sent").Add(float64(report.Sent()))
	deliveriesTotal.WithLabelValues(scheduler, "failed").Add(float64(report.Failed()))
}
