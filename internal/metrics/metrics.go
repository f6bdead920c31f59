// Package metrics exposes Prometheus counters for proctored attempts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/stemsi/exstem-viva/internal/proctor"
)

var (
	attemptsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "viva_attempts_started_total",
		Help: "Total exam attempts started",
	})

	attemptsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "viva_attempts_active",
		Help: "Attempts currently connected",
	})

	transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viva_transitions_total",
		Help: "Accepted state transitions by target state",
	}, []string{"to"})

	rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viva_transition_rejections_total",
		Help: "Rejected transitions by requested target state",
	}, []string{"to"})

	violations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viva_violations_total",
		Help: "Counted security violations by reason",
	}, []string{"reason"})

	nudges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "viva_nudges_total",
		Help: "Blocked but uncounted learner actions",
	})

	terminations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "viva_terminations_total",
		Help: "Attempts terminated at the violation threshold",
	})

	marksWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viva_marks_writes_total",
		Help: "Marks writes by outcome",
	}, []string{"outcome"})

	loadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "viva_question_load_failures_total",
		Help: "Question generation failures",
	})
)

// Observer records lifecycle events as metrics.
type Observer struct{}

func (Observer) Observe(e proctor.Event) {
	switch e.Kind {
	case proctor.EventTransition:
		transitions.WithLabelValues(string(e.To)).Inc()
		switch e.To {
		case proctor.StateGenerating:
			if e.From == proctor.StateLoading {
				attemptsStarted.Inc()
			}
		case proctor.StateTerminated:
			terminations.Inc()
		}
	case proctor.EventRejected:
		rejections.WithLabelValues(string(e.To)).Inc()
	case proctor.EventViolation:
		violations.WithLabelValues(e.Reason).Inc()
	case proctor.EventNudge:
		nudges.Inc()
	case proctor.EventMarksSaved:
		marksWrites.WithLabelValues("saved").Inc()
	case proctor.EventMarksFailed:
		marksWrites.WithLabelValues("failed").Inc()
	case proctor.EventLoadFailed:
		loadFailures.Inc()
	}
}

// Connected tracks a live attempt; the returned func releases it.
func Connected() (release func()) {
	attemptsActive.Inc()
	return func() { attemptsActive.Dec() }
}
