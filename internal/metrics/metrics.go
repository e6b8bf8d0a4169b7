// Package metrics provides Prometheus metrics for replay sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery phases used as the "phase" label.
const (
	PhaseBurst  = "burst"
	PhaseSteady = "steady"
)

// Session error reasons used as the "reason" label.
const (
	ReasonOpen = "open"
	ReasonRead = "read"
	ReasonSend = "send"
)

var (
	SessionsOpenedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wsreplay_sessions_opened_total",
		Help: "Total number of replay sessions started.",
	})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wsreplay_sessions_active",
		Help: "Current number of connected replay sessions.",
	})

	RecordsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsreplay_records_sent_total",
		Help: "Total number of records forwarded to clients, by phase.",
	}, []string{"phase"})

	BytesSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsreplay_bytes_sent_total",
		Help: "Total number of record bytes forwarded to clients, by phase.",
	}, []string{"phase"})

	SessionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsreplay_session_errors_total",
		Help: "Total number of sessions terminated by an error, by reason.",
	}, []string{"reason"})
)

// RecordSent counts one forwarded record of n bytes.
func RecordSent(phase string, n int) {
	RecordsSentTotal.WithLabelValues(phase).Inc()
	BytesSentTotal.WithLabelValues(phase).Add(float64(n))
}

// SessionOpened marks a new connected session.
func SessionOpened() {
	SessionsOpenedTotal.Inc()
	SessionsActive.Inc()
}

// SessionClosed marks a session gone.
func SessionClosed() {
	SessionsActive.Dec()
}

// SessionFailed counts a session terminated by err reason.
func SessionFailed(reason string) {
	SessionErrorsTotal.WithLabelValues(reason).Inc()
}
