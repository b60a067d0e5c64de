package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "slotkeeper"

// Drop reasons for DatagramsDropped.
const (
	DropInjected    = "injected"
	DropRateLimited = "rate_limited"
	DropMalformed   = "malformed"
)

// OpUnknown labels DatagramsReceived for operation codes the server does not know.
const OpUnknown = "unknown"

// Metrics holds the Prometheus collectors of the server. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// DatagramsReceived counts decoded requests by operation.
	DatagramsReceived *prometheus.CounterVec

	// DatagramsDropped counts inbound datagrams that were never dispatched.
	DatagramsDropped *prometheus.CounterVec

	// ResponsesSent counts replies written to the socket by status.
	ResponsesSent *prometheus.CounterVec

	// ResponsesLost counts replies withheld by loss injection.
	ResponsesLost prometheus.Counter

	// Duplicates counts requests answered from the dedup cache.
	Duplicates prometheus.Counter

	// Notifications counts notification writes by result.
	Notifications *prometheus.CounterVec

	// Bookings counts successful booking mutations by kind.
	Bookings *prometheus.CounterVec

	// ActiveMonitors is the number of live monitor registrations.
	ActiveMonitors prometheus.Gauge

	// DedupEntries is the number of remembered request keys.
	DedupEntries prometheus.Gauge

	// DispatchDuration is the time spent handling one datagram in the reactor.
	DispatchDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DatagramsReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "datagrams_received_total",
				Help:      "Total number of decoded requests",
			},
			[]string{"op"},
		),

		DatagramsDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "datagrams_dropped_total",
				Help:      "Total number of inbound datagrams dropped before dispatch",
			},
			[]string{"reason"},
		),

		ResponsesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "responses_sent_total",
				Help:      "Total number of responses sent",
			},
			[]string{"status"},
		),

		ResponsesLost: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "responses_lost_total",
				Help:      "Total number of responses withheld by loss injection",
			},
		),

		Duplicates: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "duplicate_requests_total",
				Help:      "Total number of duplicate requests detected",
			},
		),

		Notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "notifications_total",
				Help:      "Total number of monitor notifications by result",
			},
			[]string{"result"},
		),

		Bookings: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "booking_events_total",
				Help:      "Total number of successful booking mutations",
			},
			[]string{"kind"},
		),

		ActiveMonitors: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "active_monitors",
				Help:      "Current number of monitor registrations",
			},
		),

		DedupEntries: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "dedup_entries",
				Help:      "Current number of remembered request keys",
			},
		),

		DispatchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Time to handle one datagram",
				Buckets:   []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
			},
		),
	}
}

func (m *Metrics) IncReceived(op string) {
	if m == nil {
		return
	}
	m.DatagramsReceived.WithLabelValues(op).Inc()
}

func (m *Metrics) IncDropped(reason string) {
	if m == nil {
		return
	}
	m.DatagramsDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncSent(status string) {
	if m == nil {
		return
	}
	m.ResponsesSent.WithLabelValues(status).Inc()
}

func (m *Metrics) IncLost() {
	if m == nil {
		return
	}
	m.ResponsesLost.Inc()
}

func (m *Metrics) IncDuplicate() {
	if m == nil {
		return
	}
	m.Duplicates.Inc()
}

// IncNotification records one notification; ok is false when every write attempt failed.
func (m *Metrics) IncNotification(ok bool) {
	if m == nil {
		return
	}
	result := "sent"
	if !ok {
		result = "failed"
	}
	m.Notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) IncBooking(kind string) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetActiveMonitors(n int) {
	if m == nil {
		return
	}
	m.ActiveMonitors.Set(float64(n))
}

func (m *Metrics) SetDedupEntries(n int) {
	if m == nil {
		return
	}
	m.DedupEntries.Set(float64(n))
}

func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchDuration.Observe(d.Seconds())
}
