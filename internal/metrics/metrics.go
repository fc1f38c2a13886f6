// Package metrics exposes Prometheus collectors for presence, sessions and
// collaborative editing. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "officechat"

// Metrics groups the service collectors.
type Metrics struct {
	onlineUsers   prometheus.Gauge
	sessions      prometheus.Gauge
	activeEditors *prometheus.GaugeVec
	broadcasts    prometheus.Counter
	droppedSends  prometheus.Counter
	events        *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		onlineUsers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_users",
			Help:      "Number of users currently present.",
		}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Number of open WebSocket sessions.",
		}),
		activeEditors: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_editors",
			Help:      "Live editors per shared file.",
		}, []string{"file_id"}),
		broadcasts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Frames fanned out to rooms.",
		}),
		droppedSends: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_sends_total",
			Help:      "Frames dropped because a session buffer was full.",
		}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound events by type and result.",
		}, []string{"type", "result"}),
	}
}

func (m *Metrics) SetOnlineUsers(n int) {
	if m == nil {
		return
	}
	m.onlineUsers.Set(float64(n))
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.sessions.Dec()
}

// SetActiveEditors records the live editor count of a file; zero removes the
// series.
func (m *Metrics) SetActiveEditors(fileID int64, n int) {
	if m == nil {
		return
	}
	label := strconv.FormatInt(fileID, 10)
	if n == 0 {
		m.activeEditors.DeleteLabelValues(label)
		return
	}
	m.activeEditors.WithLabelValues(label).Set(float64(n))
}

func (m *Metrics) Broadcast() {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
}

func (m *Metrics) DroppedSend() {
	if m == nil {
		return
	}
	m.droppedSends.Inc()
}

// Event counts an inbound event; result is "ok" or an error code.
func (m *Metrics) Event(kind, result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind, result).Inc()
}
