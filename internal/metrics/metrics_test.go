package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetOnlineUsers(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.onlineUsers))

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))

	m.SetActiveEditors(7, 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.activeEditors.WithLabelValues("7")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.activeEditors))
	m.SetActiveEditors(7, 0)
	assert.Equal(t, 0, testutil.CollectAndCount(m.activeEditors))

	m.Event("message", "ok")
	m.Event("message", "ok")
	m.Event("join_edit", "permission_denied")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.events.WithLabelValues("message", "ok")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.events))

	m.Broadcast()
	m.DroppedSend()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.broadcasts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.droppedSends))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetOnlineUsers(1)
		m.SessionOpened()
		m.SessionClosed()
		m.SetActiveEditors(1, 1)
		m.Broadcast()
		m.DroppedSend()
		m.Event("x", "ok")
	})
}
