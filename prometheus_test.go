package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/ultron/qso"
	"github.com/cwsl/ultron/wsjtx"
)

func TestPrometheusMetricsSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(reg)

	pm.Decision(NewDecisionEvent(testDecision(), ""))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.decisions.WithLabelValues("new_target", "20m")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.events.WithLabelValues("locked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.locked))

	pm.Action(qso.Action{Kind: qso.ActionHaltTx})
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.locked))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.actions.WithLabelValues("halt_tx")))

	pm.Status(&wsjtx.Status{TxEnabled: true, DialFrequency: 7074000})
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.txEnabled))
	assert.Equal(t, 7074000.0, testutil.ToFloat64(pm.dialFrequency))

	pm.Dropped(DropOverrun, nil)
	pm.Dropped(DropOverrun, nil)
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.packetsDropped.WithLabelValues(DropOverrun)))

	d := testDecision()
	d.Event, d.Band = qso.EventNone, ""
	pm.Decision(NewDecisionEvent(d, ""))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.decisions.WithLabelValues("new_target", "unknown")))
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.newEntitySeen))

	d.NewEntity = true
	pm.Decision(NewDecisionEvent(d, ""))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.newEntitySeen))
}

func TestPrometheusHandlerAccessControl(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(reg)
	pm.Dropped(DropMalformed, nil)

	cfg := DefaultConfig()
	handler := prometheusHandler(&cfg.Prometheus, reg)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ultron_packets_dropped_total{reason="malformed"} 1`)

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.RemoteAddr = "198.51.100.7:40000"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "403 Forbidden: Access denied\n", rec.Body.String())
}
