package main

import (
	"log"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwsl/ultron/qso"
	"github.com/cwsl/ultron/wsjtx"
)

// PrometheusMetrics holds the relay and engine collectors
type PrometheusMetrics struct {
	packetsDropped  *prometheus.CounterVec   // Datagrams not dispatched, by reason
	decisions       *prometheus.CounterVec   // Classified decodes, by class and band
	actions         *prometheus.CounterVec   // Reply / Halt Tx packets, by kind
	events          *prometheus.CounterVec   // Engine transitions, by event
	decodeSNR       *prometheus.HistogramVec // SNR of decodes, by mode
	locked          prometheus.Gauge         // 1 while a target is locked
	txEnabled       prometheus.Gauge         // Client Tx Enabled flag
	dialFrequency   prometheus.Gauge         // Client dial frequency in Hz
	lastStatus      prometheus.Gauge         // Unix time of the last Status packet
	whitelistedSeen prometheus.Counter       // Decodes from whitelisted entities
	newEntitySeen   prometheus.Counter       // Decodes from entities never worked
}

// NewPrometheusMetrics registers the collectors with reg. A nil reg uses the
// default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		packetsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ultron_packets_dropped_total",
			Help: "UDP datagrams that were not dispatched",
		}, []string{"reason"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ultron_decisions_total",
			Help: "Decoded signals by classification",
		}, []string{"class", "band"}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ultron_actions_total",
			Help: "Packets sent back to the client",
		}, []string{"kind"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ultron_qso_events_total",
			Help: "Automation state transitions",
		}, []string{"event"}),
		decodeSNR: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ultron_decode_snr_db",
			Help:    "SNR of decoded signals",
			Buckets: prometheus.LinearBuckets(-30, 5, 11),
		}, []string{"mode"}),
		locked: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ultron_qso_locked",
			Help: "1 while a target station is locked",
		}),
		txEnabled: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ultron_tx_enabled",
			Help: "Tx Enabled flag reported by the client",
		}),
		dialFrequency: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ultron_dial_frequency_hz",
			Help: "Dial frequency reported by the client",
		}),
		lastStatus: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ultron_last_status_timestamp_seconds",
			Help: "Unix time of the last Status packet",
		}),
		whitelistedSeen: factory.NewCounter(prometheus.CounterOpts{
			Name: "ultron_whitelisted_decodes_total",
			Help: "Decodes from whitelisted entities",
		}),
		newEntitySeen: factory.NewCounter(prometheus.CounterOpts{
			Name: "ultron_new_entity_decodes_total",
			Help: "Decodes from DXCC entities not yet in the log",
		}),
	}
}

func (pm *PrometheusMetrics) Decision(ev DecisionEvent) {
	band := ev.Band
	if band == "" {
		band = "unknown"
	}
	pm.decisions.WithLabelValues(ev.Class, band).Inc()
	pm.decodeSNR.WithLabelValues(ev.Mode).Observe(float64(ev.SNR))
	if ev.Whitelisted {
		pm.whitelistedSeen.Inc()
	}
	if ev.NewEntity {
		pm.newEntitySeen.Inc()
	}
	switch ev.Decision.Event {
	case qso.EventNone:
	case qso.EventLocked:
		pm.events.WithLabelValues(ev.Event).Inc()
		pm.locked.Set(1)
	default:
		pm.events.WithLabelValues(ev.Event).Inc()
		pm.locked.Set(0)
	}
}

func (pm *PrometheusMetrics) Status(st *wsjtx.Status) {
	if st.TxEnabled {
		pm.txEnabled.Set(1)
	} else {
		pm.txEnabled.Set(0)
	}
	pm.dialFrequency.Set(float64(st.DialFrequency))
	pm.lastStatus.SetToCurrentTime()
}

func (pm *PrometheusMetrics) Action(a qso.Action) {
	pm.actions.WithLabelValues(a.Kind.String()).Inc()
	if a.Kind == qso.ActionHaltTx {
		pm.locked.Set(0)
	}
}

func (pm *PrometheusMetrics) Dropped(reason string, _ error) {
	pm.packetsDropped.WithLabelValues(reason).Inc()
}

// prometheusHandler serves gatherer with IP-based access control
func prometheusHandler(cfg *PrometheusConfig, gatherer prometheus.Gatherer) http.Handler {
	metrics := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !cfg.IsIPAllowed(host) {
			w.WriteHeader(http.StatusForbidden)
			if _, err := w.Write([]byte("403 Forbidden: Access denied\n")); err != nil {
				log.Printf("Error writing forbidden response: %v", err)
			}
			log.Printf("Prometheus metrics access denied for IP: %s", host)
			return
		}
		metrics.ServeHTTP(w, r)
	})
}
