package main

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwsl/ultron/qso"
	"github.com/cwsl/ultron/wsjtx"
)

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Error() error                   { return nil }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient records publishes. Other Client methods are not used.
type fakeClient struct {
	mqtt.Client

	mu   sync.Mutex
	msgs []published
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	c.msgs = append(c.msgs, published{topic: topic, qos: qos, retained: retained, payload: b})
	return doneToken{}
}

func (c *fakeClient) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.msgs))
	for _, m := range c.msgs {
		out = append(out, m.topic)
	}
	return out
}

func (c *fakeClient) find(topic string) (published, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.msgs {
		if m.topic == topic {
			return m, true
		}
	}
	return published{}, false
}

func testMQTTConfig() *MQTTConfig {
	return &MQTTConfig{Enabled: true, Broker: "tcp://localhost:1883", TopicPrefix: "ultron", PublishInterval: 60, QoS: 1, Retain: true}
}

func TestMQTTPublisherEvents(t *testing.T) {
	client := &fakeClient{}
	mp := newMQTTPublisher(client, testMQTTConfig(), prometheus.NewRegistry(), nil)

	mp.Decision(NewDecisionEvent(testDecision(), ""))
	d := testDecision()
	d.Event = qso.EventNone
	mp.Decision(NewDecisionEvent(d, ""))
	mp.Status(&wsjtx.Status{ID: "WSJT-X", Mode: "FT8"})
	mp.Action(qso.Action{Kind: qso.ActionReply, Call: "K1ABC"})

	assert.Equal(t, []string{"ultron/qso/locked", "ultron/status", "ultron/action"}, client.topics())

	status, ok := client.find("ultron/status")
	require.True(t, ok)
	assert.True(t, status.retained)
	assert.Equal(t, byte(1), status.qos)

	locked, _ := client.find("ultron/qso/locked")
	var ev DecisionEvent
	require.NoError(t, json.Unmarshal(locked.payload, &ev))
	assert.Equal(t, "K1ABC", ev.Call)
	assert.False(t, locked.retained)
}

func TestMQTTPublisherDecodes(t *testing.T) {
	client := &fakeClient{}
	cfg := testMQTTConfig()
	cfg.PublishDecodes = true
	mp := newMQTTPublisher(client, cfg, prometheus.NewRegistry(), nil)

	d := testDecision()
	d.Event = qso.EventNone
	mp.Decision(NewDecisionEvent(d, ""))
	assert.Equal(t, []string{"ultron/decode"}, client.topics())
}

func TestMQTTPublisherNewEntityActivity(t *testing.T) {
	client := &fakeClient{}
	mp := newMQTTPublisher(client, testMQTTConfig(), prometheus.NewRegistry(), nil)

	d := testDecision()
	d.Event = qso.EventNone
	d.NewEntity = true
	mp.Decision(NewDecisionEvent(d, ""))

	d.Time = relayT0.Add(10 * time.Minute)
	mp.Decision(NewDecisionEvent(d, ""))
	assert.Equal(t, []string{"ultron/dxcc/activity"}, client.topics(), "one message per entity within the cooldown")

	d.Time = relayT0.Add(30 * time.Minute)
	mp.Decision(NewDecisionEvent(d, ""))
	assert.Equal(t, []string{"ultron/dxcc/activity", "ultron/dxcc/activity"}, client.topics())

	msg, _ := client.find("ultron/dxcc/activity")
	var ev DecisionEvent
	require.NoError(t, json.Unmarshal(msg.payload, &ev))
	assert.True(t, ev.NewEntity)
	assert.Equal(t, "291", ev.EntityID)
}

func TestGatherMetricPayloads(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(reg)
	reg.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{Name: "other_gauge"}))

	pm.Decision(NewDecisionEvent(testDecision(), ""))
	d := testDecision()
	d.Signal.SNR = -20
	d.Event = qso.EventNone
	pm.Decision(NewDecisionEvent(d, ""))
	pm.Status(&wsjtx.Status{DialFrequency: 14074000})

	payloads, err := gatherMetricPayloads(reg, 1700000000)
	require.NoError(t, err)

	assert.NotContains(t, payloads, "other_gauge")

	decisions := payloads["decisions_total"]
	assert.Equal(t, int64(1700000000), decisions.Timestamp)
	assert.Equal(t, map[string]float64{"20m/new_target": 2}, decisions.Metrics)
	assert.Equal(t, []string{"band", "class"}, decisions.Labels)

	assert.Equal(t, map[string]float64{"value": 14074000}, payloads["dial_frequency_hz"].Metrics)
	assert.Equal(t, map[string]float64{"FT8": -15}, payloads["decode_snr_db"].Metrics)
	assert.Equal(t, map[string]float64{"locked": 1}, payloads["qso_events_total"].Metrics)
}

func TestPublishAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	pm := NewPrometheusMetrics(reg)
	pm.Dropped(DropMalformed, nil)

	client := &fakeClient{}
	mp := newMQTTPublisher(client, testMQTTConfig(), reg, nil)
	mp.publishAllMetrics(time.Unix(1700000000, 0))

	msg, ok := client.find("ultron/metrics/packets_dropped_total")
	require.True(t, ok)
	var payload MetricPayload
	require.NoError(t, json.Unmarshal(msg.payload, &payload))
	assert.Equal(t, map[string]float64{"malformed": 1}, payload.Metrics)
	assert.Equal(t, []string{"reason"}, payload.Labels)

	for _, topic := range client.topics() {
		assert.True(t, strings.HasPrefix(topic, "ultron/metrics/"), topic)
	}
}

func TestGenerateClientID(t *testing.T) {
	id := generateClientID()
	assert.True(t, strings.HasPrefix(id, "ultron_"))
	assert.Len(t, id, len("ultron_")+16)
	assert.NotEqual(t, id, generateClientID())
}

func TestLoadTLSConfig(t *testing.T) {
	cfg, err := loadTLSConfig(MQTTTLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = loadTLSConfig(MQTTTLSConfig{Enabled: true, CACert: "/nonexistent/ca.pem"})
	assert.Error(t, err)
}
