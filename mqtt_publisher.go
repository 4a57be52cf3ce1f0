package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/cwsl/ultron/qso"
	"github.com/cwsl/ultron/wsjtx"
)

// metricPrefix selects which gathered metrics are published.
const metricPrefix = "ultron_"

// activityCooldown limits new-entity activity messages to one per entity.
const activityCooldown = 30 * time.Minute

// MQTTPublisher publishes relay events and periodic metric snapshots
type MQTTPublisher struct {
	client   mqtt.Client
	config   *MQTTConfig
	gatherer prometheus.Gatherer
	commands *Commands

	// receive goroutine only
	activity map[string]time.Time // entity id -> last activity message
}

// MetricPayload represents a metric message for MQTT
type MetricPayload struct {
	Timestamp int64              `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
	Labels    []string           `json:"labels,omitempty"`
}

// generateClientID creates a random client ID for MQTT connection
func generateClientID() string {
	return "ultron_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
}

// loadTLSConfig loads TLS configuration from files
func loadTLSConfig(tlsConfig MQTTTLSConfig) (*tls.Config, error) {
	if !tlsConfig.Enabled {
		return nil, nil
	}

	config := &tls.Config{MinVersion: tls.VersionTLS12}

	if tlsConfig.CACert != "" {
		caCert, err := os.ReadFile(tlsConfig.CACert)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		config.RootCAs = caCertPool
	}

	if tlsConfig.ClientCert != "" && tlsConfig.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(tlsConfig.ClientCert, tlsConfig.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}

// NewMQTTPublisher connects to the broker. The client retries in the
// background if the broker is unreachable later on.
func NewMQTTPublisher(config *MQTTConfig, gatherer prometheus.Gatherer, commands *Commands) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(generateClientID())

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	if config.TLS.Enabled {
		tlsConfig, err := loadTLSConfig(config.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsConfig)
	}

	onlineTopic := config.TopicPrefix + "/online"
	opts.SetWill(onlineTopic, "false", config.QoS, true)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Println("MQTT: Connected to broker")
		client.Publish(onlineTopic, config.QoS, true, "true")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT: Connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		log.Println("MQTT: Attempting to reconnect...")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(30*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	log.Printf("MQTT: Publishing to %s under %s/", config.Broker, config.TopicPrefix)

	return newMQTTPublisher(client, config, gatherer, commands), nil
}

func newMQTTPublisher(client mqtt.Client, config *MQTTConfig, gatherer prometheus.Gatherer, commands *Commands) *MQTTPublisher {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &MQTTPublisher{
		client:   client,
		config:   config,
		gatherer: gatherer,
		commands: commands,
		activity: make(map[string]time.Time),
	}
}

// StartPublisher publishes metric and state snapshots until ctx is done.
func (mp *MQTTPublisher) StartPublisher(ctx context.Context) {
	go mp.startMetricsPublisher(ctx)
}

func (mp *MQTTPublisher) startMetricsPublisher(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(mp.config.PublishInterval) * time.Second)
	defer ticker.Stop()

	log.Printf("MQTT: Metrics publisher started with %d second interval", mp.config.PublishInterval)

	for {
		select {
		case <-ctx.Done():
			log.Println("MQTT: Metrics publisher stopped")
			return
		case <-ticker.C:
			mp.publishAllMetrics(time.Now())
			if mp.commands != nil {
				mp.publishJSON("state", mp.commands.GetStatus(GetStatusRequest{}), mp.config.Retain)
			}
		}
	}
}

// publishAllMetrics publishes one payload per metric family
func (mp *MQTTPublisher) publishAllMetrics(now time.Time) {
	payloads, err := gatherMetricPayloads(mp.gatherer, now.Unix())
	if err != nil {
		log.Printf("MQTT ERROR: Failed to gather Prometheus metrics: %v", err)
		return
	}
	for name, payload := range payloads {
		mp.publishJSON("metrics/"+name, payload, false)
	}
}

// gatherMetricPayloads groups the relay's metrics by family. Within a
// family each series is keyed by its label values joined with "/", or
// "value" when it has none.
func gatherMetricPayloads(gatherer prometheus.Gatherer, timestamp int64) (map[string]MetricPayload, error) {
	families, err := gatherer.Gather()
	if err != nil {
		return nil, err
	}

	payloads := make(map[string]MetricPayload)
	for _, mf := range families {
		name := mf.GetName()
		if !strings.HasPrefix(name, metricPrefix) {
			continue
		}
		payload := MetricPayload{Timestamp: timestamp, Metrics: make(map[string]float64)}
		for _, m := range mf.GetMetric() {
			value, ok := extractMetricValue(m)
			if !ok {
				continue
			}
			key := "value"
			if len(m.GetLabel()) > 0 {
				parts := make([]string, 0, len(m.GetLabel()))
				payload.Labels = payload.Labels[:0]
				for _, label := range m.GetLabel() {
					parts = append(parts, label.GetValue())
					payload.Labels = append(payload.Labels, label.GetName())
				}
				key = strings.Join(parts, "/")
			}
			payload.Metrics[key] = value
		}
		if len(payload.Metrics) > 0 {
			sort.Strings(payload.Labels)
			payloads[strings.TrimPrefix(name, metricPrefix)] = payload
		}
	}
	return payloads, nil
}

// extractMetricValue extracts the numeric value from a Prometheus metric
func extractMetricValue(m *dto.Metric) (float64, bool) {
	switch {
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue(), true
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue(), true
	case m.GetHistogram() != nil:
		h := m.GetHistogram()
		if h.GetSampleCount() == 0 {
			return 0, true
		}
		return h.GetSampleSum() / float64(h.GetSampleCount()), true
	case m.GetSummary() != nil:
		return m.GetSummary().GetSampleSum(), true
	}
	return 0, false
}

// publishJSON sends v to prefix/subtopic without waiting for the broker.
func (mp *MQTTPublisher) publishJSON(subtopic string, v any, retain bool) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("MQTT ERROR: Failed to marshal payload for topic %s: %v", subtopic, err)
		return
	}

	topic := mp.config.TopicPrefix + "/" + subtopic
	token := mp.client.Publish(topic, mp.config.QoS, retain, data)
	go func() {
		if token.WaitTimeout(10*time.Second) && token.Error() != nil {
			log.Printf("MQTT ERROR: Failed to publish to topic %s: %v", topic, token.Error())
		}
	}()
}

func (mp *MQTTPublisher) Decision(ev DecisionEvent) {
	if ev.Decision.Event != qso.EventNone {
		mp.publishJSON("qso/"+ev.Event, ev, false)
	}
	if mp.config.PublishDecodes {
		mp.publishJSON("decode", ev, false)
	}
	if ev.NewEntity && ev.EntityID != "" {
		if last, ok := mp.activity[ev.EntityID]; !ok || ev.Timestamp.Sub(last) >= activityCooldown {
			mp.activity[ev.EntityID] = ev.Timestamp
			mp.publishJSON("dxcc/activity", ev, false)
		}
	}
}

func (mp *MQTTPublisher) Status(st *wsjtx.Status) {
	mp.publishJSON("status", st, mp.config.Retain)
}

func (mp *MQTTPublisher) Action(a qso.Action) {
	mp.publishJSON("action", newActionEvent(a, time.Now()), false)
}

func (mp *MQTTPublisher) Dropped(string, error) {}

// Disconnect gracefully disconnects from the MQTT broker
func (mp *MQTTPublisher) Disconnect() {
	if mp.client != nil && mp.client.IsConnected() {
		mp.client.Publish(mp.config.TopicPrefix+"/online", mp.config.QoS, true, "false").WaitTimeout(time.Second)
		mp.client.Disconnect(250)
		log.Println("MQTT: Disconnected from broker")
	}
}
