package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:2237", cfg.Relay.Listen)
	assert.Equal(t, "127.0.0.1:2277", cfg.Relay.Forward)
	assert.Equal(t, time.Second, cfg.Relay.PollInterval())
	assert.Equal(t, "WSJT-X", cfg.Station.DefaultID)
	assert.Equal(t, "FT8", cfg.Station.DefaultMode)
	assert.Equal(t, -20, cfg.Automation.SignalThreshold)
	assert.True(t, cfg.Automation.HaltIdleTx)
	assert.Equal(t, "wsjtx_log.adi", cfg.Log.Path)
	assert.True(t, cfg.Prometheus.IsIPAllowed("127.0.0.1"))
	assert.False(t, cfg.Prometheus.IsIPAllowed("192.0.2.1"))

	ec := cfg.EngineConfig()
	assert.Equal(t, 90*time.Second, ec.Timeout)
	assert.Equal(t, -20, ec.SignalThreshold)
	assert.Equal(t, 500, ec.SNRWindow)
}

func TestParseConfigOverridesDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
relay:
  listen: "224.0.0.1:2237"
  forward: "127.0.0.1:2277"
  poll_interval_ms: 250
station:
  callsign: " ea4xyz "
  grid: IN80
automation:
  signal_threshold: -15
  timeout_seconds: 120
  halt_idle_tx: false
  answer_callers: true
prometheus:
  enabled: true
  allowed_hosts: ["10.0.0.0/8", "192.168.1.5"]
mqtt:
  enabled: true
  broker: tcp://localhost:1883
  qos: 1
`))
	require.NoError(t, err)

	assert.Equal(t, "224.0.0.1:2237", cfg.Relay.Listen)
	assert.Equal(t, "127.0.0.1:2277", cfg.Relay.Forward)
	assert.Equal(t, 250*time.Millisecond, cfg.Relay.PollInterval())
	assert.Equal(t, "EA4XYZ", cfg.Station.Callsign)
	assert.Equal(t, "ultron", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 60, cfg.MQTT.PublishInterval)

	ec := cfg.EngineConfig()
	assert.Equal(t, -15, ec.SignalThreshold)
	assert.Equal(t, 120*time.Second, ec.Timeout)
	assert.False(t, ec.HaltIdleTx)
	assert.True(t, ec.AnswerCallers)
	assert.Equal(t, "EA4XYZ", ec.OwnCall)

	assert.True(t, cfg.Prometheus.IsIPAllowed("10.1.2.3"))
	assert.True(t, cfg.Prometheus.IsIPAllowed("192.168.1.5"))
	assert.False(t, cfg.Prometheus.IsIPAllowed("192.168.1.6"))
	assert.False(t, cfg.Prometheus.IsIPAllowed("127.0.0.1"))
	assert.False(t, cfg.Prometheus.IsIPAllowed("not an ip"))
}

func TestParseConfigRejectsBadValues(t *testing.T) {
	for name, body := range map[string]string{
		"listen":     "relay: {listen: 'nowhere'}",
		"forward":    "relay: {forward: 'host:port:extra'}",
		"poll":       "relay: {poll_interval_ms: -1}",
		"grid":       "station: {grid: ZZ99}",
		"threshold":  "automation: {signal_threshold: -99}",
		"timeout":    "automation: {timeout_seconds: -5}",
		"broker":     "mqtt: {enabled: true}",
		"qos":        "mqtt: {enabled: true, broker: 'tcp://x:1883', qos: 3}",
		"rate limit": "server: {rate_limit: -1}",
	} {
		_, err := ParseConfig([]byte(body))
		assert.ErrorIs(t, err, ErrConfig, name)
	}

	_, err := ParseConfig([]byte("prometheus: {allowed_hosts: [bogus]}"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("relay: ["))
	assert.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relay: {forward: ''}\nlog: {path: /tmp/x.adi}\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.adi", cfg.Log.Path)
	assert.Empty(t, cfg.Relay.Forward, "an explicit empty forward disables forwarding")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseConfigKeepsZeroThreshold(t *testing.T) {
	cfg, err := ParseConfig([]byte("automation:\n  signal_threshold: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Automation.SignalThreshold)
	assert.Equal(t, 0, cfg.EngineConfig().SignalThreshold)

	cfg, err = ParseConfig([]byte("automation:\n  timeout_seconds: 60\n"))
	require.NoError(t, err)
	assert.Equal(t, -20, cfg.EngineConfig().SignalThreshold)
}
