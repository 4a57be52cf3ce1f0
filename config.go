package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cwsl/ultron/qso"
)

// ErrConfig is returned for configuration values that cannot be used.
var ErrConfig = errors.New("invalid configuration")

// Config represents the application configuration
type Config struct {
	Relay      RelayConfig      `yaml:"relay"`
	Station    StationConfig    `yaml:"station"`
	Automation AutomationConfig `yaml:"automation"`
	DXCC       DXCCConfig       `yaml:"dxcc"`
	Log        LogConfig        `yaml:"log"`
	Whitelist  WhitelistConfig  `yaml:"whitelist"`
	Server     ServerConfig     `yaml:"server"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
}

// RelayConfig contains the UDP listener and forwarding settings
type RelayConfig struct {
	Listen         string `yaml:"listen"`           // Address the client sends to (unicast or multicast)
	Forward        string `yaml:"forward"`          // Downstream consumer, empty disables forwarding
	PollIntervalMs int    `yaml:"poll_interval_ms"` // Read deadline and housekeeping period
	ForwardQueue   int    `yaml:"forward_queue"`    // Datagrams buffered for the forwarder
	Interface      string `yaml:"interface"`        // Interface for multicast joins (empty = default)
}

// PollInterval returns the receive deadline as a duration.
func (rc RelayConfig) PollInterval() time.Duration {
	return time.Duration(rc.PollIntervalMs) * time.Millisecond
}

// StationConfig describes our own station and decoder defaults
type StationConfig struct {
	Callsign    string `yaml:"callsign"`     // Used until the client reports its DE call
	Grid        string `yaml:"grid"`         // Used for distance/bearing until the client reports its DE grid
	DefaultID   string `yaml:"default_id"`   // Substituted for an empty client id
	DefaultMode string `yaml:"default_mode"` // Substituted for an empty mode
}

// AutomationConfig tunes the QSO engine
type AutomationConfig struct {
	SignalThreshold int    `yaml:"signal_threshold"` // dB; signals at or below are ignored
	TimeoutSeconds  int    `yaml:"timeout_seconds"`  // Lock timeout
	HaltIdleTx      bool   `yaml:"halt_idle_tx"`     // Halt Tx enabled while no target is locked
	AnswerCallers   bool   `yaml:"answer_callers"`   // Treat stations calling us as targets
	SNRWindow       int    `yaml:"snr_window"`       // Decodes kept for SNR statistics
	MinPeerVersion  string `yaml:"min_peer_version"` // Warn when a client heartbeat reports an older version
}

// DXCCConfig points at the entity dataset
type DXCCConfig struct {
	Dataset string `yaml:"dataset"`
}

// LogConfig points at the ADIF contact log
type LogConfig struct {
	Path string `yaml:"path"`
}

// WhitelistConfig points at the optional whitelist file
type WhitelistConfig struct {
	Path string `yaml:"path"` // Empty disables the whitelist
}

// ServerConfig contains web server settings
type ServerConfig struct {
	Listen       string `yaml:"listen"` // Empty disables the HTTP server
	EnableMCP    bool   `yaml:"enable_mcp"`
	EnableWS     bool   `yaml:"enable_ws"`
	ReplayBuffer int    `yaml:"replay_buffer"` // Decisions replayed to new WebSocket clients
	RateLimit    int    `yaml:"rate_limit"`    // API and MCP requests per second per IP, 0 disables
}

// PrometheusConfig contains Prometheus metrics settings
type PrometheusConfig struct {
	Enabled      bool     `yaml:"enabled"`       // Enable/disable Prometheus metrics endpoint
	AllowedHosts []string `yaml:"allowed_hosts"` // List of IPs/CIDRs allowed to access metrics

	allowedNets []*net.IPNet // Parsed CIDR networks (internal use)
}

// MQTTConfig contains MQTT broker settings
type MQTTConfig struct {
	Enabled         bool          `yaml:"enabled"`          // Enable/disable MQTT event publishing
	Broker          string        `yaml:"broker"`           // MQTT broker URL (e.g., tcp://mqtt.example.com:1883)
	Username        string        `yaml:"username"`         // MQTT authentication username
	Password        string        `yaml:"password"`         // MQTT authentication password
	TopicPrefix     string        `yaml:"topic_prefix"`     // Topic prefix for all events
	PublishInterval int           `yaml:"publish_interval"` // Metrics snapshot interval in seconds
	PublishDecodes  bool          `yaml:"publish_decodes"`  // Publish every decision, not only transitions
	QoS             byte          `yaml:"qos"`              // MQTT Quality of Service level (0, 1, or 2)
	Retain          bool          `yaml:"retain"`           // Retain flag for status messages
	TLS             MQTTTLSConfig `yaml:"tls"`              // TLS/SSL settings
}

// MQTTTLSConfig contains MQTT TLS/SSL settings
type MQTTTLSConfig struct {
	Enabled    bool   `yaml:"enabled"`     // Enable/disable TLS
	CACert     string `yaml:"ca_cert"`     // Path to CA certificate file
	ClientCert string `yaml:"client_cert"` // Path to client certificate file (optional)
	ClientKey  string `yaml:"client_key"`  // Path to client key file (optional)
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{
		Relay:      RelayConfig{Forward: "127.0.0.1:2277"},
		Automation: AutomationConfig{SignalThreshold: -20, HaltIdleTx: true},
		Server:     ServerConfig{EnableMCP: true, EnableWS: true, RateLimit: 10},
		Prometheus: PrometheusConfig{Enabled: true},
	}
	cfg.setDefaults()
	_ = cfg.Prometheus.parseAllowedHosts()
	return cfg
}

// LoadConfig loads configuration from a YAML file. An empty filename returns
// the defaults.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		cfg := DefaultConfig()
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration on top of the defaults.
func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	config.setDefaults()

	if err := config.Prometheus.parseAllowedHosts(); err != nil {
		return nil, fmt.Errorf("failed to parse prometheus.allowed_hosts: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) setDefaults() {
	if c.Relay.Listen == "" {
		c.Relay.Listen = "0.0.0.0:2237"
	}
	if c.Relay.PollIntervalMs == 0 {
		c.Relay.PollIntervalMs = 1000
	}
	if c.Relay.ForwardQueue == 0 {
		c.Relay.ForwardQueue = 256
	}
	if c.Station.DefaultID == "" {
		c.Station.DefaultID = "WSJT-X"
	}
	if c.Station.DefaultMode == "" {
		c.Station.DefaultMode = "FT8"
	}
	c.Station.Callsign = strings.ToUpper(strings.TrimSpace(c.Station.Callsign))
	if c.Automation.TimeoutSeconds == 0 {
		c.Automation.TimeoutSeconds = 90
	}
	if c.Automation.SNRWindow == 0 {
		c.Automation.SNRWindow = 500
	}
	if c.DXCC.Dataset == "" {
		c.DXCC.Dataset = "base.json"
	}
	if c.Log.Path == "" {
		c.Log.Path = "wsjtx_log.adi"
	}
	if c.Server.ReplayBuffer == 0 {
		c.Server.ReplayBuffer = 100
	}
	if len(c.Prometheus.AllowedHosts) == 0 {
		c.Prometheus.AllowedHosts = []string{"127.0.0.1", "::1"}
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "ultron"
	}
	if c.MQTT.PublishInterval == 0 {
		c.MQTT.PublishInterval = 60
	}
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	if _, err := net.ResolveUDPAddr("udp", c.Relay.Listen); err != nil {
		return fmt.Errorf("%w: relay.listen %q: %v", ErrConfig, c.Relay.Listen, err)
	}
	if c.Relay.Forward != "" {
		if _, err := net.ResolveUDPAddr("udp", c.Relay.Forward); err != nil {
			return fmt.Errorf("%w: relay.forward %q: %v", ErrConfig, c.Relay.Forward, err)
		}
	}
	if c.Relay.PollIntervalMs < 0 {
		return fmt.Errorf("%w: relay.poll_interval_ms must be positive", ErrConfig)
	}
	if c.Relay.ForwardQueue < 0 {
		return fmt.Errorf("%w: relay.forward_queue must be positive", ErrConfig)
	}
	if c.Automation.TimeoutSeconds < 0 {
		return fmt.Errorf("%w: automation.timeout_seconds must be positive", ErrConfig)
	}
	if c.Automation.SignalThreshold < -60 || c.Automation.SignalThreshold > 60 {
		return fmt.Errorf("%w: automation.signal_threshold %d out of range", ErrConfig, c.Automation.SignalThreshold)
	}
	if c.Station.Grid != "" && !IsValidMaidenheadLocator(c.Station.Grid) {
		return fmt.Errorf("%w: station.grid %q", ErrConfig, c.Station.Grid)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("%w: server.rate_limit must not be negative", ErrConfig)
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("%w: mqtt.broker is required when mqtt is enabled", ErrConfig)
		}
		if c.MQTT.QoS > 2 {
			return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", ErrConfig)
		}
		if c.MQTT.PublishInterval < 0 {
			return fmt.Errorf("%w: mqtt.publish_interval must be positive", ErrConfig)
		}
	}
	return nil
}

// EngineConfig translates the automation settings for the QSO engine.
func (c *Config) EngineConfig() qso.Config {
	return qso.Config{
		SignalThreshold: c.Automation.SignalThreshold,
		Timeout:         time.Duration(c.Automation.TimeoutSeconds) * time.Second,
		OwnCall:         c.Station.Callsign,
		HaltIdleTx:      c.Automation.HaltIdleTx,
		AnswerCallers:   c.Automation.AnswerCallers,
		SNRWindow:       c.Automation.SNRWindow,
	}
}

// parseAllowedHosts parses the allowed_hosts list into CIDR networks
func (pc *PrometheusConfig) parseAllowedHosts() error {
	pc.allowedNets = make([]*net.IPNet, 0, len(pc.AllowedHosts))

	for _, ipStr := range pc.AllowedHosts {
		if _, ipNet, err := net.ParseCIDR(ipStr); err == nil {
			pc.allowedNets = append(pc.allowedNets, ipNet)
			continue
		}
		ip := net.ParseIP(ipStr)
		if ip == nil {
			return fmt.Errorf("invalid IP or CIDR: %s", ipStr)
		}
		bits := 128
		if ip.To4() != nil {
			ip = ip.To4()
			bits = 32
		}
		pc.allowedNets = append(pc.allowedNets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nil
}

// IsIPAllowed checks if an IP address may read the metrics endpoint
func (pc *PrometheusConfig) IsIPAllowed(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range pc.allowedNets {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}
