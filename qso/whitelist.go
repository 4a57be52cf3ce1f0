package qso

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cwsl/ultron/dxcc"
)

// ErrConfiguration is returned when a whitelist file cannot be used.
var ErrConfiguration = errors.New("whitelist configuration error")

// Target is a station the engine is about to call.
type Target struct {
	Call         string
	Entity       dxcc.Entity
	Band         string
	WorkedOnBand bool
}

// Verdict is a policy decision. Whitelisted is reported even when it did not
// affect Allowed.
type Verdict struct {
	Allowed     bool
	Whitelisted bool
}

// TargetPolicy decides whether the engine may lock onto a target.
type TargetPolicy interface {
	Evaluate(t Target) Verdict
}

// AllowAll is the policy used when no whitelist is configured.
type AllowAll struct{}

func (AllowAll) Evaluate(Target) Verdict {
	return Verdict{Allowed: true}
}

// WhitelistMode selects how a whitelist affects targeting.
type WhitelistMode string

const (
	// ModePriority never blocks a target the wrapped policy allows; matches
	// are only reported.
	ModePriority WhitelistMode = "priority"
	// ModeStrict only allows listed entities not yet worked on the band.
	ModeStrict WhitelistMode = "strict"
)

// EntitySet maps DXCC entity ids to names. In YAML it may be written either
// as a mapping or as a plain list of ids.
type EntitySet map[string]string

func (s *EntitySet) UnmarshalYAML(node *yaml.Node) error {
	out := make(EntitySet)
	switch node.Kind {
	case yaml.MappingNode:
		var m map[string]string
		if err := node.Decode(&m); err != nil {
			return err
		}
		for id, name := range m {
			out[strings.TrimSpace(id)] = name
		}
	case yaml.SequenceNode:
		var ids []string
		if err := node.Decode(&ids); err != nil {
			return err
		}
		for _, id := range ids {
			out[strings.TrimSpace(id)] = ""
		}
	case yaml.ScalarNode:
		if node.Tag != "!!null" {
			return fmt.Errorf("line %d: entity set must be a mapping or a list", node.Line)
		}
	default:
		return fmt.Errorf("line %d: entity set must be a mapping or a list", node.Line)
	}
	*s = out
	return nil
}

// WhitelistConfig is the on-disk whitelist. JSON files are accepted as well
// since they parse as YAML.
type WhitelistConfig struct {
	Mode   WhitelistMode        `yaml:"mode" json:"mode"`
	Global EntitySet            `yaml:"global,omitempty" json:"global,omitempty"`
	Bands  map[string]EntitySet `yaml:"bands,omitempty" json:"bands,omitempty"`
}

// Contains reports whether entityID is listed globally or for band.
func (c *WhitelistConfig) Contains(entityID, band string) bool {
	if entityID == "" {
		return false
	}
	if _, ok := c.Global[entityID]; ok {
		return true
	}
	_, ok := c.Bands[strings.ToLower(band)][entityID]
	return ok
}

// Size returns the number of entries across all sets.
func (c *WhitelistConfig) Size() int {
	n := len(c.Global)
	for _, set := range c.Bands {
		n += len(set)
	}
	return n
}

// Whitelist decorates another policy.
type Whitelist struct {
	cfg  WhitelistConfig
	next TargetPolicy
}

// NewWhitelist wraps next. A nil next means AllowAll.
func NewWhitelist(cfg WhitelistConfig, next TargetPolicy) *Whitelist {
	if next == nil {
		next = AllowAll{}
	}
	if cfg.Mode == "" {
		cfg.Mode = ModePriority
	}
	bands := make(map[string]EntitySet, len(cfg.Bands))
	for band, set := range cfg.Bands {
		bands[strings.ToLower(band)] = set
	}
	cfg.Bands = bands
	return &Whitelist{cfg: cfg, next: next}
}

// Mode returns the configured mode.
func (w *Whitelist) Mode() WhitelistMode {
	return w.cfg.Mode
}

// Config returns the whitelist contents.
func (w *Whitelist) Config() WhitelistConfig {
	return w.cfg
}

func (w *Whitelist) Evaluate(t Target) Verdict {
	inner := w.next.Evaluate(t)
	listed := w.cfg.Contains(t.Entity.ID, t.Band)
	matched := listed && !t.WorkedOnBand

	switch w.cfg.Mode {
	case ModeStrict:
		return Verdict{Allowed: inner.Allowed && matched, Whitelisted: matched}
	default:
		return Verdict{Allowed: inner.Allowed, Whitelisted: matched}
	}
}

// LoadWhitelist reads a whitelist file. Errors wrap ErrConfiguration.
func LoadWhitelist(path string) (*WhitelistConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return ParseWhitelist(data)
}

// MarshalWhitelist renders cfg in the format LoadWhitelist reads.
func MarshalWhitelist(cfg WhitelistConfig) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// ParseWhitelist parses whitelist YAML or JSON.
func ParseWhitelist(data []byte) (*WhitelistConfig, error) {
	var cfg WhitelistConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	cfg.Mode = WhitelistMode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	switch cfg.Mode {
	case "":
		cfg.Mode = ModePriority
	case ModePriority, ModeStrict:
	case "1":
		cfg.Mode = ModeStrict
	case "0":
		cfg.Mode = ModePriority
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrConfiguration, cfg.Mode)
	}
	return &cfg, nil
}
