// Package dxcc resolves amateur radio callsigns to DXCC entities using a
// prefix table loaded once from a JSON dataset.
package dxcc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// ErrConfiguration is returned when the dataset cannot be read or parsed.
// The accompanying table is empty but usable.
var ErrConfiguration = errors.New("dxcc configuration error")

// Entity is one DXCC entity.
type Entity struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Flag      string   `json:"flag,omitempty"`
	Continent string   `json:"continent,omitempty"`
	Prefixes  []string `json:"prefixes,omitempty"`
}

// Unknown is returned when no prefix matches.
var Unknown = Entity{ID: "unknown", Name: "unknown", Flag: "unknown"}

// Known reports whether e is a real entity rather than Unknown.
func (e Entity) Known() bool {
	return e.ID != "" && e.ID != Unknown.ID
}

// Table maps prefixes to entities. It is immutable after Load and safe for
// concurrent use.
type Table struct {
	entities  []Entity
	byID      map[string]int
	byPrefix  map[string]int
	maxPrefix int
}

// NewTable builds a table from entities in dataset order. When two entities
// claim the same prefix the earlier one keeps it.
func NewTable(entities []Entity) *Table {
	t := &Table{
		entities: make([]Entity, 0, len(entities)),
		byID:     make(map[string]int),
		byPrefix: make(map[string]int),
	}
	for _, e := range entities {
		if e.ID == "" {
			continue
		}
		idx := len(t.entities)
		clean := make([]string, 0, len(e.Prefixes))
		for _, p := range e.Prefixes {
			p = cleanPrefix(p)
			if p == "" {
				continue
			}
			clean = append(clean, p)
			if _, taken := t.byPrefix[p]; taken {
				continue
			}
			t.byPrefix[p] = idx
			if len(p) > t.maxPrefix {
				t.maxPrefix = len(p)
			}
		}
		e.Prefixes = clean
		t.entities = append(t.entities, e)
		if _, dup := t.byID[e.ID]; !dup {
			t.byID[e.ID] = idx
		}
	}
	return t
}

// Load reads a dataset file. On any failure it returns an empty table along
// with an error wrapping ErrConfiguration, so callers can log and continue.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewTable(nil), fmt.Errorf("%w: reading %s: %v", ErrConfiguration, path, err)
	}
	entities, err := parseDataset(data)
	if err != nil {
		return NewTable(nil), fmt.Errorf("%w: parsing %s: %v", ErrConfiguration, path, err)
	}
	return NewTable(entities), nil
}

// datasetEntry accepts both the current format and the legacy one where all
// prefixes live in a single "licencia" string whose first word is a label.
type datasetEntry struct {
	ID        flexString `json:"id"`
	Name      string     `json:"name"`
	Flag      string     `json:"flag"`
	Continent string     `json:"continent"`
	Prefixes  []string   `json:"prefixes"`
	Licencia  string     `json:"licencia"`
}

func parseDataset(data []byte) ([]Entity, error) {
	var raw []datasetEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	entities := make([]Entity, 0, len(raw))
	for _, r := range raw {
		e := Entity{
			ID:        string(r.ID),
			Name:      r.Name,
			Flag:      r.Flag,
			Continent: r.Continent,
			Prefixes:  r.Prefixes,
		}
		if len(e.Prefixes) == 0 && r.Licencia != "" {
			fields := strings.Fields(r.Licencia)
			if len(fields) > 1 {
				e.Prefixes = fields[1:]
			}
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// flexString decodes a JSON string or number into a string.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if i, err := n.Int64(); err == nil {
		*f = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexString(n.String())
	return nil
}

// cleanPrefix strips "/..." and "(...)" decorations, e.g. "VP8(13)" or "KG4/X".
func cleanPrefix(p string) string {
	p = strings.ToUpper(strings.TrimSpace(p))
	if i := strings.IndexAny(p, "/(["); i >= 0 {
		p = p[:i]
	}
	return p
}

// Len returns the number of entities.
func (t *Table) Len() int {
	return len(t.entities)
}

// Entities returns a copy of all entities in dataset order.
func (t *Table) Entities() []Entity {
	out := make([]Entity, len(t.entities))
	copy(out, t.entities)
	return out
}

// ByID looks up an entity by id.
func (t *Table) ByID(id string) (Entity, bool) {
	idx, ok := t.byID[strings.TrimSpace(id)]
	if !ok {
		return Unknown, false
	}
	return t.entities[idx], true
}

// Resolve returns the entity for call using the longest matching prefix.
func (t *Table) Resolve(call string) Entity {
	base := BaseCall(call)
	if base == "" || len(t.byPrefix) == 0 {
		return Unknown
	}
	n := min(len(base), t.maxPrefix)
	for i := n; i >= 1; i-- {
		if idx, ok := t.byPrefix[base[:i]]; ok {
			return t.entities[idx]
		}
	}
	return Unknown
}

// BaseCall upper-cases call and removes operating markers such as "/P",
// "/MM" or "/QRP". When a prefix is attached ("EA8/K1ABC", "K1ABC/VE3") the
// prefix is returned, since it names where the station is operating.
func BaseCall(call string) string {
	call = strings.ToUpper(strings.Trim(strings.TrimSpace(call), "<>"))
	if !strings.Contains(call, "/") {
		return call
	}
	var parts []string
	for _, part := range strings.Split(call, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	for len(parts) > 1 && isOperatingMarker(parts[len(parts)-1]) {
		parts = parts[:len(parts)-1]
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	for _, part := range parts {
		if prefixPattern.MatchString(part) && !fullCallPattern.MatchString(part) {
			return part
		}
	}
	best := ""
	for _, part := range parts {
		if len(part) > len(best) {
			best = part
		}
	}
	return best
}

func isOperatingMarker(s string) bool {
	switch s {
	case "P", "M", "MM", "AM", "QRP", "QRPP":
		return true
	}
	return len(s) == 1
}

var (
	callsignPattern = regexp.MustCompile(`^[A-Z0-9]{1,3}[0-9][A-Z0-9]{0,3}[A-Z]$|^[A-Z0-9/]+[0-9][A-Z0-9/]+$`)
	gridPattern     = regexp.MustCompile(`^[A-R]{2}[0-9]{2}$`)
	prefixPattern   = regexp.MustCompile(`^[A-Z0-9]{1,4}$`)
	fullCallPattern = regexp.MustCompile(`^[A-Z0-9]{1,3}[0-9][A-Z]+$`)
)

// ValidCallsign reports whether s looks like a callsign. Grid squares and
// FT8 report tokens that happen to fit the pattern are rejected.
func ValidCallsign(s string) bool {
	s = strings.ToUpper(strings.Trim(s, "<>"))
	if len(s) < 3 || len(s) > 15 {
		return false
	}
	switch s {
	case "RR73", "RRR", "73":
		return false
	}
	if gridPattern.MatchString(s) {
		return false
	}
	if !strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		return false
	}
	return callsignPattern.MatchString(s)
}
