package qso

import (
	"sort"
	"strings"
)

// WorkedIndex holds the calls already in the log and, per band, the DXCC
// entities already contacted. It only grows.
type WorkedIndex struct {
	calls map[string]struct{}
	bands map[string]map[string]struct{} // band -> entity ids
}

func NewWorkedIndex() *WorkedIndex {
	return &WorkedIndex{
		calls: make(map[string]struct{}),
		bands: make(map[string]map[string]struct{}),
	}
}

// Add records a contact. It returns false if call was already present.
func (w *WorkedIndex) Add(call, entityID, band string) bool {
	call = strings.ToUpper(strings.TrimSpace(call))
	_, seen := w.calls[call]
	if call != "" {
		w.calls[call] = struct{}{}
	}
	if entityID != "" && band != "" {
		band = strings.ToLower(band)
		set, ok := w.bands[band]
		if !ok {
			set = make(map[string]struct{})
			w.bands[band] = set
		}
		set[entityID] = struct{}{}
	}
	return !seen && call != ""
}

// Has reports whether call has been worked.
func (w *WorkedIndex) Has(call string) bool {
	_, ok := w.calls[strings.ToUpper(strings.TrimSpace(call))]
	return ok
}

// WorkedOnBand reports whether any contact with entityID exists on band.
func (w *WorkedIndex) WorkedOnBand(entityID, band string) bool {
	if entityID == "" || band == "" {
		return false
	}
	_, ok := w.bands[strings.ToLower(band)][entityID]
	return ok
}

// Bands returns the bands on which entityID has been worked, sorted.
func (w *WorkedIndex) Bands(entityID string) []string {
	var out []string
	for band, set := range w.bands {
		if _, ok := set[entityID]; ok {
			out = append(out, band)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of distinct calls.
func (w *WorkedIndex) Len() int {
	return len(w.calls)
}

// EntityCount returns the number of distinct entities worked on any band.
func (w *WorkedIndex) EntityCount() int {
	seen := make(map[string]struct{})
	for _, set := range w.bands {
		for id := range set {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}

// HasEntity reports whether entityID has been worked on any band.
func (w *WorkedIndex) HasEntity(entityID string) bool {
	for _, set := range w.bands {
		if _, ok := set[entityID]; ok {
			return true
		}
	}
	return false
}

// WorkedBandNames returns every band with at least one contact, sorted.
func (w *WorkedIndex) WorkedBandNames() []string {
	out := make([]string, 0, len(w.bands))
	for band := range w.bands {
		out = append(out, band)
	}
	sort.Strings(out)
	return out
}
