package qso

import (
	"sort"
	"strings"

	"github.com/cwsl/ultron/dxcc"
)

// BandProgress counts the entities worked on one band and lists the rest.
type BandProgress struct {
	Band     string        `json:"band"`
	Worked   int           `json:"worked"`
	Unworked []dxcc.Entity `json:"unworked"`
}

// UnworkedReport compares the worked set against the full entity list.
type UnworkedReport struct {
	Total    int            `json:"total"`
	Worked   int            `json:"worked"`
	Unworked []dxcc.Entity  `json:"unworked"`
	Bands    []BandProgress `json:"bands"`
}

// Unworked builds a report over entities. With no bands given, every band
// that has a contact in the log is reported. Entity lists are sorted by name.
func (e *Engine) Unworked(entities []dxcc.Entity, bands []string) UnworkedReport {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(bands) == 0 {
		bands = e.worked.WorkedBandNames()
	}

	r := UnworkedReport{Unworked: []dxcc.Entity{}, Bands: []BandProgress{}}
	for _, ent := range entities {
		if !ent.Known() {
			continue
		}
		r.Total++
		if e.worked.HasEntity(ent.ID) {
			r.Worked++
		} else {
			r.Unworked = append(r.Unworked, summary(ent))
		}
	}
	sortByName(r.Unworked)

	seen := make(map[string]bool, len(bands))
	for _, band := range bands {
		band = strings.ToLower(strings.TrimSpace(band))
		if band == "" || seen[band] {
			continue
		}
		seen[band] = true
		bp := BandProgress{Band: band, Unworked: []dxcc.Entity{}}
		for _, ent := range entities {
			if !ent.Known() {
				continue
			}
			if e.worked.WorkedOnBand(ent.ID, band) {
				bp.Worked++
			} else {
				bp.Unworked = append(bp.Unworked, summary(ent))
			}
		}
		sortByName(bp.Unworked)
		r.Bands = append(r.Bands, bp)
	}
	return r
}

// Whitelist turns the report into a whitelist: the never-worked entities go
// into the global set and each reported band gets its own unworked set.
func (r UnworkedReport) Whitelist(mode WhitelistMode) WhitelistConfig {
	if mode == "" {
		mode = ModeStrict
	}
	cfg := WhitelistConfig{Mode: mode, Global: make(EntitySet, len(r.Unworked))}
	for _, ent := range r.Unworked {
		cfg.Global[ent.ID] = ent.Name
	}
	if len(r.Bands) > 0 {
		cfg.Bands = make(map[string]EntitySet, len(r.Bands))
		for _, bp := range r.Bands {
			set := make(EntitySet, len(bp.Unworked))
			for _, ent := range bp.Unworked {
				set[ent.ID] = ent.Name
			}
			cfg.Bands[bp.Band] = set
		}
	}
	return cfg
}

// summary drops the prefix list, which reports don't need.
func summary(e dxcc.Entity) dxcc.Entity {
	e.Prefixes = nil
	return e
}

func sortByName(entities []dxcc.Entity) {
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Name != entities[j].Name {
			return entities[i].Name < entities[j].Name
		}
		return entities[i].ID < entities[j].ID
	})
}
