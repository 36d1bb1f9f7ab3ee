package geo

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed wards.yaml
var defaultWards []byte

// ErrDuplicateWard is returned when a district lists the same ward twice.
var ErrDuplicateWard = errors.New("geo: duplicate ward")

type wardFile struct {
	Districts []struct {
		Name  string `yaml:"name"`
		Wards []struct {
			Name       string `yaml:"name"`
			Coordinate `yaml:",inline"`
		} `yaml:"wards"`
	} `yaml:"districts"`
}

// WardTable maps (district, ward) pairs to coordinates.
type WardTable struct {
	entries map[string]map[string]Coordinate
}

// DefaultWardTable parses the embedded coverage table.
func DefaultWardTable() (*WardTable, error) {
	return ParseWardTable(defaultWards)
}

// ParseWardTable builds a table from YAML in the embedded file's format.
func ParseWardTable(raw []byte) (*WardTable, error) {
	var file wardFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("geo: decode ward table: %w", err)
	}
	table := &WardTable{entries: make(map[string]map[string]Coordinate, len(file.Districts))}
	for _, d := range file.Districts {
		district := strings.TrimSpace(d.Name)
		if district == "" {
			return nil, errors.New("geo: district name is required")
		}
		wards, ok := table.entries[district]
		if !ok {
			wards = make(map[string]Coordinate, len(d.Wards))
			table.entries[district] = wards
		}
		for _, w := range d.Wards {
			name := strings.TrimSpace(w.Name)
			if name == "" {
				return nil, fmt.Errorf("geo: ward name is required in %s", district)
			}
			if _, dup := wards[name]; dup {
				return nil, fmt.Errorf("%w: %s / %s", ErrDuplicateWard, district, name)
			}
			wards[name] = w.Coordinate
		}
	}
	return table, nil
}

// Lookup returns the coordinate for an exact (district, ward) match.
// Only surrounding whitespace is ignored; there is no fuzzy matching.
func (t *WardTable) Lookup(district, ward string) (Coordinate, bool) {
	if t == nil {
		return Coordinate{}, false
	}
	wards, ok := t.entries[strings.TrimSpace(district)]
	if !ok {
		return Coordinate{}, false
	}
	c, ok := wards[strings.TrimSpace(ward)]
	return c, ok
}

// Len reports the number of wards in the table.
func (t *WardTable) Len() int {
	if t == nil {
		return 0
	}
	n := 0
	for _, wards := range t.entries {
		n += len(wards)
	}
	return n
}
