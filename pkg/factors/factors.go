// Package factors provides the versioned emission/impact factor table the
// calculation modules look factors up from. Tables are immutable after
// construction so a computation is reproducible against a named version.
package factors

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Well-known pathway names.
const (
	PathwayVirgin    = "virgin"
	PathwayRecycled  = "recycled"
	PathwayLandfill  = "landfill"
	PathwayRecycling = "recycling"
)

// Well-known energy carrier and transport keys.
const (
	KeyGridElectricity    = "grid_electricity"
	KeyGridElectricityWTT = "grid_electricity_wtt"
	KeyNaturalGas         = "natural_gas"
	KeyNaturalGasWTT      = "natural_gas_wtt"
	KeyRoadFreight        = "road_freight"
)

// Factor is one immutable reference entry: the impact of one unit of a
// material, energy carrier, or disposal pathway.
type Factor struct {
	Key           string  `yaml:"key" json:"key"`
	Pathway       string  `yaml:"pathway,omitempty" json:"pathway,omitempty"`
	Unit          string  `yaml:"unit" json:"unit"`
	KgCO2ePerUnit float64 `yaml:"kg_co2e_per_unit" json:"kg_co2e_per_unit"`
	WaterLPerUnit float64 `yaml:"water_l_per_unit,omitempty" json:"water_l_per_unit,omitempty"`
}

// Table is an immutable, versioned factor lookup.
type Table struct {
	version string
	entries map[string]Factor
}

func lookupKey(key, pathway string) string {
	if pathway == "" {
		return key
	}
	return key + "|" + pathway
}

// NewTable builds a table from a factor list. Negative factors are rejected:
// reference data with a negative impact is always an entry mistake.
func NewTable(version string, list []Factor) (*Table, error) {
	entries := make(map[string]Factor, len(list))
	for _, f := range list {
		if f.KgCO2ePerUnit < 0 || f.WaterLPerUnit < 0 {
			return nil, fmt.Errorf("factor %q: negative per-unit value", f.Key)
		}
		entries[lookupKey(f.Key, f.Pathway)] = f
	}
	return &Table{version: version, entries: entries}, nil
}

// Version returns the table version recorded on results for auditability.
func (t *Table) Version() string { return t.version }

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.entries) }

// Factors returns a copy of every entry, in unspecified order.
func (t *Table) Factors() []Factor {
	list := make([]Factor, 0, len(t.entries))
	for _, f := range t.entries {
		list = append(list, f)
	}
	return list
}

// Lookup returns the pathway-less factor for a key.
func (t *Table) Lookup(key string) (Factor, bool) {
	f, ok := t.entries[lookupKey(key, "")]
	return f, ok
}

// LookupPathway returns the factor for a (key, pathway) pair, e.g. virgin vs
// recycled glass, or the landfill vs recycling disposal route of a material.
func (t *Table) LookupPathway(key, pathway string) (Factor, bool) {
	f, ok := t.entries[lookupKey(key, pathway)]
	return f, ok
}

type packFile struct {
	Version string   `yaml:"version"`
	Factors []Factor `yaml:"factors"`
}

// LoadPack reads a YAML factor pack from disk.
func LoadPack(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read factor pack: %w", err)
	}
	var pack packFile
	if err := yaml.Unmarshal(raw, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse factor pack: %w", err)
	}
	if pack.Version == "" {
		return nil, fmt.Errorf("factor pack %s has no version", path)
	}
	return NewTable(pack.Version, pack.Factors)
}
