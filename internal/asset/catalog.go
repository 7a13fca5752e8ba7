package asset

import (
	"encoding/json"
	"os"
)

// driverFamilyEntry is one row of the driver-family catalog (spec.md §6):
// `{id, friendlyName|systemName|name}`. The three alternate key names are
// a documented inconsistency in the source catalog format; all three are
// accepted.
type driverFamilyEntry struct {
	ID           string `json:"id"`
	FriendlyName string `json:"friendlyName"`
	SystemName   string `json:"systemName"`
	Name         string `json:"name"`
}

// FamilyNameCatalog maps a driver family ID to its friendly display name,
// used only for the coverage-gap WARNING in spec.md §4.4.
type FamilyNameCatalog struct {
	names map[string]string
}

// LoadFamilyNameCatalog reads the catalog at path. A missing file is not an
// error: the coverage check falls back to the raw family ID, per spec.md
// ("looked up against a friendly-name map... when available").
func LoadFamilyNameCatalog(path string) *FamilyNameCatalog {
	c := &FamilyNameCatalog{names: map[string]string{}}

	data, err := os.ReadFile(path)
	if err != nil {
		return c
	}

	var entries []driverFamilyEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return c
	}

	for _, e := range entries {
		switch {
		case e.FriendlyName != "":
			c.names[e.ID] = e.FriendlyName
		case e.SystemName != "":
			c.names[e.ID] = e.SystemName
		case e.Name != "":
			c.names[e.ID] = e.Name
		}
	}
	return c
}

// Lookup returns the friendly name for id, falling back to id itself when
// the catalog has no entry (or was never loaded).
func (c *FamilyNameCatalog) Lookup(id string) string {
	if c == nil {
		return id
	}
	if name, ok := c.names[id]; ok {
		return name
	}
	return id
}
