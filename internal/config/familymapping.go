package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadDeviceFamilyMapping reads the device-family mapping JSON (spec §6,
// "Device family mapping") from path. A family key expands to a SET of
// hardware identifiers; driver compatibility in internal/asset succeeds if
// ANY identifier in the set appears in a driver's supportedDevices.
func LoadDeviceFamilyMapping(path string) (*DeviceFamilyMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading device family mapping %s: %w", path, err)
	}

	var m DeviceFamilyMapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing device family mapping %s: %w", path, err)
	}
	return &m, nil
}

// DeviceIDs returns the hardware identifier set for familyKey, or nil if
// the key is not present in the mapping.
func (m *DeviceFamilyMapping) DeviceIDs(familyKey string) []string {
	entry, ok := m.FamilyMapping[familyKey]
	if !ok {
		return nil
	}
	return entry.DeviceIDs
}
