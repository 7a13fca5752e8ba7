// Package config implements the Config Resolver (spec.md §4.1): loading,
// schema-validating, OS-compatibility-checking, placeholder-expanding and
// cache-keying the device profile and build configuration that drive one
// pipeline run.
//
// Dynamic property augmentation in the original tool (attaching
// selectedOSId, sourceWim onto the parsed JSON at runtime) is modeled here
// as distinct types per spec.md §9: DeviceProfile/BuildConfig are the raw
// parsed form, ResolvedConfig is the enriched form a successful Resolve
// produces.
package config

// DeviceProfile is the raw parsed form of <root>/DeviceConfig/<deviceFile>.
type DeviceProfile struct {
	DeviceID        string   `json:"deviceId" mapstructure:"deviceId"`
	SupportedOS     []int    `json:"supportedOS" mapstructure:"supportedOS"`
	DriverFamilyIDs []string `json:"driverFamilyIds" mapstructure:"driverFamilyIds"`

	// Descriptive fields, optional.
	DisplayName  string `json:"displayName,omitempty" mapstructure:"displayName"`
	Description  string `json:"description,omitempty" mapstructure:"description"`
	Manufacturer string `json:"manufacturer,omitempty" mapstructure:"manufacturer"`

	// SelectedOSID is the sole mutation a resolved profile may carry,
	// attached by the resolver once an OS ID has been validated against
	// SupportedOS. Zero means "not yet resolved".
	SelectedOSID int `json:"selectedOSId,omitempty" mapstructure:"-"`
}

// SupportsOS reports whether osID is in the profile's supported set.
func (p *DeviceProfile) SupportsOS(osID int) bool {
	for _, id := range p.SupportedOS {
		if id == osID {
			return true
		}
	}
	return false
}

// BuildConfig is the raw parsed form of the engine's build configuration
// JSON. OsWimMap keys are string-encoded OS IDs (JSON object keys are
// always strings; the resolver formats the requested int OS ID as a string
// for the lookup).
type BuildConfig struct {
	Name       string            `json:"name" mapstructure:"name"`
	MountPoint string            `json:"mountPoint" mapstructure:"mountPoint"`
	ExportPath string            `json:"exportPath" mapstructure:"exportPath"`
	TempPath   string            `json:"tempPath" mapstructure:"tempPath"`
	DriverRoot string            `json:"driverRoot" mapstructure:"driverRoot"`
	UpdateRoot string            `json:"updateRoot" mapstructure:"updateRoot"`
	YunonaPath string            `json:"yunonaPath" mapstructure:"yunonaPath"`
	OsWimMap   map[string]string `json:"osWimMap" mapstructure:"osWimMap"`

	// Augmented by the resolver after a successful Resolve. Both carry a
	// real json tag (unlike their mapstructure counterpart) because the
	// on-disk cache round-trips a ResolvedConfig through encoding/json
	// (cache.go) for a second process to consume — a cache hit must come
	// back with SourceWim already populated, not just the in-process hit.
	SourceWim    string `json:"sourceWim,omitempty" mapstructure:"-"`
	SelectedOSID int    `json:"selectedOSId,omitempty" mapstructure:"-"`
}

// DeviceFamilyEntry is one entry of a DeviceFamilyMapping.
type DeviceFamilyEntry struct {
	DeviceIDs   []string `json:"deviceIds" mapstructure:"deviceIds"`
	Models      []string `json:"models" mapstructure:"models"`
	Description string   `json:"description" mapstructure:"description"`
}

// DeviceFamilyMapping maps a family key to the set of hardware identifiers
// that constitute it.
type DeviceFamilyMapping struct {
	FamilyMapping map[string]DeviceFamilyEntry `json:"familyMapping" mapstructure:"familyMapping"`
}

// Metadata records the provenance of a ResolvedConfig, surfaced in the
// completion banner and written alongside cache entries.
type Metadata struct {
	LoadedAt   string `json:"loadedAt"`
	DeviceFile string `json:"deviceFile"`
	OSID       int    `json:"osId"`
	Version    int    `json:"version"`
}

// ResolvedConfig is the root entity the orchestrator consumes: a validated,
// placeholder-expanded device profile and build config pair plus
// provenance metadata.
type ResolvedConfig struct {
	DeviceProfile DeviceProfile `json:"deviceProfile"`
	BuildConfig   BuildConfig   `json:"buildConfig"`
	Metadata      Metadata      `json:"metadata"`
}
