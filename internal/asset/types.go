// Package asset implements the Asset Scanner and Compatibility Filter
// (spec.md §4.3): recursive manifest discovery, stable installation
// ordering, and the driver/update compatibility predicates the Driver and
// Update Engines consume.
//
// Per spec.md §9's re-architecture note, dynamic property augmentation
// (attaching SourceDirectory, ValidatedFilePath onto a parsed JSON object
// at runtime) is modeled as two distinct types: a Raw form that mirrors
// the on-disk JSON exactly, and an enriched form built by an explicit
// constructor that consumes the raw form.
package asset

import "strings"

// DriverType is the case-insensitive driverType enum from spec.md §3.
type DriverType string

const (
	DriverINF  DriverType = "inf"
	DriverAPPX DriverType = "appx"
	DriverEXE  DriverType = "exe"
)

// NormalizeDriverType lower-cases an as-read driverType value for
// comparison against the DriverType constants.
func NormalizeDriverType(s string) DriverType {
	return DriverType(strings.ToLower(strings.TrimSpace(s)))
}

// UpdateType is the updateType enum from spec.md §3.
type UpdateType string

const (
	UpdateMSU UpdateType = "msu"
	UpdateCAB UpdateType = "cab"
	UpdateEXE UpdateType = "exe"
	UpdateMSI UpdateType = "msi"
)

// NormalizeUpdateType lower-cases an as-read updateType value.
func NormalizeUpdateType(s string) UpdateType {
	return UpdateType(strings.ToLower(strings.TrimSpace(s)))
}

// defaultOrder is spec.md's default installation order for any manifest
// that omits the field.
const defaultOrder = 9999

// DriverManifestRaw is the as-read JSON shape of a driver manifest.
type DriverManifestRaw struct {
	DriverName                string   `json:"driverName"`
	DriverType                string   `json:"driverType"`
	DriverFamilyID             string   `json:"driverFamilyId"`
	SupportedDevices           []string `json:"supportedDevices"`
	SupportedOperatingSystems  []int    `json:"supportedOperatingSystems"`
	Order                      *int     `json:"order,omitempty"`
}

// DriverManifest is the enriched form consumed by the Compatibility Filter
// and Driver Engine.
type DriverManifest struct {
	DriverName                string
	DriverType                DriverType
	DriverFamilyID             string
	SupportedDevices           []string
	SupportedOperatingSystems  []int
	Order                      int
	SourcePath                 string
	SourceDirectory            string
}

// NewDriverManifest builds the enriched form from raw, injecting
// SourceDirectory/SourcePath (the manifest's own location on disk) and
// defaulting Order when the manifest omits it.
func NewDriverManifest(raw DriverManifestRaw, sourcePath, sourceDirectory string) DriverManifest {
	order := defaultOrder
	if raw.Order != nil {
		order = *raw.Order
	}
	return DriverManifest{
		DriverName:               raw.DriverName,
		DriverType:               NormalizeDriverType(raw.DriverType),
		DriverFamilyID:           raw.DriverFamilyID,
		SupportedDevices:         raw.SupportedDevices,
		SupportedOperatingSystems: raw.SupportedOperatingSystems,
		Order:                    order,
		SourcePath:               sourcePath,
		SourceDirectory:          sourceDirectory,
	}
}

// UpdateManifestRaw is the as-read JSON shape of an update manifest.
type UpdateManifestRaw struct {
	UpdateName                string   `json:"updateName"`
	UpdateVersion              string   `json:"updateVersion"`
	UpdateType                 string   `json:"updateType"`
	SupportedOperatingSystems  []int    `json:"supportedOperatingSystems"`
	DownloadFileName            string   `json:"downloadFileName"`
	Order                      *int     `json:"order,omitempty"`
}

// UpdateManifest is the enriched form. ValidatedFilePath is populated by
// the Compatibility Filter once the referenced payload file is confirmed
// to exist and be non-empty.
type UpdateManifest struct {
	UpdateName                string
	UpdateVersion              string
	UpdateType                 UpdateType
	SupportedOperatingSystems  []int
	DownloadFileName            string
	Order                      int
	SourcePath                 string
	SourceDirectory            string
	ValidatedFilePath          string
}

// NewUpdateManifest builds the enriched form from raw.
func NewUpdateManifest(raw UpdateManifestRaw, sourcePath, sourceDirectory string) UpdateManifest {
	order := defaultOrder
	if raw.Order != nil {
		order = *raw.Order
	}
	return UpdateManifest{
		UpdateName:               raw.UpdateName,
		UpdateVersion:            raw.UpdateVersion,
		UpdateType:               NormalizeUpdateType(raw.UpdateType),
		SupportedOperatingSystems: raw.SupportedOperatingSystems,
		DownloadFileName:         raw.DownloadFileName,
		Order:                    order,
		SourcePath:               sourcePath,
		SourceDirectory:          sourceDirectory,
	}
}
