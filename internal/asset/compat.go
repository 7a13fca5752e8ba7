package asset

import (
	"os"
	"path/filepath"

	"github.com/etj-sad/kassia/internal/kassutil"
)

// DriverCompatContext bundles the inputs the driver predicate needs
// (spec.md §4.3).
type DriverCompatContext struct {
	FamilyDeviceIDs []string // deviceFamily.deviceIds for this profile's deviceId
	ProfileFamilies []string // profile.driverFamilyIds
	OSID            int
	SkipValidation  bool
}

// DriverCompatible reports whether d is installable given ctx. All three
// conditions must hold unless SkipValidation forces the whole predicate
// true.
func DriverCompatible(d DriverManifest, ctx DriverCompatContext) bool {
	if ctx.SkipValidation {
		return true
	}

	// An empty FamilyDeviceIDs means no device-family mapping was available
	// for this profile (steps.go logs a warning and proceeds rather than
	// halting), not that the driver matches zero devices. Bypass condition
	// 1 rather than rejecting every driver outright.
	hasDevice := len(ctx.FamilyDeviceIDs) == 0 || kassutil.IntersectsFold(ctx.FamilyDeviceIDs, d.SupportedDevices)
	hasOS := kassutil.ContainsInt(d.SupportedOperatingSystems, ctx.OSID)
	hasFamily := kassutil.ContainsFold(ctx.ProfileFamilies, d.DriverFamilyID)

	return hasDevice && hasOS && hasFamily
}

// UpdateCompatContext bundles the inputs the update predicate needs.
type UpdateCompatContext struct {
	OSID           int
	SkipValidation bool
}

// UpdateCompatible reports whether u is installable given ctx, and returns
// the manifest with ValidatedFilePath populated when the payload file was
// confirmed to exist and be non-empty.
func UpdateCompatible(u UpdateManifest, ctx UpdateCompatContext) (UpdateManifest, bool) {
	if ctx.SkipValidation {
		u.ValidatedFilePath = filepath.Join(u.SourceDirectory, u.DownloadFileName)
		return u, true
	}

	if !kassutil.ContainsInt(u.SupportedOperatingSystems, ctx.OSID) {
		return u, false
	}

	path := filepath.Join(u.SourceDirectory, u.DownloadFileName)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return u, false
	}

	u.ValidatedFilePath = path
	return u, true
}
