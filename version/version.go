// Package version carries the engine's release identity, reported by the
// --version flag and in the startup log line.
package version

var (
	Version           = "1.0.0"
	VersionPrerelease = ""
	VersionMetadata   = ""
)

// Formatted returns Version suffixed with -<prerelease> when set.
func Formatted() string {
	if VersionPrerelease == "" {
		return Version
	}
	return Version + "-" + VersionPrerelease
}
