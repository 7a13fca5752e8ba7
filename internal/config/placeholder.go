package config

import (
	"path/filepath"
	"regexp"
	"strings"
)

const rootPlaceholder = "${root}"

// driveLetterOrUNC matches an absolute Windows path shape: a drive letter
// ("C:\" or "C:/") or a UNC share ("\\server\share" or "//server/share").
var driveLetterOrUNC = regexp.MustCompile(`^(?:[A-Za-z]:[\\/]|[\\/]{2}[^\\/]+[\\/])`)

// resolvePlaceholder substitutes ${root} for engineRoot in s, normalizes
// path separators to the host convention, and — when the result takes an
// absolute-path shape — canonicalizes it. A target that does not yet exist
// on disk is not an error: spec.md explicitly allows paths that reference
// not-yet-created outputs (e.g. exportPath before the first export).
func resolvePlaceholder(s, engineRoot string) string {
	if !strings.Contains(s, rootPlaceholder) {
		return s
	}

	expanded := strings.ReplaceAll(s, rootPlaceholder, engineRoot)
	expanded = filepath.FromSlash(filepath.ToSlash(expanded))

	if driveLetterOrUNC.MatchString(expanded) {
		if abs, err := filepath.Abs(expanded); err == nil {
			return abs
		}
	}
	return expanded
}

// expandBuildConfigPlaceholders returns a structural copy of bc with every
// ${root} occurrence in its path fields and osWimMap values resolved
// against engineRoot. Per spec.md §9 ("explicit structural copy" replaces
// the original's JSON-round-trip deep clone), this is a field-by-field
// copy — no reflection, no generic walker.
func expandBuildConfigPlaceholders(bc BuildConfig, engineRoot string) BuildConfig {
	out := bc
	out.MountPoint = resolvePlaceholder(bc.MountPoint, engineRoot)
	out.ExportPath = resolvePlaceholder(bc.ExportPath, engineRoot)
	out.TempPath = resolvePlaceholder(bc.TempPath, engineRoot)
	out.DriverRoot = resolvePlaceholder(bc.DriverRoot, engineRoot)
	out.UpdateRoot = resolvePlaceholder(bc.UpdateRoot, engineRoot)
	out.YunonaPath = resolvePlaceholder(bc.YunonaPath, engineRoot)

	if bc.OsWimMap != nil {
		out.OsWimMap = make(map[string]string, len(bc.OsWimMap))
		for k, v := range bc.OsWimMap {
			out.OsWimMap[k] = resolvePlaceholder(v, engineRoot)
		}
	}
	return out
}
