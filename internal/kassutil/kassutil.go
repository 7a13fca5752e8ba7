// Package kassutil holds small, dependency-free helpers shared across the
// engine's packages.
package kassutil

import "strings"

// ContainsFold reports whether haystack contains needle, case-insensitively.
func ContainsFold(haystack []string, needle string) bool {
	for _, s := range haystack {
		if strings.EqualFold(s, needle) {
			return true
		}
	}
	return false
}

// IntersectsFold reports whether any element of a appears in b, using a
// case-insensitive comparison. Used for device-family / hardware-ID
// matching, where vendors are inconsistent about ID casing.
func IntersectsFold(a, b []string) bool {
	for _, v := range a {
		if ContainsFold(b, v) {
			return true
		}
	}
	return false
}

// ContainsInt reports whether haystack contains needle.
func ContainsInt(haystack []int, needle int) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
