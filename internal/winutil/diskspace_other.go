//go:build !windows

package winutil

import "errors"

// FreeBytes is unavailable off Windows; the engine only ever ships for the
// platform it services, but the stub keeps the package importable while
// developing on other hosts.
func FreeBytes(path string) (uint64, error) {
	return 0, errors.New("winutil: FreeBytes requires windows")
}
