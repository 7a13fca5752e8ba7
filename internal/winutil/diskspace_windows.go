//go:build windows

// Package winutil wraps the handful of raw Windows syscalls the engine
// needs outside of the servicer CLI contract. The pattern — call directly
// into golang.org/x/sys/windows rather than shelling out for something the
// OS exposes natively — mirrors google-glazier/go-dism's COM/syscall-based
// DISM wrapper, the other Windows-deployment reference in the corpus;
// spec.md §4.2 keeps the servicer itself a CLI subprocess, so this package
// is reserved for ancillary host checks the servicer contract doesn't
// cover.
package winutil

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// FreeBytes returns the free space available to the current user on the
// volume containing path, via GetDiskFreeSpaceEx.
func FreeBytes(path string) (uint64, error) {
	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, fmt.Errorf("winutil: encoding path %s: %w", path, err)
	}

	var freeAvailable, totalBytes, totalFree uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &freeAvailable, &totalBytes, &totalFree); err != nil {
		return 0, fmt.Errorf("winutil: GetDiskFreeSpaceEx(%s): %w", path, err)
	}
	return freeAvailable, nil
}
