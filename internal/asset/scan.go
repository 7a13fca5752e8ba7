package asset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/etj-sad/kassia/internal/kasslog"
)

// ScanDrivers walks root recursively, parsing every *.json file as a driver
// manifest. A parse failure is logged and the file is skipped — spec.md
// §4.3 and §7 treat this as non-fatal AssetError. The returned slice is
// sorted by (order asc, SourcePath asc), the installation order every
// downstream component relies on.
func ScanDrivers(root string) ([]DriverManifest, error) {
	var out []DriverManifest

	err := walkJSON(root, func(path string, data []byte) {
		var raw DriverManifestRaw
		if err := json.Unmarshal(data, &raw); err != nil {
			kasslog.Warn("skipping unparsable driver manifest %s: %s", path, err)
			return
		}
		out = append(out, NewDriverManifest(raw, path, filepath.Dir(path)))
	})
	if err != nil {
		return nil, err
	}

	sortDrivers(out)
	return out, nil
}

// ScanUpdates walks root recursively, parsing every *.json file as an
// update manifest. Same non-fatal-skip and ordering contract as
// ScanDrivers.
func ScanUpdates(root string) ([]UpdateManifest, error) {
	var out []UpdateManifest

	err := walkJSON(root, func(path string, data []byte) {
		var raw UpdateManifestRaw
		if err := json.Unmarshal(data, &raw); err != nil {
			kasslog.Warn("skipping unparsable update manifest %s: %s", path, err)
			return
		}
		out = append(out, NewUpdateManifest(raw, path, filepath.Dir(path)))
	})
	if err != nil {
		return nil, err
	}

	sortUpdates(out)
	return out, nil
}

// walkJSON recursively visits every *.json file under root, in filesystem
// walk order, calling visit with its path and raw bytes. A root that does
// not exist yields an empty scan, not an error — spec.md's boundary
// behavior for an empty driverRoot is "completes cleanly with WARNING,
// stats all zero", which begins here.
func walkJSON(root string, visit func(path string, data []byte)) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		kasslog.Warn("asset root does not exist, scanning as empty: %s", root)
		return nil
	}

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			kasslog.Warn("skipping unreadable manifest %s: %s", path, readErr)
			return nil
		}
		visit(path, data)
		return nil
	})
}

func sortDrivers(m []DriverManifest) {
	sort.SliceStable(m, func(i, j int) bool {
		if m[i].Order != m[j].Order {
			return m[i].Order < m[j].Order
		}
		return m[i].SourcePath < m[j].SourcePath
	})
}

func sortUpdates(m []UpdateManifest) {
	sort.SliceStable(m, func(i, j int) bool {
		if m[i].Order != m[j].Order {
			return m[i].Order < m[j].Order
		}
		return m[i].SourcePath < m[j].SourcePath
	})
}
