// Package driver implements the Driver Engine (spec.md §4.4): installs
// compatible drivers by type, INF via the servicer and APPX/EXE via a
// staging copy, aggregates statistics, and reports coverage gaps against
// the device profile's required driver families.
//
// The per-item-error-does-not-abort-the-loop shape mirrors the teacher's
// multistep pipeline, where a stage records a result without the whole
// run dying; here the unit is one driver rather than one pipeline stage.
package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"

	"github.com/etj-sad/kassia/internal/asset"
	"github.com/etj-sad/kassia/internal/kasserr"
	"github.com/etj-sad/kassia/internal/kasslog"
)

// Servicer is the subset of the servicer client the Driver Engine needs.
type Servicer interface {
	AddDriver(ctx context.Context, driverDir, mountDir string) error
}

// Stats aggregates per-run driver installation counts, per spec.md §8's
// property 5 (stats.Total = Processed + Failed + Skipped).
type Stats struct {
	Total     int
	Processed int
	Failed    int
	Skipped   int
}

// Result is the full outcome of one Run: the statistics, the manifests
// that installed successfully, and the driver families the profile
// required but nothing satisfied.
type Result struct {
	Stats     Stats
	Installed []asset.DriverManifest
	Missing   []string
}

// Engine installs compatible drivers into a mounted image.
type Engine struct {
	Servicer   Servicer
	MountPoint string
	DryRun     bool
	Catalog    *asset.FamilyNameCatalog

	// copyDir is swapped out in tests; defaults to otiai10/copy.Copy.
	copyDir func(src, dst string) error
}

// New returns an Engine ready to run against mountPoint.
func New(svc Servicer, mountPoint string, catalog *asset.FamilyNameCatalog) *Engine {
	return &Engine{
		Servicer:   svc,
		MountPoint: mountPoint,
		Catalog:    catalog,
		copyDir:    copy.Copy,
	}
}

func (e *Engine) copy(src, dst string) error {
	if e.copyDir != nil {
		return e.copyDir(src, dst)
	}
	return copy.Copy(src, dst)
}

// yunonaRoot is the fixed staging directory every driver/update copy lands
// under, per spec.md §4.4/§4.6.
const yunonaRoot = "Users/Public/Yunona"

// Run evaluates every driver in drivers (ordered by the Asset Scanner)
// against compat, installs the compatible ones, and computes the coverage
// gap against requiredFamilies (profile.driverFamilyIds). drivers may
// include items the Compatibility Filter would reject — those are counted
// Skipped, matching spec.md §8's scenario S1, where an incompatible
// manifest still contributes to Total.
func (e *Engine) Run(ctx context.Context, drivers []asset.DriverManifest, compat asset.DriverCompatContext, requiredFamilies []string) (Result, error) {
	res := Result{Stats: Stats{Total: len(drivers)}}
	satisfied := map[string]bool{}

	for _, d := range drivers {
		if !asset.DriverCompatible(d, compat) {
			res.Stats.Skipped++
			continue
		}

		ok := e.installOne(ctx, d)
		if ok {
			res.Stats.Processed++
			res.Installed = append(res.Installed, d)
			satisfied[strings.ToLower(d.DriverFamilyID)] = true
		} else {
			res.Stats.Failed++
		}
	}

	for _, family := range requiredFamilies {
		if !satisfied[strings.ToLower(family)] {
			name := family
			if e.Catalog != nil {
				name = e.Catalog.Lookup(family)
			}
			res.Missing = append(res.Missing, family)
			kasslog.Warn("driver family %q (%s) has no installed driver satisfying it", family, name)
		}
	}

	return res, nil
}

func (e *Engine) installOne(ctx context.Context, d asset.DriverManifest) bool {
	if e.DryRun {
		kasslog.Info("dry run: would install driver %s (%s) from %s", d.DriverName, d.DriverType, d.SourceDirectory)
		return true
	}

	var err error
	switch d.DriverType {
	case asset.DriverINF:
		err = e.Servicer.AddDriver(ctx, d.SourceDirectory, e.MountPoint)
	case asset.DriverAPPX:
		err = e.stageByExtension(d, ".appx")
	case asset.DriverEXE:
		err = e.stageByExtension(d, ".exe")
	default:
		err = fmt.Errorf("%w: unknown driver type %q for %s", kasserr.ErrAsset, d.DriverType, d.DriverName)
	}

	if err != nil {
		kasslog.Error("driver %s failed: %s", d.DriverName, err)
		return false
	}
	return true
}

// stageByExtension discovers every file matching ext under d.SourceDirectory
// and copies that file's parent directory as a whole into
// <mountPoint>/Users/Public/Yunona/<dirname>, per spec.md §4.4.
func (e *Engine) stageByExtension(d asset.DriverManifest, ext string) error {
	found := false

	err := filepath.Walk(d.SourceDirectory, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() || !strings.EqualFold(filepath.Ext(path), ext) {
			return nil
		}
		found = true

		parent := filepath.Dir(path)
		dst := filepath.Join(e.MountPoint, yunonaRoot, filepath.Base(parent))
		if copyErr := e.copy(parent, dst); copyErr != nil {
			return &kasserr.StagingFailure{Source: parent, Destination: dst, Err: copyErr}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: no %s files found under %s for driver %s", kasserr.ErrAsset, ext, d.SourceDirectory, d.DriverName)
	}
	return nil
}
