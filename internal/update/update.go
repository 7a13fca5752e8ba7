// Package update implements the Update Engine (spec.md §4.5): same shape
// as the Driver Engine with different dispatch — MSU/CAB via the servicer
// with retry, EXE/MSI via a recursive staging copy.
package update

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"

	"github.com/etj-sad/kassia/internal/asset"
	"github.com/etj-sad/kassia/internal/kasserr"
	"github.com/etj-sad/kassia/internal/kasslog"
)

// Servicer is the subset of the servicer client the Update Engine needs.
// AddPackage is expected to already implement the retry contract of
// spec.md §4.5 (up to MaxRetries additional attempts, linear backoff).
type Servicer interface {
	AddPackage(ctx context.Context, packagePath, mountDir string) error
}

// Stats aggregates per-run update installation counts.
type Stats struct {
	Total     int
	Processed int
	Failed    int
	Skipped   int
}

// Result is the full outcome of one Run.
type Result struct {
	Stats     Stats
	Installed []asset.UpdateManifest
}

// Engine installs compatible updates into a mounted image.
type Engine struct {
	Servicer   Servicer
	MountPoint string
	DryRun     bool

	copyDir func(src, dst string) error
}

// New returns an Engine ready to run against mountPoint.
func New(svc Servicer, mountPoint string) *Engine {
	return &Engine{
		Servicer:   svc,
		MountPoint: mountPoint,
		copyDir:    copy.Copy,
	}
}

func (e *Engine) copy(src, dst string) error {
	if e.copyDir != nil {
		return e.copyDir(src, dst)
	}
	return copy.Copy(src, dst)
}

const yunonaRoot = "Users/Public/Yunona"

// Run evaluates every update in updates (ordered by the Asset Scanner)
// against compat and installs the compatible ones. An update rejected by
// the Compatibility Filter (OS mismatch, missing/empty payload file) is
// counted Skipped, not excluded from Total.
func (e *Engine) Run(ctx context.Context, updates []asset.UpdateManifest, compat asset.UpdateCompatContext) (Result, error) {
	res := Result{Stats: Stats{Total: len(updates)}}

	for _, u := range updates {
		enriched, ok := asset.UpdateCompatible(u, compat)
		if !ok {
			res.Stats.Skipped++
			continue
		}

		if e.installOne(ctx, enriched) {
			res.Stats.Processed++
			res.Installed = append(res.Installed, enriched)
		} else {
			res.Stats.Failed++
		}
	}

	return res, nil
}

func (e *Engine) installOne(ctx context.Context, u asset.UpdateManifest) bool {
	if e.DryRun {
		kasslog.Info("dry run: would install update %s (%s) from %s", u.UpdateName, u.UpdateType, u.ValidatedFilePath)
		return true
	}

	var err error
	switch u.UpdateType {
	case asset.UpdateMSU, asset.UpdateCAB:
		err = e.Servicer.AddPackage(ctx, u.ValidatedFilePath, e.MountPoint)
	case asset.UpdateEXE, asset.UpdateMSI:
		err = e.stageDirectory(u)
	default:
		err = fmt.Errorf("%w: unknown update type %q for %s", kasserr.ErrAsset, u.UpdateType, u.UpdateName)
	}

	if err != nil {
		kasslog.Error("update %s failed: %s", u.UpdateName, err)
		return false
	}
	return true
}

// stageDirectory copies u.SourceDirectory recursively into
// <mountPoint>/Users/Public/Yunona/<stem(downloadFileName)>, per
// spec.md §4.5.
func (e *Engine) stageDirectory(u asset.UpdateManifest) error {
	stem := strings.TrimSuffix(filepath.Base(u.DownloadFileName), filepath.Ext(u.DownloadFileName))
	dst := filepath.Join(e.MountPoint, yunonaRoot, stem)

	if err := e.copy(u.SourceDirectory, dst); err != nil {
		return &kasserr.StagingFailure{Source: u.SourceDirectory, Destination: dst, Err: err}
	}
	return nil
}
