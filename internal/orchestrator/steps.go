package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/packer-plugin-sdk/multistep"

	"github.com/etj-sad/kassia/internal/asset"
	"github.com/etj-sad/kassia/internal/config"
	"github.com/etj-sad/kassia/internal/driver"
	"github.com/etj-sad/kassia/internal/kasslog"
	"github.com/etj-sad/kassia/internal/staging"
	"github.com/etj-sad/kassia/internal/update"
	"github.com/etj-sad/kassia/internal/winutil"
)

// minFreeBytesWarning is the free-space threshold below which stepCopyWim
// logs a warning before copying the source WIM. Advisory only: low space
// does not halt the pipeline, since the copy itself will fail clearly if
// it truly runs out of room.
const minFreeBytesWarning = 5 << 30 // 5 GiB

// deviceConfigDirName, familyMappingRelPath and familyCatalogRelPath name
// fixed locations under the engine root. spec.md §6 names the JSON shapes
// these files hold but not their paths; this implementation's choice,
// recorded in DESIGN.md.
const (
	deviceConfigDirName  = "DeviceConfig"
	familyMappingRelPath = "Engine/DeviceFamilyMapping.json"
	familyCatalogRelPath = "Engine/IDs/driverFamilyId.json"

	stateKeyStagingManager = "stagingManager"
)

// --- stage 1: Select Device ---------------------------------------------

type stepSelectDevice struct{ o *Orchestrator }

func (s *stepSelectDevice) Run(ctx context.Context, state multistep.StateBag) multistep.StepAction {
	es := getExecState(state)
	es.StepNumber = 1
	es.CurrentStep = "Select Device"
	logStage(es.CurrentStep, 1)
	s.o.publish(es.CurrentStep, 1)

	deviceDir := filepath.Join(s.o.Options.Root, deviceConfigDirName)
	deviceFile, err := s.o.Prompter.SelectDevice(deviceDir, s.o.Options.Device)
	if err != nil {
		return haltOnError(state, err)
	}

	state.Put(stateKeyDeviceFile, deviceFile)
	return multistep.ActionContinue
}

func (s *stepSelectDevice) Cleanup(state multistep.StateBag) {}

// --- stage 2: Load Configuration -----------------------------------------

type stepLoadConfiguration struct{ o *Orchestrator }

func (s *stepLoadConfiguration) Run(ctx context.Context, state multistep.StateBag) multistep.StepAction {
	es := getExecState(state)
	es.StepNumber = 2
	es.CurrentStep = "Load Configuration"
	logStage(es.CurrentStep, 2)
	s.o.publish(es.CurrentStep, 2)

	deviceFile := state.Get(stateKeyDeviceFile).(string)
	rc, err := s.o.Resolver.Resolve(deviceFile, s.o.Options.OSID)
	if err != nil {
		return haltOnError(state, err)
	}

	state.Put(stateKeyResolvedConfig, rc)
	es.OriginalWim = rc.BuildConfig.SourceWim
	return multistep.ActionContinue
}

func (s *stepLoadConfiguration) Cleanup(state multistep.StateBag) {}

// --- stage 3: Copy WIM -----------------------------------------------------

type stepCopyWim struct{ o *Orchestrator }

func (s *stepCopyWim) Run(ctx context.Context, state multistep.StateBag) multistep.StepAction {
	es := getExecState(state)
	es.StepNumber = 3
	es.CurrentStep = "Copy WIM"
	logStage(es.CurrentStep, 3)
	s.o.publish(es.CurrentStep, 3)

	rc := getResolvedConfig(state)

	if err := s.o.Servicer.GetImageInfo(ctx, rc.BuildConfig.SourceWim); err != nil {
		return haltOnError(state, err)
	}

	if err := os.MkdirAll(rc.BuildConfig.TempPath, 0o755); err != nil {
		return haltOnError(state, fmt.Errorf("creating temp path %s: %w", rc.BuildConfig.TempPath, err))
	}

	if free, err := winutil.FreeBytes(rc.BuildConfig.TempPath); err != nil {
		kasslog.Warn("free space check for %s unavailable: %s", rc.BuildConfig.TempPath, err)
	} else if free < minFreeBytesWarning {
		kasslog.Warn("low free space on %s: %d bytes available", rc.BuildConfig.TempPath, free)
	}

	tempWim := filepath.Join(rc.BuildConfig.TempPath, filepath.Base(rc.BuildConfig.SourceWim))
	if err := s.o.copyFile(rc.BuildConfig.SourceWim, tempWim); err != nil {
		return haltOnError(state, fmt.Errorf("copying wim to %s: %w", tempWim, err))
	}

	if err := s.o.Servicer.GetImageInfo(ctx, tempWim); err != nil {
		return haltOnError(state, err)
	}

	es.TempWim = tempWim
	es.TempFiles = append(es.TempFiles, tempWim)
	rc.BuildConfig.SourceWim = tempWim
	return multistep.ActionContinue
}

func (s *stepCopyWim) Cleanup(state multistep.StateBag) {
	es := getExecState(state)
	if s.o.Options.NoCleanup || es.TempWim == "" {
		return
	}
	if err := s.o.deletePath(es.TempWim); err != nil {
		kasslog.Warn("cleanup: could not remove temp wim %s: %s", es.TempWim, err)
	}
}

// --- stage 4: Mount ---------------------------------------------------------

type stepMount struct{ o *Orchestrator }

func (s *stepMount) Run(ctx context.Context, state multistep.StateBag) multistep.StepAction {
	es := getExecState(state)
	es.StepNumber = 4
	es.CurrentStep = "Mount"
	logStage(es.CurrentStep, 4)
	s.o.publish(es.CurrentStep, 4)

	rc := getResolvedConfig(state)

	if err := os.MkdirAll(rc.BuildConfig.MountPoint, 0o755); err != nil {
		return haltOnError(state, fmt.Errorf("creating mount point %s: %w", rc.BuildConfig.MountPoint, err))
	}

	if err := s.o.Servicer.Mount(ctx, rc.BuildConfig.SourceWim, rc.BuildConfig.MountPoint); err != nil {
		return haltOnError(state, err)
	}

	es.MountPoint = rc.BuildConfig.MountPoint
	es.IsMounted = true

	// One Staging Manager instance per pipeline run, consolidating what
	// spec.md §9 calls out as duplicated Ensure-YunonaCore call sites
	// across the driver and update modules.
	state.Put(stateKeyStagingManager, staging.NewManager(rc.BuildConfig.YunonaPath, rc.BuildConfig.MountPoint))
	return multistep.ActionContinue
}

// Cleanup discards the mount if it is still owned by this run when the
// pipeline exits without having reached a successful commit-unmount
// (spec.md §4.7's Rollback: "If isMounted, run servicer Unmount with
// /Discard... failures here are logged but never re-raised").
func (s *stepMount) Cleanup(state multistep.StateBag) {
	es := getExecState(state)
	if !es.IsMounted {
		return
	}
	if err := s.o.Servicer.Unmount(context.Background(), es.MountPoint, false); err != nil {
		kasslog.Warn("rollback: discard-unmount of %s failed: %s", es.MountPoint, err)
		return
	}
	es.IsMounted = false
}

// --- stage 5: Update Integration --------------------------------------------

type stepUpdateIntegration struct{ o *Orchestrator }

func (s *stepUpdateIntegration) Run(ctx context.Context, state multistep.StateBag) multistep.StepAction {
	es := getExecState(state)
	es.StepNumber = 5
	es.CurrentStep = "Update Integration"
	logStage(es.CurrentStep, 5)
	s.o.publish(es.CurrentStep, 5)

	rc := getResolvedConfig(state)

	if s.o.Options.SkipUpdates {
		kasslog.Info("update integration skipped by configuration")
		return multistep.ActionContinue
	}

	manager := state.Get(stateKeyStagingManager).(*staging.Manager)
	if err := manager.EnsureStagingPayload(); err != nil {
		return haltOnError(state, err)
	}

	manifests, err := asset.ScanUpdates(rc.BuildConfig.UpdateRoot)
	if err != nil {
		return haltOnError(state, err)
	}

	engine := update.New(s.o.Servicer, rc.BuildConfig.MountPoint)
	engine.DryRun = s.o.dryRun()

	compat := asset.UpdateCompatContext{OSID: rc.Metadata.OSID}
	res, err := engine.Run(ctx, manifests, compat)
	if err != nil {
		return haltOnError(state, err)
	}

	state.Put("updateResult", res)
	return multistep.ActionContinue
}

func (s *stepUpdateIntegration) Cleanup(state multistep.StateBag) {}

// --- stage 6: Driver Integration ---------------------------------------------

type stepDriverIntegration struct{ o *Orchestrator }

func (s *stepDriverIntegration) Run(ctx context.Context, state multistep.StateBag) multistep.StepAction {
	es := getExecState(state)
	es.StepNumber = 6
	es.CurrentStep = "Driver Integration"
	logStage(es.CurrentStep, 6)
	s.o.publish(es.CurrentStep, 6)

	rc := getResolvedConfig(state)

	if s.o.Options.SkipDrivers {
		kasslog.Info("driver integration skipped by configuration")
		return multistep.ActionContinue
	}

	manager := state.Get(stateKeyStagingManager).(*staging.Manager)
	if err := manager.EnsureStagingPayload(); err != nil {
		return haltOnError(state, err)
	}

	manifests, err := asset.ScanDrivers(rc.BuildConfig.DriverRoot)
	if err != nil {
		return haltOnError(state, err)
	}

	mapping, mapErr := config.LoadDeviceFamilyMapping(filepath.Join(s.o.Options.Root, familyMappingRelPath))
	var familyDeviceIDs []string
	if mapErr != nil {
		kasslog.Warn("device family mapping unavailable, proceeding with no device-id filter: %s", mapErr)
	} else {
		familyDeviceIDs = mapping.DeviceIDs(rc.DeviceProfile.DeviceID)
	}

	catalog := asset.LoadFamilyNameCatalog(filepath.Join(s.o.Options.Root, familyCatalogRelPath))
	engine := driver.New(s.o.Servicer, rc.BuildConfig.MountPoint, catalog)
	engine.DryRun = s.o.dryRun()

	compat := asset.DriverCompatContext{
		FamilyDeviceIDs: familyDeviceIDs,
		ProfileFamilies: rc.DeviceProfile.DriverFamilyIDs,
		OSID:            rc.Metadata.OSID,
	}

	res, err := engine.Run(ctx, manifests, compat, rc.DeviceProfile.DriverFamilyIDs)
	if err != nil {
		return haltOnError(state, err)
	}

	// Driver integration failures are fatal at the stage boundary (spec.md
	// §4.7: "skipped if SkipDrivers; failure is fatal, not skipped") even
	// though individual driver failures within the loop are not.
	state.Put("driverResult", res)
	return multistep.ActionContinue
}

func (s *stepDriverIntegration) Cleanup(state multistep.StateBag) {}

// --- stage 7: Unmount-Commit ---------------------------------------------

type stepUnmountCommit struct{ o *Orchestrator }

func (s *stepUnmountCommit) Run(ctx context.Context, state multistep.StateBag) multistep.StepAction {
	es := getExecState(state)
	es.StepNumber = 7
	es.CurrentStep = "Unmount-Commit"
	logStage(es.CurrentStep, 7)
	s.o.publish(es.CurrentStep, 7)

	rc := getResolvedConfig(state)

	if err := s.o.Servicer.Unmount(ctx, rc.BuildConfig.MountPoint, true); err != nil {
		return haltOnError(state, err)
	}
	es.IsMounted = false

	if err := s.o.Servicer.GetImageInfo(ctx, rc.BuildConfig.SourceWim); err != nil {
		return haltOnError(state, err)
	}

	return multistep.ActionContinue
}

func (s *stepUnmountCommit) Cleanup(state multistep.StateBag) {}

// --- stage 8: Export ---------------------------------------------------------

type stepExport struct{ o *Orchestrator }

func (s *stepExport) Run(ctx context.Context, state multistep.StateBag) multistep.StepAction {
	es := getExecState(state)
	es.StepNumber = 8
	es.CurrentStep = "Export"
	logStage(es.CurrentStep, 8)
	s.o.publish(es.CurrentStep, 8)

	rc := getResolvedConfig(state)

	if err := os.MkdirAll(rc.BuildConfig.ExportPath, 0o755); err != nil {
		return haltOnError(state, fmt.Errorf("creating export path %s: %w", rc.BuildConfig.ExportPath, err))
	}

	outputName := fmt.Sprintf("%d_%s_%s.wim", rc.Metadata.OSID, rc.DeviceProfile.DeviceID, s.o.now().Format("2006-01-02_150405"))
	outputPath := filepath.Join(rc.BuildConfig.ExportPath, outputName)

	if err := s.o.Servicer.Export(ctx, rc.BuildConfig.SourceWim, outputPath); err != nil {
		return haltOnError(state, err)
	}

	summary := buildSummary(state, outputPath, es.StartTime, s.o.now())
	state.Put(stateKeySummary, summary)
	return multistep.ActionContinue
}

func (s *stepExport) Cleanup(state multistep.StateBag) {}

func buildSummary(state multistep.StateBag, outputPath string, start, end time.Time) Summary {
	rc := getResolvedConfig(state)
	summary := Summary{
		DeviceID:   rc.DeviceProfile.DeviceID,
		OSID:       rc.Metadata.OSID,
		OutputPath: outputPath,
		Duration:   end.Sub(start),
	}

	if v, ok := state.GetOk("driverResult"); ok {
		r := v.(driver.Result)
		summary.DriverStats = DriverStats(r.Stats)
		summary.MissingFamilies = r.Missing
	}
	if v, ok := state.GetOk("updateResult"); ok {
		r := v.(update.Result)
		summary.UpdateStats = UpdateStats(r.Stats)
	}
	return summary
}

// --- stage 9: Cleanup ---------------------------------------------------------

type stepCleanup struct{ o *Orchestrator }

func (s *stepCleanup) Run(ctx context.Context, state multistep.StateBag) multistep.StepAction {
	es := getExecState(state)
	es.StepNumber = 9
	es.CurrentStep = "Cleanup"
	logStage(es.CurrentStep, 9)
	s.o.publish(es.CurrentStep, 9)

	if s.o.Options.NoCleanup {
		return multistep.ActionContinue
	}

	for _, p := range es.TempFiles {
		if err := s.o.deletePath(p); err != nil {
			kasslog.Warn("cleanup: could not remove %s: %s", p, err)
		}
	}
	return multistep.ActionContinue
}

func (s *stepCleanup) Cleanup(state multistep.StateBag) {}
