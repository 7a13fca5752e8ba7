// Package orchestrator implements the Build Orchestrator (spec.md §4.7):
// the nine-stage pipeline that drives the whole engine, tracks rollback
// state, validates WIM integrity at stage boundaries, and emits progress.
//
// The pipeline is built on hashicorp/packer-plugin-sdk/multistep, the same
// StateBag/Step/Runner machinery the teacher uses to drive its Azure ARM
// and chroot builds (builder/azure/arm/builder.go,
// builder/azure/chroot/builder.go). Per spec.md §9's re-architecture note
// ("exception-driven control flow in stages → explicit result type per
// stage... rollback itself uses scoped cleanup blocks tied to acquisition
// of mount and tempfile resources"), rollback is not a bespoke function:
// it is exactly multistep's existing contract, where every Step.Cleanup
// runs — in reverse order — for every step that executed, success or
// failure. Steps make their own Cleanup a no-op once their obligation is
// already discharged.
package orchestrator

import (
	"time"

	"github.com/hashicorp/packer-plugin-sdk/multistep"

	"github.com/etj-sad/kassia/internal/config"
)

// StateBag keys. Unexported: nothing outside this package reaches into the
// bag directly.
const (
	stateKeyDeviceFile     = "deviceFile"
	stateKeyResolvedConfig = "resolvedConfig"
	stateKeyExecState      = "execState"
	stateKeyError          = "error"
	stateKeySummary        = "summary"
)

// ExecutionState is the orchestrator's rollback ledger (spec.md §3):
// created at pipeline start, consulted only by rollback (here, by step
// Cleanup methods), destroyed on pipeline exit.
type ExecutionState struct {
	OriginalWim string
	TempWim     string
	MountPoint  string
	IsMounted   bool
	TempFiles   []string
	StartTime   time.Time
	StepNumber  int
	CurrentStep string
}

// Summary is the orchestrator's user-visible outcome (spec.md §7's
// "completion banner" / "summary report").
type Summary struct {
	DeviceID     string
	OSID         int
	OutputPath   string
	Duration     time.Duration
	DriverStats  DriverStats
	UpdateStats  UpdateStats
	MissingFamilies []string
}

// DriverStats and UpdateStats mirror the Driver/Update Engine Stats types
// without importing those packages into the public Summary surface.
type DriverStats struct{ Total, Processed, Failed, Skipped int }
type UpdateStats struct{ Total, Processed, Failed, Skipped int }

func getResolvedConfig(state multistep.StateBag) *config.ResolvedConfig {
	return state.Get(stateKeyResolvedConfig).(*config.ResolvedConfig)
}

func getExecState(state multistep.StateBag) *ExecutionState {
	return state.Get(stateKeyExecState).(*ExecutionState)
}

func haltOnError(state multistep.StateBag, err error) multistep.StepAction {
	state.Put(stateKeyError, err)
	return multistep.ActionHalt
}
