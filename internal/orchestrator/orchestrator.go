package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/packer-plugin-sdk/multistep"

	"github.com/etj-sad/kassia/internal/config"
	"github.com/etj-sad/kassia/internal/deviceselect"
	"github.com/etj-sad/kassia/internal/kasslog"
)

// totalSteps is the nine pipeline stages of spec.md §4.7.
const totalSteps = 9

// Servicer is the subset of internal/servicer.Client the pipeline drives
// directly. Driver/Update Engine calls happen through their own narrower
// Servicer interfaces, constructed inside the relevant steps.
type Servicer interface {
	GetImageInfo(ctx context.Context, wimPath string) error
	Mount(ctx context.Context, wimPath, mountDir string) error
	Unmount(ctx context.Context, mountDir string, commit bool) error
	Export(ctx context.Context, sourcePath, destPath string) error
	AddDriver(ctx context.Context, driverDir, mountDir string) error
	AddPackage(ctx context.Context, packagePath, mountDir string) error
}

// Resolver is the subset of *config.Resolver the orchestrator needs.
type Resolver interface {
	Resolve(deviceFile string, osID int) (*config.ResolvedConfig, error)
}

// ProgressEvent is published to Observer as each stage starts, before the
// stage's work runs. A stage that then fails has still been announced; no
// event is published when a stage completes.
type ProgressEvent struct {
	Stage string
	Step  int
	Total int
}

// Options configures one pipeline run.
type Options struct {
	Root        string // engine root directory
	Device      string // device file name; empty triggers interactive selection
	OSID        int
	NoCleanup   bool
	SkipDrivers bool
	SkipUpdates bool
	DryRun      bool
}

// Orchestrator wires the Config Resolver, Servicer Adapter, Driver/Update
// Engines, and Staging Manager into the nine-stage pipeline.
type Orchestrator struct {
	Options  Options
	Resolver Resolver
	Servicer Servicer
	Prompter deviceselect.Prompter
	Observer func(ProgressEvent)
	Now      func() time.Time

	// copyFile/deletePath are swapped out in tests.
	copyFile   func(src, dst string) error
	deletePath func(path string) error
}

// New returns an Orchestrator ready to Run, wiring sensible defaults for
// anything the caller left nil.
func New(opts Options, resolver Resolver, svc Servicer, prompter deviceselect.Prompter) *Orchestrator {
	return &Orchestrator{
		Options:  opts,
		Resolver: resolver,
		Servicer: svc,
		Prompter: prompter,
		Observer: func(ProgressEvent) {},
		Now:      time.Now,
		copyFile: copyFileContents,
		deletePath: func(path string) error {
			return removeAll(path)
		},
	}
}

func (o *Orchestrator) publish(stage string, step int) {
	if o.Observer != nil {
		o.Observer(ProgressEvent{Stage: stage, Step: step, Total: totalSteps})
	}
}

// Run executes the nine-stage pipeline and returns a Summary on success.
// On failure, every step that ran has already had its Cleanup invoked by
// the multistep Runner (spec.md §4.7's rollback), and the returned error
// is the original, unwrapped failure.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	state := new(multistep.BasicStateBag)
	execState := &ExecutionState{StartTime: o.now()}
	state.Put(stateKeyExecState, execState)
	if o.Options.Device != "" {
		state.Put(stateKeyDeviceFile, o.Options.Device)
	}

	steps := []multistep.Step{
		&stepSelectDevice{o: o},
		&stepLoadConfiguration{o: o},
		&stepCopyWim{o: o},
		&stepMount{o: o},
		&stepUpdateIntegration{o: o},
		&stepDriverIntegration{o: o},
		&stepUnmountCommit{o: o},
		&stepExport{o: o},
		&stepCleanup{o: o},
	}

	runner := &multistep.BasicRunner{Steps: steps}
	runner.Run(ctx, state)

	if rawErr, ok := state.GetOk(stateKeyError); ok {
		return nil, rawErr.(error)
	}

	summary, _ := state.GetOk(stateKeySummary)
	if summary == nil {
		return nil, fmt.Errorf("orchestrator: pipeline completed without producing a summary")
	}
	s := summary.(Summary)
	return &s, nil
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) dryRun() bool { return o.Options.DryRun }

func logStage(name string, step int) {
	kasslog.Info("stage %d/%d: %s", step, totalSteps, name)
}
