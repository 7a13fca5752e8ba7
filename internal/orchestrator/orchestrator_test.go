package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etj-sad/kassia/internal/config"
)

type fakeResolver struct {
	rc  *config.ResolvedConfig
	err error
}

func (f *fakeResolver) Resolve(deviceFile string, osID int) (*config.ResolvedConfig, error) {
	return f.rc, f.err
}

type fakePrompter struct {
	device string
	err    error
}

func (f *fakePrompter) SelectDevice(deviceDir, preselected string) (string, error) {
	if preselected != "" {
		return preselected, nil
	}
	return f.device, f.err
}

type fakeServicer struct {
	mountErr       error
	failCommitOnce bool
	exportErr      error
	getInfoErr     error
	mountCalls     int
	unmountCalls   []bool // commit flag per call
	exportCalls    int
}

func (f *fakeServicer) GetImageInfo(ctx context.Context, wimPath string) error { return f.getInfoErr }
func (f *fakeServicer) Mount(ctx context.Context, wimPath, mountDir string) error {
	f.mountCalls++
	return f.mountErr
}
func (f *fakeServicer) Unmount(ctx context.Context, mountDir string, commit bool) error {
	f.unmountCalls = append(f.unmountCalls, commit)
	if commit && f.failCommitOnce {
		return assert.AnError
	}
	return nil
}
func (f *fakeServicer) Export(ctx context.Context, sourcePath, destPath string) error {
	f.exportCalls++
	return f.exportErr
}
func (f *fakeServicer) AddDriver(ctx context.Context, driverDir, mountDir string) error { return nil }
func (f *fakeServicer) AddPackage(ctx context.Context, packagePath, mountDir string) error {
	return nil
}

func newTestResolvedConfig(t *testing.T) *config.ResolvedConfig {
	t.Helper()
	root := t.TempDir()

	sourceWim := filepath.Join(root, "source.wim")
	require.NoError(t, os.WriteFile(sourceWim, []byte("wim-bytes"), 0o644))

	yunonaSource := filepath.Join(root, "yunonaSource")
	require.NoError(t, os.MkdirAll(yunonaSource, 0o755))

	return &config.ResolvedConfig{
		DeviceProfile: config.DeviceProfile{
			DeviceID:        "RW-528A",
			SupportedOS:     []int{10},
			DriverFamilyIDs: []string{"net", "gpu"},
		},
		BuildConfig: config.BuildConfig{
			MountPoint: filepath.Join(root, "mount"),
			ExportPath: filepath.Join(root, "export"),
			TempPath:   filepath.Join(root, "temp"),
			DriverRoot: filepath.Join(root, "drivers"),
			UpdateRoot: filepath.Join(root, "updates"),
			YunonaPath: yunonaSource,
			SourceWim:  sourceWim,
		},
		Metadata: config.Metadata{OSID: 10, DeviceFile: "rw528a.json"},
	}
}

func newTestOrchestrator(t *testing.T, resolver Resolver, svc Servicer, prompter *fakePrompter) *Orchestrator {
	t.Helper()
	o := New(Options{Root: t.TempDir(), OSID: 10}, resolver, svc, prompter)
	o.Now = func() time.Time { return time.Unix(1700000000, 0) }
	return o
}

func TestRunSuccessProducesSummaryAndCommitsUnmount(t *testing.T) {
	rc := newTestResolvedConfig(t)
	resolver := &fakeResolver{rc: rc}
	svc := &fakeServicer{}
	prompter := &fakePrompter{device: "rw528a.json"}

	o := newTestOrchestrator(t, resolver, svc, prompter)

	var events []ProgressEvent
	o.Observer = func(e ProgressEvent) { events = append(events, e) }

	summary, err := o.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, "RW-528A", summary.DeviceID)
	assert.Equal(t, 10, summary.OSID)
	assert.Contains(t, summary.OutputPath, "10_RW-528A_")

	assert.Equal(t, 1, svc.mountCalls)
	require.Len(t, svc.unmountCalls, 1)
	assert.True(t, svc.unmountCalls[0], "successful run must commit, not discard")
	assert.Equal(t, 1, svc.exportCalls)
	assert.Len(t, events, 9)
}

func TestRunRollsBackMountOnUnmountCommitFailure(t *testing.T) {
	rc := newTestResolvedConfig(t)
	resolver := &fakeResolver{rc: rc}
	svc := &fakeServicer{}
	prompter := &fakePrompter{device: "rw528a.json"}

	o := newTestOrchestrator(t, resolver, svc, prompter)

	// Force unmount-commit (stage 7) itself to fail, leaving isMounted true
	// so stepMount's Cleanup must discard it.
	svc.failCommitOnce = true

	_, err := o.Run(context.Background())
	require.Error(t, err)

	require.Len(t, svc.unmountCalls, 2)
	assert.True(t, svc.unmountCalls[0], "stage 7 attempts a commit unmount first")
	assert.False(t, svc.unmountCalls[1], "rollback must discard via stepMount.Cleanup")
}

func TestRunDeletesTempFilesOnSuccessUnlessNoCleanup(t *testing.T) {
	rc := newTestResolvedConfig(t)
	resolver := &fakeResolver{rc: rc}
	svc := &fakeServicer{}
	prompter := &fakePrompter{device: "rw528a.json"}

	o := New(Options{Root: t.TempDir(), OSID: 10}, resolver, svc, prompter)
	o.Now = func() time.Time { return time.Unix(1700000000, 0) }

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	tempWim := filepath.Join(rc.BuildConfig.TempPath, "source.wim")
	_, statErr := os.Stat(tempWim)
	assert.True(t, os.IsNotExist(statErr), "temp wim should be removed by stage 9 cleanup")
}

func TestRunKeepsTempFilesWhenNoCleanup(t *testing.T) {
	rc := newTestResolvedConfig(t)
	resolver := &fakeResolver{rc: rc}
	svc := &fakeServicer{}
	prompter := &fakePrompter{device: "rw528a.json"}

	o := New(Options{Root: t.TempDir(), OSID: 10, NoCleanup: true}, resolver, svc, prompter)
	o.Now = func() time.Time { return time.Unix(1700000000, 0) }

	_, err := o.Run(context.Background())
	require.NoError(t, err)

	tempWim := filepath.Join(rc.BuildConfig.TempPath, "source.wim")
	_, statErr := os.Stat(tempWim)
	assert.NoError(t, statErr, "temp wim must survive when NoCleanup is set")
}

func TestRunFailsFastWhenConfigResolutionErrors(t *testing.T) {
	resolver := &fakeResolver{err: assert.AnError}
	svc := &fakeServicer{}
	prompter := &fakePrompter{device: "rw528a.json"}

	o := newTestOrchestrator(t, resolver, svc, prompter)

	_, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, svc.mountCalls, "mount must never be attempted after a config failure")
}
