package update

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etj-sad/kassia/internal/asset"
)

var allowAll = asset.UpdateCompatContext{SkipValidation: true}

type fakeServicer struct {
	addPackageCalls []string
	fail            map[string]bool
}

func (f *fakeServicer) AddPackage(ctx context.Context, packagePath, mountDir string) error {
	f.addPackageCalls = append(f.addPackageCalls, packagePath)
	if f.fail[packagePath] {
		return assert.AnError
	}
	return nil
}

func fakeCopy(calls *[]string) func(src, dst string) error {
	return func(src, dst string) error {
		*calls = append(*calls, src+"->"+dst)
		return os.MkdirAll(dst, 0o755)
	}
}

func TestRunInstallsMSUViaServicer(t *testing.T) {
	svc := &fakeServicer{fail: map[string]bool{}}
	mount := t.TempDir()
	e := New(svc, mount)

	updates := []asset.UpdateManifest{
		{UpdateName: "kb1", UpdateType: asset.UpdateMSU, SourceDirectory: "/updates", DownloadFileName: "kb1.msu"},
	}

	res, err := e.Run(context.Background(), updates, allowAll)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Processed: 1}, res.Stats)
	assert.Equal(t, []string{filepath.Join("/updates", "kb1.msu")}, svc.addPackageCalls)
}

func TestRunSkipsUpdateRejectedByCompatibilityFilter(t *testing.T) {
	svc := &fakeServicer{fail: map[string]bool{}}
	e := New(svc, t.TempDir())

	updates := []asset.UpdateManifest{
		{UpdateName: "kb2", UpdateType: asset.UpdateMSU, SupportedOperatingSystems: []int{11}},
	}

	res, err := e.Run(context.Background(), updates, asset.UpdateCompatContext{OSID: 10})
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Skipped: 1}, res.Stats)
	assert.Empty(t, svc.addPackageCalls)
}

func TestRunCountsFailedWhenServicerErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kb3.cab"), []byte("data"), 0o644))

	svc := &fakeServicer{fail: map[string]bool{filepath.Join(dir, "kb3.cab"): true}}
	e := New(svc, t.TempDir())

	updates := []asset.UpdateManifest{
		{
			UpdateName: "kb3", UpdateType: asset.UpdateCAB,
			SupportedOperatingSystems: []int{10},
			DownloadFileName:          "kb3.cab",
			SourceDirectory:           dir,
		},
	}

	res, err := e.Run(context.Background(), updates, asset.UpdateCompatContext{OSID: 10})
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Failed: 1}, res.Stats)
}

func TestRunStagesEXEUpdateUsingDownloadFileNameStem(t *testing.T) {
	svc := &fakeServicer{fail: map[string]bool{}}
	mount := t.TempDir()
	srcDir := t.TempDir()

	var copyCalls []string
	e := New(svc, mount)
	e.copyDir = fakeCopy(&copyCalls)

	updates := []asset.UpdateManifest{
		{
			UpdateName:       "runtime",
			UpdateType:       asset.UpdateEXE,
			DownloadFileName: "vcredist_x64.exe",
			SourceDirectory:  srcDir,
		},
	}

	res, err := e.Run(context.Background(), updates, allowAll)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Processed: 1}, res.Stats)
	require.Len(t, copyCalls, 1)
	assert.Contains(t, copyCalls[0], filepath.Join(mount, yunonaRoot, "vcredist_x64"))
}

func TestRunDryRunCountsProcessedWithoutInvokingServicer(t *testing.T) {
	svc := &fakeServicer{fail: map[string]bool{}}
	e := New(svc, t.TempDir())
	e.DryRun = true

	updates := []asset.UpdateManifest{
		{UpdateName: "kb4", UpdateType: asset.UpdateMSU, DownloadFileName: "kb4.msu", SourceDirectory: "/updates"},
	}

	res, err := e.Run(context.Background(), updates, allowAll)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 1, Processed: 1}, res.Stats)
	assert.Empty(t, svc.addPackageCalls)
}
