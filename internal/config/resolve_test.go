package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etj-sad/kassia/internal/kasserr"
)

func writeJSON(t *testing.T, path string, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func newTestRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	writeJSON(t, filepath.Join(root, "DeviceConfig", "rw528a.json"), map[string]interface{}{
		"deviceId":        "RW-528A",
		"supportedOS":     []int{10, 11},
		"driverFamilyIds": []string{"net", "gpu"},
	})

	writeJSON(t, filepath.Join(root, buildConfigFileName), map[string]interface{}{
		"name":       "kassia",
		"mountPoint": "${root}/Runtime/Mount",
		"exportPath": "${root}/Export",
		"tempPath":   "${root}/Temp",
		"driverRoot": "${root}/Drivers",
		"updateRoot": "${root}/Updates",
		"yunonaPath": "${root}/Yunona",
		"osWimMap": map[string]string{
			"10": "C:/images/w10.wim",
		},
	})

	return root
}

func TestResolveSuccess(t *testing.T) {
	root := newTestRoot(t)
	r := NewResolver(root)

	rc, err := r.Resolve("rw528a.json", 10)
	require.NoError(t, err)

	assert.Equal(t, "RW-528A", rc.DeviceProfile.DeviceID)
	assert.Equal(t, 10, rc.DeviceProfile.SelectedOSID)
	assert.Equal(t, 10, rc.BuildConfig.SelectedOSID)
	assert.Equal(t, filepath.Join(root, "Runtime", "Mount"), rc.BuildConfig.MountPoint)
	assert.NotEmpty(t, rc.BuildConfig.SourceWim)
}

func TestResolveCachesSecondCall(t *testing.T) {
	root := newTestRoot(t)
	r := NewResolver(root)

	first, err := r.Resolve("rw528a.json", 10)
	require.NoError(t, err)

	// Touch an unrelated file; the cache key only depends on the device
	// file, the build config, and osID, so this must not invalidate it.
	require.NoError(t, os.WriteFile(filepath.Join(root, "unrelated.txt"), []byte("x"), 0o644))

	second, err := r.Resolve("rw528a.json", 10)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second resolve differs from first (-first +second):\n%s", diff)
	}
}

func TestResolveDiskCacheHitPreservesSourceWim(t *testing.T) {
	root := newTestRoot(t)
	r := NewResolver(root)

	first, err := r.Resolve("rw528a.json", 10)
	require.NoError(t, err)
	require.NotEmpty(t, first.BuildConfig.SourceWim)

	// Evict the in-process front so the second Resolve must actually read
	// the on-disk cache entry written by storeCached, the way a second
	// process would (spec.md §4.1, scenario S5).
	memCache.Flush()

	second, err := r.Resolve("rw528a.json", 10)
	require.NoError(t, err)

	assert.Equal(t, first.BuildConfig.SourceWim, second.BuildConfig.SourceWim)
	assert.NotEmpty(t, second.BuildConfig.SourceWim)
	assert.Equal(t, first.BuildConfig.SelectedOSID, second.BuildConfig.SelectedOSID)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("disk-cache hit differs from first resolve (-first +second):\n%s", diff)
	}
}

func TestResolveOSIncompatible(t *testing.T) {
	root := newTestRoot(t)
	r := NewResolver(root)

	_, err := r.Resolve("rw528a.json", 42)
	require.Error(t, err)

	var target *kasserr.OSIncompatible
	require.True(t, errors.As(err, &target))
	assert.Equal(t, 42, target.OSID)

	// No side effects: no tempFiles, no cache entry written for a failed
	// resolve (spec.md S2).
	_, err = os.Stat(filepath.Join(root, "Runtime", "Cache"))
	assert.True(t, os.IsNotExist(err))
}

func TestResolveWimMappingMissing(t *testing.T) {
	root := newTestRoot(t)
	r := NewResolver(root)

	_, err := r.Resolve("rw528a.json", 11)
	require.Error(t, err)

	var target *kasserr.WimMappingMissing
	require.True(t, errors.As(err, &target))
	assert.Equal(t, 11, target.OSID)
}

func TestResolveDeviceMissing(t *testing.T) {
	root := newTestRoot(t)
	r := NewResolver(root)

	_, err := r.Resolve("does-not-exist.json", 10)
	require.Error(t, err)

	var target *kasserr.ConfigMissing
	require.True(t, errors.As(err, &target))
}

func TestResolveSchemaViolation(t *testing.T) {
	root := newTestRoot(t)
	writeJSON(t, filepath.Join(root, "DeviceConfig", "broken.json"), map[string]interface{}{
		"deviceId": "BROKEN",
		// supportedOS and driverFamilyIds are missing.
	})

	r := NewResolver(root)
	_, err := r.Resolve("broken.json", 10)
	require.Error(t, err)

	var target *kasserr.SchemaViolation
	require.True(t, errors.As(err, &target))
	assert.GreaterOrEqual(t, len(target.Violations), 2)
}

func TestResolveCorruptCacheFileIsTreatedAsMiss(t *testing.T) {
	root := newTestRoot(t)
	r := NewResolver(root)
	r.Now = func() time.Time { return time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC) }

	deviceInfo, err := os.Stat(filepath.Join(root, "DeviceConfig", "rw528a.json"))
	require.NoError(t, err)
	buildInfo, err := os.Stat(filepath.Join(root, buildConfigFileName))
	require.NoError(t, err)

	key := cacheKey("rw528a.json", 10, deviceInfo.ModTime(), buildInfo.ModTime())
	path := cachePath(root, key)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	rc, err := r.Resolve("rw528a.json", 10)
	require.NoError(t, err)
	assert.Equal(t, "RW-528A", rc.DeviceProfile.DeviceID)

	// The corrupt file was replaced by a valid cache entry.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var reloaded ResolvedConfig
	require.NoError(t, json.Unmarshal(data, &reloaded))
}
