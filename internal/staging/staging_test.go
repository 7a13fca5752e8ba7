package staging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, version string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"version":"`+version+`"}`), 0o644))
}

func TestEnsureStagingPayloadCopiesWhenTargetMissing(t *testing.T) {
	source := t.TempDir()
	writeConfig(t, source, "1.2.0")
	require.NoError(t, os.WriteFile(filepath.Join(source, "payload.txt"), []byte("x"), 0o644))

	mount := t.TempDir()
	m := NewManager(source, mount)

	require.NoError(t, m.EnsureStagingPayload())

	data, err := os.ReadFile(filepath.Join(mount, yunonaRelPath, "payload.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestEnsureStagingPayloadSkipsWhenTargetVersionNewerOrEqual(t *testing.T) {
	source := t.TempDir()
	writeConfig(t, source, "1.0.0")

	mount := t.TempDir()
	target := filepath.Join(mount, yunonaRelPath)
	writeConfig(t, target, "2.0.0")

	var copied bool
	m := NewManager(source, mount)
	m.copyDir = func(src, dst string) error { copied = true; return nil }

	require.NoError(t, m.EnsureStagingPayload())
	assert.False(t, copied)
}

func TestEnsureStagingPayloadCopiesWhenSourceNewer(t *testing.T) {
	source := t.TempDir()
	writeConfig(t, source, "3.0.0")

	mount := t.TempDir()
	target := filepath.Join(mount, yunonaRelPath)
	writeConfig(t, target, "2.0.0")

	var copied bool
	m := NewManager(source, mount)
	m.copyDir = func(src, dst string) error { copied = true; return nil }

	require.NoError(t, m.EnsureStagingPayload())
	assert.True(t, copied)
}

func TestEnsureStagingPayloadIsOneShotPerRun(t *testing.T) {
	source := t.TempDir()
	writeConfig(t, source, "1.0.0")

	var calls int
	m := NewManager(source, t.TempDir())
	m.copyDir = func(src, dst string) error { calls++; return nil }

	require.NoError(t, m.EnsureStagingPayload())
	require.NoError(t, m.EnsureStagingPayload())
	assert.Equal(t, 1, calls)
}

func TestEnsureStagingPayloadUnparsableVersionForcesUpdate(t *testing.T) {
	source := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(source, "config.json"), []byte("not json"), 0o644))

	mount := t.TempDir()
	target := filepath.Join(mount, yunonaRelPath)
	writeConfig(t, target, "5.0.0")

	var copied bool
	m := NewManager(source, mount)
	m.copyDir = func(src, dst string) error { copied = true; return nil }

	require.NoError(t, m.EnsureStagingPayload())
	assert.True(t, copied, "null source version must force an update regardless of target version")
}
