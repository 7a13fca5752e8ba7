// Package staging implements the Staging Manager (spec.md §4.6, internally
// called "Yunona"): an idempotent, versioned copy of a payload tree into a
// fixed path inside the mounted image.
//
// Per spec.md §9's re-architecture note, the one-shot guard that used to
// live as a duplicated global flag across the driver and update modules is
// consolidated here into a single Manager instance whose zero value is
// per-pipeline state, not a package global.
package staging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/otiai10/copy"

	"github.com/etj-sad/kassia/internal/kasslog"
)

// yunonaRelPath is the fixed location inside the mounted image every
// staged payload lands under.
const yunonaRelPath = "Users/Public/Yunona"

type versionFile struct {
	Version string `json:"version"`
}

// Manager ensures a payload tree ("yunonaSource") is present, at the
// right version, inside a mounted image. One Manager serves exactly one
// pipeline run.
type Manager struct {
	// SourceDir is the engine-side payload tree (yunonaSource).
	SourceDir string
	// MountPoint is the currently-mounted image root.
	MountPoint string

	ensured bool
	copyDir func(src, dst string) error
}

// NewManager returns a Manager for one pipeline run, not yet ensured.
func NewManager(sourceDir, mountPoint string) *Manager {
	return &Manager{SourceDir: sourceDir, MountPoint: mountPoint, copyDir: copy.Copy}
}

func (m *Manager) copy(src, dst string) error {
	if m.copyDir != nil {
		return m.copyDir(src, dst)
	}
	return copy.Copy(src, dst)
}

func (m *Manager) targetDir() string {
	return filepath.Join(m.MountPoint, yunonaRelPath)
}

// EnsureStagingPayload is the single entry point, guarded by a one-shot
// flag so re-entry within the same run is a no-op, per spec.md §4.6.
func (m *Manager) EnsureStagingPayload() error {
	if m.ensured {
		return nil
	}
	m.ensured = true

	sourceVersion := readVersion(filepath.Join(m.SourceDir, "config.json"))
	targetVersion := readVersion(filepath.Join(m.targetDir(), "config.json"))

	if targetVersion != nil && sourceVersion != nil && compareVersions(*targetVersion, *sourceVersion) >= 0 {
		kasslog.Info("staging payload already at version %s, skipping copy", formatVersion(targetVersion))
		return nil
	}

	if err := os.MkdirAll(m.targetDir(), 0o755); err != nil {
		return err
	}
	kasslog.Info("staging payload %s -> %s (source version %s)", m.SourceDir, m.targetDir(), formatVersion(sourceVersion))
	return m.copy(m.SourceDir, m.targetDir())
}

// readVersion reads the `version` field out of a staging config.json. A
// missing file or parse failure yields a nil version, which spec.md §4.6
// says "forces an update".
func readVersion(path string) *[]int {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var vf versionFile
	if err := json.Unmarshal(data, &vf); err != nil {
		kasslog.Warn("staging config %s failed to parse, treating version as missing: %s", path, err)
		return nil
	}
	parsed, ok := parseVersion(vf.Version)
	if !ok {
		kasslog.Warn("staging config %s has unparsable version %q, treating as missing", path, vf.Version)
		return nil
	}
	return &parsed
}

// parseVersion parses a dotted version string ("1.2.3") into numeric
// components for comparison.
func parseVersion(s string) ([]int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	parts := strings.Split(s, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

// compareVersions returns -1, 0, or 1 comparing a to b component-wise,
// treating a missing trailing component as 0.
func compareVersions(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func formatVersion(v *[]int) string {
	if v == nil {
		return "<none>"
	}
	parts := make([]string, len(*v))
	for i, n := range *v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}
