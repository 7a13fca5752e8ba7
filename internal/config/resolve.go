package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/etj-sad/kassia/internal/kasserr"
)

// buildConfigFileName is the build configuration's fixed name under the
// engine root. spec.md §4.1 says it is loaded "from the engine directory"
// without naming the file; this implementation's choice, recorded in
// DESIGN.md.
const buildConfigFileName = "BuildConfig.json"

// Clock abstracts time.Now so cache-key tests can pin a timestamp.
type Clock func() time.Time

// Resolver loads, validates, and caches ResolvedConfig values for one
// engine root directory.
type Resolver struct {
	Root string
	Now  Clock
}

// NewResolver returns a Resolver rooted at root.
func NewResolver(root string) *Resolver {
	return &Resolver{Root: root, Now: time.Now}
}

// Resolve implements spec.md §4.1: load device profile + build config,
// schema-validate, check OS compatibility, attach sourceWim, deep-copy, and
// resolve ${root} placeholders. A cache hit bypasses all of this and
// returns immediately.
func (r *Resolver) Resolve(deviceFile string, osID int) (*ResolvedConfig, error) {
	devicePath := filepath.Join(r.Root, "DeviceConfig", deviceFile)
	buildPath := filepath.Join(r.Root, buildConfigFileName)

	deviceInfo, err := os.Stat(devicePath)
	if err != nil {
		return nil, fmt.Errorf("device profile: %w", &kasserr.ConfigMissing{Path: devicePath})
	}
	buildInfo, err := os.Stat(buildPath)
	if err != nil {
		return nil, fmt.Errorf("build config: %w", &kasserr.ConfigMissing{Path: buildPath})
	}

	key := cacheKey(deviceFile, osID, deviceInfo.ModTime(), buildInfo.ModTime())
	if cached, ok := loadCached(r.Root, key); ok {
		return cached, nil
	}

	deviceDoc, err := readJSONDoc(devicePath)
	if err != nil {
		return nil, fmt.Errorf("device profile: %w", &kasserr.ConfigParseError{Path: devicePath, Err: err})
	}
	buildDoc, err := readJSONDoc(buildPath)
	if err != nil {
		return nil, fmt.Errorf("build config: %w", &kasserr.ConfigParseError{Path: buildPath, Err: err})
	}

	var violations []string
	for _, v := range Validate(deviceDoc, deviceProfileSchema) {
		violations = append(violations, "device: "+v)
	}
	for _, v := range Validate(buildDoc, buildConfigSchema) {
		violations = append(violations, "build: "+v)
	}
	if len(violations) > 0 {
		return nil, &kasserr.SchemaViolation{Document: fmt.Sprintf("%s + %s", devicePath, buildPath), Violations: violations}
	}

	var profile DeviceProfile
	if err := mapstructure.Decode(deviceDoc, &profile); err != nil {
		return nil, fmt.Errorf("device profile: %w", &kasserr.ConfigParseError{Path: devicePath, Err: err})
	}
	var build BuildConfig
	if err := mapstructure.Decode(buildDoc, &build); err != nil {
		return nil, fmt.Errorf("build config: %w", &kasserr.ConfigParseError{Path: buildPath, Err: err})
	}

	if !profile.SupportsOS(osID) {
		return nil, &kasserr.OSIncompatible{OSID: osID, Supported: profile.SupportedOS}
	}

	sourceWim, ok := build.OsWimMap[strconv.Itoa(osID)]
	if !ok {
		keys := make([]string, 0, len(build.OsWimMap))
		for k := range build.OsWimMap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil, &kasserr.WimMappingMissing{OSID: osID, Available: keys}
	}

	resolvedBuild := expandBuildConfigPlaceholders(build, r.Root)
	resolvedBuild.SourceWim = resolvePlaceholder(sourceWim, r.Root)
	resolvedBuild.SelectedOSID = osID

	resolvedProfile := profile
	resolvedProfile.SelectedOSID = osID

	rc := ResolvedConfig{
		DeviceProfile: resolvedProfile,
		BuildConfig:   resolvedBuild,
		Metadata: Metadata{
			LoadedAt:   r.now().Format(time.RFC3339),
			DeviceFile: deviceFile,
			OSID:       osID,
			Version:    1,
		},
	}

	if err := storeCached(r.Root, key, rc); err != nil {
		// A cache-write failure does not invalidate a successful resolve;
		// the next call simply misses the cache again.
		fmt.Fprintf(os.Stderr, "kassia: warning: could not persist config cache: %s\n", err)
	}

	return &rc, nil
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func readJSONDoc(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
