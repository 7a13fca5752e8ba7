// Package kasserr implements the error taxonomy of spec.md §7: one sentinel
// per category, tested with errors.Is, with typed wrapper values carrying
// the structured fields the spec names. The pattern — package-level
// sentinel errors wrapped with fmt.Errorf("...: %w", sentinel) at the call
// site — is grounded on google/fresnel's cli/installer package, the other
// Windows-deployment tool in the reference corpus.
package kasserr

import (
	"errors"
	"fmt"
)

// Sentinels. Every typed error in this package wraps exactly one of these,
// so callers can classify those failures with errors.Is without string
// matching. Errors from the host itself (file system, process start) are
// returned wrapped in context but not tied to a sentinel.
var (
	// ErrConfig covers every Config Resolver failure: missing JSON,
	// parse failure, schema violation, OS/WIM mapping miss. Terminal.
	ErrConfig = errors.New("config error")

	// ErrIntegrity covers a failed GetImageInfo call or a missing Index 1.
	// Terminal at the stage boundary that raised it.
	ErrIntegrity = errors.New("integrity error")

	// ErrServicer covers a non-zero exit from a servicer command.
	// Retriable only for AddPackage; terminal otherwise.
	ErrServicer = errors.New("servicer error")

	// ErrAsset covers a bad manifest or payload: an unknown driver/update
	// type, or no matching payload files. Non-fatal: the individual
	// driver/update is counted as Failed and the loop continues.
	ErrAsset = errors.New("asset error")

	// ErrStaging covers a copy failure into the mounted image.
	// Driver/update-level: counted as Failed, loop continues.
	ErrStaging = errors.New("staging error")

	// ErrOperator covers an invalid selection at the interactive prompt.
	ErrOperator = errors.New("operator error")
)

// ConfigMissing reports that the device profile or build config JSON could
// not be found on disk.
type ConfigMissing struct {
	Path string
}

func (e *ConfigMissing) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}
func (e *ConfigMissing) Unwrap() error { return ErrConfig }

// ConfigParseError reports that a device profile or build config JSON file
// could not be parsed.
type ConfigParseError struct {
	Path string
	Err  error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("parsing %s: %s", e.Path, e.Err)
}
func (e *ConfigParseError) Unwrap() error { return ErrConfig }

// SchemaViolation aggregates every schema check that failed for a single
// document, per spec §4.1 ("a single aggregated error enumerating every
// violation").
type SchemaViolation struct {
	Document   string
	Violations []string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("%s failed schema validation: %v", e.Document, e.Violations)
}
func (e *SchemaViolation) Unwrap() error { return ErrConfig }

// OSIncompatible reports that the requested OS ID is not in the device
// profile's supported set.
type OSIncompatible struct {
	OSID      int
	Supported []int
}

func (e *OSIncompatible) Error() string {
	return fmt.Sprintf("os id %d is not supported by this device; supported: %v", e.OSID, e.Supported)
}
func (e *OSIncompatible) Unwrap() error { return ErrConfig }

// WimMappingMissing reports that the requested OS ID has no entry in the
// build config's osWimMap.
type WimMappingMissing struct {
	OSID      int
	Available []string
}

func (e *WimMappingMissing) Error() string {
	return fmt.Sprintf("no wim mapped for os id %d; available: %v", e.OSID, e.Available)
}
func (e *WimMappingMissing) Unwrap() error { return ErrConfig }

// IntegrityFailure reports that GetImageInfo failed, or its output did not
// contain the expected "Index : 1" marker.
type IntegrityFailure struct {
	WimPath string
	Detail  string
}

func (e *IntegrityFailure) Error() string {
	return fmt.Sprintf("integrity check failed for %s: %s", e.WimPath, e.Detail)
}
func (e *IntegrityFailure) Unwrap() error { return ErrIntegrity }

// ServicerFailure reports a non-zero exit from the servicer CLI.
type ServicerFailure struct {
	Operation string
	Args      []string
	ExitCode  int
	Stderr    string
}

func (e *ServicerFailure) Error() string {
	return fmt.Sprintf("servicer %s failed (exit %d): %s", e.Operation, e.ExitCode, e.Stderr)
}
func (e *ServicerFailure) Unwrap() error { return ErrServicer }

// StagingFailure reports a failed copy into the mounted image.
type StagingFailure struct {
	Source      string
	Destination string
	Err         error
}

func (e *StagingFailure) Error() string {
	return fmt.Sprintf("staging copy %s -> %s failed: %s", e.Source, e.Destination, e.Err)
}
func (e *StagingFailure) Unwrap() error { return ErrStaging }

// OperatorSelectionError reports that input at the interactive
// device-selection prompt ended before a valid choice was read.
// Out-of-range or unparsable entries before that point are re-prompted,
// not returned.
type OperatorSelectionError struct {
	Input string
}

func (e *OperatorSelectionError) Error() string {
	return fmt.Sprintf("invalid selection: %q", e.Input)
}
func (e *OperatorSelectionError) Unwrap() error { return ErrOperator }
