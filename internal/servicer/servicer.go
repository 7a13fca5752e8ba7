// Package servicer is the typed wrapper over the external image-servicing
// CLI (spec.md §4.2; "the servicer", in practice DISM) that the rest of the
// engine talks to. Nothing in this package parses WIM internals — every
// operation shells out and inspects only exit code and captured
// stdout/stderr, per spec.md's Non-goals.
//
// The shape — a thin typed client, one exported method per CLI verb, output
// captured to a temp file and released on every exit path — is grounded on
// builder/azure/arm/azure_client.go and inspector.go in the teacher repo,
// which wrap an external (HTTP, there) backend behind a client whose
// methods return Go errors carrying the captured failure detail. Per
// spec.md §9's explicit re-architecture note, stderr capture uses a
// per-invocation unique temp file (pid + counter + uuid) rather than the
// original's fixed shared path, so concurrent invocations never collide.
package servicer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/etj-sad/kassia/internal/kasserr"
	"github.com/etj-sad/kassia/internal/kasslog"
)

// DefaultBinary is the servicer executable name resolved from PATH, per
// spec.md §6's "External process contract".
const DefaultBinary = "Dism.exe"

var indexOneRe = regexp.MustCompile(`(?m)^\s*Index\s*:\s*1\s*$`)

var invocationCounter int64

// Client wraps the servicer CLI. Binary defaults to DefaultBinary;
// TempDir defaults to os.TempDir(). MaxRetries is consulted only by
// AddPackage (spec.md §4.2).
type Client struct {
	Binary       string
	TempDir      string
	MaxRetries   int
	RetryBackoff time.Duration

	run func(ctx context.Context, name string, args []string) (stdout, stderr string, exitCode int, err error)
}

// New returns a Client ready to invoke the servicer on PATH.
func New() *Client {
	return &Client{
		Binary:       DefaultBinary,
		MaxRetries:   2,
		RetryBackoff: 2 * time.Second,
	}
}

func (c *Client) binary() string {
	if c.Binary != "" {
		return c.Binary
	}
	return DefaultBinary
}

func (c *Client) tempDir() string {
	if c.TempDir != "" {
		return c.TempDir
	}
	return os.TempDir()
}

// exec runs the servicer with args, capturing stdout/stderr to unique temp
// files that are always removed before exec returns, per spec.md §5
// ("Scoped acquisition... must release those temp files on all exit
// paths").
func (c *Client) exec(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if c.run != nil {
		return c.run(ctx, c.binary(), args)
	}

	n := atomic.AddInt64(&invocationCounter, 1)
	base := fmt.Sprintf("kassia-servicer-%d-%d-%s", os.Getpid(), n, uuid.NewString())
	outPath := filepath.Join(c.tempDir(), base+".out")
	errPath := filepath.Join(c.tempDir(), base+".err")
	defer os.Remove(outPath)
	defer os.Remove(errPath)

	outFile, ferr := os.Create(outPath)
	if ferr != nil {
		return "", "", -1, fmt.Errorf("servicer: creating stdout capture file: %w", ferr)
	}
	defer outFile.Close()
	errFile, ferr := os.Create(errPath)
	if ferr != nil {
		return "", "", -1, fmt.Errorf("servicer: creating stderr capture file: %w", ferr)
	}
	defer errFile.Close()

	cmd := exec.CommandContext(ctx, c.binary(), args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &multiWriter{outFile, &outBuf}
	cmd.Stderr = &multiWriter{errFile, &errBuf}

	runErr := cmd.Run()
	code := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			return outBuf.String(), errBuf.String(), -1, fmt.Errorf("servicer: invoking %s: %w", c.binary(), runErr)
		}
	}
	return outBuf.String(), errBuf.String(), code, nil
}

type multiWriter struct {
	a, b interface {
		Write([]byte) (int, error)
	}
}

func (m *multiWriter) Write(p []byte) (int, error) {
	if _, err := m.a.Write(p); err != nil {
		return 0, err
	}
	return m.b.Write(p)
}

func servicerErr(op string, args []string, stderr string, code int) error {
	return fmt.Errorf("%w", &kasserr.ServicerFailure{Operation: op, Args: args, ExitCode: code, Stderr: stderr})
}

// GetImageInfo implements `get-wim-info /WimFile:W`. Success requires
// exit=0 AND stdout containing a line "Index : 1".
func (c *Client) GetImageInfo(ctx context.Context, wimPath string) error {
	args := []string{"/Get-WimInfo", "/WimFile:" + wimPath}
	stdout, stderr, code, err := c.exec(ctx, args)
	if err != nil {
		return err
	}
	if code != 0 {
		return servicerErr("GetImageInfo", args, stderr, code)
	}
	if !indexOneRe.MatchString(stdout) {
		return fmt.Errorf("%w", &kasserr.IntegrityFailure{WimPath: wimPath, Detail: "no Index : 1 entry in get-wim-info output"})
	}
	return nil
}

// Mount implements `Mount-Wim /WimFile:W /Index:1 /MountDir:D`. Success
// requires exit=0 AND a Windows subdirectory under mountDir.
func (c *Client) Mount(ctx context.Context, wimPath, mountDir string) error {
	args := []string{"/Mount-Wim", "/WimFile:" + wimPath, "/Index:1", "/MountDir:" + mountDir}
	_, stderr, code, err := c.exec(ctx, args)
	if err != nil {
		return err
	}
	if code != 0 {
		return servicerErr("Mount", args, stderr, code)
	}
	if _, statErr := os.Stat(filepath.Join(mountDir, "Windows")); statErr != nil {
		return fmt.Errorf("%w", &kasserr.IntegrityFailure{WimPath: wimPath, Detail: "mount succeeded but no Windows directory under mount point"})
	}
	return nil
}

// AddDriver implements `Add-Driver /Image:M /Driver:D /Recurse`. Never
// retried per spec.md's table.
func (c *Client) AddDriver(ctx context.Context, driverDir, mountDir string) error {
	args := []string{"/Image:" + mountDir, "/Add-Driver", "/Driver:" + driverDir, "/Recurse"}
	_, stderr, code, err := c.exec(ctx, args)
	if err != nil {
		return err
	}
	if code != 0 {
		return servicerErr("AddDriver", args, stderr, code)
	}
	return nil
}

// AddPackage implements `Add-Package /Image:M /PackagePath:P`, retried up
// to maxRetries additional times (default 2, i.e. 3 total attempts) with a
// linear 2-second backoff, per spec.md §4.5.
func (c *Client) AddPackage(ctx context.Context, packagePath, mountDir string) error {
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	backoff := c.RetryBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	args := []string{"/Image:" + mountDir, "/Add-Package", "/PackagePath:" + packagePath}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		_, stderr, code, err := c.exec(ctx, args)
		if err == nil && code == 0 {
			return nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = servicerErr("AddPackage", args, stderr, code)
		}

		if attempt < maxRetries {
			kasslog.Warn("AddPackage attempt %d/%d failed for %s: %s", attempt+1, maxRetries+1, packagePath, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}

// Unmount implements `Unmount-Wim /MountDir:D /Commit|/Discard`. Never
// retried: a failed discard is logged by the caller and never re-raised
// (spec.md §4.7 "Rollback").
func (c *Client) Unmount(ctx context.Context, mountDir string, commit bool) error {
	flag := "/Discard"
	if commit {
		flag = "/Commit"
	}
	args := []string{"/Unmount-Wim", "/MountDir:" + mountDir, flag}
	_, stderr, code, err := c.exec(ctx, args)
	if err != nil {
		return err
	}
	if code != 0 {
		return servicerErr("Unmount", args, stderr, code)
	}
	return nil
}

// Export implements `Export-Image`, requiring exit=0 AND a subsequent
// GetImageInfo pass against the destination.
func (c *Client) Export(ctx context.Context, sourcePath, destPath string) error {
	args := []string{
		"/Export-Image",
		"/SourceImageFile:" + sourcePath,
		"/SourceIndex:1",
		"/DestinationImageFile:" + destPath,
		"/Compress:max",
	}
	_, stderr, code, err := c.exec(ctx, args)
	if err != nil {
		return err
	}
	if code != 0 {
		return servicerErr("Export", args, stderr, code)
	}
	return c.GetImageInfo(ctx, destPath)
}
