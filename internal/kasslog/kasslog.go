// Package kasslog is a drop-in replacement for the standard library `log`
// package used everywhere else in the engine. It adds two things stdlib log
// does not: secret-safe filtering (mirroring
// hashicorp/packer-plugin-azure's builder/azure/common/log package) and a
// tee to the per-run log file the CLI contract (spec §6) requires at
// <root>/Logs/LOG_<yyyyMMdd_HHmmss>.log.
//
// The colorized console renderer is intentionally NOT part of this package
// — spec.md treats the colorized logger as an external collaborator. This
// package only produces plain, structured lines; cmd/kassia is the only
// place color is painted on top of them.
package kasslog

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/logger"
	packersdk "github.com/hashicorp/packer-plugin-sdk/packer"
)

// Level mirrors the severity vocabulary spec §7 requires in structured log
// entries (ERROR, WARNING, plus INFO for everything else).
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

var (
	mu      sync.Mutex
	logFile *os.File
	gl      *logger.Logger
)

// Init opens <root>/Logs/LOG_<yyyyMMdd_HHmmss>.log and mirrors every entry
// written through this package to it in addition to stderr. It is safe to
// call at most once per process; a second call is a no-op and returns the
// path from the first call.
func Init(root string, now time.Time) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		return logFile.Name(), nil
	}

	logsDir := filepath.Join(root, "Logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return "", fmt.Errorf("kasslog: creating log directory: %w", err)
	}

	name := filepath.Join(logsDir, fmt.Sprintf("LOG_%s.log", now.Format("20060102_150405")))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("kasslog: opening log file: %w", err)
	}

	logFile = f
	gl = logger.Init("kassia", true, false, f)
	return name, nil
}

// Close releases the underlying log file. Safe to call even if Init was
// never called.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if gl != nil {
		gl.Close()
		gl = nil
	}
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func filtered(v string) string {
	return packersdk.LogSecretFilter.FilterString(v)
}

func write(level Level, format string, args ...any) {
	msg := filtered(fmt.Sprintf(format, args...))
	line := fmt.Sprintf("[%s] %s", level, msg)

	mu.Lock()
	g := gl
	mu.Unlock()

	if g != nil {
		switch level {
		case LevelError:
			g.Error(line)
		case LevelWarning:
			g.Warning(line)
		default:
			g.Info(line)
		}
		return
	}

	log.Print(line)
}

// Info logs a structured informational entry.
func Info(format string, args ...any) { write(LevelInfo, format, args...) }

// Warn logs a structured WARNING entry, per spec.md's convention that
// rollback and coverage-gap lines are WARNING, not ERROR.
func Warn(format string, args ...any) { write(LevelWarning, format, args...) }

// Error logs a structured ERROR entry.
func Error(format string, args ...any) { write(LevelError, format, args...) }
