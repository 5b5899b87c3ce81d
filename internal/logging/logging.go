// Package logging provides the pipeline's process-wide loggers.
//
// It follows the same shape as the teacher's log package: four leveled
// loggers backed by the standard library's log.Logger, a file sink with a
// stderr fallback, and a DEBUG-gated debug logger. Unlike the teacher's
// single hardcoded TUI log file, callers here choose the log file name and
// a tag prefix, since this module has no single fixed process identity.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

var (
	InfoLog    *log.Logger
	WarningLog *log.Logger
	ErrorLog   *log.Logger
	DebugLog   *log.Logger
)

var debugEnabled = os.Getenv("DEBUG") == "true" || os.Getenv("DEBUG") == "1"

var globalLogFile *os.File

func init() {
	// Loggers must never be nil, even before Initialize runs, so a package
	// that logs during init (e.g. config defaults) doesn't panic.
	InfoLog = log.New(io.Discard, "INFO:", log.Ldate|log.Ltime)
	WarningLog = log.New(io.Discard, "WARNING:", log.Ldate|log.Ltime)
	ErrorLog = log.New(os.Stderr, "ERROR:", log.Ldate|log.Ltime)
	DebugLog = log.New(io.Discard, "", 0)
}

// Initialize points the package loggers at logFileName, tagging every line
// with tag (e.g. "SCHEDULER", "WORKER-3"). On failure to open the file it
// falls back to stderr rather than failing the caller.
func Initialize(logFileName, tag string) {
	prefix := "%s"
	if tag != "" {
		prefix = "[" + tag + "] %s"
	}

	f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		InfoLog = log.New(os.Stderr, fmt.Sprintf(prefix, "INFO:"), log.Ldate|log.Ltime|log.Lshortfile)
		WarningLog = log.New(os.Stderr, fmt.Sprintf(prefix, "WARNING:"), log.Ldate|log.Ltime|log.Lshortfile)
		ErrorLog = log.New(os.Stderr, fmt.Sprintf(prefix, "ERROR:"), log.Ldate|log.Ltime|log.Lshortfile)
		if debugEnabled {
			DebugLog = log.New(os.Stderr, fmt.Sprintf(prefix, "DEBUG:"), log.Ldate|log.Ltime|log.Lshortfile)
		} else {
			DebugLog = log.New(io.Discard, "", 0)
		}
		fmt.Fprintf(os.Stderr, "warning: using stderr for logging: %v\n", err)
		return
	}

	InfoLog = log.New(f, fmt.Sprintf(prefix, "INFO:"), log.Ldate|log.Ltime|log.Lshortfile)
	WarningLog = log.New(f, fmt.Sprintf(prefix, "WARNING:"), log.Ldate|log.Ltime|log.Lshortfile)
	ErrorLog = log.New(f, fmt.Sprintf(prefix, "ERROR:"), log.Ldate|log.Ltime|log.Lshortfile)
	if debugEnabled {
		DebugLog = log.New(f, fmt.Sprintf(prefix, "DEBUG:"), log.Ldate|log.Ltime|log.Lshortfile)
	} else {
		DebugLog = log.New(io.Discard, "", 0)
	}

	globalLogFile = f
}

// DefaultLogPath returns a per-process log path under the OS temp dir.
func DefaultLogPath(component string) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("pipeline-%s.log", component))
}

// Close flushes and closes the log file opened by Initialize, if any.
func Close() {
	if globalLogFile != nil {
		_ = globalLogFile.Close()
		globalLogFile = nil
	}
}

// IsDebugEnabled reports whether DEBUG=true/1 was set in the environment.
func IsDebugEnabled() bool {
	return debugEnabled
}

// Every logs at most once per timeout interval; repeated ShouldLog calls
// within the window return false so hot loops (tick handlers, drain loops)
// don't flood the log.
type Every struct {
	timeout time.Duration
	timer   *time.Timer
}

func NewEvery(timeout time.Duration) *Every {
	return &Every{timeout: timeout}
}

func (e *Every) ShouldLog() bool {
	if e.timer == nil {
		e.timer = time.NewTimer(e.timeout)
		return true
	}
	select {
	case <-e.timer.C:
		e.timer.Reset(e.timeout)
		return true
	default:
		return false
	}
}
