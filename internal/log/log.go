// Package log provides the leveled logger interface used throughout the
// client and daemon. It intentionally stays a thin wrapper around the
// standard library logger so that callers can swap in a syslog- or
// journald-backed implementation (see internal/syslogsink) without
// touching call sites.
package log

import (
	"io"
	stdlog "log"
	"sync"
)

// Logger is the capability every component logs through. TelemetrySink
// implementations in consuming code may wrap a Logger to also emit
// progress/stats events.
type Logger interface {
	Printf(format string, v ...interface{})
}

// New returns a Logger writing to w with the standard flags oc-rsync
// uses (no date/time prefix; upstream rsync's own log lines already carry
// context).
func New(w io.Writer) Logger {
	return stdlog.New(w, "", stdlog.Lshortfile)
}

var (
	mu     sync.Mutex
	global Logger = New(io.Discard)
)

// SetLogger installs the process-wide ad-hoc logger used by package-level
// Printf. New code should prefer taking a Logger as a dependency; this
// exists only to support legacy call sites ported verbatim from upstream
// rsync's source, which has no equivalent of dependency injection.
func SetLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	global = l
}

// Printf logs through the process-wide logger installed via SetLogger.
func Printf(format string, v ...interface{}) {
	mu.Lock()
	l := global
	mu.Unlock()
	l.Printf(format, v...)
}
